package eligibility

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/metrics"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))

func newTestCoordinator(t *testing.T, cfg CoordinatorConfig, ev LenderEvaluator) *Coordinator {
	c := NewCoordinator(cfg, ev, logger.NewTestLogger(t))
	c.now = func() time.Time { return fixedNow }
	return c
}

func lenders(ids ...string) []Lender {
	out := make([]Lender, len(ids))
	for i, id := range ids {
		out[i] = createTestLender(id)
	}
	return out
}

func judgmentIDs(js []LenderJudgment) []string {
	ids := make([]string, len(js))
	for i, j := range js {
		ids[i] = j.LenderID
	}
	return ids
}

// ==========================
// Preconditions
// ==========================

func TestEvaluate_NoLenders(t *testing.T) {
	ev := newScriptedEvaluator()
	c := newTestCoordinator(t, CoordinatorConfig{}, ev)

	for _, ls := range [][]Lender{nil, {}} {
		report, err := c.Evaluate(context.Background(), "app-1", createTestApplication(), ls)
		assert.ErrorIs(t, err, ErrNoLenders)
		assert.Nil(t, report)

		report, err = c.Evaluate(context.Background(), "app-1", nil, ls)
		assert.ErrorIs(t, err, ErrNoLenders, "empty lender list wins over a missing application")
		assert.Nil(t, report)
	}
	assert.Empty(t, ev.calls)
}

func TestEvaluate_MissingApplication(t *testing.T) {
	c := newTestCoordinator(t, CoordinatorConfig{}, newScriptedEvaluator())

	report, err := c.Evaluate(context.Background(), "app-1", nil, lenders("A"))
	assert.ErrorIs(t, err, ErrMissingApplicationData)
	assert.Nil(t, report)
}

// ==========================
// Partition And Ordering
// ==========================

func TestEvaluate_SortStability(t *testing.T) {
	ev := newScriptedEvaluator()
	ev.match("A", 0.9)
	ev.match("B", 0.9)
	ev.match("C", 0.3)
	// B finishes first; ties must still follow submission order
	ev.delay["A"] = 30 * time.Millisecond

	report, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(context.Background(), "app-1", createTestApplication(), lenders("A", "B", "C"))

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, judgmentIDs(report.MatchedLenders))
	assert.Equal(t, []string{"C"}, judgmentIDs(report.UnmatchedLenders))
	assert.Equal(t, 3, report.TotalLendersEvaluated)
}

func TestEvaluate_PartitionAndSort(t *testing.T) {
	ev := newScriptedEvaluator()
	scores := map[string]float64{"A": 0.5, "B": 0.49, "C": 0.95, "D": 0.1, "E": 0.7, "F": 0.3}
	for id, s := range scores {
		ev.match(id, s)
	}

	report, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(context.Background(), "app-1", createTestApplication(), lenders("A", "B", "C", "D", "E", "F"))

	require.NoError(t, err)
	assert.Equal(t, []string{"C", "E", "A"}, judgmentIDs(report.MatchedLenders))
	assert.Equal(t, []string{"B", "F", "D"}, judgmentIDs(report.UnmatchedLenders))

	for _, j := range report.MatchedLenders {
		assert.GreaterOrEqual(t, j.ConfidenceScore, MatchThreshold)
	}
	for _, j := range report.UnmatchedLenders {
		assert.Less(t, j.ConfidenceScore, MatchThreshold)
	}
	assert.Equal(t, []string{"C", "E", "A"}, report.MatchedLenderIDs())
}

func TestEvaluate_ReportMetadata(t *testing.T) {
	ev := newScriptedEvaluator()
	ev.match("A", 0.8)

	report, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(context.Background(), "app-42", createTestApplication(), lenders("A"))

	require.NoError(t, err)
	assert.Equal(t, "app-42", report.ApplicationID)
	assert.Equal(t, time.UTC, report.AnalysisTimestamp.Location())
	assert.True(t, report.AnalysisTimestamp.Equal(fixedNow))
}

// ==========================
// Failure Isolation
// ==========================

func TestEvaluate_IsolatesFailures(t *testing.T) {
	ev := newScriptedEvaluator()
	ev.match("A", 0.8)
	ev.fail("B", &OracleError{LenderID: "B", Err: errors.New("connection reset")})
	ev.match("C", 0.2)

	report, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(context.Background(), "app-1", createTestApplication(), lenders("A", "B", "C"))

	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, judgmentIDs(report.MatchedLenders))
	assert.Equal(t, []string{"C"}, judgmentIDs(report.UnmatchedLenders))
	assert.Equal(t, 3, report.TotalLendersEvaluated)
}

func TestEvaluate_AllFailStillReports(t *testing.T) {
	ev := newScriptedEvaluator()
	ev.fail("A", &OracleError{LenderID: "A", Err: errors.New("503")})
	ev.fail("B", newMalformed("nope", errors.New("parse")))
	ev.panics["C"] = true
	// D has no scripted result: the evaluator returns an empty outcome

	report, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(context.Background(), "app-1", createTestApplication(), lenders("A", "B", "C", "D"))

	require.NoError(t, err)
	assert.NotNil(t, report.MatchedLenders)
	assert.NotNil(t, report.UnmatchedLenders)
	assert.Empty(t, report.MatchedLenders)
	assert.Empty(t, report.UnmatchedLenders)
	assert.Equal(t, 4, report.TotalLendersEvaluated)
}

func TestEvaluate_RecordsLenderResults(t *testing.T) {
	count := func(result string) float64 {
		return testutil.ToFloat64(metrics.LenderEvaluations.WithLabelValues(result))
	}
	matched, unmatched := count(metrics.ResultMatched), count(metrics.ResultUnmatched)
	oracleErrs, malformed := count(metrics.ResultOracleError), count(metrics.ResultMalformed)
	completed := testutil.ToFloat64(metrics.EligibilityEvaluations.WithLabelValues(metrics.OutcomeCompleted))

	ev := newScriptedEvaluator()
	ev.match("A", 0.9)
	ev.match("B", 0.7)
	ev.match("C", 0.1)
	ev.fail("D", &OracleError{LenderID: "D", Err: errors.New("503")})
	ev.fail("E", newMalformed("nope", errors.New("parse")))

	_, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(context.Background(), "app-1", createTestApplication(), lenders("A", "B", "C", "D", "E"))
	require.NoError(t, err)

	assert.Equal(t, matched+2, count(metrics.ResultMatched))
	assert.Equal(t, unmatched+1, count(metrics.ResultUnmatched))
	assert.Equal(t, oracleErrs+1, count(metrics.ResultOracleError))
	assert.Equal(t, malformed+1, count(metrics.ResultMalformed))
	assert.Equal(t, completed+1, testutil.ToFloat64(metrics.EligibilityEvaluations.WithLabelValues(metrics.OutcomeCompleted)))
}

func TestEvaluate_WithOracleEvaluator(t *testing.T) {
	mockOracle := new(MockOracle)
	mockOracle.On("GenerateEvaluation", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "LENDER: Lender A\n") })).
		Return(judgmentJSON(false, 0.9), nil)
	mockOracle.On("GenerateEvaluation", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "LENDER: Lender B\n") })).
		Return("", errors.New("network down"))
	mockOracle.On("GenerateEvaluation", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "LENDER: Lender C\n") })).
		Return(judgmentJSON(true, 0.1), nil)

	ev := NewEvaluator(mockOracle, logger.NewNoOpLogger())
	report, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(context.Background(), "app-1", createTestApplication(), lenders("A", "B", "C"))

	require.NoError(t, err)
	require.Len(t, report.MatchedLenders, 1)
	assert.Equal(t, "C", report.MatchedLenders[0].LenderID)
	assert.Equal(t, 0.6, report.MatchedLenders[0].ConfidenceScore)
	require.Len(t, report.UnmatchedLenders, 1)
	assert.Equal(t, "A", report.UnmatchedLenders[0].LenderID)
	assert.Equal(t, 0.4, report.UnmatchedLenders[0].ConfidenceScore)
	mockOracle.AssertNumberOfCalls(t, "GenerateEvaluation", 3)
}

// ==========================
// Concurrency
// ==========================

func TestEvaluate_RunsConcurrently(t *testing.T) {
	ev := newScriptedEvaluator()
	ids := []string{"A", "B", "C", "D", "E"}
	for _, id := range ids {
		ev.match(id, 0.7)
		ev.delay[id] = 50 * time.Millisecond
	}

	start := time.Now()
	_, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(context.Background(), "app-1", createTestApplication(), lenders(ids...))

	require.NoError(t, err)
	assert.Equal(t, len(ids), ev.peak)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestEvaluate_RespectsMaxConcurrency(t *testing.T) {
	ev := newScriptedEvaluator()
	ids := []string{"A", "B", "C", "D", "E", "F"}
	for _, id := range ids {
		ev.match(id, 0.7)
		ev.delay[id] = 20 * time.Millisecond
	}

	report, err := newTestCoordinator(t, CoordinatorConfig{MaxConcurrency: 2}, ev).
		Evaluate(context.Background(), "app-1", createTestApplication(), lenders(ids...))

	require.NoError(t, err)
	assert.LessOrEqual(t, ev.peak, 2)
	assert.Equal(t, ids, judgmentIDs(report.MatchedLenders))
}

func TestEvaluate_CallerCancellationDoesNotAbortFanOut(t *testing.T) {
	ev := newScriptedEvaluator()
	ev.match("A", 0.9)
	ev.match("B", 0.2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestCoordinator(t, CoordinatorConfig{}, ev).
		Evaluate(ctx, "app-1", createTestApplication(), lenders("A", "B"))

	require.NoError(t, err)
	assert.Len(t, report.MatchedLenders, 1)
	assert.Len(t, report.UnmatchedLenders, 1)
	for _, c := range ev.contexts {
		assert.NoError(t, c.Err())
	}
}

func TestEvaluate_DoesNotMutateInputs(t *testing.T) {
	ev := newScriptedEvaluator()
	ev.match("A", 0.3)
	ev.match("B", 0.9)

	input := lenders("A", "B")
	app := createTestApplication()
	before := *app

	_, err := newTestCoordinator(t, CoordinatorConfig{}, ev).Evaluate(context.Background(), "app-1", app, input)

	require.NoError(t, err)
	assert.Equal(t, "A", input[0].ID)
	assert.Equal(t, "B", input[1].ID)
	assert.Equal(t, before, *app)
}
