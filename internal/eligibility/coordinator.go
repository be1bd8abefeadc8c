package eligibility

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"

	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/metrics"
	"lender-matching/internal/common/observability"
	"lender-matching/internal/models"
	"lender-matching/internal/oracle"
)

type CoordinatorConfig struct {
	// MaxConcurrency caps in-flight lender evaluations; 0 runs all at once.
	MaxConcurrency int
}

// Coordinator fans one evaluation out per lender and folds the outcomes
// into a ranked report.
type Coordinator struct {
	config    CoordinatorConfig
	evaluator LenderEvaluator
	logger    logger.Logger
	now       func() time.Time
}

func NewCoordinator(cfg CoordinatorConfig, evaluator LenderEvaluator, log logger.Logger) *Coordinator {
	return &Coordinator{
		config:    cfg,
		evaluator: evaluator,
		logger:    log.WithFields(map[string]interface{}{"component": "coordinator"}),
		now:       time.Now,
	}
}

// Evaluate runs every lender evaluation to completion and returns the
// report. It fails only on its preconditions; per-lender failures are
// logged and left out of both partitions.
//
// Cancelling ctx does not stop evaluations already started. Each one ends
// on success, failure or its own oracle timeout.
func (c *Coordinator) Evaluate(ctx context.Context, applicationID string, app *models.ApplicationSnapshot, lenders []Lender) (*EligibilityReport, error) {
	if len(lenders) == 0 {
		metrics.EligibilityEvaluations.WithLabelValues(metrics.OutcomeNoLenders).Inc()
		return nil, ErrNoLenders
	}
	if app == nil {
		metrics.EligibilityEvaluations.WithLabelValues(metrics.OutcomeInvalidInput).Inc()
		return nil, ErrMissingApplicationData
	}

	ctx, span := observability.Tracer("eligibility").Start(context.WithoutCancel(ctx), "eligibility.evaluate")
	span.SetAttributes(attribute.String("application.id", applicationID), attribute.Int("lenders", len(lenders)))
	defer span.End()

	log := c.logger.WithFields(map[string]interface{}{"applicationId": applicationID})
	log.Info("Starting eligibility evaluation", map[string]interface{}{"lenderCount": len(lenders)})

	start := time.Now()
	workers := c.config.MaxConcurrency
	if workers <= 0 || workers > len(lenders) {
		workers = len(lenders)
	}

	mapper := iter.Mapper[Lender, Outcome]{MaxGoroutines: workers}
	outcomes := mapper.Map(lenders, func(l *Lender) Outcome {
		return c.evaluateOne(ctx, app, *l)
	})
	for i := range outcomes {
		outcomes[i].Index = i
	}

	report := c.assemble(applicationID, len(lenders), outcomes, log)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.EligibilityEvaluations.WithLabelValues(metrics.OutcomeCompleted).Inc()

	span.SetAttributes(
		attribute.Int("lenders.matched", len(report.MatchedLenders)),
		attribute.Int("lenders.unmatched", len(report.UnmatchedLenders)),
	)
	log.Info("Eligibility evaluation completed", map[string]interface{}{
		"matched":    len(report.MatchedLenders),
		"unmatched":  len(report.UnmatchedLenders),
		"failed":     len(lenders) - len(report.MatchedLenders) - len(report.UnmatchedLenders),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return report, nil
}

// evaluateOne turns a panicking evaluator into a failed outcome so one
// lender can never take down the batch.
func (c *Coordinator) evaluateOne(ctx context.Context, app *models.ApplicationSnapshot, lender Lender) (out Outcome) {
	var pc panics.Catcher
	pc.Try(func() {
		out = c.evaluator.EvaluateLender(ctx, app, lender)
	})
	if r := pc.Recovered(); r != nil {
		out = Outcome{LenderID: lender.ID, LenderName: lender.Name, Err: fmt.Errorf("evaluation panicked: %w", r.AsError())}
	}
	if out.Err == nil && out.Judgment == nil {
		out.Err = errors.New("evaluator returned no judgment")
	}
	out.LenderID, out.LenderName = lender.ID, lender.Name
	return out
}

func (c *Coordinator) assemble(applicationID string, total int, outcomes []Outcome, log logger.Logger) *EligibilityReport {
	report := &EligibilityReport{
		ApplicationID:         applicationID,
		MatchedLenders:        []LenderJudgment{},
		UnmatchedLenders:      []LenderJudgment{},
		AnalysisTimestamp:     c.now().UTC(),
		TotalLendersEvaluated: total,
	}

	for _, o := range outcomes {
		if !o.OK() {
			code := FailureCode(o.Err)
			log.Error("Lender evaluation failed", map[string]interface{}{
				"lenderId":   o.LenderID,
				"lenderName": o.LenderName,
				"errorCode":  code,
				"error":      o.Err.Error(),
			})
			if code == codeMalformed {
				metrics.LenderEvaluations.WithLabelValues(metrics.ResultMalformed).Inc()
			} else {
				metrics.LenderEvaluations.WithLabelValues(metrics.ResultOracleError).Inc()
			}
			continue
		}
		if o.Judgment.IsMatch() {
			report.MatchedLenders = append(report.MatchedLenders, *o.Judgment)
			metrics.LenderEvaluations.WithLabelValues(metrics.ResultMatched).Inc()
		} else {
			report.UnmatchedLenders = append(report.UnmatchedLenders, *o.Judgment)
			metrics.LenderEvaluations.WithLabelValues(metrics.ResultUnmatched).Inc()
		}
	}

	sortByConfidence(report.MatchedLenders)
	sortByConfidence(report.UnmatchedLenders)
	return report
}

// sortByConfidence orders descending; equal scores keep submission order.
func sortByConfidence(js []LenderJudgment) {
	sort.SliceStable(js, func(i, j int) bool {
		return js[i].ConfidenceScore > js[j].ConfidenceScore
	})
}

const (
	codeOracleError   = "ORACLE_ERROR"
	codeOracleTimeout = "ORACLE_TIMEOUT"
	codeMalformed     = "MALFORMED_RESPONSE"
	codeInternal      = "INTERNAL_ERROR"
)

// FailureCode classifies a per-lender failure for logs and metrics.
func FailureCode(err error) string {
	var malformed *MalformedResponseError
	var oracleErr *OracleError
	switch {
	case errors.As(err, &malformed):
		return codeMalformed
	case errors.Is(err, oracle.ErrTimeout):
		return codeOracleTimeout
	case errors.As(err, &oracleErr):
		return codeOracleError
	default:
		return codeInternal
	}
}
