package eligibility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"lender-matching/internal/models"
)

// ==========================
// Shared Test Fixtures
// ==========================

type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) GenerateEvaluation(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func ptr[T any](v T) *T { return &v }

func createTestApplication() *models.ApplicationSnapshot {
	return &models.ApplicationSnapshot{
		BusinessInfo: models.BusinessInfo{
			BusinessName:      "Acme Hauling LLC",
			BusinessType:      "LLC",
			Industry:          "Transportation",
			YearsInBusiness:   4.5,
			AnnualRevenue:     ptr(1250000.0),
			NumberOfEmployees: ptr(12),
		},
		CreditInfo: models.CreditInfo{
			FICOScore:   712,
			PaynetScore: ptr(655),
		},
		LoanDetails: models.LoanDetails{
			RequestedAmount: 150000,
			DownPayment:     15000,
			LoanTermMonths:  60,
			LoanPurpose:     "Purchase a tractor",
		},
		EquipmentInfo: models.EquipmentInfo{
			EquipmentType:      "Semi truck",
			EquipmentCategory:  "transportation",
			EquipmentAgeYears:  ptr(3),
			EquipmentCondition: "used",
			PurchaseType:       "dealer",
			EquipmentMileage:   ptr(240000),
		},
		ContactInfo: models.ContactInfo{
			ContactName: "Jo Driver",
			Email:       "jo@acme.test",
			Phone:       "+15555550100",
			State:       "TX",
		},
	}
}

func createTestLender(id string) Lender {
	return Lender{
		ID:   id,
		Name: "Lender " + id,
		Criteria: []models.Criterion{
			{Key: "min_fico_score", Value: 680.0, Type: "number", DisplayName: "Minimum FICO", Required: true, Category: ptr("credit")},
			{Key: "excluded_states", Value: []interface{}{"CA", "NV"}, Type: "array", DisplayName: "Excluded States", Required: true},
		},
	}
}

func judgmentJSON(match bool, confidence float64) string {
	return fmt.Sprintf(`{"overall_match": %t, "confidence_score": %v, "overall_reasoning": "ok", "criteria_evaluations": [], "improvement_suggestions": []}`, match, confidence)
}

// scriptedEvaluator returns a canned outcome per lender id and records the
// peak number of concurrent calls.
type scriptedEvaluator struct {
	mu       sync.Mutex
	results  map[string]Outcome
	panics   map[string]bool
	delay    map[string]time.Duration
	active   int
	peak     int
	calls    []string
	contexts []context.Context
}

func newScriptedEvaluator() *scriptedEvaluator {
	return &scriptedEvaluator{
		results: map[string]Outcome{},
		panics:  map[string]bool{},
		delay:   map[string]time.Duration{},
	}
}

func (s *scriptedEvaluator) match(id string, confidence float64) {
	s.results[id] = Outcome{Judgment: &LenderJudgment{LenderID: id, LenderName: "Lender " + id, ConfidenceScore: confidence}}
}

func (s *scriptedEvaluator) fail(id string, err error) {
	s.results[id] = Outcome{Err: err}
}

func (s *scriptedEvaluator) EvaluateLender(ctx context.Context, _ *models.ApplicationSnapshot, lender Lender) Outcome {
	s.mu.Lock()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.calls = append(s.calls, lender.ID)
	s.contexts = append(s.contexts, ctx)
	d := s.delay[lender.ID]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if d > 0 {
		time.Sleep(d)
	}
	if s.panics[lender.ID] {
		panic("boom")
	}
	return s.results[lender.ID]
}
