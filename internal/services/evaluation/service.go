// Package evaluation runs eligibility evaluations for stored applications
// and keeps the resulting reports.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "lender-matching/internal/common/errors"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/validation"
	"lender-matching/internal/eligibility"
	"lender-matching/internal/models"
	"lender-matching/internal/store"
)

type LenderProvider interface {
	ListWithCriteria(ctx context.Context, limit int) ([]models.LenderWithCriteria, error)
}

type ApplicationProvider interface {
	Create(ctx context.Context, snapshot models.ApplicationSnapshot) (*models.LoanApplication, error)
	GetSnapshot(ctx context.Context, id string) (*models.ApplicationSnapshot, error)
	UpdateStatus(ctx context.Context, id, status string) error
	List(ctx context.Context, skip, limit int) ([]models.LoanApplication, error)
}

type ReportRepository interface {
	Save(ctx context.Context, report *eligibility.EligibilityReport) (string, error)
	Latest(ctx context.Context, applicationID string) (*eligibility.EligibilityReport, error)
}

type ReportSearch interface {
	Index(ctx context.Context, doc store.ReportDocument) error
	MatchesForLender(ctx context.Context, lenderID string, size int) ([]store.ApplicationMatch, error)
}

type Coordinator interface {
	Evaluate(ctx context.Context, applicationID string, app *models.ApplicationSnapshot, lenders []eligibility.Lender) (*eligibility.EligibilityReport, error)
}

type Config struct {
	LenderListLimit int
}

type Service struct {
	config       Config
	lenders      LenderProvider
	applications ApplicationProvider
	reports      ReportRepository
	search       ReportSearch
	coordinator  Coordinator
	logger       logger.Logger
}

// NewService wires the use case. search may be nil, in which case reports
// are not indexed and lender match lookups fail.
func NewService(cfg Config, lenders LenderProvider, applications ApplicationProvider, reports ReportRepository,
	search ReportSearch, coordinator Coordinator, log logger.Logger) *Service {
	return &Service{
		config:       cfg,
		lenders:      lenders,
		applications: applications,
		reports:      reports,
		search:       search,
		coordinator:  coordinator,
		logger:       log.WithFields(map[string]interface{}{"component": "evaluation_service"}),
	}
}

// SubmitResult is a newly stored application and its first report.
type SubmitResult struct {
	Application *models.LoanApplication        `json:"application"`
	Report      *eligibility.EligibilityReport `json:"report"`
}

// SubmitApplication validates and stores a new application, then evaluates
// it. When the evaluation fails the stored application is still returned.
func (s *Service) SubmitApplication(ctx context.Context, snapshot models.ApplicationSnapshot) (*SubmitResult, error) {
	if err := ValidateSnapshot(snapshot); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	app, err := s.applications.Create(ctx, snapshot)
	if err != nil {
		return nil, apperrors.NewDatabaseInsertFailedError("create_application", err)
	}

	report, err := s.evaluate(ctx, app.ID, &app.ApplicationSnapshot)
	if err != nil {
		return &SubmitResult{Application: app}, err
	}
	app.Status = models.ApplicationStatusEvaluated
	return &SubmitResult{Application: app, Report: report}, nil
}

// EvaluateApplication (re)evaluates a stored application against every lender.
func (s *Service) EvaluateApplication(ctx context.Context, applicationID string) (*eligibility.EligibilityReport, error) {
	if applicationID == "" {
		return nil, apperrors.NewInvalidInputError("application_id is required")
	}

	snapshot, err := s.ApplicationSnapshot(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, applicationID, snapshot)
}

// ApplicationSnapshot loads the submitted facts of a stored application.
func (s *Service) ApplicationSnapshot(ctx context.Context, applicationID string) (*models.ApplicationSnapshot, error) {
	snapshot, err := s.applications.GetSnapshot(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewApplicationNotFoundError(applicationID, err)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("get_application", err)
	}
	return snapshot, nil
}

func (s *Service) evaluate(ctx context.Context, applicationID string, snapshot *models.ApplicationSnapshot) (*eligibility.EligibilityReport, error) {
	stored, err := s.lenders.ListWithCriteria(ctx, s.config.LenderListLimit)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list_lenders", err)
	}
	lenders := make([]eligibility.Lender, len(stored))
	for i, l := range stored {
		lenders[i] = eligibility.FromModel(l)
	}

	report, err := s.coordinator.Evaluate(ctx, applicationID, snapshot, lenders)
	if err != nil {
		return nil, mapCoordinatorError(err)
	}

	// The report is returned even when bookkeeping fails; a later
	// re-evaluation rewrites it.
	reportID, err := s.reports.Save(ctx, report)
	if err != nil {
		s.logger.Error("Failed to save eligibility report", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	} else if s.search != nil {
		doc := store.NewReportDocument(reportID, snapshot.BusinessInfo.BusinessName, snapshot.ContactInfo.State, report)
		if err := s.search.Index(ctx, doc); err != nil {
			s.logger.Warn("Failed to index eligibility report", map[string]interface{}{
				"applicationId": applicationID,
				"reportId":      reportID,
				"error":         err.Error(),
			})
		}
	}

	if err := s.applications.UpdateStatus(ctx, applicationID, models.ApplicationStatusEvaluated); err != nil {
		s.logger.Warn("Failed to mark application evaluated", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	}
	return report, nil
}

func mapCoordinatorError(err error) error {
	switch {
	case errors.Is(err, eligibility.ErrNoLenders):
		return apperrors.NewNoLendersError(err)
	case errors.Is(err, eligibility.ErrMissingApplicationData):
		return apperrors.NewInvalidInputError(err.Error())
	default:
		return apperrors.NewInternalError(err)
	}
}

// LatestReport returns the newest stored report for an application.
func (s *Service) LatestReport(ctx context.Context, applicationID string) (*eligibility.EligibilityReport, error) {
	report, err := s.reports.Latest(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewReportNotFoundError(applicationID, err)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("latest_report", err)
	}
	return report, nil
}

func (s *Service) ListApplications(ctx context.Context, skip, limit int) ([]models.LoanApplication, error) {
	apps, err := s.applications.List(ctx, skip, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list_applications", err)
	}
	return apps, nil
}

func (s *Service) ListLenders(ctx context.Context) ([]models.LenderWithCriteria, error) {
	lenders, err := s.lenders.ListWithCriteria(ctx, s.config.LenderListLimit)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list_lenders", err)
	}
	return lenders, nil
}

func (s *Service) MatchesForLender(ctx context.Context, lenderID string, size int) ([]store.ApplicationMatch, error) {
	if s.search == nil {
		return nil, apperrors.NewSearchIndexFailedError(errors.New("report search is not configured"))
	}
	matches, err := s.search.MatchesForLender(ctx, lenderID, size)
	if err != nil {
		return nil, apperrors.NewSearchIndexFailedError(err)
	}
	return matches, nil
}

var snapshotSchema = validation.MustCompile("application", map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"business_info", "credit_info", "loan_details", "contact_info"},
	"properties": map[string]interface{}{
		"business_info": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"business_name"},
			"properties": map[string]interface{}{
				"business_name":     map[string]interface{}{"type": "string", "minLength": 1},
				"years_in_business": map[string]interface{}{"type": "number", "minimum": 0},
				"annual_revenue":    map[string]interface{}{"type": "number", "minimum": 0},
			},
		},
		"credit_info": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fico_score":   map[string]interface{}{"type": "integer", "minimum": 300, "maximum": 850},
				"paynet_score": map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 999},
			},
		},
		"loan_details": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"requested_amount": map[string]interface{}{"type": "number", "minimum": 1},
				"down_payment":     map[string]interface{}{"type": "number", "minimum": 0},
				"loan_term_months": map[string]interface{}{"type": "integer", "minimum": 1},
			},
		},
		"contact_info": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"email": map[string]interface{}{"type": "string", "pattern": `^$|^[^@\s]+@[^@\s]+\.[^@\s]+$`},
				"state": map[string]interface{}{"type": "string", "pattern": "^[A-Z]{2}$"},
			},
		},
	},
})

// ValidateSnapshot checks the submitted facts are usable for evaluation.
func ValidateSnapshot(snapshot models.ApplicationSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	return snapshotSchema.Validate(doc).Err(snapshotSchema.Name())
}
