package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lender-matching/internal/common/logger"
	"lender-matching/internal/eligibility"
)

// ReportStore keeps every eligibility report produced for an application.
type ReportStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewReportStore(db *sql.DB, log logger.Logger) *ReportStore {
	return &ReportStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "report_store"}),
	}
}

// Save stores a report and returns its id.
func (s *ReportStore) Save(ctx context.Context, report *eligibility.EligibilityReport) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO eligibility_reports (id, application_id, report, matched_count,
			unmatched_count, total_lenders_evaluated, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, report.ApplicationID, body, len(report.MatchedLenders),
		len(report.UnmatchedLenders), report.TotalLendersEvaluated, report.AnalysisTimestamp,
	)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", classify(err))
	}

	s.logger.Debug("Report saved", map[string]interface{}{"reportId": id, "applicationId": report.ApplicationID})
	return id, nil
}

// Latest returns the most recent report for an application, or ErrNotFound.
func (s *ReportStore) Latest(ctx context.Context, applicationID string) (*eligibility.EligibilityReport, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT report
		FROM eligibility_reports
		WHERE application_id = $1
		ORDER BY analyzed_at DESC
		LIMIT 1`, applicationID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}

	var report eligibility.EligibilityReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
