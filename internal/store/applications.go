package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lender-matching/internal/common/logger"
	"lender-matching/internal/models"
)

const (
	snapshotKeyPrefix = "application:snapshot:"
	defaultListLimit  = 50
	maxListLimit      = 500
)

// ApplicationStore is the application data provider. Snapshots are
// immutable once submitted, so reads go through a Redis cache.
type ApplicationStore struct {
	db       *sql.DB
	cache    redis.Cmdable
	cacheTTL time.Duration
	logger   logger.Logger
}

// NewApplicationStore builds the store; a nil cache disables caching.
func NewApplicationStore(db *sql.DB, cache redis.Cmdable, cacheTTL time.Duration, log logger.Logger) *ApplicationStore {
	return &ApplicationStore{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "application_store"}),
	}
}

func snapshotKey(id string) string {
	return snapshotKeyPrefix + id
}

// Create persists a new pending application.
func (s *ApplicationStore) Create(ctx context.Context, snapshot models.ApplicationSnapshot) (*models.LoanApplication, error) {
	app := &models.LoanApplication{
		ID:                  uuid.NewString(),
		ApplicationSnapshot: snapshot,
		Status:              models.ApplicationStatusPending,
	}

	cols, err := marshalSnapshot(snapshot)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO loan_applications (id, business_info, credit_info, loan_details,
			equipment_info, contact_info, additional_notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		app.ID, cols[0], cols[1], cols[2], cols[3], cols[4], snapshot.AdditionalNotes, app.Status,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert application: %w", classify(err))
	}

	s.cacheSnapshot(ctx, app.ID, &snapshot)
	s.logger.Info("Application created", map[string]interface{}{"applicationId": app.ID})
	return app, nil
}

// GetSnapshot returns the application facts, or ErrNotFound.
func (s *ApplicationStore) GetSnapshot(ctx context.Context, id string) (*models.ApplicationSnapshot, error) {
	if snap, ok := s.cachedSnapshot(ctx, id); ok {
		return snap, nil
	}

	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, id, &app.ApplicationSnapshot)
	return &app.ApplicationSnapshot, nil
}

// Get loads the full application row, bypassing the cache.
func (s *ApplicationStore) Get(ctx context.Context, id string) (*models.LoanApplication, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_info, credit_info, loan_details, equipment_info,
			contact_info, additional_notes, status, created_at, updated_at
		FROM loan_applications
		WHERE id = $1`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

// UpdateStatus moves an application through its lifecycle.
func (s *ApplicationStore) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List pages through applications newest first.
func (s *ApplicationStore) List(ctx context.Context, skip, limit int) ([]models.LoanApplication, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if skip < 0 {
		skip = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_info, credit_info, loan_details, equipment_info,
			contact_info, additional_notes, status, created_at, updated_at
		FROM loan_applications
		ORDER BY created_at DESC
		OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	apps := []models.LoanApplication{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

func (s *ApplicationStore) cachedSnapshot(ctx context.Context, id string) (*models.ApplicationSnapshot, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Snapshot cache read failed", map[string]interface{}{"applicationId": id, "error": err.Error()})
		}
		return nil, false
	}
	var snap models.ApplicationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("Discarding undecodable cached snapshot", map[string]interface{}{"applicationId": id})
		return nil, false
	}
	return &snap, true
}

func (s *ApplicationStore) cacheSnapshot(ctx context.Context, id string, snap *models.ApplicationSnapshot) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotKey(id), data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("Snapshot cache write failed", map[string]interface{}{"applicationId": id, "error": err.Error()})
	}
}

func marshalSnapshot(s models.ApplicationSnapshot) ([5][]byte, error) {
	var out [5][]byte
	for i, v := range []interface{}{s.BusinessInfo, s.CreditInfo, s.LoanDetails, s.EquipmentInfo, s.ContactInfo} {
		b, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("marshal application: %w", err)
		}
		out[i] = b
	}
	return out, nil
}

func scanApplication(row rowScanner) (*models.LoanApplication, error) {
	var (
		app                                    models.LoanApplication
		business, credit, loan, equip, contact []byte
		notes                                  sql.NullString
	)
	if err := row.Scan(&app.ID, &business, &credit, &loan, &equip, &contact,
		&notes, &app.Status, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}
	targets := []struct {
		raw []byte
		v   interface{}
	}{
		{business, &app.BusinessInfo},
		{credit, &app.CreditInfo},
		{loan, &app.LoanDetails},
		{equip, &app.EquipmentInfo},
		{contact, &app.ContactInfo},
	}
	for _, t := range targets {
		if err := unmarshalOptional(t.raw, t.v); err != nil {
			return nil, fmt.Errorf("decode application: %w", err)
		}
	}
	if notes.Valid {
		app.AdditionalNotes = &notes.String
	}
	return &app, nil
}
