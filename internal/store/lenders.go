package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lender-matching/internal/common/logger"
	"lender-matching/internal/models"
)

// LenderStore is the lender and criteria provider.
type LenderStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLenderStore(db *sql.DB, log logger.Logger) *LenderStore {
	return &LenderStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "lender_store"}),
	}
}

const lenderColumns = `id, name, contact, business_model, created_at, updated_at`

const criterionColumns = `id, lender_id, criteria_key, criteria_value, criteria_type,
		display_name, description, category, is_required, created_at, updated_at`

// ListWithCriteria returns up to limit lenders, newest first, each with its
// criteria ordered by category.
func (s *LenderStore) ListWithCriteria(ctx context.Context, limit int) ([]models.LenderWithCriteria, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lenderColumns+`
		FROM lenders
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list lenders: %w", err)
	}
	defer rows.Close()

	var lenders []models.LenderWithCriteria
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		l, err := scanLender(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lender: %w", err)
		}
		index[l.ID] = len(lenders)
		ids = append(ids, l.ID)
		lenders = append(lenders, models.LenderWithCriteria{Lender: *l, Criteria: []models.Criterion{}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lenders: %w", err)
	}
	if len(lenders) == 0 {
		return lenders, nil
	}

	crows, err := s.db.QueryContext(ctx, `
		SELECT `+criterionColumns+`
		FROM criteria
		WHERE lender_id = ANY($1)
		ORDER BY lender_id, category, created_at`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	defer crows.Close()

	count := 0
	for crows.Next() {
		c, err := scanCriterion(crows)
		if err != nil {
			return nil, fmt.Errorf("scan criterion: %w", err)
		}
		if i, ok := index[c.LenderID]; ok {
			lenders[i].Criteria = append(lenders[i].Criteria, *c)
			count++
		}
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}

	s.logger.Debug("Loaded lenders with criteria", map[string]interface{}{
		"lenders":    len(lenders),
		"criteria":   count,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return lenders, nil
}

// GetLender returns one lender and its criteria, or ErrNotFound.
func (s *LenderStore) GetLender(ctx context.Context, id string) (*models.LenderWithCriteria, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lenderColumns+` FROM lenders WHERE id = $1`, id)
	l, err := scanLender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lender: %w", err)
	}

	criteria, err := s.ListCriteria(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return &models.LenderWithCriteria{Lender: *l, Criteria: criteria}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchLenders matches lender names case-insensitively against q.
func (s *LenderStore) SearchLenders(ctx context.Context, q string, limit int) ([]models.Lender, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lenderColumns+`
		FROM lenders
		WHERE name ILIKE $1
		ORDER BY name
		LIMIT $2`, "%"+likeEscaper.Replace(q)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search lenders: %w", err)
	}
	return collectLenders(rows)
}

func collectLenders(rows *sql.Rows) ([]models.Lender, error) {
	defer rows.Close()
	out := []models.Lender{}
	for rows.Next() {
		l, err := scanLender(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lender: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ListCriteria returns a lender's criteria ordered by category, optionally
// restricted to one category.
func (s *LenderStore) ListCriteria(ctx context.Context, lenderID, category string) ([]models.Criterion, error) {
	query := `SELECT ` + criterionColumns + ` FROM criteria WHERE lender_id = $1`
	args := []interface{}{lenderID}
	if category != "" {
		query += ` AND category = $2`
		args = append(args, category)
	}
	query += ` ORDER BY category, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get criteria: %w", err)
	}
	defer rows.Close()

	out := []models.Criterion{}
	for rows.Next() {
		c, err := scanCriterion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan criterion: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateLender inserts l, assigning an id when it has none. A duplicate
// name yields ErrDuplicate.
func (s *LenderStore) CreateLender(ctx context.Context, l *models.Lender) error {
	if err := insertLender(ctx, s.db, l); err != nil {
		return err
	}
	s.logger.Info("Lender created", map[string]interface{}{"lenderId": l.ID, "name": l.Name})
	return nil
}

// CreateLenderWithCriteria inserts l and its criteria in one transaction.
// Nothing is written when any insert fails.
func (s *LenderStore) CreateLenderWithCriteria(ctx context.Context, l *models.Lender, criteria []models.Criterion) ([]models.Criterion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertLender(ctx, tx, l); err != nil {
		return nil, err
	}
	saved, err := insertCriteria(ctx, tx, l.ID, criteria)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("Lender created", map[string]interface{}{
		"lenderId": l.ID,
		"name":     l.Name,
		"criteria": len(saved),
	})
	return saved, nil
}

func insertLender(ctx context.Context, q queryRower, l *models.Lender) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	contact, err := marshalJSON(l.Contact)
	if err != nil {
		return err
	}
	businessModel, err := marshalJSON(l.BusinessModel)
	if err != nil {
		return err
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO lenders (id, name, contact, business_model)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		l.ID, l.Name, contact, businessModel,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert lender: %w", classify(err))
	}
	return nil
}

const insertCriterionSQL = `
	INSERT INTO criteria (id, lender_id, criteria_key, criteria_value, criteria_type,
		display_name, description, category, is_required)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING created_at, updated_at`

func insertCriteria(ctx context.Context, tx *sql.Tx, lenderID string, criteria []models.Criterion) ([]models.Criterion, error) {
	out := make([]models.Criterion, len(criteria))
	if len(criteria) == 0 {
		return out, nil
	}

	stmt, err := tx.PrepareContext(ctx, insertCriterionSQL)
	if err != nil {
		return nil, fmt.Errorf("prepare criteria insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range criteria {
		c.LenderID = lenderID
		if err := insertCriterion(ctx, stmt, &c); err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

type stmtQueryRower interface {
	QueryRowContext(ctx context.Context, args ...interface{}) *sql.Row
}

func insertCriterion(ctx context.Context, stmt stmtQueryRower, c *models.Criterion) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	value, err := json.Marshal(c.Value)
	if err != nil {
		return fmt.Errorf("marshal criterion %s: %w", c.Key, err)
	}
	if err := stmt.QueryRowContext(ctx,
		c.ID, c.LenderID, c.Key, value, c.Type,
		c.DisplayName, c.Description, c.Category, c.Required,
	).Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert criterion %s: %w", c.Key, classify(err))
	}
	return nil
}

// CreateCriterion adds one criterion to an existing lender. An unknown
// lender yields ErrNotFound.
func (s *LenderStore) CreateCriterion(ctx context.Context, c *models.Criterion) error {
	stmt, err := s.db.PrepareContext(ctx, insertCriterionSQL)
	if err != nil {
		return fmt.Errorf("prepare criteria insert: %w", err)
	}
	defer stmt.Close()

	if err := insertCriterion(ctx, stmt, c); err != nil {
		return err
	}
	s.logger.Info("Criterion created", map[string]interface{}{"criterionId": c.ID, "lenderId": c.LenderID, "key": c.Key})
	return nil
}

// UpdateLender applies the non-nil fields of upd and returns the stored row.
func (s *LenderStore) UpdateLender(ctx context.Context, id string, upd models.LenderUpdate) (*models.Lender, error) {
	contact, err := optionalJSON(upd.Contact != nil, upd.Contact)
	if err != nil {
		return nil, err
	}
	businessModel, err := optionalJSON(upd.BusinessModel != nil, upd.BusinessModel)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE lenders SET
			name = COALESCE($2, name),
			contact = COALESCE($3::jsonb, contact),
			business_model = COALESCE($4::jsonb, business_model),
			updated_at = now()
		WHERE id = $1
		RETURNING `+lenderColumns,
		id, upd.Name, contact, businessModel)
	l, err := scanLender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update lender: %w", classify(err))
	}

	s.logger.Info("Lender updated", map[string]interface{}{"lenderId": id})
	return l, nil
}

// DeleteLender removes a lender; its criteria go with it.
func (s *LenderStore) DeleteLender(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "lenders", id)
}

// UpdateCriterion applies the non-nil fields of upd and returns the stored row.
func (s *LenderStore) UpdateCriterion(ctx context.Context, id string, upd models.CriterionUpdate) (*models.Criterion, error) {
	var value interface{}
	if len(upd.Value) > 0 {
		value = []byte(upd.Value)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE criteria SET
			criteria_key = COALESCE($2, criteria_key),
			criteria_value = COALESCE($3::jsonb, criteria_value),
			criteria_type = COALESCE($4, criteria_type),
			display_name = COALESCE($5, display_name),
			description = COALESCE($6, description),
			category = COALESCE($7, category),
			is_required = COALESCE($8, is_required),
			updated_at = now()
		WHERE id = $1
		RETURNING `+criterionColumns,
		id, upd.Key, value, upd.Type, upd.DisplayName, upd.Description, upd.Category, upd.Required)
	c, err := scanCriterion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update criterion: %w", err)
	}

	s.logger.Info("Criterion updated", map[string]interface{}{"criterionId": id})
	return c, nil
}

// DeleteCriterion removes one criterion.
func (s *LenderStore) DeleteCriterion(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "criteria", id)
}

func (s *LenderStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// optionalJSON marshals v when set, else returns a nil driver value so
// COALESCE keeps the stored column.
func optionalJSON(set bool, v interface{}) (interface{}, error) {
	if !set {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLender(row rowScanner) (*models.Lender, error) {
	var (
		l                      models.Lender
		contact, businessModel []byte
	)
	if err := row.Scan(&l.ID, &l.Name, &contact, &businessModel, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	var c models.LenderContact
	if err := unmarshalOptional(contact, &c); err != nil {
		return nil, fmt.Errorf("decode contact: %w", err)
	}
	l.Contact = &c
	var bm models.LenderBusinessModel
	if err := unmarshalOptional(businessModel, &bm); err != nil {
		return nil, fmt.Errorf("decode business model: %w", err)
	}
	l.BusinessModel = &bm
	return &l, nil
}

func scanCriterion(row rowScanner) (*models.Criterion, error) {
	var (
		c           models.Criterion
		value       []byte
		description sql.NullString
		category    sql.NullString
	)
	if err := row.Scan(&c.ID, &c.LenderID, &c.Key, &value, &c.Type,
		&c.DisplayName, &description, &category, &c.Required, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(value, &c.Value); err != nil {
		return nil, fmt.Errorf("decode criteria_value: %w", err)
	}
	if description.Valid {
		c.Description = &description.String
	}
	if category.Valid {
		c.Category = &category.String
	}
	return &c, nil
}
