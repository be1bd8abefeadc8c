// Package lenders manages lender records and their eligibility criteria.
package lenders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	apperrors "lender-matching/internal/common/errors"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/validation"
	"lender-matching/internal/models"
	"lender-matching/internal/store"
)

const (
	defaultSearchLimit  = 50
	maxSearchLimit      = 200
	defaultCriteriaType = "string"
)

type Store interface {
	SearchLenders(ctx context.Context, q string, limit int) ([]models.Lender, error)
	GetLender(ctx context.Context, id string) (*models.LenderWithCriteria, error)
	CreateLender(ctx context.Context, l *models.Lender) error
	UpdateLender(ctx context.Context, id string, upd models.LenderUpdate) (*models.Lender, error)
	DeleteLender(ctx context.Context, id string) error
	ListCriteria(ctx context.Context, lenderID, category string) ([]models.Criterion, error)
	CreateCriterion(ctx context.Context, c *models.Criterion) error
	UpdateCriterion(ctx context.Context, id string, upd models.CriterionUpdate) (*models.Criterion, error)
	DeleteCriterion(ctx context.Context, id string) error
}

type CreateLenderRequest struct {
	Name          string                      `json:"name"`
	Contact       *models.LenderContact       `json:"contact,omitempty"`
	BusinessModel *models.LenderBusinessModel `json:"business_model,omitempty"`
}

// CreateCriterionRequest adds a criterion to a lender. Type defaults to
// "string" and Required to true.
type CreateCriterionRequest struct {
	Key         string      `json:"criteria_key"`
	Value       interface{} `json:"criteria_value"`
	Type        *string     `json:"criteria_type,omitempty"`
	DisplayName string      `json:"display_name"`
	Description *string     `json:"description,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Required    *bool       `json:"is_required,omitempty"`
}

type Service struct {
	store  Store
	logger logger.Logger
}

func NewService(st Store, log logger.Logger) *Service {
	return &Service{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "lender_service"}),
	}
}

var nonEmptyString = map[string]interface{}{"type": "string", "pattern": `\S`}

var createLenderSchema = validation.MustCompile("lender", map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"name"},
	"properties": map[string]interface{}{
		"name":           nonEmptyString,
		"contact":        map[string]interface{}{"type": "object"},
		"business_model": map[string]interface{}{"type": "object"},
	},
})

var updateLenderSchema = validation.MustCompile("lender_update", map[string]interface{}{
	"type":          "object",
	"minProperties": 1,
	"properties": map[string]interface{}{
		"name":           nonEmptyString,
		"contact":        map[string]interface{}{"type": "object"},
		"business_model": map[string]interface{}{"type": "object"},
	},
})

var createCriterionSchema = validation.MustCompile("criterion", map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"criteria_key", "display_name"},
	"properties": map[string]interface{}{
		"criteria_key":  nonEmptyString,
		"display_name":  nonEmptyString,
		"criteria_type": nonEmptyString,
	},
})

var updateCriterionSchema = validation.MustCompile("criterion_update", map[string]interface{}{
	"type":          "object",
	"minProperties": 1,
	"properties": map[string]interface{}{
		"criteria_key":  nonEmptyString,
		"display_name":  nonEmptyString,
		"criteria_type": nonEmptyString,
	},
})

func validate(schema *validation.Schema, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("encode %s: %v", schema.Name(), err))
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("encode %s: %v", schema.Name(), err))
	}
	if err := schema.Validate(doc).Err(schema.Name()); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	return nil
}

// Lender ids are UUIDs; anything else cannot name a stored lender.
func checkLenderID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewLenderNotFoundError(id, err)
	}
	return nil
}

func checkCriterionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewCriterionNotFoundError(id, err)
	}
	return nil
}

func (s *Service) CreateLender(ctx context.Context, req CreateLenderRequest) (*models.Lender, error) {
	if err := validate(createLenderSchema, req); err != nil {
		return nil, err
	}
	l := &models.Lender{
		Name:          strings.TrimSpace(req.Name),
		Contact:       req.Contact,
		BusinessModel: req.BusinessModel,
	}
	if err := s.store.CreateLender(ctx, l); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("lender %q already exists", l.Name))
		}
		return nil, apperrors.NewDatabaseInsertFailedError("create_lender", err)
	}
	return l, nil
}

// SearchLenders matches names containing q. An empty q is rejected.
func (s *Service) SearchLenders(ctx context.Context, q string, limit int) ([]models.Lender, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperrors.NewInvalidInputError("q is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	lenders, err := s.store.SearchLenders(ctx, q, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("search_lenders", err)
	}
	return lenders, nil
}

func (s *Service) GetLender(ctx context.Context, id string) (*models.LenderWithCriteria, error) {
	if err := checkLenderID(id); err != nil {
		return nil, err
	}
	l, err := s.store.GetLender(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewLenderNotFoundError(id, err)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("get_lender", err)
	}
	return l, nil
}

// UpdateLender changes only the fields present in upd.
func (s *Service) UpdateLender(ctx context.Context, id string, upd models.LenderUpdate) (*models.Lender, error) {
	if err := checkLenderID(id); err != nil {
		return nil, err
	}
	if err := validate(updateLenderSchema, upd); err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		upd.Name = &name
	}

	l, err := s.store.UpdateLender(ctx, id, upd)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperrors.NewLenderNotFoundError(id, err)
	case errors.Is(err, store.ErrDuplicate):
		return nil, apperrors.NewInvalidInputError("another lender already has this name")
	case err != nil:
		return nil, apperrors.NewDatabaseQueryFailedError("update_lender", err)
	}
	return l, nil
}

// DeleteLender removes a lender together with its criteria.
func (s *Service) DeleteLender(ctx context.Context, id string) error {
	if err := checkLenderID(id); err != nil {
		return err
	}
	err := s.store.DeleteLender(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NewLenderNotFoundError(id, err)
	}
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("delete_lender", err)
	}
	s.logger.Info("Lender deleted", map[string]interface{}{"lenderId": id})
	return nil
}

func (s *Service) ListCriteria(ctx context.Context, lenderID, category string) ([]models.Criterion, error) {
	if err := checkLenderID(lenderID); err != nil {
		return nil, err
	}
	criteria, err := s.store.ListCriteria(ctx, lenderID, strings.TrimSpace(category))
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list_criteria", err)
	}
	return criteria, nil
}

func (s *Service) CreateCriterion(ctx context.Context, lenderID string, req CreateCriterionRequest) (*models.Criterion, error) {
	if err := checkLenderID(lenderID); err != nil {
		return nil, err
	}
	if err := validate(createCriterionSchema, req); err != nil {
		return nil, err
	}

	c := &models.Criterion{
		LenderID:    lenderID,
		Key:         strings.TrimSpace(req.Key),
		Value:       req.Value,
		Type:        defaultCriteriaType,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Description: req.Description,
		Category:    req.Category,
		Required:    true,
	}
	if req.Type != nil {
		c.Type = *req.Type
	}
	if req.Required != nil {
		c.Required = *req.Required
	}

	if err := s.store.CreateCriterion(ctx, c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewLenderNotFoundError(lenderID, err)
		}
		return nil, apperrors.NewDatabaseInsertFailedError("create_criterion", err)
	}
	return c, nil
}

func (s *Service) UpdateCriterion(ctx context.Context, id string, upd models.CriterionUpdate) (*models.Criterion, error) {
	if err := checkCriterionID(id); err != nil {
		return nil, err
	}
	if err := validate(updateCriterionSchema, upd); err != nil {
		return nil, err
	}
	c, err := s.store.UpdateCriterion(ctx, id, upd)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewCriterionNotFoundError(id, err)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("update_criterion", err)
	}
	return c, nil
}

func (s *Service) DeleteCriterion(ctx context.Context, id string) error {
	if err := checkCriterionID(id); err != nil {
		return err
	}
	err := s.store.DeleteCriterion(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NewCriterionNotFoundError(id, err)
	}
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("delete_criterion", err)
	}
	s.logger.Info("Criterion deleted", map[string]interface{}{"criterionId": id})
	return nil
}
