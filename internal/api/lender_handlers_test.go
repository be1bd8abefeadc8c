package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apperrors "lender-matching/internal/common/errors"
	"lender-matching/internal/models"
	"lender-matching/internal/services/lenders"
)

// ==========================
// Mocks
// ==========================

type MockLenders struct{ mock.Mock }

func (m *MockLenders) CreateLender(ctx context.Context, req lenders.CreateLenderRequest) (*models.Lender, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*models.Lender)
	return res, args.Error(1)
}

func (m *MockLenders) SearchLenders(ctx context.Context, q string, limit int) ([]models.Lender, error) {
	args := m.Called(ctx, q, limit)
	res, _ := args.Get(0).([]models.Lender)
	return res, args.Error(1)
}

func (m *MockLenders) GetLender(ctx context.Context, id string) (*models.LenderWithCriteria, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.LenderWithCriteria)
	return res, args.Error(1)
}

func (m *MockLenders) UpdateLender(ctx context.Context, id string, upd models.LenderUpdate) (*models.Lender, error) {
	args := m.Called(ctx, id, upd)
	res, _ := args.Get(0).(*models.Lender)
	return res, args.Error(1)
}

func (m *MockLenders) DeleteLender(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLenders) ListCriteria(ctx context.Context, lenderID, category string) ([]models.Criterion, error) {
	args := m.Called(ctx, lenderID, category)
	res, _ := args.Get(0).([]models.Criterion)
	return res, args.Error(1)
}

func (m *MockLenders) CreateCriterion(ctx context.Context, lenderID string, req lenders.CreateCriterionRequest) (*models.Criterion, error) {
	args := m.Called(ctx, lenderID, req)
	res, _ := args.Get(0).(*models.Criterion)
	return res, args.Error(1)
}

func (m *MockLenders) UpdateCriterion(ctx context.Context, id string, upd models.CriterionUpdate) (*models.Criterion, error) {
	args := m.Called(ctx, id, upd)
	res, _ := args.Get(0).(*models.Criterion)
	return res, args.Error(1)
}

func (m *MockLenders) DeleteCriterion(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// ==========================
// Lender Management
// ==========================

func TestCreateLender(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("CreateLender", mock.Anything, mock.MatchedBy(func(req lenders.CreateLenderRequest) bool {
		return req.Name == "Stearns Bank" && *req.Contact.Email == "pat@stearns.test"
	})).Return(&models.Lender{ID: "l-9", Name: "Stearns Bank"}, nil)

	resp, body := f.do(t, http.MethodPost, "/api/lenders", "application/json",
		[]byte(`{"name":"Stearns Bank","contact":{"email":"pat@stearns.test"}}`))

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "l-9", body["id"])
}

func TestSearchLenders(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("SearchLenders", mock.Anything, "stearns", 5).Return(nil, nil)

	resp, body := f.do(t, http.MethodGet, "/api/lenders/search?q=stearns&limit=5", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{}, body["items"])
	f.evaluation.AssertNotCalled(t, "MatchesForLender", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetLender(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("GetLender", mock.Anything, "l-9").Return(&models.LenderWithCriteria{
		Lender:   models.Lender{ID: "l-9", Name: "Stearns Bank"},
		Criteria: []models.Criterion{{ID: "c-1", Key: "min_fico_score", Value: 680.0}},
	}, nil)

	resp, body := f.do(t, http.MethodGet, "/api/lenders/l-9", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Stearns Bank", body["name"])
	assert.Len(t, body["criteria"], 1)
}

func TestLenderNotFound_Returns404(t *testing.T) {
	notFound := apperrors.NewLenderNotFoundError("l-404", nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		setup  func(m *MockLenders)
	}{
		{
			name:   "get",
			method: http.MethodGet,
			path:   "/api/lenders/l-404",
			setup:  func(m *MockLenders) { m.On("GetLender", mock.Anything, "l-404").Return(nil, notFound) },
		},
		{
			name:   "update",
			method: http.MethodPut,
			path:   "/api/lenders/l-404",
			body:   []byte(`{"name":"Renamed"}`),
			setup: func(m *MockLenders) {
				m.On("UpdateLender", mock.Anything, "l-404", mock.Anything).Return(nil, notFound)
			},
		},
		{
			name:   "delete",
			method: http.MethodDelete,
			path:   "/api/lenders/l-404",
			setup:  func(m *MockLenders) { m.On("DeleteLender", mock.Anything, "l-404").Return(notFound) },
		},
		{
			name:   "add criterion",
			method: http.MethodPost,
			path:   "/api/lenders/l-404/criteria",
			body:   []byte(`{"criteria_key":"k","display_name":"K"}`),
			setup: func(m *MockLenders) {
				m.On("CreateCriterion", mock.Anything, "l-404", mock.Anything).Return(nil, notFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.setup(f.lenders)

			resp, body := f.do(t, tt.method, tt.path, "application/json", tt.body)

			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Equal(t, string(apperrors.ErrCodeLenderNotFound), errorCode(body))
		})
	}
}

func TestUpdateLender_PartialBody(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("UpdateLender", mock.Anything, "l-9", mock.MatchedBy(func(u models.LenderUpdate) bool {
		return u.Name == nil && u.BusinessModel != nil && *u.BusinessModel.IsBroker
	})).Return(&models.Lender{ID: "l-9", Name: "Stearns Bank"}, nil)

	resp, _ := f.do(t, http.MethodPut, "/api/lenders/l-9", "application/json",
		[]byte(`{"business_model":{"is_broker":true}}`))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeleteLender(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("DeleteLender", mock.Anything, "l-9").Return(nil)

	resp, body := f.do(t, http.MethodDelete, "/api/lenders/l-9", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Lender deleted successfully", body["message"])
}

// ==========================
// Criteria Management
// ==========================

func TestListCriteria_CategoryFilter(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("ListCriteria", mock.Anything, "l-9", "credit").Return([]models.Criterion{{ID: "c-1"}}, nil)

	resp, body := f.do(t, http.MethodGet, "/api/lenders/l-9/criteria?category=credit", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)
}

func TestCreateCriterion(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("CreateCriterion", mock.Anything, "l-9", mock.MatchedBy(func(req lenders.CreateCriterionRequest) bool {
		return req.Key == "excluded_states" && req.Required != nil && !*req.Required
	})).Return(&models.Criterion{ID: "c-2", LenderID: "l-9", Key: "excluded_states"}, nil)

	resp, body := f.do(t, http.MethodPost, "/api/lenders/l-9/criteria", "application/json",
		[]byte(`{"criteria_key":"excluded_states","criteria_value":["CA"],"display_name":"Excluded States","is_required":false}`))

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "c-2", body["id"])
}

func TestUpdateCriterion_KeepsRawValue(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("UpdateCriterion", mock.Anything, "c-1", mock.MatchedBy(func(u models.CriterionUpdate) bool {
		return string(u.Value) == `["CA","NV"]` && u.Key == nil
	})).Return(&models.Criterion{ID: "c-1"}, nil)

	resp, _ := f.do(t, http.MethodPut, "/api/criteria/c-1", "application/json", []byte(`{"criteria_value":["CA","NV"]}`))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCriterionNotFound_Returns404(t *testing.T) {
	f := newFixture(t, nil)
	f.lenders.On("DeleteCriterion", mock.Anything, "c-404").Return(apperrors.NewCriterionNotFoundError("c-404", nil))

	resp, body := f.do(t, http.MethodDelete, "/api/criteria/c-404", "", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(apperrors.ErrCodeCriterionNotFound), errorCode(body))
}
