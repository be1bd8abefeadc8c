package extraction

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "lender-matching/internal/common/errors"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/models"
	"lender-matching/internal/oracle"
	"lender-matching/internal/store"
)

// ==========================
// Mocks
// ==========================

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) GenerateExtraction(ctx context.Context, doc []byte, mimeType, prompt string) (string, error) {
	args := m.Called(ctx, doc, mimeType, prompt)
	return args.String(0), args.Error(1)
}

type MockLenderWriter struct{ mock.Mock }

func (m *MockLenderWriter) CreateLenderWithCriteria(ctx context.Context, l *models.Lender, criteria []models.Criterion) ([]models.Criterion, error) {
	args := m.Called(ctx, l, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	l.ID = "l-new"
	return args.Get(0).([]models.Criterion), args.Error(1)
}

var pdfDoc = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")

const extractionResponse = "```json\n" + `{
  "lender_name": "Stearns Bank",
  "contact": {"representative": "Pat", "email": "pat@stearns.test", "phone": null},
  "criteria": [
    {"criteria_key": "min_fico_score", "criteria_value": 650, "criteria_type": "number", "display_name": "Minimum FICO", "description": null, "category": "credit", "is_required": true},
    {"criteria_key": "preferred_industries", "criteria_value": ["construction"], "criteria_type": null, "display_name": "Preferred Industries", "category": null, "is_required": false},
    {"criteria_key": "min_years", "criteria_value": 2, "display_name": "Years in Business"},
    {"criteria_key": "", "criteria_value": 1, "display_name": "No key"},
    {"criteria_key": "no_name", "criteria_value": 1, "display_name": null}
  ]
}` + "\n```"

func newTestService(t *testing.T) (*Service, *MockExtractor, *MockLenderWriter) {
	ex := new(MockExtractor)
	lw := new(MockLenderWriter)
	return NewService(ex, lw, logger.NewTestLogger(t)), ex, lw
}

// ==========================
// Core Functionality Tests
// ==========================

func TestExtractCriteria_WithoutPersist(t *testing.T) {
	svc, ex, lw := newTestService(t)
	ex.On("GenerateExtraction", mock.Anything, pdfDoc, "application/pdf", mock.AnythingOfType("string")).
		Return(extractionResponse, nil)

	result, err := svc.ExtractCriteria(context.Background(), ExtractRequest{Document: pdfDoc, LenderName: "Stearns"})

	require.NoError(t, err)
	assert.Equal(t, "Stearns Bank", result.LenderName, "name from the document wins")
	assert.Equal(t, 3, result.CriteriaCount)
	assert.Empty(t, result.LenderID)
	assert.Equal(t, "Extracted 3 criteria", result.Message)
	assert.Equal(t, "pat@stearns.test", *result.Contact.Email)

	c := result.ExtractedCriteria
	assert.Equal(t, "min_fico_score", c[0].Key)
	assert.Equal(t, 650.0, c[0].Value)
	assert.Equal(t, "credit", *c[0].Category)
	assert.Equal(t, "string", c[1].Type, "null type defaults to string")
	assert.False(t, c[1].Required)
	assert.True(t, c[2].Required, "missing is_required defaults to true")
	assert.Nil(t, c[2].Category)

	lw.AssertNotCalled(t, "CreateLenderWithCriteria", mock.Anything, mock.Anything, mock.Anything)
	ex.AssertExpectations(t)
}

func TestExtractCriteria_Persist(t *testing.T) {
	svc, ex, lw := newTestService(t)
	ex.On("GenerateExtraction", mock.Anything, pdfDoc, "application/pdf", mock.Anything).Return(extractionResponse, nil)
	lw.On("CreateLenderWithCriteria", mock.Anything,
		mock.MatchedBy(func(l *models.Lender) bool { return l.Name == "Stearns Bank" }),
		mock.MatchedBy(func(cs []models.Criterion) bool { return len(cs) == 3 })).
		Return([]models.Criterion{{ID: "c-1"}, {ID: "c-2"}, {ID: "c-3"}}, nil).Once()

	result, err := svc.ExtractCriteria(context.Background(), ExtractRequest{Document: pdfDoc, MimeType: "application/pdf", Persist: true})

	require.NoError(t, err)
	assert.Equal(t, "l-new", result.LenderID)
	assert.Equal(t, "c-1", result.ExtractedCriteria[0].ID)
	assert.Contains(t, result.Message, "Stearns Bank")
	lw.AssertExpectations(t)
}

func TestExtractCriteria_FallsBackToProvidedName(t *testing.T) {
	svc, ex, _ := newTestService(t)
	ex.On("GenerateExtraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(`{"lender_name": null, "criteria": [{"criteria_key": "k", "display_name": "K", "criteria_value": true}]}`, nil)

	result, err := svc.ExtractCriteria(context.Background(), ExtractRequest{Document: pdfDoc, LenderName: " Apex Commercial "})

	require.NoError(t, err)
	assert.Equal(t, "Apex Commercial", result.LenderName)
}

// ==========================
// Error Handling Tests
// ==========================

func TestExtractCriteria_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      ExtractRequest
		setup    func(ex *MockExtractor, lw *MockLenderWriter)
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "empty document",
			req:      ExtractRequest{},
			wantCode: apperrors.ErrCodeInvalidInput,
		},
		{
			name:     "unsupported type",
			req:      ExtractRequest{Document: []byte{0x1f, 0x8b, 0x08, 0x00}},
			wantCode: apperrors.ErrCodeInvalidInput,
		},
		{
			name: "oracle timeout",
			req:  ExtractRequest{Document: pdfDoc},
			setup: func(ex *MockExtractor, lw *MockLenderWriter) {
				ex.On("GenerateExtraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return("", fmt.Errorf("%w: deadline", oracle.ErrTimeout))
			},
			wantCode: apperrors.ErrCodeOracleTimeout,
		},
		{
			name: "oracle status error",
			req:  ExtractRequest{Document: pdfDoc},
			setup: func(ex *MockExtractor, lw *MockLenderWriter) {
				ex.On("GenerateExtraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return("", &oracle.StatusError{StatusCode: 500})
			},
			wantCode: apperrors.ErrCodeOracleError,
		},
		{
			name: "malformed payload",
			req:  ExtractRequest{Document: pdfDoc},
			setup: func(ex *MockExtractor, lw *MockLenderWriter) {
				ex.On("GenerateExtraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return("I could not read this document.", nil)
			},
			wantCode: apperrors.ErrCodeMalformedResponse,
		},
		{
			name: "no usable criteria",
			req:  ExtractRequest{Document: pdfDoc},
			setup: func(ex *MockExtractor, lw *MockLenderWriter) {
				ex.On("GenerateExtraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(`{"criteria": [{"criteria_key": "", "display_name": ""}]}`, nil)
			},
			wantCode: apperrors.ErrCodeExtractionFailed,
		},
		{
			name: "persist without a name",
			req:  ExtractRequest{Document: pdfDoc, Persist: true},
			setup: func(ex *MockExtractor, lw *MockLenderWriter) {
				ex.On("GenerateExtraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(`{"criteria": [{"criteria_key": "k", "display_name": "K"}]}`, nil)
			},
			wantCode: apperrors.ErrCodeInvalidInput,
		},
		{
			name: "duplicate lender",
			req:  ExtractRequest{Document: pdfDoc, Persist: true},
			setup: func(ex *MockExtractor, lw *MockLenderWriter) {
				ex.On("GenerateExtraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(extractionResponse, nil)
				lw.On("CreateLenderWithCriteria", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("insert lender: %w", store.ErrDuplicate))
			},
			wantCode: apperrors.ErrCodeInvalidInput,
		},
		{
			name: "criteria insert fails",
			req:  ExtractRequest{Document: pdfDoc, Persist: true},
			setup: func(ex *MockExtractor, lw *MockLenderWriter) {
				ex.On("GenerateExtraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(extractionResponse, nil)
				lw.On("CreateLenderWithCriteria", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, errors.New("insert criterion min_years: disk full"))
			},
			wantCode: apperrors.ErrCodeDatabaseInsertFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ex, lw := newTestService(t)
			if tt.setup != nil {
				tt.setup(ex, lw)
			}

			result, err := svc.ExtractCriteria(context.Background(), tt.req)

			assert.Nil(t, result)
			stdErr := apperrors.As(err)
			require.NotNil(t, stdErr, "got %v", err)
			assert.Equal(t, tt.wantCode, stdErr.Code)
		})
	}
}
