// Package api exposes the evaluation, extraction and lender management use
// cases over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "lender-matching/internal/common/errors"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/eligibility"
	"lender-matching/internal/models"
	"lender-matching/internal/services/evaluation"
	"lender-matching/internal/services/extraction"
	"lender-matching/internal/services/lenders"
	"lender-matching/internal/store"
)

type EvaluationService interface {
	SubmitApplication(ctx context.Context, snapshot models.ApplicationSnapshot) (*evaluation.SubmitResult, error)
	EvaluateApplication(ctx context.Context, applicationID string) (*eligibility.EligibilityReport, error)
	LatestReport(ctx context.Context, applicationID string) (*eligibility.EligibilityReport, error)
	ListApplications(ctx context.Context, skip, limit int) ([]models.LoanApplication, error)
	ListLenders(ctx context.Context) ([]models.LenderWithCriteria, error)
	MatchesForLender(ctx context.Context, lenderID string, size int) ([]store.ApplicationMatch, error)
}

type ExtractionService interface {
	ExtractCriteria(ctx context.Context, req extraction.ExtractRequest) (*extraction.ExtractResult, error)
}

type LenderService interface {
	CreateLender(ctx context.Context, req lenders.CreateLenderRequest) (*models.Lender, error)
	SearchLenders(ctx context.Context, q string, limit int) ([]models.Lender, error)
	GetLender(ctx context.Context, id string) (*models.LenderWithCriteria, error)
	UpdateLender(ctx context.Context, id string, upd models.LenderUpdate) (*models.Lender, error)
	DeleteLender(ctx context.Context, id string) error
	ListCriteria(ctx context.Context, lenderID, category string) ([]models.Criterion, error)
	CreateCriterion(ctx context.Context, lenderID string, req lenders.CreateCriterionRequest) (*models.Criterion, error)
	UpdateCriterion(ctx context.Context, id string, upd models.CriterionUpdate) (*models.Criterion, error)
	DeleteCriterion(ctx context.Context, id string) error
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

type Options struct {
	Evaluation      EvaluationService
	Extraction      ExtractionService
	Lenders         LenderService
	ReadinessChecks map[string]Check
	MaxUploadBytes  int64
	Recorder        RequestRecorder
	Logger          logger.Logger
}

type Server struct {
	evaluation     EvaluationService
	extraction     ExtractionService
	lenders        LenderService
	checks         map[string]Check
	maxUploadBytes int64
	recorder       RequestRecorder
	logger         logger.Logger
	now            func() time.Time
}

const defaultMaxUploadBytes = 20 << 20

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Server{
		evaluation:     opts.Evaluation,
		extraction:     opts.Extraction,
		lenders:        opts.Lenders,
		checks:         opts.ReadinessChecks,
		maxUploadBytes: maxUpload,
		recorder:       opts.Recorder,
		logger:         log.WithFields(map[string]interface{}{"component": "http_api"}),
		now:            time.Now,
	}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/applications", func(r chi.Router) {
			r.Get("/", s.listApplications)
			r.Post("/submit", s.submitApplication)
			r.Post("/evaluate", s.evaluateApplication)
			r.Get("/{id}/eligibility", s.latestReport)
		})
		r.Route("/lenders", func(r chi.Router) {
			r.Get("/", s.listLenders)
			r.Post("/", s.createLender)
			r.Get("/search", s.searchLenders)
			r.Post("/extract", s.extractCriteria)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getLender)
				r.Put("/", s.updateLender)
				r.Delete("/", s.deleteLender)
				r.Get("/criteria", s.listCriteria)
				r.Post("/criteria", s.createCriterion)
				r.Get("/matches", s.lenderMatches)
			})
		})
		r.Route("/criteria", func(r chi.Router) {
			r.Put("/{id}", s.updateCriterion)
			r.Delete("/{id}", s.deleteCriterion)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.recorder != nil {
			s.recorder.RecordHTTPRequest(r.Context(), r.Method, route, ww.Status(), elapsed)
		}

		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": elapsed.Milliseconds(),
			"requestId":   middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("HTTP request failed", fields)
			return
		}
		s.logger.Debug("HTTP request", fields)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := map[string]interface{}{
		"status": "ready",
		"checks": results,
		"time":   s.now().UTC().Format(time.RFC3339),
	}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error         *apperrors.StandardError `json:"error"`
	ApplicationID string                   `json:"application_id,omitempty"`
}

// writeError renders err with the status its code maps to.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := apperrors.As(err)
	if stdErr == nil {
		stdErr = apperrors.NewInternalError(err)
	}
	s.writeErrorBody(w, r, errorResponse{Error: stdErr})
}

func (s *Server) writeErrorBody(w http.ResponseWriter, r *http.Request, body errorResponse) {
	status := apperrors.HTTPStatus(body.Error.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", map[string]interface{}{
			"path":      r.URL.Path,
			"errorCode": string(body.Error.Code),
			"details":   body.Error.Details,
			"requestId": middleware.GetReqID(r.Context()),
		})
	}
	writeJSON(w, status, body)
}
