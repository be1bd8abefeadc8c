package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "lender-matching/internal/common/errors"
	"lender-matching/internal/eligibility"
	"lender-matching/internal/models"
	"lender-matching/internal/services/extraction"
)

type submitResponse struct {
	ApplicationID string                         `json:"application_id"`
	Status        string                         `json:"status"`
	Eligibility   *eligibility.EligibilityReport `json:"eligibility"`
}

type evaluateRequest struct {
	ApplicationID string `json:"application_id"`
}

func (s *Server) submitApplication(w http.ResponseWriter, r *http.Request) {
	var snapshot models.ApplicationSnapshot
	if err := decodeBody(r, &snapshot); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.evaluation.SubmitApplication(r.Context(), snapshot)
	if err != nil {
		body := errorResponse{Error: apperrors.As(err)}
		if body.Error == nil {
			body.Error = apperrors.NewInternalError(err)
		}
		if result != nil && result.Application != nil {
			body.ApplicationID = result.Application.ID
		}
		s.writeErrorBody(w, r, body)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		ApplicationID: result.Application.ID,
		Status:        result.Application.Status,
		Eligibility:   result.Report,
	})
}

func (s *Server) evaluateApplication(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.evaluation.EvaluateApplication(r.Context(), strings.TrimSpace(req.ApplicationID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	skip, err := intParam(r, "skip", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apps, err := s.evaluation.ListApplications(r.Context(), skip, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if apps == nil {
		apps = []models.LoanApplication{}
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) latestReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.evaluation.LatestReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listLenders(w http.ResponseWriter, r *http.Request) {
	lenders, err := s.evaluation.ListLenders(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if lenders == nil {
		lenders = []models.LenderWithCriteria{}
	}
	writeJSON(w, http.StatusOK, lenders)
}

func (s *Server) lenderMatches(w http.ResponseWriter, r *http.Request) {
	size, err := intParam(r, "size", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	matches, err := s.evaluation.MatchesForLender(r.Context(), chi.URLParam(r, "id"), size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lender_id": chi.URLParam(r, "id"),
		"matches":   matches,
	})
}

// extractCriteria accepts a multipart upload: "file" (required),
// "lender_name" and "persist" (default true).
func (s *Server) extractCriteria(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, r, apperrors.NewInvalidInputError(fmt.Sprintf("invalid upload: %v", err)))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, apperrors.NewInvalidInputError("file is required"))
		return
	}
	defer file.Close()

	doc, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, apperrors.NewInvalidInputError(fmt.Sprintf("read upload: %v", err)))
		return
	}

	persist := true
	if v := strings.TrimSpace(r.FormValue("persist")); v != "" {
		persist, err = strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, apperrors.NewInvalidInputError("persist must be a boolean"))
			return
		}
	}

	result, err := s.extraction.ExtractCriteria(r.Context(), extraction.ExtractRequest{
		Document:   doc,
		MimeType:   header.Header.Get("Content-Type"),
		LenderName: r.FormValue("lender_name"),
		Persist:    persist,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.LenderID != "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return apperrors.NewInvalidInputError("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewInvalidInputError(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}
