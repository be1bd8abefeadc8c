package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lender-matching/internal/models"
	"lender-matching/internal/services/lenders"
)

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) createLender(w http.ResponseWriter, r *http.Request) {
	var req lenders.CreateLenderRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.lenders.CreateLender(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) searchLenders(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	found, err := s.lenders.SearchLenders(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if found == nil {
		found = []models.Lender{}
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) getLender(w http.ResponseWriter, r *http.Request) {
	l, err := s.lenders.GetLender(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) updateLender(w http.ResponseWriter, r *http.Request) {
	var upd models.LenderUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.lenders.UpdateLender(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) deleteLender(w http.ResponseWriter, r *http.Request) {
	if err := s.lenders.DeleteLender(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Lender deleted successfully"})
}

// listCriteria accepts an optional "category" filter.
func (s *Server) listCriteria(w http.ResponseWriter, r *http.Request) {
	criteria, err := s.lenders.ListCriteria(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("category"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if criteria == nil {
		criteria = []models.Criterion{}
	}
	writeJSON(w, http.StatusOK, criteria)
}

func (s *Server) createCriterion(w http.ResponseWriter, r *http.Request) {
	var req lenders.CreateCriterionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.lenders.CreateCriterion(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateCriterion(w http.ResponseWriter, r *http.Request) {
	var upd models.CriterionUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.lenders.UpdateCriterion(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCriterion(w http.ResponseWriter, r *http.Request) {
	if err := s.lenders.DeleteCriterion(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Criterion deleted successfully"})
}
