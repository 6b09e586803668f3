package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ai4data/dazense/internal/engine"
	"github.com/ai4data/dazense/internal/errs"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueryMetrics(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.KindInvalidQuery, "invalid request body", err))
		return
	}
	if req.Model == "" {
		s.writeError(w, errs.New(errs.KindInvalidQuery, "model is required"))
		return
	}

	eng, err := s.newEngine(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer eng.Close()

	result, err := eng.Query(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	eng, err := s.newEngine(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer eng.Close()

	writeJSON(w, http.StatusOK, map[string][]string{"models": eng.ListModels()})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	eng, err := s.newEngine(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer eng.Close()

	info, err := eng.ModelInfo(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
