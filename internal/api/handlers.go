package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-crm/internal/lead"
	"github.com/sells-group/lead-crm/internal/model"
	"github.com/sells-group/lead-crm/internal/store"
)

var validStatuses = map[model.LeadStatus]bool{
	model.LeadStatusNew:         true,
	model.LeadStatusOpen:        true,
	model.LeadStatusContacted:   true,
	model.LeadStatusQualified:   true,
	model.LeadStatusConverted:   true,
	model.LeadStatusUnqualified: true,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, s.checker.Check(r.Context(), req.Phone))
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var in lead.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.intake.Submit(r.Context(), in)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LeadFilter{
		Status: model.LeadStatus(q.Get("status")),
		Source: q.Get("source"),
	}
	if filter.Status != "" && !validStatuses[filter.Status] {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(filter.Status)))
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	leads, err := s.store.ListLeads(r.Context(), filter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.store.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleUpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.LeadStatus `json:"status"`
		Notes  string           `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validStatuses[req.Status] {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(req.Status)))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.UpdateLeadStatus(r.Context(), id, req.Status, strings.TrimSpace(req.Notes)); err != nil {
		writeErr(w, r, err)
		return
	}
	l, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleSyncBorrower(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.syncer.Sync(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := s.store.GetBorrower(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	plans, err := s.store.ListLoanPlans(r.Context(), id)
	if err != nil {
		writeErr(w, r, eris.Wrapf(err, "api: list loans for %s", id))
		return
	}
	if plans == nil {
		plans = []model.LoanPlan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"borrower": b, "loans": plans})
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", v)
	}
	return n, nil
}
