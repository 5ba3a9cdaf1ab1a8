package api

import (
	"net/http"

	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/pkg/logger"
)

type createCaseRequest struct {
	CaseID   int64 `json:"case_id"`
	ClientID int64 `json:"client_id"`
}

type assignCulpritRequest struct {
	CulpritID int64 `json:"culprit_id"`
}

type fabricateRequest struct {
	CulpritID  int64 `json:"culprit_id"`
	EvidenceID int64 `json:"evidence_id"`
}

type assignDetectiveRequest struct {
	DetectiveID int64 `json:"detective_id"`
}

type guessRequest struct {
	DetectiveID int64  `json:"detective_id"`
	Suspect     string `json:"suspect"`
	Reasoning   string `json:"reasoning"`
}

// CasesHandler serves the active case lifecycle.
type CasesHandler struct {
	deps  CaseService
	views *viewBuilder
	log   logger.Logger
}

// newCasesHandler creates a new active case handler.
func newCasesHandler(deps CaseService, views *viewBuilder, log logger.Logger) *CasesHandler {
	return &CasesHandler{deps: deps, views: views, log: log}
}

// respond renders c with status, or the error that stopped it.
func (h *CasesHandler) respond(w http.ResponseWriter, r *http.Request, op string, status int, c model.ActiveCase, err error, showPlanted bool) {
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	view, err := h.views.single(r.Context(), c, showPlanted)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, status, view)
}

// HandleCreate handles POST /active-cases.
func (h *CasesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_active_case"
	var req createCaseRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	if err := positive("case_id", req.CaseID); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	if err := positive("client_id", req.ClientID); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	c, err := h.deps.CreateActiveCase(r.Context(), req.CaseID, req.ClientID)
	h.respond(w, r, op, http.StatusCreated, c, err, false)
}

// HandleList handles GET /active-cases?status=. Without a status it lists open cases.
func (h *CasesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_active_cases"
	var (
		cases []model.ActiveCase
		err   error
	)
	if raw := r.URL.Query().Get("status"); raw == "" {
		cases, err = h.deps.ListOpen(r.Context())
	} else {
		status, perr := model.ParseStatus(raw)
		if perr != nil {
			writeFailure(w, r, h.log, op, perr)
			return
		}
		cases, err = h.deps.ListByStatus(r.Context(), status)
	}
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	views, err := h.views.many(r.Context(), cases)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleGet handles GET /active-cases/{activeId}.
func (h *CasesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_active_case"
	activeID, err := pathID(r, "activeId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	c, err := h.deps.GetActiveCase(r.Context(), activeID)
	h.respond(w, r, op, http.StatusOK, c, err, false)
}

// HandleAssignCulprit handles POST /active-cases/{activeId}/culprit.
func (h *CasesHandler) HandleAssignCulprit(w http.ResponseWriter, r *http.Request) {
	const op = "api.assign_culprit"
	activeID, err := pathID(r, "activeId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	var req assignCulpritRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	if err := positive("culprit_id", req.CulpritID); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	c, err := h.deps.AssignCulprit(r.Context(), activeID, req.CulpritID)
	h.respond(w, r, op, http.StatusOK, c, err, false)
}

// HandleFabricate handles POST /active-cases/{activeId}/fabrication.
func (h *CasesHandler) HandleFabricate(w http.ResponseWriter, r *http.Request) {
	const op = "api.fabricate_evidence"
	activeID, err := pathID(r, "activeId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	var req fabricateRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	if err := positive("culprit_id", req.CulpritID); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	if err := positive("evidence_id", req.EvidenceID); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	c, err := h.deps.FabricateEvidence(r.Context(), activeID, req.CulpritID, req.EvidenceID)
	h.respond(w, r, op, http.StatusOK, c, err, true)
}

// HandleAssignDetective handles POST /active-cases/{activeId}/detective.
func (h *CasesHandler) HandleAssignDetective(w http.ResponseWriter, r *http.Request) {
	const op = "api.assign_detective"
	activeID, err := pathID(r, "activeId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	var req assignDetectiveRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	if err := positive("detective_id", req.DetectiveID); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	c, err := h.deps.AssignDetective(r.Context(), activeID, req.DetectiveID)
	h.respond(w, r, op, http.StatusOK, c, err, false)
}

// HandleCaseFile handles GET /active-cases/{activeId}/case-file?detective_id=.
func (h *CasesHandler) HandleCaseFile(w http.ResponseWriter, r *http.Request) {
	const op = "api.case_file"
	activeID, err := pathID(r, "activeId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	detectiveID, err := parseID("detective_id", r.URL.Query().Get("detective_id"))
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	f, err := h.deps.CaseFile(r.Context(), activeID, detectiveID)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.views.caseFile(r.Context(), f))
}

// HandleGuess handles POST /active-cases/{activeId}/guess.
func (h *CasesHandler) HandleGuess(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_guess"
	activeID, err := pathID(r, "activeId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	var req guessRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	if err := positive("detective_id", req.DetectiveID); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	c, err := h.deps.SubmitGuess(r.Context(), activeID, req.DetectiveID, req.Suspect, req.Reasoning)
	h.respond(w, r, op, http.StatusOK, c, err, false)
}

// HandleJournal handles GET /active-cases/{activeId}/journal.
func (h *CasesHandler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	const op = "api.journal"
	activeID, err := pathID(r, "activeId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	entries, err := h.deps.Journal(r.Context(), activeID)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toJournal(entries))
}
