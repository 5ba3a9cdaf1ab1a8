package api

import (
	"net/http"

	"github.com/okian/whodunit/pkg/logger"
)

// TemplatesHandler serves the case catalog and the culprit's evidence view.
type TemplatesHandler struct {
	deps CatalogReader
	log  logger.Logger
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(deps CatalogReader, log logger.Logger) *TemplatesHandler {
	return &TemplatesHandler{deps: deps, log: log}
}

// HandleList handles GET /templates.
func (h *TemplatesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_templates"
	templates, err := h.deps.ListTemplates(r.Context())
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, toTemplate(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /templates/{caseId}. The culprit is never included.
func (h *TemplatesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_template"
	caseID, err := pathID(r, "caseId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	t, err := h.deps.GetTemplate(r.Context(), caseID)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplate(t))
}

// HandleEvidence handles GET /templates/{caseId}/evidence with the truth flags.
func (h *TemplatesHandler) HandleEvidence(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_evidence"
	caseID, err := pathID(r, "caseId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	items, err := h.deps.GetEvidenceForCase(r.Context(), caseID)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvidence(items))
}
