package httpapi

import (
	"net/http"
	"time"

	domainaudit "github.com/flowplane/controlplane/internal/app/domain/audit"
)

// handleQueryAudit lists audit events matching the request's filter
// parameters, newest first. Audit access is global: it is gated on the
// audit_log scope rather than per-team, since the log itself is the
// accountability record for every team's changes.
func (h *handler) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	if !h.requireScope(w, r, "audit_log", "read", "") {
		return
	}

	q := r.URL.Query()
	f := domainaudit.Filter{
		ResourceType: q.Get("resource_type"),
		Action:       q.Get("action"),
		UserID:       q.Get("user_id"),
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			f.Since = &t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			f.Until = &t
		}
	}
	p := pagination(r)
	f.Limit, f.Offset = p.Limit, p.Offset

	events, err := h.auditSvc.Query(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Events []domainaudit.Event `json:"events"`
	}{events})
}
