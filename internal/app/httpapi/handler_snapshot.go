package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/flowplane/controlplane/internal/app/metrics"
)

// handleGetSnapshot assembles and returns the xDS resource graph (listeners
// down through clusters and inlined filter chains) for the team named in
// the path, which the caller's scopes must grant xds_snapshot:read on.
func (h *handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	team := mux.Vars(r)["team"]
	if !h.requireScope(w, r, "xds_snapshot", "read", team) {
		return
	}

	start := time.Now()
	snap, err := h.snapshots.Assemble(r.Context(), []string{team}, actorFromRequest(r))
	metrics.RecordSnapshotAssembly(err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
