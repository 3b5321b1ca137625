package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
)

// handleListClusters lists the clusters visible to the caller, optionally
// including their endpoint sets.
func (h *handler) handleListClusters(w http.ResponseWriter, r *http.Request) {
	teams, ok := h.teamFilter(w, r, "cluster", "read")
	if !ok {
		return
	}
	clusters, err := h.store.ListClustersByTeams(r.Context(), teams, pagination(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Clusters []xds.Cluster `json:"clusters"`
	}{clusters})
}

func (h *handler) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, err := h.store.GetCluster(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.NewNotFoundError("cluster", id))
		return
	}
	if !h.requireScope(w, r, "cluster", "read", teamOf(c.Team)) {
		return
	}
	endpoints, err := h.store.ListEndpoints(r.Context(), c.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Cluster   xds.Cluster          `json:"cluster"`
		Endpoints []xds.ClusterEndpoint `json:"endpoints"`
	}{c, endpoints})
}

// handleListListeners lists the listeners visible to the caller.
func (h *handler) handleListListeners(w http.ResponseWriter, r *http.Request) {
	teams, ok := h.teamFilter(w, r, "listener", "read")
	if !ok {
		return
	}
	listeners, err := h.store.ListListenersByTeams(r.Context(), teams, pagination(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Listeners []xds.Listener `json:"listeners"`
	}{listeners})
}

func (h *handler) handleGetListener(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	l, err := h.store.GetListener(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.NewNotFoundError("listener", id))
		return
	}
	if !h.requireScope(w, r, "listener", "read", teamOf(l.Team)) {
		return
	}
	routeConfigs, err := h.store.ListRouteConfigsByListener(r.Context(), l.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Listener     xds.Listener               `json:"listener"`
		RouteConfigs []xds.ListenerRouteConfig `json:"route_configs"`
	}{l, routeConfigs})
}

// teamOf returns the dereferenced team name, or "" for team-less (global)
// resources; scopes.Authorize with an empty targetTeam only matches
// admin-level scopes.
func teamOf(team *string) string {
	if team == nil {
		return ""
	}
	return *team
}
