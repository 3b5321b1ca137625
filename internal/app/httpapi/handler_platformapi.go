package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/compiler"
	"github.com/flowplane/controlplane/internal/app/domain/platformapi"
	"github.com/flowplane/controlplane/internal/app/metrics"
)

type apiRouteRequest struct {
	MatchType           platformapi.MatchType         `json:"match_type"`
	MatchValue          string                        `json:"match_value"`
	CaseSensitive       bool                          `json:"case_sensitive"`
	Headers             map[string]interface{}        `json:"headers,omitempty"`
	RewritePrefix       *string                       `json:"rewrite_prefix,omitempty"`
	RewriteRegex        *string                       `json:"rewrite_regex,omitempty"`
	RewriteSubstitution *string                       `json:"rewrite_substitution,omitempty"`
	UpstreamTargets     []platformapi.UpstreamTarget  `json:"upstream_targets"`
	TimeoutSeconds      *int                          `json:"timeout_seconds,omitempty"`
	OverrideConfig      map[string]interface{}        `json:"override_config,omitempty"`
	DeploymentNote      *string                       `json:"deployment_note,omitempty"`
	RouteOrder          int                           `json:"route_order"`
	FilterConfig        map[string]interface{}        `json:"filter_config,omitempty"`
}

type apiDefinitionRequest struct {
	Team              string                 `json:"team"`
	Domain            string                 `json:"domain"`
	ListenerIsolation bool                   `json:"listener_isolation"`
	TargetListeners   []string               `json:"target_listeners,omitempty"`
	TLSConfig         map[string]interface{} `json:"tls_config,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Routes            []apiRouteRequest      `json:"routes"`
}

type compileResponse struct {
	Definition    platformapi.ApiDefinition `json:"definition"`
	RouteConfigID string                    `json:"route_config_id"`
	VirtualHostID string                    `json:"virtual_host_id"`
	RouteRuleIDs  []string                  `json:"route_rule_ids"`
	ClusterIDs    []string                  `json:"cluster_ids"`
	ListenerID    string                    `json:"listener_id"`
}

// handleCreateApiDefinition compiles a new platform-API definition: it
// stores the ApiDefinition and its routes and materializes the xDS
// resource graph that serves it, all inside one transaction.
func (h *handler) handleCreateApiDefinition(w http.ResponseWriter, r *http.Request) {
	var req apiDefinitionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, apperrors.NewValidationError("malformed request body", ""))
		return
	}
	if !h.requireScope(w, r, "platform_api", "write", req.Team) {
		return
	}

	def := platformapi.ApiDefinition{
		Team:              req.Team,
		Domain:            req.Domain,
		ListenerIsolation: req.ListenerIsolation,
		TargetListeners:   req.TargetListeners,
		TLSConfig:         req.TLSConfig,
		Metadata:          req.Metadata,
	}
	routes := routesFromRequest(req.Routes)

	start := time.Now()
	result, err := h.compiler.Compile(r.Context(), def, routes, actorFromRequest(r))
	metrics.RecordCompile(err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, compileResponseFrom(result))
}

// handleUpdateApiDefinition recompiles an existing platform-API definition
// in place, bumping its bootstrap revision.
func (h *handler) handleUpdateApiDefinition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.store.GetApiDefinition(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.NewNotFoundError("platform_api", id))
		return
	}
	if !h.requireScope(w, r, "platform_api", "write", existing.Team) {
		return
	}

	var req apiDefinitionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, apperrors.NewValidationError("malformed request body", ""))
		return
	}

	def := existing
	def.Domain = req.Domain
	def.ListenerIsolation = req.ListenerIsolation
	def.TargetListeners = req.TargetListeners
	def.TLSConfig = req.TLSConfig
	def.Metadata = req.Metadata
	routes := routesFromRequest(req.Routes)

	start := time.Now()
	result, err := h.compiler.Compile(r.Context(), def, routes, actorFromRequest(r))
	metrics.RecordCompile(err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compileResponseFrom(result))
}

func (h *handler) handleGetApiDefinition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	def, err := h.store.GetApiDefinition(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.NewNotFoundError("platform_api", id))
		return
	}
	if !h.requireScope(w, r, "platform_api", "read", def.Team) {
		return
	}

	routes, err := h.store.ListApiRoutesByDefinition(r.Context(), def.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Definition platformapi.ApiDefinition `json:"definition"`
		Routes     []platformapi.ApiRoute    `json:"routes"`
	}{def, routes})
}

func (h *handler) handleListApiDefinitions(w http.ResponseWriter, r *http.Request) {
	teams, ok := h.teamFilter(w, r, "platform_api", "read")
	if !ok {
		return
	}
	defs, err := h.store.ListApiDefinitionsByTeams(r.Context(), teams, pagination(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Definitions []platformapi.ApiDefinition `json:"definitions"`
	}{defs})
}

func routesFromRequest(in []apiRouteRequest) []platformapi.ApiRoute {
	routes := make([]platformapi.ApiRoute, 0, len(in))
	for _, r := range in {
		routes = append(routes, platformapi.ApiRoute{
			MatchType:           r.MatchType,
			MatchValue:          r.MatchValue,
			CaseSensitive:       r.CaseSensitive,
			Headers:             r.Headers,
			RewritePrefix:       r.RewritePrefix,
			RewriteRegex:        r.RewriteRegex,
			RewriteSubstitution: r.RewriteSubstitution,
			UpstreamTargets:     r.UpstreamTargets,
			TimeoutSeconds:      r.TimeoutSeconds,
			OverrideConfig:      r.OverrideConfig,
			DeploymentNote:      r.DeploymentNote,
			RouteOrder:          r.RouteOrder,
			FilterConfig:        r.FilterConfig,
		})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteOrder < routes[j].RouteOrder })
	return routes
}

func compileResponseFrom(result compiler.Result) compileResponse {
	return compileResponse{
		Definition:    result.Definition,
		RouteConfigID: result.RouteConfigID,
		VirtualHostID: result.VirtualHostID,
		RouteRuleIDs:  result.RouteRuleIDs,
		ClusterIDs:    result.ClusterIDs,
		ListenerID:    result.ListenerID,
	}
}
