package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flowplane/controlplane/internal/app/audit"
	"github.com/flowplane/controlplane/internal/app/auth"
	"github.com/flowplane/controlplane/internal/app/compiler"
	"github.com/flowplane/controlplane/internal/app/crypto"
	"github.com/flowplane/controlplane/internal/app/logging"
	"github.com/flowplane/controlplane/internal/app/metrics"
	"github.com/flowplane/controlplane/internal/app/scopes"
	"github.com/flowplane/controlplane/internal/app/secretsrouter"
	"github.com/flowplane/controlplane/internal/app/snapshot"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// publicPaths bypasses authMiddleware: health checks and metrics scraping
// run unauthenticated, same as every teacher deployment that exposes them
// to a cluster-internal prober.
var publicPaths = map[string]bool{
	"/healthz":                 true,
	"/metrics":                 true,
	"/v1/auth/login":           true,
	"/v1/bootstrap/initialize": true,
}

// NewRouter builds the full HTTP surface: middleware chain, then the
// resource routes, wrapped in order (auth sees real requests, CORS
// short-circuits preflight before auth, metrics wraps everything).
func NewRouter(
	store storage.Store,
	compilerSvc *compiler.Service,
	snapshots *snapshot.Assembler,
	secretRouter *secretsrouter.Router,
	encryption *crypto.Service,
	auditSvc *audit.Service,
	scopeRegistry *scopes.Registry,
	tokens *auth.Authenticator,
	sessions *auth.SessionIssuer,
	log *logging.Logger,
) http.Handler {
	h := newHandler(store, compilerSvc, snapshots, secretRouter, auditSvc, scopeRegistry, tokens, sessions, log)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/bootstrap/initialize", h.handleBootstrapInitialize).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/whoami", h.handleWhoAmI).Methods(http.MethodGet)
	r.HandleFunc("/v1/auth/tokens", h.handleIssuePersonalAccessToken).Methods(http.MethodPost)

	r.HandleFunc("/v1/platform-apis", h.handleListApiDefinitions).Methods(http.MethodGet)
	r.HandleFunc("/v1/platform-apis", h.handleCreateApiDefinition).Methods(http.MethodPost)
	r.HandleFunc("/v1/platform-apis/{id}", h.handleGetApiDefinition).Methods(http.MethodGet)
	r.HandleFunc("/v1/platform-apis/{id}", h.handleUpdateApiDefinition).Methods(http.MethodPut)

	r.HandleFunc("/v1/clusters", h.handleListClusters).Methods(http.MethodGet)
	r.HandleFunc("/v1/clusters/{id}", h.handleGetCluster).Methods(http.MethodGet)
	r.HandleFunc("/v1/listeners", h.handleListListeners).Methods(http.MethodGet)
	r.HandleFunc("/v1/listeners/{id}", h.handleGetListener).Methods(http.MethodGet)

	r.HandleFunc("/v1/secrets", h.handleListSecrets).Methods(http.MethodGet)
	r.HandleFunc("/v1/secrets", h.handleCreateSecret(encryption)).Methods(http.MethodPost)
	r.HandleFunc("/v1/secrets/{id}", h.handleGetSecret).Methods(http.MethodGet)
	r.HandleFunc("/v1/secrets/{id}/resolve", h.handleResolveSecret).Methods(http.MethodPost)

	r.HandleFunc("/v1/teams/{team}/snapshot", h.handleGetSnapshot).Methods(http.MethodGet)

	r.HandleFunc("/v1/audit-events", h.handleQueryAudit).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = authMiddleware(tokens, sessions, publicPaths)(handler)
	handler = corsMiddleware(handler)
	handler = recoveryMiddleware(log)(handler)
	handler = loggingMiddleware(log)(handler)
	handler = metrics.InstrumentHandler(handler)
	return handler
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{"ok"})
}
