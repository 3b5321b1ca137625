// Package httpapi exposes the control plane's resource model over HTTP:
// platform-API definitions and their compile step, the low-level xDS
// resources, secrets, and the audit log, all behind personal-access-token
// authentication and scope-based authorization.
package httpapi

import (
	"net/http"

	"github.com/flowplane/controlplane/internal/app/audit"
	"github.com/flowplane/controlplane/internal/app/auth"
	"github.com/flowplane/controlplane/internal/app/compiler"
	"github.com/flowplane/controlplane/internal/app/logging"
	"github.com/flowplane/controlplane/internal/app/scopes"
	"github.com/flowplane/controlplane/internal/app/secretsrouter"
	"github.com/flowplane/controlplane/internal/app/snapshot"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// handler holds the dependencies every resource group's methods read from.
// It carries no per-request state.
type handler struct {
	store     storage.Store
	compiler  *compiler.Service
	snapshots *snapshot.Assembler
	secrets   *secretsrouter.Router
	auditSvc  *audit.Service
	scopes    *scopes.Registry
	tokens    *auth.Authenticator
	sessions  *auth.SessionIssuer
	log       *logging.Logger
}

func newHandler(
	store storage.Store,
	compilerSvc *compiler.Service,
	snapshots *snapshot.Assembler,
	secretRouter *secretsrouter.Router,
	auditSvc *audit.Service,
	scopeRegistry *scopes.Registry,
	tokens *auth.Authenticator,
	sessions *auth.SessionIssuer,
	log *logging.Logger,
) *handler {
	return &handler{
		store:     store,
		compiler:  compilerSvc,
		snapshots: snapshots,
		secrets:   secretRouter,
		auditSvc:  auditSvc,
		scopes:    scopeRegistry,
		tokens:    tokens,
		sessions:  sessions,
		log:       log,
	}
}

// actorFromRequest builds the audit.ActorContext attributed to events
// recorded while handling r.
func actorFromRequest(r *http.Request) audit.ActorContext {
	authCtx, _ := authFromContext(r)
	return audit.ActorContext{
		UserID:    authCtx.TokenID,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// requireScope authorizes the caller's token scopes for (resource, action)
// against targetTeam, writing a Forbidden response and returning false if
// denied.
func (h *handler) requireScope(w http.ResponseWriter, r *http.Request, resource, action, targetTeam string) bool {
	authCtx, ok := authFromContext(r)
	if !ok {
		writeError(w, errUnauthenticated)
		return false
	}
	if !scopes.Authorize(authCtx.Scopes, resource, action, targetTeam) {
		writeError(w, errForbidden)
		return false
	}
	return true
}

// teamFilter resolves which teams the caller's scopes let them see for
// (resource, action), writing a Forbidden response and returning ok=false
// if the caller has no access at all.
func (h *handler) teamFilter(w http.ResponseWriter, r *http.Request, resource, action string) (teams []string, ok bool) {
	authCtx, present := authFromContext(r)
	if !present {
		writeError(w, errUnauthenticated)
		return nil, false
	}
	teams, decision := scopes.ResolveTeamFilter(authCtx.Scopes, resource, action)
	if decision == scopes.DecisionNoAccess {
		writeError(w, errForbidden)
		return nil, false
	}
	return teams, true
}
