package httpapi

import (
	"net/http"
	"time"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin authenticates an operator by email/password and issues a
// short-lived session JWT carrying every scope their team memberships
// grant, plus "admin:all" if the user is an org admin.
func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, apperrors.NewValidationError("malformed request body", ""))
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !auth.VerifySecret(req.Password, user.PasswordHash) {
		writeError(w, apperrors.NewUnauthenticatedError("invalid email or password"))
		return
	}

	memberships, err := h.store.ListTeamMembershipsByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	scopeSet := make(map[string]struct{})
	if user.IsAdmin {
		scopeSet["admin:all"] = struct{}{}
	}
	for _, m := range memberships {
		for _, s := range m.Scopes {
			scopeSet[s] = struct{}{}
		}
	}
	scopeList := make([]string, 0, len(scopeSet))
	for s := range scopeSet {
		scopeList = append(scopeList, s)
	}

	token, err := h.sessions.Issue(user.ID, user.OrgID, scopeList)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = h.auditSvc.RecordAuthEvent(r.Context(), actorFromRequest(r), "auth.login", user.ID, user.Email)
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// handleWhoAmI reports the identity and scopes resolved for the presented
// token.
func (h *handler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authFromContext(r)
	if !ok {
		writeError(w, errUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		TokenID string   `json:"token_id"`
		Name    string   `json:"name"`
		Scopes  []string `json:"scopes"`
	}{authCtx.TokenID, authCtx.Name, authCtx.Scopes})
}

type bootstrapResponse struct {
	Token string `json:"token"`
}

// handleBootstrapInitialize seeds the first admin-scoped setup token when
// no active tokens exist yet; once one exists it reports conflict rather
// than minting a second. This is the API-reachable counterpart to the
// same auth.Bootstrap call the entrypoint makes once at startup, for
// deployments that prefer to drive first-start over HTTP.
func (h *handler) handleBootstrapInitialize(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountActiveTokens(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if count > 0 {
		writeError(w, apperrors.NewConflictError("a bootstrap token has already been issued", "token"))
		return
	}

	presented, err := auth.Bootstrap(r.Context(), h.store, h.auditSvc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bootstrapResponse{Token: presented})
}

type issueTokenRequest struct {
	Name       string   `json:"name"`
	Scopes     []string `json:"scopes"`
	TTLSeconds int      `json:"ttl_seconds,omitempty"`
}

type issueTokenResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// handleIssuePersonalAccessToken mints a new personal access token scoped
// to the requested (validated) scopes. The caller must already hold every
// scope it is requesting for another token, preventing privilege escalation
// through token issuance.
func (h *handler) handleIssuePersonalAccessToken(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authFromContext(r)
	if !ok {
		writeError(w, errUnauthenticated)
		return
	}

	var req issueTokenRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, apperrors.NewValidationError("malformed request body", ""))
		return
	}
	for _, s := range req.Scopes {
		if !h.scopes.IsValidScope(s) {
			writeError(w, apperrors.NewValidationError("unknown scope: "+s, "scopes"))
			return
		}
		if !callerHoldsScope(authCtx.Scopes, s) {
			writeError(w, apperrors.NewForbiddenError("cannot grant a scope you do not hold: "+s))
			return
		}
	}

	var ttl time.Duration
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	token, presented, err := auth.IssuePersonalAccessToken(r.Context(), h.store, req.Name, req.Scopes, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = h.auditSvc.RecordAuthEvent(r.Context(), actorFromRequest(r), "token.issued", token.ID, token.Name)
	writeJSON(w, http.StatusCreated, issueTokenResponse{ID: token.ID, Token: presented})
}

func callerHoldsScope(held []string, want string) bool {
	for _, s := range held {
		if s == "admin:all" || s == want {
			return true
		}
	}
	return false
}
