package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/flowplane/controlplane/internal/app/auth"
)

func TestHandleGetSnapshotDeniesWithoutScope(t *testing.T) {
	h := &handler{}

	req := httptest.NewRequest(http.MethodGet, "/v1/teams/core/snapshot", nil)
	req = mux.SetURLVars(req, map[string]string{"team": "core"})
	ctx := context.WithValue(req.Context(), authContextKey, auth.AuthContext{
		TokenID: "user-1",
		Scopes:  []string{"team:other:xds_snapshot:read"},
	})
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.handleGetSnapshot(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a caller scoped to a different team, got %d", rec.Code)
	}
}

func TestHandleGetSnapshotRejectsUnauthenticated(t *testing.T) {
	h := &handler{}

	req := httptest.NewRequest(http.MethodGet, "/v1/teams/core/snapshot", nil)
	req = mux.SetURLVars(req, map[string]string{"team": "core"})

	rec := httptest.NewRecorder()
	h.handleGetSnapshot(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a request with no auth context, got %d", rec.Code)
	}
}
