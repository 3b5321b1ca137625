package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/flowplane/controlplane/internal/app/auth"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// fakeClusterStore embeds storage.Store so only the methods exercised by a
// given test need a real implementation; every other call panics if hit.
type fakeClusterStore struct {
	storage.Store
	cluster xds.Cluster
}

func (f *fakeClusterStore) GetCluster(ctx context.Context, id string) (xds.Cluster, error) {
	return f.cluster, nil
}

func (f *fakeClusterStore) ListEndpoints(ctx context.Context, clusterID string) ([]xds.ClusterEndpoint, error) {
	return nil, nil
}

func TestTeamOfDereferencesNonNilTeam(t *testing.T) {
	team := "core"
	if got := teamOf(&team); got != "core" {
		t.Fatalf("expected core, got %q", got)
	}
}

func TestTeamOfReturnsEmptyForNilTeam(t *testing.T) {
	if got := teamOf(nil); got != "" {
		t.Fatalf("expected empty string for a team-less resource, got %q", got)
	}
}

func TestHandleGetClusterDeniesCrossTeamAccess(t *testing.T) {
	team := "payments"
	h := &handler{store: &fakeClusterStore{cluster: xds.Cluster{ID: "c-1", Team: &team}}}

	req := httptest.NewRequest(http.MethodGet, "/v1/clusters/c-1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "c-1"})
	ctx := context.WithValue(req.Context(), authContextKey, auth.AuthContext{
		TokenID: "tok-1",
		Scopes:  []string{"team:checkout:cluster:read"},
	})
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.handleGetCluster(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a caller scoped to a different team, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleGetClusterAllowsSameTeamAccess(t *testing.T) {
	team := "payments"
	h := &handler{store: &fakeClusterStore{cluster: xds.Cluster{ID: "c-1", Name: "payments-upstream", Team: &team}}}

	req := httptest.NewRequest(http.MethodGet, "/v1/clusters/c-1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "c-1"})
	ctx := context.WithValue(req.Context(), authContextKey, auth.AuthContext{
		TokenID: "tok-1",
		Scopes:  []string{"team:payments:cluster:read"},
	})
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.handleGetCluster(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a caller scoped to the cluster's own team, got %d: %s", rec.Code, rec.Body.String())
	}
}
