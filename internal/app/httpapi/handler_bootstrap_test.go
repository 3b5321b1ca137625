package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowplane/controlplane/internal/app/storage"
)

type fakeBootstrapStore struct {
	storage.Store
	activeTokens int
}

func (f *fakeBootstrapStore) CountActiveTokens(ctx context.Context) (int, error) {
	return f.activeTokens, nil
}

func TestHandleBootstrapInitializeRejectsWhenATokenAlreadyExists(t *testing.T) {
	h := &handler{store: &fakeBootstrapStore{activeTokens: 1}}

	req := httptest.NewRequest(http.MethodPost, "/v1/bootstrap/initialize", nil)
	rec := httptest.NewRecorder()
	h.handleBootstrapInitialize(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when a bootstrap token already exists, got %d: %s", rec.Code, rec.Body.String())
	}
}
