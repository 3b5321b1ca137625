package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/flowplane/controlplane/internal/app/apperrors"
)

func TestWriteErrorMapsServiceErrorToStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, apperrors.NewNotFoundError("secret", "sec-1"))

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Code != apperrors.CodeNotFound || body.Resource != "secret" || body.Identifier != "sec-1" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestWriteErrorWrapsUnclassifiedErrorAsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errPlain("boom"))

	if rec.Code != 500 {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Code != apperrors.CodeInternal {
		t.Fatalf("expected CodeInternal, got %s", body.Code)
	}
}

func TestWriteErrorSetsRetryAfterHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, apperrors.NewRateLimitedError(30))

	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("expected Retry-After: 30, got %q", rec.Header().Get("Retry-After"))
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
