package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestPaginationDefaultsWhenNoQueryParams(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/secrets", nil)
	p := pagination(req)
	if p.Limit != 50 || p.Offset != 0 {
		t.Fatalf("expected default pagination, got %+v", p)
	}
}

func TestPaginationReadsQueryParams(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/secrets?limit=10&offset=20", nil)
	p := pagination(req)
	if p.Limit != 10 || p.Offset != 20 {
		t.Fatalf("expected limit=10 offset=20, got %+v", p)
	}
}

func TestPaginationClampsOversizedLimit(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/secrets?limit=5000", nil)
	p := pagination(req)
	if p.Limit != 1000 {
		t.Fatalf("expected limit clamped to 1000, got %d", p.Limit)
	}
}

func TestPaginationIgnoresNegativeOffset(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/secrets?offset=-5", nil)
	p := pagination(req)
	if p.Offset != 0 {
		t.Fatalf("expected offset to fall back to 0, got %d", p.Offset)
	}
}
