package httpapi

import (
	"net/http"
	"strconv"

	"github.com/flowplane/controlplane/internal/app/storage"
)

// pagination reads limit/offset query parameters, falling back to
// storage.DefaultPagination() and clamping the limit the same way every
// repository does.
func pagination(r *http.Request) storage.Pagination {
	p := storage.DefaultPagination()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	p.Limit = storage.ClampLimit(p.Limit)
	return p
}
