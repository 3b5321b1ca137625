package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/flowplane/controlplane/internal/app/apperrors"
)

var (
	errUnauthenticated = apperrors.NewUnauthenticatedError("")
	errForbidden       = apperrors.NewForbiddenError("")
)

// errorBody is the wire shape of every non-2xx response.
type errorBody struct {
	Error      string                 `json:"error"`
	Code       apperrors.Code         `json:"code"`
	Field      string                 `json:"field,omitempty"`
	Resource   string                 `json:"resource,omitempty"`
	Identifier string                 `json:"identifier,omitempty"`
	RetryAfter int                    `json:"retry_after_seconds,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a ServiceError onto its transport status and wire shape.
// A nil or unclassified err is wrapped as CodeInternal so callers always get
// a well-formed error response.
func writeError(w http.ResponseWriter, err error) {
	se := apperrors.GetServiceError(err)
	if se == nil {
		se = apperrors.NewInternalError(nil)
	}
	if se.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(se.RetryAfter))
	}
	writeJSON(w, se.HTTPStatus(), errorBody{
		Error:      se.Message,
		Code:       se.Code,
		Field:      se.Field,
		Resource:   se.Resource,
		Identifier: se.Identifier,
		RetryAfter: se.RetryAfter,
		Details:    se.Details,
	})
}
