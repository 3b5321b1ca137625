package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/auth"
	"github.com/flowplane/controlplane/internal/app/logging"
)

// loggingMiddleware attaches a trace ID to the request context and logs
// method/path/status/duration for every request.
func loggingMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			r.Header.Set("X-Trace-ID", traceID)
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.WithContext(ctx).WithField("status", wrapped.status).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Infof("%s %s", r.Method, r.URL.Path)
		})
	}
}

// recoveryMiddleware converts a panic into a 500 response instead of
// crashing the process.
func recoveryMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithContext(r.Context()).WithField("panic", rec).
						WithField("stack", string(debug.Stack())).Error("panic recovered")
					writeError(w, apperrors.NewInternalError(nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware allows cross-origin requests from the operator dashboard
// and short-circuits preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey string

const authContextKey ctxKey = "auth_context"

// authMiddleware authenticates the bearer credential on every request
// except the paths in publicPaths: either a long-lived "fp_pat_"/"fp_setup_"
// token (validated through authenticator) or a session JWT issued by
// sessions.Issue after a password login. It stashes the resulting
// AuthContext for handlers to read with authFromContext.
func authMiddleware(authenticator *auth.Authenticator, sessions *auth.SessionIssuer, publicPaths map[string]bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := strings.TrimSpace(r.Header.Get("Authorization"))
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				writeError(w, apperrors.NewUnauthenticatedError("missing bearer token"))
				return
			}
			presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))

			var authCtx auth.AuthContext
			if strings.HasPrefix(presented, "fp_pat_") || strings.HasPrefix(presented, "fp_setup_") {
				var err error
				authCtx, err = authenticator.Authenticate(r.Context(), presented)
				if err != nil {
					writeError(w, apperrors.GetServiceError(err))
					return
				}
			} else {
				claims, err := sessions.Verify(presented)
				if err != nil {
					writeError(w, apperrors.NewUnauthenticatedError("invalid session token"))
					return
				}
				authCtx = auth.AuthContext{TokenID: claims.UserID, Name: claims.Subject, Scopes: claims.Scopes}
			}

			ctx := logging.WithUserID(r.Context(), authCtx.TokenID)
			ctx = context.WithValue(ctx, authContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authFromContext(r *http.Request) (auth.AuthContext, bool) {
	v := r.Context().Value(authContextKey)
	if v == nil {
		return auth.AuthContext{}, false
	}
	authCtx, ok := v.(auth.AuthContext)
	return authCtx, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
