package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/klinikdesk/platform/internal/identity"
	"github.com/klinikdesk/platform/internal/tenancy"
	"github.com/klinikdesk/platform/pkg/logging"
)

// SessionAuth resolves the bearer token into an actor and binds both the
// actor and its clinic to the request context. Requests without a resolvable
// actor never reach the handler.
func SessionAuth(resolver identity.Resolver, logger *logging.Logger) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("middleware: resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			actor, err := resolver.ResolveActor(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				message := "authentication required"
				if errors.Is(err, identity.ErrNoMembership) {
					status = http.StatusForbidden
					message = "no clinic membership"
				}
				if !errors.Is(err, identity.ErrUnauthenticated) && !errors.Is(err, identity.ErrNoMembership) {
					logger.Error("actor resolution failed", "error", err, "path", r.URL.Path)
					status = http.StatusInternalServerError
					message = "internal error"
				}
				writeAuthError(w, status, message)
				return
			}

			ctx := identity.WithActor(r.Context(), actor)
			ctx = tenancy.WithClinicID(ctx, actor.ClinicID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
