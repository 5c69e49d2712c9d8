package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Middleware guards routes with the role policy.
type Middleware struct {
	Policy *Policy
	Logger *slog.Logger
}

// Require lets the request through when the actor may perform action on resource.
func (m Middleware) Require(resource, action string) func(http.Handler) http.Handler {
	return m.RequireAll(shared.Permission(resource, action))
}

// RequireAll lets the request through only when every permission is granted.
// Requests without an actor get 401, denied ones 403.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if missing := m.missing(actor.Role, required); missing != "" {
				if m.Logger != nil {
					m.Logger.Warn("rbac denied",
						slog.Int64("user_id", actor.UserID),
						slog.Int64("company_id", actor.CompanyID),
						slog.String("role", actor.Role),
						slog.String("path", r.URL.Path),
						slog.String("missing", missing))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) missing(role string, required []string) string {
	for _, perm := range required {
		if m.Policy == nil || !m.Policy.Has(role, perm) {
			return perm
		}
	}
	return ""
}

func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
