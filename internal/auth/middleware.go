package auth

import (
	"context"
	"log"
	"net/http"
	"strings"

	"fraudulert-backend/internal/cache"
	"fraudulert-backend/internal/models"
)

type contextKey string

const principalKey contextKey = "fraudulert_principal"

// Principal is the authenticated caller attached to every protected
// request: identity, role and organisation as carried by the credential.
type Principal struct {
	UID  string
	Role string
	Org  string
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// Middleware validates the session credential and attaches the principal.
// The embedded role/org claims are trusted as-is; a redis-backed
// revocation horizon closes the window after explicit revocations, and the
// credential TTL bounds staleness for everything else.
func Middleware(cacheClient cache.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, ErrMissingCredential.Error(), http.StatusUnauthorized)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				http.Error(w, ErrMissingCredential.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := ParseToken(token)
			if err != nil || claims.Subject == "" {
				http.Error(w, ErrInvalidCredential.Error(), http.StatusUnauthorized)
				return
			}

			if revoked(cacheClient, claims) {
				http.Error(w, ErrInvalidCredential.Error(), http.StatusUnauthorized)
				return
			}

			principal := Principal{
				UID:  claims.Subject,
				Role: claims.Role,
				Org:  claims.Org,
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func revoked(cacheClient cache.Client, claims *Claims) bool {
	if cacheClient == nil || claims.IssuedAt == nil {
		return false
	}
	horizon, ok, err := cacheClient.GetRevocationHorizon(claims.Subject)
	if err != nil {
		// The TTL remains the hard staleness bound when redis is down.
		log.Printf("WARN revocation horizon lookup failed for %s: %v", claims.Subject, err)
		return false
	}
	return ok && claims.IssuedAt.Time.Before(horizon)
}

// RequireAdmin gates a route to admin principals.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, ErrInvalidCredential.Error(), http.StatusUnauthorized)
			return
		}
		if !principal.IsAdmin() {
			http.Error(w, ErrForbidden.Error(), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// ContextWithPrincipal is used by handler tests to seed a request context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
