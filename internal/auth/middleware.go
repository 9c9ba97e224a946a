package auth

import (
	"context"
	"net/http"

	"github.com/sakif/auth-service/internal/model"
)

// TokenCookie is the name of the HttpOnly cookie that carries the session JWT.
const TokenCookie = "token"

// contextKey is an unexported type for context keys in this package.
//
// A package-private key type means no other package can read or shadow the
// value, even by accident with an identical string.
type contextKey string

const userKey contextKey = "user"

// Authenticator turns a raw session token into a live account.
// service.AuthService implements it: the token is verified and the account
// re-resolved in the store, so a deleted user's token stops working at once.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the "token" cookie and resolves it through authn. If
// the cookie is missing or the token does not resolve to an account, it
// returns 401 and stops the chain. Otherwise the account is stored in the
// request context for the handler.
//
// COOKIE-BASED TOKEN STORAGE:
// HttpOnly means JavaScript cannot read the cookie, so an XSS bug cannot
// exfiltrate the session.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(TokenCookie)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			user, err := authn.Authenticate(r.Context(), cookie.Value)
			if err != nil || user == nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"error":"unauthenticated","message":"valid authentication required"}`))
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the account RequireAuth attached to the request.
//
// Returns (nil, false) for an anonymous request.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}
