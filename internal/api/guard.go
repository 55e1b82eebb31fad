package api

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/auth"
	"github.com/massy-ia/citydesk/internal/store"
)

// UserLookup resolves the account behind a credential.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
}

// callerHandler is a handler that receives the resolved caller explicitly.
// caller is nil on optional-auth routes when no credential was sent.
type callerHandler func(w http.ResponseWriter, r *http.Request, caller *store.User)

// Guard resolves bearer credentials to accounts and enforces role gates.
type Guard struct {
	tokens *auth.TokenIssuer
	users  UserLookup
}

func NewGuard(tokens *auth.TokenIssuer, users UserLookup) *Guard {
	return &Guard{tokens: tokens, users: users}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	return strings.TrimSpace(token), ok
}

// resolve parses the bearer credential of the wanted type and loads its account.
func (g *Guard) resolve(r *http.Request, want auth.TokenType) (*store.User, *auth.Claims, error) {
	token, ok := bearerToken(r)
	if !ok || token == "" {
		return nil, nil, apperr.Unauthenticated("authorization header is required")
	}
	claims, err := g.tokens.Parse(token, want)
	if err != nil {
		return nil, nil, err
	}
	user, err := g.users.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Authenticated requires a valid access credential.
func (g *Guard) Authenticated(next callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _, err := g.resolve(r, auth.AccessToken)
		if err != nil {
			respondError(w, r, err)
			return
		}
		next(w, r, caller)
	}
}

// Optional resolves the caller when a credential is sent. An invalid
// credential is still rejected.
func (g *Guard) Optional(next callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, sent := bearerToken(r); !sent {
			next(w, r, nil)
			return
		}
		g.Authenticated(next)(w, r)
	}
}

// WithRole requires an access credential whose account has one of roles.
func (g *Guard) WithRole(next callerHandler, roles ...store.Role) http.HandlerFunc {
	return g.Authenticated(func(w http.ResponseWriter, r *http.Request, caller *store.User) {
		if !slices.Contains(roles, caller.Role) {
			respondError(w, r, apperr.Forbidden("access restricted to "+joinRoles(roles)))
			return
		}
		next(w, r, caller)
	})
}

// Refresh requires a valid refresh credential and passes its claims on.
func (g *Guard) Refresh(next func(w http.ResponseWriter, r *http.Request, caller *store.User, claims *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, claims, err := g.resolve(r, auth.RefreshToken)
		if err != nil {
			respondError(w, r, err)
			return
		}
		next(w, r, caller, claims)
	}
}

func joinRoles(roles []store.Role) string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return strings.Join(names, ", ")
}
