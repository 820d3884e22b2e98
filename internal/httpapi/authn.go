package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ongsolidaria/backoffice/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/recover",
	"/v1/auth/recover/verify",
	"/v1/auth/reset",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates every non-public request. The caller's roles come
// from the store at request time, never from the assertion, so a role change
// takes effect on the next request.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "credenciales inválidas")
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "credenciales inválidas")
			return
		}

		caller, err := a.svc.ResolveCaller(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				writeError(w, r, http.StatusUnauthorized, "credenciales inválidas")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "error interno")
			return
		}

		ctx := auth.ContextWithCaller(r.Context(), caller)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// require runs the two-stage check for a protected handler: an
// authenticated caller must exist in context, and the grant matrix must
// allow the action on the window. Writes the response on failure.
func (a *API) require(w http.ResponseWriter, r *http.Request, window string, action auth.Action) (auth.Caller, bool) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "credenciales inválidas")
		return auth.Caller{}, false
	}
	if err := a.svc.Authorize(r.Context(), caller, window, action); err != nil {
		handleAuthError(w, r, err)
		return auth.Caller{}, false
	}
	return caller, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
