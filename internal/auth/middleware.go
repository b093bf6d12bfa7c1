package auth

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-polis/internal/common"
)

// Middleware guards routes behind bearer token verification.
type Middleware struct {
	Verifier Verifier
}

// RequireAuth enforces a valid bearer token and stores the subject on the
// request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		subject, err := m.Verifier.ParseToken(token)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), subject)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
