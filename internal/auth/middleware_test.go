package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-polis/internal/auth"
	"github.com/noah-isme/backend-polis/internal/common"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	testNow    = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func signToken(t *testing.T, subject string, issued time.Time, ttl time.Duration) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		Issuer("identity").
		IssuedAt(issued).
		Expiration(issued.Add(ttl)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, testSecret))
	require.NoError(t, err)
	return string(signed)
}

func newMiddleware() auth.Middleware {
	return auth.Middleware{Verifier: auth.Verifier{
		Secret: testSecret,
		Issuer: "identity",
		Now:    func() time.Time { return testNow },
	}}
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	var gotSubject string
	handler := newMiddleware().RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "underwriter-1", testNow, time.Hour))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "underwriter-1", gotSubject)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	handler := newMiddleware().RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	handler := newMiddleware().RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "underwriter-1", testNow.Add(-2*time.Hour), time.Hour))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthRejectsWrongKey(t *testing.T) {
	tok, err := jwt.NewBuilder().Subject("x").Issuer("identity").Expiration(testNow.Add(time.Hour)).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("another-secret-another-secret!!!")))
	require.NoError(t, err)

	handler := newMiddleware().RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+string(signed))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
