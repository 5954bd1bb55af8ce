package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/auth"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)

	tok, err := issuer.Issue("tenant-1", "user-9")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	p, err := issuer.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{TenantID: "tenant-1", UserID: "user-9"}, p)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := auth.NewIssuer("one", time.Hour).Issue("tenant-1", "")
	require.NoError(t, err)

	_, err = auth.NewIssuer("two", time.Hour).Verify(tok.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	claims := auth.Claims{TenantID: "tenant-1"}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = auth.NewIssuer("secret", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	claims := auth.Claims{
		TenantID: "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = auth.NewIssuer("secret", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	var seen auth.Principal
	h := auth.Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/packs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/packs", nil)
	req.Header.Set("Authorization", "Bearer nope")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := issuer.Issue("tenant-1", "")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/packs", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "tenant-1", seen.TenantID)
}
