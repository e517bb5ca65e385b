package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC))
	a := New("s3cret", clock)

	token, err := a.Mint("analyst@example.com", time.Hour)
	require.NoError(t, err)

	subject, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst@example.com", subject)

	clock.Advance(2 * time.Hour)
	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_Rejects(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := New("s3cret", clock)

	other, err := New("different", clock).Mint("x", time.Hour)
	require.NoError(t, err)
	_, err = a.Verify(other)
	assert.ErrorIs(t, err, ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "x",
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Verify(unsigned)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Verify("garbage")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestMiddleware(t *testing.T) {
	a := New("s3cret", clockwork.NewFakeClock())
	var gotSubject string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := a.Mint("ops", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ops", gotSubject)
}

func TestMiddleware_Disabled(t *testing.T) {
	a := New("", nil)
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := a.Mint("x", time.Hour)
	assert.Error(t, err)
}
