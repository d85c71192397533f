package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medflow/medication-ledger/pkg/actor"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: "nurse@medflow.local",
		Role:  "nurse",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func captureActor(seen **actor.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = actor.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestOperator_BearerToken(t *testing.T) {
	var seen *actor.Actor
	h := Operator(testSecret, logger.Nop())(captureActor(&seen))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/medication/bulk", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "nurse-1", time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "nurse-1", seen.ID)
	assert.Equal(t, "nurse", seen.RoleName)
}

func TestOperator_RejectsBadTokens(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", "UNAUTHORIZED"},
		{"wrong secret", "Bearer " + signToken(t, "other", "nurse-1", time.Now().Add(time.Hour)), "TOKEN_INVALID"},
		{"expired", "Bearer " + signToken(t, testSecret, "nurse-1", time.Now().Add(-time.Hour)), "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *actor.Actor
			h := Operator(testSecret, logger.Nop())(captureActor(&seen))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/medication/bulk", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantCode)
			assert.Nil(t, seen)
		})
	}
}

func TestOperator_GatewayHeaders(t *testing.T) {
	var seen *actor.Actor
	h := Operator("", logger.Nop())(captureActor(&seen))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/medication/transfers", nil)
	req.Header.Set("X-User-ID", "nurse-2")
	req.Header.Set("X-User-Email", "n2@medflow.local")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, "nurse-2", seen.ID)
	assert.Equal(t, "n2@medflow.local", seen.Email)
}

func TestOperator_HealthBypassesToken(t *testing.T) {
	var seen *actor.Actor
	h := Operator(testSecret, logger.Nop())(captureActor(&seen))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, seen)
}
