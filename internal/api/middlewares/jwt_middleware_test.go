package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		_, _ = w.Write([]byte(id))
	})
}

func TestJWTMiddleware(t *testing.T) {
	valid := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"user_id": "u1", "exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u1"})
	noUser := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1"})
	hs512 := sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"user_id": "u1"})

	tests := []struct {
		name   string
		header string
		query  string
		code   int
		body   string
	}{
		{name: "valid header", header: "Bearer " + valid, code: http.StatusOK, body: "u1"},
		{name: "query token", query: "?access_token=" + valid, code: http.StatusOK, body: "u1"},
		{name: "missing", code: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", query: "?access_token=" + valid, code: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, code: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + wrongKey, code: http.StatusUnauthorized},
		{name: "no user claim", header: "Bearer " + noUser, code: http.StatusUnauthorized},
		{name: "other algorithm", header: "Bearer " + hs512, code: http.StatusUnauthorized},
	}
	h := JWTMiddleware(testSecret)(echoUser())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/context"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}
