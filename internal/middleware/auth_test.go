package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/priceuq/internal/config"
)

func newTestAuth() *AuthMiddleware {
	return NewAuthMiddleware(config.JWTConfig{Secret: "test-secret", Issuer: "priceuq-test"})
}

func protectedApp(m *AuthMiddleware) *fiber.App {
	app := fiber.New()
	app.Post("/v1/runs", m.RequireOperator(), func(c *fiber.Ctx) error {
		operator, _ := GetOperator(c)
		return c.SendString(operator)
	})
	return app
}

func TestIssueAndParseToken(t *testing.T) {
	m := newTestAuth()

	token, err := m.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "priceuq-test", claims.Issuer)
	assert.Equal(t, "operator", claims.Scope)

	_, err = m.IssueToken("", time.Hour)
	assert.Error(t, err)
}

func TestParseTokenRejects(t *testing.T) {
	m := newTestAuth()

	t.Run("expired", func(t *testing.T) {
		token, err := m.IssueToken("alice", -time.Minute)
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewAuthMiddleware(config.JWTConfig{Secret: "other", Issuer: "priceuq-test"})
		token, err := other.IssueToken("alice", time.Hour)
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewAuthMiddleware(config.JWTConfig{Secret: "test-secret", Issuer: "someone-else"})
		token, err := other.IssueToken("alice", time.Hour)
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("missing scope", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "priceuq-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := OperatorClaims{Scope: "operator", RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.Error(t, err)
	})
}

func TestRequireOperator(t *testing.T) {
	m := newTestAuth()
	app := protectedApp(m)

	t.Run("missing header", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("POST", "/v1/runs", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/runs", nil)
		req.Header.Set("Authorization", "Basic abc")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/runs", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := m.IssueToken("alice", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest("POST", "/v1/runs", nil)
		req.Header.Set("Authorization", "bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
