package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/estately/priceuq/internal/config"
)

// ContextKey type for context keys
type ContextKey string

const (
	ContextKeyOperator ContextKey = "operator"
)

// OperatorClaims are the claims carried by an operator bearer token.
type OperatorClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware guards the write endpoints with HS256 operator tokens.
type AuthMiddleware struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(cfg config.JWTConfig) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// IssueToken signs an operator token for subject valid for ttl.
func (m *AuthMiddleware) IssueToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("operator subject is required")
	}
	now := m.now()
	claims := OperatorClaims{
		Scope: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign operator token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a signed operator token and returns its claims.
func (m *AuthMiddleware) ParseToken(raw string) (*OperatorClaims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(m.now)}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid operator token")
	}
	if claims.Scope != "operator" || claims.Subject == "" {
		return nil, fmt.Errorf("token lacks operator scope")
	}
	return claims, nil
}

// RequireOperator rejects requests without a valid operator bearer token.
func (m *AuthMiddleware) RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthorized",
				"message": "Authorization header required",
			})
		}

		claims, err := m.ParseToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthorized",
				"message": "Invalid or expired token",
			})
		}

		c.Locals(string(ContextKeyOperator), claims.Subject)
		return c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// GetOperator gets the authenticated operator subject from context
func GetOperator(c *fiber.Ctx) (string, bool) {
	operator, ok := c.Locals(string(ContextKeyOperator)).(string)
	return operator, ok
}
