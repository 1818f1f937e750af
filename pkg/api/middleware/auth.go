package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kubestellar/aks-console/pkg/session"
)

// TokenTTL is how long an issued session token stays valid.
const TokenTTL = 12 * time.Hour

const sessionKey = "session"

// SessionClaims are the JWT claims carried by a session token
type SessionClaims struct {
	SessionID uuid.UUID `json:"sid"`
	ClientID  string    `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

// IssueJWT signs a token for the session.
func IssueJWT(s *session.Session, secret string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		SessionID: s.ID,
		ClientID:  s.ClientID(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			Subject:   s.ID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateJWT parses and verifies a session token
func ValidateJWT(tokenString, secret string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// BearerToken extracts the token from the Authorization header, falling back
// to the _token query parameter used by EventSource-style clients.
func BearerToken(c *fiber.Ctx) string {
	if header := c.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("_token")
}

// OptionalSession resolves the session named by a valid bearer token, or nil.
func OptionalSession(c *fiber.Ctx, secret string, store *session.Store) *session.Session {
	token := BearerToken(c)
	if token == "" {
		return nil
	}
	claims, err := ValidateJWT(token, secret)
	if err != nil {
		return nil
	}
	s, err := store.Get(claims.SessionID)
	if err != nil {
		return nil
	}
	return s
}

// SessionAuth rejects requests without a token for a live session.
func SessionAuth(secret string, store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := OptionalSession(c, secret, store)
		if s == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}
		c.Locals(sessionKey, s)
		return c.Next()
	}
}

// GetSession returns the session set by SessionAuth
func GetSession(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals(sessionKey).(*session.Session)
	return s
}

// WebSocketUpgrade only lets websocket upgrade requests through.
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
