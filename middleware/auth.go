package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"edio/config"
)

// AuthUser is the authenticated identity extracted from the session token.
// It carries identity only; role and ownership are always re-derived from the
// database by the handlers, never trusted from the token.
type AuthUser struct {
	ID    uuid.UUID
	Email string
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseSession verifies a Supabase session JWT (HS256) and returns the
// identity it carries.
func ParseSession(jwtSecret, tokenString string) (AuthUser, error) {
	if tokenString == "" {
		return AuthUser{}, errors.New("missing session token")
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return AuthUser{}, err
	}
	if !token.Valid {
		return AuthUser{}, errors.New("token invalid")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return AuthUser{}, errors.New("invalid session subject")
	}
	return AuthUser{ID: userID, Email: claims.Email}, nil
}

// AuthRequired verifies the bearer token from the Authorization header and
// stores the resulting AuthUser in locals under "user".
func AuthRequired(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "Missing authorization header",
			})
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "Authorization header must be a bearer token",
			})
		}

		authUser, err := ParseSession(jwtSecret, tokenString)
		if err != nil {
			config.Log.WithField("error", err.Error()).Warn("Rejected invalid session token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "Invalid or expired session",
			})
		}

		c.Locals("user", authUser)
		return c.Next()
	}
}

// CurrentUser pulls the AuthUser placed in locals by AuthRequired.
func CurrentUser(c *fiber.Ctx) (AuthUser, bool) {
	user, ok := c.Locals("user").(AuthUser)
	return user, ok
}
