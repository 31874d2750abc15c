package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edio/config"
)

const testSecret = "test-session-secret"

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseSession(t *testing.T) {
	userID := uuid.New()

	token := signTestToken(t, testSecret, jwt.MapClaims{
		"sub":   userID.String(),
		"email": "jane@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	user, err := ParseSession(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, "jane@example.com", user.Email)
}

func TestParseSessionRejectsBadTokens(t *testing.T) {
	userID := uuid.New()

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", signTestToken(t, "other-secret", jwt.MapClaims{
			"sub": userID.String(), "exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"expired", signTestToken(t, testSecret, jwt.MapClaims{
			"sub": userID.String(), "exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"non-uuid subject", signTestToken(t, testSecret, jwt.MapClaims{
			"sub": "not-a-uuid", "exp": time.Now().Add(time.Hour).Unix(),
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSession(testSecret, tc.token)
			assert.Error(t, err)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	if config.Log == nil {
		config.InitLogger("error")
	}
	userID := uuid.New()

	app := fiber.New()
	app.Use(AuthRequired(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		return c.SendString(user.ID.String())
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("not a bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token reaches the handler", func(t *testing.T) {
		token := signTestToken(t, testSecret, jwt.MapClaims{
			"sub": userID.String(), "email": "jane@example.com",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, userID.String(), string(body))
	})
}
