package middlewares

import (
	"net/http/httptest"
	"testing"
	"time"

	"crm-backend/config"
	"crm-backend/database"
	"crm-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testAuth = config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour}

func TestJWTRoundTrip(t *testing.T) {
	user := &models.User{Id: "u-1", Role: models.RoleManager}
	raw, err := GenerateJWT(testAuth, user, time.Now())
	require.NoError(t, err)

	claims, err := ParseJWT(testAuth, raw)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, models.RoleManager, claims.Role)
}

func TestParseJWTRejects(t *testing.T) {
	user := &models.User{Id: "u-1", Role: models.RoleUser}

	expired, err := GenerateJWT(testAuth, user, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = ParseJWT(testAuth, expired)
	assert.Error(t, err, "expired")

	other, err := GenerateJWT(config.AuthConfig{JWTSecret: "other", TokenTTL: time.Hour}, user, time.Now())
	require.NoError(t, err)
	_, err = ParseJWT(testAuth, other)
	assert.Error(t, err, "wrong secret")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseJWT(testAuth, unsigned)
	assert.Error(t, err, "alg none")

	_, err = GenerateJWT(config.AuthConfig{}, user, time.Now())
	assert.Error(t, err, "missing secret")
}

func TestIsAuthenticatedHeader(t *testing.T) {
	db, err := database.OpenSQLiteMemory(t.Name())
	require.NoError(t, err)

	active := models.User{FirstName: "A", LastName: "B", Email: "a@example.com", Password: []byte("x"), IsActive: true}
	require.NoError(t, db.Create(&active).Error)
	inactive := models.User{FirstName: "C", LastName: "D", Email: "c@example.com", Password: []byte("x")}
	require.NoError(t, db.Create(&inactive).Error)

	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(zap.NewNop())})
	app.Get("/me", IsAuthenticatedHeader(db, testAuth), func(c *fiber.Ctx) error {
		return c.SendString(CurrentUser(c).Email)
	})
	app.Delete("/admin", IsAuthenticatedHeader(db, testAuth), RequireRoles(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	token := func(u *models.User) string {
		raw, err := GenerateJWT(testAuth, u, time.Now())
		require.NoError(t, err)
		return "Bearer " + raw
	}

	cases := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"no header", fiber.MethodGet, "/me", "", fiber.StatusUnauthorized},
		{"not bearer", fiber.MethodGet, "/me", "Basic abc", fiber.StatusUnauthorized},
		{"garbage token", fiber.MethodGet, "/me", "Bearer abc", fiber.StatusUnauthorized},
		{"unknown user", fiber.MethodGet, "/me", token(&models.User{Id: "missing", Role: models.RoleUser}), fiber.StatusUnauthorized},
		{"deactivated", fiber.MethodGet, "/me", token(&inactive), fiber.StatusUnauthorized},
		{"ok", fiber.MethodGet, "/me", token(&active), fiber.StatusOK},
		{"role denied", fiber.MethodDelete, "/admin", token(&active), fiber.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
