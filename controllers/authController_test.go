package controllers_test

import (
	"context"
	"regexp"
	"testing"

	"crm-backend/models"
	"crm-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	first := env.request(fiber.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Ada", "last_name": "Lovelace", "email": " Ada@Example.com ", "password": testPassword, "password_confirm": testPassword,
	})
	require.Equal(t, fiber.StatusCreated, first.status, string(first.raw))
	assert.NotEmpty(t, first.body["token"])
	assert.Equal(t, "admin", first.data()["role"])
	assert.Equal(t, "ada@example.com", first.data()["email"])
	assert.NotContains(t, string(first.raw), "password")

	second := env.request(fiber.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Bob", "last_name": "Builder", "email": "bob@example.com", "password": testPassword,
	})
	require.Equal(t, fiber.StatusCreated, second.status)
	assert.Equal(t, "user", second.data()["role"])

	dup := env.request(fiber.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Ada", "last_name": "Again", "email": "ada@example.com", "password": testPassword,
	})
	assert.Equal(t, fiber.StatusBadRequest, dup.status)
	assert.Equal(t, "email already exists", dup.body["message"])

	mismatch := env.request(fiber.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Eve", "last_name": "X", "email": "eve@example.com", "password": testPassword, "password_confirm": "other",
	})
	assert.Equal(t, fiber.StatusBadRequest, mismatch.status)

	bad := env.request(fiber.MethodPost, "/api/auth/login", "", map[string]any{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, bad.status)
	assert.Equal(t, "invalid credentials", bad.body["message"])

	unknown := env.request(fiber.MethodPost, "/api/auth/login", "", map[string]any{"email": "nobody@example.com", "password": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, unknown.status)

	login := env.request(fiber.MethodPost, "/api/auth/login", "", map[string]any{"email": "ADA@example.com", "password": testPassword})
	require.Equal(t, fiber.StatusOK, login.status)
	assert.NotNil(t, login.data()["last_login"])

	me := env.request(fiber.MethodGet, "/api/auth/me", login.body["token"].(string), nil)
	require.Equal(t, fiber.StatusOK, me.status)
	assert.Equal(t, "ada@example.com", me.data()["email"])
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t)
	u := env.user("gone@example.com", models.RoleUser)
	require.NoError(t, env.db.Model(u).Update("is_active", false).Error)

	r := env.request(fiber.MethodPost, "/api/auth/login", "", map[string]any{"email": "gone@example.com", "password": testPassword})
	assert.Equal(t, fiber.StatusUnauthorized, r.status)
	assert.Equal(t, "account is deactivated", r.body["message"])
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	env.user("ada@example.com", models.RoleUser)

	var token string
	env.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg services.Message) error {
			assert.Equal(t, []string{"ada@example.com"}, msg.To)
			m := regexp.MustCompile(`/reset-password/([0-9a-f]{64})`).FindStringSubmatch(msg.HTML)
			if assert.Len(t, m, 2) {
				token = m[1]
			}
			return nil
		})

	missing := env.request(fiber.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "nobody@example.com"})
	assert.Equal(t, fiber.StatusNotFound, missing.status)

	r := env.request(fiber.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "ada@example.com"})
	require.Equal(t, fiber.StatusOK, r.status, string(r.raw))
	require.NotEmpty(t, token)

	var stored models.User
	require.NoError(t, env.db.First(&stored, "email = ?", "ada@example.com").Error)
	assert.Equal(t, models.HashResetToken(token), stored.ResetPasswordToken)

	invalid := env.request(fiber.MethodPut, "/api/auth/reset-password/deadbeef", "", map[string]any{"password": "newpass1"})
	assert.Equal(t, fiber.StatusBadRequest, invalid.status)
	assert.Equal(t, "invalid or expired token", invalid.body["message"])

	reset := env.request(fiber.MethodPut, "/api/auth/reset-password/"+token, "", map[string]any{"password": "newpass1"})
	require.Equal(t, fiber.StatusOK, reset.status, string(reset.raw))
	assert.NotEmpty(t, reset.body["token"])

	// single use
	again := env.request(fiber.MethodPut, "/api/auth/reset-password/"+token, "", map[string]any{"password": "newpass2"})
	assert.Equal(t, fiber.StatusBadRequest, again.status)

	login := env.request(fiber.MethodPost, "/api/auth/login", "", map[string]any{"email": "ada@example.com", "password": "newpass1"})
	assert.Equal(t, fiber.StatusOK, login.status)
}

func TestForgotPasswordMailFailureDiscardsToken(t *testing.T) {
	env := newTestEnv(t)
	env.user("ada@example.com", models.RoleUser)
	env.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(assert.AnError)

	r := env.request(fiber.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "ada@example.com"})
	assert.Equal(t, fiber.StatusInternalServerError, r.status)

	var stored models.User
	require.NoError(t, env.db.First(&stored, "email = ?", "ada@example.com").Error)
	assert.Empty(t, stored.ResetPasswordToken)
	assert.Nil(t, stored.ResetPasswordExpire)
}

func TestGoogleConnectFlow(t *testing.T) {
	env := newTestEnv(t)
	u := env.user("ada@example.com", models.RoleUser)
	tok := env.token(u)

	// integration disabled
	r := env.request(fiber.MethodGet, "/api/auth/google-auth-url", tok, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, r.status)

	cal := newCalendarMock(t)
	env.ctl.Calendar = cal
	cal.EXPECT().AuthURL(u.Id).Return("https://accounts.google.com/o/oauth2/auth?state=" + u.Id)
	cal.EXPECT().Exchange(gomock.Any(), "code-1").Return(&oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}, nil)

	r = env.request(fiber.MethodGet, "/api/auth/google-auth-url", tok, nil)
	require.Equal(t, fiber.StatusOK, r.status)
	assert.Contains(t, r.body["url"], u.Id)

	r = env.request(fiber.MethodPost, "/api/auth/google-callback", tok, map[string]any{"code": "code-1"})
	require.Equal(t, fiber.StatusOK, r.status, string(r.raw))

	var stored models.User
	require.NoError(t, env.db.First(&stored, "id = ?", u.Id).Error)
	assert.True(t, stored.HasGoogleCalendar())
	assert.Equal(t, "access", stored.GoogleAccessToken)
	assert.NotNil(t, stored.GoogleLastSyncedAt)

	r = env.request(fiber.MethodDelete, "/api/auth/google-disconnect", tok, nil)
	require.Equal(t, fiber.StatusOK, r.status)
	require.NoError(t, env.db.First(&stored, "id = ?", u.Id).Error)
	assert.False(t, stored.HasGoogleCalendar())
	assert.Empty(t, stored.GoogleRefreshToken)
}
