package controllers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"crm-backend/config"
	"crm-backend/controllers"
	"crm-backend/database"
	"crm-backend/middlewares"
	"crm-backend/models"
	"crm-backend/routes"
	"crm-backend/services/mocks"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testPassword = "secret123"

type testEnv struct {
	t      *testing.T
	app    *fiber.App
	db     *gorm.DB
	ctl    *controllers.Controller
	mailer *mocks.MockMailer
	pdf    *mocks.MockRenderer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLiteMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	ctrl := gomock.NewController(t)
	env := &testEnv{
		t:      t,
		db:     db,
		mailer: mocks.NewMockMailer(ctrl),
		pdf:    mocks.NewMockRenderer(ctrl),
	}
	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		App: config.AppConfig{
			FrontendURL: "http://localhost:3000",
			CompanyName: "Acme",
			PDFDir:      t.TempDir(),
		},
	}
	log := zap.NewNop()
	env.ctl = controllers.New(db, env.mailer, env.pdf, nil, log, cfg)
	env.app = fiber.New(fiber.Config{ErrorHandler: middlewares.NewErrorHandler(log)})
	routes.Register(env.app, env.ctl)
	return env
}

// user inserts an active account with a cheap password hash.
func (env *testEnv) user(email string, role models.Role) *models.User {
	env.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(env.t, err)
	u := &models.User{FirstName: "Test", LastName: string(role), Email: email, Password: hash, Role: role, IsActive: true}
	require.NoError(env.t, env.db.Create(u).Error)
	return u
}

func (env *testEnv) token(u *models.User) string {
	env.t.Helper()
	raw, err := middlewares.GenerateJWT(env.ctl.Config.Auth, u, time.Now())
	require.NoError(env.t, err)
	return raw
}

func (env *testEnv) customer(owner *models.User, email string) *models.Customer {
	env.t.Helper()
	c := &models.Customer{FirstName: "Grace", LastName: "Hopper", Email: email, AssignedToId: &owner.Id}
	require.NoError(env.t, env.db.Create(c).Error)
	return c
}

type response struct {
	status int
	body   map[string]any
	raw    []byte
	header func(string) string
}

// data returns the "data" object of a JSON envelope.
func (r response) data() map[string]any {
	m, _ := r.body["data"].(map[string]any)
	return m
}

func (r response) list() []any {
	l, _ := r.body["data"].([]any)
	return l
}

func (env *testEnv) request(method, path, token string, body any, headers ...string) response {
	env.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(env.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := env.app.Test(req, -1)
	require.NoError(env.t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(env.t, err)

	r := response{status: resp.StatusCode, raw: raw, header: resp.Header.Get}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(env.t, json.Unmarshal(raw, &r.body), string(raw))
	}
	return r
}

func newCalendarMock(t *testing.T) *mocks.MockCalendar {
	return mocks.NewMockCalendar(gomock.NewController(t))
}

func date(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
