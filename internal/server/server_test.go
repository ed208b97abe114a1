package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/authgate/internal/config"
	"github.com/iudanet/authgate/internal/crypto"
	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/auth"
	"github.com/iudanet/authgate/internal/server/guard"
	"github.com/iudanet/authgate/internal/server/storage/memory"
	"github.com/iudanet/authgate/internal/server/storage/sqlite"
	"github.com/iudanet/authgate/internal/server/token"
	"github.com/iudanet/authgate/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testApp struct {
	auth   *auth.Service
	store  Store
	server *Server
	url    string
}

func newTestApp(t *testing.T, store Store, opts Options) *testApp {
	t.Helper()
	logger := setupTestLogger()

	tokens, err := token.NewService(token.Config{Secret: []byte("test-secret-key"), TTL: time.Hour})
	require.NoError(t, err)

	hasher := crypto.NewHasher(crypto.Params{Memory: 8 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})
	authSvc := auth.NewService(logger, store, tokens, auth.WithPasswordHasher(hasher))

	srv := New(logger, Deps{
		Auth:   authSvc,
		Guard:  guard.New(logger, tokens, store),
		Health: store,
	}, opts)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testApp{auth: authSvc, store: store, server: srv, url: ts.URL}
}

func (a *testApp) do(t *testing.T, method, path, bearer string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, a.url+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, resp.Body.Close())
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (a *testApp) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/v1/auth/login", "", api.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var login api.LoginResponse
	require.NoError(t, json.Unmarshal(body, &login))
	return login.AccessToken
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Message
}

func stores() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return memory.New() },
		"sqlite": func(t *testing.T) Store {
			s, err := sqlite.New(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestServer_Scenario(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			app := newTestApp(t, newStore(t), Options{})

			// Регистрация
			resp, body := app.do(t, http.MethodPost, "/api/v1/auth/register", "", api.RegisterRequest{
				Name: "Tanish", Email: "t@example.com", Password: "pw123",
			})
			require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
			assert.NotContains(t, string(body), "pw123")

			var registered api.RegisterResponse
			require.NoError(t, json.Unmarshal(body, &registered))
			assert.Equal(t, "user", registered.User.Role)

			stored, err := app.store.GetUserByEmail(t.Context(), "t@example.com")
			require.NoError(t, err)
			assert.NotEqual(t, "pw123", stored.PasswordHash)

			// Повторная регистрация
			resp, body = app.do(t, http.MethodPost, "/api/v1/auth/register", "", api.RegisterRequest{
				Name: "Tanish", Email: "t@example.com", Password: "other",
			})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Email already exists", errorMessage(t, body))

			// Пустые имя и пароль не маскируют занятый email
			resp, body = app.do(t, http.MethodPost, "/api/v1/auth/register", "", api.RegisterRequest{
				Email: "t@example.com",
			})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Email already exists", errorMessage(t, body))

			// Вход и профиль
			tok := app.login(t, "t@example.com", "pw123")
			resp, body = app.do(t, http.MethodGet, "/api/v1/profile", tok, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

			var profile api.ProfileResponse
			require.NoError(t, json.Unmarshal(body, &profile))
			assert.True(t, profile.Success)
			assert.Equal(t, "t@example.com", profile.User.Email)
			assert.Equal(t, registered.User.ID, profile.User.ID)
			assert.NotNil(t, profile.User.LastLogin)

			// Роль user не проходит на admin
			resp, body = app.do(t, http.MethodGet, "/api/v1/admin", tok, nil)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			assert.Equal(t, "access denied", errorMessage(t, body))

			// Неверные учетные данные
			resp, body = app.do(t, http.MethodPost, "/api/v1/auth/login", "", api.LoginRequest{Email: "t@example.com", Password: "nope"})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Invalid credentials", errorMessage(t, body))

			// Без токена и с мусором вместо токена
			resp, body = app.do(t, http.MethodGet, "/api/v1/profile", "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "not authorized, token missing", errorMessage(t, body))

			resp, body = app.do(t, http.MethodGet, "/api/v1/profile", "garbage", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "invalid or expired token", errorMessage(t, body))

			// Удаленный пользователь с действующим токеном
			require.NoError(t, app.store.DeleteUser(t.Context(), registered.User.ID))
			resp, _ = app.do(t, http.MethodGet, "/api/v1/profile", tok, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestServer_AdminAccess(t *testing.T) {
	app := newTestApp(t, memory.New(), Options{})

	err := EnsureAdmin(t.Context(), setupTestLogger(), app.auth, app.store, config.AdminConfig{
		Name: "Root", Email: "admin@example.com", Password: "admin-pass",
	})
	require.NoError(t, err)

	tok := app.login(t, "admin@example.com", "admin-pass")
	resp, body := app.do(t, http.MethodGet, "/api/v1/admin", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var msg api.MessageResponse
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "Admin Access Granted", msg.Message)
}

func TestServer_HealthAndRouting(t *testing.T) {
	app := newTestApp(t, memory.New(), Options{})

	resp, body := app.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health api.HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)

	resp, _ = app.do(t, http.MethodGet, "/api/v1/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = app.do(t, http.MethodGet, "/api/v1/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	app := newTestApp(t, memory.New(), Options{RateLimit: 2, RateWindow: time.Minute})

	creds := api.LoginRequest{Email: "nobody@example.com", Password: "pw123"}
	for i := 0; i < 2; i++ {
		resp, _ := app.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	resp, _ := app.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health не ограничивается
	resp, _ = app.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Serve_GracefulShutdown(t *testing.T) {
	store := memory.New()
	tokens, err := token.NewService(token.Config{Secret: []byte("test-secret-key"), TTL: time.Hour})
	require.NoError(t, err)

	srv := New(setupTestLogger(), Deps{
		Auth:   auth.NewService(setupTestLogger(), store, tokens),
		Guard:  guard.New(setupTestLogger(), tokens, store),
		Health: store,
	}, Options{ShutdownTimeout: time.Second, RateLimit: 5, RateWindow: time.Minute})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/v1/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = http.Get(url)
	assert.Error(t, err, "listener should be closed")
}

func TestEnsureAdmin(t *testing.T) {
	logger := setupTestLogger()
	tokens, err := token.NewService(token.Config{Secret: []byte("test-secret-key"), TTL: time.Hour})
	require.NoError(t, err)
	hasher := crypto.NewHasher(crypto.Params{Memory: 8 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})

	t.Run("disabled", func(t *testing.T) {
		store := memory.New()
		svc := auth.NewService(logger, store, tokens, auth.WithPasswordHasher(hasher))
		require.NoError(t, EnsureAdmin(t.Context(), logger, svc, store, config.AdminConfig{}))

		_, err := store.GetUserByEmail(t.Context(), "")
		assert.Error(t, err)
	})

	t.Run("idempotent", func(t *testing.T) {
		store := memory.New()
		svc := auth.NewService(logger, store, tokens, auth.WithPasswordHasher(hasher))
		admin := config.AdminConfig{Name: "Root", Email: "admin@example.com", Password: "admin-pass"}

		require.NoError(t, EnsureAdmin(t.Context(), logger, svc, store, admin))
		first, err := store.GetUserByEmail(t.Context(), "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, first.Role)

		require.NoError(t, EnsureAdmin(t.Context(), logger, svc, store, admin))
		second, err := store.GetUserByEmail(t.Context(), "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("existing user keeps role", func(t *testing.T) {
		store := memory.New()
		svc := auth.NewService(logger, store, tokens, auth.WithPasswordHasher(hasher))

		_, err := svc.Register(t.Context(), auth.RegisterParams{Name: "Tanish", Email: "t@example.com", Password: "pw123"})
		require.NoError(t, err)

		require.NoError(t, EnsureAdmin(t.Context(), logger, svc, store, config.AdminConfig{
			Name: "Root", Email: "t@example.com", Password: "admin-pass",
		}))

		user, err := store.GetUserByEmail(t.Context(), "t@example.com")
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, user.Role)
	})
}
