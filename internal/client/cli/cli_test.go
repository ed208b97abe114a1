package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/authgate/internal/client/api"
	"github.com/iudanet/authgate/internal/client/auth"
	"github.com/iudanet/authgate/internal/client/iocli"
	"github.com/iudanet/authgate/internal/client/storage"
	"github.com/iudanet/authgate/internal/client/storage/boltdb"
	pkgapi "github.com/iudanet/authgate/pkg/api"
)

// newTestIO возвращает IO, который отдает заранее заданный ввод и пишет вывод в буфер
func newTestIO(inputs, passwords []string) (*iocli.IOMock, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &iocli.IOMock{
		PrintlnFunc: func(a ...any) { fmt.Fprintln(out, a...) },
		PrintfFunc:  func(format string, a ...any) { fmt.Fprintf(out, format, a...) },
		WriteFunc:   out.Write,
		ReadInputFunc: func(prompt string) (string, error) {
			if len(inputs) == 0 {
				return "", io.EOF
			}
			v := inputs[0]
			inputs = inputs[1:]
			return v, nil
		},
		ReadPasswordFunc: func(prompt string) (string, error) {
			if len(passwords) == 0 {
				return "", io.EOF
			}
			v := passwords[0]
			passwords = passwords[1:]
			return v, nil
		},
	}, out
}

func newTestStore(t *testing.T) *boltdb.Storage {
	t.Helper()
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func newTestSession(client auth.APIClient, store storage.AuthStorage) *auth.Service {
	return auth.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), client, store)
}

func fakeServer() *auth.APIClientMock {
	return &auth.APIClientMock{
		RegisterFunc: func(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.RegisterResponse, error) {
			return &pkgapi.RegisterResponse{
				Message: "User registered successfully",
				User:    pkgapi.User{ID: "user-123", Name: req.Name, Email: req.Email, Role: "user"},
			}, nil
		},
		LoginFunc: func(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.LoginResponse, error) {
			if req.Password != "pw123" {
				return nil, &api.StatusError{StatusCode: http.StatusBadRequest, Message: "Invalid credentials"}
			}
			return &pkgapi.LoginResponse{AccessToken: "token-abc", ExpiresIn: 3600}, nil
		},
		ProfileFunc: func(ctx context.Context, token string) (*pkgapi.ProfileResponse, error) {
			if token != "token-abc" {
				return nil, &api.StatusError{StatusCode: http.StatusUnauthorized, Message: "invalid or expired token"}
			}
			lastLogin := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
			return &pkgapi.ProfileResponse{Success: true, User: pkgapi.User{
				ID: "user-123", Name: "Tanish", Email: "t@example.com", Role: "user", LastLogin: &lastLogin,
			}}, nil
		},
		AdminFunc: func(ctx context.Context, token string) (*pkgapi.MessageResponse, error) {
			return nil, &api.StatusError{StatusCode: http.StatusForbidden, Message: "access denied"}
		},
		HealthFunc: func(ctx context.Context) (*pkgapi.HealthResponse, error) {
			return &pkgapi.HealthResponse{Status: "ok", Version: "1.2.0"}, nil
		},
	}
}

func TestCli_Register(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	t.Run("interactive with confirmation", func(t *testing.T) {
		ioMock, out := newTestIO([]string{"Tanish", "t@example.com"}, []string{"pw123", "pw123"})
		server := fakeServer()
		c := New(ioMock, newTestSession(server, newTestStore(t)), Passwords{})

		require.NoError(t, c.Run(context.Background(), "register", nil))

		assert.Contains(t, out.String(), "Registration successful")
		assert.Contains(t, out.String(), "User ID: user-123")
		require.Len(t, server.RegisterCalls(), 1)
		assert.Equal(t, "pw123", server.RegisterCalls()[0].Req.Password)
		assert.Len(t, ioMock.ReadPasswordCalls(), 2)
	})

	t.Run("passwords do not match", func(t *testing.T) {
		ioMock, _ := newTestIO([]string{"Tanish", "t@example.com"}, []string{"pw123", "other"})
		server := fakeServer()
		c := New(ioMock, newTestSession(server, newTestStore(t)), Passwords{})

		err := c.Run(context.Background(), "register", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "passwords do not match")
		assert.Empty(t, server.RegisterCalls())
	})

	t.Run("email from args and password from flag", func(t *testing.T) {
		ioMock, _ := newTestIO([]string{"Tanish"}, nil)
		server := fakeServer()
		c := New(ioMock, newTestSession(server, newTestStore(t)), Passwords{FromArgs: "pw123"})

		require.NoError(t, c.Run(context.Background(), "register", []string{"t@example.com"}))
		assert.Equal(t, "t@example.com", server.RegisterCalls()[0].Req.Email)
		assert.Empty(t, ioMock.ReadPasswordCalls(), "no confirmation for non-interactive password")
	})
}

func TestCli_LoginStatusProfileLogout(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	ctx := context.Background()
	server := fakeServer()
	store := newTestStore(t)

	// Вход
	ioMock, out := newTestIO(nil, []string{"pw123"})
	c := New(ioMock, newTestSession(server, store), Passwords{})
	require.NoError(t, c.Run(ctx, "login", []string{"t@example.com"}))
	assert.Contains(t, out.String(), "Login successful")
	assert.Contains(t, out.String(), "Role: user")

	// Статус
	ioMock, out = newTestIO(nil, nil)
	c = New(ioMock, newTestSession(server, store), Passwords{})
	require.NoError(t, c.Run(ctx, "status", nil))
	assert.Contains(t, out.String(), "Status: Authenticated")
	assert.Contains(t, out.String(), "Email: t@example.com")
	assert.Contains(t, out.String(), "User ID: user-123")

	// Профиль
	ioMock, out = newTestIO(nil, nil)
	c = New(ioMock, newTestSession(server, store), Passwords{})
	require.NoError(t, c.Run(ctx, "profile", nil))
	assert.Contains(t, out.String(), "Name: Tanish")
	assert.Contains(t, out.String(), "Last login: 2025-01-01T12:00:00Z")

	// Admin для обычного пользователя
	ioMock, _ = newTestIO(nil, nil)
	c = New(ioMock, newTestSession(server, store), Passwords{})
	err := c.Run(ctx, "admin", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrForbidden)

	// Выход
	ioMock, out = newTestIO(nil, nil)
	c = New(ioMock, newTestSession(server, store), Passwords{})
	require.NoError(t, c.Run(ctx, "logout", nil))
	assert.Contains(t, out.String(), "Logout successful")

	_, err = store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)

	// Повторный выход и статус без сессии
	ioMock, out = newTestIO(nil, nil)
	c = New(ioMock, newTestSession(server, store), Passwords{})
	require.NoError(t, c.Run(ctx, "logout", nil))
	assert.Contains(t, out.String(), "No active session")

	ioMock, out = newTestIO(nil, nil)
	c = New(ioMock, newTestSession(server, store), Passwords{})
	require.NoError(t, c.Run(ctx, "status", nil))
	assert.Contains(t, out.String(), "Status: Not authenticated")

	ioMock, _ = newTestIO(nil, nil)
	c = New(ioMock, newTestSession(server, store), Passwords{})
	assert.ErrorIs(t, c.Run(ctx, "profile", nil), auth.ErrNotAuthenticated)
}

func TestCli_Login_InvalidCredentials(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	store := newTestStore(t)
	ioMock, _ := newTestIO([]string{"t@example.com"}, []string{"wrong"})
	c := New(ioMock, newTestSession(fakeServer(), store), Passwords{})

	err := c.Run(context.Background(), "login", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")

	_, err = store.GetAuth(context.Background())
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}

func TestCli_Status_Expired(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveAuth(context.Background(), &storage.AuthData{
		Email:       "t@example.com",
		AccessToken: "old",
		ExpiresAt:   time.Now().Add(-time.Hour).Unix(),
	}))

	ioMock, out := newTestIO(nil, nil)
	c := New(ioMock, newTestSession(fakeServer(), store), Passwords{})

	require.NoError(t, c.Run(context.Background(), "status", nil))
	assert.Contains(t, out.String(), "Status: Session expired")
	assert.Contains(t, out.String(), "Email: t@example.com")
}

func TestCli_Profile_RejectedToken(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveAuth(context.Background(), &storage.AuthData{
		Email:       "t@example.com",
		AccessToken: "revoked",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	}))

	ioMock, _ := newTestIO(nil, nil)
	c := New(ioMock, newTestSession(fakeServer(), store), Passwords{})

	err := c.Run(context.Background(), "profile", nil)
	assert.ErrorIs(t, err, auth.ErrSessionExpired)

	_, err = store.GetAuth(context.Background())
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}

func TestCli_Health(t *testing.T) {
	t.Run("server up", func(t *testing.T) {
		ioMock, out := newTestIO(nil, nil)
		server := fakeServer()
		c := New(ioMock, newTestSession(server, newTestStore(t)), Passwords{})

		// Сессия не требуется
		require.NoError(t, c.Run(context.Background(), "health", nil))
		assert.Contains(t, out.String(), "Server status: ok")
		assert.Contains(t, out.String(), "Server version: 1.2.0")
		assert.Len(t, server.HealthCalls(), 1)
	})

	t.Run("server down", func(t *testing.T) {
		ioMock, out := newTestIO(nil, nil)
		server := fakeServer()
		server.HealthFunc = func(ctx context.Context) (*pkgapi.HealthResponse, error) {
			return nil, errors.New("connection refused")
		}
		c := New(ioMock, newTestSession(server, newTestStore(t)), Passwords{})

		err := c.Run(context.Background(), "health", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NotContains(t, out.String(), "Server status")
	})
}

func TestCli_UnknownCommand(t *testing.T) {
	ioMock, _ := newTestIO(nil, nil)
	c := New(ioMock, newTestSession(fakeServer(), newTestStore(t)), Passwords{})

	err := c.Run(context.Background(), "sync", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)

	for _, cmd := range []string{"register", "login", "logout", "status", "profile", "admin", "health"} {
		assert.Contains(t, buf.String(), cmd)
	}
	assert.Contains(t, buf.String(), PasswordEnv)
}

// TestGetPassword_FromEnvVar проверяет чтение пароля из переменной окружения
func TestGetPassword_FromEnvVar(t *testing.T) {
	t.Setenv(PasswordEnv, "env_password")
	c := &Cli{}

	password, interactive, err := c.getPassword("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "env_password", password)
	assert.False(t, interactive)
}

// TestGetPassword_Priority проверяет приоритет источников
func TestGetPassword_Priority(t *testing.T) {
	t.Setenv(PasswordEnv, "")

	passwordFile := filepath.Join(t.TempDir(), "password.txt")
	require.NoError(t, os.WriteFile(passwordFile, []byte("  file_password  \n\n"), 0600))

	t.Run("env over file", func(t *testing.T) {
		t.Setenv(PasswordEnv, "env_password")
		c := &Cli{passwords: Passwords{FromFile: passwordFile, FromArgs: "cli_password"}}

		password, _, err := c.getPassword("")
		require.NoError(t, err)
		assert.Equal(t, "env_password", password)
	})

	t.Run("file over args, whitespace trimmed", func(t *testing.T) {
		c := &Cli{passwords: Passwords{FromFile: passwordFile, FromArgs: "cli_password"}}

		password, _, err := c.getPassword("")
		require.NoError(t, err)
		assert.Equal(t, "file_password", password)
	})

	t.Run("args over prompt", func(t *testing.T) {
		ioMock, _ := newTestIO(nil, []string{"prompt_password"})
		c := &Cli{io: ioMock, passwords: Passwords{FromArgs: "cli_password"}}

		password, interactive, err := c.getPassword("")
		require.NoError(t, err)
		assert.Equal(t, "cli_password", password)
		assert.False(t, interactive)
		assert.Empty(t, ioMock.ReadPasswordCalls())
	})

	t.Run("prompt fallback", func(t *testing.T) {
		ioMock, _ := newTestIO(nil, []string{"prompt_password"})
		c := &Cli{io: ioMock}

		password, interactive, err := c.getPassword("Password: ")
		require.NoError(t, err)
		assert.Equal(t, "prompt_password", password)
		assert.True(t, interactive)
		assert.Equal(t, "Password: ", ioMock.ReadPasswordCalls()[0].Prompt)
	})
}

func TestGetPassword_Errors(t *testing.T) {
	t.Setenv(PasswordEnv, "")

	t.Run("empty file", func(t *testing.T) {
		passwordFile := filepath.Join(t.TempDir(), "empty.txt")
		require.NoError(t, os.WriteFile(passwordFile, nil, 0600))
		c := &Cli{passwords: Passwords{FromFile: passwordFile}}

		_, _, err := c.getPassword("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "password file is empty")
	})

	t.Run("missing file", func(t *testing.T) {
		c := &Cli{passwords: Passwords{FromFile: "/nonexistent/file/path.txt"}}

		_, _, err := c.getPassword("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read password file")
	})

	t.Run("empty prompt", func(t *testing.T) {
		ioMock, _ := newTestIO(nil, []string{""})
		c := &Cli{io: ioMock}

		_, _, err := c.getPassword("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "password cannot be empty")
	})

	t.Run("stdin failure", func(t *testing.T) {
		ioMock, _ := newTestIO(nil, nil)
		ioMock.ReadPasswordFunc = func(prompt string) (string, error) { return "", errors.New("not a terminal") }
		c := &Cli{io: ioMock}

		_, _, err := c.getPassword("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read password from stdin")
	})
}
