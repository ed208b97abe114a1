// Package cli реализует команды клиента authgate.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iudanet/authgate/internal/client/iocli"
	"github.com/iudanet/authgate/internal/client/storage"
	pkgapi "github.com/iudanet/authgate/pkg/api"
)

// PasswordEnv переменная окружения с паролем для неинтерактивного запуска
const PasswordEnv = "AUTHGATE_PASSWORD"

// Session клиентская сессия, с которой работают команды
type Session interface {
	Register(ctx context.Context, name, email, password string) (*pkgapi.User, error)
	Login(ctx context.Context, email, password string) (*storage.AuthData, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) (*storage.AuthData, error)
	Profile(ctx context.Context) (*pkgapi.User, error)
	Admin(ctx context.Context) (string, error)
	Health(ctx context.Context) (*pkgapi.HealthResponse, error)
}

// Passwords источники пароля помимо переменной окружения и интерактивного ввода
type Passwords struct {
	FromFile string
	FromArgs string
}

type Cli struct {
	io        iocli.IO
	session   Session
	passwords Passwords
}

func New(io iocli.IO, session Session, passwords Passwords) *Cli {
	return &Cli{
		io:        io,
		session:   session,
		passwords: passwords,
	}
}

// Run выполняет команду с аргументами
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx, args)
	case "login":
		return c.runLogin(ctx, args)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "profile":
		return c.runProfile(ctx)
	case "admin":
		return c.runAdmin(ctx)
	case "health":
		return c.runHealth(ctx)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// getPassword retrieves password from various sources with priority:
// 1. Environment variable AUTHGATE_PASSWORD
// 2. File specified in Passwords.FromFile
// 3. Command-line parameter Passwords.FromArgs
// 4. Interactive prompt (fallback)
func (c *Cli) getPassword(prompt string) (password string, interactive bool, err error) {
	// Priority 1: Environment variable
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, false, nil
	}

	// Priority 2: File
	if c.passwords.FromFile != "" {
		content, err := os.ReadFile(c.passwords.FromFile)
		if err != nil {
			return "", false, fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", false, fmt.Errorf("password file is empty")
		}
		return password, false, nil
	}

	// Priority 3: CLI parameter
	if c.passwords.FromArgs != "" {
		return c.passwords.FromArgs, false, nil
	}

	// Priority 4: Interactive prompt (fallback)
	password, err = c.io.ReadPassword(prompt)
	if err != nil {
		return "", false, fmt.Errorf("failed to read password from stdin: %w", err)
	}
	if password == "" {
		return "", false, fmt.Errorf("password cannot be empty")
	}

	return password, true, nil
}

// argOrInput возвращает первый аргумент команды или запрашивает значение
func (c *Cli) argOrInput(args []string, prompt string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	return c.io.ReadInput(prompt)
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "AuthGate Client")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  authgate [OPTIONS] COMMAND [ARGS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  --version              Show version information")
	fmt.Fprintln(w, "  --server URL           Server URL (default: http://localhost:8080)")
	fmt.Fprintln(w, "  --db PATH              Path to local session database (default: authgate-client.db)")
	fmt.Fprintln(w, "  --password PASSWORD    Password (not recommended, use env var or file)")
	fmt.Fprintln(w, "  --password-file PATH   Path to file containing password")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Password Priority (highest to lowest):")
	fmt.Fprintln(w, "  1. AUTHGATE_PASSWORD environment variable")
	fmt.Fprintln(w, "  2. --password-file (file path)")
	fmt.Fprintln(w, "  3. --password (command line)")
	fmt.Fprintln(w, "  4. Interactive prompt (fallback)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  register [email]       Register new user")
	fmt.Fprintln(w, "  login [email]          Login and save the session locally")
	fmt.Fprintln(w, "  logout                 Delete the local session")
	fmt.Fprintln(w, "  status                 Show authentication status")
	fmt.Fprintln(w, "  profile                Show the profile of the current user")
	fmt.Fprintln(w, "  admin                  Call the admin-only endpoint")
	fmt.Fprintln(w, "  health                 Check that the server is up")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  authgate register")
	fmt.Fprintln(w, "  authgate login t@example.com")
	fmt.Fprintln(w, "  AUTHGATE_PASSWORD='pw123' authgate login t@example.com")
	fmt.Fprintln(w, "  authgate --server https://auth.example.com profile")
}
