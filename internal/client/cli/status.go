package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/authgate/internal/client/auth"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	session, err := c.session.Session(ctx)
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		c.io.Println("Status: Not authenticated")
		c.io.Println()
		c.io.Println("Run 'authgate login' to authenticate.")
		return nil
	case errors.Is(err, auth.ErrSessionExpired):
		c.io.Println("Status: Session expired")
		c.io.Printf("Email: %s\n", session.Email)
		c.io.Println("⚠️  Token has expired. Please login again.")
		return nil
	case err != nil:
		return fmt.Errorf("failed to check authentication: %w", err)
	}

	expiresAt := time.Unix(session.ExpiresAt, 0)

	c.io.Println("Status: Authenticated")
	c.io.Printf("Email: %s\n", session.Email)
	if session.UserID != "" {
		c.io.Printf("User ID: %s\n", session.UserID)
	}
	if session.Role != "" {
		c.io.Printf("Role: %s\n", session.Role)
	}
	c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))
	c.io.Printf("Time remaining: %s\n", time.Until(expiresAt).Round(time.Second))

	return nil
}
