package cli

import (
	"context"
	"time"
)

func (c *Cli) runProfile(ctx context.Context) error {
	user, err := c.session.Profile(ctx)
	if err != nil {
		return err
	}

	c.io.Println("=== Profile ===")
	c.io.Printf("User ID: %s\n", user.ID)
	c.io.Printf("Name: %s\n", user.Name)
	c.io.Printf("Email: %s\n", user.Email)
	c.io.Printf("Role: %s\n", user.Role)
	c.io.Printf("Created: %s\n", user.CreatedAt.Format(time.RFC3339))
	if user.LastLogin != nil {
		c.io.Printf("Last login: %s\n", user.LastLogin.Format(time.RFC3339))
	}

	return nil
}

func (c *Cli) runAdmin(ctx context.Context) error {
	msg, err := c.session.Admin(ctx)
	if err != nil {
		return err
	}

	c.io.Println(msg)
	return nil
}
