package cli

import (
	"context"
	"fmt"
)

func (c *Cli) runRegister(ctx context.Context, args []string) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	name, err := c.io.ReadInput("Name: ")
	if err != nil {
		return fmt.Errorf("failed to read name: %w", err)
	}

	email, err := c.argOrInput(args, "Email: ")
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}

	password, interactive, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}

	// Подтверждение нужно только при ручном вводе
	if interactive {
		confirm, err := c.io.ReadPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	c.io.Println()
	c.io.Println("Registering user...")

	user, err := c.session.Register(ctx, name, email, password)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %s\n", user.ID)
	c.io.Printf("Email: %s\n", user.Email)
	c.io.Printf("Role: %s\n", user.Role)
	c.io.Println()
	c.io.Println("Please run 'authgate login' to start a session.")

	return nil
}
