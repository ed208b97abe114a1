package cli

import "context"

func (c *Cli) runHealth(ctx context.Context) error {
	resp, err := c.session.Health(ctx)
	if err != nil {
		return err
	}

	c.io.Printf("Server status: %s\n", resp.Status)
	if resp.Version != "" {
		c.io.Printf("Server version: %s\n", resp.Version)
	}
	return nil
}
