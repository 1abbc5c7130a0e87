// ABOUTME: Auth CLI commands
// ABOUTME: Stores and clears the API bearer token
package cli

import (
	"flag"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/harperreed/funnel/api"
)

// LoginCommand stores an API token for subsequent commands.
func LoginCommand(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "API bearer token (required)")
	expiry := fs.Duration("expires-in", 0, "Token lifetime (0 means no expiry)")
	_ = fs.Parse(args)

	if *token == "" {
		return fmt.Errorf("--token is required")
	}

	t := &oauth2.Token{AccessToken: *token, TokenType: "Bearer"}
	if *expiry > 0 {
		t.Expiry = time.Now().Add(*expiry)
	}
	if err := api.SaveToken(t); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	fmt.Printf("Token stored at %s\n", api.TokenPath())
	return nil
}

// LogoutCommand clears the stored token.
func LogoutCommand() error {
	if err := api.ClearToken(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	fmt.Println("Token cleared")
	return nil
}
