// ABOUTME: Bearer token persistence for the CRM API
// ABOUTME: Stores an oauth2 token as JSON at an XDG data path; 401 handling clears it
package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
)

var tokenMu sync.Mutex

// tokenPathOverride redirects token storage, used by tests.
var tokenPathOverride string

// TokenPath returns the XDG-compliant path for the stored API token.
func TokenPath() string {
	if tokenPathOverride != "" {
		return tokenPathOverride
	}
	return filepath.Join(xdg.DataHome, "funnel", "api-credentials.json")
}

// SaveToken persists the API token with restricted permissions.
func SaveToken(token *oauth2.Token) error {
	tokenMu.Lock()
	defer tokenMu.Unlock()

	path := TokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// LoadToken loads the stored API token. A missing file is not an error; it
// returns (nil, nil) so loads can skip authenticated calls.
func LoadToken() (*oauth2.Token, error) {
	tokenMu.Lock()
	defer tokenMu.Unlock()

	f, err := os.Open(TokenPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}

// ClearToken removes the stored credentials. Called on 401 responses.
func ClearToken() error {
	tokenMu.Lock()
	defer tokenMu.Unlock()

	err := os.Remove(TokenPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
