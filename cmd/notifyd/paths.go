package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kolide/kit/ulid"
)

const (
	socketBaseName    = "notifyd.sock"
	authTokenFilename = "auth_token"
)

// defaultSocketPath is stable per user so that call and the app can find a
// running daemon without being told.
func defaultSocketPath(rootDirectory string) string {
	if runtime.GOOS == "windows" {
		name := "user"
		if u, err := user.Current(); err == nil {
			name = strings.NewReplacer(`\`, "_", "/", "_", " ", "_").Replace(u.Username)
		}
		return fmt.Sprintf(`\\.\pipe\%s_%s`, socketBaseName, name)
	}

	return filepath.Join(rootDirectory, socketBaseName)
}

// loadAuthToken returns the token saved in rootDirectory, generating and
// saving one first when there is none.
func loadAuthToken(rootDirectory string) (string, error) {
	path := filepath.Join(rootDirectory, authTokenFilename)

	existing, err := os.ReadFile(path)
	switch {
	case err == nil && len(strings.TrimSpace(string(existing))) > 0:
		return strings.TrimSpace(string(existing)), nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("reading auth token: %w", err)
	}

	token := ulid.New()
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return "", fmt.Errorf("writing auth token: %w", err)
	}
	return token, nil
}

func readAuthToken(rootDirectory string) (string, error) {
	token, err := os.ReadFile(filepath.Join(rootDirectory, authTokenFilename))
	if err != nil {
		return "", fmt.Errorf("reading auth token: %w", err)
	}
	return strings.TrimSpace(string(token)), nil
}
