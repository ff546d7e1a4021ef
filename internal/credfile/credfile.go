// Package credfile handles reading and writing the credential file. The file
// stores the session's OAuth2 token pair alongside the user-info blob returned
// at sign-in. This is a leaf package imported by session/ so the lifecycle
// engine never touches the filesystem layout directly.
package credfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credentials directory.
const DirPerms = 0o700

// File is the on-disk format for credential files. The token carries the
// access credential, the renewal credential, and the absolute expiry instant;
// UserInfo is the opaque blob the sign-in response reported.
type File struct {
	Token    *oauth2.Token   `json:"token"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}

// Load reads a saved credential file from disk. Returns (nil, nil, nil) if
// the file does not exist; absence is the expected "no session" state.
func Load(path string) (*oauth2.Token, json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("credfile: reading %s: %w", path, err)
	}

	var cf File
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, nil, fmt.Errorf("credfile: decoding %s: %w", path, err)
	}

	if cf.Token == nil {
		return nil, nil, fmt.Errorf("credfile: %s missing token field (sign in again)", path)
	}

	if cf.Token.AccessToken == "" {
		return nil, nil, fmt.Errorf("credfile: %s has empty credentials (sign in again)", path)
	}

	return cf.Token, cf.UserInfo, nil
}

// Save writes a credential file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs credential values.
func Save(path string, tok *oauth2.Token, userInfo json.RawMessage) error {
	if tok == nil {
		return fmt.Errorf("credfile: refusing to save nil token")
	}

	cf := File{Token: tok, UserInfo: userInfo}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("credfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a crash between close and
	// rename cannot leave an empty or partial file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the credential file. Returns nil if the file does not
// exist (already signed out).
func Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("credfile: removing %s: %w", path, err)
	}

	return nil
}
