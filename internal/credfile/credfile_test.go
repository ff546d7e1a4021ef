package credfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestLoad_FileNotFound(t *testing.T) {
	tok, info, err := Load("/nonexistent/path/credentials.json")
	assert.Nil(t, tok)
	assert.Nil(t, info)
	assert.NoError(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	expiry := time.Date(2099, 6, 15, 12, 0, 0, 0, time.UTC)
	original := &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "renewal-456",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
	info := json.RawMessage(`{"username":"alice","display_name":"Alice"}`)

	require.NoError(t, Save(path, original, info))

	tok, loadedInfo, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-123", tok.AccessToken)
	assert.Equal(t, "renewal-456", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(expiry))
	assert.JSONEq(t, string(info), string(loadedInfo))
}

func TestLoad_MissingTokenField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"user_info":{}}`), 0o600))

	tok, info, err := Load(path)
	assert.Nil(t, tok)
	assert.Nil(t, info)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoad_EmptyCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"token":{"token_type":"Bearer"}}`), 0o600))

	tok, _, err := Load(path)
	assert.Nil(t, tok)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty credentials")
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	tok, _, err := Load(path)
	assert.Nil(t, tok)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestSave_NilToken(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "credentials.json"), nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to save nil token")
}

func TestSave_CreatesDirectoryAndPermissions(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub", "dir", "credentials.json")

	err := Save(nested, &oauth2.Token{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestRemove_MissingFile(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "credentials.json")))
}

func TestRemove_DeletesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, Save(path, &oauth2.Token{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}, nil))

	require.NoError(t, Remove(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
