// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T) string
		want   map[string]string
		errMsg string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "session-user-id", "  u_abc123  \n")
				writeFile(t, dir, "session-token", "tok_xyz789")
				writeFile(t, dir, "server-url", "https://api.example.com\n")
				return dir
			},
			want: map[string]string{
				"session-user-id": "u_abc123",
				"session-token":   "tok_xyz789",
				"server-url":      "https://api.example.com",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "session-token", "tok_valid")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: map[string]string{
				"session-token": "tok_valid",
			},
		},
		{
			name: "skips dotfiles",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, "session-user-id", "u_real")
				return dir
			},
			want: map[string]string{
				"session-user-id": "u_real",
			},
		},
		{
			name: "skips subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "session-token", "tok_123")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{
				"session-token": "tok_123",
			},
		},
		{
			name: "returns empty map for empty directory",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			got, err := Load(dir)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not apply to root")
	}
	dir := t.TempDir()
	writeFile(t, dir, "good-key", "value123")

	// Create a file then remove read permission.
	badPath := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	// The good file should still be returned; the bad file is skipped with a warning.
	assert.Equal(t, "value123", got["good-key"])
	_, hasBad := got["bad-key"]
	assert.False(t, hasBad, "unreadable file should not appear in result")
}

func TestLoadSession(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSession(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, s.Authenticated())

	writeFile(t, dir, UserIDKey, "farmer-42\n")
	writeFile(t, dir, TokenKey, " tok_abc ")
	s, err = LoadSession(dir)
	require.NoError(t, err)
	assert.True(t, s.Authenticated())
	assert.Equal(t, Session{UserID: "farmer-42", Token: "tok_abc"}, s)
}

func TestSaveSession(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".secrets")

	require.NoError(t, SaveSession(dir, Session{UserID: "farmer-42", Token: "tok_abc"}))
	got, err := LoadSession(dir)
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: "farmer-42", Token: "tok_abc"}, got)

	info, err := os.Stat(filepath.Join(dir, TokenKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Logging out clears both files.
	require.NoError(t, SaveSession(dir, Session{}))
	got, err = LoadSession(dir)
	require.NoError(t, err)
	assert.False(t, got.Authenticated())
	assert.Empty(t, got.Token)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
