// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads session credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: session-user-id, session-token.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Key file names.
const (
	UserIDKey = "session-user-id"
	TokenKey  = "session-token"
)

// Session is the authenticated user, if any.
type Session struct {
	UserID string
	Token  string
}

// Authenticated reports whether a user is signed in.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// LoadSession reads the session key files from dir. A missing directory or
// missing files yield an anonymous Session.
func LoadSession(dir string) (Session, error) {
	m, err := Load(dir)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: m[UserIDKey], Token: m[TokenKey]}, nil
}

// SaveSession writes the session key files to dir with owner-only
// permissions. An empty field removes its file.
func SaveSession(dir string, s Session) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating secrets directory %s: %w", dir, err)
	}
	for name, value := range map[string]string{UserIDKey: s.UserID, TokenKey: s.Token} {
		path := filepath.Join(dir, name)
		if value == "" {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing secret %s: %w", name, err)
			}
			continue
		}
		if err := os.WriteFile(path, []byte(value+"\n"), 0o600); err != nil {
			return fmt.Errorf("writing secret %s: %w", name, err)
		}
	}
	return nil
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged as warnings but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logrus.WithError(err).WithField("secret", name).Warn("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}
