// Package session stores the SESSION_TOKEN credential issued over the
// channel on login_success. The token value lives in the system keyring
// when one is available, with a plain-file fallback; either way a small
// sidecar file records the cookie-like attributes (name, path, expiry).
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zalando/go-keyring"

	"flowchat/config"
)

const (
	serviceName = "flowchat"

	// TokenName matches the cookie the web client sets.
	TokenName = "SESSION_TOKEN"
	// TokenPath mirrors the cookie path attribute.
	TokenPath = "/"
	// TokenMaxAge is the credential validity window: 2,592,000 seconds.
	TokenMaxAge = 30 * 24 * time.Hour
)

// ErrNotFound indicates no stored session credential.
var ErrNotFound = errors.New("session token not found")

// ErrExpired indicates the stored credential is past its validity window.
var ErrExpired = errors.New("session token expired")

// artifact is the sidecar record written next to the keyring entry.
type artifact struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
	// Value is only set when the keyring was unusable.
	Value string `json:"value,omitempty"`
}

// Save stores the token with a fresh 30-day validity window.
func Save(token string) error {
	if token == "" {
		return fmt.Errorf("session token cannot be empty")
	}

	record := artifact{
		Name:      TokenName,
		Path:      TokenPath,
		ExpiresAt: time.Now().Add(TokenMaxAge),
	}

	if err := keyring.Set(serviceName, TokenName, token); err != nil {
		// Headless hosts often have no keyring; keep the token in the
		// sidecar file instead.
		record.Value = token
	}

	return writeArtifact(record)
}

// Load returns the stored token, or ErrNotFound / ErrExpired.
func Load() (string, error) {
	record, err := readArtifact()
	if err != nil {
		return "", err
	}

	if time.Now().After(record.ExpiresAt) {
		_ = Delete()
		return "", ErrExpired
	}

	if record.Value != "" {
		return record.Value, nil
	}

	token, err := keyring.Get(serviceName, TokenName)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read session token: %w", err)
	}
	return token, nil
}

// Delete removes the stored credential. Missing credentials are not an
// error.
func Delete() error {
	// The sidecar file is the source of truth for whether a session
	// exists; stale keyring entries are harmless.
	_ = keyring.Delete(serviceName, TokenName)

	path, err := config.GetSessionFile()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session artifact: %w", err)
	}
	return nil
}

func writeArtifact(record artifact) error {
	path, err := config.GetSessionFile()
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session artifact: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write session artifact: %w", err)
	}
	return nil
}

func readArtifact() (artifact, error) {
	path, err := config.GetSessionFile()
	if err != nil {
		return artifact{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return artifact{}, ErrNotFound
		}
		return artifact{}, fmt.Errorf("read session artifact: %w", err)
	}

	var record artifact
	if err := json.Unmarshal(data, &record); err != nil {
		return artifact{}, fmt.Errorf("parse session artifact: %w", err)
	}
	return record, nil
}
