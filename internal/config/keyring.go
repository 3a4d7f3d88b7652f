package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "jobtriage"

	// KeyringNeo4jPasswordItem holds the graph mirror password
	KeyringNeo4jPasswordItem = "neo4j-password"
)

// KeyringManager stores the Neo4j password in the OS keychain so it does not
// have to live in a config file.
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// SetNeo4jPassword stores the password in the OS keychain.
func (km *KeyringManager) SetNeo4jPassword(password string) error {
	if password == "" {
		return fmt.Errorf("neo4j password cannot be empty")
	}
	if err := keyring.Set(KeyringService, KeyringNeo4jPasswordItem, password); err != nil {
		km.logger.Error("failed to save neo4j password to keychain", "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	km.logger.Info("neo4j password saved to keychain", "service", KeyringService)
	return nil
}

// GetNeo4jPassword returns "" without error when nothing is stored.
func (km *KeyringManager) GetNeo4jPassword() (string, error) {
	password, err := keyring.Get(KeyringService, KeyringNeo4jPasswordItem)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to get neo4j password from keychain", "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	km.logger.Debug("neo4j password retrieved from keychain")
	return password, nil
}

// DeleteNeo4jPassword removes the stored password; a missing entry is not an error.
func (km *KeyringManager) DeleteNeo4jPassword() error {
	err := keyring.Delete(KeyringService, KeyringNeo4jPasswordItem)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	return nil
}

// IsAvailable reports whether a keychain backend answers at all. Headless
// Linux hosts without a secret service return false.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "availability-probe")
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	km.logger.Debug("keychain not available", "error", err)
	return false
}

// MaskSecret shows only the last 4 characters of a secret.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 8 {
		return "***"
	}
	return "***" + secret[len(secret)-4:]
}
