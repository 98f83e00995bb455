// Package auth provides API-key authentication.
//
// Authentication model:
// - Public endpoints (health, booking lookup): no auth required
// - User endpoints (bookings, wallet, disputes): require a valid API key
// - Admin endpoints (arbitration, topups): require a key with the admin role
// - Raw keys are shown once; only SHA-256 hashes are stored
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrNoAPIKey      = errors.New("API key required")
	ErrInvalidAPIKey = errors.New("invalid or expired API key")
	ErrKeyNotFound   = errors.New("API key not found")
)

// Roles an API key can carry.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// APIKey represents an issued API key.
type APIKey struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"` // SHA-256 of the raw key
	UserID    string     `json:"userId"`
	Role      string     `json:"role"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Store persists API keys.
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	GetByUser(ctx context.Context, userID string) ([]*APIKey, error)
	Revoke(ctx context.Context, id string) error
}

// Manager handles key issuance and validation.
type Manager struct {
	store Store
}

// NewManager creates a new auth manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// GenerateKey creates a new API key for a user.
// Returns the raw key (shown once) and the stored metadata.
func (m *Manager) GenerateKey(ctx context.Context, userID, name, role string) (rawKey string, key *APIKey, err error) {
	if role != RoleAdmin {
		role = RoleUser
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}
	rawKey = "sk_" + hex.EncodeToString(b)

	key = &APIKey{
		ID:        "key_" + hex.EncodeToString(b[:8]),
		Hash:      hashKey(rawKey),
		UserID:    userID,
		Role:      role,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}
	return rawKey, key, nil
}

// ValidateKey validates a raw API key and returns its metadata.
func (m *Manager) ValidateKey(ctx context.Context, rawKey string) (*APIKey, error) {
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}
	rawKey = strings.TrimPrefix(rawKey, "Bearer ")
	rawKey = strings.TrimSpace(rawKey)
	if !strings.HasPrefix(rawKey, "sk_") {
		return nil, ErrInvalidAPIKey
	}

	key, err := m.store.GetByHash(ctx, hashKey(rawKey))
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	if key.Revoked {
		return nil, ErrInvalidAPIKey
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, ErrInvalidAPIKey
	}
	return key, nil
}

// IsAdmin reports whether the user holds any live admin key. Satisfies the
// dispute service's arbitration policy check.
func (m *Manager) IsAdmin(ctx context.Context, userID string) (bool, error) {
	keys, err := m.store.GetByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k.Role == RoleAdmin && !k.Revoked &&
			(k.ExpiresAt == nil || time.Now().Before(*k.ExpiresAt)) {
			return true, nil
		}
	}
	return false, nil
}

// EnsureBootstrapAdmin registers adminSecret as an admin key for userID if it
// is not already present. Lets deployments arbitrate before any key has been
// issued through the API.
func (m *Manager) EnsureBootstrapAdmin(ctx context.Context, adminSecret, userID string) error {
	if adminSecret == "" {
		return nil
	}
	if !strings.HasPrefix(adminSecret, "sk_") {
		return errors.New("admin secret must be an sk_-prefixed key")
	}
	hash := hashKey(adminSecret)
	if _, err := m.store.GetByHash(ctx, hash); err == nil {
		return nil
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	return m.store.Create(ctx, &APIKey{
		ID:        "key_" + hex.EncodeToString(b),
		Hash:      hash,
		UserID:    userID,
		Role:      RoleAdmin,
		Name:      "bootstrap admin",
		CreatedAt: time.Now(),
	})
}

// RevokeKey revokes a key owned by userID.
func (m *Manager) RevokeKey(ctx context.Context, userID, keyID string) error {
	keys, err := m.store.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			return m.store.Revoke(ctx, keyID)
		}
	}
	return ErrKeyNotFound
}

func hashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
