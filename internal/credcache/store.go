// Package credcache is the durable offline credential cache: a single slot
// holding the most recent signed-in credential, good for seven days. It backs
// the degraded offline session when the portal cannot reach the identity
// provider.
package credcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// TTL bounds how long a cached credential may back an offline session.
	TTL = 7 * 24 * time.Hour

	// cacheFileName is the fixed key of the single slot. The portal assumes
	// one active parent per device, so the slot is not keyed by subject.
	cacheFileName = "offline_auth_state.json"
)

// ErrCacheUnavailable indicates the persistence backend failed. Callers treat
// this as "offline fallback unavailable", never as a fatal condition.
var ErrCacheUnavailable = errors.New("offline cache unavailable")

// Credential is the persisted cache entry.
type Credential struct {
	Email     string `json:"email"`
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"` // creation instant, epoch millis
}

// New builds a credential stamped with the current time.
func New(email, token string) Credential {
	return Credential{
		Email:     email,
		Token:     token,
		Timestamp: time.Now().UnixMilli(),
	}
}

// CreatedAt returns the creation instant of the credential.
func (c Credential) CreatedAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// Store manages the single credential slot on the local filesystem.
type Store struct {
	baseDir string
	now     func() time.Time
}

// NewStore creates a credential store rooted at baseDir.
// If baseDir is empty, uses ~/.artconnect/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		baseDir = filepath.Join(home, ".artconnect")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential cache initialized")

	return &Store{baseDir: baseDir, now: time.Now}, nil
}

// Save overwrites the credential slot. Saving is idempotent; the previous
// entry, if any, is replaced.
func (s *Store) Save(cred Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	// Write to temp file first, then atomic rename
	path := s.path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	log.Debug().Str("email", cred.Email).Msg("credential cached")

	return nil
}

// Load returns the cached credential, or nil when the slot is empty. An entry
// at or past TTL is treated as absent and purged as a side effect; there is no
// background sweep.
func (s *Store) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		// A corrupt slot cannot back an offline session; drop it.
		s.purge()
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	if s.now().Sub(cred.CreatedAt()) >= TTL {
		s.purge()
		log.Debug().Str("email", cred.Email).Msg("expired credential purged")
		return nil, nil
	}

	return &cred, nil
}

// Clear removes the stored credential. Clearing an empty slot is a no-op.
func (s *Store) Clear() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (s *Store) path() string {
	return filepath.Join(s.baseDir, cacheFileName)
}

func (s *Store) purge() {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to purge credential slot")
	}
}
