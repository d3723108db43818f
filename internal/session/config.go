package session

import (
	"fmt"

	"github.com/mollebakken/artconnect/internal/credcache"
	"github.com/mollebakken/artconnect/internal/directory"
	"github.com/mollebakken/artconnect/internal/identity"
	"github.com/mollebakken/artconnect/internal/netmon"
)

const defaultDomain = "mollebakken.internal"

// CredentialCache is the offline credential slot the manager consumes.
// *credcache.Store satisfies it.
type CredentialCache interface {
	Save(cred credcache.Credential) error
	Load() (*credcache.Credential, error)
	Clear() error
}

// Config holds configuration for the session manager.
type Config struct {
	// Provider is the identity provider. Required.
	Provider identity.Provider

	// Monitor supplies the connectivity signal. Required.
	Monitor *netmon.Monitor

	// Directory resolves provisioning records and writes profiles for the QR
	// flow. Optional; without it QR sign-in is unavailable.
	Directory directory.Directory

	// Cache is the offline credential slot. Optional; without it no degraded
	// offline session can be derived.
	Cache CredentialCache

	// Notifier receives user-facing notices. Default: LogNotifier.
	Notifier Notifier

	// Domain is the mail domain of synthesized QR login identities.
	// Default: "mollebakken.internal"
	Domain string

	// Retry bounds the provider reconnection procedure.
	Retry RetryPolicy
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Provider == nil {
		return fmt.Errorf("identity provider is required")
	}
	if c.Monitor == nil {
		return fmt.Errorf("connectivity monitor is required")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Notifier == nil {
		c.Notifier = LogNotifier{}
	}
	if c.Domain == "" {
		c.Domain = defaultDomain
	}
	c.Retry.ApplyDefaults()
}
