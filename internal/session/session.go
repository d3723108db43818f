// Package session implements the portal's authentication session state
// machine. A Manager owns the current session, reconciles the identity
// provider's notification stream with the connectivity monitor, degrades to a
// cached offline session when the provider is unreachable, and drives the QR
// provisioning flow for new parent accounts.
package session

// Role is the portal role carried by a session.
type Role string

const (
	// RoleParent is the only role the client provisions.
	RoleParent Role = "parent"

	// RoleAdmin exists in profiles but is never derived client side.
	RoleAdmin Role = "admin"
)

// OfflineSessionID is the sentinel account id of a degraded offline session.
// It is never a valid provider account id.
const OfflineSessionID = "offline"

// Session is an established portal session. Offline sessions carry the
// sentinel id and never a bearer token.
type Session struct {
	ID      string
	Email   string
	Role    Role
	Offline bool
}

// State describes where the manager is in its lifecycle.
type State string

const (
	// StateInitializing holds until the provider delivers its first
	// notification.
	StateInitializing State = "initializing"

	// StateSignedIn means a live provider-backed session is active.
	StateSignedIn State = "signed_in"

	// StateSignedOut means no session is active.
	StateSignedOut State = "signed_out"

	// StateOffline means a degraded session derived from the offline
	// credential cache is active.
	StateOffline State = "offline"
)
