// Package directory defines the boundary to the hosted document store used by
// the auth flow: the read-only lookup of pre-issued parent provisioning
// tokens, and the write-once user profile created when a QR code provisions a
// new account.
package directory

import (
	"context"
	"errors"
)

// Collection names used by the hosted document store.
const (
	CollectionUsers      = "users"
	CollectionParentAuth = "parent_auth_tokens"
)

// ErrUnknownSubject indicates no provisioning record exists for a subject id.
var ErrUnknownSubject = errors.New("unknown subject")

// ProvisioningRecord maps a parent subject id to its pre-issued one-time
// token. The token doubles as the password of the synthesized login identity;
// single use is enforced by the directory service, not by this client.
type ProvisioningRecord struct {
	SubjectID string
	Token     string
}

// Profile is the portal user profile written once when a subject's QR code
// first provisions an account. The creation timestamp is assigned server
// side.
type Profile struct {
	Email    string
	Role     string
	ParentID string
}

// Directory is the document-store surface the QR sign-in flow consumes.
type Directory interface {
	// ProvisioningRecord looks up the record for subjectID. The lookup is
	// bounded to a single result; zero matches yield ErrUnknownSubject.
	ProvisioningRecord(ctx context.Context, subjectID string) (*ProvisioningRecord, error)

	// CreateProfile writes the profile record for a freshly provisioned
	// account. Writing the same profile again is a no-op, keeping repeated
	// scans of one QR code idempotent.
	CreateProfile(ctx context.Context, accountID string, profile Profile) error
}

// Provisioner is the admin-side write surface used when issuing QR cards.
type Provisioner interface {
	// PutProvisioningRecord stores rec, replacing any previous record for
	// the same subject id.
	PutProvisioningRecord(ctx context.Context, rec ProvisioningRecord) error
}
