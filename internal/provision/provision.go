// Package provision issues parent QR cards: a random one-time token stored in
// the directory, paired with the QR payload text to print on the card.
package provision

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/mollebakken/artconnect/internal/directory"
	"github.com/mollebakken/artconnect/internal/qrproto"
	"github.com/mollebakken/artconnect/internal/roster"
)

// tokenBytes is the entropy of an issued token before encoding.
const tokenBytes = 32

// Issued is one issued QR card.
type Issued struct {
	SubjectID string
	Token     string
	QRText    string
}

// Issuer writes provisioning records and produces the matching QR payloads.
type Issuer struct {
	store directory.Provisioner
}

// NewIssuer creates an issuer backed by the given directory.
func NewIssuer(store directory.Provisioner) *Issuer {
	return &Issuer{store: store}
}

// Issue creates or replaces the provisioning record for a subject and returns
// the card to print. Re-issuing rotates the token, invalidating any earlier
// card for the same subject.
func (i *Issuer) Issue(ctx context.Context, subjectID string) (*Issued, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	if strings.Contains(subjectID, ":") {
		// The QR payload separator is not escapable.
		return nil, fmt.Errorf("subject id %q must not contain ':'", subjectID)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	err = i.store.PutProvisioningRecord(ctx, directory.ProvisioningRecord{
		SubjectID: subjectID,
		Token:     token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store provisioning record: %w", err)
	}

	log.Info().Str("subjectID", subjectID).Msg("provisioning record issued")

	return &Issued{
		SubjectID: subjectID,
		Token:     token,
		QRText:    qrproto.Encode(subjectID),
	}, nil
}

// IssueRoster issues one card per roster student, in roster order. The first
// failure aborts; cards issued before it remain valid.
func (i *Issuer) IssueRoster(ctx context.Context, students []roster.Student) ([]*Issued, error) {
	issued := make([]*Issued, 0, len(students))
	for _, s := range students {
		card, err := i.Issue(ctx, s.ID)
		if err != nil {
			return issued, fmt.Errorf("student %q: %w", s.ID, err)
		}
		issued = append(issued, card)
	}
	return issued, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base58.Encode(buf), nil
}
