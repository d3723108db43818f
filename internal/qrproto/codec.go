// Package qrproto encodes and decodes the parent QR card payload.
//
// The wire format is three colon-separated ASCII fields: a fixed namespace
// literal, a fixed subject-kind literal, and the subject id, for example
// "mollebakken:parent:42". The separator is not escapable; subject ids
// containing ':' are unsupported.
package qrproto

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Namespace is the fixed first field of every payload.
	Namespace = "mollebakken"

	// SubjectKindParent is the only subject kind the portal issues.
	SubjectKindParent = "parent"

	fieldCount = 3
)

// ErrMalformedPayload indicates the scanned text is not a valid parent QR payload.
var ErrMalformedPayload = errors.New("malformed QR payload")

// Payload is a decoded QR payload.
type Payload struct {
	Namespace   string
	SubjectKind string
	SubjectID   string
}

// Decode splits raw into its three fields positionally and validates the fixed
// literals. A wrong field count, a mismatched literal, or an empty subject id
// all reject the payload as malformed; there is no partial acceptance.
func Decode(raw string) (Payload, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != fieldCount {
		return Payload{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedPayload, fieldCount, len(parts))
	}

	p := Payload{
		Namespace:   parts[0],
		SubjectKind: parts[1],
		SubjectID:   parts[2],
	}

	if p.Namespace != Namespace {
		return Payload{}, fmt.Errorf("%w: unknown namespace %q", ErrMalformedPayload, p.Namespace)
	}
	if p.SubjectKind != SubjectKindParent {
		return Payload{}, fmt.Errorf("%w: unknown subject kind %q", ErrMalformedPayload, p.SubjectKind)
	}
	if p.SubjectID == "" {
		return Payload{}, fmt.Errorf("%w: empty subject id", ErrMalformedPayload)
	}

	return p, nil
}

// Encode produces the QR payload text for a parent subject id.
func Encode(subjectID string) string {
	return Namespace + ":" + SubjectKindParent + ":" + subjectID
}

// String renders the payload back to its wire form.
func (p Payload) String() string {
	return p.Namespace + ":" + p.SubjectKind + ":" + p.SubjectID
}
