// Package firestore implements the directory interfaces against the Cloud
// Firestore REST API.
package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mollebakken/artconnect/internal/directory"
	"github.com/mollebakken/artconnect/internal/identity"
)

const (
	defaultBaseURL    = "https://firestore.googleapis.com/v1"
	defaultDatabaseID = "(default)"
)

// TokenSource supplies a bearer token for authorized requests. A nil source
// sends unauthenticated requests; the provisioning-token lookup runs before
// any identity exists and relies on the collection's own access rules.
type TokenSource func(ctx context.Context) (string, error)

// Config holds the Firestore project configuration.
type Config struct {
	// ProjectID is the Firebase project id. Required.
	ProjectID string

	// BaseURL overrides the Firestore endpoint. Used by tests.
	BaseURL string

	// DatabaseID defaults to "(default)".
	DatabaseID string

	// TokenSource authorizes profile writes. Optional.
	TokenSource TokenSource

	// HTTPClient overrides the transport. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.DatabaseID == "" {
		c.DatabaseID = defaultDatabaseID
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
}

// Client is a Firestore-backed directory.Directory and directory.Provisioner.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Firestore directory client.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid firestore config: %w", err)
	}
	return &Client{cfg: cfg, http: cfg.HTTPClient}, nil
}

// ProvisioningRecord runs a single-result query on the parent auth collection
// for the given subject id.
func (c *Client) ProvisioningRecord(ctx context.Context, subjectID string) (*directory.ProvisioningRecord, error) {
	query := map[string]any{
		"structuredQuery": map[string]any{
			"from": []any{map[string]any{"collectionId": directory.CollectionParentAuth}},
			"where": map[string]any{
				"fieldFilter": map[string]any{
					"field": map[string]any{"fieldPath": "parent_id"},
					"op":    "EQUAL",
					"value": stringValue(subjectID),
				},
			},
			"limit": 1,
		},
	}

	var results []struct {
		Document *struct {
			Name   string           `json:"name"`
			Fields map[string]value `json:"fields"`
		} `json:"document"`
	}
	if err := c.post(ctx, c.documentsPath()+":runQuery", query, &results); err != nil {
		return nil, err
	}

	for _, res := range results {
		if res.Document == nil {
			continue
		}
		token := res.Document.Fields["token"].StringValue
		if token == "" {
			break
		}
		return &directory.ProvisioningRecord{SubjectID: subjectID, Token: token}, nil
	}

	return nil, fmt.Errorf("%w: %s", directory.ErrUnknownSubject, subjectID)
}

// CreateProfile writes the profile document keyed by account id. The write
// carries an exists=false precondition; a profile left behind by an earlier
// scan makes the commit a no-op instead of an error.
func (c *Client) CreateProfile(ctx context.Context, accountID string, profile directory.Profile) error {
	commit := map[string]any{
		"writes": []any{map[string]any{
			"update": map[string]any{
				"name": c.documentName(directory.CollectionUsers, accountID),
				"fields": map[string]any{
					"email":     stringValue(profile.Email),
					"role":      stringValue(profile.Role),
					"parent_id": stringValue(profile.ParentID),
				},
			},
			"updateTransforms": []any{map[string]any{
				"fieldPath":        "created_at",
				"setToServerValue": "REQUEST_TIME",
			}},
			"currentDocument": map[string]any{"exists": false},
		}},
	}

	err := c.post(ctx, c.documentsPath()+":commit", commit, &json.RawMessage{})
	if isAlreadyExists(err) {
		log.Debug().Str("accountID", accountID).Msg("profile already exists")
		return nil
	}
	return err
}

// PutProvisioningRecord stores the record as the document keyed by subject
// id, replacing any previous token for that subject.
func (c *Client) PutProvisioningRecord(ctx context.Context, rec directory.ProvisioningRecord) error {
	commit := map[string]any{
		"writes": []any{map[string]any{
			"update": map[string]any{
				"name": c.documentName(directory.CollectionParentAuth, rec.SubjectID),
				"fields": map[string]any{
					"parent_id": stringValue(rec.SubjectID),
					"token":     stringValue(rec.Token),
				},
			},
			"updateTransforms": []any{map[string]any{
				"fieldPath":        "created_at",
				"setToServerValue": "REQUEST_TIME",
			}},
		}},
	}

	return c.post(ctx, c.documentsPath()+":commit", commit, &json.RawMessage{})
}

type value struct {
	StringValue string `json:"stringValue"`
}

func stringValue(s string) map[string]any {
	return map[string]any{"stringValue": s}
}

func (c *Client) documentsPath() string {
	return fmt.Sprintf("projects/%s/databases/%s/documents", c.cfg.ProjectID, c.cfg.DatabaseID)
}

func (c *Client) documentName(collection, id string) string {
	return fmt.Sprintf("%s/%s/%s", c.documentsPath(), collection, id)
}

// alreadyExistsError marks a commit rejected by an exists=false precondition.
type alreadyExistsError struct{ err error }

func (e *alreadyExistsError) Error() string { return e.err.Error() }
func (e *alreadyExistsError) Unwrap() error { return e.err }

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var ae *alreadyExistsError
	return errors.As(err, &ae)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &identity.Error{Code: identity.CodeInternal, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return &identity.Error{Code: identity.CodeInternal, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if c.cfg.TokenSource != nil {
		token, err := c.cfg.TokenSource(ctx)
		if err != nil {
			return fmt.Errorf("failed to obtain bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &identity.Error{Code: identity.CodeNetwork, Message: "document store request failed", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError:
		return &identity.Error{
			Code:    identity.CodeUnavailable,
			Message: fmt.Sprintf("document store returned HTTP %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusConflict:
		return &alreadyExistsError{err: fmt.Errorf("document store returned HTTP %d", resp.StatusCode)}
	default:
		return &identity.Error{
			Code:    identity.CodeInternal,
			Message: fmt.Sprintf("document store returned HTTP %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &identity.Error{Code: identity.CodeInternal, Message: "invalid document store response", Err: err}
	}
	return nil
}
