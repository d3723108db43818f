// Package firebase implements identity.Provider against the Google Identity
// Toolkit REST API, with token refresh through the secure-token service.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/mollebakken/artconnect/internal/identity"
)

const (
	defaultBaseURL  = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenURL = "https://securetoken.googleapis.com/v1/token"

	persistFileName = "identity.json"

	// expirySkew is how close to expiry an id token may be before FetchToken
	// refreshes it instead of returning it.
	expirySkew = time.Minute
)

// Config holds the Firebase project configuration.
type Config struct {
	// APIKey is the Firebase web API key. Required.
	APIKey string

	// BaseURL overrides the Identity Toolkit endpoint. Used by tests.
	BaseURL string

	// TokenURL overrides the secure-token endpoint. Used by tests.
	TokenURL string

	// PersistDir is where the signed-in identity is stored once
	// ConfigurePersistence succeeds. Empty means ~/.artconnect.
	PersistDir string

	// HTTPClient overrides the transport. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
}

// state is the signed-in identity plus its token material. Only the fields
// with json tags are persisted; id tokens are short-lived and re-minted from
// the refresh token on restart.
type state struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`

	idToken string
	expiry  time.Time
}

// Client is a Firebase-backed identity.Provider.
type Client struct {
	cfg  Config
	http *http.Client

	mu      sync.Mutex
	current *state
	persist bool

	notifications chan *identity.Identity
}

// New creates a Firebase identity client.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid firebase config: %w", err)
	}

	if cfg.PersistDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.PersistDir = filepath.Join(home, ".artconnect")
	}

	return &Client{
		cfg:           cfg,
		http:          cfg.HTTPClient,
		notifications: make(chan *identity.Identity, 16),
	}, nil
}

// ConfigurePersistence enables durable identity persistence and restores the
// previously signed-in identity when one was saved. The initial
// current-identity notification fires whether or not persistence setup
// succeeds; login without durable persistence still works.
func (c *Client) ConfigurePersistence(ctx context.Context) error {
	err := c.enablePersistence()

	c.mu.Lock()
	ident := c.current.identity()
	c.mu.Unlock()
	c.emit(ident)

	return err
}

func (c *Client) enablePersistence() error {
	if err := os.MkdirAll(c.cfg.PersistDir, 0700); err != nil {
		return fmt.Errorf("failed to prepare persistence directory: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.persist = true
	if c.current != nil {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(c.cfg.PersistDir, persistFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read persisted identity: %w", err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil || st.RefreshToken == "" {
		// Unusable persisted identity; drop it and start signed out.
		os.Remove(filepath.Join(c.cfg.PersistDir, persistFileName))
		log.Warn().Msg("dropped unusable persisted identity")
		return nil
	}

	c.current = &st
	log.Debug().Str("email", st.Email).Msg("restored persisted identity")
	return nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	var res authResult
	err := c.call(ctx, "accounts:signInWithPassword", authPayload{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return c.setCurrent(res), nil
}

func (c *Client) CreateAccount(ctx context.Context, email, password string) (*identity.Identity, error) {
	var res authResult
	err := c.call(ctx, "accounts:signUp", authPayload{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	log.Info().Str("email", email).Msg("account created")
	return c.setCurrent(res), nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.current = nil
	persist := c.persist
	c.mu.Unlock()

	if persist {
		path := filepath.Join(c.cfg.PersistDir, persistFileName)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("failed to remove persisted identity")
		}
	}

	c.emit(nil)
	return nil
}

// FetchToken returns the current id token, refreshing it through the
// secure-token service when it is missing or about to expire.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return "", &identity.Error{Code: identity.CodeInternal, Message: "no signed-in identity"}
	}
	idToken := c.current.idToken
	expiry := c.current.expiry
	refreshToken := c.current.RefreshToken
	c.mu.Unlock()

	if idToken != "" && time.Until(expiry) > expirySkew {
		return idToken, nil
	}

	return c.refresh(ctx, refreshToken)
}

func (c *Client) Notifications() <-chan *identity.Identity {
	return c.notifications
}

type authPayload struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type authResult struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
}

func (c *Client) call(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &identity.Error{Code: identity.CodeInternal, Err: err}
	}

	u := c.cfg.BaseURL + "/" + endpoint + "?key=" + url.QueryEscape(c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return &identity.Error{Code: identity.CodeInternal, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &identity.Error{Code: identity.CodeNetwork, Message: "identity request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &identity.Error{
			Code:    identity.CodeUnavailable,
			Message: fmt.Sprintf("identity service returned HTTP %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &identity.Error{Code: identity.CodeInternal, Message: "invalid identity response", Err: err}
	}
	return nil
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeAPIError(resp *http.Response) error {
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error.Message == "" {
		return &identity.Error{
			Code:    identity.CodeInternal,
			Message: fmt.Sprintf("identity service returned HTTP %d", resp.StatusCode),
		}
	}
	return &identity.Error{Code: classify(apiErr.Error.Message), Message: apiErr.Error.Message}
}

// classify maps Identity Toolkit error strings to structured codes. Messages
// may carry a trailing detail, e.g. "WEAK_PASSWORD : Password should ...".
func classify(msg string) identity.Code {
	key, _, _ := strings.Cut(msg, " ")
	switch key {
	case "EMAIL_NOT_FOUND":
		return identity.CodeUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED",
		"EMAIL_EXISTS", "INVALID_EMAIL", "WEAK_PASSWORD":
		return identity.CodeAuthRejected
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return identity.CodeUnavailable
	default:
		return identity.CodeInternal
	}
}

func (c *Client) setCurrent(res authResult) *identity.Identity {
	st := &state{
		UID:          res.LocalID,
		Email:        res.Email,
		RefreshToken: res.RefreshToken,
		idToken:      res.IDToken,
		expiry:       tokenExpiry(res.IDToken),
	}

	c.mu.Lock()
	c.current = st
	persist := c.persist
	c.mu.Unlock()

	if persist {
		c.save(st)
	}

	ident := st.identity()
	c.emit(ident)
	return ident
}

// refresh exchanges the refresh token at the secure-token endpoint. The
// endpoint speaks the OAuth2 refresh grant, so the exchange goes through an
// oauth2 token source.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.cfg.TokenURL + "?key=" + url.QueryEscape(c.cfg.APIKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", refreshError(err)
	}

	idToken := tok.AccessToken
	if extra, ok := tok.Extra("id_token").(string); ok && extra != "" {
		idToken = extra
	}

	c.mu.Lock()
	st := c.current
	if st != nil {
		st.idToken = idToken
		st.expiry = tok.Expiry
		if tok.RefreshToken != "" {
			st.RefreshToken = tok.RefreshToken
		}
	}
	persist := c.persist && st != nil
	c.mu.Unlock()

	if persist {
		c.save(st)
	}

	log.Debug().Msg("id token refreshed")
	return idToken, nil
}

func refreshError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= http.StatusInternalServerError {
			return &identity.Error{Code: identity.CodeUnavailable, Message: "token service unavailable", Err: err}
		}
		return &identity.Error{Code: identity.CodeAuthRejected, Message: "token refresh rejected", Err: err}
	}
	return &identity.Error{Code: identity.CodeNetwork, Message: "token refresh failed", Err: err}
}

// tokenExpiry reads the exp claim without verifying the signature; the token
// is opaque to this client and only the refresh schedule needs it.
func tokenExpiry(idToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// save writes the persisted identity atomically. Persistence failures are
// logged, never surfaced; the in-memory session stays valid without them.
func (c *Client) save(st *state) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal persisted identity")
		return
	}

	path := filepath.Join(c.cfg.PersistDir, persistFileName)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		log.Warn().Err(err).Msg("failed to persist identity")
		return
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		log.Warn().Err(err).Msg("failed to persist identity")
	}
}

// emit appends to the notification stream. When the consumer falls behind,
// the oldest buffered element is dropped so the latest identity always
// lands; dropping the newest could leave a consumer on a stale session.
func (c *Client) emit(ident *identity.Identity) {
	for {
		select {
		case c.notifications <- ident:
			return
		default:
			select {
			case <-c.notifications:
			default:
			}
		}
	}
}

func (s *state) identity() *identity.Identity {
	if s == nil {
		return nil
	}
	return &identity.Identity{UID: s.UID, Email: s.Email}
}
