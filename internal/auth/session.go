// Package auth holds the device's credential session against the central
// server.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xelth-com/eckwmsfield/internal/database"
	"github.com/xelth-com/eckwmsfield/internal/events"
	"github.com/xelth-com/eckwmsfield/internal/logging"
	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/remote"
	"github.com/xelth-com/eckwmsfield/internal/utils"
)

var (
	// ErrInvalidCredentials is returned by Login when the server rejects the
	// email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotLoggedIn is returned when a refresh finds the session logged out.
	ErrNotLoggedIn = errors.New("not logged in")
)

// expirySkew refreshes slightly early so a token does not expire in flight.
const expirySkew = 30 * time.Second

// CredentialStore persists the session across restarts.
type CredentialStore interface {
	LoadCredential(ctx context.Context) (*models.Credential, error)
	SaveCredential(ctx context.Context, c *models.Credential) error
	ClearCredentials(ctx context.Context) error
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	Tokens tokens          `json:"tokens"`
	User   json.RawMessage `json:"user,omitempty"`
}

// Session holds the current credential. It is safe for concurrent use.
type Session struct {
	mu   sync.RWMutex
	cred *models.Credential

	// refreshMu serializes refreshes; refresh tokens are single use.
	refreshMu sync.Mutex

	store  CredentialStore
	client *remote.Client
	bus    *events.Bus
	log    logging.Logger
	now    func() time.Time
}

// NewSession creates a logged-out session. client is used without
// credentials for the /auth endpoints.
func NewSession(store CredentialStore, client *remote.Client, bus *events.Bus, log logging.Logger) *Session {
	if log == nil {
		log = logging.Discard()
	}
	return &Session{
		store:  store,
		client: client,
		bus:    bus,
		log:    log.With("component", "auth"),
		now:    time.Now,
	}
}

// Restore loads persisted credentials. A device that never logged in is
// not an error.
func (s *Session) Restore(ctx context.Context) error {
	c, err := s.store.LoadCredential(ctx)
	if errors.Is(err, database.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()
	s.log.Info(ctx, "session restored", "email", c.Email)
	return nil
}

// Token returns the current access token without checking its expiry.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil || s.cred.AccessToken == "" {
		return "", false
	}
	return s.cred.AccessToken, true
}

// Email returns the logged-in account, if any.
func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.Email
}

// IsAuthenticated reports whether a usable access token is held, refreshing
// an expired one first. A refresh the server rejects logs the session out.
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	token, ok := s.Token()
	if !ok {
		return false
	}
	if !s.expired(token) {
		return true
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	token, ok = s.Token()
	if !ok {
		return false
	}
	if !s.expired(token) {
		return true
	}

	err := s.refresh(ctx)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrNotLoggedIn) {
		return false
	}
	if errors.Is(err, remote.ErrTransport) {
		s.log.Warn(ctx, "token refresh failed, keeping session", "err", err)
		return false
	}
	s.log.Warn(ctx, "token refresh rejected, logging out", "err", err)
	_ = s.clear(ctx)
	return false
}

// expired treats tokens whose expiry cannot be read as valid; the server
// remains the judge.
func (s *Session) expired(token string) bool {
	exp, err := utils.TokenExpiry(token)
	if err != nil {
		return false
	}
	return !s.now().Add(expirySkew).Before(exp)
}

func (s *Session) refresh(ctx context.Context) error {
	s.mu.RLock()
	if s.cred == nil {
		s.mu.RUnlock()
		return ErrNotLoggedIn
	}
	cred := *s.cred
	s.mu.RUnlock()

	if cred.RefreshToken == "" {
		return errors.New("no refresh token")
	}
	var resp tokenResponse
	err := s.client.Do(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": cred.RefreshToken}, &resp)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if resp.Tokens.AccessToken == "" {
		return fmt.Errorf("refresh: %w: no access token", remote.ErrBadResponse)
	}
	cred.AccessToken = resp.Tokens.AccessToken
	if resp.Tokens.RefreshToken != "" {
		cred.RefreshToken = resp.Tokens.RefreshToken
	}
	if err := s.replace(ctx, &cred); err != nil {
		return err
	}
	s.log.Info(ctx, "access token refreshed")
	return nil
}

// Login exchanges email and password for tokens and persists them.
func (s *Session) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	var resp tokenResponse
	err := s.client.Do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if errors.Is(err, remote.ErrUnauthenticated) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Tokens.AccessToken == "" {
		return fmt.Errorf("login: %w: no access token", remote.ErrBadResponse)
	}

	cred := &models.Credential{
		Email:        email,
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
		User:         []byte(resp.User),
	}
	if err := s.persist(ctx, cred); err != nil {
		return err
	}
	s.log.Info(ctx, "logged in", "email", email)
	s.bus.Auth(true)
	return nil
}

// Logout notifies the server on a best-effort basis and always clears the
// local session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.RLock()
	var refresh string
	if s.cred != nil {
		refresh = s.cred.RefreshToken
	}
	s.mu.RUnlock()

	if refresh != "" {
		if err := s.client.Do(ctx, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": refresh}, nil); err != nil {
			s.log.Warn(ctx, "server logout failed", "err", err)
		}
	}
	return s.clear(ctx)
}

func (s *Session) persist(ctx context.Context, cred *models.Credential) error {
	if err := s.store.SaveCredential(ctx, cred); err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()
	return nil
}

// replace stores refreshed tokens unless the session was logged out while
// the refresh was in flight.
func (s *Session) replace(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return ErrNotLoggedIn
	}
	if err := s.store.SaveCredential(ctx, cred); err != nil {
		return err
	}
	s.cred = cred
	return nil
}

func (s *Session) clear(ctx context.Context) error {
	s.mu.Lock()
	wasIn := s.cred != nil
	s.cred = nil
	s.mu.Unlock()

	err := s.store.ClearCredentials(ctx)
	if err != nil {
		s.log.Error(ctx, "clear stored credentials", "err", err)
	}
	if wasIn {
		s.bus.Auth(false)
	}
	return err
}
