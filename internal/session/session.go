package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"dailypost/client/internal/api"
	"dailypost/client/internal/service"
	"dailypost/client/internal/store"
)

// State is a snapshot of the authentication state. IsAuth is true
// exactly when User is non-nil; every transition below keeps that
// invariant.
type State struct {
	User        *api.User
	IsAuth      bool
	IsLoading   bool
	IsCheckAuth bool
	Err         string
	Status      string
}

// Session owns the in-memory authentication state and the operations
// that mutate it. Construct one per process (or per test) and pass it
// down explicitly.
type Session struct {
	mu    sync.Mutex
	state State

	auth   *service.AuthService
	tokens store.TokenStore
	log    zerolog.Logger
}

func New(auth *service.AuthService, tokens store.TokenStore, log zerolog.Logger) *Session {
	return &Session{
		state:  State{IsCheckAuth: true},
		auth:   auth,
		tokens: tokens,
		log:    log,
	}
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Login exchanges credentials for a token pair. Failures end up in the
// returned state's Err, never as a propagated error.
func (s *Session) Login(ctx context.Context, username, password string) State {
	s.begin()

	resp, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return s.fail(errorMessage(err, "login failed"), "login rejected")
	}
	if err := s.persistTokens(resp.Tokens); err != nil {
		return s.fail(errorMessage(err, "login failed"), "login rejected")
	}
	return s.establish(resp.User, "logged in")
}

func (s *Session) Register(ctx context.Context, username, password, nickname string) State {
	s.begin()

	resp, err := s.auth.Register(ctx, username, password, nickname)
	if err != nil {
		return s.fail(errorMessage(err, "registration failed"), "registration rejected")
	}
	if err := s.persistTokens(resp.Tokens); err != nil {
		return s.fail(errorMessage(err, "registration failed"), "registration rejected")
	}
	return s.establish(resp.User, "registered")
}

// CheckAuth restores the session from a stored refresh token. It runs
// once at startup. Any failure silently demotes to unauthenticated:
// for an anonymous visitor that is the normal outcome, not an error.
// IsCheckAuth drops to false in all cases, unblocking the shell.
func (s *Session) CheckAuth(ctx context.Context) State {
	s.beginCheck()

	if _, err := s.tokens.Get(store.KeyRefreshToken); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Debug().Err(err).Msg("token store read failed")
		}
		return s.finishCheck(nil)
	}

	resp, err := s.auth.Refresh(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("session restore failed")
		return s.finishCheck(nil)
	}

	user := resp.User
	return s.finishCheck(&user)
}

// Renew silently rotates the token pair for an already-authenticated
// session. A failure demotes the session the same way a failed
// bootstrap does.
func (s *Session) Renew(ctx context.Context) State {
	resp, err := s.auth.Refresh(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("session renew failed")
		return s.demote()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user := resp.User
	s.state.User = &user
	s.state.IsAuth = true
	return s.state
}

// Logout is local-only: it clears the in-memory state and removes both
// tokens. The server is not contacted.
func (s *Session) Logout() State {
	if err := s.tokens.Remove(store.KeyAccessToken); err != nil {
		s.log.Warn().Err(err).Msg("remove access token failed")
	}
	if err := s.tokens.Remove(store.KeyRefreshToken); err != nil {
		s.log.Warn().Err(err).Msg("remove refresh token failed")
	}
	return s.demote()
}

func (s *Session) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = true
	s.state.Err = ""
}

func (s *Session) beginCheck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsCheckAuth = true
}

func (s *Session) establish(user api.User, status string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = &user
	s.state.IsAuth = true
	s.state.IsLoading = false
	s.state.Status = status
	return s.state
}

func (s *Session) fail(message, status string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = nil
	s.state.IsAuth = false
	s.state.IsLoading = false
	s.state.Err = message
	s.state.Status = status
	return s.state
}

func (s *Session) finishCheck(user *api.User) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = user
	s.state.IsAuth = user != nil
	s.state.IsCheckAuth = false
	return s.state
}

func (s *Session) demote() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = nil
	s.state.IsAuth = false
	return s.state
}

func (s *Session) persistTokens(pair api.TokenPair) error {
	if err := s.tokens.Set(store.KeyAccessToken, pair.AccessToken); err != nil {
		return err
	}
	return s.tokens.Set(store.KeyRefreshToken, pair.RefreshToken)
}

// errorMessage prefers the server's message, falling back to a generic
// one for transport-level failures.
func errorMessage(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
