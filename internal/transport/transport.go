package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"dailypost/client/internal/api"
	"dailypost/client/internal/store"
)

// ErrSessionExpired reports that a 401 could not be recovered because the
// refresh call itself failed. Callers should treat it as "not logged in".
var ErrSessionExpired = errors.New("session expired")

const (
	requestIDHeader = "X-Request-Id"
	clientIDHeader  = "X-Client-Id"
	refreshCookie   = "refreshToken"
	refreshPath     = "/refresh"
)

// Stage mutates an outgoing request before dispatch.
type Stage func(*http.Request)

// Client is the single shared API client. Every request runs through an
// ordered stage pipeline (correlation ID, refresh cookie, bearer token),
// and a 401 response triggers exactly one silent refresh-and-retry.
//
// The internal refresh call skips the bearer stage: at refresh time the
// access token may be the very thing that is invalid.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  store.TokenStore
	log     zerolog.Logger

	stages        []Stage
	refreshStages []Stage

	// collapses concurrent refresh attempts into one round trip
	refreshGroup singleflight.Group
}

func New(baseURL string, tokens store.TokenStore, clientID string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log,
	}

	correlation := correlationStage(clientID)
	cookie := refreshCookieStage(tokens)
	bearer := bearerStage(tokens)

	c.stages = []Stage{correlation, cookie, bearer}
	c.refreshStages = []Stage{correlation, cookie}

	return c, nil
}

// Do dispatches one request through the full pipeline. The body is a byte
// slice, not a reader, so a refresh-and-retry can replay it verbatim.
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, body []byte) (*http.Response, error) {
	return c.do(ctx, method, path, header, body, false)
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte, attempted bool) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, header, body)
	if err != nil {
		return nil, err
	}
	for _, stage := range c.stages {
		stage(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !attempted && c.hasRefreshCredential() {
		drain(resp)

		if err := c.refreshAccess(ctx); err != nil {
			c.log.Debug().Err(err).Str("path", path).Msg("silent refresh failed")
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}

		c.log.Debug().Str("path", path).Msg("access token refreshed, retrying request")
		return c.do(ctx, method, path, header, body, true)
	}

	return resp, nil
}

// RefreshSession exchanges the refresh credential for a new token pair
// and persists it. The call carries no bearer header.
func (c *Client) RefreshSession(ctx context.Context) (*api.AuthResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, refreshPath, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, stage := range c.refreshStages {
		stage(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var auth api.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}

	if err := c.persistTokens(auth.Tokens); err != nil {
		return nil, err
	}
	return &auth, nil
}

// hasRefreshCredential gates the 401 recovery: without a stored refresh
// token there is no session to restore, and the 401 (e.g. a rejected
// login) must reach the caller with the server's message intact.
func (c *Client) hasRefreshCredential() bool {
	token, err := c.tokens.Get(store.KeyRefreshToken)
	return err == nil && token != ""
}

func (c *Client) refreshAccess(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.RefreshSession(ctx)
	})
	return err
}

func (c *Client) persistTokens(pair api.TokenPair) error {
	if err := c.tokens.Set(store.KeyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if pair.RefreshToken != "" {
		if err := c.tokens.Set(store.KeyRefreshToken, pair.RefreshToken); err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, header http.Header, body []byte) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	return req, nil
}

func correlationStage(clientID string) Stage {
	return func(req *http.Request) {
		if req.Header.Get(requestIDHeader) == "" {
			req.Header.Set(requestIDHeader, uuid.NewString())
		}
		if clientID != "" {
			req.Header.Set(clientIDHeader, clientID)
		}
	}
}

// refreshCookieStage models the browser sending the session cookie on
// every call.
func refreshCookieStage(tokens store.TokenStore) Stage {
	return func(req *http.Request) {
		token, err := tokens.Get(store.KeyRefreshToken)
		if err != nil || token == "" {
			return
		}
		req.AddCookie(&http.Cookie{Name: refreshCookie, Value: token})
	}
}

func bearerStage(tokens store.TokenStore) Stage {
	return func(req *http.Request) {
		token, err := tokens.Get(store.KeyAccessToken)
		if err != nil || token == "" {
			return
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
