package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"dailypost/client/internal/store"
)

// Keepalive renews the access token in the background before it
// expires, so long-running commands never hit a 401 in the first place.
type Keepalive struct {
	cron        *cron.Cron
	sess        *Session
	tokens      store.TokenStore
	renewWithin time.Duration
	log         zerolog.Logger
}

func NewKeepalive(sess *Session, tokens store.TokenStore, renewWithin time.Duration, log zerolog.Logger) *Keepalive {
	return &Keepalive{
		cron:        cron.New(),
		sess:        sess,
		tokens:      tokens,
		renewWithin: renewWithin,
		log:         log,
	}
}

func (k *Keepalive) Start(interval time.Duration) error {
	if _, err := k.cron.AddFunc(fmt.Sprintf("@every %s", interval), k.tick); err != nil {
		return fmt.Errorf("schedule keepalive: %w", err)
	}
	k.cron.Start()
	return nil
}

func (k *Keepalive) Stop() {
	<-k.cron.Stop().Done()
}

func (k *Keepalive) tick() {
	if !k.sess.Snapshot().IsAuth {
		return
	}

	access, err := k.tokens.Get(store.KeyAccessToken)
	if err == nil && access != "" {
		expiry, err := tokenExpiry(access)
		if err == nil && time.Until(expiry) > k.renewWithin {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	state := k.sess.Renew(ctx)
	if state.IsAuth {
		k.log.Debug().Msg("access token renewed")
	} else {
		k.log.Warn().Msg("session could not be renewed")
	}
}

// tokenExpiry reads the exp claim without verifying the signature. The
// client has no signing key; the server is the authority, this is only
// a renewal hint.
func tokenExpiry(raw string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
