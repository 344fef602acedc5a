package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/ksuid"

	"dailypost/client/internal/cli"
	"dailypost/client/internal/config"
	"dailypost/client/internal/log"
	"dailypost/client/internal/service"
	"dailypost/client/internal/session"
	"dailypost/client/internal/store"
	"dailypost/client/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	tokens, err := newTokenStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open token store")
	}

	clientID, err := ensureClientID(tokens)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve client id")
	}

	client, err := transport.New(cfg.API.BaseURL, tokens, clientID, cfg.API.Timeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build api client")
	}

	authService := service.NewAuthService(client)
	postService := service.NewPostService(client)
	userService := service.NewUserService(client)

	sess := session.New(authService, tokens, logger)
	keepalive := session.NewKeepalive(sess, tokens, cfg.Keepalive.RenewWithin, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := cli.New(cfg, sess, keepalive, postService, userService, logger, os.Stdout)
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newTokenStore(cfg *config.Config) (store.TokenStore, error) {
	if cfg.Store.Passphrase != "" {
		return store.NewEncryptedFileStore(cfg.Store.Path, cfg.Store.Passphrase)
	}
	return store.NewFileStore(cfg.Store.Path)
}

// ensureClientID returns the stable installation ID, minting one on
// first run. It survives logout: it identifies the installation, not
// the session.
func ensureClientID(tokens store.TokenStore) (string, error) {
	id, err := tokens.Get(store.KeyClientID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	id = ksuid.New().String()
	if err := tokens.Set(store.KeyClientID, id); err != nil {
		return "", err
	}
	return id, nil
}
