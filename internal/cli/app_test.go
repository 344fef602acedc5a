package cli_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailypost/client/internal/apitest"
	"dailypost/client/internal/cli"
	"dailypost/client/internal/config"
	"dailypost/client/internal/service"
	"dailypost/client/internal/session"
	"dailypost/client/internal/store"
	"dailypost/client/internal/transport"
)

type shell struct {
	app     *cli.App
	backend *apitest.Backend
	tokens  *store.MemStore
	out     *bytes.Buffer
}

func newShell(t *testing.T) *shell {
	t.Helper()

	backend := apitest.New()
	t.Cleanup(backend.Close)

	tokens := store.NewMemStore()
	client, err := transport.New(backend.URL(), tokens, "cli-test", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)

	auth := service.NewAuthService(client)
	posts := service.NewPostService(client)
	users := service.NewUserService(client)
	sess := session.New(auth, tokens, zerolog.Nop())
	keep := session.NewKeepalive(sess, tokens, time.Minute, zerolog.Nop())

	cfg := &config.Config{
		Keepalive: config.KeepaliveConfig{Interval: time.Minute, RenewWithin: time.Minute},
	}

	out := &bytes.Buffer{}
	return &shell{
		app:     cli.New(cfg, sess, keep, posts, users, zerolog.Nop(), out),
		backend: backend,
		tokens:  tokens,
		out:     out,
	}
}

func TestCommandsRequireAuth(t *testing.T) {
	sh := newShell(t)

	err := sh.app.Run(context.Background(), []string{"posts"})
	assert.ErrorIs(t, err, cli.ErrNotLoggedIn)
}

func TestLoginThenPosts(t *testing.T) {
	sh := newShell(t)
	sh.backend.AddUser("alice", "secret", "")

	err := sh.app.Run(context.Background(), []string{"login", "-u", "alice", "-p", "secret"})
	require.NoError(t, err)
	assert.Contains(t, sh.out.String(), "logged in as alice")

	// tokens persisted by the shell's session
	access, err := sh.tokens.Get(store.KeyAccessToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
}

func TestBootstrapRestoresSessionBeforeDispatch(t *testing.T) {
	sh := newShell(t)
	sh.backend.AddUser("alice", "secret", "")

	require.NoError(t, sh.app.Run(context.Background(), []string{"login", "-u", "alice", "-p", "secret"}))

	// a fresh shell over the same token store: CheckAuth must restore
	// the session before the command runs
	fresh := newShellOver(t, sh)
	require.NoError(t, fresh.app.Run(context.Background(), []string{"whoami"}))
	assert.Contains(t, fresh.out.String(), "alice")
}

func TestLoginFailureReported(t *testing.T) {
	sh := newShell(t)
	sh.backend.AddUser("alice", "secret", "")

	err := sh.app.Run(context.Background(), []string{"login", "-u", "alice", "-p", "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestUnknownCommand(t *testing.T) {
	sh := newShell(t)
	err := sh.app.Run(context.Background(), []string{"frobnicate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

// newShellOver builds a second shell sharing sh's backend and token
// store, simulating a later process start on the same machine.
func newShellOver(t *testing.T, sh *shell) *shell {
	t.Helper()

	client, err := transport.New(sh.backend.URL(), sh.tokens, "cli-test", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)

	auth := service.NewAuthService(client)
	posts := service.NewPostService(client)
	users := service.NewUserService(client)
	sess := session.New(auth, sh.tokens, zerolog.Nop())
	keep := session.NewKeepalive(sess, sh.tokens, time.Minute, zerolog.Nop())

	cfg := &config.Config{
		Keepalive: config.KeepaliveConfig{Interval: time.Minute, RenewWithin: time.Minute},
	}

	out := &bytes.Buffer{}
	return &shell{
		app:     cli.New(cfg, sess, keep, posts, users, zerolog.Nop(), out),
		backend: sh.backend,
		tokens:  sh.tokens,
		out:     out,
	}
}
