package service_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailypost/client/internal/api"
	"dailypost/client/internal/apitest"
	"dailypost/client/internal/service"
	"dailypost/client/internal/store"
	"dailypost/client/internal/transport"
)

type fixture struct {
	backend *apitest.Backend
	tokens  *store.MemStore
	auth    *service.AuthService
	posts   *service.PostService
	users   *service.UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := apitest.New()
	t.Cleanup(backend.Close)

	tokens := store.NewMemStore()
	client, err := transport.New(backend.URL(), tokens, "test-client", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)

	return &fixture{
		backend: backend,
		tokens:  tokens,
		auth:    service.NewAuthService(client),
		posts:   service.NewPostService(client),
		users:   service.NewUserService(client),
	}
}

func (f *fixture) loginAs(t *testing.T, username, password string) *api.AuthResponse {
	t.Helper()

	resp, err := f.auth.Login(context.Background(), username, password)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Set(store.KeyAccessToken, resp.Tokens.AccessToken))
	require.NoError(t, f.tokens.Set(store.KeyRefreshToken, resp.Tokens.RefreshToken))
	return resp
}

func TestLoginAndProfile(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser("alice", "secret", "al")

	resp := f.loginAs(t, "alice", "secret")
	assert.Equal(t, "alice", resp.User.Username)

	user, err := f.users.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "al", user.Nickname)
}

func TestLoginRejected(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser("alice", "secret", "")

	_, err := f.auth.Login(context.Background(), "alice", "wrong")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid credentials", apiErr.Message)
}

func TestRegistration(t *testing.T) {
	f := newFixture(t)

	resp, err := f.auth.Register(context.Background(), "bob", "pw", "bobby")
	require.NoError(t, err)
	assert.Equal(t, "bob", resp.User.Username)
	assert.NotEmpty(t, resp.Tokens.AccessToken)

	_, err = f.auth.Register(context.Background(), "bob", "pw", "bobby")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "username already taken", apiErr.Message)
}

func TestPostLifecycle(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser("alice", "secret", "")
	resp := f.loginAs(t, "alice", "secret")

	created, err := f.posts.Create(context.Background(), service.CreatePostInput{
		Title:   "hello",
		Content: "first post",
		UserID:  resp.User.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", created.Title)
	require.NotNil(t, created.Author)
	assert.Equal(t, "alice", created.Author.Username)

	posts, err := f.posts.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)

	got, err := f.posts.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "first post", got.Content)

	byUser, err := f.posts.ListByUser(context.Background(), resp.User.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)

	profile, err := f.users.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, profile.PostsCount)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser("alice", "secret", "")
	f.loginAs(t, "alice", "secret")

	user, err := f.users.UpdateProfile(context.Background(), "alice2")
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username)

	// the renamed account stays reachable with the same token
	user, err = f.users.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username)
}

func TestUsersList(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser("alice", "secret", "")
	f.backend.AddUser("bob", "pw", "")
	f.loginAs(t, "alice", "secret")

	users, err := f.users.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser("alice", "secret", "")
	f.loginAs(t, "alice", "secret")

	result, err := f.users.Upload(context.Background(), "cat.png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	assert.Equal(t, "/static/cat.png", result.URL)
}

func TestSilentRefreshAcrossServices(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser("alice", "secret", "")
	f.loginAs(t, "alice", "secret")

	// server-side revocation: the next call 401s, the client recovers
	// without the caller noticing
	f.backend.RevokeAccessTokens()

	before := f.backend.RefreshCount()
	user, err := f.users.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, before+1, f.backend.RefreshCount())
}

func TestUploadRetriesAfterRevocation(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser("alice", "secret", "")
	f.loginAs(t, "alice", "secret")
	f.backend.RevokeAccessTokens()

	result, err := f.users.Upload(context.Background(), "dog.png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	assert.Equal(t, "/static/dog.png", result.URL)
}
