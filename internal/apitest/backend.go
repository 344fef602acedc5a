// Package apitest runs an in-process DailyPost API double for client
// tests. It speaks the real wire contract but keeps everything in maps.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"dailypost/client/internal/api"
)

type account struct {
	user     api.User
	password string
}

type Backend struct {
	mu sync.Mutex

	accounts map[string]*account
	posts    []api.Post
	access   map[string]string // access token -> username
	refresh  map[string]string // refresh token -> username

	nextUserID int64
	nextPostID int64
	tokenSeq   int

	loginCalls   int
	refreshCalls int

	srv *httptest.Server
}

func New() *Backend {
	gin.SetMode(gin.TestMode)

	b := &Backend{
		accounts: map[string]*account{},
		access:   map[string]string{},
		refresh:  map[string]string{},
	}

	engine := gin.New()
	engine.POST("/login", b.login)
	engine.POST("/registration", b.register)
	engine.GET("/refresh", b.refreshSession)

	authed := engine.Group("/", b.requireBearer)
	authed.GET("/profile", b.profile)
	authed.PUT("/profile", b.updateProfile)
	authed.GET("/users", b.listUsers)
	authed.GET("/users/:id/posts", b.listUserPosts)
	authed.GET("/posts", b.listPosts)
	authed.GET("/posts/:id", b.getPost)
	authed.POST("/createPost", b.createPost)
	authed.POST("/upload", b.upload)

	b.srv = httptest.NewServer(engine)
	return b
}

func (b *Backend) URL() string { return b.srv.URL }
func (b *Backend) Close()      { b.srv.Close() }

func (b *Backend) LoginCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loginCalls
}

func (b *Backend) RefreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// AddUser seeds an account without going through /registration.
func (b *Backend) AddUser(username, password, nickname string) api.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(username, password, nickname)
}

// RevokeAccessTokens invalidates every issued access token, forcing the
// next authenticated call into the 401 recovery path.
func (b *Backend) RevokeAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = map[string]string{}
}

func (b *Backend) addUserLocked(username, password, nickname string) api.User {
	b.nextUserID++
	user := api.User{
		ID:          b.nextUserID,
		Username:    username,
		Nickname:    nickname,
		IsActivated: true,
		CreatedAt:   time.Now().UTC(),
	}
	b.accounts[username] = &account{user: user, password: password}
	return user
}

func (b *Backend) issuePairLocked(username string) api.TokenPair {
	b.tokenSeq++
	pair := api.TokenPair{
		AccessToken:  fmt.Sprintf("access-%d", b.tokenSeq),
		RefreshToken: fmt.Sprintf("refresh-%d", b.tokenSeq),
	}
	b.access[pair.AccessToken] = username
	b.refresh[pair.RefreshToken] = username
	return pair
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname"`
}

func (b *Backend) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginCalls++

	acc, ok := b.accounts[req.Username]
	if !ok || acc.password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	pair := b.issuePairLocked(req.Username)
	c.JSON(http.StatusOK, api.AuthResponse{Tokens: pair, User: acc.user})
}

func (b *Backend) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.accounts[req.Username]; exists {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username already taken"})
		return
	}

	user := b.addUserLocked(req.Username, req.Password, req.Nickname)
	pair := b.issuePairLocked(req.Username)
	c.JSON(http.StatusOK, api.AuthResponse{Tokens: pair, User: user})
}

func (b *Backend) refreshSession(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshCalls++

	cookie, err := c.Cookie("refreshToken")
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "no session"})
		return
	}
	username, ok := b.refresh[cookie]
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "session expired"})
		return
	}

	// rotation: the presented refresh token is spent
	delete(b.refresh, cookie)
	pair := b.issuePairLocked(username)
	c.JSON(http.StatusOK, api.AuthResponse{Tokens: pair, User: b.accounts[username].user})
}

func (b *Backend) requireBearer(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	b.mu.Lock()
	username, ok := b.access[header[len(prefix):]]
	b.mu.Unlock()
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	c.Set("username", username)
	c.Next()
}

func (b *Backend) currentUser(c *gin.Context) (*account, bool) {
	username := c.GetString("username")

	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[username]
	return acc, ok
}

func (b *Backend) profile(c *gin.Context) {
	acc, ok := b.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, acc.user)
}

type updateProfileRequest struct {
	Username string `json:"username" binding:"required"`
}

func (b *Backend) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	acc, ok := b.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	old := acc.user.Username
	acc.user.Username = req.Username
	delete(b.accounts, old)
	b.accounts[req.Username] = acc
	for token, name := range b.access {
		if name == old {
			b.access[token] = req.Username
		}
	}
	for token, name := range b.refresh {
		if name == old {
			b.refresh[token] = req.Username
		}
	}
	c.JSON(http.StatusOK, acc.user)
}

func (b *Backend) listUsers(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	users := make([]api.User, 0, len(b.accounts))
	for _, acc := range b.accounts {
		users = append(users, acc.user)
	}
	c.JSON(http.StatusOK, users)
}

func (b *Backend) listPosts(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, b.posts)
}

func (b *Backend) getPost(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, post := range b.posts {
		if fmt.Sprintf("%d", post.ID) == c.Param("id") {
			c.JSON(http.StatusOK, post)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "post not found"})
}

func (b *Backend) listUserPosts(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	posts := make([]api.Post, 0)
	for _, post := range b.posts {
		if fmt.Sprintf("%d", post.UserID) == c.Param("id") {
			posts = append(posts, post)
		}
	}
	c.JSON(http.StatusOK, posts)
}

type createPostRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	ImageURL string `json:"image_url"`
	UserID   int64  `json:"user_id"`
}

func (b *Backend) createPost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	acc, ok := b.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextPostID++
	post := api.Post{
		ID:        b.nextPostID,
		Title:     req.Title,
		Content:   req.Content,
		ImageURL:  req.ImageURL,
		UserID:    acc.user.ID,
		CreatedAt: time.Now().UTC(),
		Author:    &api.PostAuthor{ID: acc.user.ID, Username: acc.user.Username},
	}
	b.posts = append(b.posts, post)
	acc.user.PostsCount++
	c.JSON(http.StatusOK, post)
}

func (b *Backend) upload(c *gin.Context) {
	_, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "image required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": "/static/" + header.Filename})
}
