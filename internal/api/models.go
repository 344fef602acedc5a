package api

import (
	"fmt"
	"time"
)

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Nickname    string    `json:"nickname,omitempty"`
	IsActivated bool      `json:"isActivated"`
	PostsCount  int       `json:"postsCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is the envelope returned by /login, /registration and
// /refresh.
type AuthResponse struct {
	Tokens TokenPair `json:"tokens"`
	User   User      `json:"user"`
}

type PostAuthor struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Post struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	ImageURL  string      `json:"image_url,omitempty"`
	UserID    int64       `json:"user_id,omitempty"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
	Author    *PostAuthor `json:"auth,omitempty"`
}

type UploadResult struct {
	URL string `json:"url"`
}

// Error is the body the API sends for any non-2xx business failure.
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error: %s (status %d)", e.Message, e.Status)
}
