package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/segmentio/ksuid"

	"dailypost/client/internal/api"
	"dailypost/client/internal/transport"
)

type PostService struct {
	client *transport.Client
}

func NewPostService(client *transport.Client) *PostService {
	return &PostService{client: client}
}

func (s *PostService) List(ctx context.Context) ([]api.Post, error) {
	var posts []api.Post
	if err := s.client.GetJSON(ctx, "/posts", &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostService) Get(ctx context.Context, id int64) (*api.Post, error) {
	var post api.Post
	if err := s.client.GetJSON(ctx, fmt.Sprintf("/posts/%d", id), &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *PostService) ListByUser(ctx context.Context, userID int64) ([]api.Post, error) {
	var posts []api.Post
	if err := s.client.GetJSON(ctx, fmt.Sprintf("/users/%d/posts", userID), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

type CreatePostInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
	UserID   int64  `json:"user_id"`
}

// Create sends an idempotency key so the transport's refresh-and-retry
// cannot double-post.
func (s *PostService) Create(ctx context.Context, input CreatePostInput) (*api.Post, error) {
	header := http.Header{}
	header.Set("Idempotency-Key", ksuid.New().String())

	var post api.Post
	if err := s.client.DoJSON(ctx, http.MethodPost, "/createPost", header, input, &post); err != nil {
		return nil, err
	}
	return &post, nil
}
