package service

import (
	"context"
	"io"

	"dailypost/client/internal/api"
	"dailypost/client/internal/transport"
)

type UserService struct {
	client *transport.Client
}

func NewUserService(client *transport.Client) *UserService {
	return &UserService{client: client}
}

func (s *UserService) List(ctx context.Context) ([]api.User, error) {
	var users []api.User
	if err := s.client.GetJSON(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserService) Profile(ctx context.Context) (*api.User, error) {
	var user api.User
	if err := s.client.GetJSON(ctx, "/profile", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type updateProfileRequest struct {
	Username string `json:"username"`
}

func (s *UserService) UpdateProfile(ctx context.Context, username string) (*api.User, error) {
	var user api.User
	if err := s.client.PutJSON(ctx, "/profile", updateProfileRequest{Username: username}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Upload pushes one image and returns the URL the server assigned to it.
func (s *UserService) Upload(ctx context.Context, filename string, r io.Reader) (*api.UploadResult, error) {
	var result api.UploadResult
	if err := s.client.PostMultipart(ctx, "/upload", "image", filename, r, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
