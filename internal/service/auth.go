package service

import (
	"context"

	"dailypost/client/internal/api"
	"dailypost/client/internal/transport"
)

// AuthService wraps the three credential-exchange endpoints. It holds no
// state; token persistence belongs to the transport and the session.
type AuthService struct {
	client *transport.Client
}

func NewAuthService(client *transport.Client) *AuthService {
	return &AuthService{client: client}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*api.AuthResponse, error) {
	var out api.AuthResponse
	if err := s.client.PostJSON(ctx, "/login", loginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AuthService) Register(ctx context.Context, username, password, nickname string) (*api.AuthResponse, error) {
	var out api.AuthResponse
	req := registerRequest{Username: username, Password: password, Nickname: nickname}
	if err := s.client.PostJSON(ctx, "/registration", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh goes through the transport's bare refresh path, which skips
// the bearer stage and persists the rotated pair.
func (s *AuthService) Refresh(ctx context.Context) (*api.AuthResponse, error) {
	return s.client.RefreshSession(ctx)
}
