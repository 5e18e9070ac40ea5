// Package login fronts the upstream identity collaborator for
// credential flows. The gateway never sees password hashes; it forwards
// credentials once and handles tokens opaquely from then on.
package login

import (
	"context"
	"errors"
	"fmt"

	"gatehouse/internal/upstream"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const loginMutation = `mutation Login($email: String!, $password: String!, $tenantId: ID!) {
  login(email: $email, password: $password, tenantId: $tenantId) {
    token
    refreshToken
  }
}`

const registerMutation = `mutation Register($name: String!, $email: String!, $password: String!, $tenantId: ID!) {
  register(name: $name, email: $email, password: $password, tenantId: $tenantId) {
    token
    refreshToken
  }
}`

const refreshMutation = `mutation RefreshToken($refreshToken: String!, $tenantId: ID!) {
  refreshToken(refreshToken: $refreshToken, tenantId: $tenantId) {
    token
    refreshToken
  }
}`

type Service struct {
	api *upstream.Client
}

func NewService(api *upstream.Client) *Service {
	return &Service{api: api}
}

// Login verifies credentials upstream and returns the minted tokens.
// Any upstream rejection reads as invalid credentials; transport
// failures surface as-is.
func (s *Service) Login(ctx context.Context, tenantID, email, password string) (token, refresh string, err error) {
	doc, err := s.api.Do(ctx, loginMutation, map[string]any{
		"email": email, "password": password, "tenantId": tenantID,
	})
	if err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			return "", "", fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
		}
		return "", "", err
	}
	return extractTokens(doc, "data.login")
}

func (s *Service) Register(ctx context.Context, tenantID, name, email, password string) (token, refresh string, err error) {
	doc, err := s.api.Do(ctx, registerMutation, map[string]any{
		"name": name, "email": email, "password": password, "tenantId": tenantID,
	})
	if err != nil {
		return "", "", err
	}
	return extractTokens(doc, "data.register")
}

func (s *Service) Refresh(ctx context.Context, tenantID, refreshToken string) (token, refresh string, err error) {
	doc, err := s.api.Do(ctx, refreshMutation, map[string]any{
		"refreshToken": refreshToken, "tenantId": tenantID,
	})
	if err != nil {
		return "", "", err
	}
	return extractTokens(doc, "data.refreshToken")
}

func extractTokens(doc any, base string) (string, string, error) {
	token, ok := upstream.Extract(doc, base+".token")
	if !ok {
		return "", "", errors.New("upstream response missing token")
	}
	refresh, _ := upstream.Extract(doc, base+".refreshToken")
	return token, refresh, nil
}
