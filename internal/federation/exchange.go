// internal/federation/exchange.go
package federation

import (
	"context"
	"errors"

	"gatehouse/internal/upstream"
)

// Exchanger swaps an authorization code for tenant-scoped tokens. The
// upstream API performs the actual server-to-server exchange with the
// provider and mints tokens under the tenant's policy.
type Exchanger interface {
	Exchange(ctx context.Context, tenantID, code, state string) (token, refreshToken string, err error)
}

const googleCallbackMutation = `mutation GoogleCallback($code: String!, $state: String!, $tenantId: ID!) {
  googleCallback(code: $code, state: $state, tenantId: $tenantId) {
    token
    refreshToken
  }
}`

type upstreamExchanger struct {
	api *upstream.Client
}

func NewUpstreamExchanger(api *upstream.Client) Exchanger {
	return &upstreamExchanger{api: api}
}

func (e *upstreamExchanger) Exchange(ctx context.Context, tenantID, code, state string) (string, string, error) {
	doc, err := e.api.Do(ctx, googleCallbackMutation, map[string]any{
		"code": code, "state": state, "tenantId": tenantID,
	})
	if err != nil {
		return "", "", err
	}
	token, ok := upstream.Extract(doc, "data.googleCallback.token")
	if !ok {
		return "", "", errors.New("exchange response missing token")
	}
	refresh, _ := upstream.Extract(doc, "data.googleCallback.refreshToken")
	return token, refresh, nil
}

// UserMessage picks the text safe to show end users for an exchange
// failure: the upstream's own message, or a generic fallback.
func UserMessage(err error) string {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "Google authentication failed"
}
