package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/pkg/httpclient"
)

const userInfoService = "identity-provider"

// Getter performs GET requests. *httpclient.CircuitBreakerClient satisfies it.
type Getter interface {
	Get(ctx context.Context, url string, headers http.Header) (*http.Response, error)
}

type userInfoResponse struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// UserInfoClient fills in profile fields that the token did not carry.
type UserInfoClient struct {
	client Getter
	url    string
	logger *slog.Logger
}

// NewUserInfoClient creates a client for the provider's userinfo endpoint.
func NewUserInfoClient(url string, client Getter, logger *slog.Logger) *UserInfoClient {
	return &UserInfoClient{client: client, url: url, logger: logger}
}

// NewDefaultUserInfoClient wires the retrying client behind a circuit
// breaker.
func NewDefaultUserInfoClient(url string, logger *slog.Logger) *UserInfoClient {
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig(userInfoService),
		logger,
	)
	return NewUserInfoClient(url, cb, logger)
}

// Fetch asks the provider for the profile behind token.
func (c *UserInfoClient) Fetch(ctx context.Context, token string) (*domain.User, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("Accept", "application/json")

	resp, err := c.client.Get(ctx, c.url, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, userInfoService)
	}
	defer func() { _ = resp.Body.Close() }()

	var info userInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &domain.User{
		ID:          info.Sub,
		Email:       info.Email,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
	}, nil
}

// Enrich returns user with missing display name, photo or email taken from
// the userinfo endpoint. Any failure leaves user as the token described it.
func (c *UserInfoClient) Enrich(ctx context.Context, token string, user domain.User) domain.User {
	if user.DisplayName != "" && user.PhotoURL != "" && user.Email != "" {
		return user
	}

	info, err := c.Fetch(ctx, token)
	if err != nil {
		c.logger.WarnContext(ctx, "userinfo lookup failed, using token claims",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return user
	}
	if info.ID != "" && info.ID != user.ID {
		c.logger.WarnContext(ctx, "userinfo subject mismatch",
			slog.String("user_id", user.ID),
			slog.String("userinfo_sub", info.ID),
		)
		return user
	}

	if user.DisplayName == "" {
		user.DisplayName = info.DisplayName
	}
	if user.PhotoURL == "" {
		user.PhotoURL = info.PhotoURL
	}
	if user.Email == "" {
		user.Email = info.Email
	}
	return user
}
