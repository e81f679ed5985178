// Package oidc talks to the external OpenID Connect client registry that
// mirrors RP metadata records as OAuth2/OIDC client registrations.
package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Client is the registry's view of an OIDC relying party.
type Client struct {
	ClientID                    string   `json:"clientId"`
	Secret                      string   `json:"secret,omitempty"`
	GrantTypes                  []string `json:"grantTypes"`
	Scope                       []string `json:"scope"`
	RedirectURIs                []string `json:"redirectUris"`
	AccessTokenValiditySeconds  int      `json:"accessTokenValiditySeconds"`
	RefreshTokenValiditySeconds int      `json:"refreshTokenValiditySeconds"`
}

// Registry is the external client-registry collaborator. GetClient returns
// (nil, nil) when no client is registered under the id.
type Registry interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
	UpsertClient(ctx context.Context, client *Client) error
}

// HTTPRegistry is the production Registry, authenticating with OAuth2 client
// credentials.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

// Config holds client-registry connection settings.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// NewHTTPRegistry creates a registry client. Without a token URL it falls
// back to an unauthenticated client, which suits local development setups.
func NewHTTPRegistry(cfg Config) *HTTPRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.TokenURL != "" {
		credentials := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = credentials.Client(context.Background())
		httpClient.Timeout = timeout
	}
	return &HTTPRegistry{baseURL: cfg.BaseURL, client: httpClient}
}

func (r *HTTPRegistry) GetClient(ctx context.Context, clientID string) (*Client, error) {
	endpoint := fmt.Sprintf("%s/client/%s", r.baseURL, url.PathEscape(clientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client %s: %w", clientID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client registry returned %d for %s", resp.StatusCode, clientID)
	}
	var client Client
	if err := json.NewDecoder(resp.Body).Decode(&client); err != nil {
		return nil, fmt.Errorf("failed to decode client %s: %w", clientID, err)
	}
	return &client, nil
}

func (r *HTTPRegistry) UpsertClient(ctx context.Context, client *Client) error {
	body, err := json.Marshal(client)
	if err != nil {
		return err
	}
	endpoint := r.baseURL + "/client"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to register client %s: %w", client.ClientID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("client registry returned %d registering %s", resp.StatusCode, client.ClientID)
	}
	return nil
}
