package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRegistryGetClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/client/https@%2F%2Frp.example.org", "/client/https@//rp.example.org":
			json.NewEncoder(w).Encode(Client{ClientID: "https@//rp.example.org", GrantTypes: []string{"authorization_code"}})
		case "/client/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	registry := NewHTTPRegistry(Config{BaseURL: server.URL})
	ctx := context.Background()

	t.Run("registered client", func(t *testing.T) {
		client, err := registry.GetClient(ctx, "https@//rp.example.org")
		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, "https@//rp.example.org", client.ClientID)
		assert.Equal(t, []string{"authorization_code"}, client.GrantTypes)
	})

	t.Run("unknown client is nil, nil", func(t *testing.T) {
		client, err := registry.GetClient(ctx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("server errors propagate", func(t *testing.T) {
		_, err := registry.GetClient(ctx, "broken")
		assert.Error(t, err)
	})
}

func TestHTTPRegistryUpsertClient(t *testing.T) {
	var received Client
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/client" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer server.Close()

	registry := NewHTTPRegistry(Config{BaseURL: server.URL})
	err := registry.UpsertClient(context.Background(), &Client{
		ClientID:     "https@//rp.example.org",
		Secret:       "s3cret",
		RedirectURIs: []string{"https://rp.example.org/redirect"},
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "https@//rp.example.org", received.ClientID)
	assert.Equal(t, "s3cret", received.Secret)

	t.Run("rejection is an error", func(t *testing.T) {
		rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer rejecting.Close()

		registry := NewHTTPRegistry(Config{BaseURL: rejecting.URL})
		err := registry.UpsertClient(context.Background(), &Client{ClientID: "x"})
		assert.Error(t, err)
	})
}
