package hooks

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfed/manage/pkg/model"
	"github.com/openfed/manage/pkg/oidc"
)

type fakeRegistry struct {
	clients  map[string]*oidc.Client
	upserted []*oidc.Client
	err      error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{clients: map[string]*oidc.Client{}}
}

func (r *fakeRegistry) GetClient(_ context.Context, clientID string) (*oidc.Client, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.clients[clientID], nil
}

func (r *fakeRegistry) UpsertClient(_ context.Context, client *oidc.Client) error {
	if r.err != nil {
		return r.err
	}
	r.upserted = append(r.upserted, client)
	r.clients[client.ClientID] = client
	return nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestTranslateEntityID(t *testing.T) {
	assert.Equal(t, "https@//oidc.example.org", TranslateEntityID("https://oidc.example.org"))
	assert.Equal(t, "urn@collab@rp", TranslateEntityID("urn:collab:rp"))
}

func TestOIDCRegistrationHookRegister(t *testing.T) {
	ctx := context.Background()
	registry := newFakeRegistry()
	hook := NewOIDCRegistrationHook(registry, testLogger())

	record := model.NewMetaData(model.RelyingParty.String(), map[string]interface{}{
		"entityid": "https://rp.example.org",
		"metaDataFields": map[string]interface{}{
			"secret":              "s3cret",
			"grants":              []interface{}{"authorization_code", "refresh_token"},
			"scopes":              []interface{}{"openid"},
			"redirectUrls":        []interface{}{"https://rp.example.org/redirect"},
			"accessTokenValidity": float64(3600),
		},
	})

	_, err := hook.PreCreate(ctx, record)
	require.NoError(t, err)
	require.Len(t, registry.upserted, 1)

	client := registry.upserted[0]
	assert.Equal(t, "https@//rp.example.org", client.ClientID)
	assert.Equal(t, "s3cret", client.Secret)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, client.GrantTypes)
	assert.Equal(t, []string{"openid"}, client.Scope)
	assert.Equal(t, []string{"https://rp.example.org/redirect"}, client.RedirectURIs)
	assert.Equal(t, 3600, client.AccessTokenValiditySeconds)
	assert.Equal(t, 0, client.RefreshTokenValiditySeconds)

	t.Run("registry failure fails the operation", func(t *testing.T) {
		registry.err = errors.New("registry down")
		_, err := hook.PreUpdate(ctx, nil, record)
		assert.Error(t, err)
		registry.err = nil
	})

	t.Run("stale enrichment is stripped before registration", func(t *testing.T) {
		record.Data[OIDCClientKey] = map[string]interface{}{"clientId": "old"}
		saved, err := hook.PreUpdate(ctx, nil, record)
		require.NoError(t, err)
		assert.NotContains(t, saved.Data, OIDCClientKey)
	})
}

func TestOIDCRegistrationHookPostRead(t *testing.T) {
	ctx := context.Background()
	registry := newFakeRegistry()
	registry.clients["https@//rp.example.org"] = &oidc.Client{ClientID: "https@//rp.example.org"}
	hook := NewOIDCRegistrationHook(registry, testLogger())

	t.Run("enriches a registered relying party", func(t *testing.T) {
		record := model.NewMetaData(model.RelyingParty.String(), map[string]interface{}{"entityid": "https://rp.example.org"})
		enriched, err := hook.PostRead(ctx, record)
		require.NoError(t, err)
		require.Contains(t, enriched.Data, OIDCClientKey)
		assert.Equal(t, "https@//rp.example.org", enriched.Data[OIDCClientKey].(*oidc.Client).ClientID)
	})

	t.Run("unregistered clients leave the record untouched", func(t *testing.T) {
		record := model.NewMetaData(model.RelyingParty.String(), map[string]interface{}{"entityid": "https://other.example.org"})
		enriched, err := hook.PostRead(ctx, record)
		require.NoError(t, err)
		assert.NotContains(t, enriched.Data, OIDCClientKey)
	})

	t.Run("registry outage does not block reads", func(t *testing.T) {
		registry.err = errors.New("registry down")
		defer func() { registry.err = nil }()

		record := model.NewMetaData(model.RelyingParty.String(), map[string]interface{}{"entityid": "https://rp.example.org"})
		enriched, err := hook.PostRead(ctx, record)
		require.NoError(t, err)
		assert.NotContains(t, enriched.Data, OIDCClientKey)
	})
}
