package hooks

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/model"
	"github.com/openfed/manage/pkg/oidc"
)

// OIDCClientKey is the data key under which PostRead enriches a relying
// party with its registry-side client.
const OIDCClientKey = "oidcClient"

// TranslateEntityID derives the deterministic registry client id from a
// SAML-style entity identifier: every colon becomes an at sign, so
// "https://oidc.rp" registers as "https@//oidc.rp".
func TranslateEntityID(entityID string) string {
	return strings.ReplaceAll(entityID, ":", "@")
}

// OIDCRegistrationHook mirrors relying-party records into the external
// client registry on create and update, and enriches reads with the
// registered client. Registration is single-attempt; a registry failure
// fails the operation and callers re-invoke.
type OIDCRegistrationHook struct {
	NoopHook
	registry oidc.Registry
	log      *logrus.Logger
}

// NewOIDCRegistrationHook creates the registration hook.
func NewOIDCRegistrationHook(registry oidc.Registry, log *logrus.Logger) *OIDCRegistrationHook {
	return &OIDCRegistrationHook{registry: registry, log: log}
}

func (h *OIDCRegistrationHook) AppliesTo(record *model.MetaData) bool {
	return strings.TrimSuffix(record.Type, model.RevisionSuffix) == model.RelyingParty.String()
}

func (h *OIDCRegistrationHook) PreCreate(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	return h.register(ctx, record)
}

func (h *OIDCRegistrationHook) PreUpdate(ctx context.Context, _, updated *model.MetaData) (*model.MetaData, error) {
	return h.register(ctx, updated)
}

func (h *OIDCRegistrationHook) PostRead(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	client, err := h.registry.GetClient(ctx, TranslateEntityID(record.EntityID()))
	if err != nil {
		// Enrichment is best-effort; a registry outage must not block reads.
		h.log.WithError(err).WithField("entityid", record.EntityID()).Warn("client registry lookup failed")
		return record, nil
	}
	if client != nil {
		record.Data[OIDCClientKey] = client
	}
	return record, nil
}

func (h *OIDCRegistrationHook) register(ctx context.Context, record *model.MetaData) (*model.MetaData, error) {
	// The enriched read representation must never be written back.
	delete(record.Data, OIDCClientKey)

	fields := record.MetaDataFields()
	client := &oidc.Client{
		ClientID:                    TranslateEntityID(record.EntityID()),
		Secret:                      stringField(fields, "secret"),
		GrantTypes:                  stringSliceField(fields, "grants"),
		Scope:                       stringSliceField(fields, "scopes"),
		RedirectURIs:                stringSliceField(fields, "redirectUrls"),
		AccessTokenValiditySeconds:  intField(fields, "accessTokenValidity"),
		RefreshTokenValiditySeconds: intField(fields, "refreshTokenValidity"),
	}
	if err := h.registry.UpsertClient(ctx, client); err != nil {
		return nil, err
	}
	h.log.WithField("clientId", client.ClientID).Info("registered OIDC client")
	return record, nil
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func stringSliceField(fields map[string]interface{}, key string) []string {
	raw, _ := fields[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, element := range raw {
		if s, ok := element.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intField(fields map[string]interface{}, key string) int {
	switch t := fields[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}
