package model

import "fmt"

// EntityType identifies the kind of federation participant a record describes.
type EntityType string

const (
	// ServiceProvider is a SAML 2.0 service provider.
	ServiceProvider EntityType = "saml20_sp"
	// IdentityProvider is a SAML 2.0 identity provider.
	IdentityProvider EntityType = "saml20_idp"
	// RelyingParty is an OpenID Connect relying party.
	RelyingParty EntityType = "oidc10_rp"
	// SingleTenantTemplate is a template record for single-tenant instances.
	SingleTenantTemplate EntityType = "single_tenant_template"
)

// RevisionSuffix marks the archived counterpart of an entity type, e.g.
// "saml20_sp_revision".
const RevisionSuffix = "_revision"

func (t EntityType) String() string { return string(t) }

// RevisionType returns the archived kind for this entity type.
func (t EntityType) RevisionType() string { return string(t) + RevisionSuffix }

// JanusType returns the legacy type tag used by the downstream consumer.
func (t EntityType) JanusType() string {
	switch t {
	case ServiceProvider:
		return "saml20-sp"
	case IdentityProvider:
		return "saml20-idp"
	default:
		return string(t)
	}
}

// ParseEntityType validates a wire-level type string.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case ServiceProvider, IdentityProvider, RelyingParty, SingleTenantTemplate:
		return EntityType(s), nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Family returns the entity types that share an entityid uniqueness scope
// with t. Service providers and relying parties share one namespace; identity
// providers and single-tenant templates each have their own.
func (t EntityType) Family() []EntityType {
	switch t {
	case ServiceProvider, RelyingParty:
		return []EntityType{ServiceProvider, RelyingParty}
	default:
		return []EntityType{t}
	}
}
