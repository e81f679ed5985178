// Package export transforms metadata records into the flat legacy schema the
// downstream federation engine consumes. The mapping is pure: no stores, no
// side effects, fixed attribute tables per entity kind.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openfed/manage/pkg/model"
)

// mapping is one row of an attribute table: a source key (top level, or
// colon-delimited with the literal "metadata" first segment pointing into
// metaDataFields) and an optional rename of the output leaf.
type mapping struct {
	key    string
	rename string
}

var commonAttributes = []mapping{
	{key: "entityid", rename: "name"},
	{key: "metadata:name:nl"},
	{key: "metadata:name:en"},
	{key: "metadata:name:pt"},
	{key: "metadata:displayName:en"},
	{key: "metadata:displayName:nl"},
	{key: "metadata:displayName:pt"},
	{key: "metadata:description:en"},
	{key: "metadata:description:nl"},
	{key: "metadata:description:pt"},
	{key: "metadata:OrganizationName:nl"},
	{key: "metadata:OrganizationName:en"},
	{key: "metadata:OrganizationName:pt"},
	{key: "metadata:OrganizationDisplayName:nl"},
	{key: "metadata:OrganizationDisplayName:en"},
	{key: "metadata:OrganizationDisplayName:pt"},
	{key: "metadata:OrganizationURL:nl"},
	{key: "metadata:OrganizationURL:en"},
	{key: "metadata:OrganizationURL:pt"},
	{key: "metadata:keywords:en"},
	{key: "metadata:keywords:nl"},
	{key: "metadata:keywords:pt"},
	{key: "metadata:url:en"},
	{key: "metadata:url:nl"},
	{key: "metadata:url:pt"},
	{key: "metadata:coin:publish_in_edugain"},
	{key: "metadata:certData"},
	{key: "metadata:certData2"},
	{key: "metadata:certData3"},
	{key: "state"},
	{key: "metadata:NameIDFormat"},
	{key: "metadata:coin:disable_scoping"},
	{key: "metadata:coin:additional_logging"},
	{key: "metadata:coin:signature_method"},
	{key: "manipulation", rename: "manipulation_code"},
}

var spAttributes = []mapping{
	{key: "metadata:coin:transparant_issuer"},
	{key: "metadata:coin:trusted_proxy"},
	{key: "metadata:coin:requesterid_required"},
	{key: "metadata:coin:display_unconnected_idps_wayf"},
	{key: "metadata:coin:eula"},
	{key: "metadata:coin:do_not_add_attribute_aliases"},
	{key: "metadata:coin:policy_enforcement_decision_required"},
	{key: "metadata:coin:no_consent_required"},
	{key: "metadata:coin:sign_response"},
	{key: "metadata:coin:stepup:requireloa"},
	{key: "metadata:coin:stepup:allow_no_token"},
}

var idpAttributes = []mapping{
	{key: "metadata:coin:guest_qualifier"},
	{key: "metadata:coin:schachomeorganization"},
	{key: "metadata:coin:hidden"},
}

// syntheticACSLocation stands in for the SAML endpoint OIDC relying parties
// do not have; the downstream consumer requires one.
const syntheticACSLocation = "https://trusted.proxy.acs.location.rules"

// Export maps a record to the legacy schema based on its entity type.
func Export(record *model.MetaData) (map[string]interface{}, error) {
	switch strings.TrimSuffix(record.Type, model.RevisionSuffix) {
	case model.ServiceProvider.String(), model.SingleTenantTemplate.String():
		return ServiceProvider(record), nil
	case model.IdentityProvider.String():
		return IdentityProvider(record), nil
	case model.RelyingParty.String():
		return OidcClient(record), nil
	}
	return nil, fmt.Errorf("no legacy mapping for type %q", record.Type)
}

// ServiceProvider maps an SP record to the legacy schema.
func ServiceProvider(record *model.MetaData) map[string]interface{} {
	source := record.Data
	result := map[string]interface{}{"type": model.ServiceProvider.JanusType()}

	addCommonProviderAttributes(source, result)
	addNameIDFormats(source, result)
	addAttributeReleasePolicy(source, result)
	addAssertionConsumerService(source, result)

	for _, m := range spAttributes {
		addToResult(source, result, m)
	}

	removeEmptyValues(result)
	return result
}

// IdentityProvider maps an IdP record to the legacy schema.
func IdentityProvider(record *model.MetaData) map[string]interface{} {
	source := record.Data
	result := map[string]interface{}{"type": model.IdentityProvider.JanusType()}

	result["disable_consent_connections"] = listOrEmpty(source["disableConsent"])
	result["stepup_connections"] = listOrEmpty(source["stepupEntities"])
	result["mfa_entities"] = listOrEmpty(source["mfaEntities"])

	addCommonProviderAttributes(source, result)
	addSingleSignOnService(source, result)

	for _, m := range idpAttributes {
		addToResult(source, result, m)
	}

	addShibMdScopes(source, result)

	removeEmptyValues(result)
	return result
}

// OidcClient maps a relying party: the SP mapping plus one synthetic
// assertion-consumer descriptor for downstream compatibility.
func OidcClient(record *model.MetaData) map[string]interface{} {
	result := ServiceProvider(record)
	metadata := childMap(result, "metadata")
	metadata["AssertionConsumerService"] = []interface{}{
		map[string]interface{}{
			"Binding":  "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST",
			"Location": syntheticACSLocation,
			"Index":    "1",
		},
	}
	return result
}

func addCommonProviderAttributes(source, result map[string]interface{}) {
	for _, m := range commonAttributes {
		addToResult(source, result, m)
	}
	addLogo(source, result)
	addContactPersons(source, result)
	addSingleLogOutService(source, result)
	addRedirectSign(source, result)

	result["allowed_connections"] = listOrEmpty(source["allowedEntities"])
	allowedAll := source["allowedall"]
	if allowedAll == nil {
		allowedAll = false
	}
	result["allow_all_entities"] = allowedAll
}

func addLogo(source, result map[string]interface{}) {
	fields := metaDataFields(source)
	height := fields["logo:0:height"]
	url, _ := fields["logo:0:url"].(string)
	width := fields["logo:0:width"]

	if height == nil && url == "" && width == nil {
		return
	}
	logo := map[string]interface{}{}
	putIfHasText(logo, "height", height)
	putIfHasText(logo, "url", url)
	putIfHasText(logo, "width", width)
	childMap(result, "metadata")["logo"] = []interface{}{logo}
}

func addContactPersons(source, result map[string]interface{}) {
	metadata := childMap(result, "metadata")
	fields := metaDataFields(source)
	for i := 0; i < 4; i++ {
		prefix := fmt.Sprintf("contacts:%d:", i)
		contact := map[string]interface{}{}
		for _, sub := range []string{"contactType", "emailAddress", "telephoneNumber", "givenName", "surName"} {
			putIfHasText(contact, sub, fields[prefix+sub])
		}
		if len(contact) > 0 {
			contacts, _ := metadata["contacts"].([]interface{})
			metadata["contacts"] = append(contacts, contact)
		}
	}
}

func addSingleLogOutService(source, result map[string]interface{}) {
	fields := metaDataFields(source)
	location, _ := fields["SingleLogoutService_Location"].(string)
	binding, _ := fields["SingleLogoutService_Binding"].(string)
	if location == "" && binding == "" {
		return
	}
	slo := map[string]interface{}{}
	putIfHasText(slo, "Location", location)
	putIfHasText(slo, "Binding", binding)
	childMap(result, "metadata")["SingleLogoutService"] = []interface{}{slo}
}

func addRedirectSign(source, result map[string]interface{}) {
	fields := metaDataFields(source)
	redirectSign := stringify(fields["redirect.sign"])
	if redirectSign == "" {
		return
	}
	childMap(result, "metadata")["redirect"] = map[string]interface{}{
		"sign": strings.EqualFold(redirectSign, "1"),
	}
}

func addNameIDFormats(source, result map[string]interface{}) {
	metadata := childMap(result, "metadata")
	fields := metaDataFields(source)
	seen := map[string]bool{}
	var formats []interface{}
	for i := 0; i < 3; i++ {
		format, _ := fields[fmt.Sprintf("NameIDFormats:%d", i)].(string)
		if format == "" || seen[format] {
			continue
		}
		seen[format] = true
		formats = append(formats, format)
	}
	if len(formats) > 0 {
		metadata["NameIDFormats"] = formats
	}
}

// addAttributeReleasePolicy emits arp_attributes. A missing or plain-list arp
// becomes an empty structure that pruning deliberately spares; a structured
// per-source map is passed through with reserved "idp"-sourced entries
// stripped, since the consumer has no notion of that internal source.
func addAttributeReleasePolicy(source, result map[string]interface{}) {
	arp, ok := source["arp"].(map[string]interface{})
	if !ok {
		result["arp_attributes"] = map[string]interface{}{}
		return
	}
	enabled, _ := arp["enabled"].(bool)
	if !enabled {
		return
	}
	switch attributes := arp["attributes"].(type) {
	case []interface{}:
		result["arp_attributes"] = attributes
	case map[string]interface{}:
		stripped := make(map[string]interface{}, len(attributes))
		for name, values := range attributes {
			sources, ok := values.([]interface{})
			if !ok {
				stripped[name] = values
				continue
			}
			out := make([]interface{}, 0, len(sources))
			for _, element := range sources {
				entry, ok := element.(map[string]interface{})
				if !ok {
					out = append(out, element)
					continue
				}
				clone := make(map[string]interface{}, len(entry))
				for key, value := range entry {
					if key == "source" && value == "idp" {
						continue
					}
					clone[key] = value
				}
				out = append(out, clone)
			}
			stripped[name] = out
		}
		result["arp_attributes"] = stripped
	}
}

func addSingleSignOnService(source, result map[string]interface{}) {
	addIndexedEndpoints(source, result, "SingleSignOnService", 10, false)
}

func addAssertionConsumerService(source, result map[string]interface{}) {
	addIndexedEndpoints(source, result, "AssertionConsumerService", 30, true)
}

func addIndexedEndpoints(source, result map[string]interface{}, name string, slots int, indexed bool) {
	metadata := childMap(result, "metadata")
	fields := metaDataFields(source)
	for i := 0; i < slots; i++ {
		binding, _ := fields[fmt.Sprintf("%s:%d:Binding", name, i)].(string)
		location, _ := fields[fmt.Sprintf("%s:%d:Location", name, i)].(string)
		if binding == "" && location == "" {
			continue
		}
		endpoint := map[string]interface{}{}
		putIfHasText(endpoint, "Binding", binding)
		putIfHasText(endpoint, "Location", location)
		if indexed {
			putIfHasText(endpoint, "Index", fields[fmt.Sprintf("%s:%d:index", name, i)])
		}
		endpoints, _ := metadata[name].([]interface{})
		metadata[name] = append(endpoints, endpoint)
	}
}

func addShibMdScopes(source, result map[string]interface{}) {
	metadata := childMap(result, "metadata")
	fields := metaDataFields(source)
	for i := 0; i < 10; i++ {
		allowed := stringify(fields[fmt.Sprintf("shibmd:scope:%d:allowed", i)])
		regexp := stringify(fields[fmt.Sprintf("shibmd:scope:%d:regexp", i)])
		if allowed == "" && regexp == "" {
			continue
		}
		scope := map[string]interface{}{}
		if allowed != "" {
			scope["allowed"] = allowed
		}
		if regexp != "" {
			scope["regexp"] = regexp
		}
		shibmd := childMap(metadata, "shibmd")
		scopes, _ := shibmd["scope"].([]interface{})
		shibmd["scope"] = append(scopes, scope)
	}
}

// addToResult resolves one table row. Compound keys mirror their remaining
// path segments as nested maps in the output; the "metadata" first segment
// reads from metaDataFields instead of the top level.
func addToResult(source, result map[string]interface{}, m mapping) {
	parts := strings.Split(m.key, ":")
	if len(parts) == 1 {
		if value := source[m.key]; value != nil {
			result[renameOr(m, m.key)] = stringify(value)
		}
		return
	}

	var value interface{}
	node := result
	for i, part := range parts {
		last := i == len(parts)-1
		if part == "metadata" && i == 0 {
			node = childMap(node, part)
			value = metaDataFields(source)[strings.TrimPrefix(m.key, "metadata:")]
			continue
		}
		if !last {
			node = childMap(node, part)
			continue
		}
		if value != nil {
			node[renameOr(m, part)] = stringify(value)
		}
	}
}

// removeEmptyValues prunes empty nested maps recursively, sparing the
// arp_attributes key which the consumer expects even when empty.
func removeEmptyValues(result map[string]interface{}) {
	for key, value := range result {
		nested, ok := value.(map[string]interface{})
		if !ok || key == "arp_attributes" {
			continue
		}
		removeEmptyValues(nested)
		if len(nested) == 0 {
			delete(result, key)
		}
	}
}

func renameOr(m mapping, fallback string) string {
	if m.rename != "" {
		return m.rename
	}
	return fallback
}

func childMap(parent map[string]interface{}, key string) map[string]interface{} {
	if child, ok := parent[key].(map[string]interface{}); ok {
		return child
	}
	child := map[string]interface{}{}
	parent[key] = child
	return child
}

func metaDataFields(source map[string]interface{}) map[string]interface{} {
	fields, _ := source["metaDataFields"].(map[string]interface{})
	return fields
}

func listOrEmpty(value interface{}) []interface{} {
	if list, ok := value.([]interface{}); ok {
		return list
	}
	return []interface{}{}
}

func putIfHasText(result map[string]interface{}, key string, value interface{}) {
	if s := stringify(value); s != "" {
		result[key] = s
	}
}

// stringify renders leaf values the way the legacy schema expects: booleans
// as "1"/"0", numbers without exponents, everything else via fmt.
func stringify(value interface{}) string {
	switch t := value.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
