// Package importer turns SAML 2.0 metadata XML into the flat attribute tree
// the schema registry understands. Endpoint lists become indexed
// metaDataFields keys, signing certificates fill the certData slots and
// mdui/organization/contact details map onto their localized keys.
//
// The descriptor structs below are a deliberate overlay over the SAML
// metadata schema: they name only the elements the attribute mapping reads.
// The dsig KeyInfo subtree is parsed with goxmldsig's types.
package importer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	dsigtypes "github.com/russellhaering/goxmldsig/types"

	"github.com/openfed/manage/pkg/model"
)

const (
	maxCertificates = 3
	maxACSEndpoints = 30
	maxSSOEndpoints = 10
	maxNameIDs      = 3
	maxContacts     = 4
	maxScopes       = 10
)

type entityDescriptorXML struct {
	XMLName          xml.Name           `xml:"EntityDescriptor"`
	EntityID         string             `xml:"entityID,attr"`
	SPSSODescriptor  *roleDescriptorXML `xml:"SPSSODescriptor"`
	IDPSSODescriptor *roleDescriptorXML `xml:"IDPSSODescriptor"`
	Organization     *organizationXML   `xml:"Organization"`
	ContactPersons   []contactPersonXML `xml:"ContactPerson"`
}

type roleDescriptorXML struct {
	KeyDescriptors            []keyDescriptorXML   `xml:"KeyDescriptor"`
	SingleLogoutServices      []endpointXML        `xml:"SingleLogoutService"`
	SingleSignOnServices      []endpointXML        `xml:"SingleSignOnService"`
	AssertionConsumerServices []indexedEndpointXML `xml:"AssertionConsumerService"`
	NameIDFormats             []string             `xml:"NameIDFormat"`
	Extensions                *extensionsXML       `xml:"Extensions"`
}

type keyDescriptorXML struct {
	Use     string            `xml:"use,attr"`
	KeyInfo dsigtypes.KeyInfo `xml:"KeyInfo"`
}

type endpointXML struct {
	Binding  string `xml:"Binding,attr"`
	Location string `xml:"Location,attr"`
}

type indexedEndpointXML struct {
	Binding  string `xml:"Binding,attr"`
	Location string `xml:"Location,attr"`
	Index    string `xml:"index,attr"`
}

type extensionsXML struct {
	UIInfo *uiInfoXML `xml:"UIInfo"`
	Scopes []scopeXML `xml:"Scope"`
}

type uiInfoXML struct {
	DisplayNames []localizedXML `xml:"DisplayName"`
	Descriptions []localizedXML `xml:"Description"`
	Keywords     []localizedXML `xml:"Keywords"`
	Logos        []logoXML      `xml:"Logo"`
}

type localizedXML struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type logoXML struct {
	Width  int    `xml:"width,attr"`
	Height int    `xml:"height,attr"`
	URL    string `xml:",chardata"`
}

type scopeXML struct {
	Regexp bool   `xml:"regexp,attr"`
	Value  string `xml:",chardata"`
}

type organizationXML struct {
	Names        []localizedXML `xml:"OrganizationName"`
	DisplayNames []localizedXML `xml:"OrganizationDisplayName"`
	URLs         []localizedXML `xml:"OrganizationURL"`
}

type contactPersonXML struct {
	Type       string   `xml:"contactType,attr"`
	GivenName  string   `xml:"GivenName"`
	SurName    string   `xml:"SurName"`
	Emails     []string `xml:"EmailAddress"`
	Telephones []string `xml:"TelephoneNumber"`
}

// ImportXML parses a single EntityDescriptor and maps it onto the attribute
// tree of the given entity type. The result carries the defaults of a new
// record: testaccepted state, allowedall and an empty allowedEntities list.
func ImportXML(doc []byte, entityType model.EntityType) (map[string]interface{}, error) {
	var descriptor entityDescriptorXML
	if err := xml.Unmarshal(doc, &descriptor); err != nil {
		return nil, fmt.Errorf("parsing metadata XML: %w", err)
	}
	return mapDescriptor(&descriptor, entityType)
}

func mapDescriptor(descriptor *entityDescriptorXML, entityType model.EntityType) (map[string]interface{}, error) {
	if descriptor.EntityID == "" {
		return nil, fmt.Errorf("metadata XML carries no entityID")
	}

	var role *roleDescriptorXML
	switch entityType {
	case model.IdentityProvider:
		role = descriptor.IDPSSODescriptor
	default:
		role = descriptor.SPSSODescriptor
	}
	if role == nil {
		return nil, fmt.Errorf("metadata for %s has no descriptor for type %s", descriptor.EntityID, entityType)
	}

	fields := map[string]interface{}{}
	addCertificates(fields, role.KeyDescriptors)
	addNameIDFormats(fields, role.NameIDFormats)
	if len(role.SingleLogoutServices) > 0 {
		fields["SingleLogoutService_Binding"] = role.SingleLogoutServices[0].Binding
		fields["SingleLogoutService_Location"] = role.SingleLogoutServices[0].Location
	}
	for i, acs := range role.AssertionConsumerServices {
		if i >= maxACSEndpoints {
			break
		}
		fields[fmt.Sprintf("AssertionConsumerService:%d:Binding", i)] = acs.Binding
		fields[fmt.Sprintf("AssertionConsumerService:%d:Location", i)] = acs.Location
		if acs.Index != "" {
			fields[fmt.Sprintf("AssertionConsumerService:%d:index", i)] = acs.Index
		}
	}
	for i, sso := range role.SingleSignOnServices {
		if i >= maxSSOEndpoints {
			break
		}
		fields[fmt.Sprintf("SingleSignOnService:%d:Binding", i)] = sso.Binding
		fields[fmt.Sprintf("SingleSignOnService:%d:Location", i)] = sso.Location
	}
	if role.Extensions != nil {
		addUIInfo(fields, role.Extensions.UIInfo)
		if entityType == model.IdentityProvider {
			addScopes(fields, role.Extensions.Scopes)
		}
	}
	addContacts(fields, descriptor.ContactPersons)
	addOrganization(fields, descriptor.Organization)

	return map[string]interface{}{
		"entityid":        descriptor.EntityID,
		"state":           "testaccepted",
		"allowedall":      true,
		"allowedEntities": []interface{}{},
		"metaDataFields":  fields,
	}, nil
}

// addCertificates fills certData, certData2 and certData3 from signing or
// use-less key descriptors, in document order. Encryption-only keys are
// skipped.
func addCertificates(fields map[string]interface{}, keys []keyDescriptorXML) {
	slot := 0
	for _, key := range keys {
		if key.Use == "encryption" {
			continue
		}
		for _, cert := range key.KeyInfo.X509Data.X509Certificates {
			data := compactCertificate(cert.Data)
			if data == "" {
				continue
			}
			switch slot {
			case 0:
				fields["certData"] = data
			case 1:
				fields["certData2"] = data
			case 2:
				fields["certData3"] = data
			default:
				return
			}
			slot++
		}
	}
}

func compactCertificate(data string) string {
	return strings.Join(strings.Fields(data), "")
}

func addNameIDFormats(fields map[string]interface{}, formats []string) {
	seen := map[string]bool{}
	i := 0
	for _, format := range formats {
		format = strings.TrimSpace(format)
		if format == "" || seen[format] || i >= maxNameIDs {
			continue
		}
		seen[format] = true
		fields[fmt.Sprintf("NameIDFormats:%d", i)] = format
		i++
	}
}

func addUIInfo(fields map[string]interface{}, info *uiInfoXML) {
	if info == nil {
		return
	}
	addLocalized(fields, "name", info.DisplayNames)
	addLocalized(fields, "description", info.Descriptions)
	addLocalized(fields, "keywords", info.Keywords)
	if len(info.Logos) > 0 {
		logo := info.Logos[0]
		fields["logo:0:url"] = strings.TrimSpace(logo.URL)
		if logo.Width > 0 {
			fields["logo:0:width"] = logo.Width
		}
		if logo.Height > 0 {
			fields["logo:0:height"] = logo.Height
		}
	}
}

func addLocalized(fields map[string]interface{}, prefix string, values []localizedXML) {
	for _, value := range values {
		lang := strings.ToLower(value.Lang)
		text := strings.TrimSpace(value.Value)
		if len(lang) != 2 || text == "" {
			continue
		}
		fields[prefix+":"+lang] = text
	}
}

func addScopes(fields map[string]interface{}, scopes []scopeXML) {
	for i, scope := range scopes {
		if i >= maxScopes {
			break
		}
		fields[fmt.Sprintf("shibmd:scope:%d:allowed", i)] = strings.TrimSpace(scope.Value)
		if scope.Regexp {
			fields[fmt.Sprintf("shibmd:scope:%d:regexp", i)] = true
		}
	}
}

func addContacts(fields map[string]interface{}, contacts []contactPersonXML) {
	for i, contact := range contacts {
		if i >= maxContacts {
			break
		}
		prefix := "contacts:" + strconv.Itoa(i) + ":"
		setIfPresent(fields, prefix+"contactType", contact.Type)
		setIfPresent(fields, prefix+"givenName", contact.GivenName)
		setIfPresent(fields, prefix+"surName", contact.SurName)
		if len(contact.Emails) > 0 {
			setIfPresent(fields, prefix+"emailAddress", strings.TrimPrefix(strings.TrimSpace(contact.Emails[0]), "mailto:"))
		}
		if len(contact.Telephones) > 0 {
			setIfPresent(fields, prefix+"telephoneNumber", strings.TrimSpace(contact.Telephones[0]))
		}
	}
}

func addOrganization(fields map[string]interface{}, organization *organizationXML) {
	if organization == nil {
		return
	}
	addLocalized(fields, "OrganizationName", organization.Names)
	addLocalized(fields, "OrganizationDisplayName", organization.DisplayNames)
	addLocalized(fields, "OrganizationURL", organization.URLs)
}

func setIfPresent(fields map[string]interface{}, key, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		fields[key] = value
	}
}

// Client fetches metadata documents over HTTP.
type Client struct {
	http *http.Client
}

// NewClient creates a metadata fetcher with the given timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// ImportURL downloads a single EntityDescriptor and maps it like ImportXML.
// The source URL is recorded as metadataurl in the result.
func (c *Client) ImportURL(ctx context.Context, url string, entityType model.EntityType) (map[string]interface{}, error) {
	doc, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	data, err := ImportXML(doc, entityType)
	if err != nil {
		return nil, err
	}
	data["metadataurl"] = url
	return data, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata from %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching metadata from %s: unexpected status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
