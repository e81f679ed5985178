package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfed/manage/pkg/model"
)

const spMetadataXML = `<?xml version="1.0" encoding="UTF-8"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
    xmlns:ds="http://www.w3.org/2000/09/xmldsig#"
    xmlns:mdui="urn:oasis:names:tc:SAML:metadata:ui"
    entityID="https://sp.example.org">
  <md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:Extensions>
      <mdui:UIInfo>
        <mdui:DisplayName xml:lang="en">Example Service</mdui:DisplayName>
        <mdui:DisplayName xml:lang="nl">Voorbeelddienst</mdui:DisplayName>
        <mdui:Description xml:lang="en">A service for examples</mdui:Description>
        <mdui:Logo height="60" width="80">https://sp.example.org/logo.png</mdui:Logo>
      </mdui:UIInfo>
    </md:Extensions>
    <md:KeyDescriptor use="signing">
      <ds:KeyInfo>
        <ds:X509Data>
          <ds:X509Certificate>
            MIICertOne
            SplitOverLines
          </ds:X509Certificate>
        </ds:X509Data>
      </ds:KeyInfo>
    </md:KeyDescriptor>
    <md:KeyDescriptor use="encryption">
      <ds:KeyInfo>
        <ds:X509Data>
          <ds:X509Certificate>MIIEncryptionOnly</ds:X509Certificate>
        </ds:X509Data>
      </ds:KeyInfo>
    </md:KeyDescriptor>
    <md:KeyDescriptor>
      <ds:KeyInfo>
        <ds:X509Data>
          <ds:X509Certificate>MIICertTwo</ds:X509Certificate>
        </ds:X509Data>
      </ds:KeyInfo>
    </md:KeyDescriptor>
    <md:SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
        Location="https://sp.example.org/slo"/>
    <md:NameIDFormat>urn:oasis:names:tc:SAML:2.0:nameid-format:persistent</md:NameIDFormat>
    <md:NameIDFormat>urn:oasis:names:tc:SAML:2.0:nameid-format:persistent</md:NameIDFormat>
    <md:NameIDFormat>urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified</md:NameIDFormat>
    <md:AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
        Location="https://sp.example.org/acs" index="0"/>
    <md:AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Artifact"
        Location="https://sp.example.org/acs-artifact" index="1"/>
  </md:SPSSODescriptor>
  <md:Organization>
    <md:OrganizationName xml:lang="en">Example Org</md:OrganizationName>
    <md:OrganizationDisplayName xml:lang="en">Example Organization</md:OrganizationDisplayName>
    <md:OrganizationURL xml:lang="en">https://example.org</md:OrganizationURL>
  </md:Organization>
  <md:ContactPerson contactType="technical">
    <md:GivenName>Jane</md:GivenName>
    <md:SurName>Doe</md:SurName>
    <md:EmailAddress>mailto:admin@example.org</md:EmailAddress>
    <md:TelephoneNumber>+31 20 1234567</md:TelephoneNumber>
  </md:ContactPerson>
</md:EntityDescriptor>`

const idpMetadataXML = `<?xml version="1.0" encoding="UTF-8"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
    xmlns:shibmd="urn:mace:shibboleth:metadata:1.0"
    entityID="https://idp.example.org">
  <md:IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:Extensions>
      <shibmd:Scope regexp="false">example.org</shibmd:Scope>
      <shibmd:Scope regexp="true">.*\.example\.org</shibmd:Scope>
    </md:Extensions>
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
        Location="https://idp.example.org/sso"/>
  </md:IDPSSODescriptor>
</md:EntityDescriptor>`

func TestImportXMLServiceProvider(t *testing.T) {
	data, err := ImportXML([]byte(spMetadataXML), model.ServiceProvider)
	require.NoError(t, err)

	assert.Equal(t, "https://sp.example.org", data["entityid"])
	assert.Equal(t, "testaccepted", data["state"])
	assert.Equal(t, true, data["allowedall"])
	assert.Equal(t, []interface{}{}, data["allowedEntities"])

	fields, ok := data["metaDataFields"].(map[string]interface{})
	require.True(t, ok)

	t.Run("certificates skip encryption keys and compact whitespace", func(t *testing.T) {
		assert.Equal(t, "MIICertOneSplitOverLines", fields["certData"])
		assert.Equal(t, "MIICertTwo", fields["certData2"])
		assert.NotContains(t, fields, "certData3")
	})

	t.Run("assertion consumer endpoints", func(t *testing.T) {
		assert.Equal(t, "https://sp.example.org/acs", fields["AssertionConsumerService:0:Location"])
		assert.Equal(t, "0", fields["AssertionConsumerService:0:index"])
		assert.Equal(t, "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Artifact", fields["AssertionConsumerService:1:Binding"])
	})

	t.Run("single logout", func(t *testing.T) {
		assert.Equal(t, "https://sp.example.org/slo", fields["SingleLogoutService_Location"])
	})

	t.Run("nameid formats are deduplicated", func(t *testing.T) {
		assert.Equal(t, "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent", fields["NameIDFormats:0"])
		assert.Equal(t, "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified", fields["NameIDFormats:1"])
		assert.NotContains(t, fields, "NameIDFormats:2")
	})

	t.Run("mdui elements map to localized keys", func(t *testing.T) {
		assert.Equal(t, "Example Service", fields["name:en"])
		assert.Equal(t, "Voorbeelddienst", fields["name:nl"])
		assert.Equal(t, "A service for examples", fields["description:en"])
		assert.Equal(t, "https://sp.example.org/logo.png", fields["logo:0:url"])
		assert.Equal(t, 60, fields["logo:0:height"])
		assert.Equal(t, 80, fields["logo:0:width"])
	})

	t.Run("contacts strip the mailto prefix", func(t *testing.T) {
		assert.Equal(t, "technical", fields["contacts:0:contactType"])
		assert.Equal(t, "Jane", fields["contacts:0:givenName"])
		assert.Equal(t, "admin@example.org", fields["contacts:0:emailAddress"])
		assert.Equal(t, "+31 20 1234567", fields["contacts:0:telephoneNumber"])
	})

	t.Run("organization", func(t *testing.T) {
		assert.Equal(t, "Example Org", fields["OrganizationName:en"])
		assert.Equal(t, "Example Organization", fields["OrganizationDisplayName:en"])
		assert.Equal(t, "https://example.org", fields["OrganizationURL:en"])
	})
}

func TestImportXMLIdentityProvider(t *testing.T) {
	data, err := ImportXML([]byte(idpMetadataXML), model.IdentityProvider)
	require.NoError(t, err)

	fields := data["metaDataFields"].(map[string]interface{})
	assert.Equal(t, "https://idp.example.org/sso", fields["SingleSignOnService:0:Location"])
	assert.Equal(t, "example.org", fields["shibmd:scope:0:allowed"])
	assert.NotContains(t, fields, "shibmd:scope:0:regexp")
	assert.Equal(t, `.*\.example\.org`, fields["shibmd:scope:1:allowed"])
	assert.Equal(t, true, fields["shibmd:scope:1:regexp"])
}

func TestImportXMLErrors(t *testing.T) {
	t.Run("role mismatch", func(t *testing.T) {
		_, err := ImportXML([]byte(spMetadataXML), model.IdentityProvider)
		assert.Error(t, err)
	})

	t.Run("missing entityID", func(t *testing.T) {
		doc := `<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata"><SPSSODescriptor/></EntityDescriptor>`
		_, err := ImportXML([]byte(doc), model.ServiceProvider)
		assert.Error(t, err)
	})

	t.Run("malformed document", func(t *testing.T) {
		_, err := ImportXML([]byte("<EntityDescriptor"), model.ServiceProvider)
		assert.Error(t, err)
	})
}

func TestImportURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(spMetadataXML))
	}))
	defer server.Close()

	client := NewClient(0)
	data, err := client.ImportURL(context.Background(), server.URL, model.ServiceProvider)
	require.NoError(t, err)

	assert.Equal(t, server.URL, data["metadataurl"])
	assert.Equal(t, "https://sp.example.org", data["entityid"])
}

func TestImportURLBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	client := NewClient(0)
	_, err := client.ImportURL(context.Background(), server.URL, model.ServiceProvider)
	assert.Error(t, err)
}
