// Package authority maneja la configuración de identity providers por realm:
// tipos de config, serialización y el registry con cache e invalidación.
package authority

import (
	"fmt"
	"strings"
)

// Authority identifica la familia de protocolo de un provider.
type Authority string

const (
	OIDC      Authority = "oidc"
	Apple     Authority = "apple"
	SAML      Authority = "saml"
	SPID      Authority = "spid"
	OpenIDFed Authority = "openidfed"
)

// Parse valida y normaliza un authority de la URL.
func Parse(s string) (Authority, error) {
	a := Authority(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case OIDC, Apple, SAML, SPID, OpenIDFed:
		return a, nil
	}
	return "", fmt.Errorf("unknown authority %q", s)
}

// OIDCSettings configura providers oidc/apple/openidfed.
type OIDCSettings struct {
	// Issuer habilita discovery en {issuer}/.well-known/openid-configuration.
	Issuer string `json:"issuer,omitempty"`

	ClientID string `json:"client_id"`
	// ClientSecretEnc viene cifrado con secretbox (o en claro en dev).
	ClientSecretEnc string   `json:"client_secret,omitempty"`
	Scopes          []string `json:"scopes,omitempty"`
	PKCE            bool     `json:"pkce"`

	// Endpoints explícitos cuando no hay discovery (openidfed estático).
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri,omitempty"`

	// Apple: el client secret se genera por request como JWT ES256.
	AppleTeamID     string `json:"apple_team_id,omitempty"`
	AppleKeyID      string `json:"apple_key_id,omitempty"`
	ApplePrivateKey string `json:"apple_private_key,omitempty"` // PEM cifrado

	// OpenID Federation: entity id del provider a resolver vía trust chain.
	FederationEntityID string `json:"federation_entity_id,omitempty"`
	TrustAnchor        string `json:"trust_anchor,omitempty"`
}

// SAMLSettings configura providers saml/spid.
type SAMLSettings struct {
	// IDPMetadataXML es el EntityDescriptor del IdP, tal cual publicado.
	IDPMetadataXML string `json:"idp_metadata_xml"`

	EntityID string `json:"entity_id"`
	// CertificatePEM + PrivateKeyEnc firman los AuthnRequests.
	CertificatePEM string `json:"certificate_pem,omitempty"`
	PrivateKeyEnc  string `json:"private_key,omitempty"` // PEM cifrado

	// SPID: nivel mínimo requerido (1..3). Cero = no SPID.
	SPIDLevel int `json:"spid_level,omitempty"`
}

// ScriptSettings define hooks lua por provider.
type ScriptSettings struct {
	// Authorize es un predicado sobre los atributos crudos; return false
	// rechaza el login. Errores de ejecución NO rechazan (comportamiento
	// observado; ver DESIGN.md).
	Authorize string `json:"authorize,omitempty"`
	// MapAttributes remapea/agrega atributos. Errores se ignoran y se
	// conservan los atributos originales.
	MapAttributes string `json:"map_attributes,omitempty"`
}

// ProviderConfig es la configuración persistida de un provider.
// Inmutable una vez cargada en un provider activo: una nueva versión
// dispara rebuild vía Registry.Register.
type ProviderConfig struct {
	Authority  Authority `json:"authority"`
	ProviderID string    `json:"provider_id"`
	Realm      string    `json:"realm"`
	Name       string    `json:"name,omitempty"`
	// Version es monotónicamente creciente; el registro hace CAS sobre ella.
	Version int64 `json:"version"`

	OIDC *OIDCSettings `json:"oidc,omitempty"`
	SAML *SAMLSettings `json:"saml,omitempty"`

	// SubjectAttribute overridea el claim/atributo usado como subject.
	// Vacío = "sub" (oidc) o NameID (saml).
	SubjectAttribute string `json:"subject_attribute,omitempty"`

	// TrustEmail marca emails como verificados por defecto; un atributo
	// email_verified parseable lo overridea. AlwaysTrustEmail fuerza true.
	TrustEmail       bool `json:"trust_email"`
	AlwaysTrustEmail bool `json:"always_trust_email"`

	// CreateOnMissing habilita crear users locales para subjects nuevos.
	CreateOnMissing bool `json:"create_on_missing"`

	// RepositoryID particiona cuentas/credenciales; default = realm.
	RepositoryID string `json:"repository_id,omitempty"`

	Scripts ScriptSettings `json:"scripts,omitempty"`
}

// Repository retorna la partición de storage efectiva.
func (c *ProviderConfig) Repository() string {
	if c.RepositoryID != "" {
		return c.RepositoryID
	}
	return c.Realm
}

// Validate chequea coherencia mínima entre authority y settings.
func (c *ProviderConfig) Validate() error {
	if c.ProviderID == "" {
		return fmt.Errorf("provider_id required")
	}
	if c.Realm == "" {
		return fmt.Errorf("realm required")
	}
	switch c.Authority {
	case OIDC, Apple, OpenIDFed:
		if c.OIDC == nil {
			return fmt.Errorf("%s provider %s: oidc settings required", c.Authority, c.ProviderID)
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("%s provider %s: client_id required", c.Authority, c.ProviderID)
		}
		if c.Authority == Apple && (c.OIDC.AppleTeamID == "" || c.OIDC.AppleKeyID == "") {
			return fmt.Errorf("apple provider %s: team_id y key_id requeridos", c.ProviderID)
		}
	case SAML, SPID:
		if c.SAML == nil {
			return fmt.Errorf("%s provider %s: saml settings required", c.Authority, c.ProviderID)
		}
		if c.SAML.IDPMetadataXML == "" {
			return fmt.Errorf("%s provider %s: idp metadata required", c.Authority, c.ProviderID)
		}
	default:
		return fmt.Errorf("unknown authority %q", string(c.Authority))
	}
	return nil
}
