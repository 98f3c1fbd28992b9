// Package wellknown publica los documentos de descubrimiento del gateway.
package wellknown

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/jwt"
)

// Controller sirve metadata estática de descubrimiento y el JWKS de los
// session tokens.
type Controller struct {
	issuer  string
	baseURL string
	keys    *jwt.KeySet
}

func NewController(issuer, baseURL string, keys *jwt.KeySet) *Controller {
	return &Controller{issuer: issuer, baseURL: baseURL, keys: keys}
}

type configurationDoc struct {
	Issuer                 string   `json:"issuer"`
	AuthorizationEndpoint  string   `json:"authorization_endpoint"`
	JWKSURI                string   `json:"jwks_uri"`
	AuthoritiesSupported   []string `json:"authorities_supported"`
	ResponseTypesSupported []string `json:"response_types_supported"`
	GrantTypesSupported    []string `json:"grant_types_supported"`
	ScopesSupported        []string `json:"scopes_supported"`
	PKCEMethodsSupported   []string `json:"code_challenge_methods_supported"`
}

// Configuration maneja GET /.well-known/idbridge-configuration
func (c *Controller) Configuration(w http.ResponseWriter, r *http.Request) {
	doc := configurationDoc{
		Issuer: c.issuer,
		// Plantilla: {authority} y {providerId} se sustituyen por
		// provider registrado.
		AuthorizationEndpoint: c.baseURL + "/auth/{authority}/authorize/{providerId}",
		JWKSURI:               c.baseURL + "/.well-known/jwks.json",
		AuthoritiesSupported: []string{
			string(authority.OIDC),
			string(authority.Apple),
			string(authority.SAML),
			string(authority.SPID),
			string(authority.OpenIDFed),
		},
		ResponseTypesSupported: []string{"code"},
		GrantTypesSupported:    []string{"authorization_code"},
		ScopesSupported:        []string{"openid", "profile", "email"},
		PKCEMethodsSupported:   []string{"S256"},
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(doc)
}

// JWKS maneja GET /.well-known/jwks.json
func (c *Controller) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(c.keys.JWKSJSON())
}
