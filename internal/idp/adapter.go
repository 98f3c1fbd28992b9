// Package idp define el contrato de adapter por protocolo que parametriza la
// state-machine genérica de login: construir el authorization request,
// extraer el callback y canjear la respuesta por una identidad upstream.
package idp

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/idbridge/internal/authority"
)

// RequestContext es el estado transitorio de un login en vuelo, persistido
// keyed por state y consumido exactamente una vez en el callback.
type RequestContext struct {
	Authority      string `json:"authority"`
	ProviderID     string `json:"provider_id"`
	RegistrationID string `json:"registration_id"`

	// ClientID registra el client id dinámico usado al emitir el request
	// (soporte multi-tenant: puede diferir del de la config).
	ClientID     string `json:"client_id,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
	Nonce        string `json:"nonce,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`

	// RequestID es el ID del AuthnRequest SAML emitido.
	RequestID string            `json:"request_id,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Redirect es el resultado de construir un authorization request.
type Redirect struct {
	// URL es el endpoint upstream con todos los query params.
	URL string
	// Context trae los campos de protocolo a persistir (nonce, verifier,
	// request id); el issuer completa el resto.
	Context RequestContext
}

// Callback son los parámetros extraídos de la respuesta upstream,
// normalizados entre bindings (query, form_post, SAMLResponse).
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	ErrorURI         string
	// Request es el request HTTP original (SAML necesita el form completo).
	Request *http.Request
}

// Identity es el principal del protocolo ya verificado, pre-normalización.
// Attributes nunca incluye material de seguridad (tokens, firmas).
type Identity struct {
	Subject    string
	Attributes map[string][]string
}

// Adapter implementa los tres puntos de variación por protocolo.
type Adapter interface {
	Authority() authority.Authority

	// BuildAuthorizationRequest arma la URL de redirect y el contexto de
	// protocolo a persistir bajo state.
	BuildAuthorizationRequest(ctx context.Context, cfg *authority.ProviderConfig, redirectURI, state string) (*Redirect, error)

	// ParseCallback extrae code/state/error del response según el binding.
	ParseCallback(r *http.Request) Callback

	// Exchange canjea la respuesta por una identidad verificada. La
	// validación criptográfica queda en la librería de protocolo.
	Exchange(ctx context.Context, cfg *authority.ProviderConfig, cb *Callback, rc *RequestContext) (*Identity, error)
}
