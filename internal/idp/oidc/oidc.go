// Package oidc implementa el adapter OIDC genérico (authorization code +
// PKCE + verificación de ID token vía discovery). Apple y OpenID Federation
// reutilizan este core con settings propios.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/idp"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
	"github.com/dropDatabas3/idbridge/internal/security/secretbox"
	tokens "github.com/dropDatabas3/idbridge/internal/security/token"
)

// protocolClaims son claims de seguridad/protocolo que nunca se exponen
// como atributos del principal.
var protocolClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {},
	"nonce": {}, "at_hash": {}, "c_hash": {}, "azp": {}, "jti": {},
	"auth_time": {}, "acr": {}, "amr": {},
}

// SecretSource resuelve el client secret efectivo para un provider.
type SecretSource func(ctx context.Context, cfg *authority.ProviderConfig) (string, error)

// Options parametriza el adapter para variantes (apple, openidfed).
type Options struct {
	Authority authority.Authority
	// Secret overridea la fuente del client secret. Default: secretbox
	// sobre cfg.OIDC.ClientSecretEnc.
	Secret SecretSource
	// ExtraAuthParams agrega parámetros al authorization request.
	ExtraAuthParams func(cfg *authority.ProviderConfig) map[string]string
	// IssuerOverride fija el issuer cuando la authority lo define
	// (apple). Si la config trae issuer propio, gana la config.
	IssuerOverride string
	HTTPClient     *http.Client
}

type providerEntry struct {
	version  int64
	provider *gooidc.Provider
}

// Adapter implementa idp.Adapter para providers OIDC con discovery.
type Adapter struct {
	auth  authority.Authority
	opts  Options
	http  *http.Client
	mu    sync.Mutex
	cache map[string]*providerEntry // providerID -> provider por versión
}

func New() *Adapter {
	return NewWithOptions(Options{Authority: authority.OIDC})
}

func NewWithOptions(opts Options) *Adapter {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	a := opts.Authority
	if a == "" {
		a = authority.OIDC
	}
	return &Adapter{
		auth:  a,
		opts:  opts,
		http:  hc,
		cache: make(map[string]*providerEntry),
	}
}

func (a *Adapter) Authority() authority.Authority { return a.auth }

// provider hace discovery con cache por provider id; una versión nueva de la
// config invalida la entrada (rebuild del provider activo).
func (a *Adapter) provider(ctx context.Context, cfg *authority.ProviderConfig) (*gooidc.Provider, error) {
	a.mu.Lock()
	if e, ok := a.cache[cfg.ProviderID]; ok && e.version == cfg.Version {
		a.mu.Unlock()
		return e.provider, nil
	}
	a.mu.Unlock()

	issuer := cfg.OIDC.Issuer
	if issuer == "" {
		issuer = a.opts.IssuerOverride
	}
	p, err := gooidc.NewProvider(gooidc.ClientContext(ctx, a.http), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", issuer, err)
	}

	a.mu.Lock()
	a.cache[cfg.ProviderID] = &providerEntry{version: cfg.Version, provider: p}
	a.mu.Unlock()
	return p, nil
}

func (a *Adapter) secret(ctx context.Context, cfg *authority.ProviderConfig) (string, error) {
	if a.opts.Secret != nil {
		return a.opts.Secret(ctx, cfg)
	}
	if cfg.OIDC.ClientSecretEnc == "" {
		return "", nil
	}
	return secretbox.MaybeDecrypt(cfg.OIDC.ClientSecretEnc)
}

func (a *Adapter) oauthConfig(p *gooidc.Provider, cfg *authority.ProviderConfig, clientSecret, redirectURI string) *oauth2.Config {
	scopes := cfg.OIDC.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}
	return &oauth2.Config{
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: clientSecret,
		Endpoint:     p.Endpoint(),
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}
}

// BuildAuthorizationRequest arma la URL upstream con state, nonce y PKCE.
func (a *Adapter) BuildAuthorizationRequest(ctx context.Context, cfg *authority.ProviderConfig, redirectURI, state string) (*idp.Redirect, error) {
	p, err := a.provider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	nonce, err := tokens.GenerateOpaqueToken(16)
	if err != nil {
		return nil, err
	}

	conf := a.oauthConfig(p, cfg, "", redirectURI)
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("nonce", nonce)}

	rc := idp.RequestContext{
		Nonce:    nonce,
		ClientID: cfg.OIDC.ClientID,
	}

	if cfg.OIDC.PKCE {
		verifier := oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
		rc.CodeVerifier = verifier
	}

	if a.opts.ExtraAuthParams != nil {
		for k, v := range a.opts.ExtraAuthParams(cfg) {
			opts = append(opts, oauth2.SetAuthURLParam(k, v))
		}
	}

	return &idp.Redirect{
		URL:     conf.AuthCodeURL(state, opts...),
		Context: rc,
	}, nil
}

// ParseCallback extrae los parámetros OAuth2 de query o form.
func (a *Adapter) ParseCallback(r *http.Request) idp.Callback {
	_ = r.ParseForm()
	v := r.Form
	return idp.Callback{
		Code:             v.Get("code"),
		State:            v.Get("state"),
		Error:            v.Get("error"),
		ErrorDescription: v.Get("error_description"),
		ErrorURI:         v.Get("error_uri"),
		Request:          r,
	}
}

// Exchange canjea el code por tokens y verifica el ID token (firma, iss,
// aud vía go-oidc; nonce contra el contexto almacenado).
func (a *Adapter) Exchange(ctx context.Context, cfg *authority.ProviderConfig, cb *idp.Callback, rc *idp.RequestContext) (*idp.Identity, error) {
	p, err := a.provider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	clientSecret, err := a.secret(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve client secret: %w", err)
	}

	conf := a.oauthConfig(p, cfg, clientSecret, rc.RedirectURI)
	if rc.ClientID != "" {
		conf.ClientID = rc.ClientID
	}

	var opts []oauth2.AuthCodeOption
	if rc.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(rc.CodeVerifier))
	}

	tok, err := conf.Exchange(gooidc.ClientContext(ctx, a.http), cb.Code, opts...)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, errors.New("token response missing id_token")
	}

	verifier := p.Verifier(&gooidc.Config{ClientID: conf.ClientID})
	idToken, err := verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("id_token verify: %w", err)
	}
	if rc.Nonce != "" && idToken.Nonce != rc.Nonce {
		return nil, errors.New("id_token nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("id_token claims: %w", err)
	}

	logger.From(ctx).Debug("oidc exchange ok",
		logger.Provider(cfg.ProviderID),
		logger.Subject(idToken.Subject),
	)

	return &idp.Identity{
		Subject:    idToken.Subject,
		Attributes: ClaimsToAttributes(claims),
	}, nil
}

// ClaimsToAttributes aplana claims JSON a atributos multi-valor string,
// filtrando los claims de protocolo. Nada se descarta en silencio: valores
// escalares se convierten a string, arrays elemento a elemento.
func ClaimsToAttributes(claims map[string]any) map[string][]string {
	out := make(map[string][]string, len(claims))
	for k, v := range claims {
		if _, skip := protocolClaims[k]; skip {
			continue
		}
		vals := toStrings(v)
		if len(vals) > 0 {
			out[k] = vals
		}
	}
	return out
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case bool:
		return []string{strconv.FormatBool(t)}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, toStrings(e)...)
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprintf("%v", t)}
	}
}
