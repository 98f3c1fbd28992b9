// Package saml implementa el adapter SAML 2.0 Web SSO sobre crewjam/saml.
// El AuthnRequest sale por HTTP-Redirect y la Response vuelve por HTTP-POST
// al ACS; el state del flujo viaja como RelayState y el ID del AuthnRequest
// queda guardado en el request context para validar InResponseTo.
package saml

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	crewsaml "github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"

	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/idp"
	"github.com/dropDatabas3/idbridge/internal/security/secretbox"
)

const signatureMethodRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"

// CustomizeFunc ajusta el AuthnRequest antes de firmarlo. SPID lo usa para
// imponer ForceAuthn y el AuthnContext mínimo.
type CustomizeFunc func(req *crewsaml.AuthnRequest, cfg *authority.ProviderConfig)

type Options struct {
	Authority authority.Authority
	Customize CustomizeFunc
}

type spEntry struct {
	version  int64
	metadata *crewsaml.EntityDescriptor
	key      *rsa.PrivateKey
	cert     *x509.Certificate
}

// Adapter implementa idp.Adapter para providers SAML.
type Adapter struct {
	auth      authority.Authority
	customize CustomizeFunc
	mu        sync.Mutex
	entries   map[string]*spEntry
}

func New() *Adapter {
	return NewWithOptions(Options{Authority: authority.SAML})
}

func NewWithOptions(opts Options) *Adapter {
	auth := opts.Authority
	if auth == "" {
		auth = authority.SAML
	}
	return &Adapter{
		auth:      auth,
		customize: opts.Customize,
		entries:   make(map[string]*spEntry),
	}
}

func (a *Adapter) Authority() authority.Authority { return a.auth }

// entry parsea metadata y material criptográfico una sola vez por versión
// de config.
func (a *Adapter) entry(cfg *authority.ProviderConfig) (*spEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.entries[cfg.ProviderID]; ok && e.version == cfg.Version {
		return e, nil
	}

	s := cfg.SAML
	if s.IDPMetadataXML == "" {
		return nil, errors.New("saml: idp metadata no configurada")
	}
	meta, err := samlsp.ParseMetadata([]byte(s.IDPMetadataXML))
	if err != nil {
		return nil, fmt.Errorf("parse idp metadata: %w", err)
	}

	e := &spEntry{version: cfg.Version, metadata: meta}

	if s.PrivateKeyEnc != "" {
		keyPEM, err := secretbox.MaybeDecrypt(s.PrivateKeyEnc)
		if err != nil {
			return nil, fmt.Errorf("resolve sp key: %w", err)
		}
		e.key, err = parseRSAKey([]byte(keyPEM))
		if err != nil {
			return nil, err
		}
		e.cert, err = parseCertificate([]byte(s.CertificatePEM))
		if err != nil {
			return nil, err
		}
	}

	a.entries[cfg.ProviderID] = e
	return e, nil
}

// serviceProvider arma el SP con el ACS del request actual. La firma de
// requests sólo se activa cuando hay key configurada.
func (a *Adapter) serviceProvider(cfg *authority.ProviderConfig, acsURL string) (*crewsaml.ServiceProvider, error) {
	e, err := a.entry(cfg)
	if err != nil {
		return nil, err
	}
	acs, err := url.Parse(acsURL)
	if err != nil {
		return nil, fmt.Errorf("parse acs url: %w", err)
	}

	sp := &crewsaml.ServiceProvider{
		EntityID:    cfg.SAML.EntityID,
		Key:         e.key,
		Certificate: e.cert,
		AcsURL:      *acs,
		MetadataURL: *acs,
		IDPMetadata: e.metadata,
	}
	if e.key != nil {
		sp.SignatureMethod = signatureMethodRSASHA256
	}
	return sp, nil
}

// BuildAuthorizationRequest emite el AuthnRequest. El state del flujo va
// como RelayState, así la respuesta del IdP lo devuelve intacto al ACS.
func (a *Adapter) BuildAuthorizationRequest(_ context.Context, cfg *authority.ProviderConfig, redirectURI, state string) (*idp.Redirect, error) {
	sp, err := a.serviceProvider(cfg, redirectURI)
	if err != nil {
		return nil, err
	}

	req, err := sp.MakeAuthenticationRequest(
		sp.GetSSOBindingLocation(crewsaml.HTTPRedirectBinding),
		crewsaml.HTTPRedirectBinding,
		crewsaml.HTTPPostBinding,
	)
	if err != nil {
		return nil, fmt.Errorf("build authn request: %w", err)
	}
	if a.customize != nil {
		a.customize(req, cfg)
	}

	u, err := req.Redirect(state, sp)
	if err != nil {
		return nil, fmt.Errorf("encode authn request: %w", err)
	}

	return &idp.Redirect{
		URL: u.String(),
		Context: idp.RequestContext{
			RequestID: req.ID,
		},
	}, nil
}

// ParseCallback lee el POST del ACS. No hay "code" en SAML: el campo Code
// transporta la SAMLResponse cruda para que el flujo pueda distinguir un
// callback vacío de uno con respuesta.
func (a *Adapter) ParseCallback(r *http.Request) idp.Callback {
	_ = r.ParseForm()
	return idp.Callback{
		Code:    r.Form.Get("SAMLResponse"),
		State:   r.Form.Get("RelayState"),
		Request: r,
	}
}

// Exchange valida la Response (firma, condiciones, InResponseTo contra el
// AuthnRequest emitido) y mapea la assertion a una identidad.
func (a *Adapter) Exchange(_ context.Context, cfg *authority.ProviderConfig, cb *idp.Callback, rc *idp.RequestContext) (*idp.Identity, error) {
	if cb.Request == nil {
		return nil, errors.New("saml: callback sin request http")
	}
	sp, err := a.serviceProvider(cfg, rc.RedirectURI)
	if err != nil {
		return nil, err
	}

	assertion, err := sp.ParseResponse(cb.Request, []string{rc.RequestID})
	if err != nil {
		var ire *crewsaml.InvalidResponseError
		if errors.As(err, &ire) {
			return nil, fmt.Errorf("parse saml response: %w", ire.PrivateErr)
		}
		return nil, fmt.Errorf("parse saml response: %w", err)
	}

	if assertion.Subject == nil || assertion.Subject.NameID == nil || assertion.Subject.NameID.Value == "" {
		return nil, errors.New("assertion sin NameID")
	}

	return &idp.Identity{
		Subject:    assertion.Subject.NameID.Value,
		Attributes: assertionAttributes(assertion),
	}, nil
}

// SPMetadata serializa la metadata del SP para publicarla a los IdP.
func (a *Adapter) SPMetadata(cfg *authority.ProviderConfig, acsURL string) ([]byte, error) {
	sp, err := a.serviceProvider(cfg, acsURL)
	if err != nil {
		return nil, err
	}
	return xml.MarshalIndent(sp.Metadata(), "", "  ")
}

func assertionAttributes(assertion *crewsaml.Assertion) map[string][]string {
	attrs := make(map[string][]string)
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			name := attr.FriendlyName
			if name == "" {
				name = attr.Name
			}
			for _, v := range attr.Values {
				if v.Value != "" {
					attrs[name] = append(attrs[name], v.Value)
				}
			}
		}
	}
	return attrs
}

func parseRSAKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("saml: private key no es PEM")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse sp key: %w", err)
	}
	rsaKey, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("saml: la key del SP debe ser RSA")
	}
	return rsaKey, nil
}

func parseCertificate(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("saml: certificado no es PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse sp cert: %w", err)
	}
	return cert, nil
}
