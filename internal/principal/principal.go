// Package principal normaliza las identidades que devuelven los adapters
// de provider a un principal único del realm: subject resuelto, atributos
// aplanados y política de confianza de email aplicada.
package principal

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/idp"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
)

// ErrSubjectNotFound: el atributo configurado como subject no vino en la
// respuesta del provider. El flujo lo reporta como username_not_found.
var ErrSubjectNotFound = errors.New("principal: subject attribute not found")

// Principal es la identidad normalizada post-login, antes de resolver
// cuenta y usuario locales.
type Principal struct {
	Authority   authority.Authority
	Provider    string
	Realm       string
	PrincipalID string

	Username      string
	Email         string
	EmailVerified bool

	// Attributes aplanados: un valor queda como string, varios como
	// []string.
	Attributes map[string]any
}

// Normalizer aplica la política del provider (subject attribute, trust de
// email, script de mapping) sobre la identidad cruda.
type Normalizer struct {
	scripts *ScriptEngine
}

func NewNormalizer(scripts *ScriptEngine) *Normalizer {
	return &Normalizer{scripts: scripts}
}

// Normalize es determinista para una misma identidad y config: mismo
// input, mismo principal.
func (n *Normalizer) Normalize(ctx context.Context, cfg *authority.ProviderConfig, ident *idp.Identity) (*Principal, error) {
	subject := resolveSubject(cfg, ident)
	if subject == "" {
		return nil, ErrSubjectNotFound
	}

	attrs := FlattenAttributes(ident.Attributes)

	if n.scripts != nil && cfg.Scripts.MapAttributes != "" {
		mapped, err := n.scripts.MapAttributes(ctx, cfg.Scripts.MapAttributes, attrs)
		if err != nil {
			// Mapping es best-effort: ante error de script seguimos
			// con los atributos originales.
			logger.From(ctx).Warn("attribute mapping script failed",
				logger.Provider(cfg.ProviderID), logger.Err(err))
		} else if mapped != nil {
			attrs = mapped
		}
	}

	p := &Principal{
		Authority:   cfg.Authority,
		Provider:    cfg.ProviderID,
		Realm:       cfg.Realm,
		PrincipalID: subject,
		Username:    resolveUsername(attrs, subject),
		Attributes:  attrs,
	}
	p.Email, p.EmailVerified = resolveEmail(cfg, attrs)
	return p, nil
}

func resolveSubject(cfg *authority.ProviderConfig, ident *idp.Identity) string {
	if cfg.SubjectAttribute != "" {
		if vs := ident.Attributes[cfg.SubjectAttribute]; len(vs) > 0 && vs[0] != "" {
			return vs[0]
		}
		// Subject attribute explícito y ausente: no caemos al default,
		// el operador pidió ese atributo a propósito.
		return ""
	}
	return ident.Subject
}

func resolveUsername(attrs map[string]any, subject string) string {
	for _, k := range []string{"preferred_username", "username", "email"} {
		if s := firstString(attrs[k]); s != "" {
			return s
		}
	}
	return subject
}

// resolveEmail aplica la política de confianza: TrustEmail es el default
// y un atributo email_verified presente y parseable lo overridea;
// AlwaysTrustEmail fuerza verified sin mirar nada.
func resolveEmail(cfg *authority.ProviderConfig, attrs map[string]any) (string, bool) {
	email := firstString(attrs["email"])
	if email == "" {
		return "", false
	}
	if cfg.AlwaysTrustEmail {
		return email, true
	}
	verified := cfg.TrustEmail
	if raw := strings.TrimSpace(firstString(attrs["email_verified"])); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			verified = b
		}
	}
	return email, verified
}

// FlattenAttributes colapsa los multi-valor del wire a la forma que ven
// los scripts y la persistencia.
func FlattenAttributes(in map[string][]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, vs := range in {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			cp := make([]string, len(vs))
			copy(cp, vs)
			out[k] = cp
		}
	}
	return out
}

func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	}
	return ""
}
