package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/idbridge/internal/audit"
	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/domain"
	"github.com/dropDatabas3/idbridge/internal/idp"
	"github.com/dropDatabas3/idbridge/internal/jwt"
	"github.com/dropDatabas3/idbridge/internal/metrics"
	"github.com/dropDatabas3/idbridge/internal/observability/logger"
	"github.com/dropDatabas3/idbridge/internal/principal"
	tokens "github.com/dropDatabas3/idbridge/internal/security/token"
	"github.com/dropDatabas3/idbridge/internal/user"
)

// stateBytes son 256 bits de entropía para el state.
const stateBytes = 32

// Options arma el Service. Todos los campos salvo Sessions son
// obligatorios.
type Options struct {
	Registry        *authority.Registry
	Adapters        []idp.Adapter
	Requests        *RequestStore
	Normalizer      *principal.Normalizer
	Scripts         *principal.ScriptEngine
	Resolver        *user.Resolver
	Sessions        *jwt.Issuer
	Audit           *audit.Publisher
	BaseURL         string
	ExchangeTimeout time.Duration
}

// Service orquesta el flujo completo: authorize → redirect upstream →
// callback → exchange → principal → user local → sesión.
type Service struct {
	registry        *authority.Registry
	adapters        map[authority.Authority]idp.Adapter
	requests        *RequestStore
	normalizer      *principal.Normalizer
	scripts         *principal.ScriptEngine
	resolver        *user.Resolver
	sessions        *jwt.Issuer
	audit           *audit.Publisher
	baseURL         string
	exchangeTimeout time.Duration
}

func NewService(opts Options) *Service {
	adapters := make(map[authority.Authority]idp.Adapter, len(opts.Adapters))
	for _, a := range opts.Adapters {
		adapters[a.Authority()] = a
	}
	timeout := opts.ExchangeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		registry:        opts.Registry,
		adapters:        adapters,
		requests:        opts.Requests,
		normalizer:      opts.Normalizer,
		scripts:         opts.Scripts,
		resolver:        opts.Resolver,
		sessions:        opts.Sessions,
		audit:           opts.Audit,
		baseURL:         opts.BaseURL,
		exchangeTimeout: timeout,
	}
}

// CallbackURL es el redirect URI que recibe la respuesta upstream para un
// provider dado. Se recomputa acá siempre, nunca se toma del request.
func (s *Service) CallbackURL(auth authority.Authority, providerID string) string {
	return fmt.Sprintf("%s/auth/%s/login/%s", s.baseURL, auth, providerID)
}

// Authorize emite el authorization request: state fresco, contexto
// persistido bajo el state, y la URL upstream para el 302.
//
// Provider inexistente o de otra authority sale como
// authority.ErrProviderNotFound; en esta ruta el HTTP layer lo reporta
// como error de servidor, no como request inválido.
func (s *Service) Authorize(ctx context.Context, auth authority.Authority, providerID string) (string, error) {
	adapter, ok := s.adapters[auth]
	if !ok {
		return "", fmt.Errorf("%w: authority %q", authority.ErrProviderNotFound, auth)
	}
	cfg, err := s.registry.Resolve(ctx, providerID)
	if err != nil {
		return "", err
	}
	if cfg.Authority != auth {
		return "", fmt.Errorf("%w: %s no registrado bajo %s", authority.ErrProviderNotFound, providerID, auth)
	}

	state, err := tokens.GenerateOpaqueToken(stateBytes)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	redirectURI := s.CallbackURL(auth, providerID)
	red, err := adapter.BuildAuthorizationRequest(ctx, cfg, redirectURI, state)
	if err != nil {
		return "", fmt.Errorf("build authorization request: %w", err)
	}

	rc := red.Context
	rc.Authority = string(auth)
	rc.ProviderID = providerID
	rc.RegistrationID = providerID
	rc.RedirectURI = redirectURI
	rc.CreatedAt = time.Now().UTC()
	if rc.ClientID == "" && cfg.OIDC != nil {
		rc.ClientID = cfg.OIDC.ClientID
	}
	if err := s.requests.Put(ctx, state, &rc); err != nil {
		return "", err
	}

	metrics.AuthorizationRequestsIssued.WithLabelValues(string(auth)).Inc()
	s.audit.Publish(ctx, audit.Event{
		Type:      audit.EventAuthorizationIssued,
		Realm:     cfg.Realm,
		Authority: string(auth),
		Provider:  providerID,
	})
	logger.From(ctx).Info("authorization request issued",
		logger.Authority(string(auth)), logger.Provider(providerID), logger.Realm(cfg.Realm))

	return red.URL, nil
}

// Result es el desenlace AUTHENTICATED del flujo.
type Result struct {
	User      *domain.User
	Account   *domain.Account
	Principal *principal.Principal

	// SessionToken sólo si hay issuer configurado.
	SessionToken string
	SessionExp   time.Time
}

// Callback procesa la respuesta upstream. Todo error es *AuthError; el
// HTTP layer decide status y redirect a partir de la Key.
func (s *Service) Callback(ctx context.Context, auth authority.Authority, providerID string, r *http.Request) (*Result, error) {
	log := logger.From(ctx).With(logger.Authority(string(auth)), logger.Provider(providerID))

	adapter, ok := s.adapters[auth]
	if !ok {
		return nil, s.fail(ctx, auth, providerID, "", KeyInvalidRequest,
			fmt.Errorf("authority desconocida %q", auth))
	}

	cb := adapter.ParseCallback(r)

	// Well-formedness primero: sin state, o sin code ni error, no hay
	// nada que procesar ni state que consumir.
	if cb.State == "" || (cb.Code == "" && cb.Error == "") {
		return nil, s.fail(ctx, auth, providerID, "", KeyInvalidRequest,
			errors.New("callback malformado"))
	}

	// Consumo atómico: acá muere el replay.
	rc, ok := s.requests.Take(ctx, cb.State)
	if !ok {
		return nil, s.fail(ctx, auth, providerID, "", KeyInvalidRequest,
			errors.New("state desconocido o ya consumido"))
	}

	s.audit.Publish(ctx, audit.Event{
		Type:      audit.EventAuthorizationResponse,
		Authority: string(auth),
		Provider:  providerID,
	})

	if rc.Authority != string(auth) || rc.ProviderID != providerID {
		return nil, s.fail(ctx, auth, providerID, "", KeyInvalidRequest,
			fmt.Errorf("callback para %s/%s con contexto de %s/%s",
				auth, providerID, rc.Authority, rc.ProviderID))
	}

	if cb.Error != "" {
		// El detalle upstream va al log, nunca al usuario.
		log.Warn("upstream returned error",
			logger.String("upstream_error", cb.Error),
			logger.String("upstream_description", cb.ErrorDescription))
		return nil, s.fail(ctx, auth, providerID, "", KeyAccessDenied,
			fmt.Errorf("upstream error %s", cb.Error))
	}

	// En el callback la config ausente es request inválido (el state ya
	// se consumió, el request en curso no puede completarse), a
	// diferencia de la ruta de authorize donde es error de servidor.
	cfg, err := s.registry.Resolve(ctx, providerID)
	if err != nil {
		return nil, s.fail(ctx, auth, providerID, "", KeyInvalidRequest,
			fmt.Errorf("provider config: %w", err))
	}

	exCtx, cancel := context.WithTimeout(ctx, s.exchangeTimeout)
	defer cancel()

	started := time.Now()
	ident, err := adapter.Exchange(exCtx, cfg, &cb, rc)
	metrics.ExchangeLatency.WithLabelValues(string(auth)).
		Observe(float64(time.Since(started).Milliseconds()))
	if err != nil {
		return nil, s.fail(ctx, auth, providerID, cfg.Realm, KeyProviderCommunication,
			fmt.Errorf("exchange: %w", err))
	}

	p, err := s.normalizer.Normalize(ctx, cfg, ident)
	if err != nil {
		key := KeyServerError
		if errors.Is(err, principal.ErrSubjectNotFound) {
			key = KeyUsernameNotFound
		}
		return nil, s.fail(ctx, auth, providerID, cfg.Realm, key, err)
	}

	if cfg.Scripts.Authorize != "" {
		allowed, serr := s.scripts.Authorize(ctx, cfg.Scripts.Authorize, p)
		if serr != nil {
			// El hook roto no bloquea el login; sólo un false
			// explícito deniega.
			log.Warn("authorization script error", logger.Err(serr))
		}
		if !allowed {
			return nil, s.fail(ctx, auth, providerID, cfg.Realm, KeyUnauthorized,
				errors.New("authorization script denied"))
		}
	}

	u, acc, err := s.resolver.Resolve(ctx, p, user.ResolveOptions{
		RepositoryID:    cfg.Repository(),
		CreateOnMissing: cfg.CreateOnMissing,
	})
	if err != nil {
		key := KeyServerError
		if errors.Is(err, user.ErrAccountUnknown) || errors.Is(err, user.ErrAccountNotActive) {
			key = KeyUnauthorized
		}
		return nil, s.fail(ctx, auth, providerID, cfg.Realm, key, err)
	}

	res := &Result{User: u, Account: acc, Principal: p}
	if s.sessions != nil && u != nil {
		tok, exp, err := s.sessions.SignSession(u.ID, jwt.SessionClaims{
			Realm:     p.Realm,
			Provider:  p.Provider,
			Authority: string(p.Authority),
			Username:  p.Username,
			Email:     p.Email,
		})
		if err != nil {
			return nil, s.fail(ctx, auth, providerID, cfg.Realm, KeyServerError,
				fmt.Errorf("sign session: %w", err))
		}
		res.SessionToken = tok
		res.SessionExp = exp
	}

	metrics.LoginAttempts.WithLabelValues(string(auth), "success").Inc()
	ev := audit.Event{
		Type:      audit.EventLoginSuccess,
		Realm:     cfg.Realm,
		Authority: string(auth),
		Provider:  providerID,
		Subject:   p.PrincipalID,
	}
	if u != nil {
		ev.UserID = u.ID
	}
	s.audit.Publish(ctx, ev)
	log.Info("login success", logger.Subject(p.PrincipalID), logger.Realm(cfg.Realm))

	return res, nil
}

// fail registra métrica + auditoría y devuelve el AuthError clasificado.
func (s *Service) fail(ctx context.Context, auth authority.Authority, providerID, realm string, key ErrorKey, cause error) error {
	metrics.LoginAttempts.WithLabelValues(string(auth), string(key)).Inc()
	s.audit.Publish(ctx, audit.Event{
		Type:      audit.EventLoginFailure,
		Realm:     realm,
		Authority: string(auth),
		Provider:  providerID,
		ErrorKey:  string(key),
	})
	logger.From(ctx).Warn("login failure",
		logger.Authority(string(auth)), logger.Provider(providerID),
		logger.String("error_key", string(key)), logger.Err(cause))
	return NewAuthError(key, cause)
}
