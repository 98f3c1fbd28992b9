package flow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/oauth2-proxy/mockoidc"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idbridge/internal/audit"
	"github.com/dropDatabas3/idbridge/internal/authority"
	cachemem "github.com/dropDatabas3/idbridge/internal/cache/memory"
	"github.com/dropDatabas3/idbridge/internal/domain"
	"github.com/dropDatabas3/idbridge/internal/idp"
	idpoidc "github.com/dropDatabas3/idbridge/internal/idp/oidc"
	"github.com/dropDatabas3/idbridge/internal/jwt"
	"github.com/dropDatabas3/idbridge/internal/principal"
	"github.com/dropDatabas3/idbridge/internal/store/memory"
	"github.com/dropDatabas3/idbridge/internal/user"
)

// fakeAdapter es un adapter de protocolo determinista para ejercitar la
// state-machine sin red.
type fakeAdapter struct {
	auth        authority.Authority
	ident       *idp.Identity
	exchangeErr error
}

func (f *fakeAdapter) Authority() authority.Authority { return f.auth }

func (f *fakeAdapter) BuildAuthorizationRequest(_ context.Context, _ *authority.ProviderConfig, redirectURI, state string) (*idp.Redirect, error) {
	u := "https://idp.example.com/authorize?redirect_uri=" + url.QueryEscape(redirectURI) + "&state=" + url.QueryEscape(state)
	return &idp.Redirect{URL: u, Context: idp.RequestContext{Nonce: "n-fake"}}, nil
}

func (f *fakeAdapter) ParseCallback(r *http.Request) idp.Callback {
	_ = r.ParseForm()
	return idp.Callback{
		Code:             r.Form.Get("code"),
		State:            r.Form.Get("state"),
		Error:            r.Form.Get("error"),
		ErrorDescription: r.Form.Get("error_description"),
		Request:          r,
	}
}

func (f *fakeAdapter) Exchange(_ context.Context, _ *authority.ProviderConfig, _ *idp.Callback, _ *idp.RequestContext) (*idp.Identity, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.ident, nil
}

func testIdentity() *idp.Identity {
	return &idp.Identity{
		Subject: "sub-1",
		Attributes: map[string][]string{
			"preferred_username": {"alice"},
			"email":              {"alice@example.com"},
		},
	}
}

type testEnv struct {
	svc    *Service
	store  *memory.Store
	reg    *authority.Registry
	issuer *jwt.Issuer
}

func newTestEnv(t *testing.T, adapters ...idp.Adapter) *testEnv {
	t.Helper()
	st := memory.New()
	reg := authority.NewRegistry(st, "system")
	scripts := principal.NewScriptEngine(2 * time.Second)

	keys, err := jwt.NewEd25519("test-key")
	require.NoError(t, err)
	issuer := jwt.NewIssuer("https://idbridge.example.com", keys, time.Hour)

	svc := NewService(Options{
		Registry:   reg,
		Adapters:   adapters,
		Requests:   NewRequestStore(cachemem.New(time.Minute), time.Minute),
		Normalizer: principal.NewNormalizer(scripts),
		Scripts:    scripts,
		Resolver:   user.NewResolver(st.Users(), st.Accounts()),
		Sessions:   issuer,
		Audit:      audit.NewPublisher(nil),
		BaseURL:    "https://idbridge.example.com",
	})
	return &testEnv{svc: svc, store: st, reg: reg, issuer: issuer}
}

func (e *testEnv) register(t *testing.T, cfg *authority.ProviderConfig) {
	t.Helper()
	_, err := e.reg.Register(context.Background(), cfg)
	require.NoError(t, err)
}

func oidcConfig(providerID string) *authority.ProviderConfig {
	return &authority.ProviderConfig{
		Authority:  authority.OIDC,
		ProviderID: providerID,
		Realm:      "acme",
		OIDC: &authority.OIDCSettings{
			Issuer:   "https://idp.example.com",
			ClientID: "test-client",
		},
		TrustEmail:      true,
		CreateOnMissing: true,
	}
}

// authorize emite el request y devuelve el state persistido, extraído de
// la URL upstream.
func (e *testEnv) authorize(t *testing.T, providerID string) string {
	t.Helper()
	raw, err := e.svc.Authorize(context.Background(), authority.OIDC, providerID)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	state := u.Query().Get("state")
	// 256 bits en base64url sin padding.
	require.GreaterOrEqual(t, len(state), 43)
	return state
}

func callbackReq(providerID string, params url.Values) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/auth/oidc/login/"+providerID+"?"+params.Encode(), nil)
}

func requireAuthKey(t *testing.T, err error, key ErrorKey) {
	t.Helper()
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, key, aerr.Key)
}

func TestAuthorizeUnknownProvider(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})

	_, err := env.svc.Authorize(context.Background(), authority.OIDC, "nope")
	require.ErrorIs(t, err, authority.ErrProviderNotFound)
}

func TestAuthorizeAuthorityMismatch(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	env.register(t, &authority.ProviderConfig{
		Authority:  authority.SAML,
		ProviderID: "acme-saml",
		Realm:      "acme",
		SAML: &authority.SAMLSettings{
			EntityID:       "https://idbridge.example.com/saml",
			IDPMetadataXML: "<EntityDescriptor/>",
		},
	})

	// Registrado bajo saml, pedido como oidc: no existe para esa authority.
	_, err := env.svc.Authorize(context.Background(), authority.OIDC, "acme-saml")
	require.ErrorIs(t, err, authority.ErrProviderNotFound)
}

func TestCallbackHappyPath(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	env.register(t, oidcConfig("acme-oidc"))

	state := env.authorize(t, "acme-oidc")
	r := callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {state}})

	res, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc", r)
	require.NoError(t, err)
	require.NotNil(t, res.User)
	require.Equal(t, "sub-1", res.Principal.PrincipalID)
	require.Equal(t, "alice", res.Principal.Username)
	require.True(t, res.Principal.EmailVerified)
	require.Equal(t, res.User.ID, res.Account.UserID)

	require.NotEmpty(t, res.SessionToken)
	claims, err := env.issuer.Parse(res.SessionToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, claims["sub"])
	require.Equal(t, "acme", claims["realm"])
}

// El mismo callback dos veces: el segundo encuentra el state consumido.
func TestCallbackReplayRejected(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	env.register(t, oidcConfig("acme-oidc"))

	state := env.authorize(t, "acme-oidc")
	params := url.Values{"code": {"c-1"}, "state": {state}}

	_, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc", callbackReq("acme-oidc", params))
	require.NoError(t, err)

	_, err = env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc", callbackReq("acme-oidc", params))
	requireAuthKey(t, err, KeyInvalidRequest)
}

func TestCallbackMalformed(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	env.register(t, oidcConfig("acme-oidc"))

	// Sin state.
	_, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}}))
	requireAuthKey(t, err, KeyInvalidRequest)

	// Sin code ni error.
	_, err = env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"state": {"s-1"}}))
	requireAuthKey(t, err, KeyInvalidRequest)
}

func TestCallbackUnknownState(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	env.register(t, oidcConfig("acme-oidc"))

	_, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {"never-issued"}}))
	requireAuthKey(t, err, KeyInvalidRequest)
}

// El state de un provider no sirve para el callback de otro.
func TestCallbackProviderMismatch(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	env.register(t, oidcConfig("provider-a"))
	env.register(t, oidcConfig("provider-b"))

	state := env.authorize(t, "provider-a")

	_, err := env.svc.Callback(context.Background(), authority.OIDC, "provider-b",
		callbackReq("provider-b", url.Values{"code": {"c-1"}, "state": {state}}))
	requireAuthKey(t, err, KeyInvalidRequest)
}

func TestCallbackUpstreamError(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	env.register(t, oidcConfig("acme-oidc"))

	state := env.authorize(t, "acme-oidc")

	_, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{
			"error":             {"access_denied"},
			"error_description": {"user cancelled"},
			"state":             {state},
		}))
	requireAuthKey(t, err, KeyAccessDenied)
}

func TestCallbackExchangeFailure(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{
		auth:        authority.OIDC,
		exchangeErr: errors.New("connection refused"),
	})
	env.register(t, oidcConfig("acme-oidc"))

	state := env.authorize(t, "acme-oidc")

	_, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {state}}))
	requireAuthKey(t, err, KeyProviderCommunication)
}

func TestCallbackSubjectAttributeMissing(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	cfg := oidcConfig("acme-oidc")
	cfg.SubjectAttribute = "employee_id"
	env.register(t, cfg)

	state := env.authorize(t, "acme-oidc")

	_, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {state}}))
	requireAuthKey(t, err, KeyUsernameNotFound)
}

func TestCallbackScriptDenies(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	cfg := oidcConfig("acme-oidc")
	cfg.Scripts.Authorize = `return false`
	env.register(t, cfg)

	state := env.authorize(t, "acme-oidc")

	_, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {state}}))
	requireAuthKey(t, err, KeyUnauthorized)
}

// Un hook roto no bloquea el login.
func TestCallbackScriptErrorDoesNotDeny(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	cfg := oidcConfig("acme-oidc")
	cfg.Scripts.Authorize = `error("hook roto")`
	env.register(t, cfg)

	state := env.authorize(t, "acme-oidc")

	res, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {state}}))
	require.NoError(t, err)
	require.NotNil(t, res.User)
}

func TestCallbackLockedAccount(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	env.register(t, oidcConfig("acme-oidc"))
	ctx := context.Background()

	// Primer login crea la cuenta.
	state := env.authorize(t, "acme-oidc")
	res, err := env.svc.Callback(ctx, authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {state}}))
	require.NoError(t, err)

	require.NoError(t, env.store.Accounts().SetStatus(ctx,
		res.Account.RepositoryID, res.Account.AccountID, domain.StatusLocked))

	state = env.authorize(t, "acme-oidc")
	_, err = env.svc.Callback(ctx, authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {state}}))
	requireAuthKey(t, err, KeyUnauthorized)
}

func TestCallbackUnknownAccountWithoutProvisioning(t *testing.T) {
	env := newTestEnv(t, &fakeAdapter{auth: authority.OIDC, ident: testIdentity()})
	cfg := oidcConfig("acme-oidc")
	cfg.CreateOnMissing = false
	env.register(t, cfg)

	state := env.authorize(t, "acme-oidc")

	_, err := env.svc.Callback(context.Background(), authority.OIDC, "acme-oidc",
		callbackReq("acme-oidc", url.Values{"code": {"c-1"}, "state": {state}}))
	requireAuthKey(t, err, KeyUnauthorized)
}

// End to end contra un OP real en loopback: discovery, PKCE, exchange y
// verificación del ID token con la librería de protocolo de verdad.
func TestOIDCEndToEnd(t *testing.T) {
	m, err := mockoidc.Run()
	require.NoError(t, err)
	defer m.Shutdown()

	env := newTestEnv(t, idpoidc.New())
	env.register(t, &authority.ProviderConfig{
		Authority:  authority.OIDC,
		ProviderID: "mock-oidc",
		Realm:      "acme",
		OIDC: &authority.OIDCSettings{
			Issuer:          m.Issuer(),
			ClientID:        m.Config().ClientID,
			ClientSecretEnc: m.Config().ClientSecret,
			PKCE:            true,
		},
		TrustEmail:      true,
		CreateOnMissing: true,
	})
	ctx := context.Background()

	authURL, err := env.svc.Authorize(ctx, authority.OIDC, "mock-oidc")
	require.NoError(t, err)

	hc := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := hc.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.NotEmpty(t, loc.Query().Get("code"))
	require.NotEmpty(t, loc.Query().Get("state"))

	cb := httptest.NewRequest(http.MethodGet, "/auth/oidc/login/mock-oidc?"+loc.RawQuery, nil)
	res, err := env.svc.Callback(ctx, authority.OIDC, "mock-oidc", cb)
	require.NoError(t, err)
	require.NotNil(t, res.User)
	require.Equal(t, res.Principal.PrincipalID, res.Account.AccountID)
	require.NotEmpty(t, res.SessionToken)

	claims, err := env.issuer.Parse(res.SessionToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, claims["sub"])

	// Replay del mismo callback.
	cb = httptest.NewRequest(http.MethodGet, "/auth/oidc/login/mock-oidc?"+loc.RawQuery, nil)
	_, err = env.svc.Callback(ctx, authority.OIDC, "mock-oidc", cb)
	requireAuthKey(t, err, KeyInvalidRequest)
}
