package oidc

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/oauth2-proxy/mockoidc"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idbridge/internal/authority"
)

func TestClaimsToAttributes(t *testing.T) {
	attrs := ClaimsToAttributes(map[string]any{
		"sub":            "sub-1",
		"name":           "Alice",
		"email_verified": true,
		"groups":         []any{"dev", "ops"},
		"level":          float64(3),
		// Claims de protocolo: nunca llegan al principal.
		"iss":     "https://idp.example.com",
		"aud":     "client",
		"nonce":   "n",
		"at_hash": "x",
		"exp":     float64(1700000000),
	})

	require.Equal(t, []string{"sub-1"}, attrs["sub"])
	require.Equal(t, []string{"Alice"}, attrs["name"])
	require.Equal(t, []string{"true"}, attrs["email_verified"])
	require.Equal(t, []string{"dev", "ops"}, attrs["groups"])
	require.Equal(t, []string{"3"}, attrs["level"])

	for _, k := range []string{"iss", "aud", "nonce", "at_hash", "exp"} {
		require.NotContains(t, attrs, k)
	}
}

// El challenge es siempre BASE64URL(SHA256(verifier)) sin padding, y el
// verifier persistido lo reproduce.
func TestPKCEChallengeDerivation(t *testing.T) {
	m, err := mockoidc.Run()
	require.NoError(t, err)
	defer m.Shutdown()

	a := New()
	cfg := &authority.ProviderConfig{
		Authority:  authority.OIDC,
		ProviderID: "p1",
		Realm:      "acme",
		OIDC: &authority.OIDCSettings{
			Issuer:   m.Issuer(),
			ClientID: "client",
			PKCE:     true,
		},
	}

	red, err := a.BuildAuthorizationRequest(context.Background(), cfg,
		"https://idbridge.example.com/auth/oidc/login/p1", "state-1")
	require.NoError(t, err)
	require.NotEmpty(t, red.Context.CodeVerifier)
	require.NotEmpty(t, red.Context.Nonce)

	u, err := url.Parse(red.URL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, red.Context.Nonce, q.Get("nonce"))

	sum := sha256.Sum256([]byte(red.Context.CodeVerifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	require.Equal(t, want, q.Get("code_challenge"))
}
