package principal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/idp"
)

func baseConfig() *authority.ProviderConfig {
	return &authority.ProviderConfig{
		Authority:  authority.OIDC,
		ProviderID: "acme-oidc",
		Realm:      "acme",
	}
}

func TestFlattenAttributes(t *testing.T) {
	out := FlattenAttributes(map[string][]string{
		"email":  {"a@example.com"},
		"groups": {"admins", "devs"},
		"empty":  {},
	})

	require.Equal(t, "a@example.com", out["email"])
	require.Equal(t, []string{"admins", "devs"}, out["groups"])
	_, ok := out["empty"]
	require.False(t, ok)
}

func TestNormalizeSubjectDefault(t *testing.T) {
	n := NewNormalizer(nil)
	p, err := n.Normalize(context.Background(), baseConfig(), &idp.Identity{
		Subject:    "sub-123",
		Attributes: map[string][]string{"email": {"a@example.com"}},
	})
	require.NoError(t, err)
	require.Equal(t, "sub-123", p.PrincipalID)
	require.Equal(t, "acme", p.Realm)
	require.Equal(t, "acme-oidc", p.Provider)
}

func TestNormalizeSubjectAttribute(t *testing.T) {
	cfg := baseConfig()
	cfg.SubjectAttribute = "employee_id"

	n := NewNormalizer(nil)
	p, err := n.Normalize(context.Background(), cfg, &idp.Identity{
		Subject:    "sub-123",
		Attributes: map[string][]string{"employee_id": {"E-77"}},
	})
	require.NoError(t, err)
	require.Equal(t, "E-77", p.PrincipalID)
}

// Subject attribute configurado y ausente: no se cae al default.
func TestNormalizeSubjectAttributeMissing(t *testing.T) {
	cfg := baseConfig()
	cfg.SubjectAttribute = "employee_id"

	n := NewNormalizer(nil)
	_, err := n.Normalize(context.Background(), cfg, &idp.Identity{
		Subject:    "sub-123",
		Attributes: map[string][]string{"email": {"a@example.com"}},
	})
	require.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := NewNormalizer(nil)
	ident := &idp.Identity{
		Subject: "sub-1",
		Attributes: map[string][]string{
			"email":  {"a@example.com"},
			"groups": {"x", "y"},
		},
	}

	p1, err := n.Normalize(context.Background(), baseConfig(), ident)
	require.NoError(t, err)
	p2, err := n.Normalize(context.Background(), baseConfig(), ident)
	require.NoError(t, err)

	require.Equal(t, p1.PrincipalID, p2.PrincipalID)
	require.Equal(t, p1.Username, p2.Username)
	require.Equal(t, p1.Attributes, p2.Attributes)
}

// TrustEmail es el default y el atributo email_verified lo overridea
// cuando viene y es parseable; AlwaysTrustEmail ignora todo.
func TestEmailTrustPolicy(t *testing.T) {
	n := NewNormalizer(nil)

	cases := []struct {
		name       string
		trust      bool
		always     bool
		verifiedAt string // "" = sin atributo
		want       bool
	}{
		{name: "sin flags sin atributo", want: false},
		{name: "sin flags el atributo overridea", verifiedAt: "true", want: true},
		{name: "trust por defecto sin atributo", trust: true, want: true},
		{name: "trust overrideado por el provider", trust: true, verifiedAt: "false", want: false},
		{name: "atributo no parseable conserva el default", trust: true, verifiedAt: "banana", want: true},
		{name: "always trust ignora el atributo", always: true, verifiedAt: "false", want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.TrustEmail = tc.trust
			cfg.AlwaysTrustEmail = tc.always

			attrs := map[string][]string{"email": {"a@example.com"}}
			if tc.verifiedAt != "" {
				attrs["email_verified"] = []string{tc.verifiedAt}
			}

			p, err := n.Normalize(context.Background(), cfg, &idp.Identity{
				Subject:    "s",
				Attributes: attrs,
			})
			require.NoError(t, err)
			require.Equal(t, "a@example.com", p.Email)
			require.Equal(t, tc.want, p.EmailVerified)
		})
	}
}

func TestUsernameFallbackChain(t *testing.T) {
	n := NewNormalizer(nil)

	p, err := n.Normalize(context.Background(), baseConfig(), &idp.Identity{
		Subject: "sub-1",
		Attributes: map[string][]string{
			"preferred_username": {"alice"},
			"email":              {"a@example.com"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "alice", p.Username)

	p, err = n.Normalize(context.Background(), baseConfig(), &idp.Identity{
		Subject:    "sub-1",
		Attributes: map[string][]string{"email": {"a@example.com"}},
	})
	require.NoError(t, err)
	require.Equal(t, "a@example.com", p.Username)

	p, err = n.Normalize(context.Background(), baseConfig(), &idp.Identity{Subject: "sub-1"})
	require.NoError(t, err)
	require.Equal(t, "sub-1", p.Username)
}
