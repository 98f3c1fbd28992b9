package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/domain"
	"github.com/dropDatabas3/idbridge/internal/principal"
	"github.com/dropDatabas3/idbridge/internal/store/memory"
)

func testResolverPrincipal() *principal.Principal {
	return &principal.Principal{
		Authority:   authority.OIDC,
		Provider:    "acme-oidc",
		Realm:       "acme",
		PrincipalID: "sub-1",
		Username:    "alice",
		Email:       "alice@example.com",
		Attributes:  map[string]any{"dept": "platform"},
	}
}

func TestResolveCreateOnMissing(t *testing.T) {
	st := memory.New()
	r := NewResolver(st.Users(), st.Accounts())
	ctx := context.Background()

	u, acc, err := r.Resolve(ctx, testResolverPrincipal(), ResolveOptions{CreateOnMissing: true})
	require.NoError(t, err)
	require.NotNil(t, u)
	require.NotEmpty(t, u.ID)
	require.Equal(t, "acme", u.Realm)
	require.Equal(t, u.ID, acc.UserID)
	require.Equal(t, "sub-1", acc.AccountID)
	require.Equal(t, "acme", acc.RepositoryID) // default al realm
	require.Equal(t, domain.StatusActive, acc.Status)
	require.NotEmpty(t, acc.UUID)
	require.NotEqual(t, u.ID, acc.UUID)
}

// El mismo principal siempre resuelve al mismo user.
func TestResolveIsDeterministic(t *testing.T) {
	st := memory.New()
	r := NewResolver(st.Users(), st.Accounts())
	ctx := context.Background()

	u1, _, err := r.Resolve(ctx, testResolverPrincipal(), ResolveOptions{CreateOnMissing: true})
	require.NoError(t, err)

	u2, _, err := r.Resolve(ctx, testResolverPrincipal(), ResolveOptions{CreateOnMissing: true})
	require.NoError(t, err)
	require.Equal(t, u1.ID, u2.ID)
}

func TestResolveNoCreate(t *testing.T) {
	st := memory.New()
	r := NewResolver(st.Users(), st.Accounts())

	_, _, err := r.Resolve(context.Background(), testResolverPrincipal(), ResolveOptions{})
	require.ErrorIs(t, err, ErrAccountUnknown)
}

func TestResolveLockedAccountRejected(t *testing.T) {
	st := memory.New()
	r := NewResolver(st.Users(), st.Accounts())
	ctx := context.Background()

	_, acc, err := r.Resolve(ctx, testResolverPrincipal(), ResolveOptions{CreateOnMissing: true})
	require.NoError(t, err)

	require.NoError(t, st.Accounts().SetStatus(ctx, acc.RepositoryID, acc.AccountID, domain.StatusLocked))

	_, _, err = r.Resolve(ctx, testResolverPrincipal(), ResolveOptions{CreateOnMissing: true})
	require.ErrorIs(t, err, ErrAccountNotActive)
}

// El perfil se refresca en cada login con lo que afirma el provider.
func TestResolveRefreshesProfile(t *testing.T) {
	st := memory.New()
	r := NewResolver(st.Users(), st.Accounts())
	ctx := context.Background()

	_, _, err := r.Resolve(ctx, testResolverPrincipal(), ResolveOptions{CreateOnMissing: true})
	require.NoError(t, err)

	p := testResolverPrincipal()
	p.Email = "new@example.com"
	p.Attributes["dept"] = "security"

	_, acc, err := r.Resolve(ctx, p, ResolveOptions{CreateOnMissing: true})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", acc.Email)
	require.Equal(t, "security", acc.Attributes["dept"])
}

func TestLifecycleTransitions(t *testing.T) {
	st := memory.New()
	r := NewResolver(st.Users(), st.Accounts())
	lc := NewLifecycle(st.Accounts())
	ctx := context.Background()

	_, acc, err := r.Resolve(ctx, testResolverPrincipal(), ResolveOptions{CreateOnMissing: true})
	require.NoError(t, err)

	repo, id := acc.RepositoryID, acc.AccountID

	got, err := lc.Lock(ctx, repo, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusLocked, got.Status)

	// LOCKED -> INACTIVE es ilegal y no toca nada.
	_, err = lc.Deactivate(ctx, repo, id)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	cur, err := st.Accounts().Get(ctx, repo, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusLocked, cur.Status)

	_, err = lc.Unlock(ctx, repo, id)
	require.NoError(t, err)
	_, err = lc.Deactivate(ctx, repo, id)
	require.NoError(t, err)
	_, err = lc.Activate(ctx, repo, id)
	require.NoError(t, err)
}
