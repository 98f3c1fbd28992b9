package authority

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idbridge/internal/domain"
)

// memStore implementa ConfigStore en memoria para los tests.
type memStore struct {
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, id string) ([]byte, error) {
	b, ok := s.blobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}
func (s *memStore) Put(_ context.Context, id string, blob []byte) error {
	s.blobs[id] = blob
	return nil
}
func (s *memStore) Delete(_ context.Context, id string) error {
	delete(s.blobs, id)
	return nil
}
func (s *memStore) List(_ context.Context) (map[string][]byte, error) {
	return s.blobs, nil
}

func validConfig(id, realm string) *ProviderConfig {
	return &ProviderConfig{
		Authority:  OIDC,
		ProviderID: id,
		Realm:      realm,
		OIDC: &OIDCSettings{
			Issuer:   "https://idp.example.com",
			ClientID: "client-1",
		},
	}
}

func TestRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(newMemStore(), "system")
	ctx := context.Background()

	stored, err := reg.Register(ctx, validConfig("acme-oidc", "acme"))
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.Version)

	// El warm ocurre antes de que Register retorne: Resolve inmediato ve
	// la config nueva.
	got, err := reg.Resolve(ctx, "acme-oidc")
	require.NoError(t, err)
	require.Equal(t, "acme", got.Realm)
	require.EqualValues(t, 1, got.Version)
}

func TestRegisterCAS(t *testing.T) {
	reg := NewRegistry(newMemStore(), "system")
	ctx := context.Background()

	stored, err := reg.Register(ctx, validConfig("p1", "acme"))
	require.NoError(t, err)

	// Versión vieja (0) contra almacenada (1): conflicto, nada cambia.
	_, err = reg.Register(ctx, validConfig("p1", "acme"))
	require.ErrorIs(t, err, ErrStaleVersion)

	// Con la versión actual avanza.
	next := validConfig("p1", "acme")
	next.Version = stored.Version
	updated, err := reg.Register(ctx, next)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated.Version)

	got, err := reg.Resolve(ctx, "p1")
	require.NoError(t, err)
	require.EqualValues(t, 2, got.Version)
}

func TestResolveNotFound(t *testing.T) {
	reg := NewRegistry(newMemStore(), "system")
	_, err := reg.Resolve(context.Background(), "nope")
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func TestUnregister(t *testing.T) {
	reg := NewRegistry(newMemStore(), "system")
	ctx := context.Background()

	_, err := reg.Register(ctx, validConfig("p1", "acme"))
	require.NoError(t, err)

	require.NoError(t, reg.Unregister(ctx, "p1"))
	_, err = reg.Resolve(ctx, "p1")
	require.ErrorIs(t, err, ErrProviderNotFound)

	require.ErrorIs(t, reg.Unregister(ctx, "p1"), ErrProviderNotFound)
}

func TestUnregisterSystemRealmProtected(t *testing.T) {
	reg := NewRegistry(newMemStore(), "system")
	ctx := context.Background()

	_, err := reg.Register(ctx, validConfig("sys-login", "system"))
	require.NoError(t, err)

	require.ErrorIs(t, reg.Unregister(ctx, "sys-login"), ErrSystemRealm)

	// Sigue resolviendo después del intento.
	_, err = reg.Resolve(ctx, "sys-login")
	require.NoError(t, err)
}

func TestListByRealm(t *testing.T) {
	reg := NewRegistry(newMemStore(), "system")
	ctx := context.Background()

	_, err := reg.Register(ctx, validConfig("a1", "acme"))
	require.NoError(t, err)
	_, err = reg.Register(ctx, validConfig("b1", "beta"))
	require.NoError(t, err)

	acme, err := reg.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, acme, 1)
	require.Equal(t, "a1", acme[0].ProviderID)

	all, err := reg.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestBlobRoundTrip(t *testing.T) {
	cfg := validConfig("p1", "acme")
	cfg.Version = 3
	cfg.TrustEmail = true

	b, err := EncodeBlob(cfg)
	require.NoError(t, err)

	got, err := DecodeBlob(b)
	require.NoError(t, err)
	require.Equal(t, cfg.ProviderID, got.ProviderID)
	require.EqualValues(t, 3, got.Version)
	require.True(t, got.TrustEmail)
}
