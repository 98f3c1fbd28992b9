package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cachemem "github.com/dropDatabas3/idbridge/internal/cache/memory"
	"github.com/dropDatabas3/idbridge/internal/idp"
)

func TestRequestStoreRoundTrip(t *testing.T) {
	rs := NewRequestStore(cachemem.New(time.Minute), time.Minute)
	ctx := context.Background()

	rc := &idp.RequestContext{
		Authority:    "oidc",
		ProviderID:   "acme-oidc",
		RedirectURI:  "https://idbridge.example.com/auth/oidc/login/acme-oidc",
		Nonce:        "n-123",
		CodeVerifier: "v-456",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, rs.Put(ctx, "state-1", rc))

	got, ok := rs.Take(ctx, "state-1")
	require.True(t, ok)
	require.Equal(t, rc.ProviderID, got.ProviderID)
	require.Equal(t, rc.Nonce, got.Nonce)
	require.Equal(t, rc.CodeVerifier, got.CodeVerifier)
}

// Un state se consume exactamente una vez: el segundo Take no encuentra
// nada, ahí muere el replay.
func TestRequestStoreTakeIsSingleUse(t *testing.T) {
	rs := NewRequestStore(cachemem.New(time.Minute), time.Minute)
	ctx := context.Background()

	require.NoError(t, rs.Put(ctx, "state-1", &idp.RequestContext{ProviderID: "p"}))

	_, ok := rs.Take(ctx, "state-1")
	require.True(t, ok)

	_, ok = rs.Take(ctx, "state-1")
	require.False(t, ok)
}

func TestRequestStoreUnknownState(t *testing.T) {
	rs := NewRequestStore(cachemem.New(time.Minute), time.Minute)

	_, ok := rs.Take(context.Background(), "never-issued")
	require.False(t, ok)
}
