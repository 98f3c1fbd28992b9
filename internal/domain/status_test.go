package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusActive, StatusLocked, true},
		{StatusActive, StatusInactive, true},
		{StatusLocked, StatusActive, true},
		{StatusInactive, StatusActive, true},
		{StatusLocked, StatusInactive, false},
		{StatusInactive, StatusLocked, false},
		{StatusActive, StatusActive, true},
		{StatusLocked, StatusLocked, true},
		{StatusActive, Status("BANNED"), false},
	}
	for _, tc := range cases {
		err := tc.from.CheckTransition(tc.to)
		if tc.ok {
			require.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestCredentialRevokedIsTerminal(t *testing.T) {
	require.NoError(t, CredentialActive.CheckTransition(CredentialRevoked))
	require.NoError(t, CredentialInactive.CheckTransition(CredentialRevoked))

	// mismo estado es no-op, el caller lo trata como idempotente
	require.NoError(t, CredentialRevoked.CheckTransition(CredentialRevoked))

	err := CredentialRevoked.CheckTransition(CredentialActive)
	require.ErrorIs(t, err, ErrInvalidTransition)
	err = CredentialRevoked.CheckTransition(CredentialInactive)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCredentialUnknownStatus(t *testing.T) {
	err := CredentialActive.CheckTransition(CredentialStatus("EXPIRED"))
	require.True(t, errors.Is(err, ErrInvalidTransition))
}
