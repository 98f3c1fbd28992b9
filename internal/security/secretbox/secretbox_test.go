package secretbox

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func setMasterKey(t *testing.T) {
	t.Helper()
	UnsafeResetForTests()
	t.Cleanup(UnsafeResetForTests)
	key := bytes.Repeat([]byte{0x42}, requiredKeyLength)
	t.Setenv(secretBoxEnvVar, base64.StdEncoding.EncodeToString(key))
}

// Ready debe disparar la carga lazy: con la env bien seteada reporta true
// aunque nadie haya cifrado todavía.
func TestReadyLoadsKeyFromEnv(t *testing.T) {
	setMasterKey(t)
	require.True(t, Ready())
}

func TestReadyWithoutKey(t *testing.T) {
	UnsafeResetForTests()
	t.Cleanup(UnsafeResetForTests)
	t.Setenv(secretBoxEnvVar, "")
	require.False(t, Ready())
}

func TestReadyWithBadKey(t *testing.T) {
	UnsafeResetForTests()
	t.Cleanup(UnsafeResetForTests)
	t.Setenv(secretBoxEnvVar, "no-es-base64!!")
	require.False(t, Ready())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setMasterKey(t)

	ct, err := Encrypt("mi-client-secret")
	require.NoError(t, err)
	require.Contains(t, ct, sep)
	require.NotContains(t, ct, "mi-client-secret")

	pt, err := Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "mi-client-secret", pt)
}

func TestDecryptRejectsTampering(t *testing.T) {
	setMasterKey(t)

	ct, err := Encrypt("secreto")
	require.NoError(t, err)

	_, err = Decrypt(ct + "AA")
	require.Error(t, err)
}

// Valores sin separador pasan tal cual (secrets en claro en dev).
func TestMaybeDecryptPassthrough(t *testing.T) {
	UnsafeResetForTests()
	t.Cleanup(UnsafeResetForTests)

	v, err := MaybeDecrypt("plaintext-secret")
	require.NoError(t, err)
	require.Equal(t, "plaintext-secret", v)
}

func TestMaybeDecryptEncrypted(t *testing.T) {
	setMasterKey(t)

	ct, err := Encrypt("cifrado")
	require.NoError(t, err)

	v, err := MaybeDecrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "cifrado", v)
}
