// Package jwt emite los session tokens que el server entrega tras un
// login exitoso. Firma EdDSA con una clave activa en memoria; la pública
// se publica como JWKS.
package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// KeySet mantiene una sola clave activa. Rotación queda para el keystore
// persistente.
type KeySet struct {
	Priv ed25519.PrivateKey
	Pub  ed25519.PublicKey
	KID  string
	Alg  string // "EdDSA"
}

// NewEd25519 genera una clave Ed25519 con el KID dado. Si
// IDBRIDGE_SESSION_SEED está seteado (base64, 32 bytes) la clave es
// determinista entre reinicios.
func NewEd25519(kid string) (*KeySet, error) {
	if seed := os.Getenv("IDBRIDGE_SESSION_SEED"); seed != "" {
		raw, err := base64.StdEncoding.DecodeString(seed)
		if err != nil || len(raw) != ed25519.SeedSize {
			return nil, errors.New("jwt: IDBRIDGE_SESSION_SEED inválido (base64 de 32 bytes)")
		}
		priv := ed25519.NewKeyFromSeed(raw)
		return &KeySet{Priv: priv, Pub: priv.Public().(ed25519.PublicKey), KID: kid, Alg: "EdDSA"}, nil
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeySet{Priv: priv, Pub: pub, KID: kid, Alg: "EdDSA"}, nil
}

// Issuer firma session tokens con la clave activa.
type Issuer struct {
	Iss        string
	Keys       *KeySet
	SessionTTL time.Duration
}

func NewIssuer(iss string, ks *KeySet, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{Iss: iss, Keys: ks, SessionTTL: ttl}
}

// SessionClaims son los claims propios del session token.
type SessionClaims struct {
	Realm     string `json:"realm"`
	Provider  string `json:"provider"`
	Authority string `json:"authority"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
}

// SignSession emite el token de sesión para un user resuelto.
func (i *Issuer) SignSession(sub string, sc SessionClaims) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.SessionTTL)

	claims := jwtv5.MapClaims{
		"iss":       i.Iss,
		"sub":       sub,
		"iat":       now.Unix(),
		"nbf":       now.Unix(),
		"exp":       exp.Unix(),
		"realm":     sc.Realm,
		"provider":  sc.Provider,
		"authority": sc.Authority,
	}
	if sc.Username != "" {
		claims["username"] = sc.Username
	}
	if sc.Email != "" {
		claims["email"] = sc.Email
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.Keys.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.Keys.Priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Keyfunc elige la pubkey por 'kid' del token.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" && kid != i.Keys.KID {
			return nil, fmt.Errorf("jwt: kid desconocido %q", kid)
		}
		return i.Keys.Pub, nil
	}
}

// Parse valida un session token emitido por este issuer.
func (i *Issuer) Parse(raw string) (jwtv5.MapClaims, error) {
	claims := jwtv5.MapClaims{}
	_, err := jwtv5.ParseWithClaims(raw, claims, i.Keyfunc(),
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(i.Iss),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ----- JWKS (serialización) -----

type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	X   string `json:"x"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSJSON devuelve el JWKS (solo la pública) en JSON.
func (k *KeySet) JWKSJSON() []byte {
	j := jwks{
		Keys: []jwk{{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: k.KID,
			Alg: k.Alg,
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(k.Pub),
		}},
	}
	b, _ := json.Marshal(j)
	return b
}
