// Package apple implementa Sign in with Apple: OIDC estándar salvo que el
// client secret es un JWT ES256 firmado con la key del developer team y que
// los scopes de perfil requieren response_mode=form_post.
package apple

import (
	"context"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/idbridge/internal/authority"
	"github.com/dropDatabas3/idbridge/internal/idp/oidc"
	"github.com/dropDatabas3/idbridge/internal/security/secretbox"
)

const (
	// Issuer es fijo para Apple; discovery corre contra este host.
	Issuer = "https://appleid.apple.com"

	// secretTTL: Apple acepta client secrets de hasta 6 meses; usamos una
	// vida corta porque se regenera por request.
	secretTTL = 5 * time.Minute
)

// New crea el adapter de Apple sobre el core OIDC.
func New() *oidc.Adapter {
	return oidc.NewWithOptions(oidc.Options{
		Authority:      authority.Apple,
		IssuerOverride: Issuer,
		Secret:         clientSecret,
		ExtraAuthParams: func(cfg *authority.ProviderConfig) map[string]string {
			// Con scopes name/email Apple exige form_post.
			for _, s := range cfg.OIDC.Scopes {
				if s == "name" || s == "email" {
					return map[string]string{"response_mode": "form_post"}
				}
			}
			return nil
		},
	})
}

// clientSecret genera el client secret JWT: ES256, iss=teamID, sub=clientID,
// aud=issuer de Apple, kid=key id del developer portal.
func clientSecret(_ context.Context, cfg *authority.ProviderConfig) (string, error) {
	pemKey, err := secretbox.MaybeDecrypt(cfg.OIDC.ApplePrivateKey)
	if err != nil {
		return "", fmt.Errorf("apple private key: %w", err)
	}
	key, err := jwtv5.ParseECPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return "", fmt.Errorf("apple private key parse: %w", err)
	}

	now := time.Now().UTC()
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, jwtv5.MapClaims{
		"iss": cfg.OIDC.AppleTeamID,
		"sub": cfg.OIDC.ClientID,
		"aud": Issuer,
		"iat": now.Unix(),
		"exp": now.Add(secretTTL).Unix(),
	})
	tk.Header["kid"] = cfg.OIDC.AppleKeyID

	signed, err := tk.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("apple client secret sign: %w", err)
	}
	return signed, nil
}
