// Package spid adapta el perfil SPID (Sistema Pubblico di Identità
// Digitale) sobre el adapter SAML genérico. SPID es SAML con reglas extra:
// ForceAuthn obligatorio, NameID transient y un AuthnContext mínimo por
// nivel (SpidL1..SpidL3).
package spid

import (
	"fmt"

	crewsaml "github.com/crewjam/saml"

	"github.com/dropDatabas3/idbridge/internal/authority"
	idpsaml "github.com/dropDatabas3/idbridge/internal/idp/saml"
)

const comparisonMinimum = "minimum"

// LevelClassRef devuelve la class ref SPID para el nivel dado. Fuera de
// rango cae a SpidL1.
func LevelClassRef(level int) string {
	if level < 1 || level > 3 {
		level = 1
	}
	return fmt.Sprintf("https://www.spid.gov.it/SpidL%d", level)
}

// New arma el adapter SPID.
func New() *idpsaml.Adapter {
	return idpsaml.NewWithOptions(idpsaml.Options{
		Authority: authority.SPID,
		Customize: customizeRequest,
	})
}

func customizeRequest(req *crewsaml.AuthnRequest, cfg *authority.ProviderConfig) {
	force := true
	req.ForceAuthn = &force

	format := string(crewsaml.TransientNameIDFormat)
	allowCreate := true
	req.NameIDPolicy = &crewsaml.NameIDPolicy{
		Format:      &format,
		AllowCreate: &allowCreate,
	}

	req.RequestedAuthnContext = &crewsaml.RequestedAuthnContext{
		Comparison:           comparisonMinimum,
		AuthnContextClassRef: LevelClassRef(cfg.SAML.SPIDLevel),
	}
}
