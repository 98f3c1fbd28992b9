// Package flow implementa la máquina de estados del login federado:
// emisión del authorization request, consumo single-use del state y
// procesamiento del callback hasta principal autenticado.
package flow

import "fmt"

// ErrorKey clasifica las fallas de autenticación. Es lo único que llega
// al usuario final (query param en el redirect a la página de error);
// los detalles upstream quedan en logs y auditoría.
type ErrorKey string

const (
	// KeyInvalidRequest: callback malformado, state desconocido o
	// reusado, provider inconsistente con el request emitido.
	KeyInvalidRequest ErrorKey = "invalid_request"

	// KeyAccessDenied: el IdP upstream respondió con error (el usuario
	// canceló, el IdP rechazó).
	KeyAccessDenied ErrorKey = "access_denied"

	// KeyUnauthorized: autenticó upstream pero acá no pasa (cuenta
	// bloqueada o inactiva, sin cuenta y sin alta automática, script de
	// autorización devolvió false).
	KeyUnauthorized ErrorKey = "unauthorized"

	// KeyUsernameNotFound: el atributo configurado como subject no vino
	// en la respuesta del provider.
	KeyUsernameNotFound ErrorKey = "username_not_found"

	// KeyProviderCommunication: el token exchange con el IdP falló
	// (red, timeout, respuesta inválida).
	KeyProviderCommunication ErrorKey = "provider_communication_error"

	// KeyServerError: falla interna nuestra.
	KeyServerError ErrorKey = "server_error"
)

// AuthError es el error clasificado del pipeline. Key viaja al usuario,
// cause queda para logs.
type AuthError struct {
	Key   ErrorKey
	cause error
}

func NewAuthError(key ErrorKey, cause error) *AuthError {
	return &AuthError{Key: key, cause: cause}
}

func (e *AuthError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Key, e.cause)
	}
	return string(e.Key)
}

func (e *AuthError) Unwrap() error { return e.cause }
