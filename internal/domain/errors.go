package domain

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (duplicado, versión obsoleta).
	ErrConflict = errors.New("conflict")

	// ErrAlreadyRegistered indica colisión de UUID en creación de usuario.
	// Debe fallar fuerte, nunca sobreescribir en silencio.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrInvalidTransition indica una transición de estado ilegal.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidInput indica datos de entrada inválidos.
	ErrInvalidInput = errors.New("invalid input")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
