package domain

import "fmt"

// Status es el estado de una cuenta.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusLocked   Status = "LOCKED"
)

// IsValid retorna true si el status es conocido.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusLocked:
		return true
	}
	return false
}

// CheckTransition valida una transición de estado de cuenta.
// Reglas: ACTIVE⇄LOCKED, ACTIVE→INACTIVE; desde INACTIVE solo se
// permite volver a ACTIVE. Transiciones ilegales se rechazan con error
// descriptivo, nunca se clampean en silencio.
func (s Status) CheckTransition(to Status) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(to))
	}
	if s == to {
		return nil
	}
	switch s {
	case StatusActive:
		// LOCKED e INACTIVE alcanzables desde ACTIVE
		return nil
	case StatusLocked:
		if to == StatusActive {
			return nil
		}
		return fmt.Errorf("%w: LOCKED -> %s (solo LOCKED -> ACTIVE)", ErrInvalidTransition, to)
	case StatusInactive:
		if to == StatusActive {
			return nil
		}
		return fmt.Errorf("%w: INACTIVE -> %s (solo INACTIVE -> ACTIVE)", ErrInvalidTransition, to)
	}
	return fmt.Errorf("%w: estado origen desconocido %q", ErrInvalidTransition, string(s))
}

// CredentialStatus es el estado de una credencial.
type CredentialStatus string

const (
	CredentialActive   CredentialStatus = "ACTIVE"
	CredentialInactive CredentialStatus = "INACTIVE"
	CredentialRevoked  CredentialStatus = "REVOKED"
)

// CheckTransition valida una transición de credencial.
// REVOKED es terminal: revocar una credencial ya revocada es no-op (el
// caller lo maneja como idempotente), cualquier otra salida de REVOKED
// es ilegal.
func (s CredentialStatus) CheckTransition(to CredentialStatus) error {
	switch to {
	case CredentialActive, CredentialInactive, CredentialRevoked:
	default:
		return fmt.Errorf("%w: unknown credential status %q", ErrInvalidTransition, string(to))
	}
	if s == to {
		return nil
	}
	if s == CredentialRevoked {
		return fmt.Errorf("%w: REVOKED es terminal", ErrInvalidTransition)
	}
	return nil
}
