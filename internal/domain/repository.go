package domain

import "context"

// UserRepository define operaciones sobre usuarios locales.
type UserRepository interface {
	// GetByID busca un usuario por UUID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*User, error)

	// Create crea un usuario nuevo.
	// Retorna ErrAlreadyRegistered si el UUID ya existe.
	Create(ctx context.Context, u *User) error
}

// AccountRepository define operaciones sobre cuentas upstream.
type AccountRepository interface {
	// Get busca una cuenta por {repositoryID, accountID}.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, repositoryID, accountID string) (*Account, error)

	// Save crea o actualiza una cuenta (upsert por {repositoryID, accountID}).
	Save(ctx context.Context, a *Account) error

	// SetUserID vincula la cuenta a un user local.
	SetUserID(ctx context.Context, repositoryID, accountID, userID string) error

	// SetStatus actualiza el estado. La legalidad de la transición la valida
	// el caller (user.Lifecycle); el repo persiste tal cual.
	SetStatus(ctx context.Context, repositoryID, accountID string, st Status) error
}

// CredentialRepository define operaciones sobre credenciales.
type CredentialRepository interface {
	// Get busca una credencial por ID. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, repositoryID, id string) (*Credential, error)

	// Save crea o actualiza una credencial.
	Save(ctx context.Context, c *Credential) error
}
