// Package domain define los tipos persistidos y las interfaces de repositorio.
package domain

import "time"

// User representa la identidad local. Keyed por UUID; nunca se borra
// implícitamente (eliminación es acción de admin fuera de este core).
type User struct {
	ID            string // uuid
	Realm         string
	Username      string
	Email         string
	EmailVerified bool
	CreatedAt     time.Time
}

// Account representa una cuenta upstream vinculada (o no) a un User.
// Keyed por {RepositoryID, AccountID}. RepositoryID defaultea al realm.
type Account struct {
	RepositoryID  string
	AccountID     string // subject upstream
	UUID          string // identidad global inmutable
	UserID        string // user local; vacío hasta link
	Realm         string
	Authority     string
	Provider      string
	Username      string
	Email         string
	EmailVerified bool
	Status        Status
	Attributes    map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Credential representa una credencial de usuario (password, api-key).
type Credential struct {
	ID           string
	RepositoryID string
	UserID       string
	Kind         string // "password" | "apikey"
	SecretHash   string
	Status       CredentialStatus
	CreatedAt    time.Time
	RevokedAt    *time.Time
}
