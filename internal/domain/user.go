package domain

import (
	"context"
	"time"
)

// User es la entidad de identidad con su material de credenciales derivado.
type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Salt              string    `json:"-"`
	EncryptedPassword string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CredentialChange transporta los campos transitorios de password.
// Nunca se persiste.
type CredentialChange struct {
	Password             string
	PasswordConfirmation string
}

// Credentials deriva y verifica el password de un usuario.
type Credentials interface {
	SetPassword(user *User, change CredentialChange) (Violations, error)
	Verify(user User, candidate string) bool
}

// HasCredentials indica si el usuario tiene salt y password derivado.
func (u User) HasCredentials() bool {
	return u.Salt != "" && u.EncryptedPassword != ""
}

// Validate corre todas las reglas de campo. change puede ser nil.
func (u *User) Validate(ctx context.Context, checker EmailChecker, change *CredentialChange) (Violations, error) {
	return ValidateUser(ctx, *u, change, checker)
}

// SetPassword delega la derivacion en creds; no modifica u si hay violaciones.
func (u *User) SetPassword(creds Credentials, change CredentialChange) (Violations, error) {
	return creds.SetPassword(u, change)
}
