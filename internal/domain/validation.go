package domain

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Violation identifica una regla de validacion incumplida.
type Violation string

const (
	NameRequired                 Violation = "NameRequired"
	NameTooLong                  Violation = "NameTooLong"
	EmailInvalid                 Violation = "EmailInvalid"
	EmailTaken                   Violation = "EmailTaken"
	PasswordRequired             Violation = "PasswordRequired"
	PasswordTooShort             Violation = "PasswordTooShort"
	PasswordTooLong              Violation = "PasswordTooLong"
	PasswordConfirmationMismatch Violation = "PasswordConfirmationMismatch"
)

const (
	NameMaxLength     = 50
	PasswordMinLength = 6
	PasswordMaxLength = 40
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Violations es un conjunto ordenado y sin duplicados.
type Violations []Violation

// NewViolations normaliza vs: ordena y elimina duplicados.
func NewViolations(vs ...Violation) Violations {
	if len(vs) == 0 {
		return nil
	}
	seen := make(map[Violation]struct{}, len(vs))
	out := make(Violations, 0, len(vs))
	for _, v := range vs {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (vs Violations) Has(v Violation) bool {
	for _, got := range vs {
		if got == v {
			return true
		}
	}
	return false
}

func (vs Violations) Empty() bool {
	return len(vs) == 0
}

func (vs Violations) Strings() []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

// EmailChecker consulta si otro usuario ya usa el email (sin distinguir mayusculas).
type EmailChecker interface {
	ExistsWithEmail(ctx context.Context, email, excludingID string) (bool, error)
}

func ValidateName(name string) Violations {
	name = strings.TrimSpace(name)
	var out []Violation
	if name == "" {
		out = append(out, NameRequired)
	}
	if utf8.RuneCountInString(name) > NameMaxLength {
		out = append(out, NameTooLong)
	}
	return NewViolations(out...)
}

func ValidateEmailFormat(email string) Violations {
	email = strings.TrimSpace(email)
	if email == "" || !emailPattern.MatchString(email) {
		return Violations{EmailInvalid}
	}
	return nil
}

// ValidateCredentials aplica las reglas de password y confirmacion.
func ValidateCredentials(change CredentialChange) Violations {
	var out []Violation
	n := utf8.RuneCountInString(change.Password)
	switch {
	case change.Password == "":
		out = append(out, PasswordRequired)
	case n < PasswordMinLength:
		out = append(out, PasswordTooShort)
	case n > PasswordMaxLength:
		out = append(out, PasswordTooLong)
	}
	if change.PasswordConfirmation != change.Password {
		out = append(out, PasswordConfirmationMismatch)
	}
	return NewViolations(out...)
}

// ValidateUser evalua todas las reglas sin cortar en la primera falla.
// El chequeo de unicidad se omite si el email ya es invalido o checker es nil;
// un error solo indica una falla del colaborador.
func ValidateUser(ctx context.Context, user User, change *CredentialChange, checker EmailChecker) (Violations, error) {
	var out []Violation
	out = append(out, ValidateName(user.Name)...)

	emailViolations := ValidateEmailFormat(user.Email)
	out = append(out, emailViolations...)
	if emailViolations.Empty() && checker != nil {
		taken, err := checker.ExistsWithEmail(ctx, strings.TrimSpace(user.Email), user.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			out = append(out, EmailTaken)
		}
	}

	if change != nil {
		out = append(out, ValidateCredentials(*change)...)
	}
	return NewViolations(out...), nil
}
