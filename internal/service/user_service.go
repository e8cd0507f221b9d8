package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sample-app/internal/domain"
	"sample-app/internal/repository"
)

// UserService coordina reglas de negocio para usuarios.
type UserService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	creds    *CredentialManager
	sessions SessionRevoker
	// decoy iguala el costo de un login fallido sin usuario.
	decoy func(password string)
}

// SessionRevoker cierra las sesiones abiertas de un usuario.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, creds *CredentialManager) *UserService {
	return NewUserServiceWithSessions(logger, users, creds, nil)
}

// NewUserServiceWithSessions revoca las sesiones del usuario cada vez que
// cambia su password.
func NewUserServiceWithSessions(logger *zap.Logger, users repository.UserRepository, creds *CredentialManager, sessions SessionRevoker) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &UserService{
		logger:   logger,
		users:    users,
		creds:    creds,
		sessions: sessions,
		decoy:    func(string) {},
	}
	if creds != nil {
		if salt, err := creds.GenerateSalt(); err == nil {
			svc.decoy = func(password string) { _ = creds.Encrypt(password, salt) }
		}
	}
	return svc
}

var (
	ErrUserNotFound    = errors.New("user not found")
	errServiceNotReady = errors.New("user service not configured")
)

// ValidationError agrupa todas las violaciones de una operacion.
type ValidationError struct {
	Violations domain.Violations
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations.Strings(), ", ")
}

type CreateUserInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// UpdateUserInput: los campos nil no se modifican.
type UpdateUserInput struct {
	Name        *string
	Email       *string
	Credentials *domain.CredentialChange
}

func (s *UserService) ready() error {
	if s.users == nil || s.creds == nil {
		return errServiceNotReady
	}
	return nil
}

func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (domain.User, error) {
	if err := s.ready(); err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.TrimSpace(input.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	change := domain.CredentialChange{
		Password:             input.Password,
		PasswordConfirmation: input.PasswordConfirmation,
	}

	vs, err := user.Validate(ctx, s.users, &change)
	if err != nil {
		return domain.User{}, fmt.Errorf("validate user: %w", err)
	}
	if !vs.Empty() {
		return domain.User{}, &ValidationError{Violations: vs}
	}
	if err := s.applyCredentials(&user, change); err != nil {
		return domain.User{}, err
	}

	id, err := s.users.Create(ctx, user)
	if err != nil {
		return domain.User{}, s.mapWriteError(err, user.Email)
	}
	user.ID = id
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (domain.User, error) {
	if err := s.ready(); err != nil {
		return domain.User{}, err
	}
	user, err := s.users.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateUser revalida el usuario completo; el chequeo de unicidad excluye al
// propio usuario. Con Credentials se rota salt y password y se cierran las
// sesiones abiertas.
func (s *UserService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		user.Email = strings.TrimSpace(*input.Email)
	}

	vs, err := user.Validate(ctx, s.users, input.Credentials)
	if err != nil {
		return domain.User{}, fmt.Errorf("validate user: %w", err)
	}
	if !vs.Empty() {
		return domain.User{}, &ValidationError{Violations: vs}
	}
	if input.Credentials != nil {
		if err := s.applyCredentials(&user, *input.Credentials); err != nil {
			return domain.User{}, err
		}
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, s.mapWriteError(err, user.Email)
	}
	if input.Credentials != nil && s.sessions != nil {
		if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			return domain.User{}, fmt.Errorf("revoke sessions: %w", err)
		}
	}
	return user, nil
}

// Authenticate devuelve (user, true, nil) solo si email y password coinciden.
// Email desconocido y password incorrecto son indistinguibles: (zero, false, nil).
// Solo las fallas del repositorio devuelven error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (domain.User, bool, error) {
	if err := s.ready(); err != nil {
		return domain.User{}, false, err
	}

	email = strings.TrimSpace(email)
	if email == "" {
		s.decoy(password)
		return domain.User{}, false, nil
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.decoy(password)
			return domain.User{}, false, nil
		}
		return domain.User{}, false, fmt.Errorf("find user by email: %w", err)
	}
	if !s.creds.Verify(user, password) {
		return domain.User{}, false, nil
	}
	return user, true, nil
}

func (s *UserService) applyCredentials(user *domain.User, change domain.CredentialChange) error {
	vs, err := user.SetPassword(s.creds, change)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if !vs.Empty() {
		return &ValidationError{Violations: vs}
	}
	return nil
}

func (s *UserService) mapWriteError(err error, email string) error {
	if errors.Is(err, repository.ErrEmailConflict) {
		s.logger.Info("email uniqueness enforced at write", zap.String("email", email))
		return &ValidationError{Violations: domain.Violations{domain.EmailTaken}}
	}
	return fmt.Errorf("persist user: %w", err)
}
