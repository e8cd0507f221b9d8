package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"sample-app/internal/domain"
	"sample-app/internal/repository"
)

// racingUserRepo simula perder la carrera: el pre-chequeo no ve al otro
// usuario pero la escritura choca con el indice unico.
type racingUserRepo struct {
	*repository.MemoryUserRepository
}

func (r racingUserRepo) ExistsWithEmail(context.Context, string, string) (bool, error) {
	return false, nil
}

type failingUserRepo struct {
	*repository.MemoryUserRepository
	err error
}

func (r failingUserRepo) FindByEmail(context.Context, string) (domain.User, error) {
	return domain.User{}, r.err
}

func (r failingUserRepo) Create(context.Context, domain.User) (string, error) {
	return "", r.err
}

func newTestUserService(t *testing.T, repo repository.UserRepository) *UserService {
	t.Helper()
	return NewUserService(zap.NewNop(), repo, newTestCredentialManager(t))
}

func validInput() CreateUserInput {
	return CreateUserInput{
		Name:                 "Example User",
		Email:                "user@example.com",
		Password:             "foobar",
		PasswordConfirmation: "foobar",
	}
}

func violationsOf(t *testing.T, err error) domain.Violations {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	return verr.Violations
}

func TestUserServiceCreateUser_Success(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	svc := newTestUserService(t, repo)

	user, err := svc.CreateUser(context.Background(), validInput())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if user.Salt == "" || user.EncryptedPassword == "" || user.EncryptedPassword == "foobar" {
		t.Fatalf("expected derived credentials, got %+v", user)
	}

	stored, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("expected user stored, got %v", err)
	}
	if stored.EncryptedPassword != user.EncryptedPassword {
		t.Fatalf("expected stored credentials to match")
	}
}

func TestUserServiceCreateUser_ReportsAllViolations(t *testing.T) {
	svc := newTestUserService(t, repository.NewMemoryUserRepository())

	_, err := svc.CreateUser(context.Background(), CreateUserInput{
		Name:                 strings.Repeat("a", 51),
		Email:                "user_at_foo.org",
		Password:             "12345",
		PasswordConfirmation: "54321",
	})
	vs := violationsOf(t, err)
	for _, want := range []domain.Violation{domain.NameTooLong, domain.EmailInvalid, domain.PasswordTooShort, domain.PasswordConfirmationMismatch} {
		if !vs.Has(want) {
			t.Fatalf("expected %s in %v", want, vs)
		}
	}
}

func TestUserServiceCreateUser_DuplicateEmailUpToCase(t *testing.T) {
	svc := newTestUserService(t, repository.NewMemoryUserRepository())
	input := validInput()
	input.Email = "EXAMPLE@EXAMPLE.COM"
	if _, err := svc.CreateUser(context.Background(), input); err != nil {
		t.Fatalf("create first user: %v", err)
	}

	input.Email = "example@example.com"
	_, err := svc.CreateUser(context.Background(), input)
	if vs := violationsOf(t, err); !vs.Has(domain.EmailTaken) {
		t.Fatalf("expected EmailTaken, got %v", vs)
	}
}

func TestUserServiceCreateUser_ConflictAtWriteMapsToEmailTaken(t *testing.T) {
	mem := repository.NewMemoryUserRepository()
	if _, err := mem.Create(context.Background(), domain.User{Email: "a@x.com"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestUserService(t, racingUserRepo{mem})

	input := validInput()
	input.Email = "A@x.com"
	_, err := svc.CreateUser(context.Background(), input)
	if vs := violationsOf(t, err); !vs.Has(domain.EmailTaken) {
		t.Fatalf("expected EmailTaken, got %v", vs)
	}
}

func TestUserServiceCreateUser_PropagatesRepositoryErrors(t *testing.T) {
	boom := errors.New("connection refused")
	svc := newTestUserService(t, failingUserRepo{repository.NewMemoryUserRepository(), boom})

	_, err := svc.CreateUser(context.Background(), validInput())
	if !errors.Is(err, boom) {
		t.Fatalf("expected repository error, got %v", err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Fatalf("repository errors must not become validation errors")
	}
}

func TestUserServiceCreateUser_ConcurrentCaseEquivalentEmails(t *testing.T) {
	svc := newTestUserService(t, repository.NewMemoryUserRepository())
	emails := []string{"A@x.com", "a@x.com"}

	var wg sync.WaitGroup
	errs := make([]error, len(emails))
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			input := validInput()
			input.Email = email
			_, errs[i] = svc.CreateUser(context.Background(), input)
		}(i, email)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		if vs := violationsOf(t, err); !vs.Has(domain.EmailTaken) {
			t.Fatalf("expected EmailTaken, got %v", vs)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
}

func TestUserServiceAuthenticate(t *testing.T) {
	svc := newTestUserService(t, repository.NewMemoryUserRepository())
	created, err := svc.CreateUser(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	user, ok, err := svc.Authenticate(context.Background(), "user@example.com", "foobar")
	if err != nil || !ok {
		t.Fatalf("expected authentication success, got %v, %v", ok, err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected matching identity, got %s", user.ID)
	}

	if _, ok, err := svc.Authenticate(context.Background(), "USER@Example.com", "foobar"); err != nil || !ok {
		t.Fatalf("expected case-insensitive lookup, got %v, %v", ok, err)
	}

	wrong, ok, err := svc.Authenticate(context.Background(), "user@example.com", "wrong")
	if err != nil || ok || wrong.ID != "" {
		t.Fatalf("expected none for wrong password, got %+v, %v, %v", wrong, ok, err)
	}

	unknown, ok, err := svc.Authenticate(context.Background(), "unknown@x.com", "foobar")
	if err != nil || ok || unknown.ID != "" {
		t.Fatalf("expected none for unknown email, got %+v, %v, %v", unknown, ok, err)
	}
}

func TestUserServiceAuthenticate_PropagatesRepositoryErrors(t *testing.T) {
	boom := errors.New("connection refused")
	svc := newTestUserService(t, failingUserRepo{repository.NewMemoryUserRepository(), boom})

	_, ok, err := svc.Authenticate(context.Background(), "user@example.com", "foobar")
	if ok || !errors.Is(err, boom) {
		t.Fatalf("expected repository error, got %v, %v", ok, err)
	}
}

func TestUserServiceUpdateUser(t *testing.T) {
	svc := newTestUserService(t, repository.NewMemoryUserRepository())
	other := validInput()
	other.Email = "other@example.com"
	if _, err := svc.CreateUser(context.Background(), other); err != nil {
		t.Fatalf("create other: %v", err)
	}
	created, err := svc.CreateUser(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	taken := "OTHER@example.com"
	_, err = svc.UpdateUser(context.Background(), created.ID, UpdateUserInput{Email: &taken})
	if vs := violationsOf(t, err); !vs.Has(domain.EmailTaken) {
		t.Fatalf("expected EmailTaken, got %v", vs)
	}

	sameUpcased := "USER@example.com"
	name := "Renamed"
	updated, err := svc.UpdateUser(context.Background(), created.ID, UpdateUserInput{Name: &name, Email: &sameUpcased})
	if err != nil {
		t.Fatalf("expected own email change to succeed, got %v", err)
	}
	if updated.Name != "Renamed" || updated.Salt != created.Salt {
		t.Fatalf("expected name change without credential rotation, got %+v", updated)
	}

	_, err = svc.UpdateUser(context.Background(), created.ID, UpdateUserInput{
		Credentials: &domain.CredentialChange{Password: "newpass", PasswordConfirmation: "newpasz"},
	})
	if vs := violationsOf(t, err); !vs.Has(domain.PasswordConfirmationMismatch) {
		t.Fatalf("expected PasswordConfirmationMismatch, got %v", vs)
	}

	updated, err = svc.UpdateUser(context.Background(), created.ID, UpdateUserInput{
		Credentials: &domain.CredentialChange{Password: "newpass", PasswordConfirmation: "newpass"},
	})
	if err != nil {
		t.Fatalf("password change: %v", err)
	}
	if updated.Salt == created.Salt {
		t.Fatalf("expected salt rotation on password change")
	}
	if _, ok, _ := svc.Authenticate(context.Background(), "user@example.com", "foobar"); ok {
		t.Fatalf("expected old password to stop working")
	}
	if _, ok, _ := svc.Authenticate(context.Background(), "user@example.com", "newpass"); !ok {
		t.Fatalf("expected new password to work")
	}
}

func TestUserServiceGetUser_NotFound(t *testing.T) {
	svc := newTestUserService(t, repository.NewMemoryUserRepository())
	if _, err := svc.GetUser(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.UpdateUser(context.Background(), "missing", UpdateUserInput{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_NotConfigured(t *testing.T) {
	svc := NewUserService(zap.NewNop(), nil, nil)
	if _, err := svc.CreateUser(context.Background(), validInput()); err == nil {
		t.Fatalf("expected error for unconfigured service")
	}
	if _, _, err := svc.Authenticate(context.Background(), "user@example.com", "foobar"); err == nil {
		t.Fatalf("expected error for unconfigured service")
	}
}

func TestUserServiceAuthenticate_EveryMissPaysTheHash(t *testing.T) {
	svc := newTestUserService(t, repository.NewMemoryUserRepository())
	if _, err := svc.CreateUser(context.Background(), validInput()); err != nil {
		t.Fatalf("create user: %v", err)
	}
	decoys := 0
	svc.decoy = func(string) { decoys++ }

	for _, email := range []string{"", "   ", "unknown@x.com"} {
		if _, ok, err := svc.Authenticate(context.Background(), email, "foobar"); ok || err != nil {
			t.Fatalf("email %q: expected none, got %v, %v", email, ok, err)
		}
	}
	if decoys != 3 {
		t.Fatalf("expected a decoy hash per missing user, got %d", decoys)
	}

	// con usuario existente el costo lo paga Verify
	if _, ok, _ := svc.Authenticate(context.Background(), "user@example.com", "wrong"); ok {
		t.Fatalf("expected wrong password to fail")
	}
	if decoys != 3 {
		t.Fatalf("expected no decoy for a known user, got %d", decoys)
	}
}

type recordingRevoker struct {
	revoked []string
	err     error
}

func (r *recordingRevoker) RevokeAllForUser(_ context.Context, userID string) error {
	r.revoked = append(r.revoked, userID)
	return r.err
}

func TestUserServiceUpdateUser_PasswordChangeRevokesSessions(t *testing.T) {
	revoker := &recordingRevoker{}
	svc := NewUserServiceWithSessions(zap.NewNop(), repository.NewMemoryUserRepository(), newTestCredentialManager(t), revoker)
	created, err := svc.CreateUser(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	name := "Renamed"
	if _, err := svc.UpdateUser(context.Background(), created.ID, UpdateUserInput{Name: &name}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if len(revoker.revoked) != 0 {
		t.Fatalf("expected no revocation without a password change, got %v", revoker.revoked)
	}

	_, err = svc.UpdateUser(context.Background(), created.ID, UpdateUserInput{
		Credentials: &domain.CredentialChange{Password: "newpass", PasswordConfirmation: "nope"},
	})
	if err == nil || len(revoker.revoked) != 0 {
		t.Fatalf("expected rejected change to keep sessions, got %v %v", err, revoker.revoked)
	}

	if _, err := svc.UpdateUser(context.Background(), created.ID, UpdateUserInput{
		Credentials: &domain.CredentialChange{Password: "newpass", PasswordConfirmation: "newpass"},
	}); err != nil {
		t.Fatalf("password change: %v", err)
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != created.ID {
		t.Fatalf("expected sessions of %s revoked, got %v", created.ID, revoker.revoked)
	}

	revoker.err = errors.New("redis down")
	_, err = svc.UpdateUser(context.Background(), created.ID, UpdateUserInput{
		Credentials: &domain.CredentialChange{Password: "another", PasswordConfirmation: "another"},
	})
	if !errors.Is(err, revoker.err) {
		t.Fatalf("expected revocation error surfaced, got %v", err)
	}
}
