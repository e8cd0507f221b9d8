package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sample-app/internal/domain"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailConflict = errors.New("email already in use")
)

const uniqueViolation = "23505"

// emailUniqueIndex es el indice unico de 00001_create_users.sql.
const emailUniqueIndex = "users_email_lower_idx"

// UserRepository define el contrato de persistencia para usuarios.
// Create y Update deben garantizar atomicamente la unicidad del email sin
// distinguir mayusculas, devolviendo ErrEmailConflict.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (string, error)
	Update(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	ExistsWithEmail(ctx context.Context, email, excludingID string) (bool, error)
}

// DBTX es el subconjunto de pgxpool.Pool (y pgx.Tx) usado por el repositorio.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgUserRepository implementa UserRepository usando pgx. La unicidad la
// impone el indice users_email_lower_idx sobre lower(email).
type PgUserRepository struct {
	db DBTX
}

func NewPgUserRepository(db DBTX) *PgUserRepository {
	return &PgUserRepository{db: db}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) (string, error) {
	const query = `
		INSERT INTO users (id, name, email, salt, encrypted_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	id := uuid.NewString()
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	_, err := r.db.Exec(ctx, query,
		id,
		user.Name,
		strings.TrimSpace(user.Email),
		user.Salt,
		user.EncryptedPassword,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return "", mapWriteError(err)
	}
	return id, nil
}

func (r *PgUserRepository) Update(ctx context.Context, user domain.User) error {
	const query = `
		UPDATE users
		SET name = $2, email = $3, salt = $4, encrypted_password = $5, updated_at = $6
		WHERE id = $1
	`
	if _, err := uuid.Parse(user.ID); err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, query,
		user.ID,
		user.Name,
		strings.TrimSpace(user.Email),
		user.Salt,
		user.EncryptedPassword,
		time.Now().UTC(),
	)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id::text, name, email, salt, encrypted_password, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, ErrNotFound
	}
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT id::text, name, email, salt, encrypted_password, created_at, updated_at
		FROM users
		WHERE lower(email) = lower($1)
	`
	return r.scanOne(r.db.QueryRow(ctx, query, strings.TrimSpace(email)))
}

func (r *PgUserRepository) ExistsWithEmail(ctx context.Context, email, excludingID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE lower(email) = lower($1) AND ($2 = '' OR id::text <> $2)
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, strings.TrimSpace(email), excludingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *PgUserRepository) scanOne(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Salt,
		&u.EncryptedPassword,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == emailUniqueIndex {
		return ErrEmailConflict
	}
	return err
}
