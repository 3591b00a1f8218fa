package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
)

const userColumns = `
    id, email, password_hash, first_name, last_name, image,
    is_online, last_seen, mfa_enabled, mfa_secret, mfa_method,
    created_at, updated_at`

// CreateUser сохраняет нового пользователя.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.CreateUser"

	if err := user.MFA.Validate(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrInvalidRecord, err)
	}

	if err := user.HashPendingPassword(s.hasher); err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO users (` + userColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `

	_, err = tx.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Image,
		user.IsOnline,
		user.LastSeen,
		user.MFA.Enabled,
		user.MFA.Secret,
		string(mfaMethod(user.MFA)),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapWriteError(err))
	}

	for _, rt := range user.RefreshTokens {
		if err := insertRefreshToken(ctx, tx, user.ID, rt); err != nil {
			return fmt.Errorf("%s: %w", op, mapWriteError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по точному совпадению email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	return s.userWhere(ctx, op, `email = $1`, email)
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	return s.userWhere(ctx, op, `id = $1`, id)
}

// SaveUser обновляет профиль, пароль и MFA-состояние пользователя.
// Таблица refresh_tokens не затрагивается.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	if err := user.MFA.Validate(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrInvalidRecord, err)
	}

	if err := user.HashPendingPassword(s.hasher); err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}

	query := `
        UPDATE users
        SET email = $2, password_hash = $3, first_name = $4, last_name = $5, image = $6,
            mfa_enabled = $7, mfa_secret = $8, mfa_method = $9, updated_at = $10
        WHERE id = $1
    `

	tag, err := s.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Image,
		user.MFA.Enabled,
		user.MFA.Secret,
		string(mfaMethod(user.MFA)),
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapWriteError(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UpdatePresence выставляет is_online/last_seen и возвращает обновлённую запись.
func (s *Storage) UpdatePresence(ctx context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*models.User, error) {
	const op = "storage.postgres.UpdatePresence"

	query := `
        UPDATE users SET is_online = $2, last_seen = $3
        WHERE id = $1
        RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query, id, online, lastSeen))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.loadRefreshTokens(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (s *Storage) userWhere(ctx context.Context, op, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	u, err := scanUser(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.loadRefreshTokens(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u      models.User
		method string
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Image,
		&u.IsOnline,
		&u.LastSeen,
		&u.MFA.Enabled,
		&u.MFA.Secret,
		&method,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.MFA.PrimaryMethod = models.MFAMethod(method)
	u.LastSeen = u.LastSeen.UTC()
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()

	return &u, nil
}

func mfaMethod(m models.MFA) models.MFAMethod {
	if m.PrimaryMethod == "" {
		return models.MFAMethodNone
	}

	return m.PrimaryMethod
}

// mapWriteError переводит ошибки PostgreSQL в ошибки слоя хранилища.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return storage.ErrAlreadyExists
		case pgerrcode.ForeignKeyViolation:
			return storage.ErrNotFound
		case pgerrcode.CheckViolation:
			return fmt.Errorf("%w: %s", storage.ErrInvalidRecord, pgErr.ConstraintName)
		}
	}

	return err
}
