package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/bytebot-auth/internal/models"
)

// UserByRefreshToken находит владельца refresh-токена.
func (s *Storage) UserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	const op = "storage.postgres.UserByRefreshToken"

	return s.userWhere(ctx, op, `id = (SELECT user_id FROM refresh_tokens WHERE token = $1)`, token)
}

// AppendRefreshToken добавляет токен пользователю.
// Несуществующий пользователь: storage.ErrNotFound (нарушение внешнего ключа).
func (s *Storage) AppendRefreshToken(ctx context.Context, userID uuid.UUID, token models.RefreshToken) error {
	const op = "storage.postgres.AppendRefreshToken"

	if err := insertRefreshToken(ctx, s.db, userID, token); err != nil {
		return fmt.Errorf("%s: %w", op, mapWriteError(err))
	}

	return nil
}

// RemoveRefreshToken удаляет токен; false, если его не было.
func (s *Storage) RemoveRefreshToken(ctx context.Context, token string) (bool, error) {
	const op = "storage.postgres.RemoveRefreshToken"

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteExpiredRefreshTokens удаляет токены с expires_at <= now.
// Возвращает число удалённых токенов.
func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredRefreshTokens"

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Storage) loadRefreshTokens(ctx context.Context, u *models.User) error {
	rows, err := s.db.Query(ctx, `
        SELECT token, issued_at, expires_at
        FROM refresh_tokens
        WHERE user_id = $1
        ORDER BY id
    `, u.ID)
	if err != nil {
		return fmt.Errorf("load refresh tokens: %w", err)
	}

	tokens, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var rt models.RefreshToken
		if err := row.Scan(&rt.Token, &rt.IssuedAt, &rt.ExpiresAt); err != nil {
			return rt, err
		}
		rt.IssuedAt = rt.IssuedAt.UTC()
		rt.ExpiresAt = rt.ExpiresAt.UTC()

		return rt, nil
	})
	if err != nil {
		return fmt.Errorf("load refresh tokens: %w", err)
	}

	u.RefreshTokens = tokens

	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRefreshToken(ctx context.Context, db execer, userID uuid.UUID, rt models.RefreshToken) error {
	_, err := db.Exec(ctx, `
        INSERT INTO refresh_tokens (user_id, token, issued_at, expires_at)
        VALUES ($1, $2, $3, $4)
    `, userID, rt.Token, rt.IssuedAt, rt.ExpiresAt)

	return err
}
