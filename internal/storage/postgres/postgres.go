// postgres реализует storage.Storage поверх PostgreSQL (pgx).
//
// Схема создаётся встроенными goose-миграциями при подключении.
// Refresh-токены лежат в отдельной таблице, поэтому добавление и удаление
// токена: одиночный INSERT/DELETE без перезаписи строки пользователя.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
	"github.com/pribylovaa/bytebot-auth/internal/storage/postgres/migrations"
)

type Storage struct {
	db     *pgxpool.Pool
	hasher models.PasswordHasher
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)

// New создает новое подключение к PostgreSQL и применяет миграции.
func New(ctx context.Context, dbURL string, hasher models.PasswordHasher) (*Storage, error) {
	const op = "storage.postgres.New"

	if hasher == nil {
		return nil, fmt.Errorf("%s: nil password hasher", op)
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db, hasher: hasher}, nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() {
	s.db.Close()
}

// migrate применяет встроенные миграции через database/sql-обёртку над пулом.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}
