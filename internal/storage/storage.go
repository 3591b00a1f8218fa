// storage описывает контракт хранилища учётных записей (Credential Store).
//
// Реализации: storage/mongo (по умолчанию) и storage/postgres.
// Все изменения набора refresh-токенов выполняются одной атомарной операцией
// хранилища, поэтому параллельные входы одного пользователя не теряют записи.
package storage

//go:generate mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
)

var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists: нарушение уникальности (email).
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidRecord: запись нарушает инварианты модели (например, MFA).
	ErrInvalidRecord = errors.New("invalid record")
)

// UserStorage выполняет операции над учётными записями.
type UserStorage interface {
	// CreateUser создаёт пользователя; пароль, заданный через SetPassword, хэшируется перед записью.
	CreateUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (точное совпадение).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// SaveUser сохраняет профиль и MFA-состояние; набор refresh-токенов не трогает.
	SaveUser(ctx context.Context, user *models.User) error
	// UpdatePresence обновляет isOnline/lastSeen и возвращает обновлённую запись.
	UpdatePresence(ctx context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*models.User, error)
}

// RefreshTokenStorage управляет набором refresh-токенов пользователя.
type RefreshTokenStorage interface {
	// UserByRefreshToken находит владельца токена по точному совпадению строки.
	UserByRefreshToken(ctx context.Context, token string) (*models.User, error)
	// AppendRefreshToken атомарно добавляет токен в набор пользователя.
	AppendRefreshToken(ctx context.Context, userID uuid.UUID, token models.RefreshToken) error
	// RemoveRefreshToken атомарно удаляет токен из набора владельца.
	// Возвращает false, если токен не найден.
	RemoveRefreshToken(ctx context.Context, token string) (bool, error)
	// DeleteExpiredRefreshTokens удаляет все токены с ExpiresAt <= now
	// и возвращает число затронутых записей.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Storage задаёт контракт работы с хранилищем.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
