// memory реализует storage.Storage в памяти процесса.
//
// Используется драйвером storage "memory" для локального запуска без БД
// и в тестах сервисного и HTTP-слоёв. Данные не переживают рестарт.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
)

// Storage: потокобезопасное in-memory хранилище учётных записей.
type Storage struct {
	mu     sync.Mutex
	hasher models.PasswordHasher
	users  map[uuid.UUID]*models.User
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)

// New создаёт пустое хранилище. hasher используется для hash-on-write.
func New(hasher models.PasswordHasher) *Storage {
	return &Storage{hasher: hasher, users: make(map[uuid.UUID]*models.User)}
}

// clone отдаёт наружу копию, чтобы вызывающий не менял состояние хранилища в обход мьютекса.
func clone(u *models.User) *models.User {
	c := *u
	c.RefreshTokens = append([]models.RefreshToken(nil), u.RefreshTokens...)

	return &c
}

func (s *Storage) CreateUser(_ context.Context, user *models.User) error {
	const op = "storage.memory.CreateUser"

	if err := user.MFA.Validate(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrInvalidRecord, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	for _, other := range s.users {
		if other.Email == user.Email {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}

	if err := user.HashPendingPassword(s.hasher); err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}

	s.users[user.ID] = clone(user)

	return nil
}

func (s *Storage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return clone(u), nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

func (s *Storage) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return clone(u), nil
}

// SaveUser перезаписывает пользователя, сохраняя текущий набор refresh-токенов и присутствие.
func (s *Storage) SaveUser(_ context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	if err := user.MFA.Validate(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrInvalidRecord, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[user.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	for id, other := range s.users {
		if id != user.ID && other.Email == user.Email {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}

	if err := user.HashPendingPassword(s.hasher); err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}

	c := clone(user)
	c.RefreshTokens = cur.RefreshTokens
	c.IsOnline = cur.IsOnline
	c.LastSeen = cur.LastSeen
	s.users[user.ID] = c

	return nil
}

func (s *Storage) UpdatePresence(_ context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*models.User, error) {
	const op = "storage.memory.UpdatePresence"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	u.IsOnline = online
	u.LastSeen = lastSeen

	return clone(u), nil
}

func (s *Storage) UserByRefreshToken(_ context.Context, token string) (*models.User, error) {
	const op = "storage.memory.UserByRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.HasRefreshToken(token) {
			return clone(u), nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

func (s *Storage) AppendRefreshToken(_ context.Context, userID uuid.UUID, token models.RefreshToken) error {
	const op = "storage.memory.AppendRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	u.RefreshTokens = append(u.RefreshTokens, token)

	return nil
}

func (s *Storage) RemoveRefreshToken(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		for i, rt := range u.RefreshTokens {
			if rt.Token == token {
				u.RefreshTokens = append(u.RefreshTokens[:i], u.RefreshTokens[i+1:]...)
				return true, nil
			}
		}
	}

	return false, nil
}

// DeleteExpiredRefreshTokens возвращает число удалённых токенов.
func (s *Storage) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, u := range s.users {
		kept := u.RefreshTokens[:0]
		for _, rt := range u.RefreshTokens {
			if rt.ExpiresAt.After(now) {
				kept = append(kept, rt)
				continue
			}
			n++
		}
		u.RefreshTokens = kept
	}

	return n, nil
}

func (s *Storage) Close() {}
