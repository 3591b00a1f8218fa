// service содержит бизнес-логику сессий: выпуск/проверку токенов,
// вход/выход, TOTP MFA, профиль и присутствие пользователя.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; всё состояние живёт в хранилище
//     учётных записей и Redis, поэтому экземпляр безопасен для конкурентного
//     использования.
//   - Зависимости передаются явно через Deps; жизненным циклом соединений
//     управляет main.
//   - Ошибки инфраструктуры оборачиваются в ErrStoreUnavailable вместе
//     с исходной причиной и на транспорте маппятся в HTTP 503.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/config"
	"github.com/pribylovaa/bytebot-auth/internal/events"
	"github.com/pribylovaa/bytebot-auth/internal/metrics"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/password"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
)

var (
	// ErrInvalidCredentials: e-mail не найден или пароль неверен.
	// Оба случая неразличимы для клиента. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidSession: refresh/MFA-pending токен некорректен, истёк,
	// уже использован или отсутствует в наборе пользователя. HTTP 401/403.
	ErrInvalidSession = errors.New("invalid session")

	// ErrTokenExpired: подпись или срок действия токена не прошли проверку. HTTP 401/403.
	ErrTokenExpired = errors.New("token expired or invalid")

	// ErrTokenRevoked: access-токен отозван через logout. HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInvalidCode: TOTP-код не совпал. HTTP 400.
	ErrInvalidCode = errors.New("invalid code")

	// ErrStoreUnavailable: хранилище или Redis недоступны; клиент может повторить. HTTP 503.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmailTaken: e-mail уже занят. HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrMissingFields: не заполнены обязательные поля. HTTP 400.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidEmail: e-mail имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword: пароль короче 8 символов. HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrUserNotFound: пользователь не найден. HTTP 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrMFANotInitialized: подтверждение MFA без предварительного setup. HTTP 400.
	ErrMFANotInitialized = errors.New("mfa setup not initialized")

	// ErrMFAAlreadyEnabled: повторный setup при включённой MFA. HTTP 409.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
)

// RevocationRegistry: реестр отозванных access-токенов (Redis).
type RevocationRegistry interface {
	Revoke(ctx context.Context, tokenID string, remaining time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// Consume атомарно помечает одноразовый токен использованным;
	// false означает, что токен уже был использован.
	Consume(ctx context.Context, tokenID string, remaining time.Duration) (bool, error)
	// Release отменяет Consume, если вход по токену не состоялся.
	Release(ctx context.Context, tokenID string) error
}

// ProfileCache: кэш клиентских проекций пользователя.
type ProfileCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.UserView, bool, error)
	Set(ctx context.Context, id uuid.UUID, v models.UserView) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// PasswordHasher хэширует и сравнивает пароли.
type PasswordHasher interface {
	models.PasswordHasher
	Compare(hash, plain string) bool
}

// Deps: зависимости Service. Storage и Registry обязательны.
type Deps struct {
	Storage   storage.Storage
	Registry  RevocationRegistry
	Profiles  ProfileCache     // nil: профиль всегда читается из хранилища
	Publisher events.Publisher // nil: события не публикуются
	Hasher    PasswordHasher   // nil: bcrypt со стоимостью из AuthConfig
	Metrics   *metrics.Metrics // nil: метрики не считаются
	Auth      config.AuthConfig
	MFA       config.MFAConfig
	// Now задаёт источник времени, по умолчанию time.Now.
	Now func() time.Time
}

// Service описывает бизнес-логику сессий.
type Service struct {
	storage   storage.Storage
	registry  RevocationRegistry
	profiles  ProfileCache
	publisher events.Publisher
	hasher    PasswordHasher
	metrics   *metrics.Metrics
	cfg       config.AuthConfig
	mfa       config.MFAConfig
	now       func() time.Time
}

// New создаёт новый экземпляр Service.
func New(d Deps) *Service {
	s := &Service{
		storage:   d.Storage,
		registry:  d.Registry,
		profiles:  d.Profiles,
		publisher: d.Publisher,
		hasher:    d.Hasher,
		metrics:   d.Metrics,
		cfg:       d.Auth,
		mfa:       d.MFA,
		now:       d.Now,
	}

	if s.hasher == nil {
		s.hasher = password.New(d.Auth.BcryptCost)
	}
	if s.publisher == nil {
		s.publisher = events.NewNoop(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.mfa.QRSize <= 0 {
		s.mfa.QRSize = 200
	}

	return s
}

// unavailable оборачивает инфраструктурную ошибку в ErrStoreUnavailable, сохраняя причину.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// PurgeExpiredRefreshTokens удаляет истёкшие refresh-токены из наборов пользователей.
func (s *Service) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	const op = "service.PurgeExpiredRefreshTokens"

	n, err := s.storage.DeleteExpiredRefreshTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, unavailable(op, err)
	}

	return n, nil
}
