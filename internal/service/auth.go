package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/log"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/redact"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
)

const minPasswordRunes = 8

// Исходы входа для метрик.
const (
	loginSession            = "session"
	loginMFARequired        = "mfa_required"
	loginInvalidCredentials = "invalid_credentials"
	loginError              = "error"
)

// SignupInput: данные регистрации.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginResult описывает результат входа: либо сессия, либо требование второго фактора.
type LoginResult struct {
	MFARequired     bool
	MFASessionToken string
	Tokens          *models.TokenPair
	User            *models.User
}

// ProfileUpdate: изменяемые поля профиля; nil означает «не менять».
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Image     *string
	Password  *string
}

// Signup регистрирует пользователя и сразу выпускает сессию.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.Signup"

	lg := log.From(ctx)

	email := strings.TrimSpace(in.Email)
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if email == "" || in.Password == "" || first == "" || last == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrMissingFields)
	}

	if err := validateEmail(email); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err := s.storage.UserByEmail(ctx, email)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, unavailable(op, err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: first,
		LastName:  last,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
		MFA:       models.MFA{PrimaryMethod: models.MFAMethodNone},
	}
	user.SetPassword(in.Password)

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		lg.Error("create_user_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(email)),
			slog.String("err", err.Error()),
		)
		return nil, nil, unavailable(op, err)
	}

	pair, err := s.IssueSessionTokens(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_signed_up", slog.String("user_id", user.ID.String()))

	return pair, user, nil
}

// Login проверяет пароль. При включённой MFA возвращает только MFA-pending токен.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "service.auth.Login"

	lg := log.From(ctx)

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.metrics.Login(loginInvalidCredentials)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.Login(loginInvalidCredentials)
			lg.Info("login_failed", slog.String("email", redact.Email(email)))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		s.metrics.Login(loginError)
		return nil, unavailable(op, err)
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		s.metrics.Login(loginInvalidCredentials)
		lg.Info("login_failed", slog.String("email", redact.Email(email)))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if user.MFA.Enabled {
		pending, err := s.issueMFAPendingToken(user)
		if err != nil {
			s.metrics.Login(loginError)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		s.metrics.Login(loginMFARequired)
		lg.Info("login_mfa_required", slog.String("user_id", user.ID.String()))

		return &LoginResult{MFARequired: true, MFASessionToken: pending}, nil
	}

	pair, err := s.IssueSessionTokens(ctx, user)
	if err != nil {
		s.metrics.Login(loginError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Login(loginSession)

	return &LoginResult{Tokens: pair, User: user}, nil
}

// Logout отзывает access-токен на остаток его срока, удаляет refresh-токен
// из набора владельца и помечает пользователя offline.
// Идемпотентен: отсутствующие и неизвестные токены ошибкой не считаются.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	const op = "service.auth.Logout"

	lg := log.From(ctx)

	var userID uuid.UUID

	if accessToken != "" {
		claims, err := s.parseIgnoringExpiry(accessToken, s.cfg.AccessSecret)
		switch {
		case err != nil || claims.Type != typAccess || claims.ID == "":
			lg.Debug("logout_access_token_ignored", slog.String("op", op))
		default:
			if claims.ExpiresAt != nil {
				remaining := s.remaining(claims.ExpiresAt.Time)
				if err := s.registry.Revoke(ctx, claims.ID, remaining); err != nil {
					lg.Error("revoke_access_token_failed",
						slog.String("op", op),
						slog.String("err", err.Error()),
					)
					return unavailable(op, err)
				}
			}
			if id, err := uuid.Parse(claims.UserID); err == nil {
				userID = id
			}
		}
	}

	if refreshToken != "" {
		removed, err := s.storage.RemoveRefreshToken(ctx, refreshToken)
		if err != nil {
			lg.Error("remove_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return unavailable(op, err)
		}

		if userID == uuid.Nil && removed {
			if claims, err := s.parseIgnoringExpiry(refreshToken, s.cfg.RefreshSecret); err == nil {
				if id, err := uuid.Parse(claims.UserID); err == nil {
					userID = id
				}
			}
		}
	}

	if userID != uuid.Nil {
		if err := s.SetPresence(ctx, userID, false); err != nil {
			lg.Warn("presence_update_failed",
				slog.String("op", op),
				slog.String("user_id", userID.String()),
				slog.String("err", err.Error()),
			)
		}
	}

	return nil
}

// Profile возвращает клиентскую проекцию пользователя, используя кэш профилей.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*models.UserView, error) {
	const op = "service.auth.Profile"

	lg := log.From(ctx)

	if s.profiles != nil {
		v, hit, err := s.profiles.Get(ctx, userID)
		if err != nil {
			lg.Warn("profile_cache_get_failed", slog.String("op", op), slog.String("err", err.Error()))
		}
		if hit {
			return v, nil
		}
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	v := user.View()
	if s.profiles != nil {
		if err := s.profiles.Set(ctx, userID, v); err != nil {
			lg.Warn("profile_cache_set_failed", slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	return &v, nil
}

// UpdateProfile изменяет имя, e-mail, аватар и/или пароль пользователя.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*models.User, error) {
	const op = "service.auth.UpdateProfile"

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if upd.FirstName != nil {
		if v := strings.TrimSpace(*upd.FirstName); v != "" {
			user.FirstName = v
		}
	}
	if upd.LastName != nil {
		if v := strings.TrimSpace(*upd.LastName); v != "" {
			user.LastName = v
		}
	}
	if upd.Image != nil {
		if v := strings.TrimSpace(*upd.Image); v != "" {
			user.Image = v
		}
	}

	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email != "" && email != user.Email {
			if err := validateEmail(email); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}

			other, err := s.storage.UserByEmail(ctx, email)
			switch {
			case err == nil && other.ID != user.ID:
				return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
			case err != nil && !errors.Is(err, storage.ErrNotFound):
				return nil, unavailable(op, err)
			}

			user.Email = email
		}
	}

	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		user.SetPassword(*upd.Password)
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.saveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// userByID загружает пользователя, переводя ошибки хранилища в ошибки сервиса.
func (s *Service) userByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.storage.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, unavailable("service.userByID", err)
	}

	return user, nil
}

// saveUser сохраняет пользователя и сбрасывает его профиль в кэше.
func (s *Service) saveUser(ctx context.Context, user *models.User) error {
	if err := s.storage.SaveUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			return ErrEmailTaken
		case errors.Is(err, storage.ErrNotFound):
			return ErrUserNotFound
		case errors.Is(err, storage.ErrInvalidRecord):
			return err
		default:
			return unavailable("service.saveUser", err)
		}
	}

	s.invalidateProfile(ctx, user.ID)

	return nil
}

func (s *Service) invalidateProfile(ctx context.Context, id uuid.UUID) {
	if s.profiles == nil {
		return
	}

	if err := s.profiles.Invalidate(ctx, id); err != nil {
		log.From(ctx).Warn("profile_cache_invalidate_failed",
			slog.String("user_id", id.String()),
			slog.String("err", err.Error()),
		)
	}
}

// validateEmail проверяет, что строка: голый адрес без display name.
func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	return nil
}

// validatePassword проверяет минимальную длину пароля в символах.
func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordRunes {
		return ErrWeakPassword
	}

	return nil
}

// remaining возвращает оставшееся время жизни относительно текущего момента.
func (s *Service) remaining(exp time.Time) time.Duration {
	return exp.Sub(s.now())
}
