package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/log"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
)

// Значения claim typ.
const (
	typAccess     = "access"
	typRefresh    = "refresh"
	typMFAPending = "mfa_pending"
)

// tokenClaims: общий набор claims для всех видов токенов сервиса.
type tokenClaims struct {
	UserID     string `json:"uid"`
	Email      string `json:"email,omitempty"`
	Type       string `json:"typ"`
	MFAPending bool   `json:"mfa_pending,omitempty"`
	jwt.RegisteredClaims
}

// AccessClaims: проверенные данные access-токена.
type AccessClaims struct {
	UserID    uuid.UUID
	Email     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssueSessionTokens выпускает пару access+refresh с общим jti и записывает
// refresh-токен в набор пользователя. Незаписанный refresh-токен не возвращается.
func (s *Service) IssueSessionTokens(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.token.IssueSessionTokens"

	lg := log.From(ctx)

	now := s.now().UTC().Truncate(time.Second)
	jti := uuid.NewString()

	access, accessExp, err := s.signAccess(user, jti, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshExp := now.Add(s.cfg.RefreshTokenTTL)
	refresh, err := s.sign(tokenClaims{
		UserID: user.ID.String(),
		Type:   typRefresh,
		RegisteredClaims: s.registered(user.ID, jti, now, refreshExp),
	}, s.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rt := models.RefreshToken{Token: refresh, IssuedAt: now, ExpiresAt: refreshExp}
	if err := s.storage.AppendRefreshToken(ctx, user.ID, rt); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		lg.Error("append_refresh_token_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("err", err.Error()),
		)
		return nil, unavailable(op, err)
	}
	user.RefreshTokens = append(user.RefreshTokens, rt)

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenID:          jti,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// RotateFromRefresh выпускает новый access-токен по refresh-токену.
// Токен должен присутствовать в наборе пользователя и проходить проверку подписи и срока.
// Сам refresh-токен не ротируется.
func (s *Service) RotateFromRefresh(ctx context.Context, refreshToken string) (string, *models.User, error) {
	const op = "service.token.RotateFromRefresh"

	lg := log.From(ctx)

	if refreshToken == "" {
		return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}

	user, err := s.storage.UserByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found", slog.String("op", op))
			return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
		}

		return "", nil, unavailable(op, err)
	}

	claims, err := s.parse(refreshToken, s.cfg.RefreshSecret)
	if err != nil || claims.Type != typRefresh {
		lg.Warn("refresh_verify_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return "", nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}
	if claims.UserID != user.ID.String() {
		lg.Warn("refresh_owner_mismatch",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}

	access, _, err := s.signAccess(user, uuid.NewString(), s.now().UTC().Truncate(time.Second))
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return access, user, nil
}

// ValidateAccessToken проверяет подпись, тип, срок и наличие jti у access-токена.
// Реестр отзыва не проверяется (см. Authenticate).
func (s *Service) ValidateAccessToken(_ context.Context, token string) (*AccessClaims, error) {
	const op = "service.token.ValidateAccessToken"

	claims, err := s.parse(token, s.cfg.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if claims.Type != typAccess || claims.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}

	out := &AccessClaims{
		UserID:    uid,
		Email:     claims.Email,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}

	return out, nil
}

// Authenticate: ValidateAccessToken плюс проверка jti в реестре отзыва.
func (s *Service) Authenticate(ctx context.Context, token string) (*AccessClaims, error) {
	const op = "service.token.Authenticate"

	claims, err := s.ValidateAccessToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := s.registry.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, unavailable(op, err)
	}
	if revoked {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return claims, nil
}

// issueMFAPendingToken выпускает короткоживущий токен, подтверждающий только пароль.
func (s *Service) issueMFAPendingToken(user *models.User) (string, error) {
	now := s.now().UTC().Truncate(time.Second)

	return s.sign(tokenClaims{
		UserID:           user.ID.String(),
		Type:             typMFAPending,
		MFAPending:       true,
		RegisteredClaims: s.registered(user.ID, uuid.NewString(), now, now.Add(s.cfg.MFAPendingTTL)),
	}, s.cfg.AccessSecret)
}

func (s *Service) signAccess(user *models.User, jti string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.cfg.AccessTokenTTL)

	signed, err := s.sign(tokenClaims{
		UserID:           user.ID.String(),
		Email:            user.Email,
		Type:             typAccess,
		RegisteredClaims: s.registered(user.ID, jti, now, exp),
	}, s.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, exp, nil
}

func (s *Service) registered(userID uuid.UUID, jti string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   userID.String(),
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (s *Service) sign(claims tokenClaims, secret string) (string, error) {
	const op = "service.token.sign"

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// parse проверяет подпись HS256, издателя и срок действия.
// Истёкший токен даёт ErrTokenExpired, любой другой сбой: ErrInvalidSession.
func (s *Service) parse(token, secret string, opts ...jwt.ParserOption) (*tokenClaims, error) {
	claims := &tokenClaims{}

	base := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, append(base, opts...)...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}

		return nil, ErrInvalidSession
	}

	return claims, nil
}

// parseIgnoringExpiry проверяет только подпись; используется при logout,
// когда истёкший токен всё равно нужно разобрать.
func (s *Service) parseIgnoringExpiry(token, secret string) (*tokenClaims, error) {
	return s.parse(token, secret, jwt.WithoutClaimsValidation())
}
