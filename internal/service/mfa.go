package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/log"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20

	mfaFlowSetup = "setup"
	mfaFlowLogin = "login"
)

// BeginMFASetup генерирует новый TOTP-секрет и сохраняет его невключённым,
// так что незавершённая настройка не влияет на вход.
func (s *Service) BeginMFASetup(ctx context.Context, userID uuid.UUID) (*models.MFASetup, error) {
	const op = "service.mfa.BeginMFASetup"

	lg := log.From(ctx)

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.MFA.Enabled {
		return nil, fmt.Errorf("%s: %w", op, ErrMFAAlreadyEnabled)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.mfa.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		lg.Error("totp_generate_failed", slog.String("op", op), slog.String("err", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	qr, err := qrDataURL(key, s.mfa.QRSize)
	if err != nil {
		lg.Error("totp_qr_failed", slog.String("op", op), slog.String("err", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.MFA = models.MFA{
		Enabled:       false,
		Secret:        key.Secret(),
		PrimaryMethod: models.MFAMethodNone,
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.saveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("mfa_setup_started", slog.String("user_id", user.ID.String()))

	return &models.MFASetup{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCode:     qr,
	}, nil
}

// ConfirmMFASetup включает MFA, если код совпал с сохранённым секретом.
// При неверном коде секрет остаётся, и подтверждение можно повторить.
func (s *Service) ConfirmMFASetup(ctx context.Context, userID uuid.UUID, code string) (*models.User, error) {
	const op = "service.mfa.ConfirmMFASetup"

	lg := log.From(ctx)

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.MFA.Secret == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMFANotInitialized)
	}

	if !s.validTOTP(code, user.MFA.Secret) {
		s.metrics.MFAVerification(mfaFlowSetup, "invalid_code")
		lg.Info("mfa_setup_invalid_code", slog.String("user_id", user.ID.String()))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCode)
	}
	s.metrics.MFAVerification(mfaFlowSetup, "ok")

	if user.MFA.Enabled {
		return user, nil
	}

	user.MFA.Enabled = true
	user.MFA.PrimaryMethod = models.MFAMethodTOTP
	user.UpdatedAt = s.now().UTC()

	if err := s.saveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("mfa_enabled", slog.String("user_id", user.ID.String()))

	return user, nil
}

// DisableMFA безусловно сбрасывает секрет и флаг. Вызывающий уже прошёл Session Gate.
func (s *Service) DisableMFA(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "service.mfa.DisableMFA"

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.MFA = models.MFA{PrimaryMethod: models.MFAMethodNone}
	user.UpdatedAt = s.now().UTC()

	if err := s.saveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("mfa_disabled", slog.String("user_id", user.ID.String()))

	return user, nil
}

// VerifyMFALogin обменивает MFA-pending токен и верный код на сессию.
//
// Неверный код не расходует токен: клиент может повторить, пока токен не истёк.
// После успеха jti токена помечается использованным, и повторное предъявление
// даёт ErrInvalidSession.
func (s *Service) VerifyMFALogin(ctx context.Context, pendingToken, code string) (*models.TokenPair, *models.User, error) {
	const op = "service.mfa.VerifyMFALogin"

	lg := log.From(ctx)

	claims, err := s.parse(pendingToken, s.cfg.AccessSecret)
	if err != nil || claims.Type != typMFAPending || !claims.MFAPending || claims.ID == "" {
		s.metrics.MFAVerification(mfaFlowLogin, "invalid_session")
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.MFA.Enabled || user.MFA.Secret == "" {
		s.metrics.MFAVerification(mfaFlowLogin, "invalid_session")
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}

	if !s.validTOTP(code, user.MFA.Secret) {
		s.metrics.MFAVerification(mfaFlowLogin, "invalid_code")
		lg.Info("mfa_login_invalid_code", slog.String("user_id", user.ID.String()))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCode)
	}

	first, err := s.registry.Consume(ctx, claims.ID, s.remaining(claims.ExpiresAt.Time))
	if err != nil {
		return nil, nil, unavailable(op, err)
	}
	if !first {
		s.metrics.MFAVerification(mfaFlowLogin, "replayed")
		lg.Warn("mfa_pending_token_replayed", slog.String("user_id", user.ID.String()))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}

	pair, err := s.IssueSessionTokens(ctx, user)
	if err != nil {
		// Сессия не выдана: токен снова годен до истечения, повтор после сбоя хранилища пройдёт.
		if rerr := s.registry.Release(context.WithoutCancel(ctx), claims.ID); rerr != nil {
			lg.Error("mfa_pending_release_failed",
				slog.String("user_id", user.ID.String()),
				slog.String("err", rerr.Error()),
			)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.MFAVerification(mfaFlowLogin, "ok")

	return pair, user, nil
}

// validTOTP проверяет 6-значный SHA1-код с шагом 30 секунд и допуском Skew шагов.
func (s *Service) validTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      s.mfa.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})

	return err == nil && ok
}

// qrDataURL рендерит otpauth-ключ в PNG и возвращает его как data URL.
func qrDataURL(key *otp.Key, size int) (string, error) {
	img, err := key.Image(size, size)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
