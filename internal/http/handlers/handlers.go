// handlers содержит HTTP-обработчики публичного API сервиса аутентификации.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	apierrors "github.com/pribylovaa/bytebot-auth/internal/http/errors"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/service"
)

// maxBodyBytes: предел размера JSON-тела запроса.
const maxBodyBytes = 1 << 20

// Service: операции сервисного слоя, которые вызывают обработчики.
type Service interface {
	Signup(ctx context.Context, in service.SignupInput) (*models.TokenPair, *models.User, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	RotateFromRefresh(ctx context.Context, refreshToken string) (string, *models.User, error)

	BeginMFASetup(ctx context.Context, userID uuid.UUID) (*models.MFASetup, error)
	ConfirmMFASetup(ctx context.Context, userID uuid.UUID, code string) (*models.User, error)
	DisableMFA(ctx context.Context, userID uuid.UUID) (*models.User, error)
	VerifyMFALogin(ctx context.Context, pendingToken, code string) (*models.TokenPair, *models.User, error)

	Profile(ctx context.Context, userID uuid.UUID) (*models.UserView, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd service.ProfileUpdate) (*models.User, error)
}

// Handlers агрегирует зависимости обработчиков.
type Handlers struct {
	svc    Service
	cookie CookieOptions
}

func New(svc Service, cookie CookieOptions) *Handlers {
	return &Handlers{svc: svc, cookie: cookie.withDefaults()}
}

// writeJSON: единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict декодирует JSON строго: запрещаем неизвестные поля и хвост после объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return apierrors.ErrInvalidArgument
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apierrors.ErrInvalidArgument
	}

	return nil
}
