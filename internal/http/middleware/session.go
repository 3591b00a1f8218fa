package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	apierrors "github.com/pribylovaa/bytebot-auth/internal/http/errors"
	"github.com/pribylovaa/bytebot-auth/internal/metrics"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/log"
	"github.com/pribylovaa/bytebot-auth/internal/service"
)

// Причины отказа Session Gate (метка метрики и поле лога; клиенту не отдаются).
const (
	reasonMissing     = "missing"
	reasonInvalid     = "invalid"
	reasonExpired     = "expired"
	reasonRevoked     = "revoked"
	reasonUnavailable = "unavailable"
)

// Authenticator: то, что нужно Session Gate от сервисного слоя.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*service.AccessClaims, error)
	TouchPresence(ctx context.Context, userID uuid.UUID, timeout time.Duration)
}

// Principal: аутентифицированный субъект запроса.
type Principal struct {
	UserID  uuid.UUID
	Email   string
	TokenID string
}

type principalKey struct{}

// PrincipalFrom достаёт субъекта, положенного Session Gate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal кладёт субъекта в контекст.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Session: Session Gate для защищённых маршрутов:
//  1. токен из Authorization: Bearer, иначе из query-параметра token;
//  2. нет токена, битая подпись, истёк или отозван: 401 без уточнения причины;
//  3. реестр отзыва или хранилище недоступны: 503;
//  4. успех: Principal в контексте и фоновая отметка online (таймаут presenceTimeout).
func Session(auth Authenticator, m *metrics.Metrics, presenceTimeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := TokenFromRequest(r)
			if token == "" {
				reject(w, r, m, reasonMissing, apierrors.ErrUnauthorized)
				return
			}

			claims, err := auth.Authenticate(ctx, token)
			if err != nil {
				reason := rejectReason(err)
				if reason == reasonUnavailable {
					reject(w, r, m, reason, err)
					return
				}

				reject(w, r, m, reason, apierrors.ErrUnauthorized)
				return
			}

			ctx = WithPrincipal(ctx, Principal{
				UserID:  claims.UserID,
				Email:   claims.Email,
				TokenID: claims.TokenID,
			})
			ctx = log.With(ctx, slog.String("user_id", claims.UserID.String()))

			auth.TouchPresence(ctx, claims.UserID, presenceTimeout)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest читает Bearer-токен, затем query-параметр token (WebSocket-клиенты).
// Пустая строка: токена нет.
func TokenFromRequest(r *http.Request) string {
	const prefix = "Bearer "

	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		if token := strings.TrimSpace(auth[len(prefix):]); token != "" {
			return token
		}
	}

	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, service.ErrStoreUnavailable):
		return reasonUnavailable
	case errors.Is(err, service.ErrTokenRevoked):
		return reasonRevoked
	case errors.Is(err, service.ErrTokenExpired):
		return reasonExpired
	default:
		return reasonInvalid
	}
}

func reject(w http.ResponseWriter, r *http.Request, m *metrics.Metrics, reason string, err error) {
	m.GateRejected(reason)

	lg := log.From(r.Context())
	if reason == reasonUnavailable {
		lg.Error("session_check_failed",
			slog.String("path", r.URL.Path),
			slog.String("err", err.Error()),
		)
	} else {
		lg.Info("session_rejected",
			slog.String("path", r.URL.Path),
			slog.String("reason", reason),
		)
	}

	apierrors.WriteError(w, r, err)
}
