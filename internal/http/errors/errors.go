// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает ошибку сервисного слоя (sentinel из internal/service
// или локальную ошибку транспорта), а на выход даёт:
//   - корректный HTTP-статус;
//   - стабильный машиночитаемый code;
//   - краткое безопасное message без утечки деталей.
//
// Для 5xx message всегда обобщённый: причина остаётся только в логах.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/bytebot-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrInvalidArgument: тело запроса не разобралось (битый JSON, лишние поля).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized: запрос без валидной сессии (Session Gate, refresh без cookie).
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError: единый формат для фронта.
// Code: короткий стабильный код для машиночитаемой обработки на FE.
// Message: безопасное человекочитаемое описание.
// RequestID: прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse: корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// mapping содержит таблицу sentinel -> HTTP. Порядок важен: первая совпавшая запись выигрывает,
// поэтому ErrStoreUnavailable стоит первым (он оборачивается вместе с причиной).
var mapping = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{service.ErrStoreUnavailable, http.StatusServiceUnavailable, "unavailable", "service unavailable"},
	{ErrInvalidArgument, http.StatusBadRequest, "invalid_argument", "invalid argument"},
	{service.ErrMissingFields, http.StatusBadRequest, "missing_fields", "all fields are required"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid_email", "invalid email format"},
	{service.ErrWeakPassword, http.StatusBadRequest, "weak_password", "password must be at least 8 characters"},
	{service.ErrInvalidCode, http.StatusBadRequest, "invalid_code", "invalid code"},
	{service.ErrMFANotInitialized, http.StatusBadRequest, "mfa_not_initialized", "mfa setup not initialized"},
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid credentials"},
	{service.ErrTokenRevoked, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{service.ErrInvalidSession, http.StatusForbidden, "invalid_session", "invalid session"},
	{service.ErrTokenExpired, http.StatusForbidden, "token_expired", "token expired or invalid"},
	{service.ErrUserNotFound, http.StatusNotFound, "not_found", "user not found"},
	{service.ErrEmailTaken, http.StatusConflict, "already_exists", "user already exists"},
	{service.ErrMFAAlreadyEnabled, http.StatusConflict, "mfa_already_enabled", "mfa already enabled"},
	{context.Canceled, StatusClientClosedRequest, "canceled", "canceled"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"},
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ для фронта.
//
// Поведение:
//   - err == nil означает ошибку вызова; возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг;
//   - известный sentinel (errors.Is): статус из таблицы mapping;
//   - прочее: 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err != nil {
		for _, m := range mapping {
			if errors.Is(err, m.err) {
				return m.status, ErrorResponse{Error: APIError{Code: m.code, Message: m.msg}}
			}
		}
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error: APIError{
			Code:    "internal",
			Message: "internal error",
		},
	}
}

// WriteError: хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
