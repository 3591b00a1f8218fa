package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/bytebot-auth/internal/pkg/log"
)

// ErrServiceTimeout: причина отмены контекста, когда истёк timeouts.service.
// Отличает собственный дедлайн сервиса от дедлайна, пришедшего снаружи.
var ErrServiceTimeout = errors.New("service timeout exceeded")

// Timeout ограничивает обработку запроса значением timeouts.service.
//
// Поведение:
//   - d <= 0: мидлвар no-op;
//   - если у запроса уже есть deadline, он не переопределяется;
//   - иначе контекст отменяется с причиной ErrServiceTimeout, и по истечении
//     пишется запись "request_timeout". Ответ при этом формирует обработчик
//     (context.DeadlineExceeded -> 504 deadline_exceeded).
//
// Фоновая отметка присутствия из Session Gate живёт на своём контексте
// (timeouts.presence) и этим дедлайном не обрывается.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeoutCause(r.Context(), d, ErrServiceTimeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))

			if errors.Is(context.Cause(ctx), ErrServiceTimeout) {
				log.From(ctx).Warn("request_timeout",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Duration("timeout", d),
				)
			}
		})
	}
}
