// http собирает публичный HTTP API сервиса на chi.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pribylovaa/bytebot-auth/internal/http/handlers"
	"github.com/pribylovaa/bytebot-auth/internal/http/middleware"
	"github.com/pribylovaa/bytebot-auth/internal/metrics"
)

// Service описывает всё, что роутеру нужно от сервисного слоя: операции обработчиков
// и проверка сессии для Session Gate.
type Service interface {
	handlers.Service
	middleware.Authenticator
}

// Options: параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой: роуты регистрируются на корне.

	// PresenceTimeout: дедлайн фоновой отметки online в Session Gate.
	PresenceTimeout time.Duration
	// CORSOrigins задаёт разрешённые источники фронтенда; при пустом списке CORS не подключается.
	CORSOrigins []string
	Cookie      handlers.CookieOptions
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		middleware.Metrics(opts.Metrics),
	)
	if len(opts.CORSOrigins) > 0 {
		root.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true, // refresh-токен ходит в cookie
			MaxAge:           300,
		}))
	}
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc, opts.Cookie)
	gate := middleware.Session(svc, opts.Metrics, opts.PresenceTimeout)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, gate)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, gate)
	return root
}

// registerRoutes: единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, gate middleware.Middleware) {
	// auth
	r.Post("/auth/signup", h.Signup)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/mfa/login-verify", h.VerifyMFALogin)

	// защищённые Session Gate
	r.Group(func(r chi.Router) {
		r.Use(gate)

		r.Post("/auth/mfa/setup", h.SetupMFA)
		r.Post("/auth/mfa/verify", h.VerifyMFA)
		r.Post("/auth/mfa/disable", h.DisableMFA)

		r.Get("/user/me", h.Me)
		r.Patch("/user/me", h.UpdateMe)
	})
}
