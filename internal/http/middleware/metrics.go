package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/bytebot-auth/internal/metrics"
)

// Metrics учитывает каждый запрос в счётчике и гистограмме по шаблону маршрута chi.
// Метка route: шаблон маршрута, а не сырой путь.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}

			m.ObserveHTTP(route, r.Method, strconv.Itoa(sw.Status()), time.Since(start))
		})
	}
}
