package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/events"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/log"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
)

// SetPresence сохраняет isOnline/lastSeen и публикует событие user.<id>.presence.
// Публикация fire-and-forget: её ошибка только логируется.
func (s *Service) SetPresence(ctx context.Context, userID uuid.UUID, online bool) error {
	const op = "service.presence.SetPresence"

	lg := log.From(ctx)

	status := events.StatusOffline
	if online {
		status = events.StatusOnline
	}

	now := s.now().UTC()
	user, err := s.storage.UpdatePresence(ctx, userID, online, now)
	if err != nil {
		s.metrics.Presence(status, "failed")
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return unavailable(op, err)
	}
	s.metrics.Presence(status, "ok")

	payload, err := json.Marshal(events.PresenceEvent{
		UserID:   userID.String(),
		Status:   status,
		LastSeen: now,
		Name:     user.DisplayName(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.publisher.Publish(ctx, events.PresenceSubject(userID), payload); err != nil {
		lg.Warn("presence_publish_failed",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
			slog.String("err", err.Error()),
		)
	}

	return nil
}

// TouchPresence помечает пользователя online в отдельной горутине со своим
// таймаутом. Не блокирует вызывающего; ошибки только логируются.
func (s *Service) TouchPresence(ctx context.Context, userID uuid.UUID, timeout time.Duration) {
	lg := log.From(ctx)

	go func() {
		bg, cancel := context.WithTimeout(log.Into(context.Background(), lg), timeout)
		defer cancel()

		if err := s.SetPresence(bg, userID, true); err != nil {
			lg.Warn("presence_update_failed",
				slog.String("user_id", userID.String()),
				slog.String("err", err.Error()),
			)
		}
	}()
}
