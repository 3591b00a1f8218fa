// events публикует события присутствия пользователей во внешний брокер.
//
// Публикация fire-and-forget: сервис не ждёт подтверждения доставки,
// ошибки только логируются вызывающей стороной.
package events

//go:generate mockgen -source=events.go -destination=../../mocks/mock_events.go -package=mocks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/config"
)

// Publisher: контракт публикации событий.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceEvent: полезная нагрузка события присутствия.
type PresenceEvent struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
	Name     string    `json:"name"`
}

// PresenceSubject возвращает subject вида user.<id>.presence.
func PresenceSubject(userID uuid.UUID) string {
	return "user." + userID.String() + ".presence"
}

// New создаёт Publisher по конфигурации брокера.
func New(cfg config.BrokerConfig, log *slog.Logger) (Publisher, error) {
	const op = "events.New"

	switch cfg.Driver {
	case config.BrokerNATS:
		p, err := NewNATS(cfg.NATSURL, log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return p, nil
	case config.BrokerKafka:
		return NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log), nil
	case config.BrokerNone, "":
		return NewNoop(log), nil
	default:
		return nil, fmt.Errorf("%s: unknown broker driver %q", op, cfg.Driver)
	}
}

// Noop только логирует события; используется, когда брокер не сконфигурирован.
type Noop struct {
	log *slog.Logger
}

// NewNoop создаёт Publisher без брокера.
func NewNoop(log *slog.Logger) *Noop {
	if log == nil {
		log = slog.Default()
	}

	return &Noop{log: log}
}

func (n *Noop) Publish(_ context.Context, subject string, payload []byte) error {
	n.log.Debug("event_dropped",
		slog.String("subject", subject),
		slog.Int("bytes", len(payload)),
	)

	return nil
}

func (n *Noop) Close() error { return nil }
