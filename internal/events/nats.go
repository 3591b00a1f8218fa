package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATS публикует события в subject как есть (user.<id>.presence).
type NATS struct {
	conn *nats.Conn
	log  *slog.Logger
}

// NewNATS подключается к серверу NATS с бесконечным переподключением.
func NewNATS(url string, log *slog.Logger) (*NATS, error) {
	const op = "events.NewNATS"

	if log == nil {
		log = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("bytebot-auth"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats_disconnected", slog.String("err", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats_reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &NATS{conn: conn, log: log}, nil
}

// Publish отправляет сообщение; подтверждение доставки не ожидается.
func (n *NATS) Publish(ctx context.Context, subject string, payload []byte) error {
	const op = "events.NATS.Publish"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close дожидается отправки буфера и закрывает соединение.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
