package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedPrefix   = "token:blacklist:"
	revokedMarker   = "revoked"
	consumedPrefix  = "mfa:pending:used:"
	consumedMarker  = "used"
	minRedisTTLUnit = time.Millisecond
)

// Registry: реестр отозванных access-токенов по jti.
//
// Каждая запись живёт ровно столько, сколько оставалось жить токену,
// поэтому реестр не растёт неограниченно.
type Registry struct {
	rdb redis.Cmdable
}

// NewRegistry создаёт реестр поверх клиента Redis.
func NewRegistry(rdb redis.Cmdable) *Registry {
	return &Registry{rdb: rdb}
}

// Revoke заносит jti в реестр на remaining. При remaining <= 0 ничего не делает:
// токен уже истёк сам.
func (r *Registry) Revoke(ctx context.Context, tokenID string, remaining time.Duration) error {
	if tokenID == "" || remaining < minRedisTTLUnit {
		return nil
	}

	return r.rdb.Set(ctx, revokedPrefix+tokenID, revokedMarker, remaining).Err()
}

// IsRevoked сообщает, отозван ли jti.
func (r *Registry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Consume атомарно помечает одноразовый токен использованным (SET NX).
// Возвращает false, если токен уже был использован.
func (r *Registry) Consume(ctx context.Context, tokenID string, remaining time.Duration) (bool, error) {
	if remaining < minRedisTTLUnit {
		return false, nil
	}

	return r.rdb.SetNX(ctx, consumedPrefix+tokenID, consumedMarker, remaining).Result()
}

// Release снимает отметку Consume, возвращая одноразовый токен в оборот.
func (r *Registry) Release(ctx context.Context, tokenID string) error {
	return r.rdb.Del(ctx, consumedPrefix+tokenID).Err()
}
