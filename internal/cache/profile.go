package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/redis/go-redis/v9"
)

const profilePrefix = "user:profile:"

// ProfileCache кэширует клиентскую проекцию пользователя (UserView) в JSON.
type ProfileCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewProfileCache создаёт кэш профилей с заданным TTL.
func NewProfileCache(rdb redis.Cmdable, ttl time.Duration) *ProfileCache {
	return &ProfileCache{rdb: rdb, ttl: ttl}
}

func profileKey(id uuid.UUID) string { return profilePrefix + id.String() }

// Get возвращает профиль и признак попадания в кэш.
func (c *ProfileCache) Get(ctx context.Context, id uuid.UUID) (*models.UserView, bool, error) {
	raw, err := c.rdb.Get(ctx, profileKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, err
	}

	var v models.UserView
	if err := json.Unmarshal(raw, &v); err != nil {
		// Битая запись трактуется как промах; её перезапишет следующий Set.
		return nil, false, nil
	}

	return &v, true, nil
}

// Set сохраняет профиль.
func (c *ProfileCache) Set(ctx context.Context, id uuid.UUID, v models.UserView) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, profileKey(id), raw, c.ttl).Err()
}

// Invalidate удаляет профиль из кэша.
func (c *ProfileCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Del(ctx, profileKey(id)).Err()
}
