package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
)

// UserByRefreshToken находит владельца токена по точному совпадению строки.
func (m *Mongo) UserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	const op = "storage.mongo.UserByRefreshToken"

	return m.findOne(ctx, op, bson.D{{Key: "refresh_tokens.token", Value: token}})
}

// AppendRefreshToken добавляет токен в конец набора ($push).
func (m *Mongo) AppendRefreshToken(ctx context.Context, userID uuid.UUID, token models.RefreshToken) error {
	const op = "storage.mongo.AppendRefreshToken"

	res, err := m.users.UpdateByID(ctx, userID.String(), bson.D{
		{Key: "$push", Value: bson.D{{Key: "refresh_tokens", Value: fromRefreshToken(token)}}},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// RemoveRefreshToken удаляет токен из набора владельца ($pull).
func (m *Mongo) RemoveRefreshToken(ctx context.Context, token string) (bool, error) {
	const op = "storage.mongo.RemoveRefreshToken"

	res, err := m.users.UpdateOne(ctx,
		bson.D{{Key: "refresh_tokens.token", Value: token}},
		bson.D{{Key: "$pull", Value: bson.D{
			{Key: "refresh_tokens", Value: bson.D{{Key: "token", Value: token}}},
		}}},
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return res.ModifiedCount > 0, nil
}

// DeleteExpiredRefreshTokens удаляет просроченные токены у всех пользователей.
// Возвращает число затронутых пользователей.
func (m *Mongo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.mongo.DeleteExpiredRefreshTokens"

	expired := bson.D{{Key: "$lte", Value: toMS(now)}}

	res, err := m.users.UpdateMany(ctx,
		bson.D{{Key: "refresh_tokens.expires_at", Value: expired}},
		bson.D{{Key: "$pull", Value: bson.D{
			{Key: "refresh_tokens", Value: bson.D{{Key: "expires_at", Value: expired}}},
		}}},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.ModifiedCount, nil
}
