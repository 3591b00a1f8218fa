package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateUser вставляет нового пользователя.
// Нарушение инварианта MFA даёт storage.ErrInvalidRecord, занятый email даёт storage.ErrAlreadyExists.
func (m *Mongo) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.CreateUser"

	if err := user.MFA.Validate(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrInvalidRecord, err)
	}

	if err := user.HashPendingPassword(m.hasher); err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}

	if _, err := m.users.InsertOne(ctx, fromUser(user)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по точному совпадению email.
func (m *Mongo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongo.UserByEmail"

	return m.findOne(ctx, op, bson.D{{Key: "email", Value: email}})
}

// UserByID находит пользователя по ID.
func (m *Mongo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.mongo.UserByID"

	return m.findOne(ctx, op, bson.D{{Key: "_id", Value: id.String()}})
}

// SaveUser обновляет профиль, пароль и MFA-состояние. Набор refresh-токенов
// и присутствие не перезаписываются: ими управляют отдельные атомарные операции.
func (m *Mongo) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.SaveUser"

	if err := user.MFA.Validate(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrInvalidRecord, err)
	}

	if err := user.HashPendingPassword(m.hasher); err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}

	res, err := m.users.UpdateByID(ctx, user.ID.String(), bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "email", Value: user.Email},
			{Key: "password_hash", Value: user.PasswordHash},
			{Key: "first_name", Value: user.FirstName},
			{Key: "last_name", Value: user.LastName},
			{Key: "image", Value: user.Image},
			{Key: "mfa", Value: fromMFA(user.MFA)},
			{Key: "updated_at", Value: toMS(user.UpdatedAt)},
		}},
	})
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UpdatePresence выставляет is_online/last_seen и возвращает обновлённый документ.
func (m *Mongo) UpdatePresence(ctx context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*models.User, error) {
	const op = "storage.mongo.UpdatePresence"

	var doc userDocument
	err := m.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "is_online", Value: online},
			{Key: "last_seen", Value: toMS(lastSeen)},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	return u, nil
}

func (m *Mongo) findOne(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDocument
	if err := m.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	return u, nil
}
