package mongo

import (
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
)

// userDocument хранит BSON-представление пользователя; _id содержит строковый UUID.
type userDocument struct {
	ID            string                 `bson:"_id"`
	Email         string                 `bson:"email"`
	PasswordHash  string                 `bson:"password_hash"`
	FirstName     string                 `bson:"first_name"`
	LastName      string                 `bson:"last_name"`
	Image         string                 `bson:"image"`
	IsOnline      bool                   `bson:"is_online"`
	LastSeen      time.Time              `bson:"last_seen"`
	RefreshTokens []refreshTokenDocument `bson:"refresh_tokens"`
	MFA           mfaDocument            `bson:"mfa"`
	CreatedAt     time.Time              `bson:"created_at"`
	UpdatedAt     time.Time              `bson:"updated_at"`
}

type refreshTokenDocument struct {
	Token     string    `bson:"token"`
	IssuedAt  time.Time `bson:"issued_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type mfaDocument struct {
	Enabled       bool   `bson:"enabled"`
	Secret        string `bson:"secret"`
	PrimaryMethod string `bson:"primary_method"`
}

// MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func fromRefreshToken(rt models.RefreshToken) refreshTokenDocument {
	return refreshTokenDocument{
		Token:     rt.Token,
		IssuedAt:  toMS(rt.IssuedAt),
		ExpiresAt: toMS(rt.ExpiresAt),
	}
}

func fromMFA(m models.MFA) mfaDocument {
	method := m.PrimaryMethod
	if method == "" {
		method = models.MFAMethodNone
	}

	return mfaDocument{Enabled: m.Enabled, Secret: m.Secret, PrimaryMethod: string(method)}
}

func fromUser(u *models.User) userDocument {
	// Пустой массив, а не null: иначе $push по полю упадёт.
	tokens := make([]refreshTokenDocument, 0, len(u.RefreshTokens))
	for _, rt := range u.RefreshTokens {
		tokens = append(tokens, fromRefreshToken(rt))
	}

	return userDocument{
		ID:            u.ID.String(),
		Email:         u.Email,
		PasswordHash:  u.PasswordHash,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Image:         u.Image,
		IsOnline:      u.IsOnline,
		LastSeen:      toMS(u.LastSeen),
		RefreshTokens: tokens,
		MFA:           fromMFA(u.MFA),
		CreatedAt:     toMS(u.CreatedAt),
		UpdatedAt:     toMS(u.UpdatedAt),
	}
}

func (d userDocument) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}

	tokens := make([]models.RefreshToken, 0, len(d.RefreshTokens))
	for _, rt := range d.RefreshTokens {
		tokens = append(tokens, models.RefreshToken{
			Token:     rt.Token,
			IssuedAt:  rt.IssuedAt.UTC(),
			ExpiresAt: rt.ExpiresAt.UTC(),
		})
	}

	method := models.MFAMethod(d.MFA.PrimaryMethod)
	if method == "" {
		method = models.MFAMethodNone
	}

	return &models.User{
		ID:            id,
		Email:         d.Email,
		PasswordHash:  d.PasswordHash,
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		Image:         d.Image,
		IsOnline:      d.IsOnline,
		LastSeen:      d.LastSeen.UTC(),
		RefreshTokens: tokens,
		MFA: models.MFA{
			Enabled:       d.MFA.Enabled,
			Secret:        d.MFA.Secret,
			PrimaryMethod: method,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}, nil
}
