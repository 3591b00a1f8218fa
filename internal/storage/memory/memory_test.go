package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
	"github.com/stretchr/testify/require"
)

type prefixHasher struct{}

func (prefixHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

func newUser(email string) *models.User {
	u := &models.User{ID: uuid.New(), Email: email, MFA: models.MFA{PrimaryMethod: models.MFAMethodNone}}
	u.SetPassword("secret-password")

	return u
}

func TestStorage_CreateAndFind(t *testing.T) {
	s := New(prefixHasher{})
	ctx := context.Background()

	u := newUser("ada@example.com")
	require.NoError(t, s.CreateUser(ctx, u))
	require.Equal(t, "hashed:secret-password", u.PasswordHash)

	got, err := s.UserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = s.UserByEmail(ctx, "Ada@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = s.CreateUser(ctx, newUser("ada@example.com"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestStorage_ReturnsCopies(t *testing.T) {
	s := New(prefixHasher{})
	ctx := context.Background()

	u := newUser("ada@example.com")
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	got.FirstName = "changed"

	again, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, again.FirstName)
}

func TestStorage_SaveUser_KeepsTokens(t *testing.T) {
	s := New(prefixHasher{})
	ctx := context.Background()

	u := newUser("ada@example.com")
	require.NoError(t, s.CreateUser(ctx, u))
	require.NoError(t, s.AppendRefreshToken(ctx, u.ID, models.RefreshToken{Token: "r1", ExpiresAt: time.Now().Add(time.Hour)}))

	u.FirstName = "Ada"
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.UserByRefreshToken(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "Ada", got.FirstName)

	u.MFA = models.MFA{Enabled: true}
	require.ErrorIs(t, s.SaveUser(ctx, u), storage.ErrInvalidRecord)
}

func TestStorage_RefreshTokenLifecycle(t *testing.T) {
	s := New(prefixHasher{})
	ctx := context.Background()

	u := newUser("ada@example.com")
	require.NoError(t, s.CreateUser(ctx, u))

	now := time.Now()
	require.NoError(t, s.AppendRefreshToken(ctx, u.ID, models.RefreshToken{Token: "live", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.AppendRefreshToken(ctx, u.ID, models.RefreshToken{Token: "stale", ExpiresAt: now.Add(-time.Minute)}))
	require.ErrorIs(t, s.AppendRefreshToken(ctx, uuid.New(), models.RefreshToken{Token: "x"}), storage.ErrNotFound)

	n, err := s.DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	ok, err := s.RemoveRefreshToken(ctx, "live")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.RemoveRefreshToken(ctx, "live")
	require.NoError(t, err)
	require.False(t, ok)
}
