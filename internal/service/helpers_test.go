package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/pribylovaa/bytebot-auth/internal/cache"
	"github.com/pribylovaa/bytebot-auth/internal/config"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/pkg/password"
	"github.com/pribylovaa/bytebot-auth/internal/storage/memory"
	"github.com/pribylovaa/bytebot-auth/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:    "unit-access-secret",
		RefreshSecret:   "unit-refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		MFAPendingTTL:   5 * time.Minute,
		Issuer:          "bytebot-auth",
		BcryptCost:      bcrypt.MinCost,
	}
}

func testMFACfg() config.MFAConfig {
	return config.MFAConfig{Issuer: "ByteBot", Skew: 1, QRSize: 64}
}

// fixture: Service с моками хранилища/брокера и Redis в miniredis.
type fixture struct {
	svc    *Service
	st     *mocks.MockStorage
	pub    *mocks.MockPublisher
	mr     *miniredis.Miniredis
	hasher *password.Bcrypt
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		st:     mocks.NewMockStorage(ctrl),
		pub:    mocks.NewMockPublisher(ctrl),
		mr:     mr,
		hasher: password.New(bcrypt.MinCost),
	}
	f.svc = New(Deps{
		Storage:   f.st,
		Registry:  cache.NewRegistry(rdb),
		Profiles:  cache.NewProfileCache(rdb, time.Hour),
		Publisher: f.pub,
		Hasher:    f.hasher,
		Auth:      testAuthCfg(),
		MFA:       testMFACfg(),
	})

	return f
}

// newUser создаёт пользователя с уже захэшированным паролем.
func (f *fixture) newUser(t *testing.T, email, pw string) *models.User {
	t.Helper()

	u := &models.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "A",
		LastName:  "B",
		MFA:       models.MFA{PrimaryMethod: models.MFAMethodNone},
	}
	u.SetPassword(pw)
	require.NoError(t, u.HashPendingPassword(f.hasher))

	return u
}

func validCode(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)

	return code
}

// wrongCode возвращает код, который не совпадает ни с одним окном в пределах допуска.
func wrongCode(t *testing.T, secret string) string {
	t.Helper()

	now := time.Now().UTC()
	taken := map[string]bool{}
	for _, d := range []time.Duration{-60 * time.Second, -30 * time.Second, 0, 30 * time.Second, 60 * time.Second} {
		c, err := totp.GenerateCodeCustom(secret, now.Add(d), totp.ValidateOpts{
			Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
		})
		require.NoError(t, err)
		taken[c] = true
	}

	for _, c := range []string{"000000", "111111", "222222", "333333", "444444", "555555"} {
		if !taken[c] {
			return c
		}
	}
	t.Fatal("no wrong code candidate")

	return ""
}

func newSecret(t *testing.T) string {
	t.Helper()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "ByteBot", AccountName: "a@x.com", SecretSize: 20})
	require.NoError(t, err)

	return key.Secret()
}

// newMemService собирает Service поверх in-memory хранилища и miniredis.
func newMemService(t *testing.T) (*Service, *memory.Storage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := password.New(bcrypt.MinCost)
	st := memory.New(h)

	svc := New(Deps{
		Storage:  st,
		Registry: cache.NewRegistry(rdb),
		Profiles: cache.NewProfileCache(rdb, time.Hour),
		Hasher:   h,
		Auth:     testAuthCfg(),
		MFA:      testMFACfg(),
	})

	return svc, st, mr
}
