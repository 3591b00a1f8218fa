package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
	"github.com/stretchr/testify/require"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testTimeout: общий дедлайн на операции с БД в тестах.
const testTimeout = 10 * time.Second

// TestMain запускает MongoDB в контейнере один раз на весь пакет тестов.
// Каждый тест работает в своей БД с уникальным именем (см. mustNewMongo).
//
// Запуск локально:
//
//	GO_TEST_INTEGRATION=1 go test ./internal/storage/mongo -v -count=1
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7.0",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mongo testcontainer: %v\n", err)
		os.Exit(1)
	}

	host, err := mongoC.Host(ctx)
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := mongoC.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get mapped port: %v\n", err)
		os.Exit(1)
	}

	_ = os.Setenv("MONGO_TEST_URI", fmt.Sprintf("mongodb://%s:%s", host, port.Port()))

	code := m.Run()

	_ = mongoC.Terminate(context.Background())
	os.Exit(code)
}

// prefixHasher: детерминированный хэшер для проверки hash-on-write.
type prefixHasher struct{}

func (prefixHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

// mustNewMongo подключается к отдельной тестовой БД и удаляет её по завершении теста.
func mustNewMongo(t *testing.T) *Mongo {
	t.Helper()

	base := os.Getenv("MONGO_TEST_URI")
	if base == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	uri := strings.TrimRight(base, "/") + "/auth_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	m, err := New(ctx, uri, prefixHasher{})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = m.db.Drop(ctx)
		m.Close()
	})

	return m
}

func newUser(email string) *models.User {
	now := time.Now().UTC()
	u := &models.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		MFA:       models.MFA{PrimaryMethod: models.MFAMethodNone},
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.SetPassword("secret-password")

	return u
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)

	return ctx
}

func TestDatabaseFromURI(t *testing.T) {
	require.Equal(t, "auth", databaseFromURI("mongodb://localhost:27017/auth"))
	require.Equal(t, "auth", databaseFromURI("mongodb://localhost:27017/auth?retryWrites=true"))
	require.Equal(t, defaultDBName, databaseFromURI("mongodb://localhost:27017"))
	require.Equal(t, defaultDBName, databaseFromURI("mongodb://localhost:27017/"))
}

func TestDocument_RoundTripKeepsEmptyTokenSet(t *testing.T) {
	u := newUser("ada@example.com")
	doc := fromUser(u)
	require.NotNil(t, doc.RefreshTokens)
	require.Len(t, doc.RefreshTokens, 0)

	got, err := doc.toModel()
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, models.MFAMethodNone, got.MFA.PrimaryMethod)
}

func TestIntegration_CreateUser_HashesAndFinds(t *testing.T) {
	m := mustNewMongo(t)
	ctx := ctxT(t)

	u := newUser("ada@example.com")
	require.NoError(t, m.CreateUser(ctx, u))
	require.Equal(t, "hashed:secret-password", u.PasswordHash)

	byEmail, err := m.UserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)
	require.Equal(t, "hashed:secret-password", byEmail.PasswordHash)

	byID, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", byID.Email)
	require.Empty(t, byID.RefreshTokens)
}

func TestIntegration_CreateUser_DuplicateEmail(t *testing.T) {
	m := mustNewMongo(t)
	ctx := ctxT(t)

	require.NoError(t, m.CreateUser(ctx, newUser("ada@example.com")))
	err := m.CreateUser(ctx, newUser("ada@example.com"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIntegration_CreateUser_InvalidMFA(t *testing.T) {
	m := mustNewMongo(t)

	u := newUser("ada@example.com")
	u.MFA = models.MFA{Enabled: true, PrimaryMethod: models.MFAMethodTOTP}

	err := m.CreateUser(ctxT(t), u)
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
}

func TestIntegration_NotFound(t *testing.T) {
	m := mustNewMongo(t)
	ctx := ctxT(t)

	_, err := m.UserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = m.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = m.UserByRefreshToken(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = m.SaveUser(ctx, newUser("ghost@example.com"))
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = m.AppendRefreshToken(ctx, uuid.New(), models.RefreshToken{Token: "t"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_SaveUser_PreservesTokensAndRehashes(t *testing.T) {
	m := mustNewMongo(t)
	ctx := ctxT(t)

	u := newUser("ada@example.com")
	require.NoError(t, m.CreateUser(ctx, u))

	now := time.Now().UTC()
	require.NoError(t, m.AppendRefreshToken(ctx, u.ID, models.RefreshToken{
		Token: "r1", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	// Сохраняем устаревшую копию без токенов: набор в БД не должен пострадать.
	u.FirstName = "Augusta"
	u.SetPassword("another-password")
	require.NoError(t, m.SaveUser(ctx, u))

	got, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Augusta", got.FirstName)
	require.Equal(t, "hashed:another-password", got.PasswordHash)
	require.True(t, got.HasRefreshToken("r1"))
}

func TestIntegration_SaveUser_UnchangedPasswordNotRehashed(t *testing.T) {
	m := mustNewMongo(t)
	ctx := ctxT(t)

	u := newUser("ada@example.com")
	require.NoError(t, m.CreateUser(ctx, u))

	got, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	got.LastName = "Byron"
	require.NoError(t, m.SaveUser(ctx, got))

	again, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "hashed:secret-password", again.PasswordHash)
}

func TestIntegration_RefreshTokens_Lifecycle(t *testing.T) {
	m := mustNewMongo(t)
	ctx := ctxT(t)

	u := newUser("ada@example.com")
	require.NoError(t, m.CreateUser(ctx, u))

	now := time.Now().UTC()
	require.NoError(t, m.AppendRefreshToken(ctx, u.ID, models.RefreshToken{Token: "live", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, m.AppendRefreshToken(ctx, u.ID, models.RefreshToken{Token: "stale", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))

	owner, err := m.UserByRefreshToken(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, u.ID, owner.ID)
	require.Len(t, owner.RefreshTokens, 2)

	n, err := m.DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = m.UserByRefreshToken(ctx, "stale")
	require.ErrorIs(t, err, storage.ErrNotFound)

	removed, err := m.RemoveRefreshToken(ctx, "live")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = m.RemoveRefreshToken(ctx, "live")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestIntegration_AppendRefreshToken_Concurrent(t *testing.T) {
	m := mustNewMongo(t)
	ctx := ctxT(t)

	u := newUser("ada@example.com")
	require.NoError(t, m.CreateUser(ctx, u))

	const n = 20
	now := time.Now().UTC()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- m.AppendRefreshToken(ctx, u.ID, models.RefreshToken{
				Token: fmt.Sprintf("t-%d", i), IssuedAt: now, ExpiresAt: now.Add(time.Hour),
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := m.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.RefreshTokens, n)
}

func TestIntegration_UpdatePresence(t *testing.T) {
	m := mustNewMongo(t)
	ctx := ctxT(t)

	u := newUser("ada@example.com")
	require.NoError(t, m.CreateUser(ctx, u))

	seen := time.Now().UTC()
	got, err := m.UpdatePresence(ctx, u.ID, true, seen)
	require.NoError(t, err)
	require.True(t, got.IsOnline)
	require.WithinDuration(t, seen, got.LastSeen, time.Millisecond)

	_, err = m.UpdatePresence(ctx, uuid.New(), true, seen)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
