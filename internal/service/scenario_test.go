package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScenario_SignupLoginLogout: signup → login → logout → тот же access-токен отклоняется.
func TestScenario_SignupLoginLogout(t *testing.T) {
	t.Parallel()

	svc, st, _ := newMemService(t)
	ctx := context.Background()

	_, u, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pw123456", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	require.NoError(t, err)
	require.False(t, res.MFARequired)

	_, err = svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken))

	_, err = svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// refresh-токен после logout больше не обменивается, хотя подпись валидна
	_, _, err = svc.RotateFromRefresh(ctx, res.Tokens.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidSession)

	stored, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, stored.IsOnline)
	require.Len(t, stored.RefreshTokens, 1, "остаётся только токен из signup")

	// повторный logout не ошибка
	require.NoError(t, svc.Logout(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken))
}

// TestScenario_MFALogin: включение MFA, вход требует код, неверный код не расходует
// pending-токен, верный выдаёт сессию.
func TestScenario_MFALogin(t *testing.T) {
	t.Parallel()

	svc, _, _ := newMemService(t)
	ctx := context.Background()

	_, u, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pw123456", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	setup, err := svc.BeginMFASetup(ctx, u.ID)
	require.NoError(t, err)

	// незавершённая настройка не влияет на вход
	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	require.NoError(t, err)
	require.False(t, res.MFARequired)

	_, err = svc.ConfirmMFASetup(ctx, u.ID, wrongCode(t, setup.Secret))
	require.ErrorIs(t, err, ErrInvalidCode)

	enabled, err := svc.ConfirmMFASetup(ctx, u.ID, validCode(t, setup.Secret))
	require.NoError(t, err)
	require.True(t, enabled.MFA.Enabled)

	res, err = svc.Login(ctx, "a@x.com", "pw123456")
	require.NoError(t, err)
	require.True(t, res.MFARequired)
	require.Nil(t, res.Tokens)

	_, err = svc.Authenticate(ctx, res.MFASessionToken)
	require.Error(t, err)

	_, _, err = svc.VerifyMFALogin(ctx, res.MFASessionToken, wrongCode(t, setup.Secret))
	require.ErrorIs(t, err, ErrInvalidCode)

	pair, _, err := svc.VerifyMFALogin(ctx, res.MFASessionToken, validCode(t, setup.Secret))
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	access, _, err := svc.RotateFromRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, access)

	// после отключения вход снова выдаёт сессию сразу
	_, err = svc.DisableMFA(ctx, u.ID)
	require.NoError(t, err)

	res, err = svc.Login(ctx, "a@x.com", "pw123456")
	require.NoError(t, err)
	require.False(t, res.MFARequired)
}

// TestScenario_RevocationExpires: запись реестра живёт не дольше остатка жизни токена.
func TestScenario_RevocationExpires(t *testing.T) {
	t.Parallel()

	svc, _, mr := newMemService(t)
	ctx := context.Background()

	pair, _, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pw123456", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.AccessToken, ""))

	key := "token:blacklist:" + pair.TokenID
	require.True(t, mr.Exists(key))
	require.LessOrEqual(t, mr.TTL(key), time.Until(pair.AccessExpiresAt)+time.Second)

	mr.FastForward(16 * time.Minute)
	require.False(t, mr.Exists(key))
}

func TestScenario_JanitorPurgesExpired(t *testing.T) {
	t.Parallel()

	svc, st, _ := newMemService(t)
	ctx := context.Background()

	_, u, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pw123456", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	later := New(Deps{
		Storage:  st,
		Registry: svc.registry,
		Auth:     testAuthCfg(),
		Now:      func() time.Time { return time.Now().Add(8 * 24 * time.Hour) },
	})

	n, err := later.PurgeExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	stored, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, stored.RefreshTokens)
}
