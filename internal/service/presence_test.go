package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/pribylovaa/bytebot-auth/internal/events"
	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestSetPresence_PublishesEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	u := f.newUser(t, "a@x.com", "pw123456")

	f.st.EXPECT().UpdatePresence(gomock.Any(), u.ID, true, gomock.Any()).Return(u, nil)
	f.pub.EXPECT().Publish(gomock.Any(), "user."+u.ID.String()+".presence", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, payload []byte) error {
			var ev events.PresenceEvent
			require.NoError(t, json.Unmarshal(payload, &ev))
			require.Equal(t, u.ID.String(), ev.UserID)
			require.Equal(t, events.StatusOnline, ev.Status)
			require.Equal(t, "A B", ev.Name)
			require.WithinDuration(t, time.Now(), ev.LastSeen, 5*time.Second)
			return nil
		})

	require.NoError(t, f.svc.SetPresence(context.Background(), u.ID, true))
}

func TestSetPresence_PublishFailure_Swallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	u := f.newUser(t, "a@x.com", "pw123456")

	f.st.EXPECT().UpdatePresence(gomock.Any(), u.ID, true, gomock.Any()).Return(u, nil)
	f.pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	require.NoError(t, f.svc.SetPresence(context.Background(), u.ID, true))
}

func TestSetPresence_StoreErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := uuid.New()

	f.st.EXPECT().UpdatePresence(gomock.Any(), id, true, gomock.Any()).Return(nil, storage.ErrNotFound)
	require.ErrorIs(t, f.svc.SetPresence(context.Background(), id, true), ErrUserNotFound)

	f.st.EXPECT().UpdatePresence(gomock.Any(), id, true, gomock.Any()).Return(nil, errors.New("down"))
	require.ErrorIs(t, f.svc.SetPresence(context.Background(), id, true), ErrStoreUnavailable)
}

func TestTouchPresence_Async(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	u := f.newUser(t, "a@x.com", "pw123456")

	done := make(chan error, 1)
	f.st.EXPECT().UpdatePresence(gomock.Any(), u.ID, true, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ uuid.UUID, _ bool, _ time.Time) (*models.User, error) {
			if _, ok := ctx.Deadline(); !ok {
				done <- errors.New("presence context has no deadline")
			} else {
				done <- ctx.Err()
			}
			return nil, errors.New("down")
		})

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.TouchPresence(ctx, u.ID, time.Second)
	// отмена запроса не прерывает фоновое обновление
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("presence update was not called")
	}
}
