package log

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// Тесты меняют slog.Default(), поэтому без t.Parallel().

func TestFrom_NoLogger_ReturnsDefault(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := slog.New(slog.NewTextHandler(io.Discard, nil))
	slog.SetDefault(def)

	require.Equal(t, def, From(context.Background()))
}

func TestInto_From_RoundTrip(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := Into(context.Background(), l)

	require.Equal(t, l, From(ctx))
}

func TestFrom_NilLoggerInContext_ReturnsDefault(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := slog.New(slog.NewTextHandler(io.Discard, nil))
	slog.SetDefault(def)

	var nilLogger *slog.Logger
	ctx := Into(context.Background(), nilLogger)
	require.Equal(t, def, From(ctx))

	ctx = context.WithValue(context.Background(), ctxKey{}, "garbage")
	require.Equal(t, def, From(ctx))
}

// TestWith_AddsAttrs: атрибуты попадают во все записи дочернего контекста,
// родительский контекст не меняется.
func TestWith_AddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	parent := Into(context.Background(), base)

	child := With(parent, slog.String("user_id", "u-1"))
	From(child).Info("child_event")
	require.Contains(t, buf.String(), "user_id=u-1")

	buf.Reset()
	From(parent).Info("parent_event")
	require.NotContains(t, buf.String(), "user_id")
}

func TestWith_NoAttrs_ReturnsSameContext(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, ctx, With(ctx))
}
