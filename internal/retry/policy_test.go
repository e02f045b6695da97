package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy("", 0, 0, -1)
	assert.Equal(t, DefaultPolicy(), p)

	p = NewPolicy("bogus", 5*time.Second, time.Second, 4)
	assert.Equal(t, ModeLinear, p.Mode)
	assert.Equal(t, time.Second, p.Initial, "initial is capped at max")
	assert.Equal(t, 4, p.MaxRetries)
	require.NoError(t, p.Validate())
}

func TestDelay(t *testing.T) {
	tests := []struct {
		mode Mode
		want []time.Duration
	}{
		{ModeFixed, []time.Duration{0, 100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}},
		{ModeLinear, []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}},
		{ModeExponential, []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p := NewPolicy(tt.mode, 100*time.Millisecond, 250*time.Millisecond, 3)
			for i, want := range tt.want {
				assert.Equal(t, want, p.Delay(i), "retry %d", i)
			}
		})
	}
	assert.Equal(t, time.Minute, NewPolicy(ModeExponential, time.Second, time.Minute, 1).Delay(64))
}

func TestValidate(t *testing.T) {
	err := Policy{Max: time.Second}.Validate()
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	require.Error(t, Policy{Initial: time.Second}.Validate())
	require.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.True(t, Retryable(ferrors.SourceError("clone failed").Retryable().Build()))
	assert.False(t, Retryable(ferrors.ConfigError("bad url").Build()))
	assert.False(t, Retryable(ferrors.SourceError("auth").WithCause(context.DeadlineExceeded).Retryable().Build()))
}

func fastPolicy(retries int) Policy {
	return NewPolicy(ModeFixed, time.Millisecond, time.Millisecond, retries)
}

func TestDo(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(t.Context(), fastPolicy(3), logger, "fetch", func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("temporary")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Do(t.Context(), fastPolicy(2), logger, "fetch", func(context.Context) error {
			calls++
			return errors.New("still down")
		})
		require.EqualError(t, err, "still down")
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		err := Do(t.Context(), fastPolicy(5), logger, "fetch", func(context.Context) error {
			calls++
			return ferrors.ValidationError("bad remote").Build()
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		calls := 0
		err := Do(ctx, NewPolicy(ModeFixed, time.Hour, time.Hour, 5), logger, "fetch", func(context.Context) error {
			calls++
			cancel()
			return errors.New("down")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
