package daemon

import (
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestScheduler_ScheduleEvery(t *testing.T) {
	t.Run("returns job id for valid interval", func(t *testing.T) {
		s, err := NewScheduler(discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop() })

		id, err := s.ScheduleEvery("test", 10*time.Second, func() {})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		s, err := NewScheduler(discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop() })

		_, err = s.ScheduleEvery("test", 0, func() {})
		require.Error(t, err)
		require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	})
}

func TestScheduler_RunsJobs(t *testing.T) {
	s, err := NewScheduler(discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	var runs atomic.Int32
	_, err = s.ScheduleEvery("tick", 20*time.Millisecond, func() { runs.Add(1) })
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}
