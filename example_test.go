package windowrecorder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	windowrecorder "github.com/e7canasta/orion-care-sensor/modules/window-recorder"
)

func TestPublicAPIRecordsWindow(t *testing.T) {
	cfg := windowrecorder.DefaultConfig()
	cfg.Backend = "sim"
	cfg.Capture.Element = "videotestsrc"
	cfg.Target.Window = "firefox"
	cfg.Output.Path = filepath.Join(t.TempDir(), "public.mp4")
	cfg.Inference.Width, cfg.Inference.Height = 16, 16
	cfg.Encode.Width, cfg.Encode.Height = 64, 48

	bus := windowrecorder.NewEventBus()
	var mu sync.Mutex
	var transitions []string
	defer bus.Subscribe(func(e windowrecorder.PipelineStateEvent) {
		mu.Lock()
		transitions = append(transitions, e.To)
		mu.Unlock()
	})()

	var frames atomic.Int64
	rec, err := windowrecorder.New(
		windowrecorder.WithConfig(cfg),
		windowrecorder.WithProvider(windowrecorder.StaticWindows(
			windowrecorder.Window{Title: "Terminal", Handle: 0x10},
			windowrecorder.Window{Title: "Mozilla Firefox", Handle: 0x20, PID: 42},
		)),
		windowrecorder.WithEvents(bus),
		windowrecorder.WithFrameHandler(func(*windowrecorder.Sample) windowrecorder.Flow {
			frames.Add(1)
			return windowrecorder.FlowOK
		}),
	)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- rec.Run(context.Background()) }()

	require.Eventually(t, func() bool { return frames.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, windowrecorder.StatePlaying, rec.State())
	assert.Equal(t, uint64(0x20), rec.Stats().Target.Handle)

	assert.True(t, rec.RequestShutdown())
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("recorder did not terminate")
	}
	assert.Equal(t, windowrecorder.StateTerminated, rec.State())

	info, err := os.Stat(cfg.Output.Path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) > 0 && transitions[len(transitions)-1] == windowrecorder.StateTerminated.String()
	}, time.Second, 10*time.Millisecond)
}

func TestMissingWMCtrlFailsResolution(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	cfg := windowrecorder.DefaultConfig()
	cfg.Backend = "sim"
	cfg.Target.Provider = "wmctrl"
	cfg.Target.Window = "firefox"
	cfg.Output.Path = filepath.Join(t.TempDir(), "never.mp4")

	rec, err := windowrecorder.New(windowrecorder.WithConfig(cfg))
	require.NoError(t, err)

	_, err = rec.Windows(context.Background())
	assert.ErrorIs(t, err, windowrecorder.ErrProviderUnavailable)

	err = rec.Run(context.Background())
	var rerr *windowrecorder.ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.ErrorIs(t, err, windowrecorder.ErrProviderUnavailable)
	assert.False(t, errors.Is(err, windowrecorder.ErrNotFound))

	_, err = os.Stat(cfg.Output.Path)
	assert.True(t, os.IsNotExist(err))
}
