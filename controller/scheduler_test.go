package controller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nvr-ai/go-proctor/alerts"
	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/common"
	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/models"
	"github.com/nvr-ai/go-proctor/test"
	"github.com/nvr-ai/go-proctor/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(h *harness, opts ...controller.SchedulerOption) (*controller.Scheduler, *test.FrameSource) {
	source := test.NewFrameSource(64, 48)
	return controller.NewScheduler(h.pipeline, source, controller.DefaultSchedulerConfig(), opts...), source
}

func TestPollRespectsInterval(t *testing.T) {
	det := test.NewScriptedDetector(test.Step(test.Person(100, 100)))
	h := newHarness(det)
	s, source := newScheduler(h)
	ctx := context.Background()

	ran, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	h.clock.Advance(100 * time.Millisecond)
	ran, _ = s.Poll(ctx)
	assert.False(t, ran)

	h.clock.Advance(50 * time.Millisecond)
	ran, _ = s.Poll(ctx)
	assert.True(t, ran)

	assert.Equal(t, 2, det.Calls())
	assert.Equal(t, 2, source.Served())
}

func TestPollBacksOffAfterDetectorFailure(t *testing.T) {
	det := test.NewScriptedDetector(
		test.Fail(errors.New("inference timeout")),
		test.Step(test.Person(100, 100)),
	)
	h := newHarness(det)
	s, _ := newScheduler(h)
	ctx := context.Background()

	ran, err := s.Poll(ctx)
	require.Error(t, err)
	assert.False(t, ran)

	ran, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "no retry before the interval elapses")
	assert.Equal(t, 1, det.Calls())

	h.clock.Advance(150 * time.Millisecond)
	ran, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, h.state.Stats().TotalDetected)

	metrics := s.CollectMetrics()
	assert.Equal(t, float64(1), metrics["pipeline.steps"])
	assert.Equal(t, float64(1), metrics["pipeline.step_failures"])
}

func TestPollNotReady(t *testing.T) {
	det := test.NewScriptedDetector(test.Step())
	h := newHarness(det)
	ready := test.NewReadiness(false)
	s, _ := newScheduler(h, controller.WithReadiness(ready))
	ctx := context.Background()

	_, err := s.Poll(ctx)
	assert.ErrorIs(t, err, controller.ErrNotReady)
	assert.Equal(t, 0, det.Calls())
	assert.Equal(t, controller.ModelStatus{Loaded: false, Progress: 0}, s.Model())
	assert.ErrorIs(t, s.Start(ctx), controller.ErrNotReady)

	ready.Set(true)
	h.clock.Advance(150 * time.Millisecond)
	ran, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, controller.ModelStatus{Loaded: true, Progress: 100}, s.Model())
}

func TestPollCanceledContext(t *testing.T) {
	det := test.NewScriptedDetector(test.Step())
	s, _ := newScheduler(newHarness(det))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran, err := s.Poll(ctx)
	assert.False(t, ran)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, det.Calls())
}

func TestPollFrameSourceError(t *testing.T) {
	det := test.NewScriptedDetector(test.Step())
	h := newHarness(det)
	s, source := newScheduler(h)
	source.SetError(controller.ErrNoFrame)

	_, err := s.Poll(context.Background())
	assert.ErrorIs(t, err, controller.ErrNoFrame)
	assert.Equal(t, 0, det.Calls())
}

func TestSchedulerPruneIsIdempotent(t *testing.T) {
	det := test.NewScriptedDetector(
		test.Step(test.Person(100, 100), test.Phone(110, 110, 0.9)),
		test.Step(test.Person(100, 100)),
	)
	h := newHarness(det)
	s, _ := newScheduler(h)
	ctx := context.Background()

	_, err := s.Poll(ctx)
	require.NoError(t, err)
	h.clock.Advance(20 * time.Second)
	_, err = s.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Prune())
	assert.Equal(t, 0, s.Prune())
	assert.Equal(t, 1, h.state.Alerts.Len())

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 1, s.Prune())
	assert.Equal(t, 0, s.Prune())
	assert.Equal(t, 0, h.state.Alerts.Len())
}

func TestSchedulerObserversSeeStepsAndConsumerChanges(t *testing.T) {
	det := test.NewScriptedDetector(test.Step(test.Person(100, 100), test.Phone(110, 110, 0.9)))
	h := newHarness(det)
	s, _ := newScheduler(h)

	var (
		mu    sync.Mutex
		snaps []controller.Snapshot
	)
	s.OnSnapshot(func(snap controller.Snapshot) {
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	})

	_, err := s.Poll(context.Background())
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Alerts, 1)
	id := snap.Alerts[0].ID

	assert.False(t, s.Dismiss("missing"))
	assert.True(t, s.Dismiss(id))
	s.ClearAll()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snaps, 3)
	assert.Len(t, snaps[0].Alerts, 1)
	assert.Len(t, snaps[0].Persons, 1)
	assert.Empty(t, snaps[1].Alerts)
	assert.Empty(t, snaps[2].Alerts)
}

// realPipeline builds a pipeline on the wall clock for Start/Stop tests.
func realPipeline(det controller.Detector) (*controller.Pipeline, *controller.State) {
	state := controller.NewState(alerts.DefaultConfig())
	extractor := tracking.NewExtractor(models.LabelPerson, tracking.NewProximityAssigner(state.Tracker, 120))
	return controller.NewPipeline(det, extractor, behavior.NewAnalyzer(behavior.DefaultConfig()), state), state
}

func TestSchedulerStartStop(t *testing.T) {
	det := test.NewScriptedDetector(test.Step(test.Person(100, 100)))
	pipeline, state := realPipeline(det)
	s := controller.NewScheduler(pipeline, test.NewFrameSource(64, 48), controller.SchedulerConfig{
		Interval:      5 * time.Millisecond,
		PruneInterval: 20 * time.Millisecond,
		Room:          "A-101",
	})

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(context.Background()), controller.ErrAlreadyRunning)

	require.Eventually(t, func() bool { return det.Calls() >= 3 }, 2*time.Second, time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	calls := det.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, det.Calls(), "no step may run after Stop")

	session, ok := state.Session(time.Now())
	require.True(t, ok)
	assert.Equal(t, "A-101", session.Room)
	assert.NotNil(t, session.EndedAt)
	assert.Equal(t, 1, session.PeakStudentCount)

	// Stop is idempotent and the scheduler can be restarted.
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestSchedulerObserverCanStopScheduler(t *testing.T) {
	det := test.NewScriptedDetector(test.Step(test.Person(100, 100)))
	pipeline, state := realPipeline(det)
	s := controller.NewScheduler(pipeline, test.NewFrameSource(64, 48), controller.SchedulerConfig{
		Interval:      5 * time.Millisecond,
		PruneInterval: time.Second,
	})

	stopped := make(chan struct{})
	var first atomic.Bool
	s.OnSnapshot(func(controller.Snapshot) {
		if first.CompareAndSwap(false, true) {
			s.Stop()
			close(stopped)
		}
	})

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop deadlocked when called from an observer")
	}

	assert.False(t, s.Running())
	session, ok := state.Session(time.Now())
	require.True(t, ok)
	assert.NotNil(t, session.EndedAt)

	calls := det.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, det.Calls(), "no step may run after Stop")
}

func TestSchedulerStepsNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight, calls atomic.Int32
	det := controller.DetectorFunc(func(ctx context.Context, _ controller.Frame) ([]common.Detection, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})

	pipeline, _ := realPipeline(det)
	s := controller.NewScheduler(pipeline, test.NewFrameSource(8, 8), controller.SchedulerConfig{
		Interval:      time.Millisecond,
		PruneInterval: time.Second,
	})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() >= 4 }, 2*time.Second, time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestSchedulerStopCancelsSlowDetector(t *testing.T) {
	det := test.NewScriptedDetector(test.Step()).WithDelay(time.Minute)
	pipeline, _ := realPipeline(det)
	s := controller.NewScheduler(pipeline, test.NewFrameSource(8, 8), controller.DefaultSchedulerConfig())

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a detect call was in flight")
	}
}
