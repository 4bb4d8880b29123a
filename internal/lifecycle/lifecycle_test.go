package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"liveclass/internal/core"
	"liveclass/internal/domain"
)

type fakeTransport struct {
	mu     sync.Mutex
	leaves int
}

func (f *fakeTransport) Connect(context.Context) error { return nil }

func (f *fakeTransport) Leave(context.Context) error {
	f.mu.Lock()
	f.leaves++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Publish(string, core.Frame) error   { return nil }
func (f *fakeTransport) Subscribe(string, func(core.Frame)) {}
func (f *fakeTransport) State() core.ConnectionState        { return core.StateConnected }

func (f *fakeTransport) leaveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaves
}

type fakeRecorder struct {
	mu        sync.Mutex
	starts    int
	stops     int
	failStart bool
	failStop  bool
}

func (f *fakeRecorder) StartEgress(context.Context, domain.SessionID, domain.RoomName) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart {
		return "", errors.New("egress backend down")
	}
	f.starts++
	return fmt.Sprintf("egress-%d", f.starts), nil
}

func (f *fakeRecorder) StopEgress(context.Context, string, domain.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.failStop {
		return errors.New("egress backend down")
	}
	return nil
}

func (f *fakeRecorder) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type fixture struct {
	ctl       *Controller
	transport *fakeTransport
	recorder  *fakeRecorder
	now       time.Time
	mu        sync.Mutex
	ended     int
}

func newFixture(start, end time.Time) *fixture {
	f := &fixture{
		transport: &fakeTransport{},
		recorder:  &fakeRecorder{},
		now:       start.Add(-time.Minute),
	}
	timing := domain.ClassTiming{StartTime: start, EndTime: end}
	f.ctl = NewController("sess-1", "room-1", timing, 10*time.Minute, time.Second,
		f.transport, f.recorder, func() {
			f.mu.Lock()
			f.ended++
			f.mu.Unlock()
		}).WithClock(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	})
	return f
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fixture) endCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}

func TestPhaseBoundaries(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	f := newFixture(start, end)

	cases := []struct {
		at   time.Time
		want Phase
	}{
		{start.Add(-5 * time.Second), PhasePreClass},
		{start, PhaseActive},
		{end.Add(-time.Second), PhaseActive},
		{end, PhaseGrace},
		{end.Add(10*time.Minute - time.Second), PhaseGrace},
		{end.Add(10 * time.Minute), PhaseTerminated},
	}
	for _, tc := range cases {
		if got := f.ctl.PhaseAt(tc.at); got != tc.want {
			t.Fatalf("PhaseAt(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
}

// The worked example: start=T, end=T+60s, grace 10 minutes.
func TestStatusExample(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Second)
	f := newFixture(start, end)

	f.setNow(start.Add(-5 * time.Second))
	st := f.ctl.Status()
	if st.Phase != PhasePreClass || !st.IsPreClass || st.Display != "00:05" {
		t.Fatalf("T-5s: %+v", st)
	}

	f.setNow(start.Add(61 * time.Second))
	st = f.ctl.Status()
	if st.Phase != PhaseGrace || !st.IsGracePeriod || st.Display != "09:59" {
		t.Fatalf("T+61s: %+v", st)
	}

	f.setNow(start.Add(661 * time.Second))
	st = f.ctl.Status()
	if st.Phase != PhaseTerminated || !st.ShouldEnd {
		t.Fatalf("T+661s: %+v", st)
	}
}

func TestTerminationEdgeTriggeredOnce(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Second)
	f := newFixture(start, end)
	ctx := t.Context()

	f.setNow(start.Add(time.Second))
	f.ctl.Connected(ctx)

	// Walk the clock across the threshold and keep ticking well past it.
	f.setNow(start.Add(661 * time.Second))
	for i := 0; i < 10; i++ {
		f.ctl.Tick(ctx)
	}

	if got := f.transport.leaveCount(); got != 1 {
		t.Fatalf("leave calls = %d, want exactly 1", got)
	}
	if _, stops := f.recorder.counts(); stops != 1 {
		t.Fatalf("stop-recording calls = %d, want exactly 1", stops)
	}
	if f.endCount() != 1 {
		t.Fatalf("session-end callbacks = %d, want exactly 1", f.endCount())
	}
}

func TestPhaseOrderMonotonic(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Second)
	f := newFixture(start, end)
	ctx := t.Context()

	var seen []Phase
	f.ctl.OnTick(func(st Status) {
		if len(seen) == 0 || seen[len(seen)-1] != st.Phase {
			seen = append(seen, st.Phase)
		}
	})

	// One tick per simulated second across the whole session.
	for at := start.Add(-3 * time.Second); ; at = at.Add(time.Second) {
		f.setNow(at)
		if done := f.ctl.Tick(ctx); done {
			break
		}
	}

	want := []Phase{PhasePreClass, PhaseActive, PhaseGrace, PhaseTerminated}
	if len(seen) != len(want) {
		t.Fatalf("phases = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("phases = %v, want %v", seen, want)
		}
	}
}

func TestRecordingSegmentPerRejoin(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	f := newFixture(start, end)
	ctx := t.Context()

	f.setNow(start)
	f.ctl.Connected(ctx)
	f.setNow(start.Add(10 * time.Minute))
	f.ctl.StopSegment(ctx) // back-navigation

	f.setNow(start.Add(15 * time.Minute))
	f.ctl.Connected(ctx) // rejoin
	f.setNow(start.Add(20 * time.Minute))
	f.ctl.EndCall(ctx)

	segs := f.ctl.Segments()
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2 (one per join)", len(segs))
	}
	if segs[0].EgressID == segs[1].EgressID {
		t.Fatal("segments must be distinct recordings")
	}
	if !segs[0].StoppedAt.Before(segs[1].StartedAt) {
		t.Fatalf("segments overlap: %+v", segs)
	}
}

func TestDuplicateStartsCollapse(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(start, start.Add(time.Hour))
	ctx := t.Context()

	f.setNow(start)
	f.ctl.Connected(ctx)
	f.ctl.Connected(ctx)
	f.ctl.StartSegment(ctx)

	starts, _ := f.recorder.counts()
	if starts != 1 {
		t.Fatalf("egress starts = %d, want 1", starts)
	}
}

func TestRecorderFailuresNeverBlockTermination(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Second)
	f := newFixture(start, end)
	f.recorder.failStop = true
	ctx := t.Context()

	f.setNow(start)
	f.ctl.Connected(ctx)
	f.setNow(end.Add(11 * time.Minute))
	f.ctl.Tick(ctx)

	if f.transport.leaveCount() != 1 {
		t.Fatal("stop failure must not prevent leaving the room")
	}
	if f.endCount() != 1 {
		t.Fatal("stop failure must not prevent the end callback")
	}
}

func TestStartFailureLeavesNoSegment(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(start, start.Add(time.Hour))
	f.recorder.failStart = true
	ctx := t.Context()

	f.setNow(start)
	f.ctl.Connected(ctx)
	f.ctl.StopSegment(ctx)

	if len(f.ctl.Segments()) != 0 {
		t.Fatal("failed start must not produce a segment")
	}
}

func TestNoRecorderConfigured(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Second)
	f := newFixture(start, end)
	f.ctl.recorder = nil
	ctx := t.Context()

	f.setNow(start)
	f.ctl.Connected(ctx)
	f.setNow(end.Add(11 * time.Minute))
	f.ctl.Tick(ctx)

	if f.transport.leaveCount() != 1 || f.endCount() != 1 {
		t.Fatal("termination must work without a recorder")
	}
}
