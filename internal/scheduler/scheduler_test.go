package scheduler

import (
	"context"
	"lyricfx/internal/lyrics"
	"testing"
	"time"
)

var abc = []lyrics.Line{{Time: 0, Text: "a"}, {Time: 10, Text: "b"}, {Time: 20, Text: "c"}}

func TestActiveIndex(t *testing.T) {
	tests := []struct {
		at   float64
		want int
	}{
		{-1, -1},
		{0, 0},
		{5, 0},
		{10, 1},
		{15, 1},
		{20, 2},
		{999, 2},
	}
	for _, tt := range tests {
		if got := ActiveIndex(abc, tt.at); got != tt.want {
			t.Errorf("ActiveIndex(%v) = %d, want %d", tt.at, got, tt.want)
		}
	}
	if got := ActiveIndex(nil, 3); got != -1 {
		t.Errorf("ActiveIndex on empty timeline = %d, want -1", got)
	}
}

func TestActiveIndexMatchesLinearScan(t *testing.T) {
	lines := []lyrics.Line{{Time: 1}, {Time: 1}, {Time: 2.5}, {Time: 4}, {Time: 4}, {Time: 9}}
	linear := func(at float64) int {
		idx := -1
		for i, l := range lines {
			if l.Time <= at {
				idx = i
			}
		}
		return idx
	}
	for at := -1.0; at < 11; at += 0.25 {
		if got, want := ActiveIndex(lines, at), linear(at); got != want {
			t.Errorf("ActiveIndex(%v) = %d, linear scan = %d", at, got, want)
		}
	}
}

type recorder struct {
	pos     float64
	ready   bool
	indexes []int
}

func (r *recorder) position(ctx context.Context) (float64, bool) { return r.pos, r.ready }

func (r *recorder) activate(index int, line lyrics.Line) { r.indexes = append(r.indexes, index) }

func newRecorded() (*Scheduler, *recorder) {
	r := &recorder{ready: true}
	return New(r.position, r.activate, time.Millisecond, 0), r
}

func TestTickEdgeTriggered(t *testing.T) {
	s, r := newRecorded()
	s.Publish(abc)
	ctx := context.Background()

	r.pos = 11
	if !s.Tick(ctx) {
		t.Fatal("first tick should activate")
	}
	r.pos = 12
	if s.Tick(ctx) {
		t.Error("same index must not re-activate")
	}
	r.pos = 3
	s.Tick(ctx)
	r.pos = -2
	s.Tick(ctx)

	want := []int{1, 0, -1}
	if len(r.indexes) != len(want) {
		t.Fatalf("Expected activations %v, got %v", want, r.indexes)
	}
	for i := range want {
		if r.indexes[i] != want[i] {
			t.Errorf("activation %d: got %d, want %d", i, r.indexes[i], want[i])
		}
	}
}

func TestTickSkips(t *testing.T) {
	t.Run("NoTimeline", func(t *testing.T) {
		s, r := newRecorded()
		if s.Tick(context.Background()) || len(r.indexes) != 0 {
			t.Error("tick without timeline should be a no-op")
		}
	})

	t.Run("Hidden", func(t *testing.T) {
		s, r := newRecorded()
		s.Publish(abc)
		s.SetVisible(false)
		if s.Tick(context.Background()) || len(r.indexes) != 0 {
			t.Error("tick while hidden should be a no-op")
		}
		s.SetVisible(true)
		if !s.Tick(context.Background()) {
			t.Error("tick after show should activate")
		}
	})

	t.Run("PlayerNotReady", func(t *testing.T) {
		s, r := newRecorded()
		s.Publish(abc)
		r.ready = false
		if s.Tick(context.Background()) {
			t.Error("tick with player not ready should be a no-op")
		}
	})

	t.Run("Unpublished", func(t *testing.T) {
		s, _ := newRecorded()
		s.Publish(abc)
		s.Publish(nil)
		if s.Lines() != nil || s.Tick(context.Background()) {
			t.Error("publishing nil should unload the timeline")
		}
	})
}

func TestTickResetsOnNewTimeline(t *testing.T) {
	s, r := newRecorded()
	ctx := context.Background()
	r.pos = 12

	s.Publish(abc)
	s.Tick(ctx)
	s.Publish([]lyrics.Line{{Time: 0, Text: "x"}, {Time: 10, Text: "y"}})
	if !s.Tick(ctx) {
		t.Error("same index on a new timeline should activate again")
	}
	if len(r.indexes) != 2 || r.indexes[1] != 1 {
		t.Errorf("Unexpected activations %v", r.indexes)
	}
}

func TestTickOffset(t *testing.T) {
	r := &recorder{ready: true, pos: 9.8}
	s := New(r.position, r.activate, time.Millisecond, 300*time.Millisecond)
	s.Publish(abc)
	s.Tick(context.Background())
	if len(r.indexes) != 1 || r.indexes[0] != 1 {
		t.Errorf("Expected lookahead to activate line 1, got %v", r.indexes)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newRecorded()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
