package scheduler

import (
	"context"
	"lyricfx/internal/lyrics"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultInterval = 200 * time.Millisecond

// PositionFunc reports the current playback position in seconds. ok is false
// while the player is not ready.
type PositionFunc func(ctx context.Context) (pos float64, ok bool)

// ActivateFunc is called when the active line changes. index is -1 when
// playback is before the first line.
type ActivateFunc func(index int, line lyrics.Line)

type timeline struct {
	lines []lyrics.Line
}

type Scheduler struct {
	position PositionFunc
	activate ActivateFunc
	interval time.Duration
	offset   float64

	current atomic.Pointer[timeline]
	visible atomic.Bool

	// 仅由 Tick 使用
	tickMu    sync.Mutex
	seen      *timeline
	lastIndex int
}

func New(position PositionFunc, activate ActivateFunc, interval, offset time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		position:  position,
		activate:  activate,
		interval:  interval,
		offset:    offset.Seconds(),
		lastIndex: -2,
	}
	s.visible.Store(true)
	return s
}

// Publish replaces the timeline. The slice must not be modified afterwards.
// A nil or empty slice unloads the timeline.
func (s *Scheduler) Publish(lines []lyrics.Line) {
	if len(lines) == 0 {
		s.current.Store(nil)
		return
	}
	s.current.Store(&timeline{lines: lines})
}

func (s *Scheduler) Lines() []lyrics.Line {
	if tl := s.current.Load(); tl != nil {
		return tl.lines
	}
	return nil
}

func (s *Scheduler) SetVisible(v bool) { s.visible.Store(v) }

func (s *Scheduler) Visible() bool { return s.visible.Load() }

// ActiveIndex returns the greatest index whose time is <= t, or -1.
func ActiveIndex(lines []lyrics.Line, t float64) int {
	if len(lines) == 0 {
		return -1
	}

	// 如果时间在第一行歌词之前，返回 -1
	if t < lines[0].Time {
		return -1
	}

	// 二分查找
	left, right := 0, len(lines)-1
	result := -1
	for left <= right {
		mid := (left + right) / 2
		if lines[mid].Time <= t {
			result = mid
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return result
}

// Tick performs one synchronization step and reports whether the activation
// callback was invoked.
func (s *Scheduler) Tick(ctx context.Context) bool {
	tl := s.current.Load()
	if tl == nil || !s.visible.Load() {
		return false
	}

	pos, ok := s.position(ctx)
	if !ok {
		return false
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if tl != s.seen {
		s.seen = tl
		s.lastIndex = -2
	}

	index := ActiveIndex(tl.lines, pos+s.offset)
	if index == s.lastIndex {
		return false
	}
	s.lastIndex = index

	var line lyrics.Line
	if index >= 0 {
		line = tl.lines[index]
		logger().Debug().
			Int("index", index).
			Float64("player_time", pos).
			Float64("lyric_time", line.Time).
			Str("lyric", line.Text).
			Msg("Activating lyric")
	}
	s.activate(index, line)
	return true
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger().Info().Dur("interval", s.interval).Float64("offset", s.offset).Msg("Lyric scheduler started")
	for {
		select {
		case <-ctx.Done():
			logger().Info().Msg("Lyric scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "scheduler").Logger()
	return &l
}
