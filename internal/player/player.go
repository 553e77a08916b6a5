package player

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNotReady means the player has no usable track right now.
var ErrNotReady = errors.New("player not ready")

type State struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Duration float64 `json:"duration"`
	Position float64 `json:"currentTime"`
}

// Ready reports whether the state describes an actual track. Players return
// empty metadata while loading.
func (s State) Ready() bool {
	return strings.TrimSpace(s.Title) != ""
}

// Source is a read-only view of the media player.
type Source interface {
	State(ctx context.Context) (State, error)
}

const (
	BackendPlayerctl = "playerctl"
	BackendMPRIS     = "mpris"
	BackendHTTP      = "http"
)

// Position adapts a Source for the synchronization loop.
func Position(src Source) func(ctx context.Context) (float64, bool) {
	return func(ctx context.Context) (float64, bool) {
		st, err := src.State(ctx)
		if err != nil || !st.Ready() || st.Position < 0 {
			return 0, false
		}
		return st.Position, true
	}
}

// Playerctl reads the active MPRIS player through the playerctl CLI.
type Playerctl struct {
	run func(ctx context.Context, args ...string) ([]byte, error)
}

func NewPlayerctl() *Playerctl {
	return &Playerctl{run: func(ctx context.Context, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, "playerctl", args...).Output()
	}}
}

const playerctlFormat = "{{title}}\t{{artist}}\t{{mpris:length}}\t{{position}}"

func (p *Playerctl) State(ctx context.Context) (State, error) {
	out, err := p.run(ctx, "metadata", "--format", playerctlFormat)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	st, err := parsePlayerctl(string(out))
	if err != nil {
		return State{}, err
	}
	if !st.Ready() {
		return State{}, ErrNotReady
	}
	return st, nil
}

// parsePlayerctl parses the tab separated output of playerctlFormat.
// Length and position are reported in microseconds.
func parsePlayerctl(out string) (State, error) {
	fields := strings.Split(strings.TrimRight(out, "\r\n"), "\t")
	if len(fields) != 4 {
		return State{}, fmt.Errorf("unexpected playerctl output %q", out)
	}
	st := State{
		Title:  strings.TrimSpace(fields[0]),
		Artist: strings.TrimSpace(fields[1]),
	}
	st.Duration = micros(fields[2])
	st.Position = micros(fields[3])
	return st, nil
}

func micros(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v / 1e6
}
