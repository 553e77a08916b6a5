package translate

import (
	"context"
	"errors"
	"fmt"
	"lyricfx/internal/lyrics"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxLineDrift is the largest tolerated difference between input and output
// line counts before a translation is rejected.
const MaxLineDrift = 5

var (
	// ErrAlignmentMismatch means the translated block cannot be mapped back
	// onto the original timestamps.
	ErrAlignmentMismatch = errors.New("translation line count mismatch")
	ErrEmptyTranslation  = errors.New("empty translation")
)

// Block is one translation job.
type Block struct {
	Text   string
	Artist string
	Track  string
	Target string
	// Aligned asks the backend to keep a strict one-to-one line mapping.
	Aligned bool
}

// Backend turns a block of text into its translation.
type Backend interface {
	Name() string
	Translate(ctx context.Context, block Block) (string, error)
}

type Adapter struct {
	backend Backend
	target  string
}

func NewAdapter(backend Backend, target string) *Adapter {
	return &Adapter{backend: backend, target: target}
}

// TranslateLines translates a synced timeline, keeping every original
// timestamp. On any failure the caller should keep the original lines.
func (a *Adapter) TranslateLines(ctx context.Context, lines []lyrics.Line, artist, track string) ([]lyrics.Line, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyTranslation
	}
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}

	resp, err := a.backend.Translate(ctx, Block{
		Text:    strings.Join(texts, "\n"),
		Artist:  artist,
		Track:   track,
		Target:  a.target,
		Aligned: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s translation failed: %w", a.backend.Name(), err)
	}

	out, err := Align(lines, resp)
	if err != nil {
		logger().Warn().Err(err).Str("track", track).Msg("Rejecting translation")
		return nil, err
	}
	logger().Info().Str("backend", a.backend.Name()).Int("lines", len(out)).Msg("Translated synced lyrics")
	return out, nil
}

// TranslateText translates an unsynced block. No alignment check applies.
func (a *Adapter) TranslateText(ctx context.Context, text, artist, track string) (string, error) {
	resp, err := a.backend.Translate(ctx, Block{Text: text, Artist: artist, Track: track, Target: a.target})
	if err != nil {
		return "", fmt.Errorf("%s translation failed: %w", a.backend.Name(), err)
	}
	if strings.TrimSpace(resp) == "" {
		return "", ErrEmptyTranslation
	}
	return resp, nil
}

// Align zips a translated block back onto the original timestamps. Indexes
// the response does not cover, or leaves blank, keep the original text.
func Align(orig []lyrics.Line, response string) ([]lyrics.Line, error) {
	response = strings.ReplaceAll(response, "\r\n", "\n")
	response = strings.TrimRight(response, "\n")
	if strings.TrimSpace(response) == "" {
		return nil, ErrEmptyTranslation
	}
	translated := strings.Split(response, "\n")

	drift := len(translated) - len(orig)
	if drift < 0 {
		drift = -drift
	}
	if drift > MaxLineDrift {
		return nil, fmt.Errorf("%w: got %d lines for %d", ErrAlignmentMismatch, len(translated), len(orig))
	}

	out := make([]lyrics.Line, len(orig))
	for i, l := range orig {
		out[i] = l
		if i < len(translated) {
			if text := strings.TrimSpace(translated[i]); text != "" {
				out[i].Text = text
			}
		}
	}
	return out, nil
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "translate").Logger()
	return &l
}
