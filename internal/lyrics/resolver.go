package lyrics

import (
	"context"
	"errors"
	"fmt"
	"lyricfx/pkg/music"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DurationTolerance is the largest gap, in seconds, at which a candidate's
// duration still counts as the played track's.
const DurationTolerance = 5.0

// ErrNoMatch means no candidate with usable lyrics was found.
var ErrNoMatch = errors.New("no matching lyrics")

type Resolver struct {
	corpus music.MusicAPI
}

func NewResolver(corpus music.MusicAPI) *Resolver {
	return &Resolver{corpus: corpus}
}

// Resolve finds lyrics for a playing track. It returns ErrNoMatch when
// neither query produced a usable candidate.
func (r *Resolver) Resolve(ctx context.Context, title, artist string, duration float64) (*Result, error) {
	modified := IsModified(title)
	clean := NormalizeTitle(title)

	logger().Info().
		Str("title", title).
		Str("query_title", clean).
		Str("artist", artist).
		Float64("duration", duration).
		Bool("modified", modified).
		Msg("Resolving lyrics")

	query := strings.TrimSpace(clean + " " + artist)
	cands := r.search(ctx, query)
	if len(cands) == 0 && query != clean {
		logger().Info().Str("query", clean).Msg("No results with artist, retrying with title only")
		cands = r.search(ctx, clean)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoMatch, title)
	}

	best, err := SelectCandidate(cands, duration, modified)
	if err != nil {
		return nil, fmt.Errorf("%w for %q", err, title)
	}

	result := &Result{
		Provider:   best.Provider,
		Modified:   modified,
		SpeedRatio: SpeedRatio(best.Duration, duration, modified),
	}
	if result.SpeedRatio != 1 {
		logger().Info().
			Float64("ratio", result.SpeedRatio).
			Float64("original", best.Duration).
			Float64("current", duration).
			Msg("Speed mod detected")
	}

	if best.HasSynced() {
		result.Lines = Rescale(ParseLRC(best.SyncedLyrics), result.SpeedRatio)
	}
	if len(result.Lines) == 0 {
		if !best.HasPlain() {
			return nil, fmt.Errorf("%w for %q: synced lyrics had no lines", ErrNoMatch, title)
		}
		result.Plain = best.PlainLyrics
	}

	logger().Info().
		Str("provider", best.Provider).
		Str("track", best.TrackName).
		Float64("candidate_duration", best.Duration).
		Int("lines", len(result.Lines)).
		Bool("synced", result.Synced()).
		Msg("Selected lyrics")
	return result, nil
}

// search treats a failed request as an empty result.
func (r *Resolver) search(ctx context.Context, query string) []music.Candidate {
	cands, err := r.corpus.Search(ctx, query)
	if err != nil {
		logger().Warn().Err(err).Str("query", query).Msg("Lyrics search failed")
		return nil
	}
	return cands
}

func validDuration(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}

// SelectCandidate applies the fixed preference order: duration-matched synced
// lyrics (only for unmodified tracks with a known duration), then any synced
// lyrics, then any plain lyrics.
func SelectCandidate(cands []music.Candidate, duration float64, modified bool) (music.Candidate, error) {
	if validDuration(duration) && !modified {
		for _, c := range cands {
			if math.Abs(c.Duration-duration) < DurationTolerance && c.HasSynced() {
				return c, nil
			}
		}
	}
	for _, c := range cands {
		if c.HasSynced() {
			return c, nil
		}
	}
	for _, c := range cands {
		if c.HasPlain() {
			return c, nil
		}
	}
	return music.Candidate{}, ErrNoMatch
}

// SpeedRatio is candidate/played duration for modified tracks whose durations
// differ by more than DurationTolerance, and 1 otherwise.
func SpeedRatio(candidateDuration, playedDuration float64, modified bool) float64 {
	if !modified || !validDuration(candidateDuration) || !validDuration(playedDuration) {
		return 1
	}
	if math.Abs(candidateDuration-playedDuration) <= DurationTolerance {
		return 1
	}
	return candidateDuration / playedDuration
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "resolver").Logger()
	return &l
}
