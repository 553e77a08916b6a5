package effects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lyricfx/pkg/ai"
	"strings"
)

const (
	DefaultRuleCount   = 3
	DefaultMaxAttempts = 3
	maxLyricsInPrompt  = 6000
)

// ErrStale is returned when the track changed before the rules could be merged.
var ErrStale = errors.New("generation superseded by a newer track")

// Request describes one generation cycle. Current reports whether the track
// the request was made for is still playing; nil means always current.
type Request struct {
	Lyrics  string
	Artist  string
	Track   string
	Current func() bool
}

type Generator struct {
	client      ai.AiInterface
	engine      *Engine
	ruleCount   int
	maxAttempts int
}

func NewGenerator(client ai.AiInterface, engine *Engine, ruleCount, maxAttempts int) *Generator {
	if ruleCount <= 0 {
		ruleCount = DefaultRuleCount
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{client: client, engine: engine, ruleCount: ruleCount, maxAttempts: maxAttempts}
}

// Generate asks the model for new rules and merges them. Each retry carries
// the previous failure in the prompt. The returned error is informational;
// callers are expected to continue without AI effects.
func (g *Generator) Generate(ctx context.Context, req Request) error {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if req.Current != nil && !req.Current() {
			return ErrStale
		}

		specs, err := g.attempt(ctx, req, lastErr)
		if err == nil {
			if req.Current != nil && !req.Current() {
				return ErrStale
			}
			return g.engine.MergeAIRulesIf(specs, req.Current)
		}

		lastErr = err
		logger().Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", g.maxAttempts).
			Str("track", req.Track).
			Msg("AI effect generation failed")

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("ai effects abandoned after %d attempts: %w", g.maxAttempts, lastErr)
}

func (g *Generator) attempt(ctx context.Context, req Request, previous error) ([]RuleSpec, error) {
	resp, err := g.client.HandleText(ctx, g.prompt(req, previous))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	specs, err := ParseRules(resp)
	if err != nil {
		return nil, err
	}
	if err := g.engine.Validate(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ParseRules decodes a completion into rule specs. The completion must be a
// non-empty JSON array whose first entry carries id, pattern and css.
func ParseRules(completion string) ([]RuleSpec, error) {
	body := ai.StripFences(completion)
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: not JSON: %v", ai.ErrMalformedResponse, err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		return nil, fmt.Errorf("%w: expected a JSON array", ai.ErrMalformedResponse)
	}
	var specs []RuleSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrMalformedResponse, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty array", ai.ErrMalformedResponse)
	}
	first := specs[0]
	if first.ID == "" || first.Pattern == "" || first.CSS == "" {
		return nil, fmt.Errorf("%w: first entry is missing id, pattern or css", ai.ErrMalformedResponse)
	}
	return specs, nil
}

func (g *Generator) prompt(req Request, previous error) string {
	lyricsText := req.Lyrics
	if len(lyricsText) > maxLyricsInPrompt {
		lyricsText = strings.ToValidUTF8(lyricsText[:maxLyricsInPrompt], "")
	}

	core := g.engine.Snapshot().Core()
	taken := make([]string, len(core))
	for i, r := range core {
		taken[i] = r.ID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You design visual effects for a lyrics overlay. The song is %q by %q.\n", req.Track, req.Artist)
	fmt.Fprintf(&b, "Propose exactly %d new effects tied to words or themes that appear in these lyrics.\n\n", g.ruleCount)
	b.WriteString("Reply with ONLY a JSON array, no markdown and no commentary. Each element is an object with:\n")
	fmt.Fprintf(&b, "- \"id\": a unique lowercase identifier using letters, digits and dashes, not one of: %s\n", strings.Join(taken, ", "))
	b.WriteString("- \"pattern\": a case-insensitive regular expression in RE2 syntax (no lookarounds, no backreferences) matching the trigger words, for example \\b(ocean|waves?)\\b\n")
	b.WriteString("- \"css\": self-contained CSS for the class .fx-<id>. The element must center itself with position: fixed; top: 50%; left: 50%; transform: translate(-50%, -50%). ")
	b.WriteString("Define its own @keyframes that fade in and fade out, with a total animation duration between 3s and 5s, and do not loop.\n\n")
	b.WriteString("Lyrics:\n")
	b.WriteString(lyricsText)
	if previous != nil {
		fmt.Fprintf(&b, "\n\nYour previous answer was rejected: %s. Fix that and answer again with only the JSON array.", previous.Error())
	}
	return b.String()
}
