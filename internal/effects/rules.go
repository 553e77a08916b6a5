package effects

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Rule ids with special precedence.
const (
	MoonID     = "moon"
	VisionID   = "vision"
	ThinkingID = "thinking"
)

// ErrInvalidRules is returned when an AI batch fails validation.
var ErrInvalidRules = errors.New("invalid effect rules")

// Rule maps a trigger pattern to an effect id. CSS is only set for rules
// contributed by the generator; core effects are styled by the renderer.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
	CSS     string
}

// RuleSpec is the uncompiled form proposed by the generator.
type RuleSpec struct {
	ID      string `json:"id"`
	Pattern string `json:"pattern"`
	CSS     string `json:"css"`
}

var coreSpecs = []struct {
	id      string
	pattern string
}{
	{MoonID, `\b(moon|moonlight|lunar)\b`},
	{"night", `\b(night|midnight|dark|darkness|moon|stars?)\b`},
	{VisionID, `\b(see|saw|seen|watch|watching|look|looking|eyes?|vision)\b`},
	{ThinkingID, `\b(think|thinking|thought|mind|wonder)\b`},
	{"fire", `\b(fire|burn|burning|flames?|heat)\b`},
	{"rain", `\b(rain|raining|storm|tears?|cry|crying)\b`},
	{"heart", `\b(love|loving|heart|hearts)\b`},
	{"snow", `\b(snow|cold|ice|frozen|winter)\b`},
	{"sun", `\b(sun|sunshine|sunrise|summer)\b`},
	{"dance", `\b(dance|dancing|move|moving)\b`},
	{"money", `\b(money|cash|gold|rich|diamonds?)\b`},
	{"sky", `\b(sky|fly|flying|wings?|heaven)\b`},
	{"music", `\b(music|song|sing|singing|melody)\b`},
}

// CoreRules returns the fixed hand-authored rule set in evaluation order.
func CoreRules() []Rule {
	rules := make([]Rule, len(coreSpecs))
	for i, s := range coreSpecs {
		rules[i] = Rule{ID: s.id, Pattern: regexp.MustCompile(`(?i)` + s.pattern)}
	}
	return rules
}

// compilePattern accepts RE2 syntax and also tolerates a JavaScript-style
// /body/flags literal. Matching is always case-insensitive.
func compilePattern(p string) (*regexp.Regexp, error) {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "/") {
		if end := strings.LastIndex(p, "/"); end > 0 && strings.Trim(p[end+1:], "gimsuy") == "" {
			p = p[1:end]
		}
	}
	if p == "" {
		return nil, errors.New("empty pattern")
	}
	return regexp.Compile(`(?i)` + p)
}

// compileSpecs validates a generator batch against the core ids and compiles it.
func compileSpecs(specs []RuleSpec, core []Rule) ([]Rule, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidRules)
	}
	seen := make(map[string]bool, len(core)+len(specs))
	for _, r := range core {
		seen[r.ID] = true
	}
	out := make([]Rule, 0, len(specs))
	for i, s := range specs {
		id := strings.TrimSpace(s.ID)
		if id == "" || strings.TrimSpace(s.Pattern) == "" || strings.TrimSpace(s.CSS) == "" {
			return nil, fmt.Errorf("%w: entry %d is missing id, pattern or css", ErrInvalidRules, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRules, id)
		}
		seen[id] = true
		re, err := compilePattern(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q has a bad pattern: %v", ErrInvalidRules, id, err)
		}
		out = append(out, Rule{ID: id, Pattern: re, CSS: s.CSS})
	}
	return out, nil
}
