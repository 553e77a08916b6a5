package effects

import (
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultFireRate is the share of matches that actually fire for the damped
// rules (vision, thinking).
const DefaultFireRate = 0.8

// Rand is the random source used for damping. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Effect is one spawn request handed to the renderer.
type Effect struct {
	ID  string `json:"id"`
	CSS string `json:"css,omitempty"`
}

// Table is an immutable snapshot of the rule set: the core subset followed by
// the current AI subset.
type Table struct {
	core  []Rule
	ai    []Rule
	index map[string]Rule
}

func newTable(core, ai []Rule) *Table {
	t := &Table{core: core, ai: ai, index: make(map[string]Rule, len(core)+len(ai))}
	for _, r := range core {
		t.index[r.ID] = r
	}
	for _, r := range ai {
		if _, dup := t.index[r.ID]; !dup {
			t.index[r.ID] = r
		}
	}
	return t
}

func (t *Table) Core() []Rule { return append([]Rule(nil), t.core...) }

func (t *Table) AI() []Rule { return append([]Rule(nil), t.ai...) }

// Rules returns every rule in evaluation order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.core)+len(t.ai))
	out = append(out, t.core...)
	return append(out, t.ai...)
}

func (t *Table) Lookup(id string) (Rule, bool) {
	r, ok := t.index[id]
	return r, ok
}

// Evaluate decides which effect ids fire for a line. fire is consulted once
// per damped match and reports whether that match goes through.
//
// A moon match wins outright. Otherwise a vision match is the only candidate
// and fires only when sampled. Otherwise every matching rule stacks, with
// thinking subject to sampling.
func (t *Table) Evaluate(text string, fire func() bool) []string {
	ids := make([]string, 0, 2)
	if r, ok := t.Lookup(MoonID); ok && r.Pattern.MatchString(text) {
		return append(ids, MoonID)
	}
	if r, ok := t.Lookup(VisionID); ok && r.Pattern.MatchString(text) {
		if fire() {
			ids = append(ids, VisionID)
		}
		return ids
	}
	for _, r := range t.Rules() {
		if r.ID == VisionID || !r.Pattern.MatchString(text) {
			continue
		}
		if r.ID == ThinkingID && !fire() {
			continue
		}
		ids = append(ids, r.ID)
	}
	return ids
}

// Effects attaches each id's CSS, skipping ids the table does not know.
func (t *Table) Effects(ids []string) []Effect {
	out := make([]Effect, 0, len(ids))
	for _, id := range ids {
		if r, ok := t.Lookup(id); ok {
			out = append(out, Effect{ID: id, CSS: r.CSS})
		}
	}
	return out
}

// Styles concatenates the CSS of the AI subset.
func (t *Table) Styles() string {
	parts := make([]string, 0, len(t.ai))
	for _, r := range t.ai {
		parts = append(parts, strings.TrimSpace(r.CSS))
	}
	return strings.Join(parts, "\n\n")
}

// Engine owns the current Table. Merges publish a new table; readers never
// see a partially updated rule set.
type Engine struct {
	table    atomic.Pointer[Table]
	mergeMu  sync.Mutex
	randMu   sync.Mutex
	rnd      Rand
	fireRate float64
}

// NewEngine builds an engine holding only the core rules. A nil rnd uses a
// time-seeded PCG source.
func NewEngine(rnd Rand) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	e := &Engine{rnd: rnd, fireRate: DefaultFireRate}
	e.table.Store(newTable(CoreRules(), nil))
	return e
}

func (e *Engine) Snapshot() *Table {
	return e.table.Load()
}

func (e *Engine) sample() bool {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.rnd.Float64() < e.fireRate
}

// Evaluate runs Table.Evaluate against the current snapshot.
func (e *Engine) Evaluate(text string) []string {
	return e.Snapshot().Evaluate(text, e.sample)
}

// Spawn evaluates text and resolves the fired ids against the same snapshot,
// so a concurrent merge cannot drop an id between the two steps.
func (e *Engine) Spawn(text string) []Effect {
	t := e.Snapshot()
	return t.Effects(t.Evaluate(text, e.sample))
}

// MergeAIRules replaces the whole AI subset with specs. The core subset is
// never touched. Invalid batches leave the table unchanged.
func (e *Engine) MergeAIRules(specs []RuleSpec) error {
	return e.MergeAIRulesIf(specs, nil)
}

// MergeAIRulesIf is MergeAIRules guarded by current, checked under the merge
// lock. A false result skips the merge without error.
func (e *Engine) MergeAIRulesIf(specs []RuleSpec, current func() bool) error {
	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()

	old := e.table.Load()
	rules, err := compileSpecs(specs, old.core)
	if err != nil {
		return err
	}
	if current != nil && !current() {
		logger().Info().Int("rules", len(rules)).Msg("Dropping AI rules for a superseded track")
		return nil
	}
	e.table.Store(newTable(old.core, rules))

	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	logger().Info().Strs("ids", ids).Msg("Merged AI effect rules")
	return nil
}

// Validate reports whether specs would be accepted by MergeAIRules.
func (e *Engine) Validate(specs []RuleSpec) error {
	_, err := compileSpecs(specs, e.Snapshot().core)
	return err
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "effects").Logger()
	return &l
}
