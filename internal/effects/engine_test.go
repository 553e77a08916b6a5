package effects

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"
)

// scripted returns the given values in order, then repeats the last one.
type scripted struct {
	values []float64
	calls  int
}

func (s *scripted) Float64() float64 {
	v := s.values[len(s.values)-1]
	if s.calls < len(s.values) {
		v = s.values[s.calls]
	}
	s.calls++
	return v
}

func always() *scripted { return &scripted{values: []float64{0.0}} }
func never() *scripted  { return &scripted{values: []float64{0.99}} }

func TestCoreRules(t *testing.T) {
	rules := CoreRules()
	if len(rules) != 13 {
		t.Fatalf("Expected 13 core rules, got %d", len(rules))
	}
	seen := map[string]bool{}
	for _, r := range rules {
		if seen[r.ID] {
			t.Errorf("duplicate core id %q", r.ID)
		}
		seen[r.ID] = true
	}
	for _, id := range []string{MoonID, VisionID, ThinkingID} {
		if !seen[id] {
			t.Errorf("core rules missing %q", id)
		}
	}
}

func TestEvaluateMoonOverrides(t *testing.T) {
	e := NewEngine(always())
	for _, text := range []string{
		"the moon",
		"I see the Moon tonight in the dark, my love, my fire",
		"thinking of the moonlight",
	} {
		got := e.Evaluate(text)
		if !reflect.DeepEqual(got, []string{MoonID}) {
			t.Errorf("Evaluate(%q) = %v, want [moon]", text, got)
		}
	}
}

func TestEvaluateVision(t *testing.T) {
	t.Run("Fires", func(t *testing.T) {
		got := NewEngine(always()).Evaluate("I can see your love burning")
		if !reflect.DeepEqual(got, []string{VisionID}) {
			t.Errorf("Expected [vision], got %v", got)
		}
	})

	t.Run("SuppressedBlocksOthers", func(t *testing.T) {
		got := NewEngine(never()).Evaluate("I can see your love burning")
		if len(got) != 0 {
			t.Errorf("Expected no effects, got %v", got)
		}
	})

	t.Run("RoughlyEightyPercent", func(t *testing.T) {
		e := NewEngine(rand.New(rand.NewPCG(42, 7)))
		fired := 0
		const trials = 5000
		for i := 0; i < trials; i++ {
			if len(e.Evaluate("look at me")) == 1 {
				fired++
			}
		}
		ratio := float64(fired) / trials
		if ratio < 0.75 || ratio > 0.85 {
			t.Errorf("Expected ~0.8 fire ratio, got %.3f", ratio)
		}
	})
}

func TestEvaluateStacking(t *testing.T) {
	t.Run("MultipleRules", func(t *testing.T) {
		got := NewEngine(always()).Evaluate("Dancing in the rain with my heart on fire")
		want := []string{"fire", "rain", "heart", "dance"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("ThinkingDamped", func(t *testing.T) {
		got := NewEngine(always()).Evaluate("I think about the cold")
		if !reflect.DeepEqual(got, []string{ThinkingID, "snow"}) {
			t.Errorf("Expected [thinking snow], got %v", got)
		}
		got = NewEngine(never()).Evaluate("I think about the cold")
		if !reflect.DeepEqual(got, []string{"snow"}) {
			t.Errorf("Expected [snow], got %v", got)
		}
	})

	t.Run("NothingMatches", func(t *testing.T) {
		if got := NewEngine(always()).Evaluate("la la la"); len(got) != 0 {
			t.Errorf("Expected no effects, got %v", got)
		}
	})
}

func TestMergeAIRules(t *testing.T) {
	e := NewEngine(always())
	coreBefore := e.Snapshot().Core()

	first := []RuleSpec{
		{ID: "ocean", Pattern: `\b(ocean|waves?)\b`, CSS: ".fx-ocean{}"},
		{ID: "city", Pattern: `/city|streets?/gi`, CSS: ".fx-city{}"},
	}
	if err := e.MergeAIRules(first); err != nil {
		t.Fatalf("MergeAIRules failed: %v", err)
	}
	if got := e.Evaluate("Waves on the OCEAN"); !reflect.DeepEqual(got, []string{"ocean"}) {
		t.Errorf("Expected [ocean], got %v", got)
	}
	if got := e.Evaluate("City streets"); !reflect.DeepEqual(got, []string{"city"}) {
		t.Errorf("Expected [city], got %v", got)
	}

	second := []RuleSpec{{ID: "comet", Pattern: `comet`, CSS: ".fx-comet{}"}}
	if err := e.MergeAIRules(second); err != nil {
		t.Fatalf("second merge failed: %v", err)
	}

	snap := e.Snapshot()
	aiRules := snap.AI()
	if len(aiRules) != 1 || aiRules[0].ID != "comet" {
		t.Errorf("Expected AI subset [comet], got %v", aiRules)
	}
	if got := e.Evaluate("ocean waves"); len(got) != 0 {
		t.Errorf("Previous AI rules should be discarded, got %v", got)
	}

	coreAfter := snap.Core()
	if len(coreAfter) != len(coreBefore) {
		t.Fatalf("core size changed from %d to %d", len(coreBefore), len(coreAfter))
	}
	for i := range coreBefore {
		if coreBefore[i].ID != coreAfter[i].ID || coreBefore[i].Pattern.String() != coreAfter[i].Pattern.String() {
			t.Errorf("core rule %d changed: %v -> %v", i, coreBefore[i].ID, coreAfter[i].ID)
		}
	}

	if fx := snap.Effects([]string{"comet", "fire", "unknown"}); len(fx) != 2 || fx[0].CSS != ".fx-comet{}" || fx[1].CSS != "" {
		t.Errorf("Unexpected effects %+v", fx)
	}
	if snap.Styles() != ".fx-comet{}" {
		t.Errorf("Unexpected styles %q", snap.Styles())
	}
}

func TestMergeAIRulesRejectsInvalid(t *testing.T) {
	cases := map[string][]RuleSpec{
		"Empty":        {},
		"MissingCSS":   {{ID: "a", Pattern: "a"}},
		"MissingID":    {{Pattern: "a", CSS: "x"}},
		"CoreID":       {{ID: MoonID, Pattern: "a", CSS: "x"}},
		"DuplicateID":  {{ID: "a", Pattern: "a", CSS: "x"}, {ID: "a", Pattern: "b", CSS: "y"}},
		"BadPattern":   {{ID: "a", Pattern: "(?<=x)a", CSS: "x"}},
		"LaterMissing": {{ID: "a", Pattern: "a", CSS: "x"}, {ID: "b", Pattern: "", CSS: "y"}},
	}
	for name, specs := range cases {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(always())
			before := e.Snapshot()
			err := e.MergeAIRules(specs)
			if !errors.Is(err, ErrInvalidRules) {
				t.Errorf("Expected ErrInvalidRules, got %v", err)
			}
			if e.Snapshot() != before {
				t.Error("table replaced despite invalid batch")
			}
		})
	}
}

func TestMergeAIRulesIfStale(t *testing.T) {
	e := NewEngine(always())
	before := e.Snapshot()
	err := e.MergeAIRulesIf([]RuleSpec{{ID: "a", Pattern: "a", CSS: "x"}}, func() bool { return false })
	if err != nil {
		t.Fatalf("Expected nil error for stale merge, got %v", err)
	}
	if e.Snapshot() != before {
		t.Error("stale merge replaced the table")
	}
}
