package translate

import (
	"context"
	"errors"
	"fmt"
	"lyricfx/internal/lyrics"
	"strings"
	"testing"
)

type fakeBackend struct {
	reply string
	err   error
	got   Block
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Translate(ctx context.Context, block Block) (string, error) {
	f.got = block
	return f.reply, f.err
}

func timeline(n int) []lyrics.Line {
	lines := make([]lyrics.Line, n)
	for i := range lines {
		lines[i] = lyrics.Line{Time: float64(i) * 2.5, Text: fmt.Sprintf("line %d", i)}
	}
	return lines
}

func numbered(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s %d", prefix, i)
	}
	return strings.Join(parts, "\n")
}

func TestAlignKeepsTimestamps(t *testing.T) {
	orig := timeline(10)
	out, err := Align(orig, numbered(10, "ligne")+"\n")
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("Expected 10 lines, got %d", len(out))
	}
	for i := range out {
		if out[i].Time != orig[i].Time {
			t.Errorf("line %d: timestamp %v, want %v", i, out[i].Time, orig[i].Time)
		}
		if want := fmt.Sprintf("ligne %d", i); out[i].Text != want {
			t.Errorf("line %d: text %q, want %q", i, out[i].Text, want)
		}
	}
}

func TestAlignRejectsLargeDrift(t *testing.T) {
	_, err := Align(timeline(10), numbered(17, "x"))
	if !errors.Is(err, ErrAlignmentMismatch) {
		t.Errorf("Expected ErrAlignmentMismatch, got %v", err)
	}
}

func TestAlignSmallDrift(t *testing.T) {
	orig := timeline(10)

	t.Run("Shorter", func(t *testing.T) {
		out, err := Align(orig, numbered(7, "y"))
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}
		if len(out) != 10 || out[6].Text != "y 6" || out[7].Text != "line 7" || out[9].Text != "line 9" {
			t.Errorf("Unexpected alignment %+v", out)
		}
	})

	t.Run("Longer", func(t *testing.T) {
		out, err := Align(orig, numbered(15, "z"))
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}
		if len(out) != 10 || out[9].Text != "z 9" {
			t.Errorf("Unexpected alignment %+v", out)
		}
	})

	t.Run("BlankFallsBack", func(t *testing.T) {
		out, err := Align(orig[:3], "a\r\n  \r\nc")
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}
		if out[0].Text != "a" || out[1].Text != "line 1" || out[2].Text != "c" {
			t.Errorf("Unexpected alignment %+v", out)
		}
	})
}

func TestAlignEmpty(t *testing.T) {
	if _, err := Align(timeline(3), "\n\n"); !errors.Is(err, ErrEmptyTranslation) {
		t.Errorf("Expected ErrEmptyTranslation, got %v", err)
	}
}

func TestTranslateLines(t *testing.T) {
	backend := &fakeBackend{reply: numbered(4, "hola")}
	a := NewAdapter(backend, "Spanish")

	out, err := a.TranslateLines(context.Background(), timeline(4), "Artist", "Song")
	if err != nil {
		t.Fatalf("TranslateLines failed: %v", err)
	}
	if out[3].Text != "hola 3" || out[3].Time != 7.5 {
		t.Errorf("Unexpected line %+v", out[3])
	}
	if !backend.got.Aligned || backend.got.Target != "Spanish" || backend.got.Text != numbered(4, "line") {
		t.Errorf("Unexpected block %+v", backend.got)
	}
}

func TestTranslateLinesBackendError(t *testing.T) {
	a := NewAdapter(&fakeBackend{err: errors.New("quota exceeded")}, "en")
	if _, err := a.TranslateLines(context.Background(), timeline(2), "", ""); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("Expected backend error, got %v", err)
	}
}

func TestTranslateText(t *testing.T) {
	backend := &fakeBackend{reply: "one\n\ntwo"}
	got, err := NewAdapter(backend, "en").TranslateText(context.Background(), "uno\n\ndos", "", "")
	if err != nil || got != "one\n\ntwo" {
		t.Errorf("TranslateText = %q, %v", got, err)
	}
	if backend.got.Aligned {
		t.Error("plain translation should not request alignment")
	}

	backend.reply = "  "
	if _, err := NewAdapter(backend, "en").TranslateText(context.Background(), "x", "", ""); !errors.Is(err, ErrEmptyTranslation) {
		t.Errorf("Expected ErrEmptyTranslation, got %v", err)
	}
}

type fakeAI struct{ reply, prompt string }

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) HandleText(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, nil
}

func TestAIBackendPrompt(t *testing.T) {
	client := &fakeAI{reply: "```\nuno\ndos\n```"}
	b := NewAIBackend(client)

	got, err := b.Translate(context.Background(), Block{Text: "one\ntwo", Target: "Spanish", Aligned: true})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "uno\ndos" {
		t.Errorf("Expected fences stripped, got %q", got)
	}
	for _, want := range []string{"Spanish", "exactly 2 lines", "Keep empty lines empty", "timestamps"} {
		if !strings.Contains(client.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

type fakeTencent struct{ target string }

func (f *fakeTencent) TranslateText(text, target string) (string, error) {
	f.target = target
	return strings.ToUpper(text), nil
}

func TestTencentBackend(t *testing.T) {
	client := &fakeTencent{}
	b := NewTencentBackend(client, "")
	got, err := b.Translate(context.Background(), Block{Text: "a\nb", Target: "English"})
	if err != nil || got != "A\nB" {
		t.Errorf("Translate = %q, %v", got, err)
	}
	if client.target != "en" {
		t.Errorf("Expected target code en, got %q", client.target)
	}

	t.Run("FollowsBlockTarget", func(t *testing.T) {
		client := &fakeTencent{}
		b := NewTencentBackend(client, "en")
		cases := map[string]string{
			"Japanese":            "ja",
			" spanish ":           "es",
			"简体中文":                "zh",
			"Traditional Chinese": "zh-TW",
			"ko":                  "ko",
			"zh-tw":               "zh-TW",
			"Klingon":             "en",
			"":                    "en",
		}
		for lang, want := range cases {
			if _, err := b.Translate(context.Background(), Block{Text: "x", Target: lang}); err != nil {
				t.Fatalf("Translate failed: %v", err)
			}
			if client.target != want {
				t.Errorf("target %q: expected %q, got %q", lang, want, client.target)
			}
		}
	})
}
