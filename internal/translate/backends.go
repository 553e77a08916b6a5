package translate

import (
	"context"
	"fmt"
	"lyricfx/pkg/ai"
	"lyricfx/pkg/tencent"
	"strings"
)

// AIBackend translates through a generative text model.
type AIBackend struct {
	client ai.AiInterface
}

func NewAIBackend(client ai.AiInterface) *AIBackend {
	return &AIBackend{client: client}
}

func (b *AIBackend) Name() string {
	return "ai:" + b.client.Name()
}

func (b *AIBackend) Translate(ctx context.Context, block Block) (string, error) {
	resp, err := b.client.HandleText(ctx, prompt(block))
	if err != nil {
		return "", err
	}
	return ai.StripFences(resp), nil
}

func prompt(block Block) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Translate the lyrics of %q by %q into %s.\n", block.Track, block.Artist, block.Target)
	if block.Aligned {
		n := strings.Count(block.Text, "\n") + 1
		fmt.Fprintf(&sb, "The input has exactly %d lines. Output exactly %d lines: line i of your answer is the translation of line i of the input.\n", n, n)
		sb.WriteString("Keep empty lines empty. Do not merge or split lines. Do not add timestamps, numbering, notes, quotes or markdown.\n")
	} else {
		sb.WriteString("Keep the original line breaks and blank lines between stanzas. Do not add notes, titles or markdown.\n")
	}
	sb.WriteString("Reply with the translation only.\n\n")
	sb.WriteString(block.Text)
	return sb.String()
}

// TencentBackend uses Tencent Cloud machine translation. Each block's target
// language is mapped to a TMT code; fallback is used for names TMT does not
// know.
type TencentBackend struct {
	client   tencent.TencentClient
	fallback string
}

func NewTencentBackend(client tencent.TencentClient, fallback string) *TencentBackend {
	if fallback == "" {
		fallback = "en"
	}
	return &TencentBackend{client: client, fallback: fallback}
}

func (b *TencentBackend) Name() string {
	return "tencent"
}

// tmtCodes maps language names to the target codes TMT accepts.
var tmtCodes = map[string]string{
	"chinese": "zh", "simplified chinese": "zh", "中文": "zh", "简体中文": "zh",
	"traditional chinese": "zh-TW", "繁體中文": "zh-TW", "繁体中文": "zh-TW",
	"english": "en", "英文": "en", "英语": "en",
	"japanese": "ja", "日本語": "ja", "日语": "ja",
	"korean": "ko", "한국어": "ko", "韩语": "ko",
	"french": "fr", "français": "fr",
	"spanish": "es", "español": "es",
	"italian": "it", "italiano": "it",
	"german": "de", "deutsch": "de",
	"turkish": "tr",
	"russian": "ru", "русский": "ru",
	"portuguese": "pt", "português": "pt",
	"vietnamese": "vi",
	"indonesian": "id",
	"thai": "th",
	"malay": "ms",
	"arabic": "ar",
	"hindi": "hi",
}

// TMTCode resolves a language name or code to a TMT target code.
func TMTCode(lang string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(lang))
	if code, ok := tmtCodes[key]; ok {
		return code, true
	}
	for _, code := range tmtCodes {
		if strings.EqualFold(code, key) {
			return code, true
		}
	}
	return "", false
}

func (b *TencentBackend) target(lang string) string {
	if code, ok := TMTCode(lang); ok {
		return code
	}
	if lang != "" {
		logger().Warn().Str("language", lang).Str("fallback", b.fallback).Msg("No TMT code for target language")
	}
	return b.fallback
}

func (b *TencentBackend) Translate(ctx context.Context, block Block) (string, error) {
	target := b.target(block.Target)
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := b.client.TranslateText(block.Text, target)
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}
