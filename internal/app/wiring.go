package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"lyricfx/internal/config"
	"lyricfx/internal/effects"
	"lyricfx/internal/ipc"
	"lyricfx/internal/player"
	"lyricfx/internal/translate"
	"lyricfx/pkg/ai"
	"lyricfx/pkg/ai/gemini"
	"lyricfx/pkg/ai/openai"
	"lyricfx/pkg/lrclib"
	"lyricfx/pkg/music"
	"lyricfx/pkg/netease"
	"lyricfx/pkg/redis"
	"lyricfx/pkg/tencent"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// multiRenderer fans events out to every overlay surface.
type multiRenderer []ipc.Renderer

func (m multiRenderer) Send(ev ipc.Event) {
	for _, r := range m {
		r.Send(ev)
	}
}

// newSource returns the configured player source. remote is non-nil only for
// the http backend, where reports arrive through the overlay API.
func newSource(cfg config.PlayerConfig) (player.Source, *player.Remote, error) {
	switch cfg.Backend {
	case "", player.BackendPlayerctl:
		return player.NewPlayerctl(), nil, nil
	case player.BackendMPRIS:
		src, err := player.NewMPRIS(cfg.MprisService)
		return src, nil, err
	case player.BackendHTTP:
		remote := player.NewRemote(10 * time.Second)
		return remote, remote, nil
	default:
		return nil, nil, fmt.Errorf("unknown player backend %q", cfg.Backend)
	}
}

// newCorpus builds the lyrics search chain: LRCLib, then NetEase, with an
// optional redis cache in front.
func newCorpus(cfg *config.Config) music.MusicAPI {
	providers := []music.MusicAPI{
		lrclib.NewClient(cfg.Lyrics.BaseURL, cfg.Lyrics.UserAgent, cfg.Lyrics.RatePerSecond),
	}
	if cfg.Lyrics.NeteaseFallback {
		providers = append(providers, netease.NewClient())
	}
	manager := music.NewManager(providers)

	if cfg.Redis.Addr == "" {
		return manager
	}
	cache, err := redis.NewClient(redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, searching without cache")
		return manager
	}
	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("Caching lyrics searches in redis")
	return manager.WithCache(cache, cfg.Redis.TTL)
}

var errNoAPIKey = errors.New("no AI API key configured")

// clientFactory builds generative clients on demand. The credential comes
// from the per-cycle settings, so a changed key is picked up on the next
// track.
type clientFactory struct {
	aiCfg config.AIConfig
	trCfg config.TranslateConfig

	newAI func(ctx context.Context, apiKey string) (ai.AiInterface, error)
	// 替换下来的客户端可能仍被后台生成使用，超过该时长后才关闭
	retireAfter time.Duration

	mu      sync.Mutex
	aiKey   string
	aiInst  ai.AiInterface
	tencent tencent.TencentClient
}

func newClientFactory(cfg *config.Config) *clientFactory {
	f := &clientFactory{aiCfg: cfg.AI, trCfg: cfg.Translate, retireAfter: generationLimit}
	f.newAI = f.buildAI
	return f
}

func (f *clientFactory) ai(ctx context.Context, apiKey string) (ai.AiInterface, error) {
	if apiKey == "" {
		return nil, errNoAPIKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.aiInst != nil && f.aiKey == apiKey {
		return f.aiInst, nil
	}

	client, err := f.newAI(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	f.retire(f.aiInst)

	log.Info().Str("client", client.Name()).Str("module", f.aiCfg.ModuleName).Msg("AI client ready")
	f.aiKey, f.aiInst = apiKey, client
	return client, nil
}

func (f *clientFactory) buildAI(ctx context.Context, apiKey string) (ai.AiInterface, error) {
	module := f.aiCfg.ModuleName
	if module == "" || strings.HasPrefix(module, "gemini") {
		model := module
		if model == "gemini" {
			model = ""
		}
		// 客户端跨曲目复用，不能绑定到单个周期的 ctx
		g, err := gemini.NewGemini(context.WithoutCancel(ctx), apiKey, model)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return openai.NewOpenAi(apiKey, module, f.aiCfg.BaseURL), nil
}

// retire closes a replaced client once every generation that may still hold
// it has hit generationLimit.
func (f *clientFactory) retire(old ai.AiInterface) {
	closer, ok := old.(io.Closer)
	if !ok {
		return
	}
	time.AfterFunc(f.retireAfter, func() {
		if err := closer.Close(); err != nil {
			log.Debug().Err(err).Msg("Closing retired AI client")
		}
	})
}

func (f *clientFactory) generator(engine *effects.Engine) func(context.Context, config.Settings) (effectsGenerator, error) {
	return func(ctx context.Context, s config.Settings) (effectsGenerator, error) {
		client, err := f.ai(ctx, s.APIKey)
		if err != nil {
			return nil, err
		}
		return effects.NewGenerator(client, engine, f.aiCfg.RuleCount, f.aiCfg.MaxAttempts), nil
	}
}

func (f *clientFactory) translator(ctx context.Context, s config.Settings) (translator, error) {
	var backend translate.Backend
	switch f.trCfg.Backend {
	case "tencent":
		client, err := f.tencentClient()
		if err != nil {
			return nil, err
		}
		backend = translate.NewTencentBackend(client, f.trCfg.TencentTarget)
	case "", "ai":
		client, err := f.ai(ctx, s.APIKey)
		if err != nil {
			return nil, err
		}
		backend = translate.NewAIBackend(client)
	default:
		return nil, fmt.Errorf("unknown translation backend %q", f.trCfg.Backend)
	}
	return translate.NewAdapter(backend, s.TargetLanguage), nil
}

func (f *clientFactory) tencentClient() (tencent.TencentClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tencent != nil {
		return f.tencent, nil
	}
	if f.trCfg.TencentSecretID == "" || f.trCfg.TencentSecretKey == "" {
		return nil, errors.New("tencent translation requires tencent_secret_id and tencent_secret_key")
	}
	client, err := tencent.NewClient(f.trCfg.TencentSecretID, f.trCfg.TencentSecretKey)
	if err != nil {
		return nil, err
	}
	f.tencent = client
	return client, nil
}
