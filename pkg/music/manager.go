package music

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Cache stores serialized search responses. pkg/redis satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Manager 音乐API管理器
type Manager struct {
	providers []MusicAPI
	cache     Cache
	cacheTTL  time.Duration
}

// NewManager 创建新的音乐API管理器
func NewManager(providers []MusicAPI) *Manager {
	if len(providers) == 0 {
		logger().Warn().Msg("No music providers configured")
		return &Manager{}
	}

	logger().Info().
		Int("provider_count", len(providers)).
		Str("primary_provider", providers[0].GetProviderName()).
		Msg("Music API Manager initialized")

	return &Manager{providers: providers}
}

// WithCache enables caching of non-empty search responses.
func (m *Manager) WithCache(cache Cache, ttl time.Duration) *Manager {
	m.cache = cache
	m.cacheTTL = ttl
	return m
}

var _ MusicAPI = (*Manager)(nil)

// Search returns the first non-empty result list, trying providers in order.
// An error is returned only when every provider failed.
func (m *Manager) Search(ctx context.Context, query string) ([]Candidate, error) {
	if len(m.providers) == 0 {
		return nil, fmt.Errorf("no music providers available")
	}

	if cached, ok := m.fromCache(ctx, query); ok {
		return cached, nil
	}

	var lastErr error
	failures := 0
	for i, provider := range m.providers {
		logger().Debug().
			Str("provider", provider.GetProviderName()).
			Int("attempt", i+1).
			Int("total_providers", len(m.providers)).
			Str("query", query).
			Msg("Trying provider")

		cands, err := provider.Search(ctx, query)
		if err != nil {
			logger().Warn().
				Str("provider", provider.GetProviderName()).
				Err(err).
				Msg("Provider failed")
			lastErr = err
			failures++
			continue
		}
		if len(cands) == 0 {
			continue
		}

		logger().Info().
			Str("provider", provider.GetProviderName()).
			Int("candidates", len(cands)).
			Msg("Provider returned candidates")
		m.toCache(ctx, query, cands)
		return cands, nil
	}

	if failures == len(m.providers) {
		return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
	}
	return nil, nil
}

// GetProviderName 获取管理器名称（实现MusicAPI接口）
func (m *Manager) GetProviderName() string {
	if len(m.providers) > 0 {
		return fmt.Sprintf("Manager[Primary: %s]", m.providers[0].GetProviderName())
	}
	return "Manager[No Providers]"
}

// GetProviderNames 获取所有提供商名称
func (m *Manager) GetProviderNames() []string {
	names := make([]string, len(m.providers))
	for i, provider := range m.providers {
		names[i] = provider.GetProviderName()
	}
	return names
}

func cacheKey(query string) string {
	return "search:" + strings.ToLower(query)
}

func (m *Manager) fromCache(ctx context.Context, query string) ([]Candidate, bool) {
	if m.cache == nil {
		return nil, false
	}
	raw, err := m.cache.Get(ctx, cacheKey(query))
	if err != nil {
		logger().Warn().Err(err).Msg("Cache read failed")
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var cands []Candidate
	if err := json.Unmarshal([]byte(raw), &cands); err != nil || len(cands) == 0 {
		return nil, false
	}
	logger().Info().Str("query", query).Int("candidates", len(cands)).Msg("Cache HIT")
	return cands, true
}

func (m *Manager) toCache(ctx context.Context, query string, cands []Candidate) {
	if m.cache == nil {
		return
	}
	data, err := json.Marshal(cands)
	if err != nil {
		return
	}
	if err := m.cache.SetWithExpiration(ctx, cacheKey(query), string(data), m.cacheTTL); err != nil {
		logger().Warn().Err(err).Msg("Cache write failed")
	}
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "music-manager").Logger()
	return &l
}
