package lrclib

import (
	"context"
	"encoding/json"
	"fmt"
	"lyricfx/pkg/music"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://lrclib.net/api"
	DefaultUserAgent = "lyricfx/1.0"
)

// Client LRCLib客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

// searchEntry mirrors one LRCLib search hit. Pointer fields distinguish
// "absent" from "empty" so malformed entries can be skipped.
type searchEntry struct {
	ID           int      `json:"id"`
	TrackName    string   `json:"trackName"`
	ArtistName   string   `json:"artistName"`
	AlbumName    string   `json:"albumName"`
	Duration     *float64 `json:"duration"`
	Instrumental bool     `json:"instrumental"`
	PlainLyrics  *string  `json:"plainLyrics"`
	SyncedLyrics *string  `json:"syncedLyrics"`
}

var _ music.MusicAPI = (*Client)(nil)

// NewClient 创建新的LRCLib客户端
func NewClient(baseURL, userAgent string, ratePerSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(limit, 2),
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
	}
}

// GetProviderName 返回提供商名称
func (c *Client) GetProviderName() string {
	return "LRCLib"
}

// Search queries /search?q=<query> and returns the hits that pass validation.
func (c *Client) Search(ctx context.Context, query string) ([]music.Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	searchURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger().Info().Int("attempt", attempt).Int("max_retries", c.maxRetries).Msg("Retrying search request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("failed to create request: %w", reqErr)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}

		if err != nil {
			logger().Warn().Err(err).Int("attempt", attempt+1).Msg("Search request failed")
		} else {
			status := resp.StatusCode
			resp.Body.Close()
			logger().Warn().Int("status", status).Int("attempt", attempt+1).Msg("Search request returned non-200")
			if status == http.StatusNotFound {
				return nil, nil
			}
			if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
				return nil, fmt.Errorf("search request rejected with status %d", status)
			}
			err = fmt.Errorf("search request returned status %d", status)
		}

		if attempt == c.maxRetries {
			return nil, fmt.Errorf("search failed after %d attempts: %w", attempt+1, err)
		}
	}
	defer resp.Body.Close()

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	candidates := make([]music.Candidate, 0, len(raw))
	for i, item := range raw {
		cand, ok := toCandidate(item)
		if !ok {
			logger().Debug().Int("index", i).Msg("Skipping malformed search entry")
			continue
		}
		candidates = append(candidates, cand)
	}

	logger().Info().Str("query", query).Int("results", len(raw)).Int("valid", len(candidates)).Msg("Search finished")
	return candidates, nil
}

func toCandidate(item json.RawMessage) (music.Candidate, bool) {
	var entry searchEntry
	if err := json.Unmarshal(item, &entry); err != nil {
		return music.Candidate{}, false
	}
	if entry.Duration == nil || math.IsNaN(*entry.Duration) || *entry.Duration < 0 {
		return music.Candidate{}, false
	}
	cand := music.Candidate{
		Provider:   "LRCLib",
		TrackName:  entry.TrackName,
		ArtistName: entry.ArtistName,
		Duration:   *entry.Duration,
	}
	if entry.SyncedLyrics != nil {
		cand.SyncedLyrics = *entry.SyncedLyrics
	}
	if entry.PlainLyrics != nil {
		cand.PlainLyrics = *entry.PlainLyrics
	}
	return cand, true
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "lrclib").Logger()
	return &l
}
