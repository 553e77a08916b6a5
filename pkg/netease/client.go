package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"lyricfx/pkg/music"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://music.163.com"
	maxLyricFetch  = 3
)

var (
	lrcMark = regexp.MustCompile(`(?m)^\[\d{2}:\d{2}\.\d{2,3}\]`)
)

// NeteaseSearchResponse 网易云搜索API响应
type NeteaseSearchResponse struct {
	Result struct {
		Songs []struct {
			ID       int    `json:"id"`
			Name     string `json:"name"`
			Duration int64  `json:"duration"` // ms
			Artists  []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"songs"`
	} `json:"result"`
}

// NeteaseLyricResponse 网易云歌词API响应
type NeteaseLyricResponse struct {
	Lrc struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

// Client 网易云音乐客户端
type Client struct {
	httpClient     *http.Client
	baseURL        string
	cookie         string
	maxRetries     int
	requestTimeout time.Duration
}

var _ music.MusicAPI = (*Client)(nil)

// NewClient 创建新的网易云音乐客户端
func NewClient() *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		baseURL:        defaultBaseURL,
		cookie:         os.Getenv("NETEASE_COOKIE"),
		maxRetries:     2,
		requestTimeout: 5 * time.Second,
	}
}

// GetProviderName 获取提供商名称
func (c *Client) GetProviderName() string {
	return "NetEase Cloud Music"
}

// Search 搜索歌曲，并为前几首结果拉取歌词
func (c *Client) Search(ctx context.Context, query string) ([]music.Candidate, error) {
	searchURL := fmt.Sprintf("%s/api/search/get/web?s=%s&type=1&limit=10", c.baseURL, url.QueryEscape(query))
	logger().Debug().Str("url", searchURL).Msg("Searching")

	var searchResp NeteaseSearchResponse
	if err := c.getJSON(ctx, searchURL, &searchResp); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var candidates []music.Candidate
	for _, song := range searchResp.Result.Songs {
		if len(candidates) >= maxLyricFetch {
			break
		}
		lyric, err := c.getLyric(ctx, song.ID)
		if err != nil {
			logger().Warn().Err(err).Int("song_id", song.ID).Msg("Failed to fetch lyric")
			continue
		}
		if lyric == "" {
			continue
		}
		cand := music.Candidate{
			Provider:  c.GetProviderName(),
			TrackName: song.Name,
			Duration:  float64(song.Duration) / 1000,
		}
		if len(song.Artists) > 0 {
			cand.ArtistName = song.Artists[0].Name
		}
		if lrcMark.MatchString(lyric) {
			cand.SyncedLyrics = lyric
		} else {
			cand.PlainLyrics = lyric
		}
		candidates = append(candidates, cand)
	}

	logger().Info().Str("query", query).Int("songs", len(searchResp.Result.Songs)).Int("candidates", len(candidates)).Msg("Search finished")
	return candidates, nil
}

func (c *Client) getLyric(ctx context.Context, songID int) (string, error) {
	lyricURL := fmt.Sprintf("%s/api/song/lyric?os=pc&id=%s&lv=-1&kv=-1&tv=-1", c.baseURL, strconv.Itoa(songID))
	var lyricResp NeteaseLyricResponse
	if err := c.getJSON(ctx, lyricURL, &lyricResp); err != nil {
		return "", err
	}
	return lyricResp.Lrc.Lyric, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequestWithRetry 发送请求，5xx 和网络错误时重试
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(time.Duration(attempt*100) * time.Millisecond):
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger().Warn().Err(err).Int("attempt", attempt+1).Msg("Request failed")
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		resp.Body.Close()
		lastErr = fmt.Errorf("request returned status %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return nil, lastErr
		}
		logger().Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("Request returned server error")
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "netease").Logger()
	return &l
}
