package music

import (
	"context"
)

// MusicAPI is a searchable lyrics corpus.
type MusicAPI interface {
	// Search runs a free-text query and returns validated candidates in corpus order.
	Search(ctx context.Context, query string) ([]Candidate, error)

	// GetProviderName 获取音乐提供商名称
	GetProviderName() string
}

// Candidate is one search result, validated at the provider boundary.
type Candidate struct {
	Provider     string
	TrackName    string
	ArtistName   string
	Duration     float64 // seconds, 0 when unknown
	SyncedLyrics string  // LRC text, empty if absent
	PlainLyrics  string  // empty if absent
}

func (c Candidate) HasSynced() bool {
	return c.SyncedLyrics != ""
}

func (c Candidate) HasPlain() bool {
	return c.PlainLyrics != ""
}
