package config

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Settings is the per-cycle view of user preferences. The core never
// mutates it.
type Settings struct {
	AIEnabled          bool
	TranslationEnabled bool
	TargetLanguage     string
	APIKey             string
}

// SettingsSource is read once at the start of every track cycle.
type SettingsSource interface {
	Settings() Settings
}

func (c *Config) Settings() Settings {
	return Settings{
		AIEnabled:          c.AI.Enabled && c.AI.APIKey != "",
		TranslationEnabled: c.Translate.Enabled,
		TargetLanguage:     c.Translate.TargetLanguage,
		APIKey:             c.AI.APIKey,
	}
}

// FileSettings re-reads the config file when its modification time changes,
// so toggles take effect on the next track without a restart.
type FileSettings struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	current *Config
}

func NewFileSettings(cfg *Config) *FileSettings {
	fs := &FileSettings{path: cfg.Path, current: cfg}
	if cfg.Path != "" {
		if info, err := os.Stat(cfg.Path); err == nil {
			fs.modTime = info.ModTime()
		}
	}
	return fs
}

func (fs *FileSettings) Settings() Settings {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.path == "" {
		return fs.current.Settings()
	}
	info, err := os.Stat(fs.path)
	if err != nil || !info.ModTime().After(fs.modTime) {
		return fs.current.Settings()
	}

	cfg, err := LoadFile(fs.path)
	if err != nil {
		log.Warn().Err(err).Str("path", fs.path).Msg("Failed to reload settings, keeping previous")
		fs.modTime = info.ModTime()
		return fs.current.Settings()
	}
	if err := ApplyEnv(cfg); err != nil {
		log.Warn().Err(err).Msg("Unable to apply environment overrides")
	}
	fs.current = cfg
	fs.modTime = info.ModTime()
	log.Info().Str("path", fs.path).Msg("Reloaded settings")
	return cfg.Settings()
}
