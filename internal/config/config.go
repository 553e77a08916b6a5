package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSocketPath           = "/tmp/lyricfx.sock"
	DefaultHTTPAddr             = "127.0.0.1:8765"
	DefaultCheckInterval        = 1 * time.Second
	DefaultSyncInterval         = 200 * time.Millisecond
	DefaultTrackChangeTolerance = 5 * time.Second
	DefaultAITimeout            = 4 * time.Second
	DefaultLyricsBaseURL        = "https://lrclib.net/api"
	DefaultUserAgent            = "lyricfx (https://github.com/lyricfx/lyricfx)"
	DefaultRedisTTL             = 24 * time.Hour
	EnvPrefix                   = "LYRICFX"
)

// TomlConfig TOML配置文件结构
type TomlConfig struct {
	App struct {
		SocketPath           string   `toml:"socket_path"`
		HTTPAddr             string   `toml:"http_addr"`
		AllowedOrigins       []string `toml:"allowed_origins"`
		CheckInterval        string   `toml:"check_interval"`
		SyncInterval         string   `toml:"sync_interval"`
		SyncOffset           string   `toml:"sync_offset"`
		TrackChangeTolerance string   `toml:"track_change_tolerance"`
		AITimeout            string   `toml:"ai_timeout"`
		LogLevel             string   `toml:"log_level"`
	} `toml:"app"`

	Player struct {
		Backend      string `toml:"backend"`
		MprisService string `toml:"mpris_service"`
	} `toml:"player"`

	Lyrics struct {
		BaseURL         string  `toml:"base_url"`
		UserAgent       string  `toml:"user_agent"`
		RatePerSecond   float64 `toml:"rate_per_second"`
		NeteaseFallback *bool   `toml:"netease_fallback"`
	} `toml:"lyrics"`

	AI struct {
		ModuleName  string `toml:"module_name"`
		APIKey      string `toml:"api_key"`
		BaseURL     string `toml:"base_url"` // for OpenAI
		Enabled     *bool  `toml:"enabled"`
		RuleCount   int    `toml:"rule_count"`
		MaxAttempts int    `toml:"max_attempts"`
	} `toml:"ai"`

	Translate struct {
		Enabled          *bool  `toml:"enabled"`
		Backend          string `toml:"backend"`
		TargetLanguage   string `toml:"target_language"`
		TencentSecretID  string `toml:"tencent_secret_id"`
		TencentSecretKey string `toml:"tencent_secret_key"`
		TencentTarget    string `toml:"tencent_target"`
	} `toml:"translate"`

	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		TTL      string `toml:"ttl"`
	} `toml:"redis"`
}

// EnvConfig 环境变量覆盖项，均带 LYRICFX_ 前缀
type EnvConfig struct {
	SocketPath       string `envconfig:"SOCKET_PATH"`
	HTTPAddr         string `envconfig:"HTTP_ADDR"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
	SyncOffset       string `envconfig:"SYNC_OFFSET"`
	PlayerBackend    string `envconfig:"PLAYER_BACKEND"`
	MprisService     string `envconfig:"MPRIS_SERVICE"`
	AIModule         string `envconfig:"AI_MODULE"`
	AIAPIKey         string `envconfig:"AI_API_KEY"`
	AIBaseURL        string `envconfig:"AI_BASE_URL"`
	AIEnabled        string `envconfig:"AI_ENABLED"`
	TranslateEnabled string `envconfig:"TRANSLATE_ENABLED"`
	TranslateBackend string `envconfig:"TRANSLATE_BACKEND"`
	TargetLanguage   string `envconfig:"TARGET_LANGUAGE"`
	TencentSecretID  string `envconfig:"TENCENT_SECRET_ID"`
	TencentSecretKey string `envconfig:"TENCENT_SECRET_KEY"`
	RedisAddr        string `envconfig:"REDIS_ADDR"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD"`
}

// AppConfig 应用配置
type AppConfig struct {
	SocketPath           string
	HTTPAddr             string
	AllowedOrigins       []string
	CheckInterval        time.Duration
	SyncInterval         time.Duration
	SyncOffset           time.Duration
	TrackChangeTolerance time.Duration
	AITimeout            time.Duration
	LogLevel             string
}

type PlayerConfig struct {
	Backend      string
	MprisService string
}

type LyricsConfig struct {
	BaseURL         string
	UserAgent       string
	RatePerSecond   float64
	NeteaseFallback bool
}

// AIConfig AI配置
type AIConfig struct {
	ModuleName  string
	APIKey      string
	BaseURL     string
	Enabled     bool
	RuleCount   int
	MaxAttempts int
}

type TranslateConfig struct {
	Enabled          bool
	Backend          string
	TargetLanguage   string
	TencentSecretID  string
	TencentSecretKey string
	TencentTarget    string
}

// RedisConfig Redis配置，Addr 为空时不启用缓存
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Config 主配置结构
type Config struct {
	App       AppConfig
	Player    PlayerConfig
	Lyrics    LyricsConfig
	AI        AIConfig
	Translate TranslateConfig
	Redis     RedisConfig

	// Path is the config file the values were read from, if any.
	Path string
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			SocketPath:           DefaultSocketPath,
			HTTPAddr:             DefaultHTTPAddr,
			CheckInterval:        DefaultCheckInterval,
			SyncInterval:         DefaultSyncInterval,
			TrackChangeTolerance: DefaultTrackChangeTolerance,
			AITimeout:            DefaultAITimeout,
			LogLevel:             "info",
		},
		Player: PlayerConfig{Backend: "playerctl"},
		Lyrics: LyricsConfig{
			BaseURL:         DefaultLyricsBaseURL,
			UserAgent:       DefaultUserAgent,
			RatePerSecond:   2,
			NeteaseFallback: true,
		},
		AI: AIConfig{
			ModuleName:  "gemini",
			Enabled:     true,
			RuleCount:   3,
			MaxAttempts: 3,
		},
		Translate: TranslateConfig{
			Backend:        "ai",
			TargetLanguage: "English",
			TencentTarget:  "en",
		},
		Redis: RedisConfig{TTL: DefaultRedisTTL},
	}
}

// ConfigPath 获取配置文件路径
func ConfigPath() string {
	// 优先使用 XDG_CONFIG_HOME 环境变量
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "lyricfx", "config.toml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot get user home directory")
		return "config.toml" // 回退到当前目录
	}
	return filepath.Join(homeDir, ".config", "lyricfx", "config.toml")
}

// Load reads the config file, then .env, then LYRICFX_* variables. Errors
// are logged and defaults used.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	cfg, err := LoadFile(ConfigPath())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load config file, using defaults")
		cfg = Default()
	}

	if err := ApplyEnv(cfg); err != nil {
		log.Warn().Err(err).Msg("Unable to apply environment overrides")
	}

	if cfg.AI.Enabled && cfg.AI.APIKey == "" {
		log.Warn().Str("config", ConfigPath()).Msg("No AI API key configured; AI effects and translation are disabled")
	}
	return cfg
}

// LoadFile reads one TOML file over the defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("Config file not found, using defaults")
		return cfg, nil
	}

	var tc TomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return nil, err
	}
	cfg.apply(&tc)
	cfg.Path = path

	log.Info().Str("path", path).Msg("Loaded config")
	return cfg, nil
}

func (c *Config) apply(tc *TomlConfig) {
	setString(&c.App.SocketPath, tc.App.SocketPath)
	setString(&c.App.HTTPAddr, tc.App.HTTPAddr)
	if len(tc.App.AllowedOrigins) > 0 {
		c.App.AllowedOrigins = tc.App.AllowedOrigins
	}
	setDuration(&c.App.CheckInterval, tc.App.CheckInterval, "check_interval")
	setDuration(&c.App.SyncInterval, tc.App.SyncInterval, "sync_interval")
	setDuration(&c.App.SyncOffset, tc.App.SyncOffset, "sync_offset")
	setDuration(&c.App.TrackChangeTolerance, tc.App.TrackChangeTolerance, "track_change_tolerance")
	setDuration(&c.App.AITimeout, tc.App.AITimeout, "ai_timeout")
	setString(&c.App.LogLevel, tc.App.LogLevel)

	setString(&c.Player.Backend, tc.Player.Backend)
	setString(&c.Player.MprisService, tc.Player.MprisService)

	setString(&c.Lyrics.BaseURL, tc.Lyrics.BaseURL)
	setString(&c.Lyrics.UserAgent, tc.Lyrics.UserAgent)
	if tc.Lyrics.RatePerSecond > 0 {
		c.Lyrics.RatePerSecond = tc.Lyrics.RatePerSecond
	}
	if tc.Lyrics.NeteaseFallback != nil {
		c.Lyrics.NeteaseFallback = *tc.Lyrics.NeteaseFallback
	}

	setString(&c.AI.ModuleName, tc.AI.ModuleName)
	setString(&c.AI.APIKey, tc.AI.APIKey)
	setString(&c.AI.BaseURL, tc.AI.BaseURL)
	if tc.AI.Enabled != nil {
		c.AI.Enabled = *tc.AI.Enabled
	}
	if tc.AI.RuleCount > 0 {
		c.AI.RuleCount = tc.AI.RuleCount
	}
	if tc.AI.MaxAttempts > 0 {
		c.AI.MaxAttempts = tc.AI.MaxAttempts
	}

	if tc.Translate.Enabled != nil {
		c.Translate.Enabled = *tc.Translate.Enabled
	}
	setString(&c.Translate.Backend, tc.Translate.Backend)
	setString(&c.Translate.TargetLanguage, tc.Translate.TargetLanguage)
	setString(&c.Translate.TencentSecretID, tc.Translate.TencentSecretID)
	setString(&c.Translate.TencentSecretKey, tc.Translate.TencentSecretKey)
	setString(&c.Translate.TencentTarget, tc.Translate.TencentTarget)

	setString(&c.Redis.Addr, tc.Redis.Addr)
	setString(&c.Redis.Password, tc.Redis.Password)
	if tc.Redis.DB != 0 {
		c.Redis.DB = tc.Redis.DB
	}
	setDuration(&c.Redis.TTL, tc.Redis.TTL, "redis.ttl")
}

// ApplyEnv overrides cfg with LYRICFX_* environment variables.
func ApplyEnv(cfg *Config) error {
	var env EnvConfig
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	setString(&cfg.App.SocketPath, env.SocketPath)
	setString(&cfg.App.HTTPAddr, env.HTTPAddr)
	setString(&cfg.App.LogLevel, env.LogLevel)
	setDuration(&cfg.App.SyncOffset, env.SyncOffset, EnvPrefix+"_SYNC_OFFSET")
	setString(&cfg.Player.Backend, env.PlayerBackend)
	setString(&cfg.Player.MprisService, env.MprisService)
	setString(&cfg.AI.ModuleName, env.AIModule)
	setString(&cfg.AI.APIKey, env.AIAPIKey)
	setString(&cfg.AI.BaseURL, env.AIBaseURL)
	setBool(&cfg.AI.Enabled, env.AIEnabled, EnvPrefix+"_AI_ENABLED")
	setBool(&cfg.Translate.Enabled, env.TranslateEnabled, EnvPrefix+"_TRANSLATE_ENABLED")
	setString(&cfg.Translate.Backend, env.TranslateBackend)
	setString(&cfg.Translate.TargetLanguage, env.TargetLanguage)
	setString(&cfg.Translate.TencentSecretID, env.TencentSecretID)
	setString(&cfg.Translate.TencentSecretKey, env.TencentSecretKey)
	setString(&cfg.Redis.Addr, env.RedisAddr)
	setString(&cfg.Redis.Password, env.RedisPassword)
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) {
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", name).Str("value", v).Msg("Invalid duration, using default")
		return
	}
	*dst = d
}

func setBool(dst *bool, v, name string) {
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", name).Str("value", v).Msg("Invalid boolean, ignoring")
		return
	}
	*dst = b
}
