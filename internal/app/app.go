package app

import (
	"context"
	"errors"
	"fmt"
	"lyricfx/internal/config"
	"lyricfx/internal/effects"
	"lyricfx/internal/httpapi"
	"lyricfx/internal/ipc"
	"lyricfx/internal/lyrics"
	"lyricfx/internal/player"
	"lyricfx/internal/scheduler"
	"math"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// generationLimit bounds a background AI generation that outlived its race.
	generationLimit  = 2 * time.Minute
	translationLimit = 45 * time.Second
)

// Track identifies what the player is playing.
type Track struct {
	Title    string
	Artist   string
	Duration float64
}

func (t Track) info() ipc.Track {
	return ipc.Track{Title: t.Title, Artist: t.Artist, Duration: t.Duration}
}

type resolver interface {
	Resolve(ctx context.Context, title, artist string, duration float64) (*lyrics.Result, error)
}

type effectsGenerator interface {
	Generate(ctx context.Context, req effects.Request) error
}

type translator interface {
	TranslateLines(ctx context.Context, lines []lyrics.Line, artist, track string) ([]lyrics.Line, error)
	TranslateText(ctx context.Context, text, artist, track string) (string, error)
}

type App struct {
	cfg       *config.Config
	settings  config.SettingsSource
	source    player.Source
	resolver  resolver
	engine    *effects.Engine
	renderer  ipc.Renderer
	scheduler *scheduler.Scheduler

	ipcServer  *ipc.Server
	httpServer *httpapi.Server

	newGenerator  func(ctx context.Context, s config.Settings) (effectsGenerator, error)
	newTranslator func(ctx context.Context, s config.Settings) (translator, error)
	startCycle    func(ctx context.Context, token uint64, track Track, s config.Settings)

	// 当前曲目，仅由 checkTrack 写入
	mu          sync.Mutex
	current     Track
	hasTrack    bool
	cancelCycle context.CancelFunc

	generation atomic.Uint64
	// 发布时间轴前持有，保证过期周期不会覆盖新周期
	publishMu sync.Mutex
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func New(cfg *config.Config) *App {
	setupLogging(cfg.App.LogLevel)

	source, remote, err := newSource(cfg.Player)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Player.Backend).Msg("Failed to create player source")
	}

	a := &App{
		cfg:      cfg,
		settings: config.NewFileSettings(cfg),
		source:   source,
		resolver: lyrics.NewResolver(newCorpus(cfg)),
		engine:   effects.NewEngine(nil),
	}
	a.ipcServer = ipc.NewServer(cfg.App.SocketPath, a.handleCommand)
	renderers := multiRenderer{a.ipcServer}
	if cfg.App.HTTPAddr != "" {
		a.httpServer = httpapi.NewServer(cfg.App.HTTPAddr, cfg.App.AllowedOrigins, remote, a.setVisible)
		renderers = append(renderers, a.httpServer)
	}
	a.renderer = renderers

	f := newClientFactory(cfg)
	a.newGenerator = f.generator(a.engine)
	a.newTranslator = f.translator
	a.startCycle = a.goCycle
	a.scheduler = scheduler.New(player.Position(source), a.onActivate, cfg.App.SyncInterval, cfg.App.SyncOffset)
	return a
}

// Run starts the renderers and both polling loops, and blocks until
// SIGINT or SIGTERM.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.ipcServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start IPC server")
	}
	defer a.ipcServer.Close()

	if a.httpServer != nil {
		go func() {
			if err := a.httpServer.ListenAndServe(ctx); err != nil {
				logger().Error().Err(err).Msg("HTTP overlay API stopped")
			}
		}()
	}

	go a.scheduler.Run(ctx)

	ticker := time.NewTicker(a.cfg.App.CheckInterval)
	defer ticker.Stop()

	logger().Info().Dur("interval", a.cfg.App.CheckInterval).Msg("Starting player check loop...")
	for {
		a.checkTrack(ctx)
		select {
		case <-ctx.Done():
			logger().Info().Msg("Shutting down")
			a.mu.Lock()
			if a.cancelCycle != nil {
				a.cancelCycle()
			}
			a.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

// changed reports whether st is a different track than cur: another title,
// or a duration further away than tolerance.
func changed(cur Track, st player.State, tolerance time.Duration) bool {
	if st.Title != cur.Title {
		return true
	}
	return math.Abs(st.Duration-cur.Duration) > tolerance.Seconds()
}

// checkTrack polls the player once and starts a new cycle on a track change.
func (a *App) checkTrack(ctx context.Context) bool {
	st, err := a.source.State(ctx)
	if err != nil || !st.Ready() {
		if err != nil && !errors.Is(err, player.ErrNotReady) {
			logger().Debug().Err(err).Msg("Player state unavailable")
		}
		return false
	}

	a.mu.Lock()
	if a.hasTrack && !changed(a.current, st, a.cfg.App.TrackChangeTolerance) {
		a.mu.Unlock()
		return false
	}
	track := Track{Title: st.Title, Artist: st.Artist, Duration: st.Duration}
	a.current = track
	a.hasTrack = true

	token := a.generation.Add(1)
	if a.cancelCycle != nil {
		a.cancelCycle()
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	a.cancelCycle = cancel
	a.mu.Unlock()

	logger().Info().Msg("-----------------------------------------------------")
	logger().Info().
		Str("title", track.Title).
		Str("artist", track.Artist).
		Float64("duration", track.Duration).
		Uint64("generation", token).
		Msg("New track detected")

	if !a.scheduler.Visible() {
		a.setVisible(true)
	}
	a.startCycle(cycleCtx, token, track, a.settings.Settings())
	return true
}

func (a *App) goCycle(ctx context.Context, token uint64, track Track, s config.Settings) {
	go a.runCycle(ctx, token, track, s)
}

// isCurrent reports whether token still identifies the playing track.
func (a *App) isCurrent(token uint64) bool {
	return a.generation.Load() == token
}

// runCycle resolves, enriches and publishes the lyrics of one track. Every
// failure degrades the cycle; none of them stops the polling loops.
func (a *App) runCycle(ctx context.Context, token uint64, track Track, s config.Settings) {
	cycle := uuid.NewString()
	clog := logger().With().Str("cycle", cycle).Str("title", track.Title).Logger()
	current := func() bool { return a.isCurrent(token) && ctx.Err() == nil }

	a.publishMu.Lock()
	if !current() {
		a.publishMu.Unlock()
		return
	}
	a.scheduler.Publish(nil)
	a.renderer.Send(ipc.Status(cycle, fmt.Sprintf("Searching lyrics for %s...", track.Title)))
	a.publishMu.Unlock()

	res, err := a.resolver.Resolve(ctx, track.Title, track.Artist, track.Duration)
	if err != nil {
		if !current() {
			return
		}
		clog.Warn().Err(err).Msg("Lyrics not found")
		a.publish(token, func() {
			a.renderer.Send(ipc.NotFound(cycle, track.info()))
		})
		return
	}
	clog.Info().
		Str("provider", res.Provider).
		Bool("synced", res.Synced()).
		Int("lines", len(res.Lines)).
		Float64("speed_ratio", res.SpeedRatio).
		Msg("Lyrics resolved")

	if s.AIEnabled {
		a.raceEffects(ctx, clog, effects.Request{
			Lyrics:  res.Text(),
			Artist:  track.Artist,
			Track:   track.Title,
			Current: current,
		}, s)
	}

	var (
		translatedLines []lyrics.Line
		translatedPlain string
	)
	if s.TranslationEnabled {
		translatedLines, translatedPlain = a.translate(ctx, clog, res, track, s)
	}

	published := a.publish(token, func() {
		if res.Synced() {
			a.renderer.Send(ipc.Timeline(cycle, res.Provider, track.info(), res.Lines, translatedLines))
			// 翻译成功时同步循环使用译文，特效按译文触发
			if len(translatedLines) == len(res.Lines) {
				a.scheduler.Publish(translatedLines)
			} else {
				a.scheduler.Publish(res.Lines)
			}
			return
		}
		a.renderer.Send(ipc.Plain(cycle, res.Provider, track.info(), res.Plain, translatedPlain))
	})
	if !published {
		clog.Info().Msg("Track changed before publishing, dropping results")
	}
}

// publish runs fn if token is still current, atomically with respect to
// other cycles.
func (a *App) publish(token uint64, fn func()) bool {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()
	if !a.isCurrent(token) {
		return false
	}
	fn()
	return true
}

// raceEffects runs the generator against the configured timeout. A generator
// that loses the race keeps running and may still merge later.
func (a *App) raceEffects(ctx context.Context, clog zerolog.Logger, req effects.Request, s config.Settings) {
	gen, err := a.newGenerator(ctx, s)
	if err != nil {
		clog.Warn().Err(err).Msg("AI effects unavailable")
		return
	}

	done := make(chan error, 1)
	go func() {
		genCtx, cancel := context.WithTimeout(ctx, generationLimit)
		defer cancel()
		err := gen.Generate(genCtx, req)
		if err == nil && req.Current() {
			a.renderer.Send(ipc.Styles(a.engine.Snapshot().Styles()))
		}
		done <- err
	}()

	timer := time.NewTimer(a.cfg.App.AITimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		switch {
		case err == nil:
			clog.Info().Msg("AI effects ready")
		case errors.Is(err, effects.ErrStale), errors.Is(err, context.Canceled):
			clog.Debug().Err(err).Msg("AI effects superseded")
		default:
			clog.Warn().Err(err).Msg("Continuing without AI effects")
		}
	case <-timer.C:
		clog.Info().Dur("timeout", a.cfg.App.AITimeout).Msg("AI effects still pending, rendering without waiting")
		go func() {
			if err := <-done; err != nil && !errors.Is(err, effects.ErrStale) && !errors.Is(err, context.Canceled) {
				clog.Warn().Err(err).Msg("Background AI effects failed")
			}
		}()
	case <-ctx.Done():
	}
}

// translate returns the aligned translation of a synced result, or the
// translated text of a plain one. Failures return zero values.
func (a *App) translate(ctx context.Context, clog zerolog.Logger, res *lyrics.Result, track Track, s config.Settings) ([]lyrics.Line, string) {
	tr, err := a.newTranslator(ctx, s)
	if err != nil {
		clog.Warn().Err(err).Msg("Translation unavailable")
		return nil, ""
	}

	tctx, cancel := context.WithTimeout(ctx, translationLimit)
	defer cancel()

	if res.Synced() {
		lines, err := tr.TranslateLines(tctx, res.Lines, track.Artist, track.Title)
		if err != nil {
			clog.Warn().Err(err).Msg("Keeping original lyrics")
			return nil, ""
		}
		return lines, ""
	}
	text, err := tr.TranslateText(tctx, res.Plain, track.Artist, track.Title)
	if err != nil {
		clog.Warn().Err(err).Msg("Keeping original lyrics")
		return nil, ""
	}
	return nil, text
}

// onActivate handles a line change from the scheduler: highlight, then
// effects for the line's text (the translation when one was aligned).
func (a *App) onActivate(index int, line lyrics.Line) {
	if index < 0 {
		a.renderer.Send(ipc.Line(index, nil))
		return
	}
	fx := a.engine.Spawn(line.Text)
	if len(fx) > 0 {
		ids := make([]string, len(fx))
		for i, e := range fx {
			ids[i] = e.ID
		}
		logger().Debug().Int("index", index).Strs("effects", ids).Msg("Spawning effects")
	}
	a.renderer.Send(ipc.Line(index, fx))
}

func (a *App) setVisible(v bool) {
	a.scheduler.SetVisible(v)
	a.renderer.Send(ipc.Visibility(v))
}

func (a *App) handleCommand(cmd string) {
	switch cmd {
	case "show":
		a.setVisible(true)
	case "hide":
		a.setVisible(false)
	case "toggle":
		a.setVisible(!a.scheduler.Visible())
	default:
		logger().Warn().Str("command", cmd).Msg("Unknown overlay command")
	}
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "app").Logger()
	return &l
}
