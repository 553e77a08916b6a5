package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"lyricfx/internal/effects"
	"lyricfx/internal/ipc"
	"lyricfx/internal/player"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var DefaultAllowedOrigins = []string{"https://music.youtube.com", "https://open.spotify.com", "http://localhost:3000"}

// State is the overlay snapshot served by GET /api/state.
type State struct {
	Cycle       string             `json:"cycle,omitempty"`
	Status      string             `json:"status,omitempty"`
	NotFound    bool               `json:"notFound"`
	Track       *ipc.Track         `json:"track,omitempty"`
	Provider    string             `json:"provider,omitempty"`
	Lines       []ipc.TimelineLine `json:"lines"`
	Plain       string             `json:"plain,omitempty"`
	Translation string             `json:"translation,omitempty"`
	Translated  bool               `json:"translated"`
	Index       int                `json:"index"`
	Effects     []effects.Effect   `json:"effects"`
	Styles      string             `json:"styles"`
	Visible     bool               `json:"visible"`
}

type playerReport struct {
	player.State
	Paused bool `json:"paused"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// Server exposes the overlay state to browser clients and optionally
// accepts player reports.
type Server struct {
	addr       string
	handler    http.Handler
	remote     *player.Remote
	setVisible func(bool)

	mu    sync.RWMutex
	state State
}

// NewServer builds the HTTP surface. remote may be nil, in which case
// POST /api/player is not registered.
func NewServer(addr string, origins []string, remote *player.Remote, setVisible func(bool)) *Server {
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}
	s := &Server{
		addr:       addr,
		remote:     remote,
		setVisible: setVisible,
		state:      State{Index: -1, Visible: true},
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/state", s.getState).Methods(http.MethodGet)
	router.HandleFunc("/api/visibility", s.postVisibility).Methods(http.MethodPost)
	if remote != nil {
		router.HandleFunc("/api/player", s.postPlayer).Methods(http.MethodPost)
	}
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"help": "GET /api/state for the current lyrics and effects; POST /api/visibility {\"visible\":bool}; POST /api/player {title, artist, duration, currentTime, paused}",
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(router)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger().Info().Str("addr", s.addr).Msg("HTTP overlay API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Send implements ipc.Renderer by folding the event into the snapshot.
func (s *Server) Send(ev ipc.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.state
	switch ev.Type {
	case ipc.EventStatus:
		st.Cycle, st.Status, st.NotFound = ev.Cycle, ev.Message, false
		st.Lines, st.Plain, st.Translation, st.Index, st.Effects = nil, "", "", -1, nil
	case ipc.EventNotFound:
		st.Cycle, st.Status, st.NotFound, st.Track = ev.Cycle, ev.Message, true, ev.Track
		st.Lines, st.Plain, st.Translation, st.Index, st.Effects = nil, "", "", -1, nil
	case ipc.EventTimeline, ipc.EventPlain:
		st.Cycle, st.Status, st.NotFound = ev.Cycle, "", false
		st.Track, st.Provider, st.Translated = ev.Track, ev.Provider, ev.Translated
		st.Lines, st.Plain, st.Translation, st.Index, st.Effects = ev.Lines, ev.Plain, ev.Translation, -1, nil
	case ipc.EventLine:
		if ev.Index != nil {
			st.Index = *ev.Index
		}
		st.Effects = ev.Effects
	case ipc.EventStyles:
		st.Styles = ev.Styles
	case ipc.EventVisibility:
		if ev.Visible != nil {
			st.Visible = *ev.Visible
		}
	}
}

func (s *Server) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (s *Server) postVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Visible == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected {\"visible\": true|false}"})
		return
	}
	if s.setVisible != nil {
		s.setVisible(*req.Visible)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"visible": *req.Visible})
}

func (s *Server) postPlayer(w http.ResponseWriter, r *http.Request) {
	var report playerReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.remote.Update(report.State, report.Paused)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Error().Err(err).Msg("Failed to encode response")
	}
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "httpapi").Logger()
	return &l
}
