package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// replayOrder lists the event types a newly connected client receives, in
// the order they must be applied.
var replayOrder = []string{EventVisibility, EventStyles, EventStatus, EventTimeline, EventLine}

// DefaultWriteTimeout bounds each write to a client. A client that does not
// drain its socket within it is dropped.
const DefaultWriteTimeout = 100 * time.Millisecond

// Server broadcasts events to overlay clients over a unix socket. Clients may
// send "show", "hide" or "toggle", one per line.
type Server struct {
	socketPath string
	listener   net.Listener
	lock       pidLock

	clientConns     map[net.Conn]struct{}
	clientConnsLock sync.Mutex

	// 最近一次的各类事件，新客户端连接时重放
	last     map[string][]byte
	lastLock sync.Mutex

	onCommand    func(cmd string)
	writeTimeout time.Duration
}

// NewServer creates a server. onCommand receives client commands and may be nil.
func NewServer(socketPath string, onCommand func(cmd string)) *Server {
	return &Server{
		socketPath:   socketPath,
		lock:         pidLock{path: socketPath + ".lock"},
		clientConns:  make(map[net.Conn]struct{}),
		last:         make(map[string][]byte),
		onCommand:    onCommand,
		writeTimeout: DefaultWriteTimeout,
	}
}

func (s *Server) Start() error {
	if err := s.lock.acquire(); err != nil {
		return err
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.lock.release()
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.lock.release()
		return err
	}
	s.listener = listener

	logger().Info().Str("socket_path", s.socketPath).Msg("IPC server listening")

	go s.acceptConnections()
	return nil
}

func (s *Server) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger().Error().Err(err).Msg("Failed to accept IPC connection")
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	// 先注册再重放，避免漏掉期间的广播
	s.clientConnsLock.Lock()
	s.clientConns[conn] = struct{}{}
	if err := s.replay(conn); err != nil {
		logger().Error().Err(err).Msg("Failed to replay state, dropping client")
		delete(s.clientConns, conn)
		s.clientConnsLock.Unlock()
		conn.Close()
		return
	}
	s.clientConnsLock.Unlock()

	logger().Info().Msg("Overlay client connected")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if cmd == "" {
			continue
		}
		logger().Debug().Str("command", cmd).Msg("Client command")
		if s.onCommand != nil {
			s.onCommand(cmd)
		}
	}

	s.clientConnsLock.Lock()
	delete(s.clientConns, conn)
	s.clientConnsLock.Unlock()
	conn.Close()
	logger().Info().Msg("Overlay client disconnected")
}

// replay must be called with clientConnsLock held.
func (s *Server) replay(conn net.Conn) error {
	s.lastLock.Lock()
	defer s.lastLock.Unlock()
	for _, typ := range replayOrder {
		data, ok := s.last[typ]
		if !ok {
			continue
		}
		if err := s.write(conn, data); err != nil {
			return err
		}
	}
	return nil
}

// write never blocks longer than writeTimeout, so a stalled client cannot
// hold up the polling loops that call Send.
func (s *Server) write(conn net.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

func (s *Server) remember(ev Event, data []byte) {
	s.lastLock.Lock()
	defer s.lastLock.Unlock()
	switch ev.Type {
	case EventTimeline, EventPlain, EventNotFound:
		// 新的一首歌：旧的歌词和高亮不再有效
		delete(s.last, EventLine)
		delete(s.last, EventStatus)
		s.last[EventTimeline] = data
	case EventStatus:
		delete(s.last, EventTimeline)
		delete(s.last, EventLine)
		s.last[EventStatus] = data
	default:
		s.last[ev.Type] = data
	}
}

// Send implements Renderer.
func (s *Server) Send(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger().Error().Err(err).Str("type", ev.Type).Msg("Failed to encode event")
		return
	}
	data = append(data, '\n')
	s.remember(ev, data)

	s.clientConnsLock.Lock()
	defer s.clientConnsLock.Unlock()
	for conn := range s.clientConns {
		if err := s.write(conn, data); err != nil {
			logger().Error().Err(err).Msg("Failed to write to client, removing")
			conn.Close()
			delete(s.clientConns, conn)
		}
	}
}

func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.clientConnsLock.Lock()
	for conn := range s.clientConns {
		conn.Close()
	}
	s.clientConnsLock.Unlock()
	s.lock.release()
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "ipc").Logger()
	return &l
}
