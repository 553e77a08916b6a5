package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"lyricfx/internal/effects"
	"lyricfx/internal/lyrics"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func readEvent(t *testing.T, r *bufio.Reader, conn net.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		t.Fatalf("bad event %q: %v", line, err)
	}
	return ev
}

func TestServer(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "fx.sock")
	commands := make(chan string, 1)
	s := NewServer(sock, func(cmd string) { commands <- cmd })
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	track := Track{Title: "T", Artist: "A", Duration: 100}
	s.Send(Status("c1", "Searching lyrics..."))
	s.Send(Timeline("c1", "lrclib", track, []lyrics.Line{{Time: 1, Text: "a"}, {Time: 10, Text: "b"}}, nil))
	s.Send(Line(0, nil))

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	// status was superseded by the timeline and is not replayed
	ev := readEvent(t, r, conn)
	if ev.Type != EventTimeline || len(ev.Lines) != 2 {
		t.Fatalf("Expected timeline replay, got %+v", ev)
	}
	if !ev.Lines[0].Epic || ev.Lines[0].Duration != 9 || ev.Lines[1].Duration != 5 || ev.Lines[1].Epic {
		t.Errorf("Unexpected durations %+v", ev.Lines)
	}
	ev = readEvent(t, r, conn)
	if ev.Type != EventLine || ev.Index == nil || *ev.Index != 0 {
		t.Fatalf("Expected line replay, got %+v", ev)
	}

	s.Send(Line(1, []effects.Effect{{ID: "fire"}}))
	ev = readEvent(t, r, conn)
	if ev.Type != EventLine || *ev.Index != 1 || len(ev.Effects) != 1 || ev.Effects[0].ID != "fire" {
		t.Errorf("Unexpected broadcast %+v", ev)
	}

	if _, err := conn.Write([]byte("  HIDE \n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	select {
	case cmd := <-commands:
		if cmd != "hide" {
			t.Errorf("Expected hide, got %q", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}
}

func TestServerSingleInstance(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "fx.sock")
	first := NewServer(sock, nil)
	if err := first.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Close()

	second := NewServer(sock, nil)
	if err := second.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestServerDropsStalledClient(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "fx.sock")
	s := NewServer(sock, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	// 连接后从不读取
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	clients := func() int {
		s.clientConnsLock.Lock()
		defer s.clientConnsLock.Unlock()
		return len(s.clientConns)
	}
	deadline := time.Now().Add(2 * time.Second)
	for clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if clients() != 1 {
		t.Fatal("client never registered")
	}

	msg := strings.Repeat("x", 4096)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			s.Send(Status("c1", msg))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Send blocked on a client that does not read")
	}
	if n := clients(); n != 0 {
		t.Errorf("Expected stalled client to be dropped, %d left", n)
	}
}

func TestPidLock(t *testing.T) {
	t.Run("WritesPid", func(t *testing.T) {
		l := pidLock{path: filepath.Join(t.TempDir(), "fx.lock")}
		if err := l.acquire(); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		defer l.release()

		content, err := os.ReadFile(l.path)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if pid, err := strconv.Atoi(strings.TrimSpace(string(content))); err != nil || pid != os.Getpid() {
			t.Errorf("Expected pid %d, got %q", os.Getpid(), content)
		}
	})

	t.Run("WriteFailure", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fx.lock")
		if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if err := writePid(f); err == nil {
			t.Error("Expected an error writing to a read-only file")
		}
	})
}
