package relay

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/pkg/mapping"
	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

const bumpMotion = `{"name":"bump","flShape":[0.1,0.2],"frShape":[0.1,0.2],"rlShape":[0,0],"rrShape":[0,0]}`

// newTestServer builds a server over a temp motion library holding "bump".
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	motions := filepath.Join(dir, "motions")
	if err := os.MkdirAll(motions, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(motions, "bump.json"), []byte(bumpMotion), 0o644); err != nil {
		t.Fatal(err)
	}

	lib := motion.NewLibrary(motions)
	return NewServer(Options{
		Library:  lib,
		State:    NewPlayerState(filepath.Join(dir, "player_config.json")),
		Haptics:  mapping.NewHapticsMapper(filepath.Join(dir, "haptics.json"), lib),
		Audio:    mapping.NewAudioMapper(filepath.Join(dir, "audio.json"), lib),
		Gestures: mapping.NewGestureMapper(filepath.Join(dir, "gestures.json"), lib),
		Logger:   log.Discard(),
	})
}

// startServer serves s on a loopback port until stop is called or the
// test ends. stop returns what ServeListener returned.
func startServer(t *testing.T, s *Server) (url string, stop func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	stop = sync.OnceValue(func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
			return nil
		}
	})
	t.Cleanup(func() { stop() })
	return "ws://" + ln.Addr().String(), stop
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	var (
		c   *websocket.Conn
		err error
	)
	// The listener goroutine may not be accepting yet.
	for range 50 {
		c, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { c.Close() })
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", url, err)
	return nil
}

func read(t *testing.T, c *websocket.Conn) []byte {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func write(t *testing.T, c *websocket.Conn, msg string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readStatusUntil reads status snapshots until cond holds.
func readStatusUntil(t *testing.T, c *websocket.Conn, cond func(*protocol.Status) bool) *protocol.Status {
	t.Helper()
	for range 20 {
		st, err := protocol.ParseStatus(read(t, c))
		if err != nil {
			t.Fatal(err)
		}
		if cond(st) {
			return st
		}
	}
	t.Fatal("status condition not reached")
	return nil
}

func readCommand(t *testing.T, c *websocket.Conn) *protocol.Command {
	t.Helper()
	cmd, err := protocol.ParseCommand(read(t, c))
	if err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestInputClientAppearsInStatus(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	status := dial(t, url+"/status?client=ui")
	readStatusUntil(t, status, func(st *protocol.Status) bool { return true })

	audio := dial(t, url+"/input?client=audio")
	readStatusUntil(t, status, func(st *protocol.Status) bool {
		return slices.Contains(st.InputClients, "audio")
	})

	audio.Close()
	st := readStatusUntil(t, status, func(st *protocol.Status) bool {
		return !slices.Contains(st.InputClients, "audio")
	})
	if st.PlayerConnected {
		t.Error("PlayerConnected should be false")
	}
}

func TestHapticsLearnOnMiss(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	in := dial(t, url+"/input?client=game")
	write(t, in, `{"program":"X","largeMotor":10,"smallMotor":20}`)

	waitFor(t, func() bool { return slices.Contains(s.haptics.Programs(), "X") })

	mapped := s.haptics.Mapping()
	if len(mapped) != 1 || len(mapped[0].HapticsList) != 1 {
		t.Fatalf("mapping = %+v, want one program with one row", mapped)
	}
	row := mapped[0].HapticsList[0]
	if row.Haptics != "010:020" || row.Motion != motion.NoneName {
		t.Errorf("row = %+v, want 010:020 -> none", row)
	}

	// The learned row was persisted.
	path := filepath.Join(filepath.Dir(s.hub.State().path), "haptics.json")
	reloaded := mapping.NewHapticsMapper(path, s.library)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded.Resolve("X", "010:020"); !ok {
		t.Error("learned row not saved")
	}
}

func TestInputValidationKeepsSocketOpen(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	in := dial(t, url+"/input?client=game")
	for _, msg := range []string{
		`{"program":"X","largeMotor":300,"smallMotor":1}`,
		`{"timeOffset":1.5,"motion":"bump"}`,
		`{"timeOffset":1.5,"motion":"bump","behavior":"append","scale":0.5,"color":"red","magnitude":5000}`,
	} {
		write(t, in, msg)
		var e protocol.ErrorMessage
		if err := json.Unmarshal(read(t, in), &e); err != nil {
			t.Fatal(err)
		}
		if e.Error != "validation" || len(e.Fields) == 0 {
			t.Errorf("reply to %s = %+v, want validation fields", msg, e)
		}
	}

	write(t, in, `{not json`)
	write(t, in, `{"program":"Y","largeMotor":1,"smallMotor":1}`)
	waitFor(t, func() bool { return slices.Contains(s.haptics.Programs(), "Y") })
}

func TestTimelineEventReachesPlayer(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	player := dial(t, url+"/player")
	waitFor(t, s.hub.PlayerConnected)

	in := dial(t, url+"/input?client=timeline")
	write(t, in, `{"id":1,"motion":"bump","behavior":"append","scale":0.5,"timeOffset":2.0,"fallback":3}`)

	cmd := readCommand(t, player)
	if cmd.Command != protocol.CommandMotion || cmd.Motion != "bump" {
		t.Fatalf("cmd = %+v, want motion bump", cmd)
	}
	if cmd.Behavior != protocol.BehaviorAppend || cmd.Scale != 0.5 {
		t.Errorf("cmd = %+v, want append at 0.5", cmd)
	}
}

func TestGestureSwitchesMode(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	player := dial(t, url+"/player")
	waitFor(t, s.hub.PlayerConnected)

	in := dial(t, url+"/input?client=camera")
	write(t, in, `{"gesture":"wave"}`)

	cmd := readCommand(t, player)
	if cmd.Command != protocol.CommandModeUpdate || cmd.Mode != protocol.ModeEvent {
		t.Errorf("cmd = %+v, want mode_update event", cmd)
	}
}

func TestPlayerReportPersistsAndBroadcasts(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	status := dial(t, url+"/status")
	player := dial(t, url+"/player")
	readStatusUntil(t, status, func(st *protocol.Status) bool { return st.PlayerConnected })

	write(t, player, `{"mode":"live","target":"bridge","target_connected":true}`)
	st := readStatusUntil(t, status, func(st *protocol.Status) bool { return st.PlayerMode == protocol.ModeLive })
	if st.PlayerTarget != protocol.TargetBridge || !st.TargetConnected {
		t.Errorf("status = %+v, want bridge connected", st)
	}

	reloaded := NewPlayerState(s.hub.State().path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	mode, target, connected := reloaded.Snapshot()
	if mode != protocol.ModeLive || target != protocol.TargetBridge {
		t.Errorf("persisted = %s/%s, want live/bridge", mode, target)
	}
	if connected {
		t.Error("target_connected must not be persisted")
	}

	player.Close()
	st = readStatusUntil(t, status, func(st *protocol.Status) bool { return !st.PlayerConnected })
	if st.TargetConnected {
		t.Error("target_connected should reset when the player leaves")
	}
}

func TestForcesRelayedToOutput(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	out := dial(t, url+"/output?client=viewer")
	waitFor(t, func() bool { return s.hub.Count(RoleOutput) == 1 })

	tests := []struct {
		name    string
		path    string
		msg     string
		wantGen float64
	}{
		{
			name: "player",
			path: "/player",
			msg:  `{"forces":[0.1,0.2,0.3,0.4]}`,
		},
		{
			name:    "bridge",
			path:    "/bridge",
			msg:     `{"command":"forces","forces":[0.1,0.2,0.3,0.4],"timestamp_force_generated":12.5}`,
			wantGen: 12.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := dial(t, url+tt.path)
			write(t, src, tt.msg)

			var m protocol.ForcesMessage
			if err := json.Unmarshal(read(t, out), &m); err != nil {
				t.Fatal(err)
			}
			if m.Command != protocol.CommandForces {
				t.Errorf("Command = %s, want forces", m.Command)
			}
			if m.Forces != (protocol.ForceFrame{0.1, 0.2, 0.3, 0.4}) {
				t.Errorf("Forces = %v", m.Forces)
			}
			if m.Generated != tt.wantGen {
				t.Errorf("Generated = %v, want %v", m.Generated, tt.wantGen)
			}
		})
	}
}

func TestShutdownNotifiesPlayer(t *testing.T) {
	s := newTestServer(t)
	url, stop := startServer(t, s)

	player := dial(t, url+"/player")
	waitFor(t, s.hub.PlayerConnected)

	errCh := make(chan error, 1)
	go func() { errCh <- stop() }()

	cmd := readCommand(t, player)
	if cmd.Command != protocol.CommandShutdown {
		t.Errorf("cmd = %+v, want shutdown", cmd)
	}
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("ServeListener() = %v, want context.Canceled", err)
	}

	if _, _, err := websocket.DefaultDialer.Dial(url+"/player", nil); err == nil {
		t.Error("dial after shutdown should fail")
	}
}

func TestSignalReachesPlayer(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	player := dial(t, url+"/player")
	waitFor(t, s.hub.PlayerConnected)

	in := dial(t, url+"/input?client=tracker")
	for _, msg := range []string{
		`{"signal":[0.5,-0.5]}`,
		`{"signal":[0.5,-0.5,0,0,1]}`,
		`{"signal":[2,0,0,0]}`,
	} {
		write(t, in, msg)
		var e protocol.ErrorMessage
		if err := json.Unmarshal(read(t, in), &e); err != nil {
			t.Fatal(err)
		}
		if e.Error != "validation" {
			t.Errorf("reply to %s = %+v, want validation error", msg, e)
		}
	}

	write(t, in, `{"signal":[0.5,-0.5,0.25,-1]}`)
	cmd := readCommand(t, player)
	if cmd.Command != protocol.CommandSignal || cmd.Signal == nil {
		t.Fatalf("cmd = %+v, want signal", cmd)
	}
	if *cmd.Signal != (protocol.ForceFrame{0.5, -0.5, 0.25, -1}) {
		t.Errorf("Signal = %v", *cmd.Signal)
	}
}
