package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/player"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
	"github.com/teslashibe/go-motionbridge/pkg/target"
)

// TestLivePlayerEmitsSignal runs a real player loop on the bridge target
// against the relay: a tracker signal must come back out of /output.
func TestLivePlayerEmitsSignal(t *testing.T) {
	s := newTestServer(t)
	url, _ := startServer(t, s)

	out := dial(t, url+"/output?client=viewer")
	waitFor(t, func() bool { return s.hub.Count(RoleOutput) == 1 })

	opts := target.Options{
		BridgeURL:    url + "/bridge",
		DialTimeout:  time.Second,
		WriteTimeout: time.Second,
		Logger:       log.Discard(),
	}
	mb := &player.Mailbox{}
	loop := player.NewLoop(mb, player.LoopConfig{
		Loader: motion.NewLibrary(t.TempDir()),
		Targets: func(kind protocol.Target) (target.Target, error) {
			return target.New(kind, opts)
		},
		Mode:   protocol.ModeLive,
		Target: protocol.TargetBridge,
		Logger: log.Discard(),
	})
	listener := player.NewListener(mb, loop, player.ListenerConfig{
		URL:         url + "/player",
		DialTimeout: time.Second,
		Logger:      log.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = loop.Run(ctx) }()
	go func() { defer wg.Done(); _ = listener.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	waitFor(t, s.hub.PlayerConnected)
	waitFor(t, func() bool { return loop.State().TargetConnected != nil && *loop.State().TargetConnected })

	in := dial(t, url+"/input?client=tracker")
	write(t, in, `{"signal":[0.5,-0.5,0.25,-1]}`)

	want := protocol.ForceFrame{0.5, -0.5, 0.25, -1}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var m protocol.ForcesMessage
		if err := json.Unmarshal(read(t, out), &m); err != nil {
			t.Fatal(err)
		}
		if m.Forces == want {
			return
		}
	}
	t.Fatalf("output never saw the live signal %v", want)
}
