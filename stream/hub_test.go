package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/pthm-cable/slime/field"
	"github.com/pthm-cable/slime/telemetry"
)

type fakeControl struct {
	mu      sync.Mutex
	running bool
}

func (c *fakeControl) Start() { c.mu.Lock(); c.running = true; c.mu.Unlock() }
func (c *fakeControl) Stop()  { c.mu.Lock(); c.running = false; c.mu.Unlock() }

func (c *fakeControl) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// startHub serves hub over httptest and returns the websocket URL and a
// shutdown func.
func startHub(t *testing.T, hub *Hub) (string, *httptest.Server, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	srv := httptest.NewServer(hub.Handler())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	return wsURL, srv, func() {
		cancel()
		<-done
		srv.Close()
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// readType reads messages until one of the given type arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string, out any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading %q message: %v", typ, err)
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			t.Fatalf("bad message %s: %v", data, err)
		}
		if head.Type == typ {
			if err := json.Unmarshal(data, out); err != nil {
				t.Fatalf("decoding %q: %v", typ, err)
			}
			return
		}
	}
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewFrame(t *testing.T) {
	f, err := field.New(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	f.Set(0, 0, 1)
	f.Set(1, 1, 1)

	frame := NewFrame(9, f.Current(), 2, 1)
	if frame.Type != "frame" || frame.Tick != 9 {
		t.Errorf("frame header = %+v", frame)
	}
	if frame.Width != 2 || frame.Height != 1 {
		t.Fatalf("frame size = %dx%d, want 2x1", frame.Width, frame.Height)
	}
	if frame.Cells[0] != 128 || frame.Cells[1] != 0 {
		t.Errorf("cells = %v, want [128 0]", frame.Cells)
	}
}

func TestHubBroadcastsFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(8, 4, nil, nil, nil)
	url, _, shutdown := startHub(t, hub)
	defer shutdown()

	conn := dial(t, url)
	defer conn.Close()

	var hello Hello
	readType(t, conn, "config", &hello)
	if hello.Width != 8 || hello.Height != 4 {
		t.Errorf("hello = %+v", hello)
	}
	waitClients(t, hub, 1)

	f, err := field.New(8, 4)
	if err != nil {
		t.Fatal(err)
	}
	f.Fill(1)
	hub.Publish(NewFrame(3, f.Current(), 1, 1))

	var frame Frame
	readType(t, conn, "frame", &frame)
	if frame.Tick != 3 || len(frame.Cells) != 32 {
		t.Fatalf("frame = tick %d, %d cells", frame.Tick, len(frame.Cells))
	}
	for i, c := range frame.Cells {
		if c != 255 {
			t.Fatalf("cell %d = %d, want 255", i, c)
		}
	}
}

func TestHubPauseResumeCommands(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctl := &fakeControl{running: true}
	hub := NewHub(4, 4, nil, ctl, nil)
	url, _, shutdown := startHub(t, hub)
	defer shutdown()

	conn := dial(t, url)
	defer conn.Close()

	var hello Hello
	readType(t, conn, "config", &hello)

	tests := []struct {
		cmd         string
		wantOK      bool
		wantRunning bool
	}{
		{"pause", true, false},
		{"resume", true, true},
		{"explode", false, true},
	}
	for _, tt := range tests {
		if err := conn.WriteJSON(Command{Type: tt.cmd}); err != nil {
			t.Fatal(err)
		}
		var ack Ack
		readType(t, conn, "ack", &ack)
		if ack.Command != tt.cmd || ack.OK != tt.wantOK {
			t.Errorf("%s: ack = %+v", tt.cmd, ack)
		}
		if ctl.isRunning() != tt.wantRunning {
			t.Errorf("%s: running = %v, want %v", tt.cmd, ctl.isRunning(), tt.wantRunning)
		}
	}
}

func TestHubDisconnectsClientsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(4, 4, nil, nil, nil)
	url, _, shutdown := startHub(t, hub)

	conn := dial(t, url)
	defer conn.Close()
	var hello Hello
	readType(t, conn, "config", &hello)
	waitClients(t, hub, 1)

	shutdown()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after shutdown")
	}
	if hub.Clients() != 0 {
		t.Errorf("clients = %d after shutdown", hub.Clients())
	}
}

func TestServeMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)

	ms := telemetry.NewMetrics(10)
	ms.Emit(telemetry.MetricRender, 2)

	hub := NewHub(4, 4, ms, nil, nil)
	_, srv, shutdown := startHub(t, hub)
	defer shutdown()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var got map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got[telemetry.MetricRender] != 2 {
		t.Errorf("render = %v, want 2", got[telemetry.MetricRender])
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	hub := NewHub(1, 1, nil, nil, nil)
	hub.Publish(Frame{Tick: 1})
	hub.Publish(Frame{Tick: 2})
	hub.Publish(Frame{Tick: 3})

	select {
	case f := <-hub.frames:
		if f.Tick != 3 {
			t.Errorf("queued tick = %d, want 3", f.Tick)
		}
	default:
		t.Fatal("no frame queued")
	}
}
