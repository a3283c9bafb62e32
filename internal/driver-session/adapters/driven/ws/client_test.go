package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
	"github.com/man137/Ryda/internal/mylogger"
)

type connEdge struct {
	state    driven.ConnState
	terminal bool
}

type recorder struct {
	edges  chan connEdge
	frames chan []byte
}

func newRecorder() *recorder {
	return &recorder{
		edges:  make(chan connEdge, 64),
		frames: make(chan []byte, 64),
	}
}

func (r *recorder) ConnStateChanged(state driven.ConnState, terminal bool) {
	r.edges <- connEdge{state: state, terminal: terminal}
}

func (r *recorder) InboundFrame(data []byte) {
	r.frames <- data
}

func (r *recorder) waitFor(t *testing.T, want connEdge) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case edge := <-r.edges:
			if edge == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for edge %+v", want)
		}
	}
}

func testLogger(t *testing.T) mylogger.Logger {
	t.Helper()
	log, err := mylogger.New(mylogger.LevelError)
	if err != nil {
		t.Fatalf("building logger: %v", err)
	}
	return log
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dispatchStub upgrades driver connections and hands them to the test.
func dispatchStub(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handle(conn, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestBackoffDelayLinearCapped(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 3 * time.Second},
		{2, 6 * time.Second},
		{3, 9 * time.Second},
		{4, 12 * time.Second},
		{9, 27 * time.Second},
		{10, 30 * time.Second},
		{11, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt, 3*time.Second, 30*time.Second); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestEndpointIdentifiesDriver(t *testing.T) {
	c := NewClient(Config{BaseURL: "ws://localhost:3002/", DriverID: "driver 1"}, newRecorder(), testLogger(t))
	want := "ws://localhost:3002/?type=driver&id=driver+1"
	if got := c.endpoint(); got != want {
		t.Fatalf("endpoint = %q, want %q", got, want)
	}
}

func TestSendFailsFastWhenDisconnected(t *testing.T) {
	c := NewClient(Config{BaseURL: "ws://localhost:1", DriverID: "driver-1"}, newRecorder(), testLogger(t))
	if err := c.Send(map[string]string{"type": "status_update"}); !errors.Is(err, model.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectAndExchangeFrames(t *testing.T) {
	identified := make(chan string, 1)
	received := make(chan []byte, 1)
	server := dispatchStub(t, func(conn *websocket.Conn, r *http.Request) {
		identified <- r.URL.Query().Get("type") + ":" + r.URL.Query().Get("id")
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ride_request","rideId":"R1"}`))
		// Hold the connection open until the client closes it.
		conn.ReadMessage()
	})

	events := newRecorder()
	c := NewClient(Config{BaseURL: wsURL(server), DriverID: "driver-1"}, events, testLogger(t))
	c.Connect()
	defer c.Close(driven.CloseNormalClosure, "test done")

	events.waitFor(t, connEdge{state: driven.Connected})
	if got := <-identified; got != "driver:driver-1" {
		t.Fatalf("identification query = %q", got)
	}

	if err := c.Send(map[string]string{"type": "status_update", "status": "available"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	var sent map[string]string
	if err := json.Unmarshal(<-received, &sent); err != nil {
		t.Fatalf("decoding sent frame: %v", err)
	}
	if sent["status"] != "available" {
		t.Fatalf("server saw %v", sent)
	}

	select {
	case frame := <-events.frames:
		if !strings.Contains(string(frame), "R1") {
			t.Fatalf("unexpected inbound frame: %s", frame)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the inbound frame")
	}
}

func TestNormalServerCloseDoesNotReconnect(t *testing.T) {
	server := dispatchStub(t, func(conn *websocket.Conn, r *http.Request) {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shift over")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		conn.ReadMessage() // wait for the client's close response
		conn.Close()
	})

	events := newRecorder()
	c := NewClient(Config{
		BaseURL:   wsURL(server),
		DriverID:  "driver-1",
		BaseDelay: time.Millisecond,
	}, events, testLogger(t))
	c.Connect()
	defer c.Close(driven.CloseNormalClosure, "test done")

	events.waitFor(t, connEdge{state: driven.Connected})
	events.waitFor(t, connEdge{state: driven.Disconnected, terminal: false})

	// A clean close is final: no reconnect attempt may follow.
	select {
	case edge := <-events.edges:
		t.Fatalf("unexpected edge after clean close: %+v", edge)
	case <-time.After(100 * time.Millisecond):
	}
	if c.State() != driven.Disconnected {
		t.Fatalf("state = %v, want Disconnected", c.State())
	}
}

func TestAbnormalCloseSchedulesReconnect(t *testing.T) {
	connections := make(chan struct{}, 8)
	server := dispatchStub(t, func(conn *websocket.Conn, r *http.Request) {
		connections <- struct{}{}
		// Drop the TCP connection without a close frame.
		conn.Close()
	})

	events := newRecorder()
	c := NewClient(Config{
		BaseURL:   wsURL(server),
		DriverID:  "driver-1",
		BaseDelay: time.Millisecond,
	}, events, testLogger(t))
	c.Connect()
	defer c.Close(driven.CloseNormalClosure, "test done")

	// First connection dropped abnormally, a second one must follow.
	events.waitFor(t, connEdge{state: driven.Connected})
	events.waitFor(t, connEdge{state: driven.Disconnected, terminal: false})
	events.waitFor(t, connEdge{state: driven.Connected})

	for i := 0; i < 2; i++ {
		select {
		case <-connections:
		case <-time.After(3 * time.Second):
			t.Fatal("expected a reconnect attempt")
		}
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	// A server that is already gone: every dial fails.
	server := httptest.NewServer(http.NotFoundHandler())
	base := wsURL(server)
	server.Close()

	events := newRecorder()
	c := NewClient(Config{
		BaseURL:     base,
		DriverID:    "driver-1",
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, events, testLogger(t))
	c.Connect()

	var nonTerminal int
	deadline := time.After(3 * time.Second)
	for {
		select {
		case edge := <-events.edges:
			if edge.state != driven.Disconnected {
				continue
			}
			if edge.terminal {
				if nonTerminal != 2 {
					t.Fatalf("non-terminal disconnects before giving up = %d, want 2", nonTerminal)
				}
				return
			}
			nonTerminal++
		case <-deadline:
			t.Fatal("timed out waiting for the terminal disconnect")
		}
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := wsURL(server)
	server.Close()

	events := newRecorder()
	c := NewClient(Config{
		BaseURL:   base,
		DriverID:  "driver-1",
		BaseDelay: time.Hour, // would wait forever if not canceled
	}, events, testLogger(t))
	c.Connect()
	events.waitFor(t, connEdge{state: driven.Disconnected, terminal: false})

	if err := c.Close(driven.CloseNormalClosure, "shutting down"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.State() != driven.Disconnected {
		t.Fatalf("state = %v, want Disconnected", c.State())
	}
}
