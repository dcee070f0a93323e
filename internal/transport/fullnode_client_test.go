package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startFakeFullNode(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conns := make(chan *websocket.Conn, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func wsURL(httpURL string) string {
	if len(httpURL) > 4 && httpURL[:4] == "http" {
		return "ws" + httpURL[4:]
	}
	return httpURL
}

func TestFullNodeClientBroadcastSendsToHealthyConn(t *testing.T) {
	srv, conns := startFakeFullNode(t)

	c := NewFullNodeClient([]string{wsURL(srv.URL)}, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}

	c.Broadcast("declare_proof_of_space", map[string]int{"x": 1})

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := serverConn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if frame.Type != "declare_proof_of_space" {
		t.Fatalf("Type = %q, want declare_proof_of_space", frame.Type)
	}

	if c.HealthyCount() != 1 {
		t.Fatalf("HealthyCount = %d, want 1 after a successful send", c.HealthyCount())
	}
}

func TestFullNodeClientDispatchesInboundPush(t *testing.T) {
	srv, conns := startFakeFullNode(t)

	received := make(chan Frame, 1)
	c := NewFullNodeClient([]string{wsURL(srv.URL)}, 3, func(f Frame) { received <- f })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}

	payload, _ := json.Marshal(map[string]int{"signage_point_index": 4})
	frame := Frame{Type: "new_signage_point", Payload: payload}
	data, _ := json.Marshal(frame)
	if err := serverConn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != "new_signage_point" {
			t.Fatalf("Type = %q, want new_signage_point", got.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler dispatch")
	}
}

func TestFullNodeClientMarksUnhealthyAfterMaxFailures(t *testing.T) {
	srv, conns := startFakeFullNode(t)

	c := NewFullNodeClient([]string{wsURL(srv.URL)}, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}
	serverConn.Close()

	// Give the read loop a moment to observe the closed connection and
	// record failures via the next couple of broadcast attempts.
	for i := 0; i < 3; i++ {
		c.Broadcast("declare_proof_of_space", map[string]int{})
		time.Sleep(50 * time.Millisecond)
	}

	if c.HealthyCount() != 0 {
		t.Fatalf("HealthyCount = %d, want 0 after exceeding max failures", c.HealthyCount())
	}
}

func TestFullNodeClientStatesReflectsConfiguredURLs(t *testing.T) {
	c := NewFullNodeClient([]string{"ws://127.0.0.1:1"}, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	states := c.States()
	if len(states) != 1 {
		t.Fatalf("States() returned %d entries, want 1", len(states))
	}
	if states[0].Healthy {
		t.Fatal("a dial to a closed port should not be healthy")
	}
}
