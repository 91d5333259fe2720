package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testRelay is a minimal in-process relay endpoint: it records received
// envelopes and can push events to the connected client.
type testRelay struct {
	upgrader websocket.Upgrader

	mu           sync.Mutex
	conn         *websocket.Conn
	paths        []string
	received     []envelope
	connected    chan struct{}
	disconnected chan struct{}
}

func newTestRelay() *testRelay {
	return &testRelay{
		connected:    make(chan struct{}, 8),
		disconnected: make(chan struct{}, 8),
	}
}

func (r *testRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer func() { r.disconnected <- struct{}{} }()

	r.mu.Lock()
	r.conn = conn
	r.paths = append(r.paths, req.URL.Path)
	r.mu.Unlock()
	r.connected <- struct{}{}

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		r.mu.Lock()
		r.received = append(r.received, env)
		r.mu.Unlock()
	}
}

func (r *testRelay) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal push payload: %v", err)
	}
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	if err := conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (r *testRelay) waitReceived(t *testing.T, n int) []envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.received) >= n {
			out := append([]envelope(nil), r.received...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("relay did not receive %d envelope(s) in time", n)
	return nil
}

func startRelay(t *testing.T) (*testRelay, *Dialer) {
	t.Helper()
	relay := newTestRelay()
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := NewDialer(wsURL)
	t.Cleanup(dialer.Close)
	return relay, dialer
}

func TestEmit_ReachesRelayWithEventName(t *testing.T) {
	relay, dialer := startRelay(t)

	ch, err := dialer.Channel("camera")
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	<-relay.connected

	ch.Emit("join-room", map[string]string{"room": "42"})

	received := relay.waitReceived(t, 1)
	if received[0].Event != "join-room" {
		t.Errorf("event = %q, want join-room", received[0].Event)
	}
	var payload map[string]string
	if err := json.Unmarshal(received[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["room"] != "42" {
		t.Errorf("payload room = %q, want 42", payload["room"])
	}
}

func TestOn_DeliversInSubscriptionOrder(t *testing.T) {
	relay, dialer := startRelay(t)

	ch, err := dialer.Channel("camera")
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	<-relay.connected

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	ch.On("answer-made", func(data []byte) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	ch.On("answer-made", func(data []byte) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		close(done)
	})

	relay.push(t, "answer-made", map[string]string{"socket": "x"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers not invoked in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("delivery order = %v, want [1 2]", order)
	}
}

func TestOff_Unsubscribes(t *testing.T) {
	relay, dialer := startRelay(t)

	ch, err := dialer.Channel("camera")
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	<-relay.connected

	var mu sync.Mutex
	removedFired := 0
	off := ch.On("call-made", func(data []byte) {
		mu.Lock()
		removedFired++
		mu.Unlock()
	})
	kept := make(chan struct{})
	ch.On("call-made", func(data []byte) {
		select {
		case kept <- struct{}{}:
		default:
		}
	})

	off()
	relay.push(t, "call-made", map[string]string{"socket": "x"})

	select {
	case <-kept:
	case <-time.After(2 * time.Second):
		t.Fatal("remaining handler not invoked in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if removedFired != 0 {
		t.Errorf("unsubscribed handler fired %d times, want 0", removedFired)
	}
}

func TestDialer_ChannelIsIdempotentPerNamespace(t *testing.T) {
	relay, dialer := startRelay(t)
	_ = relay

	camera1, err := dialer.Channel("camera")
	if err != nil {
		t.Fatalf("Channel(camera): %v", err)
	}
	camera2, err := dialer.Channel("camera")
	if err != nil {
		t.Fatalf("Channel(camera) again: %v", err)
	}
	desktop, err := dialer.Channel("desktop")
	if err != nil {
		t.Fatalf("Channel(desktop): %v", err)
	}

	if camera1 != camera2 {
		t.Error("repeated Channel(camera) returned a different channel")
	}
	if camera1 == desktop {
		t.Error("camera and desktop share one channel")
	}
	if desktop.Namespace() != "desktop" {
		t.Errorf("namespace = %q, want desktop", desktop.Namespace())
	}
}

func TestClose_TearsDownConnectionPromptly(t *testing.T) {
	relay, dialer := startRelay(t)

	ch, err := dialer.Channel("camera")
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	<-relay.connected

	ch.Close()

	// The relay must see the disconnect well before any read deadline.
	select {
	case <-relay.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("relay still holds the connection after Close")
	}
}

func TestChannel_NamespaceInDialPath(t *testing.T) {
	relay, dialer := startRelay(t)

	if _, err := dialer.Channel("desktop"); err != nil {
		t.Fatalf("Channel: %v", err)
	}
	<-relay.connected

	relay.mu.Lock()
	defer relay.mu.Unlock()
	if len(relay.paths) == 0 || relay.paths[0] != "/desktop" {
		t.Errorf("dial path = %v, want [/desktop]", relay.paths)
	}
}
