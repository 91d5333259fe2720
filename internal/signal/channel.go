package signal

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lenconda/exampro-agent/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	redialMin = time.Second
	redialMax = 30 * time.Second

	sendBuffer = 64
)

// envelope is the generic wire frame: a named event plus its JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type subscriber struct {
	event string
	fn    domain.EventHandler
}

// Channel is a persistent named-event channel to the signaling relay, bound
// to one namespace. It redials transparently with backoff when the WebSocket
// drops; sends are best effort and may be lost while the transport is down.
// Channel implements domain.Channel.
type Channel struct {
	url       string
	namespace string

	mu   sync.Mutex
	subs map[string][]*subscriber
	conn *websocket.Conn

	outgoing chan envelope
	done     chan struct{}
	once     sync.Once
}

func newChannel(url, namespace string) *Channel {
	c := &Channel{
		url:       url,
		namespace: namespace,
		subs:      make(map[string][]*subscriber),
		outgoing:  make(chan envelope, sendBuffer),
		done:      make(chan struct{}),
	}
	go c.run()
	return c
}

// Namespace reports the logical namespace this channel is bound to.
func (c *Channel) Namespace() string {
	return c.namespace
}

// Emit sends a named event, fire-and-forget. A full send queue or a downed
// transport drops the event silently; callers re-drive by user action.
func (c *Channel) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[signal] %s: marshal %q: %v", c.namespace, event, err)
		return
	}
	select {
	case c.outgoing <- envelope{Event: event, Data: data}:
	default:
		log.Printf("[signal] %s: send queue full, dropping %q", c.namespace, event)
	}
}

// On subscribes a handler to a named event and returns its unsubscribe.
// Handlers for one event name run in subscription order.
func (c *Channel) On(event string, fn domain.EventHandler) func() {
	s := &subscriber{event: event, fn: fn}
	c.mu.Lock()
	c.subs[event] = append(c.subs[event], s)
	c.mu.Unlock()
	return func() { c.off(s) }
}

func (c *Channel) off(s *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[s.event]
	for i, cur := range list {
		if cur == s {
			c.subs[s.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Close shuts the channel down permanently, tearing down the live connection
// so an idle read loop does not linger until its deadline. Closed channels
// never redial.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
}

// run dials the relay and keeps the connection alive for the life of the
// channel, redialing with exponential backoff after transport failures.
func (c *Channel) run() {
	backoff := redialMin
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			log.Printf("[signal] %s: dial %s: %v (retrying in %s)", c.namespace, c.url, err, backoff)
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > redialMax {
				backoff = redialMax
			}
			continue
		}

		log.Printf("[signal] %s: connected to %s", c.namespace, c.url)
		backoff = redialMin

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		// Close may have raced the dial; it only closes the stored conn.
		select {
		case <-c.done:
			conn.Close()
			return
		default:
		}

		c.serve(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}
}

// serve runs the read loop on one live connection, with a write pump on the
// side. Returns when the connection dies or the channel is closed.
func (c *Channel) serve(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stop := make(chan struct{})
	go c.writePump(conn, stop)
	defer func() {
		close(stop)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("[signal] %s: read: %v", c.namespace, err)
			}
			return
		}
		c.dispatch(data)
	}
}

// writePump drains outgoing envelopes and sends periodic pings.
func (c *Channel) writePump(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("[signal] %s: write %q: %v", c.namespace, env.Event, err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-stop:
			return
		}
	}
}

func (c *Channel) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[signal] %s: unmarshal: %v", c.namespace, err)
		return
	}

	c.mu.Lock()
	list := append([]*subscriber(nil), c.subs[env.Event]...)
	c.mu.Unlock()

	for _, s := range list {
		s.fn(env.Data)
	}
}
