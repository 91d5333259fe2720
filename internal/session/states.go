package session

import "log"

// lifecycleEvent names the handler slot a raw connection state maps to.
type lifecycleEvent int

const (
	lifecycleConnected lifecycleEvent = iota
	lifecycleDisconnected
	lifecycleFailed
)

// connectionStateEvents is the finite mapping from the underlying
// connection's raw state names to handler slots. Unknown state names invoke
// no callback: tolerance of future states, not an error.
var connectionStateEvents = map[string]lifecycleEvent{
	"connected":    lifecycleConnected,
	"disconnected": lifecycleDisconnected,
	"failed":       lifecycleFailed,
	"closed":       lifecycleFailed,
}

// dispatchConnectionState routes a raw connection state change to the
// registered lifecycle callbacks.
func (s *Session) dispatchConnectionState(state string) {
	event, ok := connectionStateEvents[state]
	if !ok {
		return
	}

	s.mu.Lock()
	var callbacks []func()
	switch event {
	case lifecycleConnected:
		s.state = StateConnected
		callbacks = append(callbacks, s.connected...)
	case lifecycleDisconnected:
		s.state = StateDisconnected
		callbacks = append(callbacks, s.disconnected...)
	case lifecycleFailed:
		s.state = StateFailed
		callbacks = append(callbacks, s.failed...)
	}
	s.mu.Unlock()

	log.Printf("[session] %s: connection state %s", s.channel.Namespace(), state)
	for _, fn := range callbacks {
		fn()
	}
}
