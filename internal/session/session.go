// Package session implements the peer connection session: one real-time
// media connection plus the signaling exchange needed to establish,
// maintain, and tear it down.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/lenconda/exampro-agent/internal/domain"
)

// State is the signaling-level lifecycle state of a session.
type State string

const (
	StateIdle            State = "idle"
	StateLocalMediaReady State = "local-media-ready"
	StateOfferSent       State = "offer-sent"
	StateAnswerSent      State = "answer-sent"
	StateConnected       State = "connected"
	StateDisconnected    State = "disconnected"
	StateFailed          State = "failed"
)

var (
	// ErrNoRoom is returned when a room-scoped subscription is requested
	// before JoinRoom has set the room token.
	ErrNoRoom = errors.New("session: no room joined")

	// ErrBusy is returned when CallUser is invoked while the session is
	// already engaged with a remote peer. Re-calling while still waiting in
	// offer-sent is permitted (that is the manual re-drive path); calling a
	// second peer from an established session is not.
	ErrBusy = errors.New("session: already engaged with a peer")

	// ErrSenderExists is returned when a second track of an already
	// registered kind is attached. Track replacement goes through the
	// sender, never through a second AddTrack.
	ErrSenderExists = errors.New("session: sender already registered for track kind")
)

// Config carries the collaborators and identity of one session. The channel
// is shared (injected); the peer is exclusively owned by the session.
type Config struct {
	Channel  domain.Channel
	Peer     domain.Peer
	Identity string
	Role     domain.Role

	// ConfirmIncoming, when set, is consulted before answering a second
	// inbound call (glare). Returning false rejects the call. When nil,
	// every inbound call is accepted.
	ConfirmIncoming func(from string) bool
}

// Session drives the offer/answer exchange for one media channel. All
// exported methods are safe for concurrent use; lifecycle callbacks run on
// the channel's delivery goroutine without the session lock held.
type Session struct {
	channel domain.Channel
	peer    domain.Peer

	identity string
	role     domain.Role
	confirm  func(from string) bool

	mu             sync.Mutex
	state          State
	room           string
	alreadyCalling bool
	getCalled      bool
	senders        map[string]domain.Sender

	established  []func(peerID string)
	connected    []func()
	disconnected []func()
	failed       []func()
	rejected     []func(socket string)

	offs []func()
}

// New wires a session to its channel and peer and subscribes the inbound
// call handlers. The session starts in the idle state.
func New(cfg Config) *Session {
	s := &Session{
		channel:  cfg.Channel,
		peer:     cfg.Peer,
		identity: cfg.Identity,
		role:     cfg.Role,
		confirm:  cfg.ConfirmIncoming,
		state:    StateIdle,
		senders:  make(map[string]domain.Sender),
	}

	s.offs = append(s.offs,
		cfg.Channel.On(domain.EventCallMade, s.handleCallMade),
		cfg.Channel.On(domain.EventAnswerMade, s.handleAnswerMade),
		cfg.Channel.On(domain.EventCallRejected, s.handleCallRejected),
	)
	cfg.Peer.OnConnectionStateChange(s.dispatchConnectionState)

	return s
}

// State reports the current signaling-level state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role reports the local role the session was created with.
func (s *Session) Role() domain.Role {
	return s.role
}

// AddTrack attaches one outbound track and registers its sender. At most one
// sender per track kind is permitted per session.
func (s *Session) AddTrack(track pion.TrackLocal) (domain.Sender, error) {
	kind := track.Kind().String()

	s.mu.Lock()
	if _, ok := s.senders[kind]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSenderExists, kind)
	}
	s.mu.Unlock()

	sender, err := s.peer.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add %s track: %w", kind, err)
	}

	s.mu.Lock()
	s.senders[kind] = sender
	if s.state == StateIdle {
		s.state = StateLocalMediaReady
	}
	s.mu.Unlock()

	return sender, nil
}

// Sender returns the registered sender for a track kind ("audio" or
// "video"), if any.
func (s *Session) Sender(kind string) (domain.Sender, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sender, ok := s.senders[kind]
	return sender, ok
}

// JoinRoom stores the room token and announces this connection to the relay.
// No confirmation is awaited; membership updates arrive later through the
// room-scoped subscriptions.
func (s *Session) JoinRoom(room string) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()

	s.channel.Emit(domain.EventJoinRoom, domain.JoinRoomPayload{
		Room:     room,
		Identity: s.identity,
		Role:     s.role,
	})
	log.Printf("[session] %s: joined room %q as %s", s.channel.Namespace(), room, s.role)
}

// CallUser initiates the outbound offer exchange with the given remote
// connection id. This is the only path into offer-sent; it is never
// automatic. Re-calling while a previous offer is still unanswered is the
// documented re-drive mechanism; calling from an established session fails
// with ErrBusy.
func (s *Session) CallUser(target string) error {
	s.mu.Lock()
	if s.alreadyCalling {
		s.mu.Unlock()
		return ErrBusy
	}
	s.mu.Unlock()

	offer, err := s.peer.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	s.channel.Emit(domain.EventCallUser, domain.CallUserPayload{
		Offer: offer,
		To:    target,
	})

	s.mu.Lock()
	s.state = StateOfferSent
	s.mu.Unlock()

	log.Printf("[session] %s: offer sent to %s", s.channel.Namespace(), target)
	return nil
}

// OnCallEstablished registers a callback fired exactly once when the first
// answer is applied, regardless of how many times the relay redelivers it.
func (s *Session) OnCallEstablished(fn func(peerID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.established = append(s.established, fn)
}

// OnConnected registers a callback for the connection-level connected state.
func (s *Session) OnConnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = append(s.connected, fn)
}

// OnDisconnected registers a callback for the disconnected state. The owner
// conventionally clears any attached inbound rendering here.
func (s *Session) OnDisconnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = append(s.disconnected, fn)
}

// OnFailed registers a callback for the failed/closed state. There is no
// automatic recovery; the owner must recreate the session.
func (s *Session) OnFailed(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, fn)
}

// OnCallRejected registers a callback surfaced when a callee declines.
func (s *Session) OnCallRejected(fn func(socket string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = append(s.rejected, fn)
}

// OnTrack registers the inbound media track handler.
func (s *Session) OnTrack(fn func(track *pion.TrackRemote)) {
	s.peer.OnTrack(fn)
}

// OnUpdateUserList subscribes to the room-scoped membership snapshot event.
// Valid only after JoinRoom has set the room token.
func (s *Session) OnUpdateUserList(fn func(users []domain.RoomMember)) error {
	room, err := s.roomToken()
	if err != nil {
		return err
	}

	off := s.channel.On(domain.RoomEvent(room, domain.EventSuffixUpdateUserList), func(data []byte) {
		var payload domain.UpdateUserListPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("[session] %s: unmarshal update-user-list: %v", s.channel.Namespace(), err)
			return
		}
		fn(payload.Users)
	})

	s.mu.Lock()
	s.offs = append(s.offs, off)
	s.mu.Unlock()
	return nil
}

// OnRemoveUser subscribes to the room-scoped member removal event. Valid
// only after JoinRoom has set the room token.
func (s *Session) OnRemoveUser(fn func(connectionID string)) error {
	room, err := s.roomToken()
	if err != nil {
		return err
	}

	off := s.channel.On(domain.RoomEvent(room, domain.EventSuffixRemoveUser), func(data []byte) {
		var payload domain.RemoveUserPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("[session] %s: unmarshal remove-user: %v", s.channel.Namespace(), err)
			return
		}
		fn(payload.SocketID)
	})

	s.mu.Lock()
	s.offs = append(s.offs, off)
	s.mu.Unlock()
	return nil
}

// Close unsubscribes the session from its channel and closes the owned peer
// connection. The shared channel stays open for other sessions.
func (s *Session) Close() {
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()

	for _, off := range offs {
		off()
	}
	if err := s.peer.Close(); err != nil {
		log.Printf("[session] %s: close peer: %v", s.channel.Namespace(), err)
	}
}

func (s *Session) roomToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == "" {
		return "", ErrNoRoom
	}
	return s.room, nil
}

// handleAnswerMade applies the remote answer. Redeliveries still apply the
// description to keep the underlying connection's internal state consistent,
// but fire the call-established callbacks only once. A failed apply does not
// latch the guard, so a later redelivery can still establish the call.
func (s *Session) handleAnswerMade(data []byte) {
	var payload domain.AnswerMadePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[session] %s: unmarshal answer-made: %v", s.channel.Namespace(), err)
		return
	}

	if err := s.peer.SetRemoteDescription(payload.Answer); err != nil {
		log.Printf("[session] %s: set remote answer: %v", s.channel.Namespace(), err)
		return
	}

	s.mu.Lock()
	if s.alreadyCalling {
		s.mu.Unlock()
		return
	}
	s.alreadyCalling = true
	s.state = StateConnected
	callbacks := append([]func(string){}, s.established...)
	s.mu.Unlock()

	log.Printf("[session] %s: call established with %s", s.channel.Namespace(), payload.Socket)
	for _, fn := range callbacks {
		fn(payload.Socket)
	}
}

// handleCallMade answers an inbound offer. On glare (a second inbound call
// after one was already answered) the configured confirmation hook decides;
// rejection emits reject-call and leaves the established connection alone.
func (s *Session) handleCallMade(data []byte) {
	var payload domain.CallMadePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[session] %s: unmarshal call-made: %v", s.channel.Namespace(), err)
		return
	}

	s.mu.Lock()
	glare := s.getCalled
	s.mu.Unlock()

	if glare && s.confirm != nil && !s.confirm(payload.Socket) {
		log.Printf("[session] %s: rejecting call from %s", s.channel.Namespace(), payload.Socket)
		s.channel.Emit(domain.EventRejectCall, domain.RejectCallPayload{From: payload.Socket})
		return
	}

	if err := s.peer.SetRemoteDescription(payload.Offer); err != nil {
		log.Printf("[session] %s: set remote offer: %v", s.channel.Namespace(), err)
		return
	}

	answer, err := s.peer.CreateAnswer()
	if err != nil {
		log.Printf("[session] %s: create answer: %v", s.channel.Namespace(), err)
		return
	}

	s.channel.Emit(domain.EventMakeAnswer, domain.MakeAnswerPayload{
		Answer: answer,
		To:     payload.Socket,
	})

	s.mu.Lock()
	s.getCalled = true
	s.state = StateAnswerSent
	s.mu.Unlock()

	log.Printf("[session] %s: answered call from %s", s.channel.Namespace(), payload.Socket)
}

func (s *Session) handleCallRejected(data []byte) {
	var payload domain.CallRejectedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[session] %s: unmarshal call-rejected: %v", s.channel.Namespace(), err)
		return
	}

	s.mu.Lock()
	callbacks := append([]func(string){}, s.rejected...)
	s.mu.Unlock()

	log.Printf("[session] %s: call rejected by %s", s.channel.Namespace(), payload.Socket)
	for _, fn := range callbacks {
		fn(payload.Socket)
	}
}
