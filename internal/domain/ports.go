package domain

import (
	pion "github.com/pion/webrtc/v4"
)

// TicketFetcher retrieves the room ticket from the exam API.
type TicketFetcher interface {
	FetchRoomTicket(examID string) (*RoomTicket, error)
}

// EventHandler receives the raw JSON payload of one relay event.
type EventHandler func(data []byte)

// Channel delivers named events to and from the signaling relay, scoped to a
// namespace. Sends are fire-and-forget: delivery loss is silent and never
// compensated at this layer. Multiple handlers per event name are permitted;
// delivery order for one event name follows subscription order.
type Channel interface {
	// Namespace reports the logical namespace this channel is bound to.
	Namespace() string
	// Emit sends a named event with a JSON-encodable payload, best effort.
	Emit(event string, payload any)
	// On subscribes a handler and returns the corresponding unsubscribe.
	On(event string, fn EventHandler) (off func())
}

// Sender transmits one outbound track and supports swapping the track
// without renegotiation. Satisfied by *webrtc.RTPSender.
type Sender interface {
	ReplaceTrack(track pion.TrackLocal) error
}

// Peer manages the underlying real-time media connection. Description
// primitives pair creation with setting the local description, so the
// local-description-before-emit ordering holds by construction.
type Peer interface {
	AddTrack(track pion.TrackLocal) (Sender, error)
	CreateOffer() (Description, error)
	CreateAnswer() (Description, error)
	SetRemoteDescription(desc Description) error
	// OnConnectionStateChange registers the raw connection state observer.
	// State names are the lowercase strings of the underlying connection.
	OnConnectionStateChange(fn func(state string))
	// OnTrack registers the inbound media track observer.
	OnTrack(fn func(track *pion.TrackRemote))
	Close() error
}
