package domain

import "fmt"

// Event names on the proctoring relay. The relay is a fixed external
// collaborator, so these strings are part of the wire contract.
const (
	EventJoinRoom     = "join-room"
	EventCallUser     = "call-user"
	EventMakeAnswer   = "make-answer"
	EventRejectCall   = "reject-call"
	EventCallMade     = "call-made"
	EventAnswerMade   = "answer-made"
	EventCallRejected = "call-rejected"
)

// Room-scoped event name suffixes. The relay bakes the room token into the
// event name for membership updates.
const (
	EventSuffixUpdateUserList = "update-user-list"
	EventSuffixRemoveUser     = "remove-user"
)

// RoomEvent builds a room-scoped event name, e.g. "42-update-user-list".
func RoomEvent(room, suffix string) string {
	return fmt.Sprintf("%s-%s", room, suffix)
}

// Description is the JSON structure for SDP offer/answer descriptions.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// JoinRoomPayload announces this connection to a room.
type JoinRoomPayload struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
}

// CallUserPayload carries an offer to the connection id To.
type CallUserPayload struct {
	Offer Description `json:"offer"`
	To    string      `json:"to"`
}

// MakeAnswerPayload carries an answer back to the offerer.
type MakeAnswerPayload struct {
	Answer Description `json:"answer"`
	To     string      `json:"to"`
}

// RejectCallPayload declines an inbound call during glare.
type RejectCallPayload struct {
	From string `json:"from"`
}

// CallMadePayload is the relay-side delivery of a remote offer.
type CallMadePayload struct {
	Offer  Description `json:"offer"`
	Socket string      `json:"socket"`
}

// AnswerMadePayload is the relay-side delivery of a remote answer.
type AnswerMadePayload struct {
	Answer Description `json:"answer"`
	Socket string      `json:"socket"`
}

// CallRejectedPayload reports that the callee declined an inbound call.
type CallRejectedPayload struct {
	Socket string `json:"socket"`
}

// UpdateUserListPayload is the room membership snapshot pushed by the relay.
type UpdateUserListPayload struct {
	Users []RoomMember `json:"users"`
}

// RemoveUserPayload reports that a connection left the room.
type RemoveUserPayload struct {
	SocketID string `json:"socketId"`
}
