package domain

// Role distinguishes the two kinds of exam participants. An invigilator only
// receives media; a participant transmits it.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleInvigilator Role = "invigilator"
)

// RoomMember is one entry of a room's membership set as reported by the relay.
type RoomMember struct {
	ConnectionID string `json:"connectionId"`
	Identity     string `json:"identity"`
	Role         Role   `json:"role"`
}

// RoomTicket holds everything the agent needs to join a proctoring room,
// returned by the exam API: the room token (derived from the exam id), the
// local identity and role, the relay endpoint, and ICE configuration.
type RoomTicket struct {
	Room       string      `json:"room"`
	Identity   string      `json:"identity"`
	Role       Role        `json:"role"`
	RelayURL   string      `json:"relayUrl"`
	ICEServers []ICEServer `json:"iceServers"`
}

// ICEServer holds STUN/TURN server configuration.
type ICEServer struct {
	URL        string `json:"url"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}
