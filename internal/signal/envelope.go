// Package signal implements the client side of the signaling relay: the wire
// envelope exchanged between peers and a persistent, auto-reconnecting
// WebSocket channel that delivers it. The package knows nothing about call
// semantics; it moves envelopes and reports connection lifecycle.
package signal

// Type identifies the kind of signaling envelope.
type Type string

const (
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"
	TypeJoin      Type = "join"
	TypeJoined    Type = "joined"
	TypeLeave     Type = "leave"
	TypePeerJoin  Type = "peer-joined"
	TypePeerLeave Type = "peer-left"
	TypeError     Type = "error"
)

// Envelope is the JSON wire unit exchanged with the relay. Fields are a
// union over all envelope types; unused ones are omitted. Unknown types are
// delivered as-is and ignored by consumers, never treated as fatal.
type Envelope struct {
	Type   Type   `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`

	// offer / answer
	SDP string `json:"sdp,omitempty"`

	// candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`

	// join request metadata
	InterviewID string `json:"interviewId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	// joined ack / error
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// IsNegotiation reports whether the envelope carries SDP/ICE material for
// the peer negotiation engine.
func (e Envelope) IsNegotiation() bool {
	switch e.Type {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	default:
		return false
	}
}
