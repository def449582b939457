package api

import "github.com/goccy/go-json"

// RoomJoinRequest is sent by a client right after it connects.
type RoomJoinRequest struct {
	User string `json:"user"`
	Room string `json:"room"`
}

// RoomJoinedReply confirms the join and carries the id the relay
// assigned to this connection.
type RoomJoinedReply struct {
	Room string `json:"room"`
	Id   string `json:"id"`
}

// UserJoinedNotice is broadcast to the other members of a room.
type UserJoinedNotice struct {
	User string `json:"user"`
	Id   string `json:"id"`
}

// UserLeftNotice is broadcast to the remaining members when a
// connection goes away.
type UserLeftNotice struct {
	Id string `json:"id"`
}

// Signal is the payload of every directed packet (UserCall, IncomingCall,
// CallAccepted, NegoNeeded, NegoDone, NegoFinal). To addresses the packet
// on the way to the relay; the relay replaces it with From on the way out.
// Offer and Ans carry a session description the relay never looks into.
type Signal struct {
	To    string          `json:"to,omitempty"`
	From  string          `json:"from,omitempty"`
	Offer json.RawMessage `json:"offer,omitempty"`
	Ans   json.RawMessage `json:"ans,omitempty"`
}

// ErrorReply is sent back to the offending client only, never broadcast.
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrInvalidRoom = "invalid_room"
	ErrMalformed   = "malformed"
)
