// Package api defines the packets of the signaling protocol.
//
// Each packet is a JSON-encoded envelope of the following structure:
//
//	id - (optional) a packet id for tracing;
//	 t - (required) one of the predefined unique packet types;
//	 p - (optional) packet payload with arbitrary data.
//
// The payload is decoded in two passes: the envelope keeps it as raw bytes
// and each handler unwraps just the payloads of the types it cares about.
// Session descriptions inside payloads are opaque to everything but the
// two peers that exchange them.
package api

import (
	"github.com/goccy/go-json"
)

type PT uint8

// Packet codes.
const (
	RoomJoin     PT = 1
	RoomJoined   PT = 2
	UserJoined   PT = 3
	UserLeft     PT = 4
	UserCall     PT = 5
	IncomingCall PT = 6
	CallAccepted PT = 7
	NegoNeeded   PT = 8
	NegoDone     PT = 9
	NegoFinal    PT = 10
	Error        PT = 11
)

func (p PT) String() string {
	switch p {
	case RoomJoin:
		return "RoomJoin"
	case RoomJoined:
		return "RoomJoined"
	case UserJoined:
		return "UserJoined"
	case UserLeft:
		return "UserLeft"
	case UserCall:
		return "UserCall"
	case IncomingCall:
		return "IncomingCall"
	case CallAccepted:
		return "CallAccepted"
	case NegoNeeded:
		return "NegoNeeded"
	case NegoDone:
		return "NegoDone"
	case NegoFinal:
		return "NegoFinal"
	case Error:
		return "Error"
	}
	return "Unknown"
}

type In struct {
	Id      string          `json:"id,omitempty"`
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"`
}

type Out struct {
	Id      string `json:"id,omitempty"`
	T       PT     `json:"t"`
	Payload any    `json:"p,omitempty"`
}

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
