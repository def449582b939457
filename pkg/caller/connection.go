package caller

import (
	"errors"

	"github.com/goccy/go-json"
)

// SDP is an opaque session description blob, offer or answer.
type SDP = json.RawMessage

const (
	AudioKind = "audio"
	VideoKind = "video"
)

var (
	// ErrMediaAcquisition aborts a call attempt before anything is sent.
	ErrMediaAcquisition = errors.New("media acquisition failed")
	// ErrNotJoined means the caller has no relay-assigned id yet.
	ErrNotJoined = errors.New("not joined to a room")
)

// Connection is the peer-to-peer media connection primitive the
// orchestrator drives. One instance per negotiation session.
type Connection interface {
	// Offer produces a local session offer.
	Offer() (SDP, error)
	// Answer applies a remote offer and produces the answer to it.
	Answer(offer SDP) (SDP, error)
	// Accept applies a remote answer to a previously sent offer.
	Accept(answer SDP) error
	// AttachTracks plugs the local media tracks in. The connection is
	// expected to ask for renegotiation afterwards.
	AttachTracks(src MediaSource) error
	// SetEnabled toggles the local tracks of the given kind in place,
	// without adding or removing anything.
	SetEnabled(kind string, enabled bool)
	OnNegotiationNeeded(fn func())
	OnRemoteTrack(fn func(t RemoteTrack))
	Close() error
}

// RemoteTrack describes media delivered by the other peer.
type RemoteTrack struct {
	Id   string
	Kind string
}

type (
	// ConnectionFactory builds a connection object for a remote endpoint.
	ConnectionFactory func(remote string) (Connection, error)
	// MediaFactory acquires the local capture; it may fail with no
	// device or no permission.
	MediaFactory func() (MediaSource, error)
)
