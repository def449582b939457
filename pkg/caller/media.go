package caller

import "sync/atomic"

// MediaSource is the local capture capability: a fixed set of tracks
// that live until the source is closed.
type MediaSource interface {
	Tracks() []*Track
	Close()
}

// Track is one local media track. Enablement is flipped in place;
// a disabled track stays attached and never renegotiates.
type Track struct {
	id      string
	kind    string
	enabled atomic.Bool
}

func NewTrack(kind, id string) *Track {
	t := &Track{id: id, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *Track) Id() string         { return t.id }
func (t *Track) Kind() string       { return t.kind }
func (t *Track) Enabled() bool      { return t.enabled.Load() }
func (t *Track) SetEnabled(on bool) { t.enabled.Store(on) }

// StaticSource is a plain in-memory media source with one audio and
// one video track, the headless stand-in for camera and microphone.
type StaticSource struct {
	tracks []*Track
	closed atomic.Bool
}

func NewStaticSource() *StaticSource {
	return &StaticSource{tracks: []*Track{NewTrack(AudioKind, "audio0"), NewTrack(VideoKind, "video0")}}
}

func (s *StaticSource) Tracks() []*Track { return s.tracks }
func (s *StaticSource) Closed() bool     { return s.closed.Load() }

func (s *StaticSource) Close() {
	s.closed.Store(true)
	for _, t := range s.tracks {
		t.SetEnabled(false)
	}
}
