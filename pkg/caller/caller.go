// Package caller is the client side of the signaling protocol: it
// reacts to user actions and relayed packets by driving one connection
// object per remote peer through the negotiation state machine.
package caller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/geetika1312/VC/pkg/api"
	"github.com/geetika1312/VC/pkg/com"
	"github.com/geetika1312/VC/pkg/logger"
	"github.com/geetika1312/VC/pkg/session"
)

// signaler is the outbound half of the relay link.
type signaler interface {
	Send(t api.PT, payload any) error
}

// Caller orchestrates the sessions of one client.
//
// Packets arrive on the connection's reader goroutine; per-peer work is
// dispatched onto that peer's session queue, so acquiring media or
// producing descriptions for one peer never blocks the handling of
// packets for another.
type Caller struct {
	log  *logger.Logger
	conn signaler

	newConnection ConnectionFactory
	newMedia      MediaFactory

	mu     sync.Mutex
	id     string
	room   string
	user   string
	active string // the most recently joined remote peer

	sessions com.Map[string, *callSession]

	// UI-facing callbacks; all optional.
	OnRoomJoined  func(room, id string)
	OnPeerJoined  func(id, user string)
	OnPeerLeft    func(id string)
	OnRemoteTrack func(remote string, t RemoteTrack)
	OnConnected   func(remote string)
}

// callSession pairs the state machine with the connection object of
// one remote peer. All negotiation work happens on the session's own
// queue; teardown bypasses it.
type callSession struct {
	remote string
	sm     *session.Session
	conn   Connection
	log    *logger.Logger

	mu      sync.Mutex
	media   MediaSource
	queue   chan func()
	qclosed bool
}

const sessionQueueSize = 32

func New(conn signaler, newConnection ConnectionFactory, newMedia MediaFactory, log *logger.Logger) *Caller {
	return &Caller{
		log:           log,
		conn:          conn,
		newConnection: newConnection,
		newMedia:      newMedia,
		sessions:      com.NewMap[string, *callSession](),
	}
}

// Join asks the relay for a room. The assigned endpoint id comes back
// in a RoomJoined packet.
func (c *Caller) Join(user, room string) error {
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
	return c.conn.Send(api.RoomJoin, api.RoomJoinRequest{User: user, Room: room})
}

func (c *Caller) Id() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// ActivePeer returns the remote endpoint of the latest UserJoined.
func (c *Caller) ActivePeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Handle is the entry point for every packet the relay delivers.
func (c *Caller) Handle(in api.In) {
	switch in.T {
	case api.RoomJoined:
		if p := api.Unwrap[api.RoomJoinedReply](in.Payload); p != nil {
			c.mu.Lock()
			c.id, c.room = p.Id, p.Room
			c.mu.Unlock()
			c.log.Info().Str("room", p.Room).Str("id", p.Id).Msg("Joined")
			if c.OnRoomJoined != nil {
				c.OnRoomJoined(p.Room, p.Id)
			}
		}
	case api.UserJoined:
		if p := api.Unwrap[api.UserJoinedNotice](in.Payload); p != nil {
			c.mu.Lock()
			c.active = p.Id
			c.mu.Unlock()
			c.log.Info().Str("user", p.User).Str("id", p.Id).Msg("Peer joined")
			if c.OnPeerJoined != nil {
				c.OnPeerJoined(p.Id, p.User)
			}
		}
	case api.UserLeft:
		if p := api.Unwrap[api.UserLeftNotice](in.Payload); p != nil {
			c.mu.Lock()
			if c.active == p.Id {
				c.active = ""
			}
			c.mu.Unlock()
			c.EndCall(p.Id)
			if c.OnPeerLeft != nil {
				c.OnPeerLeft(p.Id)
			}
		}
	case api.IncomingCall:
		if p := api.Unwrap[api.Signal](in.Payload); p != nil && p.From != "" {
			c.handleIncomingCall(*p)
		}
	case api.CallAccepted:
		c.dispatchSignal(in, c.handleCallAccepted)
	case api.NegoNeeded:
		c.dispatchSignal(in, c.handleNegoNeeded)
	case api.NegoFinal:
		c.dispatchSignal(in, c.handleNegoFinal)
	case api.Error:
		if p := api.Unwrap[api.ErrorReply](in.Payload); p != nil {
			c.log.Error().Str("code", p.Code).Msg(p.Message)
		}
	default:
		c.log.Debug().Msgf("unexpected packet %v", in.T)
	}
}

// Call starts a call to the remote peer: acquire media, produce an
// offer, send it. Local tracks are not attached until the answer
// arrives, so the initial handshake never renegotiates.
func (c *Caller) Call(remote string) error {
	media, err := c.newMedia()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}
	s, err := c.ensureSession(remote)
	if err != nil {
		media.Close()
		return err
	}
	errc := make(chan error, 1)
	ok := s.dispatch(func() {
		errc <- func() error {
			// an incoming call may have raced us and acquired media first
			if s.getMedia() == nil {
				s.setMedia(media)
			} else {
				media.Close()
			}
			if err := s.sm.SendOffer(); err != nil {
				return err
			}
			offer, err := s.conn.Offer()
			if err != nil {
				return err
			}
			return c.conn.Send(api.UserCall, api.Signal{To: remote, Offer: offer})
		}()
	})
	if !ok {
		media.Close()
		return session.ErrClosed
	}
	return <-errc
}

// EndCall tears the session down right away. Late packets referencing
// it are dropped, never resurrected. The connection is closed directly,
// not through the queue, so a session stuck mid-negotiation cannot
// delay its own teardown.
func (c *Caller) EndCall(remote string) {
	s, ok := c.sessions.Pop(remote)
	if !ok {
		return
	}
	s.sm.Close()
	s.stop()
	if m := s.getMedia(); m != nil {
		m.Close()
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug().Err(err).Msg("connection close")
	}
	s.log.Info().Msg("Call ended")
}

// SetEnabled toggles mute for the local tracks of a kind. The flag is
// flipped in place: nothing is added or removed, so no renegotiation.
func (c *Caller) SetEnabled(remote, kind string, enabled bool) {
	if s, err := c.sessions.Find(remote); err == nil {
		s.conn.SetEnabled(kind, enabled)
	}
}

// Close ends every call.
func (c *Caller) Close() {
	var remotes []string
	c.sessions.ForEach(func(s *callSession) { remotes = append(remotes, s.remote) })
	for _, r := range remotes {
		c.EndCall(r)
	}
}

func (c *Caller) handleIncomingCall(sig api.Signal) {
	s, err := c.ensureSession(sig.From)
	if err != nil {
		c.log.Error().Err(err).Msg("incoming call")
		return
	}
	s.dispatch(func() {
		if s.getMedia() == nil {
			media, err := c.newMedia()
			if err != nil {
				s.log.Error().Err(err).Msg("media acquisition failed, call not answered")
				return
			}
			s.setMedia(media)
		}
		if err := s.sm.ReceiveOffer(); err != nil {
			s.drop("incoming call", err)
			return
		}
		ans, err := s.conn.Answer(sig.Offer)
		if err != nil {
			s.log.Error().Err(err).Msg("couldn't answer the offer")
			return
		}
		if err := s.sm.SendAnswer(); err != nil {
			s.drop("call answer", err)
			return
		}
		if err := c.conn.Send(api.CallAccepted, api.Signal{To: sig.From, Ans: ans}); err != nil {
			s.log.Error().Err(err).Send()
			return
		}
		// handshake done on this side: plug the tracks in, the
		// connection will ask for renegotiation
		c.attach(s)
		if c.OnConnected != nil {
			c.OnConnected(s.remote)
		}
	})
}

func (c *Caller) handleCallAccepted(s *callSession, sig api.Signal) {
	if err := s.sm.ReceiveAnswer(); err != nil {
		s.drop("call accepted", err)
		return
	}
	if err := s.conn.Accept(sig.Ans); err != nil {
		s.log.Error().Err(err).Msg("couldn't apply the answer")
		return
	}
	c.attach(s)
	if c.OnConnected != nil {
		c.OnConnected(s.remote)
	}
}

func (c *Caller) handleNegoNeeded(s *callSession, sig api.Signal) {
	err := s.sm.ReceiveRenegoOffer()
	if errors.Is(err, session.ErrGlare) {
		s.log.Debug().Msg("offer collision, keeping own offer")
		return
	}
	if err != nil {
		s.drop("renegotiation offer", err)
		return
	}
	ans, err := s.conn.Answer(sig.Offer)
	if err != nil {
		s.log.Error().Err(err).Msg("couldn't answer the renegotiation offer")
		return
	}
	if err := s.sm.SendRenegoAnswer(); err != nil {
		s.drop("renegotiation answer", err)
		return
	}
	if err := c.conn.Send(api.NegoDone, api.Signal{To: s.remote, Ans: ans}); err != nil {
		s.log.Error().Err(err).Send()
	}
}

func (c *Caller) handleNegoFinal(s *callSession, sig api.Signal) {
	if err := s.sm.ReceiveRenegoAnswer(); err != nil {
		s.drop("renegotiation final", err)
		return
	}
	if err := s.conn.Accept(sig.Ans); err != nil {
		s.log.Error().Err(err).Msg("couldn't finalize the renegotiation")
	}
}

// negotiate runs when the connection object reports it needs a fresh
// offer/answer round, e.g. after track attachment.
func (c *Caller) negotiate(s *callSession) {
	if err := s.sm.SendRenegoOffer(); err != nil {
		s.drop("renegotiation", err)
		return
	}
	offer, err := s.conn.Offer()
	if err != nil {
		s.log.Error().Err(err).Msg("couldn't produce the renegotiation offer")
		return
	}
	if err := c.conn.Send(api.NegoNeeded, api.Signal{To: s.remote, Offer: offer}); err != nil {
		s.log.Error().Err(err).Send()
	}
}

func (c *Caller) attach(s *callSession) {
	m := s.getMedia()
	if m == nil {
		return
	}
	if err := s.conn.AttachTracks(m); err != nil {
		s.log.Error().Err(err).Msg("couldn't attach the local tracks")
	}
}

// ensureSession finds or creates the session with the remote peer,
// together with its connection object and worker queue.
func (c *Caller) ensureSession(remote string) (*callSession, error) {
	if s, err := c.sessions.Find(remote); err == nil {
		return s, nil
	}
	local := c.Id()
	if local == "" {
		return nil, ErrNotJoined
	}
	conn, err := c.newConnection(remote)
	if err != nil {
		return nil, err
	}
	s := &callSession{
		remote: remote,
		sm:     session.New(local, remote),
		conn:   conn,
		log:    c.log.Extend(c.log.With().Str("peer", remote)),
		queue:  make(chan func(), sessionQueueSize),
	}
	go s.work()
	conn.OnNegotiationNeeded(func() { s.dispatch(func() { c.negotiate(s) }) })
	conn.OnRemoteTrack(func(t RemoteTrack) {
		s.log.Debug().Str("kind", t.Kind).Msg("Remote track")
		if c.OnRemoteTrack != nil {
			c.OnRemoteTrack(remote, t)
		}
	})
	c.sessions.Put(remote, s)
	return s, nil
}

// dispatchSignal routes a directed packet to the worker of an existing
// session; packets for unknown (e.g. torn down) sessions are dropped.
func (c *Caller) dispatchSignal(in api.In, fn func(s *callSession, sig api.Signal)) {
	p := api.Unwrap[api.Signal](in.Payload)
	if p == nil || p.From == "" {
		return
	}
	s, err := c.sessions.Find(p.From)
	if err != nil {
		c.log.Debug().Str("from", p.From).Msgf("no session for %v", in.T)
		return
	}
	s.dispatch(func() { fn(s, *p) })
}

func (s *callSession) work() {
	for fn := range s.queue {
		fn()
	}
}

// dispatch enqueues work for the session's worker without ever
// blocking the caller: packets arrive on the connection's one reader
// goroutine, and a session stalled in a slow operation must not hold
// up the packets of other peers. Work for a full or closed queue is
// dropped.
func (s *callSession) dispatch(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.qclosed {
		return false
	}
	select {
	case s.queue <- fn:
		return true
	default:
		s.log.Warn().Msg("session queue overflow, work dropped")
		return false
	}
}

func (s *callSession) stop() {
	s.mu.Lock()
	if !s.qclosed {
		s.qclosed = true
		close(s.queue)
	}
	s.mu.Unlock()
}

func (s *callSession) getMedia() MediaSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

func (s *callSession) setMedia(m MediaSource) {
	s.mu.Lock()
	s.media = m
	s.mu.Unlock()
}

func (s *callSession) drop(what string, err error) {
	if errors.Is(err, session.ErrClosed) {
		s.log.Debug().Msgf("%s after teardown, dropped", what)
		return
	}
	s.log.Debug().Err(err).Msgf("%s dropped", what)
}
