// Package session tracks the signaling handshake of one peer pair.
//
// A session belongs to the ordered pair (local, remote) and advances
// through offer/answer exchanges:
//
//	Idle -> OfferSent | OfferReceived -> Stable
//	Stable -> RenegoOfferSent | RenegoOfferReceived -> Stable
//
// Close is terminal. When both sides fire offers at once, the roles
// decide the winner: the peer with the smaller id is polite and yields
// to the incoming offer, the other one ignores it and keeps its own.
package session

import (
	"errors"
	"fmt"
	"sync"
)

type State uint8

const (
	Idle State = iota
	OfferSent
	OfferReceived
	Stable
	RenegoOfferSent
	RenegoOfferReceived
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OfferSent:
		return "offer-sent"
	case OfferReceived:
		return "offer-received"
	case Stable:
		return "stable"
	case RenegoOfferSent:
		return "renego-offer-sent"
	case RenegoOfferReceived:
		return "renego-offer-received"
	case Closed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrClosed = errors.New("session is closed")
	// ErrGlare marks a colliding offer the impolite side should ignore.
	ErrGlare = errors.New("offer collision")
)

type TransitionError struct {
	Op   string
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s is not allowed in state %s", e.Op, e.From)
}

type Session struct {
	local  string
	remote string

	mu    sync.Mutex
	state State
}

func New(local, remote string) *Session {
	return &Session{local: local, remote: remote, state: Idle}
}

func (s *Session) Local() string  { return s.local }
func (s *Session) Remote() string { return s.remote }

// Polite reports whether the local endpoint yields on offer collisions.
// The role assignment is deterministic, so the two sides always disagree.
func (s *Session) Polite() bool { return s.local < s.remote }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Closed() bool { return s.State() == Closed }

// SendOffer starts the handshake on the calling side.
func (s *Session) SendOffer() error { return s.move("send offer", Idle, OfferSent) }

// ReceiveOffer registers an incoming first offer. An offer colliding with
// our own in-flight one is resolved by the politeness rule: the polite
// side rolls back and answers, the impolite side gets ErrGlare.
func (s *Session) ReceiveOffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		s.state = OfferReceived
		return nil
	case OfferSent:
		if s.Polite() {
			s.state = OfferReceived
			return nil
		}
		return ErrGlare
	case Closed:
		return ErrClosed
	}
	return &TransitionError{Op: "receive offer", From: s.state}
}

// SendAnswer completes the handshake on the answering side.
func (s *Session) SendAnswer() error { return s.move("send answer", OfferReceived, Stable) }

// ReceiveAnswer completes the handshake on the calling side.
func (s *Session) ReceiveAnswer() error { return s.move("receive answer", OfferSent, Stable) }

// SendRenegoOffer starts a renegotiation cycle on top of a stable session.
// Repeating it while a previous own offer is still in flight just replaces
// that offer.
func (s *Session) SendRenegoOffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Stable, RenegoOfferSent:
		s.state = RenegoOfferSent
		return nil
	case Closed:
		return ErrClosed
	}
	return &TransitionError{Op: "send renegotiation offer", From: s.state}
}

// ReceiveRenegoOffer registers an incoming renegotiation offer,
// applying the politeness rule on collision.
func (s *Session) ReceiveRenegoOffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Stable:
		s.state = RenegoOfferReceived
		return nil
	case RenegoOfferSent:
		if s.Polite() {
			s.state = RenegoOfferReceived
			return nil
		}
		return ErrGlare
	case Closed:
		return ErrClosed
	}
	return &TransitionError{Op: "receive renegotiation offer", From: s.state}
}

// SendRenegoAnswer returns the session to stable on the answering side.
func (s *Session) SendRenegoAnswer() error {
	return s.move("send renegotiation answer", RenegoOfferReceived, Stable)
}

// ReceiveRenegoAnswer finalizes the cycle on the offering side.
func (s *Session) ReceiveRenegoAnswer() error {
	return s.move("receive renegotiation answer", RenegoOfferSent, Stable)
}

// Close discards the session. Every operation afterwards fails with
// ErrClosed, so late signaling messages cannot resurrect it.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
}

func (s *Session) move(op string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	if s.state != from {
		return &TransitionError{Op: op, From: s.state}
	}
	s.state = to
	return nil
}
