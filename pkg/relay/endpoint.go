package relay

import (
	"sync"

	"github.com/geetika1312/VC/pkg/api"
	"github.com/geetika1312/VC/pkg/com"
	"github.com/geetika1312/VC/pkg/logger"
)

// wire is the outbound side of one client connection.
type wire interface {
	Send(t api.PT, payload any) error
	Route(in api.In, t api.PT, payload any) error
	Close()
}

// Endpoint is one connected client with its relay-assigned id.
type Endpoint struct {
	id   com.Uid
	conn wire
	log  *logger.Logger

	mu   sync.Mutex
	user string
	room string
}

func NewEndpoint(conn wire, log *logger.Logger) *Endpoint {
	id := com.NewUid()
	return &Endpoint{
		id:   id,
		conn: conn,
		log:  log.Extend(log.With().Str("cid", id.Short())),
	}
}

func (e *Endpoint) Id() string { return e.id.String() }

func (e *Endpoint) User() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user
}

func (e *Endpoint) Room() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room
}

func (e *Endpoint) set(user, room string) {
	e.mu.Lock()
	e.user, e.room = user, room
	e.mu.Unlock()
}

// Notify pushes one packet to the client, logging delivery problems
// instead of propagating them: a dead recipient is not a relay error.
func (e *Endpoint) Notify(t api.PT, payload any) {
	if err := e.conn.Send(t, payload); err != nil {
		e.log.Error().Err(err).Msgf("%v", t)
	}
}

func (e *Endpoint) route(in api.In, t api.PT, payload any) {
	if err := e.conn.Route(in, t, payload); err != nil {
		e.log.Error().Err(err).Msgf("%v", t)
	}
}

func (e *Endpoint) Disconnect() { e.conn.Close() }
