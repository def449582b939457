package relay

import (
	"sync"

	"github.com/geetika1312/VC/pkg/api"
	"github.com/geetika1312/VC/pkg/logger"
)

// Hub owns the room registry and routes signaling packets between
// endpoints. It never looks inside session descriptions: directed
// packets are re-addressed and forwarded as is.
//
// All membership state is guarded by one mutex so that joins and
// disconnects mutate the endpoint and room tables atomically. Delivery
// itself is an enqueue to the recipient's writer and never blocks here.
type Hub struct {
	log     *logger.Logger
	metrics *Metrics

	mu        sync.Mutex
	endpoints map[string]*Endpoint
	rooms     map[string]map[string]*Endpoint
}

// forwards maps an inbound directed packet type to the type the
// recipient sees.
var forwards = map[api.PT]api.PT{
	api.UserCall:     api.IncomingCall,
	api.CallAccepted: api.CallAccepted,
	api.NegoNeeded:   api.NegoNeeded,
	api.NegoDone:     api.NegoFinal,
}

func NewHub(log *logger.Logger, metrics *Metrics) *Hub {
	return &Hub{
		log:       log,
		metrics:   metrics,
		endpoints: make(map[string]*Endpoint, 10),
		rooms:     make(map[string]map[string]*Endpoint, 10),
	}
}

// Connect registers a fresh endpoint. It belongs to no room until it
// sends a RoomJoin packet.
func (h *Hub) Connect(e *Endpoint) {
	h.mu.Lock()
	h.endpoints[e.Id()] = e
	n := len(h.endpoints)
	h.mu.Unlock()
	h.metrics.setEndpoints(n)
}

// Disconnect removes the endpoint from the registry and from its room,
// dropping the room when it empties and telling the remaining members
// who left.
func (h *Hub) Disconnect(e *Endpoint) {
	h.mu.Lock()
	delete(h.endpoints, e.Id())
	n := len(h.endpoints)
	left := h.leaveLocked(e)
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.setEndpoints(n)
	h.metrics.setRooms(rooms)
	for _, member := range left {
		member.Notify(api.UserLeft, api.UserLeftNotice{Id: e.Id()})
	}
	e.log.Debug().Msg("Disconnect")
}

// HandlePacket is the entry point for everything a client sends.
func (h *Hub) HandlePacket(e *Endpoint, in api.In) {
	switch in.T {
	case api.RoomJoin:
		rq := api.Unwrap[api.RoomJoinRequest](in.Payload)
		if rq == nil {
			e.Notify(api.Error, api.ErrorReply{Code: api.ErrMalformed, Message: "bad join request"})
			return
		}
		h.join(e, *rq)
	case api.UserCall, api.CallAccepted, api.NegoNeeded, api.NegoDone:
		h.forward(e, in)
	default:
		e.log.Debug().Msgf("unexpected packet %v", in.T)
	}
}

func (h *Hub) join(e *Endpoint, rq api.RoomJoinRequest) {
	if rq.Room == "" {
		e.Notify(api.Error, api.ErrorReply{Code: api.ErrInvalidRoom, Message: "room id is required"})
		return
	}

	h.mu.Lock()
	rejoin := e.Room() == rq.Room
	var left []*Endpoint
	if !rejoin {
		left = h.leaveLocked(e)
		room := h.rooms[rq.Room]
		if room == nil {
			room = make(map[string]*Endpoint, 2)
			h.rooms[rq.Room] = room
		}
		room[e.Id()] = e
	}
	e.set(rq.User, rq.Room)
	var others []*Endpoint
	if !rejoin {
		for id, member := range h.rooms[rq.Room] {
			if id != e.Id() {
				others = append(others, member)
			}
		}
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.setRooms(rooms)
	for _, member := range left {
		member.Notify(api.UserLeft, api.UserLeftNotice{Id: e.Id()})
	}
	e.Notify(api.RoomJoined, api.RoomJoinedReply{Room: rq.Room, Id: e.Id()})
	if rejoin {
		return
	}
	notice := api.UserJoinedNotice{User: rq.User, Id: e.Id()}
	for _, member := range others {
		member.Notify(api.UserJoined, notice)
	}
	e.log.Info().Str("room", rq.Room).Str("user", rq.User).Msg("Join")
}

// forward re-addresses a directed packet and hands it to the live
// recipient. A missing recipient means the packet is dropped: delivery
// is best effort, at most once.
func (h *Hub) forward(e *Endpoint, in api.In) {
	signal := api.Unwrap[api.Signal](in.Payload)
	if signal == nil || signal.To == "" {
		e.log.Debug().Msgf("unroutable %v", in.T)
		h.metrics.dropped(in.T)
		return
	}

	h.mu.Lock()
	to := h.endpoints[signal.To]
	h.mu.Unlock()
	if to == nil {
		e.log.Debug().Str("to", signal.To).Msgf("stale recipient for %v", in.T)
		h.metrics.dropped(in.T)
		return
	}

	out := forwards[in.T]
	to.route(in, out, api.Signal{From: e.Id(), Offer: signal.Offer, Ans: signal.Ans})
	h.metrics.forwarded(out)
}

// Members returns a copy of the current member ids of a room.
func (h *Hub) Members(room string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}

// leaveLocked detaches the endpoint from its current room and reports
// who remains and should hear about it. Needs h.mu held.
func (h *Hub) leaveLocked(e *Endpoint) (remaining []*Endpoint) {
	prev := e.Room()
	if prev == "" {
		return nil
	}
	room := h.rooms[prev]
	if room == nil {
		return nil
	}
	delete(room, e.Id())
	if len(room) == 0 {
		delete(h.rooms, prev)
		return nil
	}
	for _, member := range room {
		remaining = append(remaining, member)
	}
	return remaining
}
