package caller

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geetika1312/VC/pkg/api"
	"github.com/geetika1312/VC/pkg/logger"
	"github.com/geetika1312/VC/pkg/session"
	"github.com/goccy/go-json"
)

// testRelay shuttles packets between callers in memory, doing what the
// real relay does: rewrite the packet type and inject the sender id.
type testRelay struct {
	mu    sync.Mutex
	peers map[string]*Caller
}

func newTestRelay() *testRelay { return &testRelay{peers: make(map[string]*Caller, 2)} }

type link struct {
	relay *testRelay
	id    string

	mu   sync.Mutex
	sent []api.Out
}

func (l *link) Send(t api.PT, payload any) error {
	l.mu.Lock()
	l.sent = append(l.sent, api.Out{T: t, Payload: payload})
	l.mu.Unlock()

	switch t {
	case api.RoomJoin:
		rq := payload.(api.RoomJoinRequest)
		l.deliver(l.id, api.RoomJoined, api.RoomJoinedReply{Room: rq.Room, Id: l.id})
		l.relay.mu.Lock()
		others := make([]string, 0, len(l.relay.peers))
		for id := range l.relay.peers {
			if id != l.id {
				others = append(others, id)
			}
		}
		l.relay.mu.Unlock()
		for _, id := range others {
			l.deliver(id, api.UserJoined, api.UserJoinedNotice{User: rq.User, Id: l.id})
		}
	case api.UserCall, api.CallAccepted, api.NegoNeeded, api.NegoDone:
		sig := payload.(api.Signal)
		out := map[api.PT]api.PT{
			api.UserCall:     api.IncomingCall,
			api.CallAccepted: api.CallAccepted,
			api.NegoNeeded:   api.NegoNeeded,
			api.NegoDone:     api.NegoFinal,
		}[t]
		l.deliver(sig.To, out, api.Signal{From: l.id, Offer: sig.Offer, Ans: sig.Ans})
	}
	return nil
}

func (l *link) deliver(to string, t api.PT, payload any) {
	l.relay.mu.Lock()
	peer := l.relay.peers[to]
	l.relay.mu.Unlock()
	if peer == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	peer.Handle(api.In{T: t, Payload: raw})
}

func (l *link) count(t api.PT) (n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.sent {
		if p.T == t {
			n++
		}
	}
	return n
}

type fakeConn struct {
	mu       sync.Mutex
	answers  int
	accepts  int
	attached bool
	closed   bool
	enabled  map[string]bool
	onNego   func()
	onTrack  func(t RemoteTrack)
}

func (f *fakeConn) Offer() (SDP, error) { return SDP(`{"type":"offer"}`), nil }

func (f *fakeConn) Answer(SDP) (SDP, error) {
	f.mu.Lock()
	f.answers++
	f.mu.Unlock()
	return SDP(`{"type":"answer"}`), nil
}

func (f *fakeConn) Accept(SDP) error {
	f.mu.Lock()
	f.accepts++
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) AttachTracks(MediaSource) error {
	f.mu.Lock()
	f.attached = true
	nego := f.onNego
	f.mu.Unlock()
	if nego != nil {
		nego()
	}
	return nil
}

func (f *fakeConn) SetEnabled(kind string, enabled bool) {
	f.mu.Lock()
	f.enabled[kind] = enabled
	f.mu.Unlock()
}

func (f *fakeConn) OnNegotiationNeeded(fn func()) {
	f.mu.Lock()
	f.onNego = fn
	f.mu.Unlock()
}

func (f *fakeConn) OnRemoteTrack(fn func(t RemoteTrack)) {
	f.mu.Lock()
	f.onTrack = fn
	f.mu.Unlock()
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFactory struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
}

func (f *fakeFactory) new(remote string) (Connection, error) {
	c := &fakeConn{enabled: map[string]bool{}}
	f.mu.Lock()
	f.conns[remote] = c
	f.mu.Unlock()
	return c, nil
}

func (f *fakeFactory) get(remote string) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[remote]
}

type harness struct {
	a, b   *Caller
	la, lb *link
	fa, fb *fakeFactory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	relay := newTestRelay()
	h := &harness{
		la: &link{relay: relay, id: "A"},
		lb: &link{relay: relay, id: "B"},
		fa: &fakeFactory{conns: map[string]*fakeConn{}},
		fb: &fakeFactory{conns: map[string]*fakeConn{}},
	}
	media := func() (MediaSource, error) { return NewStaticSource(), nil }
	h.a = New(h.la, h.fa.new, media, logger.Default())
	h.b = New(h.lb, h.fb.new, media, logger.Default())
	relay.peers["A"] = h.a
	relay.peers["B"] = h.b
	if err := h.a.Join("alice", "r1"); err != nil {
		t.Fatal(err)
	}
	if err := h.b.Join("bob", "r1"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		h.a.Close()
		h.b.Close()
	})
	return h
}

func sessionState(c *Caller, remote string) (session.State, bool) {
	s, err := c.sessions.Find(remote)
	if err != nil {
		return 0, false
	}
	return s.sm.State(), true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle waits until both sessions are stable and no renegotiation
// packets are in flight anymore.
func settle(t *testing.T, h *harness) {
	t.Helper()
	counts := func() int {
		return h.la.count(api.NegoNeeded) + h.la.count(api.NegoDone) +
			h.lb.count(api.NegoNeeded) + h.lb.count(api.NegoDone)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		before := counts()
		time.Sleep(25 * time.Millisecond)
		if bothStable(h) && counts() == before {
			return
		}
	}
	t.Fatal("negotiation never settled")
}

func bothStable(h *harness) bool {
	sa, oka := sessionState(h.a, "B")
	sb, okb := sessionState(h.b, "A")
	return oka && okb && sa == session.Stable && sb == session.Stable
}

func TestCallReachesStableOnBothSides(t *testing.T) {
	h := newHarness(t)

	var connected sync.Map
	h.a.OnConnected = func(remote string) { connected.Store("a->"+remote, true) }
	h.b.OnConnected = func(remote string) { connected.Store("b->"+remote, true) }

	if err := h.a.Call("B"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "both sessions stable", func() bool { return bothStable(h) })

	waitFor(t, "tracks attached on both sides", func() bool {
		ca, cb := h.fa.get("B"), h.fb.get("A")
		if ca == nil || cb == nil {
			return false
		}
		ca.mu.Lock()
		aAttached := ca.attached
		ca.mu.Unlock()
		cb.mu.Lock()
		bAttached := cb.attached
		cb.mu.Unlock()
		return aAttached && bAttached
	})
	if _, ok := connected.Load("a->B"); !ok {
		t.Error("caller side never reported connected")
	}
	if _, ok := connected.Load("b->A"); !ok {
		t.Error("callee side never reported connected")
	}
}

func TestSimultaneousCallsConverge(t *testing.T) {
	h := newHarness(t)

	// the side whose own offer loses the race reports a transition
	// error, but both sides still converge through the winning call
	done := make(chan struct{}, 2)
	go func() { _ = h.a.Call("B"); done <- struct{}{} }()
	go func() { _ = h.b.Call("A"); done <- struct{}{} }()
	<-done
	<-done
	waitFor(t, "glare to resolve", func() bool { return bothStable(h) })
}

func TestRemoteTrackSurfaced(t *testing.T) {
	h := newHarness(t)

	got := make(chan RemoteTrack, 1)
	h.a.OnRemoteTrack = func(remote string, tr RemoteTrack) {
		if remote == "B" {
			got <- tr
		}
	}
	if err := h.a.Call("B"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sessions stable", func() bool { return bothStable(h) })

	conn := h.fa.get("B")
	conn.mu.Lock()
	onTrack := conn.onTrack
	conn.mu.Unlock()
	if onTrack == nil {
		t.Fatal("remote track callback never wired")
	}
	onTrack(RemoteTrack{Id: "v1", Kind: VideoKind})
	select {
	case tr := <-got:
		if tr.Kind != VideoKind {
			t.Errorf("want video track, got %+v", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("remote track never surfaced")
	}
}

func TestMuteDoesNotRenegotiate(t *testing.T) {
	h := newHarness(t)
	if err := h.a.Call("B"); err != nil {
		t.Fatal(err)
	}
	settle(t, h)

	offers := h.la.count(api.NegoNeeded)
	h.a.SetEnabled("B", AudioKind, false)

	conn := h.fa.get("B")
	waitFor(t, "mute to land", func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		on, ok := conn.enabled[AudioKind]
		return ok && !on
	})
	if got := h.la.count(api.NegoNeeded); got != offers {
		t.Errorf("mute triggered renegotiation: %d -> %d offers", offers, got)
	}
}

func TestEndCallTearsDownAndDropsLatePackets(t *testing.T) {
	h := newHarness(t)
	if err := h.a.Call("B"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sessions stable", func() bool { return bothStable(h) })

	conn := h.fa.get("B")
	h.a.EndCall("B")
	waitFor(t, "connection to close", conn.isClosed)
	if _, ok := sessionState(h.a, "B"); ok {
		t.Fatal("session survived EndCall")
	}

	// a final renegotiation answer arriving after teardown is dropped
	raw, _ := json.Marshal(api.Signal{From: "B", Ans: SDP(`{"type":"answer"}`)})
	h.a.Handle(api.In{T: api.NegoFinal, Payload: raw})
	if _, ok := sessionState(h.a, "B"); ok {
		t.Error("late packet resurrected the session")
	}

	// and once both sides hung up, a fresh call builds a fresh session
	h.b.EndCall("A")
	if err := h.a.Call("B"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second call stable", func() bool {
		sa, ok := sessionState(h.a, "B")
		return ok && sa == session.Stable
	})
}

func TestPeerLeftEndsCall(t *testing.T) {
	h := newHarness(t)
	if err := h.a.Call("B"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sessions stable", func() bool { return bothStable(h) })

	left := make(chan string, 1)
	h.a.OnPeerLeft = func(id string) { left <- id }

	raw, _ := json.Marshal(api.UserLeftNotice{Id: "B"})
	h.a.Handle(api.In{T: api.UserLeft, Payload: raw})

	select {
	case id := <-left:
		if id != "B" {
			t.Errorf("wrong peer reported: %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("peer leave never surfaced")
	}
	if _, ok := sessionState(h.a, "B"); ok {
		t.Error("session survived the peer leaving")
	}
	if h.a.ActivePeer() != "" {
		t.Error("active peer not cleared")
	}
}

// blockingConn stalls in Answer until released, standing in for a slow
// negotiation (e.g. ICE gathering).
type blockingConn struct {
	fakeConn
	entered chan struct{}
	gate    chan struct{}
}

func (b *blockingConn) Answer(SDP) (SDP, error) {
	b.entered <- struct{}{}
	<-b.gate
	return SDP(`{"type":"answer"}`), nil
}

func TestStalledSessionDoesNotBlockOtherPeers(t *testing.T) {
	relay := newTestRelay()
	la := &link{relay: relay, id: "A"}
	conn := &blockingConn{
		fakeConn: fakeConn{enabled: map[string]bool{}},
		entered:  make(chan struct{}),
		gate:     make(chan struct{}),
	}
	c := New(la, func(string) (Connection, error) { return conn, nil },
		func() (MediaSource, error) { return NewStaticSource(), nil }, logger.Default())
	relay.peers["A"] = c
	if err := c.Join("alice", "r1"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { close(conn.gate) })

	// peer B's worker gets stuck answering the incoming offer
	offer, _ := json.Marshal(api.Signal{From: "B", Offer: SDP(`{"type":"offer"}`)})
	c.Handle(api.In{T: api.IncomingCall, Payload: offer})
	<-conn.entered

	// pile more work for B onto its queue than it can hold, then a
	// packet for another peer, all on the one reader goroutine
	late, _ := json.Marshal(api.Signal{From: "B", Ans: SDP(`{"type":"answer"}`)})
	joined, _ := json.Marshal(api.UserJoinedNotice{User: "carol", Id: "C"})
	delivered := make(chan struct{})
	go func() {
		for i := 0; i < 2*sessionQueueSize; i++ {
			c.Handle(api.In{T: api.NegoFinal, Payload: late})
		}
		c.Handle(api.In{T: api.UserJoined, Payload: joined})
		close(delivered)
	}()
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("a full session queue blocked the reader goroutine")
	}
	if got := c.ActivePeer(); got != "C" {
		t.Errorf("packet for another peer not handled, active peer %q", got)
	}

	// teardown must not wait for the stalled worker either
	ended := make(chan struct{})
	go func() {
		c.EndCall("B")
		close(ended)
	}()
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown blocked behind the stalled session")
	}
	if !conn.isClosed() {
		t.Error("connection not closed on teardown")
	}
}

func TestMediaFailureAbortsCall(t *testing.T) {
	relay := newTestRelay()
	la := &link{relay: relay, id: "A"}
	fa := &fakeFactory{conns: map[string]*fakeConn{}}
	c := New(la, fa.new, func() (MediaSource, error) {
		return nil, errors.New("no camera")
	}, logger.Default())
	relay.peers["A"] = c
	if err := c.Join("alice", "r1"); err != nil {
		t.Fatal(err)
	}

	err := c.Call("B")
	if !errors.Is(err, ErrMediaAcquisition) {
		t.Fatalf("want ErrMediaAcquisition, got %v", err)
	}
	if got := la.count(api.UserCall); got != 0 {
		t.Errorf("call packet sent despite media failure: %d", got)
	}
}

func TestCallBeforeJoin(t *testing.T) {
	relay := newTestRelay()
	la := &link{relay: relay, id: "A"}
	fa := &fakeFactory{conns: map[string]*fakeConn{}}
	c := New(la, fa.new, func() (MediaSource, error) { return NewStaticSource(), nil }, logger.Default())

	if err := c.Call("B"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("want ErrNotJoined, got %v", err)
	}
}

func TestUserJoinedSetsActivePeer(t *testing.T) {
	h := newHarness(t)
	// B joined after A, so A saw the broadcast
	if got := h.a.ActivePeer(); got != "B" {
		t.Errorf("want active peer B, got %q", got)
	}
}
