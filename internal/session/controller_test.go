package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/lureka/callkit/internal/device"
	"github.com/lureka/callkit/internal/media"
	"github.com/lureka/callkit/internal/peer"
	"github.com/lureka/callkit/internal/signal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type ackMode int

const (
	ackAccept ackMode = iota
	ackReject
	ackNone
)

// fakeTransport acks join envelopes in-process, standing in for the relay.
type fakeTransport struct {
	mu           sync.Mutex
	status       signal.Status
	connects     int
	disconnects  int
	sent         []signal.Envelope
	subs         map[int]func(signal.Envelope)
	nextSub      int
	reconnectFns []func(int)
	mode         ackMode
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{status: signal.StatusDisconnected, subs: make(map[int]func(signal.Envelope))}
}

func (t *fakeTransport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	t.status = signal.StatusConnected
	return nil
}

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	t.status = signal.StatusDisconnected
}

func (t *fakeTransport) Send(env signal.Envelope) {
	t.mu.Lock()
	t.sent = append(t.sent, env)
	mode := t.mode
	t.mu.Unlock()

	if env.Type == signal.TypeJoin {
		switch mode {
		case ackAccept:
			t.push(signal.Envelope{Type: signal.TypeJoined, RoomID: env.RoomID, Success: true})
		case ackReject:
			t.push(signal.Envelope{Type: signal.TypeJoined, RoomID: env.RoomID, Success: false, Error: "room full"})
		}
	}
}

func (t *fakeTransport) Status() signal.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *fakeTransport) OnMessage(fn func(signal.Envelope)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *fakeTransport) OnReconnect(fn func(int)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reconnectFns = append(t.reconnectFns, fn)
	return func() {}
}

func (t *fakeTransport) OnReconnectFailed(func(error)) func() { return func() {} }

// push delivers an envelope to every message subscriber, like the read loop.
func (t *fakeTransport) push(env signal.Envelope) {
	t.mu.Lock()
	fns := make([]func(signal.Envelope), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
}

func (t *fakeTransport) fireReconnect(attempt int) {
	t.mu.Lock()
	fns := append([]func(int){}, t.reconnectFns...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(attempt)
	}
}

func (t *fakeTransport) sentOfType(typ signal.Type) []signal.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []signal.Envelope
	for _, env := range t.sent {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

type fakeDevices struct {
	mu       sync.Mutex
	acquires int
	attached []device.SenderSource
	releases int
}

func (d *fakeDevices) Acquire(context.Context) (*media.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquires++
	return media.NewStream(), nil
}

func (d *fakeDevices) AttachSenders(src device.SenderSource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attached = append(d.attached, src)
}

func (d *fakeDevices) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releases++
}

// stubConn gives the engine factory a peer connection that answers offers
// without any network.
type stubConn struct {
	mu       sync.Mutex
	sigState webrtc.SignalingState
	remote   *webrtc.SessionDescription
	closed   bool
}

func newStubConn() *stubConn { return &stubConn{sigState: webrtc.SignalingStateStable} }

func (c *stubConn) AddTrack(webrtc.TrackLocal) (media.Sender, error) { return nil, nil }

func (c *stubConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\nstub"}, nil
}

func (c *stubConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\nstub-answer"}, nil
}

func (c *stubConn) SetLocalDescription(sdp webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sdp.Type == webrtc.SDPTypeAnswer {
		c.sigState = webrtc.SignalingStateStable
	}
	return nil
}

func (c *stubConn) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = &sdp
	if sdp.Type == webrtc.SDPTypeOffer {
		c.sigState = webrtc.SignalingStateHaveRemoteOffer
	}
	return nil
}

func (c *stubConn) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (c *stubConn) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sigState
}

func (c *stubConn) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *stubConn) ConnectionState() webrtc.PeerConnectionState {
	return webrtc.PeerConnectionStateNew
}

func (c *stubConn) OnICECandidate(func(*webrtc.ICECandidate))                {}
func (c *stubConn) OnTrack(func(peer.RemoteTrack))                           {}
func (c *stubConn) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}
func (c *stubConn) OnICEConnectionStateChange(func(webrtc.ICEConnectionState)) {
}
func (c *stubConn) OnSignalingStateChange(func(webrtc.SignalingState)) {}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type harness struct {
	controller *Controller
	transport  *fakeTransport
	devices    *fakeDevices

	mu       sync.Mutex
	engines  int
}

func newTestController(t *testing.T) *harness {
	t.Helper()
	h := &harness{transport: newFakeTransport(), devices: &fakeDevices{}}
	factory := func(role peer.Role, roomID string, local *media.Stream) (*peer.Engine, error) {
		h.mu.Lock()
		h.engines++
		h.mu.Unlock()
		return peer.New(peer.Config{Role: role, Conn: newStubConn(), RoomID: roomID, LocalStream: local})
	}
	h.controller = NewController(h.transport, h.devices, factory)
	return h
}

func (h *harness) enginesBuilt() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engines
}

// ──────────────────────────────────────────────────────────────────────────────
// Join
// ──────────────────────────────────────────────────────────────────────────────

func TestJoinRoomFlow(t *testing.T) {
	h := newTestController(t)

	if err := h.controller.JoinRoom(context.Background(), "room-1", "interview-9"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if h.transport.connects != 1 {
		t.Errorf("transport connected %d times, want 1", h.transport.connects)
	}
	joins := h.transport.sentOfType(signal.TypeJoin)
	if len(joins) != 1 {
		t.Fatalf("sent %d join envelopes, want 1", len(joins))
	}
	if joins[0].RoomID != "room-1" || joins[0].InterviewID != "interview-9" || joins[0].From != h.controller.ClientID() {
		t.Errorf("join envelope malformed: %+v", joins[0])
	}
	if h.devices.acquires != 1 {
		t.Errorf("devices acquired %d times, want 1", h.devices.acquires)
	}
	if h.controller.Engine() == nil {
		t.Error("no engine after join")
	}
	if len(h.devices.attached) != 1 || h.devices.attached[0] == nil {
		t.Errorf("senders not attached: %v", h.devices.attached)
	}
}

func TestJoinSkipsConnectWhenConnected(t *testing.T) {
	h := newTestController(t)
	h.transport.status = signal.StatusConnected

	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if h.transport.connects != 0 {
		t.Errorf("transport connected %d times on an already-connected join, want 0", h.transport.connects)
	}
}

func TestJoinRejected(t *testing.T) {
	h := newTestController(t)
	h.transport.mode = ackReject

	err := h.controller.JoinRoom(context.Background(), "room-1", "")
	if err == nil || !strings.Contains(err.Error(), "room full") {
		t.Fatalf("got %v, want rejection carrying the relay's reason", err)
	}
	if h.devices.acquires != 0 {
		t.Error("devices acquired despite rejected join")
	}
}

func TestJoinAckTimeout(t *testing.T) {
	orig := joinAckTimeout
	joinAckTimeout = 50 * time.Millisecond
	defer func() { joinAckTimeout = orig }()

	h := newTestController(t)
	h.transport.mode = ackNone

	err := h.controller.JoinRoom(context.Background(), "room-1", "")
	if err == nil || !strings.Contains(err.Error(), "not acknowledged") {
		t.Fatalf("got %v, want ack timeout", err)
	}
}

func TestJoinContextCancel(t *testing.T) {
	h := newTestController(t)
	h.transport.mode = ackNone

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.controller.JoinRoom(ctx, "room-1", ""); err == nil {
		t.Fatal("join succeeded with a cancelled context")
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Reconnect re-join
// ──────────────────────────────────────────────────────────────────────────────

func TestRejoinOnReconnect(t *testing.T) {
	h := newTestController(t)

	// No active room: reconnect sends nothing.
	h.transport.fireReconnect(1)
	if n := len(h.transport.sentOfType(signal.TypeJoin)); n != 0 {
		t.Fatalf("reconnect without a room sent %d joins, want 0", n)
	}

	if err := h.controller.JoinRoom(context.Background(), "room-1", "interview-9"); err != nil {
		t.Fatal(err)
	}

	h.transport.fireReconnect(1)
	joins := h.transport.sentOfType(signal.TypeJoin)
	if len(joins) != 2 {
		t.Fatalf("joins after reconnect = %d, want 2 (initial + re-join)", len(joins))
	}
	rejoin := joins[1]
	if rejoin.RoomID != "room-1" || rejoin.InterviewID != "interview-9" {
		t.Errorf("re-join envelope malformed: %+v", rejoin)
	}
}

func TestNoRejoinAfterLeave(t *testing.T) {
	h := newTestController(t)
	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatal(err)
	}

	h.controller.Leave()
	h.transport.fireReconnect(1)

	if n := len(h.transport.sentOfType(signal.TypeJoin)); n != 1 {
		t.Errorf("joins after leave+reconnect = %d, want 1 (no re-join)", n)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Signal routing
// ──────────────────────────────────────────────────────────────────────────────

func TestOfferRoutedToEngineAndAnswered(t *testing.T) {
	h := newTestController(t)
	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatal(err)
	}

	h.transport.push(signal.Envelope{Type: signal.TypeOffer, RoomID: "room-1", From: "interviewer", SDP: "v=0\r\noffer"})

	answers := h.transport.sentOfType(signal.TypeAnswer)
	if len(answers) != 1 {
		t.Fatalf("relayed %d answers, want 1", len(answers))
	}
	if answers[0].From != h.controller.ClientID() {
		t.Errorf("answer From = %s, want this client's ID", answers[0].From)
	}
	if answers[0].To != "interviewer" {
		t.Errorf("answer To = %s, want interviewer", answers[0].To)
	}
}

func TestSignalsForOtherRoomsIgnored(t *testing.T) {
	h := newTestController(t)
	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatal(err)
	}

	h.transport.push(signal.Envelope{Type: signal.TypeOffer, RoomID: "room-other", SDP: "v=0"})

	if n := len(h.transport.sentOfType(signal.TypeAnswer)); n != 0 {
		t.Errorf("answered an offer for another room (%d answers)", n)
	}
}

func TestPresencePassThrough(t *testing.T) {
	h := newTestController(t)

	var presence []signal.Envelope
	var pmu sync.Mutex
	h.controller.OnPresence(func(env signal.Envelope) {
		pmu.Lock()
		presence = append(presence, env)
		pmu.Unlock()
	})

	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatal(err)
	}

	h.transport.push(signal.Envelope{Type: signal.TypePeerJoin, RoomID: "room-1", From: "interviewer", DisplayName: "Ada"})
	h.transport.push(signal.Envelope{Type: signal.TypePeerLeave, RoomID: "room-1", From: "interviewer"})

	pmu.Lock()
	defer pmu.Unlock()
	if len(presence) != 2 {
		t.Fatalf("presence events = %d, want 2", len(presence))
	}
	if presence[0].DisplayName != "Ada" {
		t.Errorf("presence envelope not passed through unchanged: %+v", presence[0])
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Engine lifecycle
// ──────────────────────────────────────────────────────────────────────────────

func TestRepeatedJoinReusesEngine(t *testing.T) {
	h := newTestController(t)

	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatal(err)
	}
	first := h.controller.Engine()

	// A re-triggered join (UI re-mount) must not spin up a second engine.
	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatal(err)
	}

	if h.controller.Engine() != first {
		t.Error("second join replaced the live engine")
	}
	if n := h.enginesBuilt(); n != 1 {
		t.Errorf("factory invoked %d times, want 1", n)
	}
	// The live engine already holds the acquired stream; a second open
	// would orphan its tracks and can hit a busy device.
	if h.devices.acquires != 1 {
		t.Errorf("devices acquired %d times across a re-triggered join, want 1", h.devices.acquires)
	}
	if len(h.devices.attached) != 1 {
		t.Errorf("senders attached %d times, want 1", len(h.devices.attached))
	}
}

func TestJoinAfterLeaveReacquires(t *testing.T) {
	h := newTestController(t)

	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatal(err)
	}
	h.controller.Leave()

	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatalf("re-join after leave: %v", err)
	}
	if h.devices.acquires != 2 {
		t.Errorf("devices acquired %d times across leave and re-join, want 2", h.devices.acquires)
	}
	if n := h.enginesBuilt(); n != 2 {
		t.Errorf("factory invoked %d times across leave and re-join, want 2", n)
	}
}

func TestLeaveTearsDownEverything(t *testing.T) {
	h := newTestController(t)
	if err := h.controller.JoinRoom(context.Background(), "room-1", ""); err != nil {
		t.Fatal(err)
	}
	engine := h.controller.Engine()

	h.controller.Leave()

	leaves := h.transport.sentOfType(signal.TypeLeave)
	if len(leaves) != 1 || leaves[0].RoomID != "room-1" {
		t.Errorf("leave envelopes = %+v, want one for room-1", leaves)
	}
	if !engine.Closed() {
		t.Error("engine not destroyed on leave")
	}
	if h.controller.Engine() != nil {
		t.Error("controller still holds an engine after leave")
	}
	if h.devices.releases != 1 {
		t.Errorf("devices released %d times, want 1", h.devices.releases)
	}
	last := h.devices.attached[len(h.devices.attached)-1]
	if last != nil {
		t.Error("senders not detached on leave")
	}
	if h.transport.disconnects != 1 {
		t.Errorf("transport disconnected %d times, want 1", h.transport.disconnects)
	}

	// Post-leave signals go nowhere.
	h.transport.push(signal.Envelope{Type: signal.TypeOffer, RoomID: "room-1", SDP: "v=0"})
	if n := len(h.transport.sentOfType(signal.TypeAnswer)); n != 0 {
		t.Errorf("answered an offer after leave (%d answers)", n)
	}
}
