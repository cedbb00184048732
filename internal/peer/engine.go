// Package peer owns the peer connection and the offer/answer/ICE state
// machine for one call. Inbound signaling is funneled through HandleSignal,
// which never panics or returns an error into the transport's read loop:
// bad payloads are logged or surfaced as non-fatal error events.
package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/lureka/callkit/internal/event"
	"github.com/lureka/callkit/internal/media"
	"github.com/lureka/callkit/internal/signal"
	"github.com/lureka/callkit/internal/util"
)

// Role fixes which side of the negotiation this engine plays for the
// lifetime of a call. Only the offerer creates the initial offer; only the
// answerer responds with an answer.
type Role string

const (
	RoleOfferer  Role = "offerer"
	RoleAnswerer Role = "answerer"
)

// debounceWindow suppresses re-delivery of the same offer/answer by the
// relay or by a re-triggered UI mount. Candidates are exempt: they are
// legitimately numerous and independent.
const debounceWindow = time.Second

// RemoteStream is the remote side's media as observed from track arrival.
// The stream identity is assigned once; the first remote track wins.
type RemoteStream struct {
	ID     string
	Tracks []RemoteTrack
}

// Config assembles one Engine.
type Config struct {
	Role   Role
	Conn   Conn
	RoomID string

	// LocalStream's tracks are attached as outgoing senders at init.
	LocalStream *media.Stream

	// Clock defaults to the system clock; tests inject a fake.
	Clock Clock
}

// Engine drives the negotiation for one call. All methods are safe for
// concurrent use; correctness under duplicate or overlapping signals comes
// from the guards in HandleSignal rather than from caller discipline.
type Engine struct {
	role   Role
	roomID string
	clock  Clock
	log    zerolog.Logger

	mu      sync.Mutex
	conn    Conn
	closed  bool
	ledger  map[signal.Type]time.Time
	local   *media.Stream
	senders map[media.Kind]media.Sender
	remote  *RemoteStream

	established event.Feed[struct{}]
	closedFeed  event.Feed[struct{}]
	failed      event.Feed[error]
	signalErrs  event.Feed[error]
	outbound    event.Feed[signal.Envelope]
}

// New creates an engine over the given connection, attaches every local
// track as an outgoing sender, and wires the connection listeners.
func New(cfg Config) (*Engine, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	e := &Engine{
		role:    cfg.Role,
		roomID:  cfg.RoomID,
		clock:   clock,
		log:     util.Log().With().Str("component", "peer").Str("role", string(cfg.Role)).Logger(),
		conn:    cfg.Conn,
		ledger:  make(map[signal.Type]time.Time),
		local:   cfg.LocalStream,
		senders: make(map[media.Kind]media.Sender),
	}

	if e.local != nil {
		for _, t := range e.local.Tracks() {
			sender, err := e.conn.AddTrack(t.Local())
			if err != nil {
				return nil, fmt.Errorf("failed to attach %s track: %w", t.Kind(), err)
			}
			e.senders[t.Kind()] = sender
		}
	}

	e.wireListeners()
	return e, nil
}

func (e *Engine) wireListeners() {
	e.conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		// The nil terminal candidate marks end-of-gathering and is a
		// local-only signal, never forwarded.
		if c == nil {
			return
		}
		init := c.ToJSON()
		if init.Candidate == "" {
			return
		}
		e.outbound.Emit(signal.Envelope{
			Type:          signal.TypeCandidate,
			RoomID:        e.roomID,
			Candidate:     init.Candidate,
			SDPMLineIndex: init.SDPMLineIndex,
			SDPMid:        init.SDPMid,
		})
	})

	e.conn.OnTrack(func(track RemoteTrack) {
		e.mu.Lock()
		if e.remote == nil {
			e.remote = &RemoteStream{ID: track.StreamID()}
		}
		if track.StreamID() != e.remote.ID {
			// The remote stream is assigned once per call.
			e.mu.Unlock()
			e.log.Warn().Str("stream", track.StreamID()).Msg("ignoring track for a second remote stream")
			return
		}
		e.remote.Tracks = append(e.remote.Tracks, track)
		e.mu.Unlock()
		e.log.Debug().Str("track", track.ID()).Msg("remote track arrived")
	})

	e.conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.log.Info().Str("state", state.String()).Msg("peer connection state")
		switch state {
		case webrtc.PeerConnectionStateConnected:
			util.Stats.CallStarted()
			e.established.Emit(struct{}{})
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			// One uniform close event so callers have a single cleanup path.
			e.closedFeed.Emit(struct{}{})
		case webrtc.PeerConnectionStateFailed:
			e.failed.Emit(ErrConnectionFailed)
		}
	})

	e.conn.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		e.log.Debug().Str("state", state.String()).Msg("ICE connection state")
	})

	e.conn.OnSignalingStateChange(func(state webrtc.SignalingState) {
		e.log.Debug().Str("state", state.String()).Msg("signaling state")
	})
}

// HandleSignal processes one inbound envelope. It is the single entry point
// for offer/answer/candidate traffic and absorbs every failure mode: bad
// payloads and apply errors become logs or error events, never panics.
func (e *Engine) HandleSignal(env signal.Envelope) {
	if env.Type == "" {
		e.log.Debug().Msg("ignoring envelope with no type")
		return
	}

	e.mu.Lock()

	if e.conn == nil || e.closed {
		e.mu.Unlock()
		e.log.Debug().Str("type", string(env.Type)).Msg("no active connection, ignoring signal")
		return
	}

	// Debounce duplicate offers/answers by wall clock. Recording happens
	// before processing so a burst of identical envelopes collapses to one.
	switch env.Type {
	case signal.TypeOffer, signal.TypeAnswer:
		if last, ok := e.ledger[env.Type]; ok && e.clock.Now().Sub(last) < debounceWindow {
			e.mu.Unlock()
			e.log.Debug().Str("type", string(env.Type)).Msg("duplicate signal inside debounce window")
			return
		}
		e.ledger[env.Type] = e.clock.Now()
	}

	var out *signal.Envelope
	var signalErr error

	switch env.Type {
	case signal.TypeOffer:
		out, signalErr = e.handleOffer(env)
	case signal.TypeAnswer:
		signalErr = e.handleAnswer(env)
	case signal.TypeCandidate:
		signalErr = e.handleCandidate(env)
	default:
		e.log.Debug().Str("type", string(env.Type)).Msg("ignoring non-negotiation envelope")
	}
	e.mu.Unlock()

	// Emit outside the lock so handlers may call back into the engine.
	if signalErr != nil {
		e.log.Warn().Err(signalErr).Msg("non-fatal signal handling error")
		e.signalErrs.Emit(signalErr)
	}
	if out != nil {
		e.outbound.Emit(*out)
	}
}

// handleOffer applies a remote offer and builds exactly one answer. Callers
// hold e.mu, so the answer round runs to completion before the next signal
// is examined; no second CreateAnswer can start mid-round.
func (e *Engine) handleOffer(env signal.Envelope) (*signal.Envelope, error) {
	if e.role != RoleAnswerer {
		e.log.Warn().Msg("offer received by offerer, ignoring")
		return nil, nil
	}

	// A completed round leaves the connection stable with a remote
	// description set; a re-delivered offer for that round is stale even
	// when the debounce window has elapsed.
	if e.conn.SignalingState() == webrtc.SignalingStateStable && e.conn.RemoteDescription() != nil {
		e.log.Debug().Msg("stale offer for a completed round, ignoring")
		return nil, nil
	}

	if err := e.conn.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  env.SDP,
	}); err != nil {
		return nil, fmt.Errorf("%w: apply remote offer: %v", ErrSignalHandling, err)
	}

	answer, err := e.conn.CreateAnswer()
	if err != nil {
		return nil, fmt.Errorf("%w: create answer: %v", ErrSignalHandling, err)
	}
	if err := e.conn.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("%w: apply local answer: %v", ErrSignalHandling, err)
	}

	return &signal.Envelope{
		Type:   signal.TypeAnswer,
		RoomID: e.roomID,
		To:     env.From,
		SDP:    answer.SDP,
	}, nil
}

func (e *Engine) handleAnswer(env signal.Envelope) error {
	if e.role == RoleAnswerer {
		// Lenient by design: a misrouted answer is dropped, not fatal.
		e.log.Warn().Msg("answer received by answerer, ignoring")
		return nil
	}

	if err := e.conn.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  env.SDP,
	}); err != nil {
		return fmt.Errorf("%w: apply remote answer: %v", ErrSignalHandling, err)
	}
	return nil
}

func (e *Engine) handleCandidate(env signal.Envelope) error {
	if env.Candidate == "" {
		// End-of-gathering marker; local-only, nothing to apply.
		return nil
	}

	init := webrtc.ICECandidateInit{
		Candidate:     env.Candidate,
		SDPMLineIndex: env.SDPMLineIndex,
		SDPMid:        env.SDPMid,
	}
	if err := e.conn.AddICECandidate(init); err != nil {
		return fmt.Errorf("%w: apply candidate: %v", ErrSignalHandling, err)
	}
	return nil
}

// StartOffer creates and applies the initial local offer and emits it for
// the transport to relay. Valid only for the offerer role.
func (e *Engine) StartOffer() error {
	e.mu.Lock()

	if e.conn == nil || e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.role != RoleOfferer {
		e.mu.Unlock()
		return fmt.Errorf("role %s cannot create an offer", e.role)
	}

	offer, err := e.conn.CreateOffer()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("create offer: %w", err)
	}
	if err := e.conn.SetLocalDescription(offer); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("apply local offer: %w", err)
	}
	roomID := e.roomID
	e.mu.Unlock()

	e.outbound.Emit(signal.Envelope{
		Type:   signal.TypeOffer,
		RoomID: roomID,
		SDP:    offer.SDP,
	})
	return nil
}

// SenderFor returns the outgoing sender of the given kind, used by the
// device manager for in-place track replacement.
func (e *Engine) SenderFor(kind media.Kind) (media.Sender, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.senders[kind]
	return s, ok
}

// LocalStream returns the local stream, or nil after Destroy.
func (e *Engine) LocalStream() *media.Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

// RemoteStream returns the remote stream observed so far, or nil.
func (e *Engine) RemoteStream() *RemoteStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote
}

// Closed reports whether the peer connection has been discarded.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// ClosePeer discards the peer connection and clears the signal ledger but
// keeps the local stream live, so a re-offer after a remote drop does not
// have to re-request device access.
func (e *Engine) ClosePeer() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.closed = true
	e.ledger = make(map[signal.Type]time.Time)
	e.senders = make(map[media.Kind]media.Sender)
	e.remote = nil
	e.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			e.log.Warn().Err(err).Msg("error closing peer connection")
		}
		util.Stats.CallEnded()
	}
}

// Destroy tears the call down entirely: peer connection closed and every
// local track stopped. Used when the user leaves the call.
func (e *Engine) Destroy() {
	e.ClosePeer()

	e.mu.Lock()
	local := e.local
	e.local = nil
	e.mu.Unlock()

	if local != nil {
		local.StopAll()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Event subscriptions
// ──────────────────────────────────────────────────────────────────────────────

// OnEstablished fires when the connection reaches the connected state.
func (e *Engine) OnEstablished(fn func()) func() {
	return e.established.Subscribe(func(struct{}) { fn() })
}

// OnClosed fires for both disconnected and closed, one cleanup path.
func (e *Engine) OnClosed(fn func()) func() {
	return e.closedFeed.Subscribe(func(struct{}) { fn() })
}

// OnFailed fires on terminal connection failure.
func (e *Engine) OnFailed(fn func(error)) func() {
	return e.failed.Subscribe(fn)
}

// OnSignalError fires for non-fatal inbound signal handling failures.
func (e *Engine) OnSignalError(fn func(error)) func() {
	return e.signalErrs.Subscribe(fn)
}

// OnOutbound receives every envelope the engine wants relayed to the remote
// peer (answers and trickle candidates, plus offers for the offerer role).
func (e *Engine) OnOutbound(fn func(signal.Envelope)) func() {
	return e.outbound.Subscribe(fn)
}
