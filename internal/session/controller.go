// Package session orchestrates one logical interview call: join room,
// negotiate, live, leave. It owns the wiring between the signaling
// transport, the device manager, and the negotiation engine, and exposes
// the event surface the UI layer consumes.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lureka/callkit/internal/device"
	"github.com/lureka/callkit/internal/event"
	"github.com/lureka/callkit/internal/media"
	"github.com/lureka/callkit/internal/peer"
	"github.com/lureka/callkit/internal/signal"
	"github.com/lureka/callkit/internal/util"
)

var joinAckTimeout = 10 * time.Second

// Transport is the slice of the signaling client the controller needs.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(signal.Envelope)
	Status() signal.Status
	OnMessage(func(signal.Envelope)) func()
	OnReconnect(func(attempt int)) func()
	OnReconnectFailed(func(error)) func()
}

// Devices is the slice of the device manager the controller needs.
type Devices interface {
	Acquire(ctx context.Context) (*media.Stream, error)
	AttachSenders(device.SenderSource)
	Release()
}

// EngineFactory builds a negotiation engine for one call. The default
// factory opens a real peer connection; tests substitute a fake.
type EngineFactory func(role peer.Role, roomID string, local *media.Stream) (*peer.Engine, error)

// DefaultEngineFactory creates an engine over a freshly configured pion
// peer connection.
func DefaultEngineFactory(role peer.Role, roomID string, local *media.Stream) (*peer.Engine, error) {
	conn, err := peer.NewConn()
	if err != nil {
		return nil, err
	}
	return peer.New(peer.Config{
		Role:        role,
		Conn:        conn,
		RoomID:      roomID,
		LocalStream: local,
	})
}

// Controller runs one interview session end to end. Create one per call;
// it never outlives its room.
type Controller struct {
	transport Transport
	devices   Devices
	newEngine EngineFactory
	clientID  string
	log       zerolog.Logger

	mu          sync.Mutex
	roomID      string
	interviewID string
	engine      *peer.Engine
	unwire      []func()

	presence    event.Feed[signal.Envelope]
	established event.Feed[struct{}]
	callClosed  event.Feed[struct{}]
	callFailed  event.Feed[error]
}

// NewController wires a controller over the given collaborators. Room
// re-join on transport reconnect is registered here, once, for the life of
// the controller.
func NewController(transport Transport, devices Devices, newEngine EngineFactory) *Controller {
	if newEngine == nil {
		newEngine = DefaultEngineFactory
	}
	c := &Controller{
		transport: transport,
		devices:   devices,
		newEngine: newEngine,
		clientID:  uuid.NewString(),
		log:       util.Log().With().Str("component", "session").Logger(),
	}

	// Room membership is not preserved by the transport across reconnects;
	// re-issuing the join is this controller's job. The remote peer is
	// expected to re-offer.
	transport.OnReconnect(func(attempt int) {
		c.mu.Lock()
		roomID := c.roomID
		interviewID := c.interviewID
		c.mu.Unlock()
		if roomID == "" {
			return
		}
		c.log.Info().Str("room", roomID).Int("attempt", attempt).Msg("re-joining room after reconnect")
		c.transport.Send(signal.Envelope{
			Type:        signal.TypeJoin,
			RoomID:      roomID,
			InterviewID: interviewID,
			From:        c.clientID,
		})
	})

	return c
}

// ClientID returns the identifier this controller joins rooms with.
func (c *Controller) ClientID() string { return c.clientID }

// JoinRoom connects the transport (skipping when already connected), joins
// the room, acquires the local stream, and initializes the answerer-side
// negotiation engine.
func (c *Controller) JoinRoom(ctx context.Context, roomID, interviewID string) error {
	if c.transport.Status() != signal.StatusConnected {
		if err := c.transport.Connect(ctx); err != nil {
			return fmt.Errorf("connect transport: %w", err)
		}
	}

	if err := c.requestJoin(ctx, roomID, interviewID); err != nil {
		return err
	}

	// A re-triggered join (UI re-mount) finds a live engine holding the
	// already-acquired stream; opening the hardware again would orphan
	// those tracks and can fail with a busy device.
	c.mu.Lock()
	live := c.engine != nil && !c.engine.Closed()
	c.mu.Unlock()

	if !live {
		stream, err := c.devices.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire local media: %w", err)
		}

		engine, err := c.ensureEngine(roomID, stream)
		if err != nil {
			return fmt.Errorf("init negotiation engine: %w", err)
		}
		c.devices.AttachSenders(engine)
	}

	c.mu.Lock()
	c.roomID = roomID
	c.interviewID = interviewID
	c.mu.Unlock()

	c.log.Info().Str("room", roomID).Msg("joined room, waiting for offer")
	return nil
}

// requestJoin sends the join envelope and waits for the relay's ack.
func (c *Controller) requestJoin(ctx context.Context, roomID, interviewID string) error {
	ackCh := make(chan signal.Envelope, 1)
	cancel := c.transport.OnMessage(func(env signal.Envelope) {
		if env.Type == signal.TypeJoined && env.RoomID == roomID {
			select {
			case ackCh <- env:
			default:
			}
		}
	})
	defer cancel()

	c.transport.Send(signal.Envelope{
		Type:        signal.TypeJoin,
		RoomID:      roomID,
		InterviewID: interviewID,
		From:        c.clientID,
	})

	timer := time.NewTimer(joinAckTimeout)
	defer timer.Stop()

	select {
	case ack := <-ackCh:
		if !ack.Success {
			return fmt.Errorf("room join rejected: %s", ack.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("room join not acknowledged within %s", joinAckTimeout)
	}
}

// ensureEngine returns the existing engine while its connection is alive,
// preventing duplicate negotiation from a re-triggered join.
func (c *Controller) ensureEngine(roomID string, stream *media.Stream) (*peer.Engine, error) {
	c.mu.Lock()
	if c.engine != nil && !c.engine.Closed() {
		engine := c.engine
		c.mu.Unlock()
		// A concurrent join won the race; release the tracks opened for
		// the engine that never got built.
		stream.StopAll()
		return engine, nil
	}
	c.mu.Unlock()

	engine, err := c.newEngine(peer.RoleAnswerer, roomID, stream)
	if err != nil {
		return nil, err
	}

	var unwire []func()
	unwire = append(unwire, engine.OnOutbound(func(env signal.Envelope) {
		env.From = c.clientID
		c.transport.Send(env)
	}))
	unwire = append(unwire, c.transport.OnMessage(func(env signal.Envelope) {
		switch {
		case env.IsNegotiation() && (env.RoomID == "" || env.RoomID == roomID):
			engine.HandleSignal(env)
		case env.Type == signal.TypePeerJoin || env.Type == signal.TypePeerLeave:
			// Presence passes through to the UI layer unchanged.
			c.presence.Emit(env)
		}
	}))
	unwire = append(unwire, engine.OnEstablished(func() {
		c.established.Emit(struct{}{})
	}))
	unwire = append(unwire, engine.OnClosed(func() {
		c.callClosed.Emit(struct{}{})
	}))
	unwire = append(unwire, engine.OnFailed(func(err error) {
		c.callFailed.Emit(err)
	}))

	c.mu.Lock()
	c.engine = engine
	c.unwire = unwire
	c.mu.Unlock()
	return engine, nil
}

// Engine returns the active negotiation engine, or nil outside a call.
func (c *Controller) Engine() *peer.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Leave tears the session down: leave envelope, engine destroy (stops all
// local tracks), device release, transport disconnect.
func (c *Controller) Leave() {
	c.mu.Lock()
	roomID := c.roomID
	engine := c.engine
	unwire := c.unwire
	c.roomID = ""
	c.interviewID = ""
	c.engine = nil
	c.unwire = nil
	c.mu.Unlock()

	for _, cancel := range unwire {
		cancel()
	}

	if roomID != "" {
		c.transport.Send(signal.Envelope{
			Type:   signal.TypeLeave,
			RoomID: roomID,
			From:   c.clientID,
		})
	}

	c.devices.AttachSenders(nil)
	if engine != nil {
		engine.Destroy()
	}
	c.devices.Release()
	c.transport.Disconnect()
	c.log.Info().Str("room", roomID).Msg("left room")
}

// ──────────────────────────────────────────────────────────────────────────────
// Event surface for the UI layer
// ──────────────────────────────────────────────────────────────────────────────

// OnPresence receives peer-joined / peer-left envelopes unchanged.
func (c *Controller) OnPresence(fn func(signal.Envelope)) func() {
	return c.presence.Subscribe(fn)
}

// OnCallEstablished fires when the peer connection reaches connected.
func (c *Controller) OnCallEstablished(fn func()) func() {
	return c.established.Subscribe(func(struct{}) { fn() })
}

// OnCallClosed fires when the peer connection disconnects or closes.
func (c *Controller) OnCallClosed(fn func()) func() {
	return c.callClosed.Subscribe(func(struct{}) { fn() })
}

// OnCallFailed fires on terminal peer-connection failure.
func (c *Controller) OnCallFailed(fn func(error)) func() {
	return c.callFailed.Subscribe(fn)
}
