package peer

import (
	"github.com/pion/webrtc/v4"

	"github.com/lureka/callkit/internal/config"
	"github.com/lureka/callkit/internal/media"
	"github.com/lureka/callkit/internal/util"
)

// RemoteTrack is the slice of *webrtc.TrackRemote the engine needs to track
// remote stream assignment.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// Conn abstracts the underlying peer connection so the negotiation engine
// can be exercised against a fake in tests. *webrtc.PeerConnection (wrapped
// by pionConn) is the production implementation.
type Conn interface {
	AddTrack(webrtc.TrackLocal) (media.Sender, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	SignalingState() webrtc.SignalingState
	RemoteDescription() *webrtc.SessionDescription
	ConnectionState() webrtc.PeerConnectionState

	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(RemoteTrack))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))
	OnSignalingStateChange(func(webrtc.SignalingState))

	Close() error
}

// pionConn adapts *webrtc.PeerConnection to Conn.
type pionConn struct {
	pc *webrtc.PeerConnection
}

// NewConn creates a peer connection configured with the fixed ICE server
// list, routing pion's internal logs through the process logger.
func NewConn() (Conn, error) {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = util.PionLoggerFactory{}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.ICEServers(),
	})
	if err != nil {
		return nil, err
	}
	return &pionConn{pc: pc}, nil
}

func (c *pionConn) AddTrack(t webrtc.TrackLocal) (media.Sender, error) {
	return c.pc.AddTrack(t)
}

func (c *pionConn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConn) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sdp)
}

func (c *pionConn) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sdp)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *pionConn) RemoteDescription() *webrtc.SessionDescription {
	return c.pc.RemoteDescription()
}

func (c *pionConn) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

func (c *pionConn) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	c.pc.OnICECandidate(fn)
}

func (c *pionConn) OnTrack(fn func(RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (c *pionConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(fn)
}

func (c *pionConn) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	c.pc.OnICEConnectionStateChange(fn)
}

func (c *pionConn) OnSignalingStateChange(fn func(webrtc.SignalingState)) {
	c.pc.OnSignalingStateChange(fn)
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}
