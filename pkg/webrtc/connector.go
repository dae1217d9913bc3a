package webrtc

import (
	"fmt"
	"log/slog"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"github.com/startuphub/callhub/pkg/call"
)

const receiveMTU uint = 1400

// Config holds the configuration shared by all peer connections a
// Connector creates.
type Config struct {
	ICEServers []string
}

// Connector creates pion-backed peer connections for the coordinator. One
// shared webrtc.API with a tuned SettingEngine manages every connection in
// the process.
type Connector struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ call.PeerConnector = (*Connector)(nil)

// NewConnector builds a connector. With no ICE servers configured a public
// STUN server is used so connections can still traverse simple NATs.
func NewConnector(config Config) *Connector {
	settings := webrtc.SettingEngine{}
	settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	settings.SetReceiveMTU(receiveMTU)

	urls := config.ICEServers
	if len(urls) == 0 {
		urls = []string{"stun:stun.l.google.com:19302"}
	}
	var servers []webrtc.ICEServer
	for _, url := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}

	return &Connector{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		config: webrtc.Configuration{ICEServers: servers},
	}
}

// NewPeerConnection creates the connection for one remote peer.
func (c *Connector) NewPeerConnection(peerID string) (call.PeerConnection, error) {
	pc, err := c.api.NewPeerConnection(c.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &Conn{peerID: peerID, pc: pc}, nil
}

// Conn wraps a single pion peer connection behind the coordinator's
// PeerConnection contract.
type Conn struct {
	peerID string
	pc     *webrtc.PeerConnection
}

var _ call.PeerConnection = (*Conn)(nil)

func (c *Conn) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return offer, nil
}

func (c *Conn) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return answer, nil
}

func (c *Conn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *Conn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *Conn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

// OnICECandidate forwards locally gathered candidates. The nil candidate
// pion uses to signal end-of-gathering is filtered out here.
func (c *Conn) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			f(candidate.ToJSON())
		}
	})
}

// OnConnectionStateChange collapses pion's connection states into the two
// transitions the coordinator acts on.
func (c *Conn) OnConnectionStateChange(f func(connected, failed bool)) {
	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("connection state", "peer", c.peerID, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			f(true, false)
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			f(false, true)
		}
	})
}

func (c *Conn) Close() error {
	return c.pc.Close()
}
