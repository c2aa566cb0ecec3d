package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PeerSignal is the negotiation payload carried inside signal events. The
// server never looks at it; both ends of a voice link must agree on it.
type PeerSignal struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SendFunc delivers a payload to the peer with the given connection id.
type SendFunc func(to string, payload json.RawMessage) error

type peer struct {
	pc      *webrtc.PeerConnection
	pending []webrtc.ICECandidateInit
}

// Peers keeps one receive-only audio peer connection per remote
// participant. The side that learns about the other through a peers event
// offers; the other side answers.
type Peers struct {
	send   SendFunc
	api    *webrtc.API
	logger zerolog.Logger

	mu     sync.Mutex
	ice    []webrtc.ICEServer
	byID   map[string]*peer
	closed bool
}

func NewPeers(send SendFunc) *Peers {
	return &Peers{
		send:   send,
		api:    webrtc.NewAPI(),
		logger: log.With().Str("module", "client.peers").Logger(),
		byID:   make(map[string]*peer),
	}
}

// SetICEServers applies to links created afterwards.
func (p *Peers) SetICEServers(servers []webrtc.ICEServer) {
	p.mu.Lock()
	p.ice = servers
	p.mu.Unlock()
}

// Offer starts negotiating with id.
func (p *Peers) Offer(id string) error {
	pr, err := p.link(id)
	if err != nil {
		return err
	}
	offer, err := pr.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pr.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	return p.emit(id, PeerSignal{Type: SignalOffer, SDP: offer.SDP})
}

// Handle applies a payload received from id.
func (p *Peers) Handle(from string, payload json.RawMessage) error {
	var sig PeerSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return fmt.Errorf("decode peer signal: %w", err)
	}
	pr, err := p.link(from)
	if err != nil {
		return err
	}

	switch sig.Type {
	case SignalOffer:
		if err := pr.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		p.flush(from, pr)
		answer, err := pr.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := pr.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		return p.emit(from, PeerSignal{Type: SignalAnswer, SDP: answer.SDP})
	case SignalAnswer:
		if err := pr.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		p.flush(from, pr)
	case SignalCandidate:
		if sig.Candidate == nil {
			return nil
		}
		if pr.pc.RemoteDescription() == nil {
			p.mu.Lock()
			pr.pending = append(pr.pending, *sig.Candidate)
			p.mu.Unlock()
			return nil
		}
		if err := pr.pc.AddICECandidate(*sig.Candidate); err != nil {
			return fmt.Errorf("add candidate: %w", err)
		}
	default:
		p.logger.Debug().Str("from", from).Str("type", sig.Type).Msg("unknown peer signal")
	}
	return nil
}

// State reports the signaling state of the link with id.
func (p *Peers) State(id string) (webrtc.SignalingState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.byID[id]
	if !ok {
		return webrtc.SignalingStateUnknown, false
	}
	return pr.pc.SignalingState(), true
}

// Drop closes the link with id, e.g. when it left or disconnected.
func (p *Peers) Drop(id string) {
	p.mu.Lock()
	pr, ok := p.byID[id]
	delete(p.byID, id)
	p.mu.Unlock()
	if ok {
		_ = pr.pc.Close()
		p.logger.Debug().Str("peer", id).Msg("peer dropped")
	}
}

func (p *Peers) Close() {
	p.mu.Lock()
	p.closed = true
	links := p.byID
	p.byID = make(map[string]*peer)
	p.mu.Unlock()
	for _, pr := range links {
		_ = pr.pc.Close()
	}
}

func (p *Peers) link(id string) (*peer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if pr, ok := p.byID[id]; ok {
		return pr, nil
	}
	pc, err := p.api.NewPeerConnection(webrtc.Configuration{ICEServers: p.ice})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := c.ToJSON()
		if err := p.emit(id, PeerSignal{Type: SignalCandidate, Candidate: &cand}); err != nil {
			p.logger.Warn().Err(err).Str("peer", id).Msg("send candidate")
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Info().Str("peer", id).Str("state", s.String()).Msg("voice link")
	})

	pr := &peer{pc: pc}
	p.byID[id] = pr
	return pr, nil
}

func (p *Peers) flush(id string, pr *peer) {
	p.mu.Lock()
	pending := pr.pending
	pr.pending = nil
	p.mu.Unlock()
	for _, c := range pending {
		if err := pr.pc.AddICECandidate(c); err != nil {
			p.logger.Warn().Err(err).Str("peer", id).Msg("add queued candidate")
		}
	}
}

func (p *Peers) emit(to string, sig PeerSignal) error {
	raw, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return p.send(to, raw)
}
