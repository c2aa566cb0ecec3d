// Package protocol defines the websocket events exchanged between the space
// server and its clients. Every frame is a JSON object with a "type" field;
// the remaining fields depend on the type.
package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Space/pkg/pose"
)

// Client -> server
const (
	TypeJoin       = "join"
	TypePoseUpdate = "pose-update"
	TypeSignal     = "signal"
	TypeLeave      = "leave"
	TypePing       = "ping"
)

// Server -> client
const (
	TypeInitialInfo       = "initial-info"
	TypePeers             = "peers"
	TypeOtherParticipants = "other-participants"
	TypeJoined            = "joined"
	TypeSnapshot          = "snapshot"
	TypeSpaceFull         = "space-full"
	TypeDisconnected      = "disconnected"
	TypeLeft              = "left"
	TypeICEServers        = "ice-servers"
	TypePong              = "pong"
	TypeError             = "error"
)

// Envelope is decoded first to dispatch on Type.
type Envelope struct {
	Type string `json:"type"`
}

type Join struct {
	Type      string `json:"type"`
	SpaceName string `json:"spaceName" validate:"required,max=64"`
	Nickname  string `json:"nickname"`
}

type PoseUpdate struct {
	Type string `json:"type"`
	pose.Update
}

// Signal travels both ways. Inbound it names the target in To; outbound the
// server drops To and keeps From. Payload is never inspected.
type Signal struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Snapshot is a timestamped copy of every other participant in the space.
// Time is in unix milliseconds and strictly increases per receiver.
type Snapshot struct {
	ID    string             `json:"id"`
	Time  int64              `json:"time"`
	State []pose.Participant `json:"state"`
}

type SnapshotMessage struct {
	Type string `json:"type"`
	Snapshot
}

type InitialInfo struct {
	Type        string             `json:"type"`
	ID          string             `json:"id"`
	Participant pose.Participant   `json:"participant"`
	ICEServers  []webrtc.ICEServer `json:"iceServers"`
}

type Peers struct {
	Type  string   `json:"type"`
	Peers []string `json:"peers"`
}

type Joined struct {
	Type        string           `json:"type"`
	ID          string           `json:"id"`
	Participant pose.Participant `json:"participant"`
}

// Departure is sent as "disconnected" to everyone and as "left" to the
// remaining members of a space.
type Departure struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type SpaceFull struct {
	Type      string `json:"type"`
	SpaceName string `json:"spaceName"`
}

type ICEServers struct {
	Type       string             `json:"type"`
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func Pong() Envelope { return Envelope{Type: TypePong} }

func NewError(msg string) Error { return Error{Type: TypeError, Error: msg} }
