// Package client is a websocket client for the space server. It joins a
// space, pushes pose updates, relays negotiation payloads and keeps an
// interpolation buffer fed with the snapshots it receives.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/pkg/interp"
	"github.com/dkeye/Space/pkg/pose"
	"github.com/dkeye/Space/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("client closed")

// Event is one server message. Raw holds the full frame for callers that
// want fields the client does not track.
type Event struct {
	Type string
	Raw  json.RawMessage
}

type Options struct {
	// Interp configures the snapshot buffer.
	Interp interp.Options
	// EventBuffer is the capacity of the Events channel. Events that do not
	// fit are dropped.
	EventBuffer int
}

type Client struct {
	conn   *websocket.Conn
	buffer *interp.Buffer
	events chan Event
	done   chan struct{}
	logger zerolog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	id     string
	space  string
	closed bool
}

// Dial connects to the websocket endpoint at url, e.g.
// ws://localhost:8080/api/ws.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	c := &Client{
		conn:   conn,
		buffer: interp.New(opts.Interp),
		events: make(chan Event, opts.EventBuffer),
		done:   make(chan struct{}),
		logger: log.With().Str("module", "client").Logger(),
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.pingPump()
	return c, nil
}

// ID is the connection id assigned by the server, known after the first
// initial-info event.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) Buffer() *interp.Buffer { return c.buffer }

// Events is closed when the connection ends.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) Join(space, nickname string) error {
	return c.write(protocol.Join{Type: protocol.TypeJoin, SpaceName: space, Nickname: nickname})
}

func (c *Client) SendPose(u pose.Update) error {
	return c.write(protocol.PoseUpdate{Type: protocol.TypePoseUpdate, Update: u})
}

// Signal sends payload to peer `to`. The client fills in its own id.
func (c *Client) Signal(to string, payload json.RawMessage) error {
	return c.write(protocol.Signal{Type: protocol.TypeSignal, From: c.ID(), To: to, Payload: payload})
}

func (c *Client) Leave() error {
	return c.write(protocol.Envelope{Type: protocol.TypeLeave})
}

func (c *Client) Ping() error {
	return c.write(protocol.Envelope{Type: protocol.TypePing})
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(v any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.events)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn().Err(err).Msg("bad frame")
			continue
		}
		c.track(env.Type, data)

		select {
		case c.events <- Event{Type: env.Type, Raw: data}:
		default:
			c.logger.Debug().Str("type", env.Type).Msg("event dropped")
		}
	}
}

// track updates local state from events the client understands.
func (c *Client) track(typ string, data []byte) {
	switch typ {
	case protocol.TypeInitialInfo:
		var m protocol.InitialInfo
		if json.Unmarshal(data, &m) != nil {
			return
		}
		c.mu.Lock()
		changed := c.space != m.Participant.SpaceName
		c.id, c.space = m.ID, m.Participant.SpaceName
		c.mu.Unlock()
		if changed {
			c.buffer.Reset()
		}
	case protocol.TypeSnapshot:
		var m protocol.SnapshotMessage
		if json.Unmarshal(data, &m) != nil {
			return
		}
		c.buffer.Add(m.Snapshot)
	case protocol.TypeLeft:
		var m protocol.Departure
		if json.Unmarshal(data, &m) != nil || m.ID != c.ID() {
			return
		}
		c.mu.Lock()
		c.space = ""
		c.mu.Unlock()
		c.buffer.Reset()
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
