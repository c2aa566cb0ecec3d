package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Space/pkg/client"
	"github.com/dkeye/Space/pkg/interp"
	"github.com/dkeye/Space/pkg/pose"
	"github.com/dkeye/Space/pkg/protocol"
)

var (
	flagSpace    string
	flagNickname string
	flagRadius   float64
	flagSpeed    float64
	flagRate     int
	flagVoice    bool
)

var errSpaceFull = errors.New("space full")

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Join a space and walk in a circle",
	RunE: func(cmd *cobra.Command, args []string) error {
		wsURL, err := websocketURL(flagServer)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		c, err := client.Dial(ctx, wsURL, client.Options{Interp: interp.Options{Period: time.Second / 60}})
		if err != nil {
			return err
		}
		defer c.Close()

		var peers *client.Peers
		if flagVoice {
			peers = client.NewPeers(c.Signal)
			defer peers.Close()
		}
		if err := c.Join(flagSpace, flagNickname); err != nil {
			return err
		}

		rate := flagRate
		if rate <= 0 {
			rate = 30
		}
		move := time.NewTicker(time.Second / time.Duration(rate))
		defer move.Stop()
		report := time.NewTicker(time.Second)
		defer report.Stop()

		start := time.Now()
		for {
			select {
			case <-ctx.Done():
				_ = c.Leave()
				return nil
			case ev, ok := <-c.Events():
				if !ok {
					return errors.New("connection closed by server")
				}
				if err := handleEvent(peers, ev); err != nil {
					return err
				}
			case now := <-move.C:
				if err := c.SendPose(circle(now.Sub(start))); err != nil {
					return err
				}
			case now := <-report.C:
				logPeers(c.Buffer(), now)
			}
		}
	},
}

func init() {
	walkCmd.Flags().StringVar(&flagSpace, "space", "lobby", "space to join")
	walkCmd.Flags().StringVar(&flagNickname, "nickname", "spacebot", "display name")
	walkCmd.Flags().Float64Var(&flagRadius, "radius", 2, "circle radius")
	walkCmd.Flags().Float64Var(&flagSpeed, "speed", 1, "angular speed in rad/s")
	walkCmd.Flags().IntVar(&flagRate, "rate", 30, "pose updates per second")
	walkCmd.Flags().BoolVar(&flagVoice, "voice", false, "negotiate receive-only voice links with peers")
	rootCmd.AddCommand(walkCmd)
}

// websocketURL turns http(s)://host into ws(s)://host/api/ws.
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws"
	return u.String(), nil
}

// circle is the pose at elapsed time along a circle around the arena center,
// facing the direction of travel.
func circle(elapsed time.Duration) pose.Update {
	angle := elapsed.Seconds() * flagSpeed
	x := 3.5 + flagRadius*math.Cos(angle)
	z := 3.5 + flagRadius*math.Sin(angle)
	half := -angle / 2
	yaw := pose.Quat{Y: math.Sin(half), W: math.Cos(half)}
	return pose.Update{
		Body: &pose.Delta{
			Position:    &pose.VecDelta{X: &x, Z: &z},
			Orientation: &yaw,
		},
		Head: &pose.Delta{Orientation: &yaw},
	}
}

func handleEvent(peers *client.Peers, ev client.Event) error {
	switch ev.Type {
	case protocol.TypeSpaceFull:
		return fmt.Errorf("%w: %s", errSpaceFull, flagSpace)
	case protocol.TypeInitialInfo:
		var m protocol.InitialInfo
		if err := json.Unmarshal(ev.Raw, &m); err != nil {
			return err
		}
		log.Info().Str("module", "spacebot").Str("id", m.ID).Str("space", m.Participant.SpaceName).Msg("joined")
		if peers != nil {
			peers.SetICEServers(m.ICEServers)
		}
	case protocol.TypeICEServers:
		var m protocol.ICEServers
		if err := json.Unmarshal(ev.Raw, &m); err == nil && peers != nil {
			peers.SetICEServers(m.ICEServers)
		}
	case protocol.TypePeers:
		var m protocol.Peers
		if err := json.Unmarshal(ev.Raw, &m); err != nil || peers == nil {
			return err
		}
		for _, id := range m.Peers {
			if err := peers.Offer(id); err != nil {
				log.Warn().Err(err).Str("module", "spacebot").Str("peer", id).Msg("offer failed")
			}
		}
	case protocol.TypeSignal:
		var m protocol.Signal
		if err := json.Unmarshal(ev.Raw, &m); err != nil || peers == nil {
			return err
		}
		if err := peers.Handle(m.From, m.Payload); err != nil {
			log.Warn().Err(err).Str("module", "spacebot").Str("peer", m.From).Msg("signal failed")
		}
	case protocol.TypeJoined:
		var m protocol.Joined
		if err := json.Unmarshal(ev.Raw, &m); err == nil {
			log.Info().Str("module", "spacebot").Str("peer", m.ID).Str("nickname", m.Participant.Nickname).Msg("peer joined")
		}
	case protocol.TypeLeft, protocol.TypeDisconnected:
		var m protocol.Departure
		if err := json.Unmarshal(ev.Raw, &m); err == nil {
			log.Info().Str("module", "spacebot").Str("peer", m.ID).Str("reason", ev.Type).Msg("peer gone")
			if peers != nil {
				peers.Drop(m.ID)
			}
		}
	case protocol.TypeError:
		var m protocol.Error
		if err := json.Unmarshal(ev.Raw, &m); err == nil {
			log.Warn().Str("module", "spacebot").Str("error", m.Error).Msg("server rejected message")
		}
	}
	return nil
}

func logPeers(buf *interp.Buffer, now time.Time) {
	state, ok := buf.Render(now)
	if !ok {
		return
	}
	for id, p := range state {
		log.Info().
			Str("module", "spacebot").
			Str("peer", id).
			Str("nickname", p.Nickname).
			Float64("x", p.Body.Position.X).
			Float64("z", p.Body.Position.Z).
			Msg("peer pose")
	}
}
