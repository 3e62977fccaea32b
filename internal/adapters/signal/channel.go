// Package signal implements the negotiation channel: a websocket to the
// gateway carrying newline-free JSON control messages. The gateway offers,
// this side answers; the channel never redials on its own.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

// message is the envelope for every frame in either direction.
type message struct {
	Type      string          `json:"type"`
	SDP       string          `json:"sdp,omitempty"`
	CameraID  string          `json:"camera_id,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Dialer opens channels against the gateway's /ws endpoint. The URL is
// produced per dial so a refreshed token is picked up.
type Dialer struct {
	watchURL func() string
}

func NewDialer(watchURL func() string) *Dialer {
	return &Dialer{watchURL: watchURL}
}

// Dial opens the websocket and queues the watch declaration. ctx bounds the
// handshake only; the pumps live with the connection, not with the caller's
// request context, and exit on Close or a transport error.
func (d *Dialer) Dial(ctx context.Context, camera domain.CameraID) (core.SignalChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.watchURL(), nil)
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		conn: conn,
		send: make(chan []byte, 32),
	}

	// The watch declaration goes out first so the gateway knows which
	// source to bind before it starts negotiating.
	if err := ch.enqueue(message{Type: "watch", CameraID: string(camera)}); err != nil {
		ch.Close()
		return nil, err
	}

	go ch.writePump()

	log.Info().Str("module", "signal").Str("camera", string(camera)).Msg("channel open")
	return ch, nil
}

type Channel struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
}

// Start begins dispatching inbound frames. Anything the gateway sent before
// Start waits in the socket buffer, nothing is dropped.
func (c *Channel) Start(ev core.SignalEvents) {
	go c.readLoop(ev)
}

func (c *Channel) enqueue(m message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.trySend(b)
}

func (c *Channel) trySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("channel closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

// SendAnswer transmits the local description verbatim, exactly as produced.
func (c *Channel) SendAnswer(desc webrtc.SessionDescription) error {
	b, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	return c.trySend(b)
}

func (c *Channel) SendCandidate(ci webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(ci)
	if err != nil {
		return err
	}
	return c.enqueue(message{Type: "ice", Candidate: raw})
}

func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *Channel) writePump() {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			return
		}
	}
}

func (c *Channel) readLoop(ev core.SignalEvents) {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeOnce.Do(func() {
				log.Info().Err(err).Str("module", "signal").Msg("channel closed")
				if ev.OnClosed != nil {
					ev.OnClosed(err)
				}
			})
			return
		}
		c.dispatch(ev, data)
	}
}

func (c *Channel) dispatch(ev core.SignalEvents, data []byte) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch m.Type {
	case "offer":
		if ev.OnOffer != nil {
			ev.OnOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP})
		}
	case "ice":
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(m.Candidate, &ci); err != nil {
			// Per-candidate failures are never fatal to the session.
			log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
			return
		}
		if ev.OnRemoteCandidate != nil {
			ev.OnRemoteCandidate(ci)
		}
	case "error":
		log.Warn().Str("module", "signal").Str("message", m.Message).Msg("gateway error")
		if ev.OnServerError != nil {
			ev.OnServerError(m.Message)
		}
	default:
		log.Warn().Str("module", "signal").Str("type", m.Type).Msg("unknown signal")
	}
}
