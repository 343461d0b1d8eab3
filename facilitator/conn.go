package facilitator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	apperrors "github.com/dsgolman/supportai-bot-sub000/errors"
)

// ConnConfig describes one dial of the facilitator streaming endpoint.
// The endpoint is keyed by (api key, config id, optional resume token).
type ConnConfig struct {
	Endpoint         string
	APIKey           string
	ConfigID         string
	ConversationID   string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// Dialer opens facilitator connections. Injectable so the manager can be
// exercised without a live endpoint.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnConfig) (contract.FacilitatorConn, error)
}

type wsDialer struct {
	log *slog.Logger
}

func NewWSDialer(log *slog.Logger) Dialer {
	return wsDialer{log: log}
}

func (d wsDialer) Dial(ctx context.Context, cfg ConnConfig) (contract.FacilitatorConn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("X-Config-Id", cfg.ConfigID)
	if cfg.ConversationID != "" {
		header.Set("X-Resume-Id", cfg.ConversationID)
	}

	ws, _, err := dialer.DialContext(ctx, cfg.Endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("facilitator dial failed: %w", err)
	}

	conn := &wsConn{
		log:            d.log,
		ws:             ws,
		conversationID: cfg.ConversationID,
		readTimeout:    cfg.ReadTimeout,
		writeTimeout:   cfg.WriteTimeout,
		events:         make(chan contract.FacilitatorEvent, 64),
	}

	_ = ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	go conn.readLoop()
	return conn, nil
}

// wsConn wraps one gorilla websocket to the facilitator endpoint.
// Writes are serialized by writeMu; the read loop is the only reader and
// closes the events channel when the stream dies.
type wsConn struct {
	log            *slog.Logger
	ws             *websocket.Conn
	conversationID string
	readTimeout    time.Duration
	writeTimeout   time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
	events  chan contract.FacilitatorEvent
}

func (c *wsConn) ConversationID() string { return c.conversationID }

func (c *wsConn) Alive() bool { return !c.closed.Load() }

func (c *wsConn) Events() <-chan contract.FacilitatorEvent { return c.events }

// SendText forwards relayed user text as a JSON frame.
func (c *wsConn) SendText(ctx context.Context, text string) error {
	if c.closed.Load() {
		return apperrors.ErrConnClosed
	}
	frame, err := json.Marshal(clientEvent{Kind: KindUserText, Text: text})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("facilitator write failed: %w", err)
	}
	return nil
}

// Ping issues the liveness probe. A failed control write means the
// connection is gone; pong handling extends the read deadline.
func (c *wsConn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return apperrors.ErrConnClosed
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("facilitator probe failed: %w", err)
	}
	return nil
}

// Close is idempotent. It marks the handle dead before tearing the socket
// down so Alive flips immediately for concurrent readers.
func (c *wsConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.ws.Close()
}

// readLoop decodes inbound frames until the socket dies, then closes the
// events channel so the manager can run its disconnect path.
func (c *wsConn) readLoop() {
	defer close(c.events)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Swap(true) {
				c.log.Debug("Facilitator stream ended", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))

		var evt serverEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			c.log.Warn("Undecodable facilitator frame", "error", err)
			continue
		}
		c.events <- contract.FacilitatorEvent{
			Kind:  evt.Kind,
			Text:  evt.Text,
			Audio: evt.Audio,
			MIME:  evt.MIME,
		}
	}
}
