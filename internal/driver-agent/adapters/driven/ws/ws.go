package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"driver-agent/internal/driver-agent/core/domain/dto"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/mylogger"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	errorCodeAuthFailed = "auth_failed"
)

// AssignmentTransport subscribes to driver.{id}.assignments over a websocket.
// After dialing it authenticates with the bearer token and subscribes to the
// driver's destination.
type AssignmentTransport struct {
	urlFormat string
	token     string
	dialer    *websocket.Dialer
	log       mylogger.Logger
}

var _ driven.IAssignmentTransport = (*AssignmentTransport)(nil)

// NewAssignmentTransport takes a URL format with one %s for the driver id,
// e.g. ws://localhost:3001/ws/drivers/%s.
func NewAssignmentTransport(urlFormat, token string, handshakeTimeout time.Duration, log mylogger.Logger) *AssignmentTransport {
	return &AssignmentTransport{
		urlFormat: urlFormat,
		token:     token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		log: log,
	}
}

func Destination(driverID string) string {
	return "driver." + driverID + ".assignments"
}

func (t *AssignmentTransport) url(driverID string) string {
	if strings.Contains(t.urlFormat, "%s") {
		return fmt.Sprintf(t.urlFormat, driverID)
	}
	return t.urlFormat
}

func (t *AssignmentTransport) Subscribe(ctx context.Context, driverID string) (driven.ISubscription, error) {
	url := t.url(driverID)
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", myerrors.ErrTransport, url, err)
	}

	c := &connection{
		conn: conn,
		log:  t.log.Action("ws_subscription").With("driver_id", driverID),
		out:  make(chan []byte, 16),
	}
	if err := c.writeJSON(dto.AuthMessage{
		WebSocketMessage: dto.WebSocketMessage{Type: dto.MessageTypeAuth},
		Token:            "Bearer " + strings.TrimPrefix(t.token, "Bearer "),
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send auth: %v", myerrors.ErrTransport, err)
	}
	if err := c.writeJSON(dto.SubscribeMessage{
		WebSocketMessage: dto.WebSocketMessage{Type: dto.MessageTypeSubscribe},
		Destination:      Destination(driverID),
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send subscribe: %v", myerrors.ErrTransport, err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go c.keepalive(done)
	go c.readLoop(ctx, done)

	c.log.Info("websocket subscribed", "url", url)
	return c, nil
}

type connection struct {
	conn *websocket.Conn
	log  mylogger.Logger
	wmu  sync.Mutex

	out chan []byte
	// err is written before out is closed
	err error
}

func (c *connection) Payloads() <-chan []byte { return c.out }

func (c *connection) Err() error { return c.err }

func (c *connection) writeJSON(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *connection) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *connection) readLoop(ctx context.Context, done chan<- struct{}) {
	defer close(c.out)
	defer close(done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("websocket read failed", "error", err.Error())
				c.err = fmt.Errorf("%w: read: %v", myerrors.ErrTransport, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			continue
		}

		var envelope dto.WebSocketMessage
		_ = json.Unmarshal(payload, &envelope)
		switch envelope.Type {
		case dto.MessageTypePing:
			if err := c.writeJSON(dto.WebSocketMessage{Type: dto.MessageTypePong}); err != nil {
				c.log.Warn("pong failed", "error", err.Error())
				c.err = fmt.Errorf("%w: pong: %v", myerrors.ErrTransport, err)
				return
			}
			continue
		case dto.MessageTypePong:
			continue
		case dto.MessageTypeError:
			var msg dto.ErrorMessage
			_ = json.Unmarshal(payload, &msg)
			err := fmt.Errorf("%w: %s: %s", myerrors.ErrProtocol, msg.ErrorCode, msg.ErrorMessage)
			c.log.Error("dispatch server rejected the subscription", err)
			if msg.ErrorCode == errorCodeAuthFailed {
				c.err = err
				return
			}
			continue
		}

		// everything else, including undecodable frames, goes to the
		// connection's validator
		select {
		case c.out <- payload:
		case <-ctx.Done():
			return
		}
	}
}
