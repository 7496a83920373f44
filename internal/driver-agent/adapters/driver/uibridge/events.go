package uibridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/event"
	"driver-agent/internal/mylogger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	TypeSnapshot = "session.snapshot"

	egressBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the bridge only listens for the local UI
	CheckOrigin: func(*http.Request) bool { return true },
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventStream fans bus events out to connected UI websockets. A client that
// falls behind loses events rather than blocking the publisher.
type EventStream struct {
	bus      *event.Bus
	snapshot func() model.DriverView
	log      mylogger.Logger
	subID    uint64

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn   *websocket.Conn
	egress chan []byte
	done   chan struct{}
	once   sync.Once

	// events that arrive before the snapshot is queued wait in backlog;
	// both fields are guarded by EventStream.mu
	ready   bool
	backlog [][]byte
}

func NewEventStream(bus *event.Bus, snapshot func() model.DriverView, log mylogger.Logger) *EventStream {
	s := &EventStream{
		bus:      bus,
		snapshot: snapshot,
		log:      log.Action("ui_events"),
		clients:  make(map[*streamClient]struct{}),
	}
	s.subID = bus.SubscribeAll(s.broadcast)
	return s
}

// Handle upgrades the request and streams events until the client goes away.
func (s *EventStream) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("cannot upgrade", err)
		return
	}

	client := &streamClient{
		conn:   conn,
		egress: make(chan []byte, egressBuffer),
		done:   make(chan struct{}),
	}
	if !s.add(client) {
		client.close()
		return
	}
	s.start(client)
	s.log.Debug("ui client connected", "remote", c.Request.RemoteAddr)

	go client.writeLoop()
	client.readLoop()

	s.remove(client)
	client.close()
	s.log.Debug("ui client disconnected", "remote", c.Request.RemoteAddr)
}

// Close unsubscribes from the bus and disconnects every client.
func (s *EventStream) Close() {
	s.bus.Unsubscribe(s.subID)

	s.mu.Lock()
	s.closed = true
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*streamClient]struct{})
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *EventStream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *EventStream) broadcast(e event.Event) {
	data, err := json.Marshal(envelope{Type: e.EventType(), Data: e})
	if err != nil {
		s.log.Error("cannot encode event", err, "type", e.EventType())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if !c.ready {
			c.backlog = append(c.backlog, data)
			continue
		}
		select {
		case c.egress <- data:
		default:
			s.log.Warn("ui client is slow, event dropped", "type", e.EventType())
		}
	}
}

func (s *EventStream) add(c *streamClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

// start queues the snapshot for a registered client, followed by whatever
// was published while the snapshot was being taken.
func (s *EventStream) start(c *streamClient) {
	if first, err := json.Marshal(envelope{Type: TypeSnapshot, Data: s.snapshot()}); err == nil {
		c.egress <- first
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, data := range c.backlog {
		select {
		case c.egress <- data:
		default:
			s.log.Warn("ui client backlog overflow, event dropped")
		}
	}
	c.backlog = nil
	c.ready = true
}

func (s *EventStream) remove(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readLoop discards client frames and returns once the connection drops.
func (c *streamClient) readLoop() {
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}
