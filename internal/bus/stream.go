package bus

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/switchboard/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// DefaultReplayCount is how many past events a new client receives.
	DefaultReplayCount = 100
)

// Stream forwards bus events to websocket clients as JSON, one event per
// text message. Clients receive recent history on connect unless they
// pass replay=false; count=N bounds the replay.
type Stream struct {
	bus      *Bus
	upgrader websocket.Upgrader
	log      zerolog.Logger
	subID    SubscriptionID

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewStream subscribes to every event on b.
func NewStream(b *Bus) *Stream {
	s := &Stream{
		bus: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     logging.For("stream"),
		clients: make(map[*streamClient]struct{}),
	}
	s.subID = b.Subscribe("", s.broadcast)
	return s
}

// ClientCount returns the number of connected clients.
func (s *Stream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	replay := r.URL.Query().Get("replay") != "false"
	count := DefaultReplayCount
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n >= 0 {
		count = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &streamClient{conn: conn, send: make(chan []byte, 256)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.wg.Add(2)
	s.mu.Unlock()

	s.log.Debug().Int("clients", s.ClientCount()).Msg("client connected")

	if replay {
		for _, event := range s.bus.Recent(count) {
			if data, err := json.Marshal(event); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		}
	}

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Stream) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal event")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			go s.drop(c)
		}
	}
}

func (s *Stream) drop(c *streamClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.once.Do(func() { close(c.send) })
		s.log.Debug().Int("clients", s.ClientCount()).Msg("client disconnected")
	}
}

func (s *Stream) writePump(c *streamClient) {
	defer s.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				go s.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				go s.drop(c)
				return
			}
		}
	}
}

func (s *Stream) readPump(c *streamClient) {
	defer s.wg.Done()
	defer s.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug().Err(err).Msg("websocket read")
			}
			return
		}
	}
}

// Close disconnects every client and stops receiving events.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*streamClient]struct{})
	s.mu.Unlock()

	_ = s.bus.Unsubscribe(s.subID)
	for _, c := range clients {
		c.once.Do(func() { close(c.send) })
	}
	s.wg.Wait()
}
