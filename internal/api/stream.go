package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Scan event types.
const (
	EventScan     = "scan"
	EventFeedback = "feedback"
)

// ScanEvent is pushed to stream subscribers after every completed scan or feedback report.
type ScanEvent struct {
	Type      string           `json:"type"`
	Scan      *AnalyzeResponse `json:"scan,omitempty"`
	Feedback  *FeedbackDTO     `json:"feedback,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

const (
	streamWriteWait  = 10 * time.Second
	streamBufferSize = 16
)

// wsClient is one stream subscriber. Events are queued on send and written by its own goroutine.
type wsClient struct {
	conn *websocket.Conn
	send chan ScanEvent
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan ScanEvent, streamBufferSize)}
}

// ScanNotifier keeps track of stream subscribers and fans scan events out to them. Broadcast never
// waits on the network; a subscriber whose queue is full is dropped.
type ScanNotifier struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	last    *ScanEvent
}

// NewScanNotifier constructs a notifier instance.
func NewScanNotifier() *ScanNotifier {
	return &ScanNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection, queues the most recent scan for it and starts its
// writer.
func (n *ScanNotifier) Register(conn *websocket.Conn) *wsClient {
	client := newWSClient(conn)
	n.add(client)
	go client.writePump()
	return client
}

func (n *ScanNotifier) add(client *wsClient) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clients[client] = struct{}{}
	if n.last != nil {
		client.send <- *n.last
	}
}

// Unregister removes the client and closes its socket.
func (n *ScanNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	n.removeLocked(client)
	n.mu.Unlock()
	if client.conn != nil {
		_ = client.conn.Close()
	}
}

// removeLocked closes the client's queue exactly once; its writer exits when the queue drains.
func (n *ScanNotifier) removeLocked(client *wsClient) {
	if _, ok := n.clients[client]; !ok {
		return
	}
	delete(n.clients, client)
	close(client.send)
}

// Broadcast queues the event for every subscriber.
func (n *ScanNotifier) Broadcast(event ScanEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	defer n.mu.Unlock()
	if event.Type == EventScan {
		snapshot := event
		n.last = &snapshot
	}
	for client := range n.clients {
		select {
		case client.send <- event:
		default:
			logrus.Warn("scan stream subscriber too slow, dropping")
			n.removeLocked(client)
		}
	}
}

// Subscribers returns the number of connected clients.
func (n *ScanNotifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

// LastScan returns a copy of the most recent scan event, if any.
func (n *ScanNotifier) LastScan() *ScanEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return nil
	}
	copied := *n.last
	return &copied
}

// writePump writes queued events until the queue is closed. A failed write closes the socket,
// which ends the reader in handleStream and unregisters the client.
func (c *wsClient) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for event := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := c.conn.WriteJSON(event); err != nil {
			logrus.WithError(err).Debug("scan stream write failed")
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func (s *Server) handleStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("scan stream connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("scan stream closed")
			} else {
				logrus.WithError(err).Warn("scan stream unexpected close")
			}
			break
		}
	}
}
