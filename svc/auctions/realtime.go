package auctions

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"encore.app/pkg/config"
	"encore.app/pkg/metrics"
	"encore.app/pkg/ratelimit"
	"encore.dev/beta/auth"
)

// EventType represents the type of auction event
type EventType string

const (
	EventBidPlaced  EventType = "bid_placed"
	EventOutbid     EventType = "outbid"
	EventEnded      EventType = "ended"
	EventCancelled  EventType = "cancelled"
	EventBidRemoved EventType = "bid_removed"
	EventHeartbeat  EventType = "heartbeat"
)

// AuctionEvent represents a real-time auction event
type AuctionEvent struct {
	EventType EventType   `json:"event"`
	AuctionID int64       `json:"auction_id"`
	Data      interface{} `json:"data"`
	// TargetUserIDs limits delivery to specific users; empty means all
	// watchers of the auction.
	TargetUserIDs []int64 `json:"-"`
}

// Client represents one connected watcher of an auction
type Client struct {
	ID        string
	AuctionID int64
	UserID    *int64 // nil for anonymous
	Conn      *websocket.Conn
	LastSeen  time.Time
	Done      chan bool
	mu        sync.Mutex
}

// Hub manages client connections and event fan-out
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *AuctionEvent
	mu         sync.RWMutex
}

// RealtimeService pushes auction events to connected clients
type RealtimeService struct {
	hub *Hub
}

var (
	realtimeService *RealtimeService
	realtimeMu      sync.RWMutex
)

// GetRealtimeService returns the realtime service instance, or nil if
// realtime is not initialized.
func GetRealtimeService() *RealtimeService {
	realtimeMu.RLock()
	defer realtimeMu.RUnlock()
	return realtimeService
}

// SetRealtimeService sets the realtime service instance
func SetRealtimeService(s *RealtimeService) {
	realtimeMu.Lock()
	defer realtimeMu.Unlock()
	realtimeService = s
}

// NewRealtimeService creates the realtime service and starts its hub
func NewRealtimeService() *RealtimeService {
	hub := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *AuctionEvent, 64),
	}
	s := &RealtimeService{hub: hub}
	go hub.run()
	go s.startHeartbeat()
	SetRealtimeService(s)
	return s
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			metrics.WSConnections.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Done)
				metrics.WSConnections.Dec()
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				if client.AuctionID != event.AuctionID {
					continue
				}
				if len(event.TargetUserIDs) > 0 {
					if client.UserID == nil || !containsID(event.TargetUserIDs, *client.UserID) {
						continue
					}
				}
				go client.send(event)
			}
			h.mu.RUnlock()
		}
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (c *Client) send(event *AuctionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.Conn.WriteJSON(event); err != nil {
		log.Printf("Error sending event to client %s: %v", c.ID, err)
		select {
		case c.Done <- true:
		default:
		}
		return
	}
	c.LastSeen = time.Now().UTC()
}

// startHeartbeat pings all clients periodically so dead connections drop
func (s *RealtimeService) startHeartbeat() {
	interval := time.Duration(config.GetSettings().WSHeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		s.hub.mu.RLock()
		clients := make([]*Client, 0, len(s.hub.clients))
		for _, c := range s.hub.clients {
			clients = append(clients, c)
		}
		s.hub.mu.RUnlock()

		for _, c := range clients {
			go c.send(&AuctionEvent{
				EventType: EventHeartbeat,
				AuctionID: c.AuctionID,
				Data:      map[string]interface{}{"timestamp": time.Now().UTC().Unix()},
			})
		}
	}
}

// Broadcast helpers. All are fire-and-forget: a full broadcast channel
// drops the event rather than blocking the caller.

func (s *RealtimeService) publish(event *AuctionEvent) error {
	select {
	case s.hub.broadcast <- event:
		return nil
	default:
		return fmt.Errorf("broadcast channel full, dropping %s event for auction %d", event.EventType, event.AuctionID)
	}
}

// BroadcastBidPlaced notifies all watchers of a new accepted bid
func (s *RealtimeService) BroadcastBidPlaced(ctx context.Context, auctionID int64, data *BidPlacedEventData) error {
	return s.publish(&AuctionEvent{EventType: EventBidPlaced, AuctionID: auctionID, Data: data})
}

// BroadcastOutbid notifies only the outbid users
func (s *RealtimeService) BroadcastOutbid(ctx context.Context, auctionID int64, userIDs []int64, newAmount float64) error {
	return s.publish(&AuctionEvent{
		EventType:     EventOutbid,
		AuctionID:     auctionID,
		Data:          map[string]interface{}{"new_amount": newAmount},
		TargetUserIDs: userIDs,
	})
}

// BroadcastEnded notifies all watchers that the auction closed
func (s *RealtimeService) BroadcastEnded(ctx context.Context, auctionID int64, data *EndedEventData) error {
	return s.publish(&AuctionEvent{EventType: EventEnded, AuctionID: auctionID, Data: data})
}

// BroadcastCancelled notifies all watchers that the auction was cancelled
func (s *RealtimeService) BroadcastCancelled(ctx context.Context, auctionID int64, reason string) error {
	return s.publish(&AuctionEvent{
		EventType: EventCancelled,
		AuctionID: auctionID,
		Data:      map[string]interface{}{"reason": reason},
	})
}

// BroadcastBidRemoved notifies all watchers that a bid was removed and what
// the recomputed current price is.
func (s *RealtimeService) BroadcastBidRemoved(ctx context.Context, auctionID int64, bidID int64, currentPrice float64) error {
	return s.publish(&AuctionEvent{
		EventType: EventBidRemoved,
		AuctionID: auctionID,
		Data:      map[string]interface{}{"bid_id": bidID, "current_price": currentPrice},
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsGate throttles connection attempts per client IP before the upgrade,
// so one misbehaving client cannot churn the hub.
var wsGate = ratelimit.RateLimitMiddleware(
	ratelimit.NewRateLimiter(ratelimit.WSConnectRateLimit),
	ratelimit.IPBasedKeyFunc("ws_connect"),
)(http.HandlerFunc(serveWebSocket))

// HandleWebSocket streams live auction events for one auction
//
//encore:api public raw method=GET path=/auctions/:id/ws
func HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	wsGate.ServeHTTP(w, req)
}

func serveWebSocket(w http.ResponseWriter, req *http.Request) {
	settings := config.GetSettings()
	if !settings.WSEnabled {
		http.Error(w, "realtime updates are disabled", http.StatusServiceUnavailable)
		return
	}

	pathParts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	var auctionIDStr string
	for i, part := range pathParts {
		if part == "auctions" && i+1 < len(pathParts) {
			auctionIDStr = pathParts[i+1]
			break
		}
	}
	auctionID, err := strconv.ParseInt(auctionIDStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid auction ID", http.StatusBadRequest)
		return
	}

	service := GetRealtimeService()
	if service == nil {
		http.Error(w, "realtime service not available", http.StatusServiceUnavailable)
		return
	}

	service.hub.mu.RLock()
	connected := len(service.hub.clients)
	service.hub.mu.RUnlock()
	if settings.WSMaxConnections > 0 && connected >= settings.WSMaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var userID *int64
	if uid, ok := auth.UserID(); ok {
		if uidInt64, err := strconv.ParseInt(string(uid), 10, 64); err == nil {
			userID = &uidInt64
		}
	}

	client := &Client{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		UserID:    userID,
		Conn:      conn,
		LastSeen:  time.Now().UTC(),
		Done:      make(chan bool),
	}

	service.hub.register <- client

	client.send(&AuctionEvent{
		EventType: EventHeartbeat,
		AuctionID: auctionID,
		Data:      map[string]interface{}{"timestamp": time.Now().UTC().Unix()},
	})

	go readPump(client, service)

	select {
	case <-req.Context().Done():
		service.hub.unregister <- client
	case <-client.Done:
	}
}

// readPump drains client messages and keeps the connection alive
func readPump(client *Client, service *RealtimeService) {
	conn := client.Conn
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		client.LastSeen = time.Now().UTC()
		return nil
	})

	for {
		messageType, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		client.LastSeen = time.Now().UTC()

		if messageType == websocket.PingMessage {
			conn.WriteMessage(websocket.PongMessage, nil)
		}
	}

	service.hub.unregister <- client
}
