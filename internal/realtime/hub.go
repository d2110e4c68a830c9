package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"proctora-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub owns the sockets. Session groups fan out through redis pub/sub,
// one subscription per active group, so every process relays group
// events to its local members.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*client
	groups      map[string]map[string]struct{}
	memberships map[string]string
	cancelFuncs map[string]context.CancelFunc
	redisClient *redis.Client
	jwtSecret   []byte
	coordinator Coordinator
}

// Coordinator is the command surface the hub dispatches inbound frames
// to; satisfied by *exam.Coordinator.
type Coordinator interface {
	HandleCommand(ctx context.Context, sender Sender, action string, payload json.RawMessage) (interface{}, error)
	HandleDisconnect(ctx context.Context, connID string)
}

// Sender identifies the authenticated actor behind one socket.
type Sender struct {
	ConnID string
	UserID uuid.UUID
	Role   string
}

func NewHub(redisClient *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		clients:     make(map[string]*client),
		groups:      make(map[string]map[string]struct{}),
		memberships: make(map[string]string),
		cancelFuncs: make(map[string]context.CancelFunc),
		redisClient: redisClient,
		jwtSecret:   []byte(jwtSecret),
	}
}

// Bind wires the command handler in after construction; the coordinator
// needs the hub as its notifier, so the two cannot be built in one shot.
func (h *Hub) Bind(coordinator Coordinator) {
	h.coordinator = coordinator
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userIDStr, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role, _ := claims["role"].(string)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	connID := uuid.NewString()
	sender := Sender{ConnID: connID, UserID: userID, Role: role}

	h.mu.Lock()
	h.clients[connID] = &client{conn: conn}
	h.mu.Unlock()
	log.Printf("WebSocket connected: user %s conn %s", userID, connID)

	go h.readLoop(sender, conn)
}

func (h *Hub) readLoop(sender Sender, conn *websocket.Conn) {
	defer func() {
		h.coordinator.HandleDisconnect(context.Background(), sender.ConnID)
		h.removeClient(sender.ConnID)
		conn.Close()
		log.Printf("WebSocket disconnected: user %s conn %s", sender.UserID, sender.ConnID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrame(sender, data)
	}
}

func (h *Hub) handleFrame(sender Sender, data []byte) {
	var frame struct {
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Action == "" {
		h.sendResult(sender.ConnID, "", nil, errInvalidFrame)
		return
	}

	result, err := h.coordinator.HandleCommand(context.Background(), sender, frame.Action, frame.Payload)
	h.sendResult(sender.ConnID, frame.Action, result, err)
}

func (h *Hub) removeClient(connID string) {
	h.LeaveGroup(connID)
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
}

// JoinGroup adds the connection to a session's broadcast group and
// starts the group's pub/sub relay on first membership.
func (h *Hub) JoinGroup(groupCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.memberships[connID]; ok && prev != groupCode {
		h.removeFromGroupLocked(prev, connID)
	}
	h.memberships[connID] = groupCode

	members, ok := h.groups[groupCode]
	if !ok {
		members = make(map[string]struct{})
		h.groups[groupCode] = members
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[groupCode] = cancel
		go h.subscribeToGroup(ctx, groupCode)
	}
	members[connID] = struct{}{}
}

func (h *Hub) LeaveGroup(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	groupCode, ok := h.memberships[connID]
	if !ok {
		return
	}
	delete(h.memberships, connID)
	h.removeFromGroupLocked(groupCode, connID)
}

func (h *Hub) removeFromGroupLocked(groupCode, connID string) {
	members, ok := h.groups[groupCode]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.groups, groupCode)
		if cancel, ok := h.cancelFuncs[groupCode]; ok {
			cancel()
			delete(h.cancelFuncs, groupCode)
		}
	}
}

func (h *Hub) subscribeToGroup(ctx context.Context, groupCode string) {
	channel := "session_updates:" + groupCode
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcastLocal(groupCode, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcastLocal(groupCode string, data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.groups[groupCode]))
	for connID := range h.groups[groupCode] {
		if c, ok := h.clients[connID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(data)
	}
}

// SendToConnection delivers one event to one socket. Fire-and-forget.
func (h *Hub) SendToConnection(connID string, ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.send(data)
	}
}

// SendToSession publishes to the session's group channel; every process
// holding members relays it.
func (h *Hub) SendToSession(groupCode string, ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := h.redisClient.Publish(context.Background(), "session_updates:"+groupCode, data).Err(); err != nil {
		log.Printf("hub: publish to %s failed: %v", groupCode, err)
	}
}
