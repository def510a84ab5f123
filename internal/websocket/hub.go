package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Ayi-pei/yunjvcrm/internal/auth/jwt"
	"github.com/Ayi-pei/yunjvcrm/internal/domain"
	"github.com/Ayi-pei/yunjvcrm/internal/monitoring"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}

			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNewMessage    MessageType = "new_message"
	MessageTypeAgentStatus   MessageType = "agent_status"
	MessageTypeSessionUpdate MessageType = "session_update"
	MessageTypeTyping        MessageType = "typing"
	MessageTypeSendMessage   MessageType = "send_message"
	MessageTypePing          MessageType = "ping"
	MessageTypePong          MessageType = "pong"
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypeUnsubscribe   MessageType = "unsubscribe"
	MessageTypeSubscribed    MessageType = "subscribed"
	MessageTypeError         MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID         string
	conn       *websocket.Conn
	send       chan []byte
	hub        *Hub
	sessionIDs map[string]bool // 订阅的会话ID
	mu         sync.RWMutex
	log        *zap.Logger
	// 认证信息
	UserID     string          // 用户ID（JWT认证，客户连接为空）
	Role       string          // 角色名（JWT认证）
	UserType   domain.UserType // 会话主体类型
	IsCustomer bool            // 是否为客户端（会话直连）
}

// Hub 管理所有WebSocket连接
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	users          map[string]map[string]*Client // userID -> clientID -> Client
	sessions       map[string]map[string]*Client // sessionID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string

	tokens   *jwt.Manager
	chat     *service.ChatService
	metrics  *monitoring.Metrics
	presence PresenceKeeper
}

// PresenceKeeper 在协议心跳时续期坐席的在线状态 TTL
type PresenceKeeper interface {
	TouchAgentPresence(agentID string)
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	SessionID string
	Message   *Message
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, tokens *jwt.Manager, chat *service.ChatService, metrics *monitoring.Metrics, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		users:          make(map[string]map[string]*Client),
		sessions:       make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
		tokens:         tokens,
		chat:           chat,
		metrics:        metrics,
	}
}

// SetPresenceKeeper 接入在线状态续期（可选，混合存储下由 Redis 承载）
func (h *Hub) SetPresenceKeeper(keeper PresenceKeeper) {
	h.presence = keeper
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if client.UserID != "" {
				if h.users[client.UserID] == nil {
					h.users[client.UserID] = make(map[string]*Client)
				}
				h.users[client.UserID][client.ID] = client
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.updateConnectionGauge(count)
			h.log.Info("client registered",
				zap.String("id", client.ID),
				zap.String("userID", client.UserID),
				zap.Bool("customer", client.IsCustomer))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for sessionID := range client.sessionIDs {
					if clients, exists := h.sessions[sessionID]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.sessions, sessionID)
						}
					}
				}
				if client.UserID != "" {
					if clients, exists := h.users[client.UserID]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.users, client.UserID)
						}
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.updateConnectionGauge(count)

		case msg := <-h.broadcast:
			h.broadcastToSession(msg.SessionID, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

func (h *Hub) updateConnectionGauge(count int) {
	if h.metrics != nil {
		h.metrics.UpdateWSConnections(count)
	}
}

// MessagePayload 新消息通知数据
type MessagePayload struct {
	MessageID  string `json:"messageId"`
	SessionID  string `json:"sessionId"`
	SenderID   string `json:"senderId"`
	SenderType string `json:"senderType"`
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
}

// NotifyMessage 向会话订阅者和接待坐席推送新消息
func (h *Hub) NotifyMessage(session *domain.ChatSession, message *domain.ChatMessage) {
	payload := MessagePayload{
		MessageID:  message.ID,
		SessionID:  session.ID,
		SenderID:   message.SenderID,
		SenderType: string(message.SenderType),
		Kind:       string(message.Type),
		Content:    message.Content,
		CreatedAt:  message.CreatedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal message payload", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeNewMessage,
		SessionID: session.ID,
		Data:      data,
		Timestamp: time.Now(),
	}

	h.broadcast <- &BroadcastMessage{
		SessionID: session.ID,
		Message:   msg,
	}

	// 坐席可能尚未订阅该会话，额外按用户推送一份
	if session.AgentID != nil {
		h.sendToUser(*session.AgentID, msg, session.ID)
	}
}

// AgentStatusPayload 坐席状态通知数据
type AgentStatusPayload struct {
	AgentID   string `json:"agentId"`
	Status    string `json:"status"`
	ChangedAt string `json:"changedAt"`
}

// NotifyAgentStatus 向管理端和坐席本人广播状态变更
func (h *Hub) NotifyAgentStatus(agentID string, status domain.AgentStatus) {
	payload := AgentStatusPayload{
		AgentID:   agentID,
		Status:    string(status),
		ChangedAt: time.Now().Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal agent status payload", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeAgentStatus,
		Data:      data,
		Timestamp: time.Now(),
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.IsCustomer {
			continue
		}
		if client.UserType != domain.UserTypeAdmin && client.UserID != agentID {
			continue
		}
		select {
		case client.send <- raw:
		default:
		}
	}
}

// NotifySessionUpdate 广播会话状态变更（分配、关闭）
func (h *Hub) NotifySessionUpdate(session *domain.ChatSession) {
	data, err := json.Marshal(session)
	if err != nil {
		h.log.Error("failed to marshal session update", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeSessionUpdate,
		SessionID: session.ID,
		Data:      data,
		Timestamp: time.Now(),
	}

	h.broadcast <- &BroadcastMessage{
		SessionID: session.ID,
		Message:   msg,
	}

	if session.AgentID != nil {
		h.sendToUser(*session.AgentID, msg, session.ID)
	}
}

// sendToUser 向某个用户的全部连接发送消息，已订阅该会话的连接跳过
func (h *Hub) sendToUser(userID string, msg *Message, sessionID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.users[userID] {
		client.mu.RLock()
		subscribed := client.sessionIDs[sessionID]
		client.mu.RUnlock()
		if subscribed {
			continue
		}
		select {
		case client.send <- data:
		default:
		}
	}
}

// broadcastToSession 向订阅特定会话的客户端广播消息
func (h *Hub) broadcastToSession(sessionID string, msg *Message) {
	h.mu.RLock()
	clients := h.sessions[sessionID]
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.users = make(map[string]map[string]*Client)
	h.sessions = make(map[string]map[string]*Client)
	h.updateConnectionGauge(0)
}

// authenticateClient 认证客户端
//
// 坐席和管理端携带 JWT 令牌连接，客户端以会话ID直连，
// 权限仅限该会话。
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
	}

	if token != "" {
		claims, err := h.tokens.Verify(token)
		if err != nil {
			return nil, errors.New("invalid authentication token")
		}

		client := &Client{
			ID:         uuid.NewString(),
			UserID:     claims.UserID,
			Role:       claims.Role,
			UserType:   claims.Type,
			sessionIDs: make(map[string]bool),
			log:        h.log,
		}

		h.log.Info("websocket jwt authentication successful",
			zap.String("userID", claims.UserID),
			zap.String("role", claims.Role))

		return client, nil
	}

	// 客户直连：会话必须存在且未关闭
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return nil, errors.New("missing authentication token")
	}

	session, err := h.chat.Get(sessionID)
	if err != nil {
		return nil, errors.New("invalid session")
	}
	if session.Status == domain.SessionClosed {
		return nil, errors.New("session closed")
	}

	client := &Client{
		ID:         uuid.NewString(),
		IsCustomer: true,
		sessionIDs: make(map[string]bool),
		log:        h.log,
	}

	h.log.Info("websocket customer connection",
		zap.String("sessionID", sessionID))

	return client, nil
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "未登录或令牌缺失"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

		hub.register <- client

		// 客户直连时自动订阅其会话
		if client.IsCustomer {
			client.subscribeSession(c.Query("sessionId"))
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if c.hub.presence != nil && !c.IsCustomer && c.UserID != "" {
			c.hub.presence.TouchAgentPresence(c.UserID)
		}
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inboundMessage 客户端经 WebSocket 发送消息的载荷
type inboundMessage struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeSession(msg.SessionID)
	case MessageTypeUnsubscribe:
		c.unsubscribeSession(msg.SessionID)
	case MessageTypeSendMessage:
		c.relayMessage(msg)
	case MessageTypeTyping:
		c.relayTyping(msg)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

// canAccessSession 判断客户端是否有权访问会话
//
// 管理端可访问任意会话；坐席只能访问分配给自己的会话；
// 客户端只能访问连接时绑定的会话。
func (c *Client) canAccessSession(sessionID string) bool {
	if c.IsCustomer {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.sessionIDs[sessionID]
	}

	if c.UserType == domain.UserTypeAdmin {
		return true
	}

	session, err := c.hub.chat.Get(sessionID)
	if err != nil {
		return false
	}
	return session.AgentID != nil && *session.AgentID == c.UserID
}

// subscribeSession 订阅会话
func (c *Client) subscribeSession(sessionID string) {
	if sessionID == "" {
		c.sendError("会话ID不能为空")
		return
	}

	if !c.IsCustomer && !c.canAccessSession(sessionID) {
		c.log.Warn("subscription denied: no permission",
			zap.String("clientID", c.ID),
			zap.String("sessionID", sessionID),
			zap.String("userID", c.UserID))
		c.sendError("无权访问该会话")
		return
	}

	c.mu.Lock()
	c.sessionIDs[sessionID] = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	if c.hub.sessions[sessionID] == nil {
		c.hub.sessions[sessionID] = make(map[string]*Client)
	}
	c.hub.sessions[sessionID][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to session",
		zap.String("clientID", c.ID),
		zap.String("sessionID", sessionID),
		zap.String("userID", c.UserID))

	c.sendMessage(&Message{
		Type:      MessageTypeSubscribed,
		SessionID: sessionID,
		Timestamp: time.Now(),
	})
}

// unsubscribeSession 取消订阅会话
func (c *Client) unsubscribeSession(sessionID string) {
	c.mu.Lock()
	delete(c.sessionIDs, sessionID)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if clients, exists := c.hub.sessions[sessionID]; exists {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(c.hub.sessions, sessionID)
		}
	}
	c.hub.mu.Unlock()

	c.log.Info("unsubscribed from session",
		zap.String("clientID", c.ID),
		zap.String("sessionID", sessionID))
}

// relayMessage 将客户端发送的消息写入会话并广播
func (c *Client) relayMessage(msg *Message) {
	if msg.SessionID == "" {
		c.sendError("会话ID不能为空")
		return
	}
	if !c.canAccessSession(msg.SessionID) {
		c.sendError("无权访问该会话")
		return
	}

	var inbound inboundMessage
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &inbound); err != nil {
			c.sendError("消息格式不正确")
			return
		}
	}
	if inbound.Content == "" {
		c.sendError("消息内容不能为空")
		return
	}

	senderType := domain.SenderCustomer
	senderID := "customer"
	if !c.IsCustomer {
		senderType = domain.SenderAgent
		senderID = c.UserID
	}

	_, err := c.hub.chat.SendMessage(service.SendMessageInput{
		SessionID:  msg.SessionID,
		SenderID:   senderID,
		SenderType: senderType,
		Type:       domain.MessageType(inbound.Kind),
		Content:    inbound.Content,
	})
	if err != nil {
		c.log.Warn("failed to relay message",
			zap.String("sessionID", msg.SessionID),
			zap.Error(err))
		c.sendError("消息发送失败")
	}
}

// relayTyping 转发输入状态给会话其他订阅者
func (c *Client) relayTyping(msg *Message) {
	if msg.SessionID == "" || !c.canAccessSession(msg.SessionID) {
		return
	}

	out := &Message{
		Type:      MessageTypeTyping,
		SessionID: msg.SessionID,
		Data:      msg.Data,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(out)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	clients := c.hub.sessions[msg.SessionID]
	for _, client := range clients {
		if client.ID == c.ID {
			continue
		}
		select {
		case client.send <- data:
		default:
		}
	}
	c.hub.mu.RUnlock()
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	msg := &Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	}
	c.sendMessage(msg)
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
