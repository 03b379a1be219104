package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/realtime"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
	"github.com/Byeongcheol-Kim/graphchat/internal/services"
)

// turnTimeout bounds a single WebSocket-initiated chat turn. The connection
// context cannot be used: the turn must finish even if the socket drops.
const turnTimeout = 5 * time.Minute

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin enforcement happens in the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	log      *logger.Logger
	hub      *realtime.Hub
	sessions repos.SessionRepo
	nodes    repos.NodeRepo
	chat     services.ChatService
}

func NewWebSocketHandler(
	baseLog *logger.Logger,
	hub *realtime.Hub,
	sessions repos.SessionRepo,
	nodes repos.NodeRepo,
	chat services.ChatService,
) *WebSocketHandler {
	return &WebSocketHandler{
		log:      baseLog.With("handler", "WebSocketHandler"),
		hub:      hub,
		sessions: sessions,
		nodes:    nodes,
		chat:     chat,
	}
}

type frameUpdates struct {
	Title    *string        `json:"title"`
	Content  *string        `json:"content"`
	IsActive *bool          `json:"is_active"`
	Metadata map[string]any `json:"metadata"`
}

type framePayload struct {
	NodeID        string       `json:"node_id"`
	Message       string       `json:"message"`
	Content       string       `json:"content"`
	Stream        *bool        `json:"stream"`
	AutoBranch    *bool        `json:"auto_branch"`
	SourceNodeIDs []string     `json:"source_node_ids"`
	Title         string       `json:"title"`
	Updates       frameUpdates `json:"updates"`
}

// inboundFrame carries its fields under "data"; top-level fields are accepted
// as a fallback for older clients.
type inboundFrame struct {
	Type string       `json:"type"`
	Data framePayload `json:"data"`
	framePayload
}

func (f inboundFrame) payload() framePayload {
	p := f.Data
	if p.NodeID == "" {
		p.NodeID = f.framePayload.NodeID
	}
	if p.Message == "" {
		p.Message = f.framePayload.Message
	}
	if p.Content == "" {
		p.Content = f.framePayload.Content
	}
	if p.Stream == nil {
		p.Stream = f.framePayload.Stream
	}
	if p.AutoBranch == nil {
		p.AutoBranch = f.framePayload.AutoBranch
	}
	if len(p.SourceNodeIDs) == 0 {
		p.SourceNodeIDs = f.framePayload.SourceNodeIDs
	}
	if p.Title == "" {
		p.Title = f.framePayload.Title
	}
	if p.Updates.Title == nil && p.Updates.Content == nil && p.Updates.IsActive == nil && p.Updates.Metadata == nil {
		p.Updates = f.framePayload.Updates
	}
	return p
}

// GET /ws/session/:session_id
func (h *WebSocketHandler) Handle(c *gin.Context) {
	sessionID := c.Param("session_id")
	if _, err := h.sessions.Get(c.Request.Context(), sessionID); err != nil {
		RespondServiceError(c, h.log, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	client := h.hub.Join(sessionID)
	h.log.Info("WebSocket connected", "session_id", sessionID, "client_id", client.ID)

	go h.writePump(conn, client)
	h.hub.Send(client, realtime.Connection(sessionID))

	defer func() {
		h.hub.Leave(client)
		h.log.Info("WebSocket disconnected", "session_id", sessionID, "client_id", client.ID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(sessionID, client, raw)
	}
}

// writePump drains the client's outbound queue onto the socket. Closing the
// queue (hub.Leave) ends the pump and the connection.
func (h *WebSocketHandler) writePump(conn *websocket.Conn, client *realtime.Client) {
	defer conn.Close()
	for payload := range client.Outbound {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) dispatch(sessionID string, client *realtime.Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.hub.Send(client, realtime.ErrorEvent("Invalid message format"))
		return
	}

	switch frame.Type {
	case "chat":
		go h.handleChat(sessionID, client, frame.payload())
	case "create_reference_and_chat":
		go h.handleReferenceChat(sessionID, client, frame.payload())
	case "node_update":
		go h.handleNodeUpdate(sessionID, client, frame.payload())
	case "ping":
		h.hub.Send(client, realtime.Pong(time.Now()))
	default:
		h.hub.Send(client, realtime.ErrorEvent("Unknown message type: "+frame.Type))
	}
}

func (h *WebSocketHandler) handleChat(sessionID string, client *realtime.Client, p framePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	if _, err := h.chat.ProcessTurn(ctx, turnRequest(sessionID, p.NodeID, p)); err != nil {
		h.log.Error("Chat turn failed", "session_id", sessionID, "node_id", p.NodeID, "error", err)
		h.hub.Send(client, realtime.ErrorEvent(err.Error()))
	}
}

func (h *WebSocketHandler) handleReferenceChat(sessionID string, client *realtime.Client, p framePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	ref, err := h.chat.CreateReferenceNode(ctx, sessionID, p.SourceNodeIDs, p.Title)
	if err != nil {
		h.log.Error("Reference creation failed", "session_id", sessionID, "error", err)
		h.hub.Send(client, realtime.ErrorEvent(err.Error()))
		return
	}

	if _, err := h.chat.ProcessTurn(ctx, turnRequest(sessionID, ref.ID, p)); err != nil {
		h.log.Error("Chat turn failed", "session_id", sessionID, "node_id", ref.ID, "error", err)
		h.hub.Send(client, realtime.ErrorEvent(err.Error()))
	}
}

func (h *WebSocketHandler) handleNodeUpdate(sessionID string, client *realtime.Client, p framePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	node, err := h.nodes.Update(ctx, p.NodeID, repos.NodePatch{
		Title:    p.Updates.Title,
		Content:  p.Updates.Content,
		IsActive: p.Updates.IsActive,
		Metadata: p.Updates.Metadata,
	})
	if err != nil {
		h.hub.Send(client, realtime.ErrorEvent(err.Error()))
		return
	}
	h.hub.Broadcast(sessionID, realtime.NodeUpdated(node))
}

func turnRequest(sessionID, nodeID string, p framePayload) services.TurnRequest {
	text := p.Message
	if text == "" {
		text = p.Content
	}
	stream := true
	if p.Stream != nil {
		stream = *p.Stream
	}
	autoBranch := true
	if p.AutoBranch != nil {
		autoBranch = *p.AutoBranch
	}
	return services.TurnRequest{
		SessionID:  sessionID,
		NodeID:     nodeID,
		Message:    text,
		AutoBranch: autoBranch,
		Stream:     stream,
	}
}
