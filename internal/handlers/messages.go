package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
	"github.com/Byeongcheol-Kim/graphchat/internal/services"
)

type MessageHandler struct {
	log      *logger.Logger
	messages repos.MessageRepo
	branches services.BranchService
	chat     services.ChatService
}

func NewMessageHandler(baseLog *logger.Logger, messages repos.MessageRepo, branches services.BranchService, chat services.ChatService) *MessageHandler {
	return &MessageHandler{
		log:      baseLog.With("handler", "MessageHandler"),
		messages: messages,
		branches: branches,
		chat:     chat,
	}
}

type createMessageRequest struct {
	NodeID  string `json:"node_id" binding:"required"`
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// POST /api/v1/messages
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	msg, err := h.messages.Create(c.Request.Context(), repos.NewMessage{
		NodeID:  req.NodeID,
		Role:    req.Role,
		Content: req.Content,
	})
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondCreated(c, msg)
}

// GET /api/v1/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	msg, err := h.messages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, msg)
}

// GET /api/v1/messages/node/:node_id and /node/:node_id/all
func (h *MessageHandler) ListByNode(c *gin.Context) {
	msgs, err := h.messages.ListByNode(c.Request.Context(), c.Param("node_id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, msgs)
}

// GET /api/v1/messages/node/:node_id/paginated?skip=&limit=
func (h *MessageHandler) ListByNodePaginated(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	msgs, err := h.messages.ListByNodePaginated(c.Request.Context(), c.Param("node_id"), skip, limit)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, msgs)
}

// DELETE /api/v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	if err := h.messages.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

type chatRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	NodeID     string `json:"node_id" binding:"required"`
	Message    string `json:"message" binding:"required"`
	AutoBranch *bool  `json:"auto_branch"`
}

// POST /api/v1/messages/chat
//
// Synchronous pipeline turn. Streaming clients use the WebSocket instead.
func (h *MessageHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	autoBranch := true
	if req.AutoBranch != nil {
		autoBranch = *req.AutoBranch
	}
	result, err := h.chat.ProcessTurn(c.Request.Context(), services.TurnRequest{
		SessionID:  req.SessionID,
		NodeID:     req.NodeID,
		Message:    req.Message,
		AutoBranch: autoBranch,
		Stream:     false,
	})
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, result)
}

type createFromRecommendationsRequest struct {
	RecommendationIDs []string `json:"recommendation_ids" binding:"required"`
}

// POST /api/v1/messages/create-branches
//
// Accepts a set of pending recommendations and materialises each as a child
// node. Individual failures are reported inline, not fatally.
func (h *MessageHandler) CreateBranches(c *gin.Context) {
	var req createFromRecommendationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}

	ctx := c.Request.Context()
	created := make([]domain.Node, 0, len(req.RecommendationIDs))
	failed := make([]string, 0)
	for _, recID := range req.RecommendationIDs {
		node, _, err := h.branches.Accept(ctx, recID)
		if err != nil {
			h.log.Warn("Failed to accept recommendation", "recommendation_id", recID, "error", err)
			failed = append(failed, recID)
			continue
		}
		created = append(created, node)
	}
	RespondCreated(c, gin.H{"created": created, "failed": failed})
}
