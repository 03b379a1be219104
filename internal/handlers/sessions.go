package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
)

type SessionHandler struct {
	log      *logger.Logger
	sessions repos.SessionRepo
	nodes    repos.NodeRepo
}

func NewSessionHandler(baseLog *logger.Logger, sessions repos.SessionRepo, nodes repos.NodeRepo) *SessionHandler {
	return &SessionHandler{
		log:      baseLog.With("handler", "SessionHandler"),
		sessions: sessions,
		nodes:    nodes,
	}
}

type createSessionRequest struct {
	Title    string         `json:"title" binding:"required"`
	UserID   *string        `json:"user_id"`
	Metadata map[string]any `json:"metadata"`
}

// POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), repos.NewSession{
		Title:    req.Title,
		UserID:   req.UserID,
		Metadata: req.Metadata,
	})
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondCreated(c, session)
}

// GET /api/v1/sessions?user_id=&skip=&limit=
func (h *SessionHandler) List(c *gin.Context) {
	var userID *string
	if v := c.Query("user_id"); v != "" {
		userID = &v
	}
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	sessions, err := h.sessions.List(c.Request.Context(), userID, skip, limit)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, sessions)
}

// GET /api/v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, session)
}

// GET /api/v1/sessions/:id/with-nodes
func (h *SessionHandler) GetWithNodes(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := h.sessions.Get(ctx, c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	nodes, err := h.sessions.Nodes(ctx, session.ID)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, domain.SessionWithNodes{Session: session, Nodes: nodes})
}

type updateSessionRequest struct {
	Title    *string        `json:"title"`
	Metadata map[string]any `json:"metadata"`
}

// PATCH /api/v1/sessions/:id (PUT accepted as an alias)
func (h *SessionHandler) Update(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	session, err := h.sessions.Update(c.Request.Context(), c.Param("id"), repos.SessionPatch{
		Title:    req.Title,
		Metadata: req.Metadata,
	})
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, session)
}

// DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// GET /api/v1/sessions/:id/nodes
func (h *SessionHandler) ListNodes(c *gin.Context) {
	nodes, err := h.sessions.Nodes(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, nodes)
}

type createSessionNodeRequest struct {
	ParentID *string         `json:"parent_id"`
	Title    string          `json:"title"`
	Content  string          `json:"content"`
	Type     domain.NodeType `json:"type"`
	Metadata map[string]any  `json:"metadata"`
}

// POST /api/v1/sessions/:id/nodes
func (h *SessionHandler) CreateNode(c *gin.Context) {
	var req createSessionNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	node, err := h.nodes.Create(c.Request.Context(), repos.NewNode{
		SessionID: c.Param("id"),
		ParentID:  req.ParentID,
		Title:     req.Title,
		Content:   req.Content,
		Type:      req.Type,
		Metadata:  req.Metadata,
	})
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondCreated(c, node)
}
