package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/realtime"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
	"github.com/Byeongcheol-Kim/graphchat/internal/services"
)

var errInvalidDepth = errors.New("depth must be a positive integer")

type NodeHandler struct {
	log       *logger.Logger
	nodes     repos.NodeRepo
	messages  repos.MessageRepo
	summaries services.SummaryService
	chat      services.ChatService
	hub       *realtime.Hub
}

func NewNodeHandler(
	baseLog *logger.Logger,
	nodes repos.NodeRepo,
	messages repos.MessageRepo,
	summaries services.SummaryService,
	chat services.ChatService,
	hub *realtime.Hub,
) *NodeHandler {
	return &NodeHandler{
		log:       baseLog.With("handler", "NodeHandler"),
		nodes:     nodes,
		messages:  messages,
		summaries: summaries,
		chat:      chat,
		hub:       hub,
	}
}

type createNodeRequest struct {
	SessionID string          `json:"session_id" binding:"required"`
	ParentID  *string         `json:"parent_id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Type      domain.NodeType `json:"type"`
	Metadata  map[string]any  `json:"metadata"`
}

// POST /api/v1/nodes
func (h *NodeHandler) Create(c *gin.Context) {
	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	node, err := h.nodes.Create(c.Request.Context(), repos.NewNode{
		SessionID: req.SessionID,
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
	h.broadcastNodeCreated(node)
	RespondCreated(c, node)
}

// GET /api/v1/nodes/:id
func (h *NodeHandler) Get(c *gin.Context) {
	node, err := h.nodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, node)
}

// GET /api/v1/nodes/:id/with-messages
func (h *NodeHandler) GetWithMessages(c *gin.Context) {
	ctx := c.Request.Context()
	node, err := h.nodes.Get(ctx, c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	messages, err := h.messages.ListByNode(ctx, node.ID)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, domain.NodeWithMessages{Node: node, Messages: messages})
}

type updateNodeRequest struct {
	Title    *string        `json:"title"`
	Content  *string        `json:"content"`
	IsActive *bool          `json:"is_active"`
	Metadata map[string]any `json:"metadata"`
}

// PATCH /api/v1/nodes/:id
func (h *NodeHandler) Update(c *gin.Context) {
	var req updateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	node, err := h.nodes.Update(c.Request.Context(), c.Param("id"), repos.NodePatch{
		Title:    req.Title,
		Content:  req.Content,
		IsActive: req.IsActive,
		Metadata: req.Metadata,
	})
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	h.hub.Broadcast(node.SessionID, realtime.NodeUpdated(node))
	RespondOK(c, node)
}

// DELETE /api/v1/nodes/:id and /api/v1/nodes/:id/cascade
func (h *NodeHandler) Delete(cascade bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.deleteNodes(c, []string{c.Param("id")}, cascade)
	}
}

type deleteNodesRequest struct {
	NodeIDs []string `json:"node_ids" binding:"required"`
}

// POST /api/v1/nodes/delete-multiple and /delete-multiple/cascade
func (h *NodeHandler) DeleteMultiple(cascade bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req deleteNodesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, 400, "validation", err)
			return
		}
		h.deleteNodes(c, req.NodeIDs, cascade)
	}
}

func (h *NodeHandler) deleteNodes(c *gin.Context, ids []string, cascade bool) {
	ctx := c.Request.Context()

	sessionID := ""
	if len(ids) > 0 {
		if node, err := h.nodes.Get(ctx, ids[0]); err == nil {
			sessionID = node.SessionID
		}
	}

	result, err := h.nodes.Delete(ctx, ids, cascade)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	if sessionID != "" && len(result.Deleted) > 0 {
		h.hub.Broadcast(sessionID, realtime.NodesDeleted(result))
	}
	RespondOK(c, result)
}

type branchSpec struct {
	Title       string          `json:"title" binding:"required"`
	Type        domain.NodeType `json:"type"`
	Description string          `json:"description"`
}

type createBranchesRequest struct {
	SessionID string       `json:"session_id" binding:"required"`
	ParentID  string       `json:"parent_id" binding:"required"`
	Branches  []branchSpec `json:"branches" binding:"required"`
}

// POST /api/v1/nodes/branch
func (h *NodeHandler) CreateBranches(c *gin.Context) {
	var req createBranchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}

	ctx := c.Request.Context()
	created := make([]domain.Node, 0, len(req.Branches))
	for _, b := range req.Branches {
		node, err := h.nodes.Create(ctx, repos.NewNode{
			SessionID: req.SessionID,
			ParentID:  &req.ParentID,
			Title:     b.Title,
			Content:   b.Description,
			Type:      b.Type,
		})
		if err != nil {
			RespondServiceError(c, h.log, err)
			return
		}
		h.broadcastNodeCreated(node)
		created = append(created, node)
	}
	RespondCreated(c, created)
}

type createSummaryRequest struct {
	SessionID     string   `json:"session_id" binding:"required"`
	SourceNodeIDs []string `json:"source_node_ids" binding:"required"`
	Instructions  string   `json:"instructions"`
}

// POST /api/v1/nodes/summary
//
// Returns the placeholder node immediately; the content arrives over the
// session WebSocket when generation finishes.
func (h *NodeHandler) CreateSummary(c *gin.Context) {
	var req createSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	node, err := h.summaries.CreateSummaryNode(c.Request.Context(), req.SessionID, req.SourceNodeIDs, req.Instructions)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondCreated(c, node)
}

type createReferenceRequest struct {
	SessionID     string   `json:"session_id" binding:"required"`
	SourceNodeIDs []string `json:"source_node_ids" binding:"required"`
	Title         string   `json:"title"`
}

// POST /api/v1/nodes/reference
func (h *NodeHandler) CreateReference(c *gin.Context) {
	var req createReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	node, err := h.chat.CreateReferenceNode(c.Request.Context(), req.SessionID, req.SourceNodeIDs, req.Title)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondCreated(c, node)
}

// GET /api/v1/nodes/:id/tree
func (h *NodeHandler) GetTree(c *gin.Context) {
	ctx := c.Request.Context()
	node, err := h.nodes.Get(ctx, c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	descendants, err := h.nodes.Descendants(ctx, node.ID, 0)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{"node": node, "descendants": descendants})
}

// GET /api/v1/nodes/:id/descendants and /descendants/depth/:depth
func (h *NodeHandler) GetDescendants(c *gin.Context) {
	maxDepth := 0
	if v := c.Param("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 1 {
			RespondError(c, 400, "validation", errInvalidDepth)
			return
		}
		maxDepth = d
	}
	descendants, err := h.nodes.Descendants(c.Request.Context(), c.Param("id"), maxDepth)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, descendants)
}

// GET /api/v1/nodes/:id/ancestors
func (h *NodeHandler) GetAncestors(c *gin.Context) {
	ancestors, err := h.nodes.Ancestors(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, ancestors)
}

// GET /api/v1/nodes/:id/path
func (h *NodeHandler) GetPath(c *gin.Context) {
	path, err := h.nodes.Path(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, path)
}

// GET /api/v1/nodes/:id/relations
func (h *NodeHandler) GetRelations(c *gin.Context) {
	relations, err := h.nodes.Relations(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, relations)
}

type nodeTokensRequest struct {
	NodeIDs []string `json:"node_ids" binding:"required"`
}

// POST /api/v1/nodes/tokens
func (h *NodeHandler) TotalTokens(c *gin.Context) {
	var req nodeTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	total, err := h.nodes.TotalTokens(c.Request.Context(), req.NodeIDs)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{"total_tokens": total, "node_count": len(req.NodeIDs)})
}

func (h *NodeHandler) broadcastNodeCreated(node domain.Node) {
	var edge *realtime.EdgeDescriptor
	if node.ParentID != nil {
		edge = &realtime.EdgeDescriptor{
			ID:     "edge-" + node.ID,
			Source: *node.ParentID,
			Target: node.ID,
		}
	}
	h.hub.Broadcast(node.SessionID, realtime.NodeCreated(node, edge))
}
