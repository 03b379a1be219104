package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/realtime"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
	"github.com/Byeongcheol-Kim/graphchat/internal/services"
)

type RecommendationHandler struct {
	log             *logger.Logger
	recommendations repos.RecommendationRepo
	branches        services.BranchService
	hub             *realtime.Hub
}

func NewRecommendationHandler(
	baseLog *logger.Logger,
	recommendations repos.RecommendationRepo,
	branches services.BranchService,
	hub *realtime.Hub,
) *RecommendationHandler {
	return &RecommendationHandler{
		log:             baseLog.With("handler", "RecommendationHandler"),
		recommendations: recommendations,
		branches:        branches,
		hub:             hub,
	}
}

type createRecommendationRequest struct {
	SessionID      string  `json:"session_id" binding:"required"`
	NodeID         string  `json:"node_id" binding:"required"`
	MessageID      string  `json:"message_id"`
	Title          string  `json:"title" binding:"required"`
	Description    string  `json:"description"`
	Type           string  `json:"type"`
	Priority       float64 `json:"priority"`
	EstimatedDepth int     `json:"estimated_depth"`
	EdgeLabel      string  `json:"edge_label"`
}

func (r createRecommendationRequest) toNew() repos.NewRecommendation {
	return repos.NewRecommendation{
		SessionID:      r.SessionID,
		NodeID:         r.NodeID,
		MessageID:      r.MessageID,
		Title:          r.Title,
		Description:    r.Description,
		Type:           r.Type,
		Priority:       r.Priority,
		EstimatedDepth: r.EstimatedDepth,
		EdgeLabel:      r.EdgeLabel,
	}
}

// POST /api/v1/recommendations
func (h *RecommendationHandler) Create(c *gin.Context) {
	var req createRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	rec, err := h.recommendations.Create(c.Request.Context(), req.toNew())
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondCreated(c, rec)
}

type createRecommendationBatchRequest struct {
	Recommendations []createRecommendationRequest `json:"recommendations" binding:"required"`
}

// POST /api/v1/recommendations/batch
func (h *RecommendationHandler) CreateBatch(c *gin.Context) {
	var req createRecommendationBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	items := make([]repos.NewRecommendation, 0, len(req.Recommendations))
	for _, r := range req.Recommendations {
		items = append(items, r.toNew())
	}
	created, err := h.recommendations.CreateBatch(c.Request.Context(), items)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondCreated(c, created)
}

// GET /api/v1/recommendations/:id
func (h *RecommendationHandler) Get(c *gin.Context) {
	rec, err := h.recommendations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, rec)
}

// GET /api/v1/recommendations/message/:message_id
func (h *RecommendationHandler) ListByMessage(c *gin.Context) {
	recs, err := h.recommendations.ListByMessage(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, recs)
}

// GET /api/v1/recommendations/node/:node_id?status=
func (h *RecommendationHandler) ListByNode(c *gin.Context) {
	var status *domain.RecommendationStatus
	if v := c.Query("status"); v != "" {
		s := domain.RecommendationStatus(v)
		if !domain.ValidRecommendationStatus(s) {
			RespondError(c, 400, "validation", fmt.Errorf("unknown status %q", v))
			return
		}
		status = &s
	}
	recs, err := h.recommendations.ListByNode(c.Request.Context(), c.Param("node_id"), status)
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, recs)
}

// GET /api/v1/recommendations/session/:session_id
func (h *RecommendationHandler) ListActiveBySession(c *gin.Context) {
	grouped, err := h.recommendations.ListActiveBySession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, grouped)
}

type updateRecommendationRequest struct {
	Status          *domain.RecommendationStatus `json:"status"`
	CreatedBranchID *string                      `json:"created_branch_id"`
}

// PATCH /api/v1/recommendations/:id
func (h *RecommendationHandler) Update(c *gin.Context) {
	var req updateRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, 400, "validation", err)
		return
	}
	rec, err := h.recommendations.Update(c.Request.Context(), c.Param("id"), repos.RecommendationPatch{
		Status:          req.Status,
		CreatedBranchID: req.CreatedBranchID,
	})
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, rec)
}

// POST /api/v1/recommendations/:id/create-branch?created_branch_id=
//
// With created_branch_id the caller already made the node and this just
// records the link; without it the branch node is created here.
func (h *RecommendationHandler) CreateBranch(c *gin.Context) {
	ctx := c.Request.Context()

	if branchID := c.Query("created_branch_id"); branchID != "" {
		rec, err := h.recommendations.MarkCreated(ctx, c.Param("id"), branchID)
		if err != nil {
			RespondServiceError(c, h.log, err)
			return
		}
		RespondOK(c, rec)
		return
	}

	node, rec, err := h.branches.Accept(ctx, c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	edge := &realtime.EdgeDescriptor{
		ID:     "edge-" + node.ID,
		Source: rec.NodeID,
		Target: node.ID,
		Label:  rec.EdgeLabel,
	}
	h.hub.Broadcast(node.SessionID, realtime.NodeCreated(node, edge))
	RespondCreated(c, gin.H{"node": node, "recommendation": rec})
}

// POST /api/v1/recommendations/:id/dismiss
func (h *RecommendationHandler) Dismiss(c *gin.Context) {
	rec, err := h.branches.Dismiss(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, h.log, err)
		return
	}
	RespondOK(c, rec)
}
