package services

import (
	"context"
	"strings"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/llm"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
)

const (
	maxRecommendations    = 3
	defaultEstimatedDepth = 3
	edgeLabelMaxRunes     = 20

	// Branch analysis runs cooler than chat so the categories stay stable.
	analyzeTemperature = 0.3
)

type BranchService interface {
	// Analyze asks the model for follow-up branches after an assistant reply
	// and persists them as pending recommendations on the message.
	Analyze(ctx context.Context, sessionID, nodeID, messageID string, history []llm.Message) ([]domain.Recommendation, error)
	// Accept turns a pending recommendation into a real child node.
	Accept(ctx context.Context, recommendationID string) (domain.Node, domain.Recommendation, error)
	Dismiss(ctx context.Context, recommendationID string) (domain.Recommendation, error)
}

type branchService struct {
	nodes           repos.NodeRepo
	recommendations repos.RecommendationRepo
	client          llm.Client
	log             *logger.Logger
}

func NewBranchService(nodes repos.NodeRepo, recommendations repos.RecommendationRepo, client llm.Client, baseLog *logger.Logger) BranchService {
	return &branchService{
		nodes:           nodes,
		recommendations: recommendations,
		client:          client,
		log:             baseLog.With("service", "BranchService"),
	}
}

func (s *branchService) Analyze(ctx context.Context, sessionID, nodeID, messageID string, history []llm.Message) ([]domain.Recommendation, error) {
	branches, err := s.client.AnalyzeBranches(ctx, history, analyzeTemperature)
	if err != nil {
		return nil, err
	}
	if len(branches) > maxRecommendations {
		branches = branches[:maxRecommendations]
	}

	items := make([]repos.NewRecommendation, 0, len(branches))
	for idx, b := range branches {
		if strings.TrimSpace(b.Title) == "" {
			continue
		}
		priority := b.Priority
		if priority <= 0 {
			priority = 0.8 - 0.1*float64(idx)
		}
		depth := b.EstimatedDepth
		if depth <= 0 {
			depth = defaultEstimatedDepth
		}
		// The type is the analyzer's free-form category (topics, details,
		// alternatives, ...). It maps to a node type only on Accept.
		branchType := strings.TrimSpace(b.Type)
		if branchType == "" {
			branchType = string(domain.NodeTypeTopic)
		}
		items = append(items, repos.NewRecommendation{
			SessionID:      sessionID,
			NodeID:         nodeID,
			MessageID:      messageID,
			Title:          b.Title,
			Description:    b.Description,
			Type:           branchType,
			Priority:       priority,
			EstimatedDepth: depth,
			EdgeLabel:      truncateLabel(b.Title),
		})
	}

	created, err := s.recommendations.CreateBatch(ctx, items)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Branch analysis persisted", "node_id", nodeID, "recommendations", len(created))
	return created, nil
}

func (s *branchService) Accept(ctx context.Context, recommendationID string) (domain.Node, domain.Recommendation, error) {
	rec, err := s.recommendations.Get(ctx, recommendationID)
	if err != nil {
		return domain.Node{}, domain.Recommendation{}, err
	}

	node, err := s.nodes.Create(ctx, repos.NewNode{
		SessionID: rec.SessionID,
		ParentID:  &rec.NodeID,
		Title:     rec.Title,
		Content:   rec.Description,
		Type:      branchNodeType(rec.Type),
	})
	if err != nil {
		return domain.Node{}, domain.Recommendation{}, err
	}

	updated, err := s.recommendations.MarkCreated(ctx, recommendationID, node.ID)
	if err != nil {
		return domain.Node{}, domain.Recommendation{}, err
	}
	return node, updated, nil
}

func (s *branchService) Dismiss(ctx context.Context, recommendationID string) (domain.Recommendation, error) {
	return s.recommendations.MarkDismissed(ctx, recommendationID)
}

// branchNodeType maps an analyzer category onto a node type for the branch
// node it spawns.
func branchNodeType(category string) domain.NodeType {
	if t := domain.NodeType(category); domain.ValidNodeType(t) {
		return t
	}
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "topics":
		return domain.NodeTypeTopic
	case "questions":
		return domain.NodeTypeQuestion
	case "details", "alternatives", "examples":
		return domain.NodeTypeExploration
	default:
		return domain.NodeTypeTopic
	}
}

// truncateLabel caps edge labels for graph rendering, by rune so multibyte
// titles survive.
func truncateLabel(title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= edgeLabelMaxRunes {
		return string(runes)
	}
	return string(runes[:edgeLabelMaxRunes])
}
