package services

import (
	"context"
	"sort"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
)

// maxReferenceRecursion caps how deep reference-node assembly follows parent
// and source links. Reference nodes can point at other reference nodes.
const maxReferenceRecursion = 5

type HistoryService interface {
	// Assemble builds the conversation history the LLM sees for a node.
	Assemble(ctx context.Context, nodeID string) (domain.ConversationHistory, error)
}

type historyService struct {
	nodes    repos.NodeRepo
	messages repos.MessageRepo
	log      *logger.Logger
}

func NewHistoryService(nodes repos.NodeRepo, messages repos.MessageRepo, baseLog *logger.Logger) HistoryService {
	return &historyService{
		nodes:    nodes,
		messages: messages,
		log:      baseLog.With("service", "HistoryService"),
	}
}

func (s *historyService) Assemble(ctx context.Context, nodeID string) (domain.ConversationHistory, error) {
	node, err := s.nodes.Get(ctx, nodeID)
	if err != nil {
		return domain.ConversationHistory{}, err
	}

	if node.Type == domain.NodeTypeReference {
		return s.assembleReference(ctx, node, maxReferenceRecursion)
	}
	return s.assembleChain(ctx, nodeID)
}

// assembleChain walks from the node toward the root and collects messages.
// The walk stops at the first summarized ancestor, inclusive: the summary
// stands in for everything above it.
func (s *historyService) assembleChain(ctx context.Context, nodeID string) (domain.ConversationHistory, error) {
	chain, err := s.nodes.AncestorChain(ctx, nodeID)
	if err != nil {
		return domain.ConversationHistory{}, err
	}

	var (
		collected  []string
		summaryID  string
		summarized bool
	)
	for _, ref := range chain {
		collected = append(collected, ref.ID)
		if ref.Distance > 0 && ref.IsSummary {
			summaryID = ref.ID
			summarized = true
			break
		}
	}

	messages, err := s.messages.ListByNodes(ctx, collected)
	if err != nil {
		return domain.ConversationHistory{}, err
	}

	// A summarized ancestor contributes its condensed content, not its raw
	// messages.
	if summarized {
		summaryNode, err := s.nodes.Get(ctx, summaryID)
		if err != nil {
			return domain.ConversationHistory{}, err
		}
		filtered := messages[:0]
		for _, m := range messages {
			if m.NodeID != summaryID {
				filtered = append(filtered, m)
			}
		}
		messages = filtered
		if content := summaryText(summaryNode); content != "" {
			messages = append([]domain.Message{{
				ID:         "summary-" + summaryNode.ID,
				NodeID:     summaryNode.ID,
				Role:       domain.RoleSystem,
				Content:    "Summary of earlier conversation: " + content,
				Timestamp:  summaryNode.CreatedAt,
				TokenCount: domain.EstimateTokens(content),
			}}, messages...)
		}
	}

	return domain.ConversationHistory{
		Messages:     messages,
		TotalTokens:  domain.HistoryTokens(messages),
		IsSummarized: summarized,
	}, nil
}

// assembleReference merges three strands: the reference node's own messages,
// the recursive history of its layout parent, and the chain history of every
// source node. Duplicates are dropped by message id and the merged list is
// re-sorted by timestamp.
func (s *historyService) assembleReference(ctx context.Context, node domain.Node, budget int) (domain.ConversationHistory, error) {
	if budget <= 0 {
		own, err := s.messages.ListByNode(ctx, node.ID)
		if err != nil {
			return domain.ConversationHistory{}, err
		}
		return domain.ConversationHistory{Messages: own, TotalTokens: domain.HistoryTokens(own)}, nil
	}

	seen := map[string]bool{}
	var merged []domain.Message
	summarized := false

	add := func(msgs []domain.Message) {
		for _, m := range msgs {
			if m.ID == "" || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			merged = append(merged, m)
		}
	}

	if node.ParentID != nil && *node.ParentID != "" {
		parent, err := s.nodes.Get(ctx, *node.ParentID)
		if err == nil {
			var parentHistory domain.ConversationHistory
			if parent.Type == domain.NodeTypeReference {
				parentHistory, err = s.assembleReference(ctx, parent, budget-1)
			} else {
				parentHistory, err = s.assembleChain(ctx, parent.ID)
			}
			if err != nil {
				return domain.ConversationHistory{}, err
			}
			summarized = summarized || parentHistory.IsSummarized
			add(parentHistory.Messages)
		} else {
			s.log.Warn("Reference parent missing, skipping", "node_id", node.ID, "parent_id", *node.ParentID)
		}
	}

	for _, sourceID := range node.SourceNodeIDs {
		if node.ParentID != nil && sourceID == *node.ParentID {
			continue
		}
		sourceHistory, err := s.assembleChain(ctx, sourceID)
		if err != nil {
			s.log.Warn("Reference source missing, skipping", "node_id", node.ID, "source_id", sourceID)
			continue
		}
		summarized = summarized || sourceHistory.IsSummarized
		add(sourceHistory.Messages)
	}

	own, err := s.messages.ListByNode(ctx, node.ID)
	if err != nil {
		return domain.ConversationHistory{}, err
	}
	add(own)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})

	return domain.ConversationHistory{
		Messages:     merged,
		TotalTokens:  domain.HistoryTokens(merged),
		IsSummarized: summarized,
	}, nil
}

func summaryText(node domain.Node) string {
	if node.SummaryContent != nil && *node.SummaryContent != "" {
		return *node.SummaryContent
	}
	return node.Content
}
