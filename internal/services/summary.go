package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/llm"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/realtime"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
)

const (
	summaryGeneratingTitle = "Summary in progress..."
	summaryFailedTitle     = "Summary failed"
	summaryFallbackTitle   = "Summary"

	// asyncFillTimeout bounds the background fill so an unresponsive provider
	// cannot hold a node in the generating state forever.
	asyncFillTimeout = 2 * time.Minute
)

type SummaryService interface {
	// CreateSummaryNode inserts a placeholder summary node immediately and
	// fills it in the background. The returned node still carries the
	// placeholder content.
	CreateSummaryNode(ctx context.Context, sessionID string, sourceNodeIDs []string, instructions string) (domain.Node, error)
	// SummariseParentIfNeeded condenses a node's own messages into its
	// summary_content before a branch forks away from it. Nodes with fewer
	// than two messages or an existing summary are left alone.
	SummariseParentIfNeeded(ctx context.Context, nodeID string) error
	// Wait blocks until all background fills have finished.
	Wait()
}

type summaryService struct {
	nodes    repos.NodeRepo
	messages repos.MessageRepo
	client   llm.Client
	hub      *realtime.Hub
	log      *logger.Logger
	wg       sync.WaitGroup
}

func NewSummaryService(nodes repos.NodeRepo, messages repos.MessageRepo, client llm.Client, hub *realtime.Hub, baseLog *logger.Logger) SummaryService {
	return &summaryService{
		nodes:    nodes,
		messages: messages,
		client:   client,
		hub:      hub,
		log:      baseLog.With("service", "SummaryService"),
	}
}

func (s *summaryService) CreateSummaryNode(ctx context.Context, sessionID string, sourceNodeIDs []string, instructions string) (domain.Node, error) {
	node, err := s.nodes.CreateSummary(ctx, repos.NewSummaryNode{
		SessionID:     sessionID,
		SourceNodeIDs: sourceNodeIDs,
		Title:         summaryGeneratingTitle,
		Content:       summaryGeneratingTitle,
	})
	if err != nil {
		return domain.Node{}, err
	}

	s.hub.Broadcast(sessionID, realtime.GeneratingSummary(node.ID, sourceNodeIDs))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fillCtx, cancel := context.WithTimeout(context.Background(), asyncFillTimeout)
		defer cancel()
		s.fill(fillCtx, node, instructions)
	}()

	return node, nil
}

// fill runs the asynchronous half of summary creation. Whatever happens, the
// node leaves the generating state.
func (s *summaryService) fill(ctx context.Context, node domain.Node, instructions string) {
	contents, err := s.sourceContents(ctx, node.SourceNodeIDs)
	if err == nil && len(contents) == 0 {
		err = fmt.Errorf("no content to summarize")
	}

	var result llm.SummaryResult
	if err == nil {
		result, err = s.client.Summarise(ctx, contents, instructions)
	}

	if err != nil {
		s.log.Error("Summary generation failed", "node_id", node.ID, "error", err)
		diagnostic := "Summary generation failed: " + err.Error()
		if ferr := s.nodes.FinishSummary(ctx, node.ID, summaryFailedTitle, diagnostic, diagnostic, 0); ferr != nil {
			s.log.Error("Failed to record summary failure", "node_id", node.ID, "error", ferr)
		}
		s.hub.Broadcast(node.SessionID, realtime.ErrorEvent("Summary generation failed"))
		return
	}

	title := result.Title
	if strings.TrimSpace(title) == "" {
		title = summaryFallbackTitle
	}
	tokens := domain.EstimateTokens(result.Summary)
	if err := s.nodes.FinishSummary(ctx, node.ID, title, result.Summary, result.Summary, tokens); err != nil {
		s.log.Error("Failed to persist summary", "node_id", node.ID, "error", err)
		return
	}

	// The summary also lands as a message so the node reads as a
	// conversation.
	if _, err := s.messages.Create(ctx, repos.NewMessage{
		NodeID:  node.ID,
		Role:    domain.RoleAssistant,
		Content: result.Summary,
	}); err != nil {
		s.log.Warn("Failed to append summary message", "node_id", node.ID, "error", err)
	}

	updated, err := s.nodes.Get(ctx, node.ID)
	if err != nil {
		updated = node
		updated.Title = title
		updated.Content = result.Summary
	}
	s.hub.Broadcast(node.SessionID, realtime.SummaryGenerated(updated))
	s.hub.Broadcast(node.SessionID, realtime.SummaryCompleted(node.ID, result.Summary))
	s.log.Info("Summary node filled", "node_id", node.ID, "sources", len(node.SourceNodeIDs))
}

func (s *summaryService) SummariseParentIfNeeded(ctx context.Context, nodeID string) error {
	node, err := s.nodes.Get(ctx, nodeID)
	if err != nil {
		return err
	}
	if node.MessageCount < 2 {
		return nil
	}
	if node.SummaryContent != nil && *node.SummaryContent != "" {
		return nil
	}

	messages, err := s.messages.ListByNode(ctx, nodeID)
	if err != nil {
		return err
	}
	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, m.Role+": "+m.Content)
	}
	if len(contents) == 0 {
		return nil
	}

	result, err := s.client.Summarise(ctx, contents, "Condense this exchange so a branch can continue from it.")
	if err != nil {
		return err
	}
	if err := s.nodes.SetSummaryContent(ctx, nodeID, result.Summary); err != nil {
		return err
	}

	s.hub.Broadcast(node.SessionID, realtime.SummaryCompleted(nodeID, result.Summary))
	return nil
}

func (s *summaryService) Wait() {
	s.wg.Wait()
}

func (s *summaryService) sourceContents(ctx context.Context, sourceNodeIDs []string) ([]string, error) {
	messages, err := s.messages.ListByNodes(ctx, sourceNodeIDs)
	if err != nil {
		return nil, err
	}
	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		contents = append(contents, m.Role+": "+m.Content)
	}
	return contents, nil
}
