package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/llm"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/apierr"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/realtime"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
)

const (
	// tokenLimit is the context budget. A history estimated above it has its
	// parent-node portion collapsed before the model call.
	tokenLimit = 4000

	// promptRecentWindow caps how many history messages follow the system
	// instruction in the final prompt.
	promptRecentWindow = 20

	chatTemperature = 0.7

	referenceEdgeLabel = "conversation continued"

	systemInstruction = "You are a helpful AI assistant."
)

type TurnRequest struct {
	SessionID  string
	NodeID     string
	Message    string
	AutoBranch bool
	Stream     bool
}

type TurnResult struct {
	NodeID           string                  `json:"node_id"`
	ReferenceNode    *domain.Node            `json:"reference_node,omitempty"`
	UserMessage      domain.Message          `json:"user_message"`
	AssistantMessage domain.Message          `json:"assistant_message"`
	Recommendations  []domain.Recommendation `json:"recommendations,omitempty"`
}

type ChatService interface {
	// ProcessTurn runs one full chat turn: persist the user message, assemble
	// context, call the model, persist the reply, and analyze follow-up
	// branches. Streaming progress and the final result are broadcast to the
	// session room.
	ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error)
	// CreateReferenceNode builds a reference node over the given sources and
	// announces it to the session room.
	CreateReferenceNode(ctx context.Context, sessionID string, sourceNodeIDs []string, title string) (domain.Node, error)
}

type chatService struct {
	nodes     repos.NodeRepo
	messages  repos.MessageRepo
	history   HistoryService
	branches  BranchService
	summaries SummaryService
	client    llm.Client
	hub       *realtime.Hub
	log       *logger.Logger
}

func NewChatService(
	nodes repos.NodeRepo,
	messages repos.MessageRepo,
	history HistoryService,
	branches BranchService,
	summaries SummaryService,
	client llm.Client,
	hub *realtime.Hub,
	baseLog *logger.Logger,
) ChatService {
	return &chatService{
		nodes:     nodes,
		messages:  messages,
		history:   history,
		branches:  branches,
		summaries: summaries,
		client:    client,
		hub:       hub,
		log:       baseLog.With("service", "ChatService"),
	}
}

func (s *chatService) ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return TurnResult{}, apierr.Validation(fmt.Errorf("message required"))
	}

	node, err := s.nodes.Get(ctx, req.NodeID)
	if err != nil {
		return TurnResult{}, err
	}
	if node.SessionID != req.SessionID {
		return TurnResult{}, apierr.Validation(fmt.Errorf("node %s does not belong to session %s", req.NodeID, req.SessionID))
	}

	result := TurnResult{NodeID: node.ID}

	// A node with children is frozen history. Continuing the conversation
	// there forks a reference node so existing branches keep their context.
	hasChildren, err := s.nodes.HasChildren(ctx, node.ID)
	if err != nil {
		return TurnResult{}, err
	}
	if hasChildren {
		ref, err := s.forkReference(ctx, node)
		if err != nil {
			return TurnResult{}, err
		}
		result.ReferenceNode = &ref
		result.NodeID = ref.ID
		node = ref
	}

	userMsg, err := s.messages.Create(ctx, repos.NewMessage{
		NodeID:  node.ID,
		Role:    domain.RoleUser,
		Content: req.Message,
	})
	if err != nil {
		return TurnResult{}, err
	}
	result.UserMessage = userMsg

	if req.Stream {
		s.hub.Broadcast(req.SessionID, realtime.StreamStart(req.SessionID, node.ID, userMsg.ID))
	}

	history, err := s.history.Assemble(ctx, node.ID)
	if err != nil {
		s.broadcastFailure(req, node.ID, "Failed to assemble conversation context")
		return TurnResult{}, err
	}
	prompt, err := s.budgetedPrompt(ctx, node.ID, history)
	if err != nil {
		s.broadcastFailure(req, node.ID, "Failed to prepare conversation context")
		return TurnResult{}, err
	}

	var replyText string
	if req.Stream {
		replyText, err = s.client.Stream(ctx, prompt, chatTemperature, func(delta string) {
			s.hub.Broadcast(req.SessionID, realtime.StreamChunk(req.SessionID, node.ID, delta))
		})
	} else {
		var chat llm.ChatResult
		chat, err = s.client.Chat(ctx, prompt, chatTemperature)
		replyText = chat.Content
	}
	if err != nil {
		s.broadcastFailure(req, node.ID, "Model request failed")
		return TurnResult{}, err
	}

	assistantMsg, err := s.messages.Create(ctx, repos.NewMessage{
		NodeID:  node.ID,
		Role:    domain.RoleAssistant,
		Content: replyText,
	})
	if err != nil {
		s.broadcastFailure(req, node.ID, "Failed to persist model reply")
		return TurnResult{}, err
	}
	result.AssistantMessage = assistantMsg

	if req.AutoBranch {
		analysisPrompt := append(prompt, llm.Message{Role: domain.RoleAssistant, Content: replyText})
		recs, err := s.branches.Analyze(ctx, req.SessionID, node.ID, assistantMsg.ID, analysisPrompt)
		if err != nil {
			// Branch analysis is advisory. The reply already landed.
			s.log.Warn("Branch analysis failed", "node_id", node.ID, "error", err)
		} else {
			result.Recommendations = recs
		}
	}

	if req.Stream {
		s.hub.Broadcast(req.SessionID, realtime.StreamEnd(req.SessionID, node.ID, assistantMsg.ID, replyText, result.Recommendations))
	} else {
		s.hub.Broadcast(req.SessionID, realtime.ChatResponse(node.ID, assistantMsg, result.Recommendations))
	}
	return result, nil
}

func (s *chatService) CreateReferenceNode(ctx context.Context, sessionID string, sourceNodeIDs []string, title string) (domain.Node, error) {
	if len(sourceNodeIDs) == 0 {
		return domain.Node{}, apierr.Validation(fmt.Errorf("source_node_ids required"))
	}

	s.hub.Broadcast(sessionID, realtime.CreatingReferenceNode(sourceNodeIDs))

	if strings.TrimSpace(title) == "" {
		title = "Reference"
	}
	parentID := sourceNodeIDs[0]
	ref, err := s.nodes.CreateReference(ctx, repos.NewReferenceNode{
		SessionID:     sessionID,
		ParentID:      &parentID,
		SourceNodeIDs: sourceNodeIDs,
		Title:         title,
	})
	if err != nil {
		s.hub.Broadcast(sessionID, realtime.ErrorEvent("Failed to create reference node"))
		return domain.Node{}, err
	}

	s.hub.Broadcast(sessionID, realtime.ReferenceNodeCreated(ref, &realtime.EdgeDescriptor{
		ID:     "parent-ref-" + ref.ID,
		Source: parentID,
		Target: ref.ID,
		Label:  referenceEdgeLabel,
	}))
	return ref, nil
}

// forkReference is the automatic variant used mid-turn, continuing from a
// node that already has children. The source node gets a summary of its own
// exchange first so the fork reads cleanly.
func (s *chatService) forkReference(ctx context.Context, node domain.Node) (domain.Node, error) {
	if err := s.summaries.SummariseParentIfNeeded(ctx, node.ID); err != nil {
		s.log.Warn("Pre-fork summary failed, continuing", "node_id", node.ID, "error", err)
	}

	title := node.Title
	if title == "" {
		title = "Conversation"
	}
	return s.CreateReferenceNode(ctx, node.SessionID, []string{node.ID}, title+" (continued)")
}

// budgetedPrompt converts assembled history to the model's shape. Over the
// token budget, messages inherited from other nodes are collapsed into a
// single synthesised system message while the current node's own exchange
// stays verbatim.
func (s *chatService) budgetedPrompt(ctx context.Context, nodeID string, history domain.ConversationHistory) ([]llm.Message, error) {
	if history.TotalTokens <= tokenLimit {
		return preparePrompt(history.Messages), nil
	}

	var parent, current []domain.Message
	for _, m := range history.Messages {
		if m.NodeID == nodeID {
			current = append(current, m)
		} else {
			parent = append(parent, m)
		}
	}
	if len(parent) == 0 {
		return preparePrompt(current), nil
	}

	contents := make([]string, 0, len(parent))
	for _, m := range parent {
		contents = append(contents, m.Role+": "+m.Content)
	}
	summary, err := s.client.Summarise(ctx, contents, "Condense this conversation history, preserving decisions and open threads.")
	if err != nil {
		return nil, err
	}

	s.log.Debug("Collapsed inherited history over token budget", "total_tokens", history.TotalTokens, "collapsed_messages", len(parent))
	collapsed := append([]domain.Message{{
		Role:    domain.RoleSystem,
		Content: "Earlier context summary: " + summary.Summary,
	}}, current...)
	return preparePrompt(collapsed), nil
}

// preparePrompt prepends the assistant system instruction and keeps only the
// most recent history window.
func preparePrompt(messages []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: domain.RoleSystem, Content: systemInstruction})
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	if len(out) > promptRecentWindow+1 {
		out = append(out[:1], out[len(out)-promptRecentWindow:]...)
	}
	return out
}

func (s *chatService) broadcastFailure(req TurnRequest, nodeID, message string) {
	s.hub.Broadcast(req.SessionID, realtime.ErrorEvent(message))
	if req.Stream {
		s.hub.Broadcast(req.SessionID, realtime.StreamEndError(req.SessionID, nodeID, message))
	}
}
