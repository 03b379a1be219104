package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func addMessage(t *testing.T, messages repos.MessageRepo, nodeID, role, content string) domain.Message {
	t.Helper()
	m, err := messages.Create(context.Background(), repos.NewMessage{NodeID: nodeID, Role: role, Content: content})
	require.NoError(t, err)
	return m
}

func TestAssembleWalksAncestorChain(t *testing.T) {
	nodes := newFakeNodeRepo()
	messages := newFakeMessageRepo()
	svc := NewHistoryService(nodes, messages, mustTestLogger(t))

	root := nodes.seed(domain.Node{ID: "root", SessionID: "s1", Type: domain.NodeTypeRoot}, "")
	mid := nodes.seed(domain.Node{ID: "mid", SessionID: "s1", Type: domain.NodeTypeMain}, root.ID)
	leaf := nodes.seed(domain.Node{ID: "leaf", SessionID: "s1", Type: domain.NodeTypeTopic}, mid.ID)

	addMessage(t, messages, root.ID, domain.RoleUser, "question one")
	addMessage(t, messages, mid.ID, domain.RoleAssistant, "answer one")
	addMessage(t, messages, leaf.ID, domain.RoleUser, "question two")

	history, err := svc.Assemble(context.Background(), leaf.ID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 3)
	require.False(t, history.IsSummarized)

	for i := 1; i < len(history.Messages); i++ {
		require.False(t, history.Messages[i].Timestamp.Before(history.Messages[i-1].Timestamp),
			"messages must be timestamp ordered")
	}
	require.Equal(t, "question one", history.Messages[0].Content)
	require.Equal(t, "question two", history.Messages[2].Content)
}

func TestAssembleStopsAtSummarizedAncestor(t *testing.T) {
	nodes := newFakeNodeRepo()
	messages := newFakeMessageRepo()
	svc := NewHistoryService(nodes, messages, mustTestLogger(t))

	root := nodes.seed(domain.Node{ID: "root", SessionID: "s1", Type: domain.NodeTypeRoot}, "")
	condensed := "everything so far, condensed"
	summary := nodes.seed(domain.Node{
		ID:             "summary",
		SessionID:      "s1",
		Type:           domain.NodeTypeSummary,
		IsSummary:      true,
		SummaryContent: &condensed,
	}, root.ID)
	leaf := nodes.seed(domain.Node{ID: "leaf", SessionID: "s1", Type: domain.NodeTypeMain}, summary.ID)

	addMessage(t, messages, root.ID, domain.RoleUser, "ancient context that must not leak")
	addMessage(t, messages, leaf.ID, domain.RoleUser, "fresh question")

	history, err := svc.Assemble(context.Background(), leaf.ID)
	require.NoError(t, err)
	require.True(t, history.IsSummarized)

	for _, m := range history.Messages {
		require.NotEqual(t, root.ID, m.NodeID, "messages above the summary must not leak through")
	}
	require.Equal(t, domain.RoleSystem, history.Messages[0].Role)
	require.Contains(t, history.Messages[0].Content, condensed)
	require.Equal(t, "fresh question", history.Messages[len(history.Messages)-1].Content)
}

func TestAssembleTargetSummaryNodeKeepsOwnMessages(t *testing.T) {
	nodes := newFakeNodeRepo()
	messages := newFakeMessageRepo()
	svc := NewHistoryService(nodes, messages, mustTestLogger(t))

	summary := nodes.seed(domain.Node{ID: "summary", SessionID: "s1", Type: domain.NodeTypeSummary, IsSummary: true}, "")
	addMessage(t, messages, summary.ID, domain.RoleUser, "chatting on the summary itself")

	history, err := svc.Assemble(context.Background(), summary.ID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	require.False(t, history.IsSummarized, "the target itself being a summary is not a summarized walk")
}

func TestAssembleReferenceMergesAndDeduplicates(t *testing.T) {
	nodes := newFakeNodeRepo()
	messages := newFakeMessageRepo()
	svc := NewHistoryService(nodes, messages, mustTestLogger(t))

	root := nodes.seed(domain.Node{ID: "root", SessionID: "s1", Type: domain.NodeTypeRoot}, "")
	left := nodes.seed(domain.Node{ID: "left", SessionID: "s1", Type: domain.NodeTypeTopic}, root.ID)
	right := nodes.seed(domain.Node{ID: "right", SessionID: "s1", Type: domain.NodeTypeTopic}, root.ID)

	sharedRoot := addMessage(t, messages, root.ID, domain.RoleUser, "shared origin")
	addMessage(t, messages, left.ID, domain.RoleAssistant, "left branch reply")
	addMessage(t, messages, right.ID, domain.RoleAssistant, "right branch reply")

	parentID := left.ID
	ref, err := nodes.CreateReference(context.Background(), repos.NewReferenceNode{
		SessionID:     "s1",
		ParentID:      &parentID,
		SourceNodeIDs: []string{left.ID, right.ID},
		Title:         "merged view",
	})
	require.NoError(t, err)
	addMessage(t, messages, ref.ID, domain.RoleUser, "question over both branches")

	history, err := svc.Assemble(context.Background(), ref.ID)
	require.NoError(t, err)

	// Both branch chains include the root message; it must appear once.
	seen := 0
	for _, m := range history.Messages {
		if m.ID == sharedRoot.ID {
			seen++
		}
	}
	require.Equal(t, 1, seen, "shared ancestor message must be deduplicated")

	require.Len(t, history.Messages, 4)
	require.Equal(t, "question over both branches", history.Messages[len(history.Messages)-1].Content)
	for i := 1; i < len(history.Messages); i++ {
		require.False(t, history.Messages[i].Timestamp.Before(history.Messages[i-1].Timestamp))
	}
}

func TestAssembleReferenceWithoutTreeEdge(t *testing.T) {
	nodes := newFakeNodeRepo()
	messages := newFakeMessageRepo()
	svc := NewHistoryService(nodes, messages, mustTestLogger(t))

	source := nodes.seed(domain.Node{ID: "src", SessionID: "s1", Type: domain.NodeTypeMain}, "")
	addMessage(t, messages, source.ID, domain.RoleUser, "source content")

	parentID := source.ID
	ref, err := nodes.CreateReference(context.Background(), repos.NewReferenceNode{
		SessionID:     "s1",
		ParentID:      &parentID,
		SourceNodeIDs: []string{source.ID},
		Title:         "continued",
	})
	require.NoError(t, err)

	// The reference floats: its ancestor chain is itself only, yet assembly
	// still pulls the source history through the reference semantics.
	history, err := svc.Assemble(context.Background(), ref.ID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	require.Equal(t, "source content", history.Messages[0].Content)
}
