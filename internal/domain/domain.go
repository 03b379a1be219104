package domain

import "time"

// NodeType enumerates the vertex kinds of the conversation graph.
type NodeType string

const (
	NodeTypeRoot        NodeType = "root"
	NodeTypeMain        NodeType = "main"
	NodeTypeTopic       NodeType = "topic"
	NodeTypeExploration NodeType = "exploration"
	NodeTypeQuestion    NodeType = "question"
	NodeTypeSolution    NodeType = "solution"
	NodeTypeSummary     NodeType = "summary"
	NodeTypeReference   NodeType = "reference"
)

func ValidNodeType(t NodeType) bool {
	switch t {
	case NodeTypeRoot, NodeTypeMain, NodeTypeTopic, NodeTypeExploration,
		NodeTypeQuestion, NodeTypeSolution, NodeTypeSummary, NodeTypeReference:
		return true
	}
	return false
}

type RecommendationStatus string

const (
	RecommendationPending   RecommendationStatus = "pending"
	RecommendationCreated   RecommendationStatus = "created"
	RecommendationDismissed RecommendationStatus = "dismissed"
	RecommendationExpired   RecommendationStatus = "expired"
)

func ValidRecommendationStatus(s RecommendationStatus) bool {
	switch s {
	case RecommendationPending, RecommendationCreated, RecommendationDismissed, RecommendationExpired:
		return true
	}
	return false
}

// Session is the top-level container for one branching conversation. The root
// node is created atomically with the session and never changes.
type Session struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	UserID     *string        `json:"user_id,omitempty"`
	RootNodeID string         `json:"root_node_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	NodeCount  int            `json:"node_count"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type SessionWithNodes struct {
	Session
	Nodes []Node `json:"nodes"`
}

// Node is a vertex in the conversation graph. Summary and reference nodes are
// floating aggregators: they carry SourceNodeIDs and are attached to their
// sources through SUMMARIZED_TO / REFERENCED_BY relations rather than
// HAS_CHILD edges (reference nodes additionally keep a parent for layout).
type Node struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	ParentID       *string        `json:"parent_id,omitempty"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Type           NodeType       `json:"type"`
	IsActive       bool           `json:"is_active"`
	IsSummary      bool           `json:"is_summary"`
	IsGenerating   bool           `json:"is_generating"`
	SummaryContent *string        `json:"summary_content,omitempty"`
	SourceNodeIDs  []string       `json:"source_node_ids,omitempty"`
	Depth          int            `json:"depth"`
	MessageCount   int            `json:"message_count"`
	TokenCount     int            `json:"token_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type NodeWithMessages struct {
	Node
	Messages []Message `json:"messages"`
}

// AncestorRef is one hop of a root-ward walk: Distance 0 is the target node
// itself, increasing toward the root.
type AncestorRef struct {
	ID        string
	Type      NodeType
	IsSummary bool
	Distance  int
}

type Message struct {
	ID         string    `json:"id"`
	NodeID     string    `json:"node_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokenCount int       `json:"token_count"`
	Embedding  []float64 `json:"embedding,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant || role == RoleSystem
}

// Recommendation is an LLM-proposed future branch attached to an assistant
// message. Status transitions: pending -> created | dismissed | expired.
// Dismissal is terminal; a dismissed recommendation is never re-activated.
type Recommendation struct {
	ID              string               `json:"id"`
	SessionID       string               `json:"session_id"`
	NodeID          string               `json:"node_id"`
	MessageID       string               `json:"message_id"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Type            string               `json:"type"`
	Priority        float64              `json:"priority"`
	EstimatedDepth  int                  `json:"estimated_depth"`
	EdgeLabel       string               `json:"edge_label"`
	Status          RecommendationStatus `json:"status"`
	CreatedBranchID *string              `json:"created_branch_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       *time.Time           `json:"updated_at,omitempty"`
	DismissedAt     *time.Time           `json:"dismissed_at,omitempty"`
}

// ConversationHistory is the ordered message list the context assembler hands
// to the LLM, plus the token estimate used by the budget check.
type ConversationHistory struct {
	Messages     []Message `json:"messages"`
	TotalTokens  int       `json:"total_tokens"`
	IsSummarized bool      `json:"is_summarized"`
}

// DeleteResult reports a batch node delete. Partial success is surfaced
// verbatim: ids that vanished, ids that could not be removed, and the
// descendants removed per cascade root.
type DeleteResult struct {
	Deleted  []string            `json:"deleted"`
	Failed   []string            `json:"failed"`
	Cascaded map[string][]string `json:"cascaded"`
}
