package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/graph"
	"github.com/Byeongcheol-Kim/graphchat/internal/llm"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
)

// fakeNodeRepo is an in-memory NodeRepo. Tree edges exist only for nodes made
// through Create with a parent; summary and reference nodes float, as in the
// real store.
type fakeNodeRepo struct {
	mu       sync.Mutex
	seq      int
	nodes    map[string]domain.Node
	children map[string][]string
	parents  map[string]string
}

func newFakeNodeRepo() *fakeNodeRepo {
	return &fakeNodeRepo{
		nodes:    map[string]domain.Node{},
		children: map[string][]string{},
		parents:  map[string]string{},
	}
}

func (f *fakeNodeRepo) nextID() string {
	f.seq++
	return fmt.Sprintf("node-%d", f.seq)
}

func (f *fakeNodeRepo) put(n domain.Node) domain.Node {
	f.nodes[n.ID] = n
	return n
}

// seed inserts a node without going through Create, wiring a tree edge when
// parentID is non-empty.
func (f *fakeNodeRepo) seed(n domain.Node, parentID string) domain.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		n.ID = f.nextID()
	}
	if parentID != "" {
		n.ParentID = &parentID
		f.children[parentID] = append(f.children[parentID], n.ID)
		f.parents[n.ID] = parentID
		n.Depth = f.nodes[parentID].Depth + 1
	}
	return f.put(n)
}

func (f *fakeNodeRepo) Create(ctx context.Context, in repos.NewNode) (domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := domain.Node{
		ID:        f.nextID(),
		SessionID: in.SessionID,
		ParentID:  in.ParentID,
		Title:     in.Title,
		Content:   in.Content,
		Type:      in.Type,
		IsActive:  true,
		Metadata:  in.Metadata,
		CreatedAt: time.Now(),
	}
	if in.ParentID != nil {
		parent, ok := f.nodes[*in.ParentID]
		if !ok {
			return domain.Node{}, graph.NotFound("node.create", errors.New("parent missing"))
		}
		n.Depth = parent.Depth + 1
		f.children[parent.ID] = append(f.children[parent.ID], n.ID)
		f.parents[n.ID] = parent.ID
	}
	return f.put(n), nil
}

func (f *fakeNodeRepo) Get(ctx context.Context, id string) (domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return domain.Node{}, graph.NotFound("node.get", errors.New("no rows"))
	}
	return n, nil
}

func (f *fakeNodeRepo) List(ctx context.Context, sessionID string, skip, limit int) ([]domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Node
	for _, n := range f.nodes {
		if n.SessionID == sessionID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNodeRepo) Children(ctx context.Context, id string) ([]domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Node
	for _, cid := range f.children[id] {
		out = append(out, f.nodes[cid])
	}
	return out, nil
}

func (f *fakeNodeRepo) Ancestors(ctx context.Context, id string) ([]domain.Node, error) {
	chain, err := f.AncestorChain(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Node
	for i := len(chain) - 1; i >= 1; i-- {
		out = append(out, f.nodes[chain[i].ID])
	}
	return out, nil
}

func (f *fakeNodeRepo) AncestorChain(ctx context.Context, id string) ([]domain.AncestorRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[id]; !ok {
		return nil, graph.NotFound("node.ancestor_chain", errors.New("no rows"))
	}
	var chain []domain.AncestorRef
	current := id
	dist := 0
	for {
		n := f.nodes[current]
		chain = append(chain, domain.AncestorRef{ID: n.ID, Type: n.Type, IsSummary: n.IsSummary, Distance: dist})
		parent, ok := f.parents[current]
		if !ok {
			return chain, nil
		}
		current = parent
		dist++
	}
}

func (f *fakeNodeRepo) Descendants(ctx context.Context, id string, maxDepth int) ([]domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Node
	var walk func(string, int)
	walk = func(cur string, depth int) {
		if maxDepth > 0 && depth > maxDepth {
			return
		}
		for _, cid := range f.children[cur] {
			out = append(out, f.nodes[cid])
			walk(cid, depth+1)
		}
	}
	walk(id, 1)
	return out, nil
}

func (f *fakeNodeRepo) Path(ctx context.Context, id string) ([]domain.Node, error) {
	ancestors, err := f.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return append(ancestors, n), nil
}

func (f *fakeNodeRepo) Leaves(ctx context.Context, sessionID string) ([]domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Node
	for id, n := range f.nodes {
		if n.SessionID == sessionID && len(f.children[id]) == 0 {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNodeRepo) Relations(ctx context.Context, id string) (repos.NodeRelations, error) {
	n, err := f.Get(ctx, id)
	if err != nil {
		return repos.NodeRelations{}, err
	}
	return repos.NodeRelations{Current: n}, nil
}

func (f *fakeNodeRepo) HasChildren(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[id]; !ok {
		return false, graph.NotFound("node.has_children", errors.New("no rows"))
	}
	return len(f.children[id]) > 0, nil
}

func (f *fakeNodeRepo) Update(ctx context.Context, id string, patch repos.NodePatch) (domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return domain.Node{}, graph.NotFound("node.update", errors.New("no rows"))
	}
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Content != nil {
		n.Content = *patch.Content
	}
	if patch.IsActive != nil {
		n.IsActive = *patch.IsActive
	}
	if patch.Metadata != nil {
		n.Metadata = patch.Metadata
	}
	if patch.SummaryContent != nil {
		n.SummaryContent = patch.SummaryContent
	}
	if patch.IsGenerating != nil {
		n.IsGenerating = *patch.IsGenerating
	}
	return f.put(n), nil
}

func (f *fakeNodeRepo) SetSummaryContent(ctx context.Context, id string, content string) error {
	_, err := f.Update(ctx, id, repos.NodePatch{SummaryContent: &content})
	return err
}

func (f *fakeNodeRepo) FinishSummary(ctx context.Context, id, title, content, summaryContent string, tokenCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return graph.NotFound("node.finish_summary", errors.New("no rows"))
	}
	n.Title = title
	n.Content = content
	n.SummaryContent = &summaryContent
	n.TokenCount = tokenCount
	n.IsGenerating = false
	f.put(n)
	return nil
}

func (f *fakeNodeRepo) Delete(ctx context.Context, ids []string, cascade bool) (domain.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := domain.DeleteResult{Cascaded: map[string][]string{}}
	for _, id := range ids {
		if _, ok := f.nodes[id]; !ok {
			result.Failed = append(result.Failed, id)
			continue
		}
		delete(f.nodes, id)
		result.Deleted = append(result.Deleted, id)
	}
	return result, nil
}

func (f *fakeNodeRepo) CreateSummary(ctx context.Context, in repos.NewSummaryNode) (domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := domain.Node{
		ID:            f.nextID(),
		SessionID:     in.SessionID,
		Title:         in.Title,
		Content:       in.Content,
		Type:          domain.NodeTypeSummary,
		IsActive:      true,
		IsSummary:     true,
		IsGenerating:  true,
		SourceNodeIDs: in.SourceNodeIDs,
		CreatedAt:     time.Now(),
	}
	return f.put(n), nil
}

func (f *fakeNodeRepo) CreateReference(ctx context.Context, in repos.NewReferenceNode) (domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxDepth := 0
	for _, sid := range in.SourceNodeIDs {
		src, ok := f.nodes[sid]
		if !ok {
			return domain.Node{}, graph.NotFound("node.create_reference", errors.New("source missing"))
		}
		if src.Depth > maxDepth {
			maxDepth = src.Depth
		}
	}
	n := domain.Node{
		ID:            f.nextID(),
		SessionID:     in.SessionID,
		ParentID:      in.ParentID,
		Title:         in.Title,
		Content:       in.Content,
		Type:          domain.NodeTypeReference,
		IsActive:      true,
		SourceNodeIDs: in.SourceNodeIDs,
		Depth:         maxDepth + 1,
		CreatedAt:     time.Now(),
	}
	return f.put(n), nil
}

func (f *fakeNodeRepo) TotalTokens(ctx context.Context, ids []string) (int, error) {
	return 0, nil
}

// fakeMessageRepo assigns strictly increasing timestamps so ordering tests
// are deterministic.
type fakeMessageRepo struct {
	mu     sync.Mutex
	seq    int
	byNode map[string][]domain.Message
	byID   map[string]domain.Message
	base   time.Time
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		byNode: map[string][]domain.Message{},
		byID:   map[string]domain.Message{},
		base:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeMessageRepo) Create(ctx context.Context, in repos.NewMessage) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m := domain.Message{
		ID:         fmt.Sprintf("msg-%d", f.seq),
		NodeID:     in.NodeID,
		Role:       in.Role,
		Content:    in.Content,
		Timestamp:  f.base.Add(time.Duration(f.seq) * time.Second),
		TokenCount: domain.EstimateTokens(in.Content),
	}
	f.byNode[in.NodeID] = append(f.byNode[in.NodeID], m)
	f.byID[m.ID] = m
	return m, nil
}

func (f *fakeMessageRepo) Get(ctx context.Context, id string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return domain.Message{}, graph.NotFound("message.get", errors.New("no rows"))
	}
	return m, nil
}

func (f *fakeMessageRepo) ListByNode(ctx context.Context, nodeID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message{}, f.byNode[nodeID]...), nil
}

func (f *fakeMessageRepo) ListByNodePaginated(ctx context.Context, nodeID string, skip, limit int) ([]domain.Message, error) {
	all, _ := f.ListByNode(ctx, nodeID)
	if skip >= len(all) {
		return nil, nil
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}
	return all[skip:end], nil
}

func (f *fakeMessageRepo) ListByNodes(ctx context.Context, nodeIDs []string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, id := range nodeIDs {
		out = append(out, f.byNode[id]...)
	}
	// Global timestamp order, as the batched query returns it.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Timestamp.Before(out[j-1].Timestamp); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return graph.NotFound("message.delete", errors.New("no rows"))
	}
	delete(f.byID, id)
	msgs := f.byNode[m.NodeID]
	for i, cur := range msgs {
		if cur.ID == id {
			f.byNode[m.NodeID] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeMessageRepo) SetEmbedding(ctx context.Context, id string, embedding []float64) error {
	return nil
}

// fakeRecommendationRepo keeps recommendations in creation order.
type fakeRecommendationRepo struct {
	mu   sync.Mutex
	seq  int
	recs map[string]domain.Recommendation
	ids  []string
}

func newFakeRecommendationRepo() *fakeRecommendationRepo {
	return &fakeRecommendationRepo{recs: map[string]domain.Recommendation{}}
}

func (f *fakeRecommendationRepo) Create(ctx context.Context, in repos.NewRecommendation) (domain.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	rec := domain.Recommendation{
		ID:             fmt.Sprintf("rec-%d", f.seq),
		SessionID:      in.SessionID,
		NodeID:         in.NodeID,
		MessageID:      in.MessageID,
		Title:          in.Title,
		Description:    in.Description,
		Type:           in.Type,
		Priority:       in.Priority,
		EstimatedDepth: in.EstimatedDepth,
		EdgeLabel:      in.EdgeLabel,
		Status:         domain.RecommendationPending,
		CreatedAt:      time.Now(),
	}
	f.recs[rec.ID] = rec
	f.ids = append(f.ids, rec.ID)
	return rec, nil
}

func (f *fakeRecommendationRepo) CreateBatch(ctx context.Context, items []repos.NewRecommendation) ([]domain.Recommendation, error) {
	out := make([]domain.Recommendation, 0, len(items))
	for _, item := range items {
		rec, err := f.Create(ctx, item)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRecommendationRepo) Get(ctx context.Context, id string) (domain.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return domain.Recommendation{}, graph.NotFound("recommendation.get", errors.New("no rows"))
	}
	return rec, nil
}

func (f *fakeRecommendationRepo) ListByMessage(ctx context.Context, messageID string) ([]domain.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Recommendation
	for _, id := range f.ids {
		if rec := f.recs[id]; rec.MessageID == messageID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecommendationRepo) ListByNode(ctx context.Context, nodeID string, status *domain.RecommendationStatus) ([]domain.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Recommendation
	for _, id := range f.ids {
		rec := f.recs[id]
		if rec.NodeID != nodeID {
			continue
		}
		if status != nil && rec.Status != *status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRecommendationRepo) ListActiveBySession(ctx context.Context, sessionID string) (map[string][]domain.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]domain.Recommendation{}
	for _, id := range f.ids {
		if rec := f.recs[id]; rec.SessionID == sessionID {
			out[rec.NodeID] = append(out[rec.NodeID], rec)
		}
	}
	return out, nil
}

func (f *fakeRecommendationRepo) Update(ctx context.Context, id string, patch repos.RecommendationPatch) (domain.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return domain.Recommendation{}, graph.NotFound("recommendation.update", errors.New("no rows"))
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.CreatedBranchID != nil {
		rec.CreatedBranchID = patch.CreatedBranchID
	}
	f.recs[id] = rec
	return rec, nil
}

func (f *fakeRecommendationRepo) MarkCreated(ctx context.Context, id, branchID string) (domain.Recommendation, error) {
	status := domain.RecommendationCreated
	return f.Update(ctx, id, repos.RecommendationPatch{Status: &status, CreatedBranchID: &branchID})
}

func (f *fakeRecommendationRepo) MarkDismissed(ctx context.Context, id string) (domain.Recommendation, error) {
	status := domain.RecommendationDismissed
	return f.Update(ctx, id, repos.RecommendationPatch{Status: &status})
}

// fakeLLM returns scripted output and records the last prompt it saw.
type fakeLLM struct {
	mu            sync.Mutex
	chatReply     string
	summaryResult llm.SummaryResult
	summaryErr    error
	branches      []llm.Branch
	branchErr     error
	lastPrompt    []llm.Message
	lastContents  []string
	analyzeTemp   float64
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		chatReply:     "fake assistant reply",
		summaryResult: llm.SummaryResult{Title: "Condensed", Summary: "condensed history"},
	}
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, temperature float64) (llm.ChatResult, error) {
	f.mu.Lock()
	f.lastPrompt = append([]llm.Message{}, messages...)
	f.mu.Unlock()
	return llm.ChatResult{Content: f.chatReply, FinishReason: "stop"}, nil
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, temperature float64, onDelta func(delta string)) (string, error) {
	f.mu.Lock()
	f.lastPrompt = append([]llm.Message{}, messages...)
	f.mu.Unlock()
	half := len(f.chatReply) / 2
	onDelta(f.chatReply[:half])
	onDelta(f.chatReply[half:])
	return f.chatReply, nil
}

func (f *fakeLLM) Summarise(ctx context.Context, contents []string, instructions string) (llm.SummaryResult, error) {
	f.mu.Lock()
	f.lastContents = append([]string{}, contents...)
	f.mu.Unlock()
	if f.summaryErr != nil {
		return llm.SummaryResult{}, f.summaryErr
	}
	return f.summaryResult, nil
}

func (f *fakeLLM) AnalyzeBranches(ctx context.Context, messages []llm.Message, temperature float64) ([]llm.Branch, error) {
	f.mu.Lock()
	f.analyzeTemp = temperature
	f.mu.Unlock()
	if f.branchErr != nil {
		return nil, f.branchErr
	}
	return f.branches, nil
}

func (f *fakeLLM) prompt() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Message{}, f.lastPrompt...)
}
