package repos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/graph"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/apierr"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

type NewNode struct {
	SessionID string
	ParentID  *string
	Title     string
	Content   string
	Type      domain.NodeType
	Metadata  map[string]any
}

type NodePatch struct {
	Title          *string
	Content        *string
	IsActive       *bool
	Metadata       map[string]any
	SummaryContent *string
	IsGenerating   *bool
}

// NodeRelations is the full neighbourhood of a node as the graph UI renders
// it.
type NodeRelations struct {
	Current     domain.Node   `json:"current"`
	Ancestors   []domain.Node `json:"ancestors"`
	Descendants []domain.Node `json:"descendants"`
	Siblings    []domain.Node `json:"siblings"`
	Path        []domain.Node `json:"path"`
}

type NewSummaryNode struct {
	SessionID     string
	SourceNodeIDs []string
	Title         string
	Content       string
	Metadata      map[string]any
}

type NewReferenceNode struct {
	SessionID     string
	ParentID      *string
	SourceNodeIDs []string
	Title         string
	Content       string
}

type NodeRepo interface {
	Create(ctx context.Context, in NewNode) (domain.Node, error)
	Get(ctx context.Context, id string) (domain.Node, error)
	List(ctx context.Context, sessionID string, skip, limit int) ([]domain.Node, error)
	Children(ctx context.Context, id string) ([]domain.Node, error)
	// Ancestors returns strict ancestors ordered root first.
	Ancestors(ctx context.Context, id string) ([]domain.Node, error)
	// AncestorChain returns the target plus its ancestors ordered by distance
	// from the target; the context assembler walks it root-ward.
	AncestorChain(ctx context.Context, id string) ([]domain.AncestorRef, error)
	// Descendants returns the transitive HAS_CHILD closure; maxDepth <= 0
	// means unbounded.
	Descendants(ctx context.Context, id string, maxDepth int) ([]domain.Node, error)
	// Path returns root -> ... -> target.
	Path(ctx context.Context, id string) ([]domain.Node, error)
	Leaves(ctx context.Context, sessionID string) ([]domain.Node, error)
	Relations(ctx context.Context, id string) (NodeRelations, error)
	HasChildren(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, patch NodePatch) (domain.Node, error)
	SetSummaryContent(ctx context.Context, id string, content string) error
	// FinishSummary completes (or fails) an asynchronous summary fill; it
	// always clears is_generating.
	FinishSummary(ctx context.Context, id, title, content, summaryContent string, tokenCount int) error
	Delete(ctx context.Context, ids []string, cascade bool) (domain.DeleteResult, error)
	CreateSummary(ctx context.Context, in NewSummaryNode) (domain.Node, error)
	CreateReference(ctx context.Context, in NewReferenceNode) (domain.Node, error)
	TotalTokens(ctx context.Context, ids []string) (int, error)
}

type nodeRepo struct {
	store *graph.Store
	log   *logger.Logger
}

func NewNodeRepo(store *graph.Store, baseLog *logger.Logger) NodeRepo {
	return &nodeRepo{
		store: store,
		log:   baseLog.With("repo", "NodeRepo"),
	}
}

// Create inserts a node under its parent (depth = parent.depth + 1) or as a
// depth-0 node when unparented, and bumps the session node counter.
func (r *nodeRepo) Create(ctx context.Context, in NewNode) (domain.Node, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return domain.Node{}, apierr.Validation(fmt.Errorf("session_id required"))
	}
	if in.Type == "" {
		in.Type = domain.NodeTypeMain
	}
	if !domain.ValidNodeType(in.Type) {
		return domain.Node{}, apierr.Validation(fmt.Errorf("unknown node type %q", in.Type))
	}

	nodeID := uuid.NewString()
	now := formatTime(time.Now())
	params := map[string]any{
		"id":            nodeID,
		"session_id":    in.SessionID,
		"title":         in.Title,
		"content":       in.Content,
		"type":          string(in.Type),
		"now":           now,
		"metadata_json": graph.EncodeJSON(orEmpty(in.Metadata)),
	}

	var cypher string
	if in.ParentID != nil && *in.ParentID != "" {
		params["parent_id"] = *in.ParentID
		cypher = `
MATCH (s:Session {id: $session_id})
MATCH (p:Node {id: $parent_id, session_id: $session_id})
CREATE (n:Node {
	id: $id,
	session_id: $session_id,
	parent_id: $parent_id,
	title: $title,
	content: $content,
	type: $type,
	depth: p.depth + 1,
	is_active: true,
	is_summary: false,
	is_generating: false,
	message_count: 0,
	token_count: 0,
	created_at: $now,
	updated_at: $now,
	metadata_json: $metadata_json
})
CREATE (p)-[:HAS_CHILD]->(n)
CREATE (s)-[:HAS_NODE]->(n)
SET s.node_count = coalesce(s.node_count, 0) + 1, s.updated_at = $now
RETURN n
`
	} else {
		cypher = `
MATCH (s:Session {id: $session_id})
CREATE (n:Node {
	id: $id,
	session_id: $session_id,
	title: $title,
	content: $content,
	type: $type,
	depth: 0,
	is_active: true,
	is_summary: false,
	is_generating: false,
	message_count: 0,
	token_count: 0,
	created_at: $now,
	updated_at: $now,
	metadata_json: $metadata_json
})
CREATE (s)-[:HAS_NODE]->(n)
SET s.node_count = coalesce(s.node_count, 0) + 1, s.updated_at = $now
RETURN n
`
	}

	out, err := r.store.Write(ctx, "node.create", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "node.create", cypher, params)
		if err != nil {
			return nil, err
		}
		return nodeFromRecord(record, "n"), nil
	})
	if err != nil {
		return domain.Node{}, err
	}

	node := out.(domain.Node)
	r.log.Debug("Node created", "node_id", node.ID, "type", node.Type, "depth", node.Depth)
	return node, nil
}

func (r *nodeRepo) Get(ctx context.Context, id string) (domain.Node, error) {
	out, err := r.store.Read(ctx, "node.get", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "node.get", `
MATCH (n:Node {id: $id})
RETURN n
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return nodeFromRecord(record, "n"), nil
	})
	if err != nil {
		return domain.Node{}, err
	}
	return out.(domain.Node), nil
}

func (r *nodeRepo) List(ctx context.Context, sessionID string, skip, limit int) ([]domain.Node, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}
	out, err := r.store.Read(ctx, "node.list", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (n:Node {session_id: $session_id})
RETURN n
ORDER BY n.created_at
SKIP $skip
LIMIT $limit
`, map[string]any{"session_id": sessionID, "skip": skip, "limit": limit})
		if err != nil {
			return nil, err
		}
		return nodesFromRecords(records, "n"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Node), nil
}

func (r *nodeRepo) Children(ctx context.Context, id string) ([]domain.Node, error) {
	out, err := r.store.Read(ctx, "node.children", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (:Node {id: $id})-[:HAS_CHILD]->(c:Node)
RETURN c
ORDER BY c.created_at
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return nodesFromRecords(records, "c"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Node), nil
}

func (r *nodeRepo) Ancestors(ctx context.Context, id string) ([]domain.Node, error) {
	out, err := r.store.Read(ctx, "node.ancestors", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH path = (:Node {id: $id})<-[:HAS_CHILD*1..]-(a:Node)
RETURN a, length(path) AS distance
ORDER BY distance DESC
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return nodesFromRecords(records, "a"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Node), nil
}

func (r *nodeRepo) AncestorChain(ctx context.Context, id string) ([]domain.AncestorRef, error) {
	out, err := r.store.Read(ctx, "node.ancestor_chain", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH path = (:Node {id: $id})<-[:HAS_CHILD*0..]-(a:Node)
RETURN a.id AS id, a.type AS type, coalesce(a.is_summary, false) AS is_summary, length(path) AS distance
ORDER BY distance
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		chain := make([]domain.AncestorRef, 0, len(records))
		for _, rec := range records {
			idVal, _ := rec.Get("id")
			typeVal, _ := rec.Get("type")
			summaryVal, _ := rec.Get("is_summary")
			distVal, _ := rec.Get("distance")
			chain = append(chain, domain.AncestorRef{
				ID:        graph.AsString(idVal),
				Type:      domain.NodeType(graph.AsString(typeVal)),
				IsSummary: graph.AsBool(summaryVal),
				Distance:  graph.AsInt(distVal),
			})
		}
		return chain, nil
	})
	if err != nil {
		return nil, err
	}
	chain := out.([]domain.AncestorRef)
	if len(chain) == 0 {
		return nil, graph.NotFound("node.ancestor_chain", fmt.Errorf("node %s", id))
	}
	return chain, nil
}

func (r *nodeRepo) Descendants(ctx context.Context, id string, maxDepth int) ([]domain.Node, error) {
	depthSpec := ""
	if maxDepth > 0 {
		depthSpec = fmt.Sprintf("%d", maxDepth)
	}
	out, err := r.store.Read(ctx, "node.descendants", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, fmt.Sprintf(`
MATCH (:Node {id: $id})-[:HAS_CHILD*1..%s]->(d:Node)
RETURN DISTINCT d
ORDER BY d.depth, d.created_at
`, depthSpec), map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return nodesFromRecords(records, "d"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Node), nil
}

func (r *nodeRepo) Path(ctx context.Context, id string) ([]domain.Node, error) {
	out, err := r.store.Read(ctx, "node.path", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH path = (n:Node {id: $id})<-[:HAS_CHILD*0..]-(a:Node)
RETURN a, length(path) AS distance
ORDER BY distance DESC
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return nodesFromRecords(records, "a"), nil
	})
	if err != nil {
		return nil, err
	}
	nodes := out.([]domain.Node)
	if len(nodes) == 0 {
		return nil, graph.NotFound("node.path", fmt.Errorf("node %s", id))
	}
	return nodes, nil
}

func (r *nodeRepo) Leaves(ctx context.Context, sessionID string) ([]domain.Node, error) {
	out, err := r.store.Read(ctx, "node.leaves", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (:Session {id: $session_id})-[:HAS_NODE]->(n:Node)
WHERE NOT (n)-[:HAS_CHILD]->(:Node)
RETURN n
ORDER BY n.created_at DESC
`, map[string]any{"session_id": sessionID})
		if err != nil {
			return nil, err
		}
		return nodesFromRecords(records, "n"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Node), nil
}

func (r *nodeRepo) Relations(ctx context.Context, id string) (NodeRelations, error) {
	out, err := r.store.Read(ctx, "node.relations", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "node.relations", `
MATCH (n:Node {id: $id})
RETURN n
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rel := NodeRelations{Current: nodeFromRecord(record, "n")}

		ancestors, err := graph.Collect(ctx, tx, `
MATCH path = (:Node {id: $id})<-[:HAS_CHILD*1..]-(a:Node)
RETURN a, length(path) AS distance
ORDER BY distance DESC
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rel.Ancestors = nodesFromRecords(ancestors, "a")

		descendants, err := graph.Collect(ctx, tx, `
MATCH (:Node {id: $id})-[:HAS_CHILD*1..]->(d:Node)
RETURN DISTINCT d
ORDER BY d.depth, d.created_at
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rel.Descendants = nodesFromRecords(descendants, "d")

		siblings, err := graph.Collect(ctx, tx, `
MATCH (p:Node)-[:HAS_CHILD]->(:Node {id: $id})
MATCH (p)-[:HAS_CHILD]->(sib:Node)
WHERE sib.id <> $id
RETURN sib
ORDER BY sib.created_at
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rel.Siblings = nodesFromRecords(siblings, "sib")

		rel.Path = append(append([]domain.Node{}, rel.Ancestors...), rel.Current)
		return rel, nil
	})
	if err != nil {
		return NodeRelations{}, err
	}
	return out.(NodeRelations), nil
}

func (r *nodeRepo) HasChildren(ctx context.Context, id string) (bool, error) {
	out, err := r.store.Read(ctx, "node.has_children", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "node.has_children", `
MATCH (n:Node {id: $id})
RETURN EXISTS { (n)-[:HAS_CHILD]->(:Node) } AS has_children
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		v, _ := record.Get("has_children")
		return graph.AsBool(v), nil
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (r *nodeRepo) Update(ctx context.Context, id string, patch NodePatch) (domain.Node, error) {
	setClauses := []string{"n.updated_at = $updated_at"}
	params := map[string]any{"id": id, "updated_at": formatTime(time.Now())}

	if patch.Title != nil {
		setClauses = append(setClauses, "n.title = $title")
		params["title"] = *patch.Title
	}
	if patch.Content != nil {
		setClauses = append(setClauses, "n.content = $content")
		params["content"] = *patch.Content
	}
	if patch.IsActive != nil {
		setClauses = append(setClauses, "n.is_active = $is_active")
		params["is_active"] = *patch.IsActive
	}
	if patch.Metadata != nil {
		setClauses = append(setClauses, "n.metadata_json = $metadata_json")
		params["metadata_json"] = graph.EncodeJSON(patch.Metadata)
	}
	if patch.SummaryContent != nil {
		setClauses = append(setClauses, "n.summary_content = $summary_content")
		params["summary_content"] = *patch.SummaryContent
	}
	if patch.IsGenerating != nil {
		setClauses = append(setClauses, "n.is_generating = $is_generating")
		params["is_generating"] = *patch.IsGenerating
	}

	out, err := r.store.Write(ctx, "node.update", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "node.update", fmt.Sprintf(`
MATCH (n:Node {id: $id})
SET %s
RETURN n
`, strings.Join(setClauses, ", ")), params)
		if err != nil {
			return nil, err
		}
		return nodeFromRecord(record, "n"), nil
	})
	if err != nil {
		return domain.Node{}, err
	}
	return out.(domain.Node), nil
}

func (r *nodeRepo) SetSummaryContent(ctx context.Context, id string, content string) error {
	_, err := r.Update(ctx, id, NodePatch{SummaryContent: &content})
	return err
}

func (r *nodeRepo) FinishSummary(ctx context.Context, id, title, content, summaryContent string, tokenCount int) error {
	_, err := r.store.Write(ctx, "node.finish_summary", func(tx neo4j.ManagedTransaction) (any, error) {
		return graph.Single(ctx, tx, "node.finish_summary", `
MATCH (n:Node {id: $id})
SET n.title = $title,
    n.content = $content,
    n.summary_content = $summary_content,
    n.token_count = $token_count,
    n.is_generating = false,
    n.updated_at = $updated_at
RETURN n
`, map[string]any{
			"id":              id,
			"title":           title,
			"content":         content,
			"summary_content": summaryContent,
			"token_count":     tokenCount,
			"updated_at":      formatTime(time.Now()),
		})
	})
	return err
}

// Delete removes nodes in one transaction. With cascade, each root takes its
// transitive HAS_CHILD closure and all attached messages with it; without,
// children survive with a dangling parent_id (orphaning is accepted
// behavior). Missing ids land in Failed, the rest proceeds.
func (r *nodeRepo) Delete(ctx context.Context, ids []string, cascade bool) (domain.DeleteResult, error) {
	result := domain.DeleteResult{
		Deleted:  []string{},
		Failed:   []string{},
		Cascaded: map[string][]string{},
	}
	if len(ids) == 0 {
		return result, nil
	}

	out, err := r.store.Write(ctx, "node.delete", func(tx neo4j.ManagedTransaction) (any, error) {
		sessionIDs := map[string]bool{}

		for _, id := range ids {
			record, err := graph.Single(ctx, tx, "node.delete", `
MATCH (n:Node {id: $id})
RETURN n.session_id AS session_id
`, map[string]any{"id": id})
			if err != nil {
				if graph.IsNotFound(err) {
					result.Failed = append(result.Failed, id)
					continue
				}
				return nil, err
			}
			sid, _ := record.Get("session_id")
			sessionIDs[graph.AsString(sid)] = true

			if cascade {
				descRecords, err := graph.Collect(ctx, tx, `
MATCH (:Node {id: $id})-[:HAS_CHILD*1..]->(d:Node)
RETURN DISTINCT d.id AS id
`, map[string]any{"id": id})
				if err != nil {
					return nil, err
				}
				var cascaded []string
				for _, rec := range descRecords {
					v, _ := rec.Get("id")
					cascaded = append(cascaded, graph.AsString(v))
				}
				if len(cascaded) > 0 {
					result.Cascaded[id] = cascaded
				}

				if err := graph.RunConsume(ctx, tx, `
MATCH (n:Node {id: $id})-[:HAS_CHILD*0..]->(d:Node)
OPTIONAL MATCH (d)-[:HAS_MESSAGE]->(m:Message)
DETACH DELETE d, m
`, map[string]any{"id": id}); err != nil {
					return nil, err
				}
			} else {
				if err := graph.RunConsume(ctx, tx, `
MATCH (n:Node {id: $id})
OPTIONAL MATCH (n)-[:HAS_MESSAGE]->(m:Message)
DETACH DELETE n, m
`, map[string]any{"id": id}); err != nil {
					return nil, err
				}
			}
			result.Deleted = append(result.Deleted, id)
		}

		// Re-count surviving nodes per touched session.
		for sid := range sessionIDs {
			if sid == "" {
				continue
			}
			if err := graph.RunConsume(ctx, tx, `
MATCH (s:Session {id: $sid})
OPTIONAL MATCH (s)-[:HAS_NODE]->(n:Node)
WITH s, count(n) AS c
SET s.node_count = c, s.updated_at = $now
`, map[string]any{"sid": sid, "now": formatTime(time.Now())}); err != nil {
				return nil, err
			}
		}
		return result, nil
	})
	if err != nil {
		return domain.DeleteResult{}, err
	}
	final := out.(domain.DeleteResult)
	r.log.Info("Nodes deleted", "deleted", len(final.Deleted), "failed", len(final.Failed), "cascade", cascade)
	return final, nil
}

// CreateSummary inserts a floating summary node and its SUMMARIZED_TO
// relations atomically. Every source must live in the same session.
func (r *nodeRepo) CreateSummary(ctx context.Context, in NewSummaryNode) (domain.Node, error) {
	if len(in.SourceNodeIDs) == 0 {
		return domain.Node{}, apierr.Validation(fmt.Errorf("summary requires at least one source node"))
	}

	nodeID := uuid.NewString()
	now := formatTime(time.Now())

	out, err := r.store.Write(ctx, "node.create_summary", func(tx neo4j.ManagedTransaction) (any, error) {
		if err := r.requireSourcesInSession(ctx, tx, in.SessionID, in.SourceNodeIDs); err != nil {
			return nil, err
		}

		record, err := graph.Single(ctx, tx, "node.create_summary", `
MATCH (s:Session {id: $session_id})
CREATE (n:Node {
	id: $id,
	session_id: $session_id,
	title: $title,
	content: $content,
	type: 'summary',
	depth: 0,
	is_active: true,
	is_summary: true,
	is_generating: true,
	message_count: 0,
	token_count: 0,
	source_node_ids_json: $source_node_ids_json,
	created_at: $now,
	updated_at: $now,
	metadata_json: $metadata_json
})
CREATE (s)-[:HAS_NODE]->(n)
SET s.node_count = coalesce(s.node_count, 0) + 1, s.updated_at = $now
RETURN n
`, map[string]any{
			"id":                   nodeID,
			"session_id":           in.SessionID,
			"title":                in.Title,
			"content":              in.Content,
			"source_node_ids_json": graph.EncodeJSON(in.SourceNodeIDs),
			"now":                  now,
			"metadata_json":        graph.EncodeJSON(orEmpty(in.Metadata)),
		})
		if err != nil {
			return nil, err
		}

		if err := graph.RunConsume(ctx, tx, `
MATCH (n:Node {id: $id})
UNWIND $source_ids AS source_id
MATCH (src:Node {id: source_id})
MERGE (src)-[:SUMMARIZED_TO]->(n)
`, map[string]any{"id": nodeID, "source_ids": in.SourceNodeIDs}); err != nil {
			return nil, err
		}
		return nodeFromRecord(record, "n"), nil
	})
	if err != nil {
		return domain.Node{}, err
	}
	return out.(domain.Node), nil
}

// CreateReference inserts a floating reference node. It records parent_id for
// layout but takes no HAS_CHILD edge: references continue a conversation
// without being tree children.
func (r *nodeRepo) CreateReference(ctx context.Context, in NewReferenceNode) (domain.Node, error) {
	if len(in.SourceNodeIDs) == 0 {
		return domain.Node{}, apierr.Validation(fmt.Errorf("reference requires at least one source node"))
	}

	nodeID := uuid.NewString()
	now := formatTime(time.Now())
	params := map[string]any{
		"id":                   nodeID,
		"session_id":           in.SessionID,
		"title":                in.Title,
		"content":              in.Content,
		"source_ids":           in.SourceNodeIDs,
		"source_node_ids_json": graph.EncodeJSON(in.SourceNodeIDs),
		"now":                  now,
	}
	parentClause := ""
	if in.ParentID != nil && *in.ParentID != "" {
		parentClause = "parent_id: $parent_id,"
		params["parent_id"] = *in.ParentID
	}

	out, err := r.store.Write(ctx, "node.create_reference", func(tx neo4j.ManagedTransaction) (any, error) {
		if err := r.requireSourcesInSession(ctx, tx, in.SessionID, in.SourceNodeIDs); err != nil {
			return nil, err
		}

		record, err := graph.Single(ctx, tx, "node.create_reference", fmt.Sprintf(`
MATCH (s:Session {id: $session_id})
MATCH (src:Node)
WHERE src.id IN $source_ids
WITH s, max(src.depth) AS max_depth
CREATE (n:Node {
	id: $id,
	session_id: $session_id,
	%s
	title: $title,
	content: $content,
	type: 'reference',
	depth: max_depth + 1,
	is_active: true,
	is_summary: false,
	is_generating: false,
	message_count: 0,
	token_count: 0,
	source_node_ids_json: $source_node_ids_json,
	created_at: $now,
	updated_at: $now,
	metadata_json: '{}'
})
CREATE (s)-[:HAS_NODE]->(n)
SET s.node_count = coalesce(s.node_count, 0) + 1, s.updated_at = $now
RETURN n
`, parentClause), params)
		if err != nil {
			return nil, err
		}

		if err := graph.RunConsume(ctx, tx, `
MATCH (n:Node {id: $id})
UNWIND $source_ids AS source_id
MATCH (src:Node {id: source_id})
MERGE (src)-[:REFERENCED_BY]->(n)
`, map[string]any{"id": nodeID, "source_ids": in.SourceNodeIDs}); err != nil {
			return nil, err
		}
		return nodeFromRecord(record, "n"), nil
	})
	if err != nil {
		return domain.Node{}, err
	}
	return out.(domain.Node), nil
}

func (r *nodeRepo) TotalTokens(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	out, err := r.store.Read(ctx, "node.total_tokens", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "node.total_tokens", `
MATCH (n:Node)
WHERE n.id IN $ids
OPTIONAL MATCH (n)-[:HAS_MESSAGE]->(m:Message)
RETURN coalesce(sum(m.token_count), 0) AS total
`, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		v, _ := record.Get("total")
		return graph.AsInt(v), nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

func (r *nodeRepo) requireSourcesInSession(ctx context.Context, tx neo4j.ManagedTransaction, sessionID string, sourceIDs []string) error {
	record, err := graph.Single(ctx, tx, "node.check_sources", `
MATCH (:Session {id: $session_id})-[:HAS_NODE]->(src:Node)
WHERE src.id IN $source_ids
RETURN count(DISTINCT src) AS found
`, map[string]any{"session_id": sessionID, "source_ids": sourceIDs})
	if err != nil {
		return err
	}
	v, _ := record.Get("found")
	if graph.AsInt(v) != len(sourceIDs) {
		return graph.NotFound("node.check_sources", fmt.Errorf("source nodes missing from session %s", sessionID))
	}
	return nil
}
