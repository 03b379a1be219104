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

type NewMessage struct {
	NodeID     string
	Role       string
	Content    string
	TokenCount int
}

type MessageRepo interface {
	Create(ctx context.Context, in NewMessage) (domain.Message, error)
	Get(ctx context.Context, id string) (domain.Message, error)
	ListByNode(ctx context.Context, nodeID string) ([]domain.Message, error)
	ListByNodePaginated(ctx context.Context, nodeID string, skip, limit int) ([]domain.Message, error)
	// ListByNodes returns messages for all given nodes in one query, globally
	// ordered by timestamp.
	ListByNodes(ctx context.Context, nodeIDs []string) ([]domain.Message, error)
	Delete(ctx context.Context, id string) error
	SetEmbedding(ctx context.Context, id string, embedding []float64) error
}

type messageRepo struct {
	store *graph.Store
	log   *logger.Logger
}

func NewMessageRepo(store *graph.Store, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{
		store: store,
		log:   baseLog.With("repo", "MessageRepo"),
	}
}

// Create appends a message to a node and recomputes the node's message and
// token counters in the same transaction.
func (r *messageRepo) Create(ctx context.Context, in NewMessage) (domain.Message, error) {
	if strings.TrimSpace(in.NodeID) == "" {
		return domain.Message{}, apierr.Validation(fmt.Errorf("node_id required"))
	}
	if !domain.ValidRole(in.Role) {
		return domain.Message{}, apierr.Validation(fmt.Errorf("unknown role %q", in.Role))
	}
	if in.TokenCount <= 0 {
		in.TokenCount = domain.EstimateTokens(in.Content)
	}

	messageID := uuid.NewString()
	now := formatTime(time.Now())

	out, err := r.store.Write(ctx, "message.create", func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := graph.Single(ctx, tx, "message.create", `
MATCH (n:Node {id: $node_id})
RETURN n.id AS id
`, map[string]any{"node_id": in.NodeID}); err != nil {
			return nil, err
		}

		record, err := graph.Single(ctx, tx, "message.create", `
MATCH (n:Node {id: $node_id})
CREATE (m:Message {
	id: $id,
	node_id: $node_id,
	role: $role,
	content: $content,
	timestamp: $now,
	token_count: $token_count
})
CREATE (n)-[:HAS_MESSAGE]->(m)
RETURN m
`, map[string]any{
			"id":          messageID,
			"node_id":     in.NodeID,
			"role":        in.Role,
			"content":     in.Content,
			"now":         now,
			"token_count": in.TokenCount,
		})
		if err != nil {
			return nil, err
		}

		if err := graph.RunConsume(ctx, tx, `
MATCH (n:Node {id: $node_id})-[:HAS_MESSAGE]->(m:Message)
WITH n, count(m) AS message_count, coalesce(sum(m.token_count), 0) AS token_count
SET n.message_count = message_count, n.token_count = token_count, n.updated_at = $now
`, map[string]any{"node_id": in.NodeID, "now": now}); err != nil {
			return nil, err
		}
		return messageFromRecord(record, "m"), nil
	})
	if err != nil {
		return domain.Message{}, err
	}

	msg := out.(domain.Message)
	r.log.Debug("Message created", "message_id", msg.ID, "node_id", msg.NodeID, "role", msg.Role)
	return msg, nil
}

func (r *messageRepo) Get(ctx context.Context, id string) (domain.Message, error) {
	out, err := r.store.Read(ctx, "message.get", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "message.get", `
MATCH (m:Message {id: $id})
RETURN m
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return messageFromRecord(record, "m"), nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return out.(domain.Message), nil
}

func (r *messageRepo) ListByNode(ctx context.Context, nodeID string) ([]domain.Message, error) {
	out, err := r.store.Read(ctx, "message.list_by_node", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (:Node {id: $node_id})-[:HAS_MESSAGE]->(m:Message)
RETURN m
ORDER BY m.timestamp
`, map[string]any{"node_id": nodeID})
		if err != nil {
			return nil, err
		}
		return messagesFromRecords(records, "m"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Message), nil
}

func (r *messageRepo) ListByNodePaginated(ctx context.Context, nodeID string, skip, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	out, err := r.store.Read(ctx, "message.list_by_node_paginated", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (:Node {id: $node_id})-[:HAS_MESSAGE]->(m:Message)
RETURN m
ORDER BY m.timestamp
SKIP $skip
LIMIT $limit
`, map[string]any{"node_id": nodeID, "skip": skip, "limit": limit})
		if err != nil {
			return nil, err
		}
		return messagesFromRecords(records, "m"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Message), nil
}

func (r *messageRepo) ListByNodes(ctx context.Context, nodeIDs []string) ([]domain.Message, error) {
	if len(nodeIDs) == 0 {
		return []domain.Message{}, nil
	}
	out, err := r.store.Read(ctx, "message.list_by_nodes", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (n:Node)-[:HAS_MESSAGE]->(m:Message)
WHERE n.id IN $node_ids
RETURN m
ORDER BY m.timestamp
`, map[string]any{"node_ids": nodeIDs})
		if err != nil {
			return nil, err
		}
		return messagesFromRecords(records, "m"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Message), nil
}

// Delete removes a message and recomputes its node's counters.
func (r *messageRepo) Delete(ctx context.Context, id string) error {
	_, err := r.store.Write(ctx, "message.delete", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "message.delete", `
MATCH (m:Message {id: $id})
RETURN m.node_id AS node_id
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		nodeIDVal, _ := record.Get("node_id")
		nodeID := graph.AsString(nodeIDVal)

		if err := graph.RunConsume(ctx, tx, `
MATCH (m:Message {id: $id})
DETACH DELETE m
`, map[string]any{"id": id}); err != nil {
			return nil, err
		}

		return nil, graph.RunConsume(ctx, tx, `
MATCH (n:Node {id: $node_id})
OPTIONAL MATCH (n)-[:HAS_MESSAGE]->(m:Message)
WITH n, count(m) AS message_count, coalesce(sum(m.token_count), 0) AS token_count
SET n.message_count = message_count, n.token_count = token_count, n.updated_at = $now
`, map[string]any{"node_id": nodeID, "now": formatTime(time.Now())})
	})
	return err
}

func (r *messageRepo) SetEmbedding(ctx context.Context, id string, embedding []float64) error {
	_, err := r.store.Write(ctx, "message.set_embedding", func(tx neo4j.ManagedTransaction) (any, error) {
		return graph.Single(ctx, tx, "message.set_embedding", `
MATCH (m:Message {id: $id})
SET m.embedding_json = $embedding_json
RETURN m.id AS id
`, map[string]any{"id": id, "embedding_json": graph.EncodeJSON(embedding)})
	})
	return err
}
