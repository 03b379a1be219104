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

type NewSession struct {
	Title    string
	UserID   *string
	Metadata map[string]any
}

type SessionPatch struct {
	Title    *string
	Metadata map[string]any
}

type SessionRepo interface {
	Create(ctx context.Context, in NewSession) (domain.Session, error)
	Get(ctx context.Context, id string) (domain.Session, error)
	List(ctx context.Context, userID *string, skip, limit int) ([]domain.Session, error)
	Update(ctx context.Context, id string, patch SessionPatch) (domain.Session, error)
	Delete(ctx context.Context, id string) error
	Nodes(ctx context.Context, sessionID string) ([]domain.Node, error)
}

type sessionRepo struct {
	store *graph.Store
	log   *logger.Logger
}

func NewSessionRepo(store *graph.Store, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{
		store: store,
		log:   baseLog.With("repo", "SessionRepo"),
	}
}

// Create inserts the session and its root node in a single transaction; a
// session without a root never exists.
func (r *sessionRepo) Create(ctx context.Context, in NewSession) (domain.Session, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Session{}, apierr.Validation(fmt.Errorf("session title required"))
	}

	sessionID := uuid.NewString()
	rootNodeID := uuid.NewString()
	now := formatTime(time.Now())

	params := map[string]any{
		"session_id":    sessionID,
		"root_node_id":  rootNodeID,
		"title":         in.Title,
		"now":           now,
		"metadata_json": graph.EncodeJSON(orEmpty(in.Metadata)),
	}
	userClause := ""
	if in.UserID != nil && strings.TrimSpace(*in.UserID) != "" {
		userClause = "user_id: $user_id,"
		params["user_id"] = strings.TrimSpace(*in.UserID)
	}

	out, err := r.store.Write(ctx, "session.create", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "session.create", fmt.Sprintf(`
CREATE (s:Session {
	id: $session_id,
	title: $title,
	%s
	root_node_id: $root_node_id,
	created_at: $now,
	updated_at: $now,
	node_count: 1,
	metadata_json: $metadata_json
})
CREATE (n:Node {
	id: $root_node_id,
	session_id: $session_id,
	title: 'Root',
	content: '',
	type: 'root',
	depth: 0,
	is_active: true,
	is_summary: false,
	is_generating: false,
	message_count: 0,
	token_count: 0,
	created_at: $now,
	updated_at: $now,
	metadata_json: '{}'
})
CREATE (s)-[:HAS_NODE]->(n)
CREATE (s)-[:ROOT_NODE]->(n)
RETURN s
`, userClause), params)
		if err != nil {
			return nil, err
		}
		return sessionFromRecord(record, "s"), nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	session := out.(domain.Session)
	r.log.Info("Session created", "session_id", session.ID, "root_node_id", session.RootNodeID)
	return session, nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (domain.Session, error) {
	out, err := r.store.Read(ctx, "session.get", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "session.get", `
MATCH (s:Session {id: $id})
RETURN s
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return sessionFromRecord(record, "s"), nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return out.(domain.Session), nil
}

func (r *sessionRepo) List(ctx context.Context, userID *string, skip, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	if skip < 0 {
		skip = 0
	}

	where := ""
	params := map[string]any{"skip": skip, "limit": limit}
	if userID != nil && strings.TrimSpace(*userID) != "" {
		where = "WHERE s.user_id = $user_id"
		params["user_id"] = strings.TrimSpace(*userID)
	}

	out, err := r.store.Read(ctx, "session.list", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, fmt.Sprintf(`
MATCH (s:Session)
%s
RETURN s
ORDER BY s.updated_at DESC
SKIP $skip
LIMIT $limit
`, where), params)
		if err != nil {
			return nil, err
		}
		sessions := make([]domain.Session, 0, len(records))
		for _, rec := range records {
			sessions = append(sessions, sessionFromRecord(rec, "s"))
		}
		return sessions, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Session), nil
}

func (r *sessionRepo) Update(ctx context.Context, id string, patch SessionPatch) (domain.Session, error) {
	setClauses := []string{"s.updated_at = $updated_at"}
	params := map[string]any{"id": id, "updated_at": formatTime(time.Now())}

	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return domain.Session{}, apierr.Validation(fmt.Errorf("session title cannot be empty"))
		}
		setClauses = append(setClauses, "s.title = $title")
		params["title"] = *patch.Title
	}
	if patch.Metadata != nil {
		setClauses = append(setClauses, "s.metadata_json = $metadata_json")
		params["metadata_json"] = graph.EncodeJSON(patch.Metadata)
	}

	out, err := r.store.Write(ctx, "session.update", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "session.update", fmt.Sprintf(`
MATCH (s:Session {id: $id})
SET %s
RETURN s
`, strings.Join(setClauses, ", ")), params)
		if err != nil {
			return nil, err
		}
		return sessionFromRecord(record, "s"), nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return out.(domain.Session), nil
}

// Delete removes everything reachable from the session: recommendations,
// messages, nodes, then the session itself, in one transaction.
func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.store.Write(ctx, "session.delete", func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := graph.Single(ctx, tx, "session.delete", `
MATCH (s:Session {id: $id})
RETURN s.id AS id
`, map[string]any{"id": id}); err != nil {
			return nil, err
		}

		stmts := []string{
			`MATCH (r:BranchRecommendation {session_id: $id}) DETACH DELETE r`,
			`MATCH (s:Session {id: $id})-[:HAS_NODE]->(n:Node)-[:HAS_MESSAGE]->(m:Message) DETACH DELETE m`,
			`MATCH (s:Session {id: $id})-[:HAS_NODE]->(n:Node) DETACH DELETE n`,
			`MATCH (s:Session {id: $id}) DETACH DELETE s`,
		}
		for _, q := range stmts {
			if err := graph.RunConsume(ctx, tx, q, map[string]any{"id": id}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	r.log.Info("Session deleted", "session_id", id)
	return nil
}

func (r *sessionRepo) Nodes(ctx context.Context, sessionID string) ([]domain.Node, error) {
	out, err := r.store.Read(ctx, "session.nodes", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (s:Session {id: $id})-[:HAS_NODE]->(n:Node)
RETURN n
ORDER BY n.created_at
`, map[string]any{"id": sessionID})
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

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
