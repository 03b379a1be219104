package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// EnsureSchema creates the uniqueness constraints and lookup indexes the
// repositories rely on. Statements are idempotent and best-effort: a single
// failing statement is logged and skipped so boot proceeds against older
// server versions.
func (s *Store) EnsureSchema(ctx context.Context) {
	stmts := []string{
		`CREATE CONSTRAINT session_id_unique IF NOT EXISTS FOR (s:Session) REQUIRE s.id IS UNIQUE`,
		`CREATE CONSTRAINT node_id_unique IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE`,
		`CREATE CONSTRAINT message_id_unique IF NOT EXISTS FOR (m:Message) REQUIRE m.id IS UNIQUE`,
		`CREATE CONSTRAINT recommendation_id_unique IF NOT EXISTS FOR (r:BranchRecommendation) REQUIRE r.id IS UNIQUE`,
		`CREATE INDEX node_session_idx IF NOT EXISTS FOR (n:Node) ON (n.session_id)`,
		`CREATE INDEX node_parent_idx IF NOT EXISTS FOR (n:Node) ON (n.parent_id)`,
		`CREATE INDEX node_type_idx IF NOT EXISTS FOR (n:Node) ON (n.type)`,
		`CREATE INDEX message_node_idx IF NOT EXISTS FOR (m:Message) ON (m.node_id)`,
		`CREATE INDEX message_node_ts_idx IF NOT EXISTS FOR (m:Message) ON (m.node_id, m.timestamp)`,
		`CREATE INDEX recommendation_node_idx IF NOT EXISTS FOR (r:BranchRecommendation) ON (r.node_id)`,
		`CREATE INDEX recommendation_session_idx IF NOT EXISTS FOR (r:BranchRecommendation) ON (r.session_id)`,
	}

	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			s.log.Warn("Schema init statement failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}
