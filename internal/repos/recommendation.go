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

type NewRecommendation struct {
	SessionID      string
	NodeID         string
	MessageID      string
	Title          string
	Description    string
	Type           string
	Priority       float64
	EstimatedDepth int
	EdgeLabel      string
}

type RecommendationPatch struct {
	Status          *domain.RecommendationStatus
	CreatedBranchID *string
}

type RecommendationRepo interface {
	Create(ctx context.Context, in NewRecommendation) (domain.Recommendation, error)
	// CreateBatch persists what it can; a failing item is logged and skipped
	// rather than failing the batch.
	CreateBatch(ctx context.Context, items []NewRecommendation) ([]domain.Recommendation, error)
	Get(ctx context.Context, id string) (domain.Recommendation, error)
	ListByMessage(ctx context.Context, messageID string) ([]domain.Recommendation, error)
	ListByNode(ctx context.Context, nodeID string, status *domain.RecommendationStatus) ([]domain.Recommendation, error)
	// ListActiveBySession groups non-expired recommendations by node id.
	ListActiveBySession(ctx context.Context, sessionID string) (map[string][]domain.Recommendation, error)
	Update(ctx context.Context, id string, patch RecommendationPatch) (domain.Recommendation, error)
	MarkCreated(ctx context.Context, id, branchID string) (domain.Recommendation, error)
	MarkDismissed(ctx context.Context, id string) (domain.Recommendation, error)
}

type recommendationRepo struct {
	store *graph.Store
	log   *logger.Logger
}

func NewRecommendationRepo(store *graph.Store, baseLog *logger.Logger) RecommendationRepo {
	return &recommendationRepo{
		store: store,
		log:   baseLog.With("repo", "RecommendationRepo"),
	}
}

func (r *recommendationRepo) Create(ctx context.Context, in NewRecommendation) (domain.Recommendation, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Recommendation{}, apierr.Validation(fmt.Errorf("recommendation title required"))
	}

	recID := uuid.NewString()
	now := formatTime(time.Now())

	out, err := r.store.Write(ctx, "recommendation.create", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "recommendation.create", `
MATCH (n:Node {id: $node_id})
CREATE (rec:BranchRecommendation {
	id: $id,
	session_id: $session_id,
	node_id: $node_id,
	message_id: $message_id,
	title: $title,
	description: $description,
	type: $type,
	priority: $priority,
	estimated_depth: $estimated_depth,
	edge_label: $edge_label,
	status: 'pending',
	created_at: $now
})
CREATE (n)-[:HAS_RECOMMENDATION]->(rec)
CREATE (rec)-[:FOR_NODE]->(n)
RETURN rec
`, map[string]any{
			"id":              recID,
			"session_id":      in.SessionID,
			"node_id":         in.NodeID,
			"message_id":      in.MessageID,
			"title":           in.Title,
			"description":     in.Description,
			"type":            in.Type,
			"priority":        in.Priority,
			"estimated_depth": in.EstimatedDepth,
			"edge_label":      in.EdgeLabel,
			"now":             now,
		})
		if err != nil {
			return nil, err
		}
		return recommendationFromRecord(record, "rec"), nil
	})
	if err != nil {
		return domain.Recommendation{}, err
	}
	return out.(domain.Recommendation), nil
}

func (r *recommendationRepo) CreateBatch(ctx context.Context, items []NewRecommendation) ([]domain.Recommendation, error) {
	created := make([]domain.Recommendation, 0, len(items))
	for _, item := range items {
		rec, err := r.Create(ctx, item)
		if err != nil {
			r.log.Warn("Skipping recommendation in batch", "title", item.Title, "error", err)
			continue
		}
		created = append(created, rec)
	}
	return created, nil
}

func (r *recommendationRepo) Get(ctx context.Context, id string) (domain.Recommendation, error) {
	out, err := r.store.Read(ctx, "recommendation.get", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "recommendation.get", `
MATCH (rec:BranchRecommendation {id: $id})
RETURN rec
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return recommendationFromRecord(record, "rec"), nil
	})
	if err != nil {
		return domain.Recommendation{}, err
	}
	return out.(domain.Recommendation), nil
}

func (r *recommendationRepo) ListByMessage(ctx context.Context, messageID string) ([]domain.Recommendation, error) {
	out, err := r.store.Read(ctx, "recommendation.list_by_message", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (rec:BranchRecommendation {message_id: $message_id})
RETURN rec
ORDER BY rec.priority DESC
`, map[string]any{"message_id": messageID})
		if err != nil {
			return nil, err
		}
		return recommendationsFromRecords(records, "rec"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Recommendation), nil
}

func (r *recommendationRepo) ListByNode(ctx context.Context, nodeID string, status *domain.RecommendationStatus) ([]domain.Recommendation, error) {
	where := ""
	params := map[string]any{"node_id": nodeID}
	if status != nil {
		where = "WHERE rec.status = $status"
		params["status"] = string(*status)
	}
	out, err := r.store.Read(ctx, "recommendation.list_by_node", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, fmt.Sprintf(`
MATCH (rec:BranchRecommendation {node_id: $node_id})
%s
RETURN rec
ORDER BY rec.created_at DESC, rec.priority DESC
`, where), params)
		if err != nil {
			return nil, err
		}
		return recommendationsFromRecords(records, "rec"), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Recommendation), nil
}

func (r *recommendationRepo) ListActiveBySession(ctx context.Context, sessionID string) (map[string][]domain.Recommendation, error) {
	out, err := r.store.Read(ctx, "recommendation.list_active_by_session", func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := graph.Collect(ctx, tx, `
MATCH (rec:BranchRecommendation {session_id: $session_id})
WHERE rec.status IN ['pending', 'created', 'dismissed']
RETURN rec
ORDER BY rec.created_at DESC, rec.priority DESC
`, map[string]any{"session_id": sessionID})
		if err != nil {
			return nil, err
		}
		grouped := map[string][]domain.Recommendation{}
		for _, item := range recommendationsFromRecords(records, "rec") {
			grouped[item.NodeID] = append(grouped[item.NodeID], item)
		}
		return grouped, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string][]domain.Recommendation), nil
}

// Update applies a status transition. Dismissed is terminal: changing status
// away from it is a conflict, re-dismissing is a no-op.
func (r *recommendationRepo) Update(ctx context.Context, id string, patch RecommendationPatch) (domain.Recommendation, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Recommendation{}, err
	}

	if patch.Status != nil {
		if !domain.ValidRecommendationStatus(*patch.Status) {
			return domain.Recommendation{}, apierr.Validation(fmt.Errorf("unknown status %q", *patch.Status))
		}
		if current.Status == domain.RecommendationDismissed {
			if *patch.Status == domain.RecommendationDismissed {
				return current, nil
			}
			return domain.Recommendation{}, apierr.Conflict(fmt.Errorf("recommendation %s is dismissed", id))
		}
	}

	setClauses := []string{"rec.updated_at = $updated_at"}
	params := map[string]any{"id": id, "updated_at": formatTime(time.Now())}
	if patch.Status != nil {
		setClauses = append(setClauses, "rec.status = $status")
		params["status"] = string(*patch.Status)
		if *patch.Status == domain.RecommendationDismissed {
			setClauses = append(setClauses, "rec.dismissed_at = coalesce(rec.dismissed_at, $dismissed_at)")
			params["dismissed_at"] = formatTime(time.Now())
		}
	}
	if patch.CreatedBranchID != nil {
		setClauses = append(setClauses, "rec.created_branch_id = $created_branch_id")
		params["created_branch_id"] = *patch.CreatedBranchID
	}

	out, err := r.store.Write(ctx, "recommendation.update", func(tx neo4j.ManagedTransaction) (any, error) {
		record, err := graph.Single(ctx, tx, "recommendation.update", fmt.Sprintf(`
MATCH (rec:BranchRecommendation {id: $id})
SET %s
RETURN rec
`, strings.Join(setClauses, ", ")), params)
		if err != nil {
			return nil, err
		}
		return recommendationFromRecord(record, "rec"), nil
	})
	if err != nil {
		return domain.Recommendation{}, err
	}
	return out.(domain.Recommendation), nil
}

func (r *recommendationRepo) MarkCreated(ctx context.Context, id, branchID string) (domain.Recommendation, error) {
	status := domain.RecommendationCreated
	return r.Update(ctx, id, RecommendationPatch{Status: &status, CreatedBranchID: &branchID})
}

func (r *recommendationRepo) MarkDismissed(ctx context.Context, id string) (domain.Recommendation, error) {
	status := domain.RecommendationDismissed
	return r.Update(ctx, id, RecommendationPatch{Status: &status})
}
