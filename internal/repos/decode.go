package repos

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/graph"
)

// timeLayout is RFC3339 with fixed nanosecond width so stored timestamps sort
// lexicographically in ORDER BY clauses.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func sessionFromProps(props map[string]any) domain.Session {
	return domain.Session{
		ID:         graph.AsString(props["id"]),
		Title:      graph.AsString(props["title"]),
		UserID:     graph.AsStringPtr(props["user_id"]),
		RootNodeID: graph.AsString(props["root_node_id"]),
		CreatedAt:  graph.AsTime(props["created_at"]),
		UpdatedAt:  graph.AsTime(props["updated_at"]),
		NodeCount:  graph.AsInt(props["node_count"]),
		Metadata:   graph.JSONMap(props["metadata_json"]),
	}
}

func sessionFromRecord(record *db.Record, key string) domain.Session {
	return sessionFromProps(graph.RecordProps(record, key))
}

func nodeFromProps(props map[string]any) domain.Node {
	return domain.Node{
		ID:             graph.AsString(props["id"]),
		SessionID:      graph.AsString(props["session_id"]),
		ParentID:       graph.AsStringPtr(props["parent_id"]),
		Title:          graph.AsString(props["title"]),
		Content:        graph.AsString(props["content"]),
		Type:           domain.NodeType(graph.AsString(props["type"])),
		IsActive:       graph.AsBool(props["is_active"]),
		IsSummary:      graph.AsBool(props["is_summary"]),
		IsGenerating:   graph.AsBool(props["is_generating"]),
		SummaryContent: graph.AsStringPtr(props["summary_content"]),
		SourceNodeIDs:  graph.JSONStrings(props["source_node_ids_json"]),
		Depth:          graph.AsInt(props["depth"]),
		MessageCount:   graph.AsInt(props["message_count"]),
		TokenCount:     graph.AsInt(props["token_count"]),
		CreatedAt:      graph.AsTime(props["created_at"]),
		UpdatedAt:      graph.AsTime(props["updated_at"]),
		Metadata:       graph.JSONMap(props["metadata_json"]),
	}
}

func nodeFromRecord(record *db.Record, key string) domain.Node {
	return nodeFromProps(graph.RecordProps(record, key))
}

func nodesFromRecords(records []*db.Record, key string) []domain.Node {
	out := make([]domain.Node, 0, len(records))
	for _, r := range records {
		out = append(out, nodeFromRecord(r, key))
	}
	return out
}

func messageFromProps(props map[string]any) domain.Message {
	return domain.Message{
		ID:         graph.AsString(props["id"]),
		NodeID:     graph.AsString(props["node_id"]),
		Role:       graph.AsString(props["role"]),
		Content:    graph.AsString(props["content"]),
		Timestamp:  graph.AsTime(props["timestamp"]),
		TokenCount: graph.AsInt(props["token_count"]),
		Embedding:  graph.JSONFloats(props["embedding_json"]),
	}
}

func messageFromRecord(record *db.Record, key string) domain.Message {
	return messageFromProps(graph.RecordProps(record, key))
}

func messagesFromRecords(records []*db.Record, key string) []domain.Message {
	out := make([]domain.Message, 0, len(records))
	for _, r := range records {
		out = append(out, messageFromRecord(r, key))
	}
	return out
}

func recommendationFromProps(props map[string]any) domain.Recommendation {
	return domain.Recommendation{
		ID:              graph.AsString(props["id"]),
		SessionID:       graph.AsString(props["session_id"]),
		NodeID:          graph.AsString(props["node_id"]),
		MessageID:       graph.AsString(props["message_id"]),
		Title:           graph.AsString(props["title"]),
		Description:     graph.AsString(props["description"]),
		Type:            graph.AsString(props["type"]),
		Priority:        graph.AsFloat(props["priority"]),
		EstimatedDepth:  graph.AsInt(props["estimated_depth"]),
		EdgeLabel:       graph.AsString(props["edge_label"]),
		Status:          domain.RecommendationStatus(graph.AsString(props["status"])),
		CreatedBranchID: graph.AsStringPtr(props["created_branch_id"]),
		CreatedAt:       graph.AsTime(props["created_at"]),
		UpdatedAt:       graph.AsTimePtr(props["updated_at"]),
		DismissedAt:     graph.AsTimePtr(props["dismissed_at"]),
	}
}

func recommendationFromRecord(record *db.Record, key string) domain.Recommendation {
	return recommendationFromProps(graph.RecordProps(record, key))
}

func recommendationsFromRecords(records []*db.Record, key string) []domain.Recommendation {
	out := make([]domain.Recommendation, 0, len(records))
	for _, r := range records {
		out = append(out, recommendationFromRecord(r, key))
	}
	return out
}
