package realtime

import (
	"encoding/json"
	"time"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
)

type EventType string

const (
	EventConnection            EventType = "connection"
	EventChatResponse          EventType = "chat_response"
	EventStreamStart           EventType = "stream_start"
	EventStreamChunk           EventType = "stream_chunk"
	EventStreamEnd             EventType = "stream_end"
	EventCreatingReferenceNode EventType = "creating_reference_node"
	EventReferenceNodeCreated  EventType = "reference_node_created"
	EventGeneratingSummary     EventType = "generating_summary"
	EventSummaryGenerated      EventType = "summary_generated"
	EventSummaryCompleted      EventType = "summary_completed"
	EventNodeCreated           EventType = "node_created"
	EventNodesDeleted          EventType = "nodes_deleted"
	EventNodeUpdated           EventType = "node_updated"
	EventError                 EventType = "error"
	EventPong                  EventType = "pong"
)

// Event is one outbound WebSocket frame. Data fields are flattened next to
// "type" on the wire.
type Event struct {
	Type EventType
	Data map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		out[k] = v
	}
	out["type"] = string(e.Type)
	return json.Marshal(out)
}

// EdgeDescriptor describes a graph edge for clients that render the node map.
type EdgeDescriptor struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

func Connection(sessionID string) Event {
	return Event{Type: EventConnection, Data: map[string]any{
		"session_id": sessionID,
		"message":    "Connected to session " + sessionID,
	}}
}

func ChatResponse(nodeID string, message domain.Message, recommendations []domain.Recommendation) Event {
	data := map[string]any{
		"node_id": nodeID,
		"message": message,
	}
	if recommendations != nil {
		data["recommendations"] = recommendations
	}
	return Event{Type: EventChatResponse, Data: data}
}

// StreamStart announces a turn in flight. messageID is the persisted user
// message the turn answers.
func StreamStart(sessionID, nodeID, messageID string) Event {
	return Event{Type: EventStreamStart, Data: map[string]any{
		"session_id": sessionID,
		"node_id":    nodeID,
		"message_id": messageID,
	}}
}

func StreamChunk(sessionID, nodeID, chunk string) Event {
	return Event{Type: EventStreamChunk, Data: map[string]any{
		"session_id": sessionID,
		"node_id":    nodeID,
		"chunk":      chunk,
	}}
}

// StreamEnd closes a turn. messageID is the persisted assistant message and
// fullResponse the accumulated reply text.
func StreamEnd(sessionID, nodeID, messageID, fullResponse string, recommendations []domain.Recommendation) Event {
	if recommendations == nil {
		recommendations = []domain.Recommendation{}
	}
	return Event{Type: EventStreamEnd, Data: map[string]any{
		"session_id":           sessionID,
		"node_id":              nodeID,
		"message_id":           messageID,
		"full_response":        fullResponse,
		"recommended_branches": recommendations,
	}}
}

// StreamEndError closes a turn that failed mid-stream. No assistant message
// exists, so the frame carries the error instead of a reply.
func StreamEndError(sessionID, nodeID, errMessage string) Event {
	return Event{Type: EventStreamEnd, Data: map[string]any{
		"session_id":           sessionID,
		"node_id":              nodeID,
		"error":                errMessage,
		"recommended_branches": []domain.Recommendation{},
	}}
}

func CreatingReferenceNode(sourceNodeIDs []string) Event {
	return Event{Type: EventCreatingReferenceNode, Data: map[string]any{
		"source_node_ids": sourceNodeIDs,
	}}
}

func ReferenceNodeCreated(node domain.Node, edge *EdgeDescriptor) Event {
	data := map[string]any{"node": node}
	if edge != nil {
		data["edge"] = edge
	}
	return Event{Type: EventReferenceNodeCreated, Data: data}
}

func GeneratingSummary(nodeID string, sourceNodeIDs []string) Event {
	return Event{Type: EventGeneratingSummary, Data: map[string]any{
		"node_id":         nodeID,
		"source_node_ids": sourceNodeIDs,
	}}
}

func SummaryGenerated(node domain.Node) Event {
	return Event{Type: EventSummaryGenerated, Data: map[string]any{"node": node}}
}

func SummaryCompleted(nodeID, summary string) Event {
	return Event{Type: EventSummaryCompleted, Data: map[string]any{
		"node_id": nodeID,
		"summary": summary,
	}}
}

func NodeCreated(node domain.Node, edge *EdgeDescriptor) Event {
	data := map[string]any{"node": node}
	if edge != nil {
		data["edge"] = edge
	}
	return Event{Type: EventNodeCreated, Data: data}
}

func NodesDeleted(result domain.DeleteResult) Event {
	return Event{Type: EventNodesDeleted, Data: map[string]any{
		"deleted":  result.Deleted,
		"failed":   result.Failed,
		"cascaded": result.Cascaded,
	}}
}

func NodeUpdated(node domain.Node) Event {
	return Event{Type: EventNodeUpdated, Data: map[string]any{"node": node}}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Data: map[string]any{"message": message}}
}

func Pong(timestamp time.Time) Event {
	return Event{Type: EventPong, Data: map[string]any{
		"timestamp": timestamp.UTC().Format(time.RFC3339Nano),
	}}
}
