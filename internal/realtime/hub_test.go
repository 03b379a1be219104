package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Byeongcheol-Kim/graphchat/internal/domain"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

func testNode(id, sessionID string) domain.Node {
	return domain.Node{ID: id, SessionID: sessionID, Type: domain.NodeTypeMain}
}

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvFrame(t *testing.T, ch <-chan []byte, timeout time.Duration) map[string]any {
	t.Helper()
	select {
	case payload := <-ch:
		var frame map[string]any
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return frame
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for frame")
	}
	return nil
}

func TestHubBroadcastOrdering(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	client := hub.Join("session-1")
	defer hub.Leave(client)

	hub.Broadcast("session-1", StreamStart("session-1", "n1", "m0"))
	hub.Broadcast("session-1", StreamChunk("session-1", "n1", "hello"))
	hub.Broadcast("session-1", StreamEnd("session-1", "n1", "m1", "hello", nil))

	first := recvFrame(t, client.Outbound, time.Second)
	second := recvFrame(t, client.Outbound, time.Second)
	third := recvFrame(t, client.Outbound, time.Second)

	if first["type"] != string(EventStreamStart) {
		t.Fatalf("first frame: want=%s got=%v", EventStreamStart, first["type"])
	}
	if second["type"] != string(EventStreamChunk) || second["chunk"] != "hello" {
		t.Fatalf("second frame: got=%v", second)
	}
	if third["type"] != string(EventStreamEnd) || third["message_id"] != "m1" {
		t.Fatalf("third frame: got=%v", third)
	}
}

func TestStreamEventPayloadFields(t *testing.T) {
	marshal := func(e Event) map[string]any {
		t.Helper()
		payload, err := json.Marshal(e)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var frame map[string]any
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return frame
	}

	start := marshal(StreamStart("s1", "n1", "user-msg"))
	if start["session_id"] != "s1" || start["node_id"] != "n1" || start["message_id"] != "user-msg" {
		t.Fatalf("stream_start frame: got %v", start)
	}

	chunk := marshal(StreamChunk("s1", "n1", "delta"))
	if chunk["chunk"] != "delta" || chunk["session_id"] != "s1" {
		t.Fatalf("stream_chunk frame: got %v", chunk)
	}

	end := marshal(StreamEnd("s1", "n1", "ai-msg", "the full reply", nil))
	if end["message_id"] != "ai-msg" || end["full_response"] != "the full reply" {
		t.Fatalf("stream_end frame: got %v", end)
	}
	branches, ok := end["recommended_branches"].([]any)
	if !ok || len(branches) != 0 {
		t.Fatalf("stream_end must always carry a recommended_branches list, got %v", end["recommended_branches"])
	}

	failed := marshal(StreamEndError("s1", "n1", "model request failed"))
	if failed["type"] != string(EventStreamEnd) || failed["error"] != "model request failed" {
		t.Fatalf("failure stream_end frame: got %v", failed)
	}
	if _, present := failed["full_response"]; present {
		t.Fatal("failure stream_end must not fabricate a full_response")
	}
}

func TestHubRoomIsolation(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	inRoom := hub.Join("session-1")
	outOfRoom := hub.Join("session-2")
	defer hub.Leave(inRoom)
	defer hub.Leave(outOfRoom)

	hub.Broadcast("session-1", NodeUpdated(testNode("n1", "session-1")))

	recvFrame(t, inRoom.Outbound, time.Second)
	select {
	case payload := <-outOfRoom.Outbound:
		t.Fatalf("other session must not receive the frame, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	sender := hub.Join("session-1")
	other := hub.Join("session-1")
	defer hub.Leave(sender)
	defer hub.Leave(other)

	hub.Broadcast("session-1", Pong(time.Now()), sender)

	recvFrame(t, other.Outbound, time.Second)
	select {
	case payload := <-sender.Outbound:
		t.Fatalf("excluded sender must not receive the frame, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubSlowClientDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	slow := hub.Join("session-1")
	healthy := hub.Join("session-1")
	defer hub.Leave(slow)
	defer hub.Leave(healthy)

	// Overflow the slow client's queue without draining it.
	for i := 0; i < outboundBuffer+10; i++ {
		hub.Broadcast("session-1", StreamChunk("session-1", "n1", "x"))
	}

	// The healthy client drains as it goes; the loop above filled its queue
	// too, so just verify frames flow and nothing deadlocked.
	recvFrame(t, healthy.Outbound, time.Second)

	done := make(chan struct{})
	go func() {
		hub.Broadcast("session-1", StreamEnd("session-1", "n1", "m1", "x", nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast must never block on a full client queue")
	}
}

func TestHubLeaveClosesOutbound(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	client := hub.Join("session-1")
	hub.Leave(client)

	select {
	case _, ok := <-client.Outbound:
		if ok {
			t.Fatal("outbound must be closed after leave")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound close")
	}

	if hub.RoomSize("session-1") != 0 {
		t.Fatal("room must be removed when its last client leaves")
	}

	// Leaving twice is harmless.
	hub.Leave(client)
}

func TestEventMarshalFlattensData(t *testing.T) {
	payload, err := json.Marshal(StreamChunk("s1", "n1", "delta"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame["type"] != "stream_chunk" || frame["node_id"] != "n1" || frame["chunk"] != "delta" {
		t.Fatalf("flattened frame: got %v", frame)
	}
	if _, nested := frame["data"]; nested {
		t.Fatal("data fields must flatten next to type, not nest")
	}
}
