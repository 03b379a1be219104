package handlers

import (
	"encoding/json"
	"testing"
)

func TestInboundFrameReadsNestedData(t *testing.T) {
	raw := `{"type":"chat","data":{"node_id":"n1","message":"hello there","stream":false,"auto_branch":false}}`
	var frame inboundFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != "chat" {
		t.Fatalf("type: got %q", frame.Type)
	}

	p := frame.payload()
	if p.NodeID != "n1" || p.Message != "hello there" {
		t.Fatalf("nested payload: got node_id=%q message=%q", p.NodeID, p.Message)
	}

	req := turnRequest("s1", p.NodeID, p)
	if req.NodeID != "n1" || req.Message != "hello there" {
		t.Fatalf("turn request: got %+v", req)
	}
	if req.Stream || req.AutoBranch {
		t.Fatal("explicit false flags must survive into the turn request")
	}
}

func TestInboundFrameFallsBackToTopLevelFields(t *testing.T) {
	raw := `{"type":"chat","node_id":"n2","message":"legacy shape"}`
	var frame inboundFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p := frame.payload()
	if p.NodeID != "n2" || p.Message != "legacy shape" {
		t.Fatalf("top-level fallback: got node_id=%q message=%q", p.NodeID, p.Message)
	}

	req := turnRequest("s1", p.NodeID, p)
	if !req.Stream || !req.AutoBranch {
		t.Fatal("stream and auto_branch default to true when omitted")
	}
}

func TestInboundFrameNodeUpdatePayload(t *testing.T) {
	raw := `{"type":"node_update","data":{"node_id":"n3","updates":{"title":"Renamed","is_active":false}}}`
	var frame inboundFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p := frame.payload()
	if p.NodeID != "n3" {
		t.Fatalf("node_id: got %q", p.NodeID)
	}
	if p.Updates.Title == nil || *p.Updates.Title != "Renamed" {
		t.Fatalf("updates.title: got %v", p.Updates.Title)
	}
	if p.Updates.IsActive == nil || *p.Updates.IsActive {
		t.Fatal("updates.is_active=false must decode as an explicit false")
	}
}

func TestInboundFrameContentFallsBackForMessage(t *testing.T) {
	raw := `{"type":"chat","data":{"node_id":"n4","content":"from content field"}}`
	var frame inboundFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p := frame.payload()
	req := turnRequest("s1", p.NodeID, p)
	if req.Message != "from content field" {
		t.Fatalf("content fallback: got %q", req.Message)
	}
}
