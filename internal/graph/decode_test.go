package graph

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func TestPropsOf(t *testing.T) {
	node := dbtype.Node{Props: map[string]any{"id": "n1"}}
	if got := PropsOf(node); got["id"] != "n1" {
		t.Fatalf("PropsOf(node): want id=n1 got=%v", got)
	}

	raw := map[string]any{"id": "n2"}
	if got := PropsOf(raw); got["id"] != "n2" {
		t.Fatalf("PropsOf(map): want id=n2 got=%v", got)
	}

	if got := PropsOf(42); got != nil {
		t.Fatalf("PropsOf(int): want nil got=%v", got)
	}
}

func TestAsTime(t *testing.T) {
	stamp := "2026-08-24T10:30:00.123456789Z"
	parsed := AsTime(stamp)
	want := time.Date(2026, 8, 24, 10, 30, 0, 123456789, time.UTC)
	if !parsed.Equal(want) {
		t.Fatalf("AsTime: want=%v got=%v", want, parsed)
	}

	if !AsTime("2026-08-24T10:30:00Z").Equal(time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)) {
		t.Fatal("AsTime must accept timestamps without fractional seconds")
	}
	if !AsTime("garbage").IsZero() {
		t.Fatal("AsTime must return the zero time for unparseable input")
	}
	if !AsTime(nil).IsZero() {
		t.Fatal("AsTime must return the zero time for non-strings")
	}
}

func TestAsTimePtr(t *testing.T) {
	if AsTimePtr("") != nil {
		t.Fatal("empty timestamp must decode to nil")
	}
	got := AsTimePtr("2026-01-02T03:04:05Z")
	if got == nil || got.Hour() != 3 {
		t.Fatalf("AsTimePtr: unexpected %v", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	meta := map[string]any{"color": "blue", "weight": float64(3)}
	encoded := EncodeJSON(meta)
	decoded := JSONMap(encoded)
	if decoded["color"] != "blue" || decoded["weight"] != float64(3) {
		t.Fatalf("metadata round trip: got %v", decoded)
	}

	ids := []string{"a", "b", "c"}
	if got := JSONStrings(EncodeJSON(ids)); len(got) != 3 || got[2] != "c" {
		t.Fatalf("string slice round trip: got %v", got)
	}

	floats := []float64{0.1, 0.2}
	if got := JSONFloats(EncodeJSON(floats)); len(got) != 2 || got[0] != 0.1 {
		t.Fatalf("float slice round trip: got %v", got)
	}
}

func TestJSONDecodersTolerateBadInput(t *testing.T) {
	if got := JSONMap("not json"); len(got) != 0 {
		t.Fatalf("JSONMap on garbage: want empty map got %v", got)
	}
	if got := JSONStrings(""); got != nil {
		t.Fatalf("JSONStrings on empty: want nil got %v", got)
	}
	if got := JSONFloats(12); got != nil {
		t.Fatalf("JSONFloats on non-string: want nil got %v", got)
	}
}

func TestAsScalars(t *testing.T) {
	if AsInt(int64(7)) != 7 || AsInt(3) != 3 || AsInt("x") != 0 {
		t.Fatal("AsInt conversions")
	}
	if AsFloat(int64(2)) != 2.0 || AsFloat(1.5) != 1.5 {
		t.Fatal("AsFloat conversions")
	}
	if AsStringPtr("") != nil {
		t.Fatal("AsStringPtr must treat empty as absent")
	}
	if v := AsStringPtr("x"); v == nil || *v != "x" {
		t.Fatal("AsStringPtr must keep non-empty values")
	}
}
