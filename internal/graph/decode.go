package graph

import (
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// PropsOf flattens a record value into a property map regardless of whether
// the query returned an entity or a projection.
func PropsOf(v any) map[string]any {
	switch t := v.(type) {
	case dbtype.Node:
		return t.Props
	case dbtype.Relationship:
		return t.Props
	case map[string]any:
		return t
	default:
		return nil
	}
}

// RecordProps pulls the named column of a record as a property map.
func RecordProps(record *db.Record, key string) map[string]any {
	if record == nil {
		return nil
	}
	v, ok := record.Get(key)
	if !ok {
		return nil
	}
	return PropsOf(v)
}

func AsString(v any) string {
	s, _ := v.(string)
	return s
}

func AsInt(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}

func AsFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// AsTime parses the RFC3339Nano strings timestamps are stored as. The zero
// time is returned for anything unparseable.
func AsTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// AsTimePtr is AsTime for optional timestamps.
func AsTimePtr(v any) *time.Time {
	t := AsTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

// AsStringPtr decodes an optional string property; empty means absent.
func AsStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// JSONMap decodes a *_json property. Graph properties must be primitive, so
// composite values round-trip through JSON text.
func JSONMap(v any) map[string]any {
	s, ok := v.(string)
	if !ok || s == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func JSONStrings(v any) []string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func JSONFloats(v any) []float64 {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// EncodeJSON is the write-side counterpart of the JSON* decoders.
func EncodeJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
