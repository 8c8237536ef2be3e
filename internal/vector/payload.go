package vector

import (
	"encoding/json"
	"math"
	"strconv"
)

// Payload keys of the nested layout shared with langchain-style clients.
const (
	PayloadContentKey  = "page_content"
	PayloadMetadataKey = "metadata"
)

// NewPayload builds the nested payload {"page_content": ..., "metadata": {...}}.
func NewPayload(content string, metadata map[string]any) map[string]any {
	return map[string]any{
		PayloadContentKey:  content,
		PayloadMetadataKey: metadata,
	}
}

// PayloadMetadata returns the nested metadata map, or the payload itself for flat payloads.
func PayloadMetadata(p map[string]any) map[string]any {
	if m, ok := p[PayloadMetadataKey].(map[string]any); ok && len(m) > 0 {
		return m
	}
	return p
}

// PayloadContent returns the chunk text from either payload layout.
func PayloadContent(p map[string]any) string {
	for _, key := range []string{PayloadContentKey, "text", "content"} {
		if s, ok := p[key].(string); ok {
			return s
		}
	}
	return ""
}

// String returns m[key] as a string, or "" when absent or not a string.
func String(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns m[key] as an int. JSON numbers decode as float64 and are accepted.
func Int(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}
