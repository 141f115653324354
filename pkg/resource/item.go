// Package resource defines the value types shared by the Stripe helpers:
// opaque list items, immutable pagination arguments, list pages and the
// registry that maps resource names onto API paths.
package resource

import (
	"encoding/json"
	"fmt"
	"time"
)

// Item is a single Stripe object decoded from JSON.
// Beyond "id" and "created" its fields are treated as an opaque bag.
type Item map[string]any

// ID returns the object's id, or "" when absent.
func (i Item) ID() string {
	return i.String("id")
}

// Created returns the object's creation time as unix seconds.
func (i Item) Created() int64 {
	switch v := i["created"].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// CreatedDay returns the UTC calendar day the object was created on.
func (i Item) CreatedDay() time.Time {
	return Day(time.Unix(i.Created(), 0))
}

// String returns a string field, or "" when the field is missing or not a string.
func (i Item) String(field string) string {
	if s, ok := i[field].(string); ok {
		return s
	}
	return ""
}

// Clone returns a shallow copy of the item.
func (i Item) Clone() Item {
	out := make(Item, len(i)+1)
	for k, v := range i {
		out[k] = v
	}
	return out
}

// ReferenceID extracts the id referenced by field. Stripe returns references
// either as a bare id string or, when expanded, as an object with an "id".
func (i Item) ReferenceID(field string) (string, error) {
	switch v := i[field].(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("field %q is empty", field)
		}
		return v, nil
	case map[string]any:
		if id, ok := v["id"].(string); ok && id != "" {
			return id, nil
		}
		return "", fmt.Errorf("field %q holds an object without an id", field)
	case Item:
		if id := v.ID(); id != "" {
			return id, nil
		}
		return "", fmt.Errorf("field %q holds an object without an id", field)
	case nil:
		return "", fmt.Errorf("field %q is missing", field)
	default:
		return "", fmt.Errorf("field %q has unsupported type %T", field, v)
	}
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
