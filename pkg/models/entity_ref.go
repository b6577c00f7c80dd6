package models

import (
	"strings"
)

// EntityRef identifies a participant in the social graph (a user, a team, a
// post, etc). Identity is (kind, type, id) compared case-insensitively after
// trimming. DisplayName and Meta are presentation data and never take part in
// identity comparisons.
type EntityRef struct {
	Kind        string         `json:"kind" db:"kind" validate:"required"`
	Type        string         `json:"type" db:"type" validate:"required"`
	ID          string         `json:"id" db:"id" validate:"required"`
	DisplayName string         `json:"display_name,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Key returns the canonical comparison key for the ref:
// lower(trim(kind))|lower(trim(type))|lower(trim(id))
func (r EntityRef) Key() string {
	return canonical(r.Kind) + "|" + canonical(r.Type) + "|" + canonical(r.ID)
}

// Equals reports whether two refs identify the same entity.
func (r EntityRef) Equals(other EntityRef) bool {
	return r.Key() == other.Key()
}

// IsValid reports whether all three identity parts are present.
func (r EntityRef) IsValid() bool {
	return canonical(r.Kind) != "" && canonical(r.Type) != "" && canonical(r.ID) != ""
}

// IsZero reports whether the ref is entirely empty.
func (r EntityRef) IsZero() bool {
	return r.Kind == "" && r.Type == "" && r.ID == "" && r.DisplayName == "" && len(r.Meta) == 0
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DedupRefs returns refs with duplicates (by canonical key) removed,
// preserving first-seen order.
func DedupRefs(refs []EntityRef) []EntityRef {
	seen := make(map[string]struct{}, len(refs))
	out := make([]EntityRef, 0, len(refs))
	for _, ref := range refs {
		key := ref.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}
	return out
}
