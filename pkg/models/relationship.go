package models

import (
	"fmt"
	"strings"
	"time"
)

// EdgeKind is the type of a relationship edge.
type EdgeKind string

const (
	EdgeKindFollow    EdgeKind = "Follow"
	EdgeKindMute      EdgeKind = "Mute"
	EdgeKindBlock     EdgeKind = "Block"
	EdgeKindSubscribe EdgeKind = "Subscribe"
)

// IsValid reports whether the kind is one of the known edge kinds.
func (k EdgeKind) IsValid() bool {
	switch k {
	case EdgeKindFollow, EdgeKindMute, EdgeKindBlock, EdgeKindSubscribe:
		return true
	}
	return false
}

// EdgeScope selects which part of an activity an edge's matching rule
// applies to.
type EdgeScope string

const (
	EdgeScopeActorOnly  EdgeScope = "ActorOnly"
	EdgeScopeTargetOnly EdgeScope = "TargetOnly"
	EdgeScopeOwnerOnly  EdgeScope = "OwnerOnly"
	EdgeScopeAny        EdgeScope = "Any"
)

// IsValid reports whether the scope is one of the known scopes.
func (s EdgeScope) IsValid() bool {
	switch s {
	case EdgeScopeActorOnly, EdgeScopeTargetOnly, EdgeScopeOwnerOnly, EdgeScopeAny:
		return true
	}
	return false
}

const (
	// MaxFilterEntryLength is the maximum length of a single filter entry.
	MaxFilterEntryLength = 128
	// MaxFilterEntries is the maximum number of entries per filter list.
	MaxFilterEntries = 64
)

// EdgeFilter narrows which activities an edge applies to. Empty lists match
// everything for that dimension.
type EdgeFilter struct {
	TypeKeys     []string `json:"type_keys,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Visibilities []string `json:"visibilities,omitempty"`
}

// Normalize trims entries, drops empty ones, dedupes case-insensitively and
// enforces the length limits. It mutates the filter in place.
func (f *EdgeFilter) Normalize() error {
	if f == nil {
		return nil
	}
	var err error
	if f.TypeKeys, err = normalizeFilterList("type_keys", f.TypeKeys); err != nil {
		return err
	}
	if f.Tags, err = normalizeFilterList("tags", f.Tags); err != nil {
		return err
	}
	if f.Visibilities, err = normalizeFilterList("visibilities", f.Visibilities); err != nil {
		return err
	}
	return nil
}

// IsEmpty reports whether the filter has no constraints.
func (f *EdgeFilter) IsEmpty() bool {
	return f == nil || (len(f.TypeKeys) == 0 && len(f.Tags) == 0 && len(f.Visibilities) == 0)
}

func normalizeFilterList(name string, entries []string) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if len(entry) > MaxFilterEntryLength {
			return nil, fmt.Errorf("filter %s entry exceeds %d characters", name, MaxFilterEntryLength)
		}
		lower := strings.ToLower(entry)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, entry)
	}
	if len(out) > MaxFilterEntries {
		return nil, fmt.Errorf("filter %s has more than %d entries", name, MaxFilterEntries)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// ContainsFold reports whether list contains value, case-insensitively.
// An empty list matches everything.
func ContainsFold(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, entry := range list {
		if strings.EqualFold(entry, value) {
			return true
		}
	}
	return false
}

// RelationshipEdge is a directed, scoped edge between two entities within a
// tenant. At most one edge exists per (tenant, key(from), key(to), kind,
// scope); upserting with the same composite key replaces the prior edge.
type RelationshipEdge struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id" validate:"required"`
	From      EntityRef   `json:"from"`
	To        EntityRef   `json:"to"`
	Kind      EdgeKind    `json:"kind" validate:"required"`
	Scope     EdgeScope   `json:"scope"`
	Filter    *EdgeFilter `json:"filter,omitempty"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CompositeKey returns the uniqueness key for the edge within its tenant.
func (e *RelationshipEdge) CompositeKey() string {
	return e.From.Key() + "|" + e.To.Key() + "|" + string(e.Kind) + "|" + string(e.Scope)
}

// Validate checks the edge before it is written. The scope defaults to Any
// when unset.
func (e *RelationshipEdge) Validate() error {
	if err := validate.Struct(e); err != nil {
		return err
	}
	if strings.TrimSpace(e.TenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !e.From.IsValid() {
		return fmt.Errorf("edge 'from' entity is missing kind, type or id")
	}
	if !e.To.IsValid() {
		return fmt.Errorf("edge 'to' entity is missing kind, type or id")
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("unknown edge kind %q", e.Kind)
	}
	if e.Scope == "" {
		e.Scope = EdgeScopeAny
	}
	if !e.Scope.IsValid() {
		return fmt.Errorf("unknown edge scope %q", e.Scope)
	}
	if err := e.Filter.Normalize(); err != nil {
		return err
	}
	if e.Filter.IsEmpty() {
		e.Filter = nil
	}
	return nil
}

// EdgeQuery filters a relationship query. Nil fields are ignored.
type EdgeQuery struct {
	From     *EntityRef
	To       *EntityRef
	Kind     *EdgeKind
	Scope    *EdgeScope
	IsActive *bool
}
