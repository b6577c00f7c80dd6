package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Activity is a published event in the social graph. It is produced and
// validated upstream; fern treats it as read-only input.
type Activity struct {
	ID         string          `json:"id" validate:"required"`
	TenantID   string          `json:"tenant_id" validate:"required"`
	TypeKey    string          `json:"type_key" validate:"required"`
	Actor      EntityRef       `json:"actor"`
	Owner      *EntityRef      `json:"owner,omitempty"`
	Targets    []EntityRef     `json:"targets,omitempty"`
	Visibility string          `json:"visibility,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	OccurredAt time.Time       `json:"occurred_at,omitempty"`
}

// Validate checks the minimum shape fern needs to fan an activity out.
func (a *Activity) Validate() error {
	if err := validate.Struct(a); err != nil {
		return err
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("activity id is required")
	}
	if strings.TrimSpace(a.TenantID) == "" {
		return fmt.Errorf("activity tenant id is required")
	}
	if strings.TrimSpace(a.TypeKey) == "" {
		return fmt.Errorf("activity type key is required")
	}
	if !a.Actor.IsValid() {
		return fmt.Errorf("activity actor is missing kind, type or id")
	}
	for i, target := range a.Targets {
		if !target.IsValid() {
			return fmt.Errorf("activity target %d is missing kind, type or id", i)
		}
	}
	if a.Owner != nil && !a.Owner.IsValid() {
		return fmt.Errorf("activity owner is missing kind, type or id")
	}
	return nil
}

// TypeKeyPrefix returns the type key up to (not including) the first '.',
// or the whole key when it contains no '.'. Used for thread grouping so that
// e.g. "comment.created" and "comment.edited" land in the same thread.
func TypeKeyPrefix(typeKey string) string {
	if idx := strings.Index(typeKey, "."); idx >= 0 {
		return typeKey[:idx]
	}
	return typeKey
}
