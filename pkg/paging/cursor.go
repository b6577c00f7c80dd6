// Package paging implements the opaque keyset cursor used by inbox queries.
// A cursor encodes (created_at, id) of the last returned item and is only
// stable within one query's sort order (created_at desc, id desc).
package paging

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor marks a position in a (created_at desc, id desc) ordered result set.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// Encode renders the cursor as an opaque string.
func (c Cursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses an opaque cursor string. Callers must treat a failure as a
// validation error, not a missing page.
func Decode(raw string) (*Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return nil, fmt.Errorf("malformed cursor: missing position")
	}
	return &c, nil
}
