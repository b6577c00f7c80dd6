package fanout

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestDedupKey(t *testing.T) {
	activity := &models.Activity{ID: "a1"}
	recipient := models.EntityRef{Kind: "User", Type: "Person", ID: "Alice"}
	assert.Equal(t, "activity:a1:recipient:user|person|alice", DedupKey(activity, recipient))
}

func TestThreadKey_TargetAnchored(t *testing.T) {
	activity := &models.Activity{
		ID:      "a1",
		TypeKey: "comment.created",
		Actor:   models.EntityRef{Kind: "user", Type: "person", ID: "alice"},
		Targets: []models.EntityRef{{Kind: "content", Type: "post", ID: "p1"}},
	}
	assert.Equal(t, "target:post:p1:type:comment", ThreadKey(activity))
}

func TestThreadKey_ActorAnchoredWithoutTargets(t *testing.T) {
	activity := &models.Activity{
		ID:      "a1",
		TypeKey: "status.updated",
		Actor:   models.EntityRef{Kind: "user", Type: "person", ID: "alice"},
	}
	assert.Equal(t, "actor:person:alice:type:status", ThreadKey(activity))
}

func TestThreadKey_SamePrefixSharesThread(t *testing.T) {
	post := models.EntityRef{Kind: "content", Type: "post", ID: "p1"}
	created := &models.Activity{ID: "a1", TypeKey: "comment.created", Targets: []models.EntityRef{post}}
	edited := &models.Activity{ID: "a2", TypeKey: "comment.edited", Targets: []models.EntityRef{post}}
	assert.Equal(t, ThreadKey(created), ThreadKey(edited))
}

func TestThreadKey_NoDotUsesWholeKey(t *testing.T) {
	activity := &models.Activity{
		ID:      "a1",
		TypeKey: "mention",
		Actor:   models.EntityRef{Kind: "user", Type: "person", ID: "alice"},
	}
	assert.Equal(t, "actor:person:alice:type:mention", ThreadKey(activity))
}
