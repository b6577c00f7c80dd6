package fanout

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// DedupKey identifies one (activity, recipient) delivery. At most one inbox
// item ever exists per dedup key within a tenant.
func DedupKey(activity *models.Activity, recipient models.EntityRef) string {
	return "activity:" + activity.ID + ":recipient:" + recipient.Key()
}

// ThreadKey groups repeated events about the same subject into one growing
// inbox entry. The first target anchors the thread when present; otherwise
// the actor does. The type key prefix keeps e.g. "comment.created" and
// "comment.edited" in the same thread.
func ThreadKey(activity *models.Activity) string {
	prefix := models.TypeKeyPrefix(activity.TypeKey)
	if len(activity.Targets) > 0 {
		target := activity.Targets[0]
		return "target:" + target.Type + ":" + target.ID + ":type:" + prefix
	}
	return "actor:" + activity.Actor.Type + ":" + activity.Actor.ID + ":type:" + prefix
}
