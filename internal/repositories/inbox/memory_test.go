package inbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func recipient(id string) models.EntityRef {
	return models.EntityRef{Kind: "user", Type: "person", ID: id}
}

func notification(tenantID, recipientID, dedupKey, threadKey string) models.InboxItem {
	return models.InboxItem{
		TenantID:  tenantID,
		Recipient: recipient(recipientID),
		Kind:      models.InboxItemKindNotification,
		Status:    models.InboxStatusUnread,
		Event:     models.InboxEvent{Kind: "activity", ID: "a1", TypeKey: "comment.created"},
		DedupKey:  dedupKey,
		ThreadKey: threadKey,
	}
}

func TestMemoryInsert_DedupKeyIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.Insert(ctx, notification("t1", "alice", "dk1", "tk1"))
	require.NoError(t, err)

	second, err := repo.Insert(ctx, notification("t1", "alice", "dk1", "tk1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	page, err := repo.Query(ctx, "t1", models.InboxQuery{Recipients: []models.EntityRef{recipient("alice")}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestMemoryInsert_SameDedupKeyDifferentRecipients(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Insert(ctx, notification("t1", "alice", "dk1", ""))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, notification("t1", "bob", "dk1", ""))
	require.NoError(t, err)

	page, err := repo.Query(ctx, "t1", models.InboxQuery{
		Recipients: []models.EntityRef{recipient("alice"), recipient("bob")},
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestMemoryApplyThreadEvent_PreservesStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	item, err := repo.Insert(ctx, notification("t1", "alice", "dk1", "tk1"))
	require.NoError(t, err)

	_, err = repo.SetStatus(ctx, "t1", item.ID, models.InboxStatusRead)
	require.NoError(t, err)

	event := models.InboxEvent{Kind: "activity", ID: "a2", TypeKey: "comment.created"}
	merged, err := repo.ApplyThreadEvent(ctx, "t1", item.ID, event)
	require.NoError(t, err)

	assert.Equal(t, models.InboxStatusRead, merged.Status)
	assert.Equal(t, 2, merged.ThreadCount)
	assert.Equal(t, "a2", merged.Event.ID)
	require.NotNil(t, merged.UpdatedAt)
}

func TestMemoryApplyThreadEvent_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.ApplyThreadEvent(context.Background(), "t1", "missing", models.InboxEvent{})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemorySetStatus_RejectsUnknownStatus(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.SetStatus(context.Background(), "t1", "any", "Snoozed")
	assert.True(t, apperrors.IsValidation(err))
}

func TestMemoryGetByThreadKey(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	item, err := repo.Insert(ctx, notification("t1", "alice", "dk1", "tk1"))
	require.NoError(t, err)

	found, err := repo.GetByThreadKey(ctx, "t1", recipient("alice"), "tk1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, item.ID, found.ID)

	// Thread keys are per recipient.
	missing, err := repo.GetByThreadKey(ctx, "t1", recipient("bob"), "tk1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryQuery_CursorPagination(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		item := notification("t1", "alice", fmt.Sprintf("dk%d", i), "")
		item.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := repo.Insert(ctx, item)
		require.NoError(t, err)
	}

	q := models.InboxQuery{Recipients: []models.EntityRef{recipient("alice")}, Limit: 2}
	page1, err := repo.Query(ctx, "t1", q)
	require.NoError(t, err)
	require.Len(t, page1.Items, 2)
	require.NotEmpty(t, page1.NextCursor)
	// Newest first.
	assert.True(t, page1.Items[0].CreatedAt.After(page1.Items[1].CreatedAt))

	q.Cursor = page1.NextCursor
	page2, err := repo.Query(ctx, "t1", q)
	require.NoError(t, err)
	require.Len(t, page2.Items, 2)
	assert.True(t, page1.Items[1].CreatedAt.After(page2.Items[0].CreatedAt))

	q.Cursor = page2.NextCursor
	page3, err := repo.Query(ctx, "t1", q)
	require.NoError(t, err)
	assert.Len(t, page3.Items, 1)
	assert.Empty(t, page3.NextCursor)

	seen := make(map[string]struct{})
	for _, page := range [][]models.InboxItem{page1.Items, page2.Items, page3.Items} {
		for _, item := range page {
			seen[item.ID] = struct{}{}
		}
	}
	assert.Len(t, seen, 5)
}

func TestMemoryQuery_MalformedCursor(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.Query(context.Background(), "t1", models.InboxQuery{
		Recipients: []models.EntityRef{recipient("alice")},
		Cursor:     "garbage!!!",
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestMemoryQuery_StatusAndKindFilters(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	read := notification("t1", "alice", "dk1", "")
	item, err := repo.Insert(ctx, read)
	require.NoError(t, err)
	_, err = repo.SetStatus(ctx, "t1", item.ID, models.InboxStatusRead)
	require.NoError(t, err)

	request := notification("t1", "alice", "dk2", "")
	request.Kind = models.InboxItemKindRequest
	_, err = repo.Insert(ctx, request)
	require.NoError(t, err)

	status := models.InboxStatusRead
	page, err := repo.Query(ctx, "t1", models.InboxQuery{
		Recipients: []models.EntityRef{recipient("alice")},
		Status:     &status,
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	kind := models.InboxItemKindRequest
	page, err = repo.Query(ctx, "t1", models.InboxQuery{
		Recipients: []models.EntityRef{recipient("alice")},
		Kind:       &kind,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, models.InboxItemKindRequest, page.Items[0].Kind)
}

func TestMemoryQuery_RequiresRecipients(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.Query(context.Background(), "t1", models.InboxQuery{})
	assert.True(t, apperrors.IsValidation(err))
}
