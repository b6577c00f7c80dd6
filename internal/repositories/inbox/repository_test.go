package inbox_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/repositories/inbox"
	"github.com/Ramsey-B/fern/pkg/database"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "postgres"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "postgres"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "fern"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func recipient(id string) models.EntityRef {
	return models.EntityRef{Kind: "user", Type: "person", ID: id}
}

func notification(tenantID string, recipientID string, dedupKey string, threadKey string) models.InboxItem {
	return models.InboxItem{
		TenantID:    tenantID,
		Recipient:   recipient(recipientID),
		Kind:        models.InboxItemKindNotification,
		Status:      models.InboxStatusUnread,
		Event:       models.InboxEvent{Kind: "activity", ID: "a1", TypeKey: "comment.created"},
		DedupKey:    dedupKey,
		ThreadKey:   threadKey,
		ThreadCount: 1,
	}
}

func TestRepository_InsertDedupKeyIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := inbox.NewRepository(getTestDB(t), getTestLogger())
	tenantID := uuid.New().String()
	ctx := context.Background()

	first, err := repo.Insert(ctx, notification(tenantID, "bob", "dedup-1", "thread-1"))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	// A second insert with the same dedup key loses the conflict and
	// resolves to the committed item.
	second, err := repo.Insert(ctx, notification(tenantID, "bob", "dedup-1", "thread-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different recipient with the same dedup key is unaffected.
	third, err := repo.Insert(ctx, notification(tenantID, "carol", "dedup-1", "thread-1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestRepository_ApplyThreadEventPreservesStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := inbox.NewRepository(getTestDB(t), getTestLogger())
	tenantID := uuid.New().String()
	ctx := context.Background()

	created, err := repo.Insert(ctx, notification(tenantID, "bob", "dedup-1", "thread-1"))
	require.NoError(t, err)

	_, err = repo.SetStatus(ctx, tenantID, created.ID, models.InboxStatusRead)
	require.NoError(t, err)

	merged, err := repo.ApplyThreadEvent(ctx, tenantID, created.ID, models.InboxEvent{
		Kind: "activity", ID: "a2", TypeKey: "comment.edited",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, merged.ThreadCount)
	assert.Equal(t, models.InboxStatusRead, merged.Status)
	assert.Equal(t, "a2", merged.Event.ID)
	require.NotNil(t, merged.UpdatedAt)

	found, err := repo.GetByThreadKey(ctx, tenantID, recipient("bob"), "thread-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
}

func TestRepository_ApplyThreadEventUnknownItem(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := inbox.NewRepository(getTestDB(t), getTestLogger())

	_, err := repo.ApplyThreadEvent(context.Background(), uuid.New().String(), uuid.New().String(), models.InboxEvent{Kind: "activity", ID: "a1"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRepository_QueryPaginates(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := inbox.NewRepository(getTestDB(t), getTestLogger())
	tenantID := uuid.New().String()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Insert(ctx, notification(tenantID, "bob",
			fmt.Sprintf("dedup-%d", i), fmt.Sprintf("thread-%d", i)))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	query := models.InboxQuery{Recipients: []models.EntityRef{recipient("bob")}, Limit: 2}
	for {
		page, err := repo.Query(ctx, tenantID, query)
		require.NoError(t, err)
		for _, item := range page.Items {
			assert.False(t, seen[item.ID], "item %s returned twice", item.ID)
			seen[item.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		query.Cursor = page.NextCursor
	}
	assert.Len(t, seen, 5)
}
