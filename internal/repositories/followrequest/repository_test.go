package followrequest_test

import (
	"context"
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

	"github.com/Ramsey-B/fern/internal/repositories/followrequest"
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

func entity(id string) models.EntityRef {
	return models.EntityRef{Kind: "user", Type: "person", ID: id}
}

func pendingRequest(tenantID string, idempotencyKey string) models.FollowRequest {
	return models.FollowRequest{
		TenantID:       tenantID,
		Requester:      entity("alice"),
		Target:         entity("bob"),
		RequestedKind:  models.EdgeKindFollow,
		Scope:          models.EdgeScopeAny,
		Status:         models.RequestStatusPending,
		IdempotencyKey: idempotencyKey,
	}
}

func TestRepository_DecidePendingOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := followrequest.NewRepository(getTestDB(t), getTestLogger())
	tenantID := uuid.New().String()
	ctx := context.Background()

	created, err := repo.Create(ctx, pendingRequest(tenantID, ""))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	decided, err := repo.Decide(ctx, tenantID, created.ID, followrequest.Decision{
		Status:    models.RequestStatusApproved,
		DecidedBy: "bob",
		Reason:    "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, decided.Status)
	assert.Equal(t, "bob", decided.DecidedBy)
	require.NotNil(t, decided.DecidedAt)

	// A decided request is immutable: the guarded update matches no row.
	_, err = repo.Decide(ctx, tenantID, created.ID, followrequest.Decision{
		Status:    models.RequestStatusDenied,
		DecidedBy: "bob",
	})
	assert.True(t, apperrors.IsConflict(err))

	current, err := repo.Get(ctx, tenantID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, current.Status)
}

func TestRepository_DecideUnknownRequest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := followrequest.NewRepository(getTestDB(t), getTestLogger())

	_, err := repo.Decide(context.Background(), uuid.New().String(), uuid.New().String(), followrequest.Decision{
		Status:    models.RequestStatusApproved,
		DecidedBy: "bob",
	})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRepository_CreateIdempotencyKey(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := followrequest.NewRepository(getTestDB(t), getTestLogger())
	tenantID := uuid.New().String()
	ctx := context.Background()

	first, err := repo.Create(ctx, pendingRequest(tenantID, "ik-1"))
	require.NoError(t, err)

	// The conflicting insert is skipped and the original comes back.
	second, err := repo.Create(ctx, pendingRequest(tenantID, "ik-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	fetched, err := repo.GetByIdempotencyKey(ctx, tenantID, "ik-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, first.ID, fetched.ID)
}

func TestRepository_ListPendingExcludesDecided(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := followrequest.NewRepository(getTestDB(t), getTestLogger())
	tenantID := uuid.New().String()
	ctx := context.Background()

	kept, err := repo.Create(ctx, pendingRequest(tenantID, ""))
	require.NoError(t, err)
	decided, err := repo.Create(ctx, models.FollowRequest{
		TenantID:      tenantID,
		Requester:     entity("carol"),
		Target:        entity("bob"),
		RequestedKind: models.EdgeKindFollow,
		Scope:         models.EdgeScopeAny,
		Status:        models.RequestStatusPending,
	})
	require.NoError(t, err)

	_, err = repo.Decide(ctx, tenantID, decided.ID, followrequest.Decision{
		Status:    models.RequestStatusCancelled,
		DecidedBy: "carol",
	})
	require.NoError(t, err)

	pending, err := repo.ListPending(ctx, tenantID, entity("bob"))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, kept.ID, pending[0].ID)
}
