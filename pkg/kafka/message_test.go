package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

func validActivityJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(models.Activity{
		ID:       "a1",
		TenantID: "t1",
		TypeKey:  "post.created",
		Actor:    models.EntityRef{Kind: "user", Type: "person", ID: "alice"},
	})
	require.NoError(t, err)
	return data
}

func TestParseActivity(t *testing.T) {
	activity, err := ParseActivity(validActivityJSON(t))
	require.NoError(t, err)
	assert.Equal(t, "a1", activity.ID)
	assert.Equal(t, "t1", activity.TenantID)
}

func TestParseActivity_RejectsInvalid(t *testing.T) {
	_, err := ParseActivity([]byte(`{"id": "a1"}`))
	assert.Error(t, err)

	_, err = ParseActivity([]byte(`not json`))
	assert.Error(t, err)
}

func TestMessageContext_StampsIdentity(t *testing.T) {
	activity, err := ParseActivity(validActivityJSON(t))
	require.NoError(t, err)

	msg := &ReceivedMessage{
		Headers:  []Header{{Key: "X-Request-Id", Value: []byte("req-42")}},
		Activity: activity,
	}

	ctx := MessageContext(context.Background(), msg)
	assert.Equal(t, "req-42", appctx.GetRequestID(ctx))
	assert.Equal(t, "t1", appctx.GetTenantID(ctx))
	assert.Equal(t, "a1", appctx.GetActivityID(ctx))
}

func TestMessageContext_GeneratesRequestID(t *testing.T) {
	activity, err := ParseActivity(validActivityJSON(t))
	require.NoError(t, err)

	ctx := MessageContext(context.Background(), &ReceivedMessage{Activity: activity})
	assert.NotEmpty(t, appctx.GetRequestID(ctx))
}

func TestMessageContext_NilActivity(t *testing.T) {
	ctx := MessageContext(context.Background(), &ReceivedMessage{})
	assert.NotEmpty(t, appctx.GetRequestID(ctx))
	assert.Empty(t, appctx.GetTenantID(ctx))
}
