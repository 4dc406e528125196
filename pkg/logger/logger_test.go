package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/pkg/requestmeta"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warn"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("chatty"))
}

func TestCtxTagsRequest(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})

	userID := uuid.New()
	ctx := requestmeta.WithUser(requestmeta.WithMeta(context.Background(), requestmeta.Meta{RequestID: "req-7"}), userID, "client")
	l.WithComponent("booking").Ctx(ctx).Info("reservation booked", "reservation_id", "r-1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, userID.String(), entry["user_id"])
	assert.Equal(t, "booking", entry["component"])
	assert.Equal(t, "r-1", entry["reservation_id"])
	assert.Equal(t, "reservation booked", entry["message"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: WarnLevel, Output: &buf, JSON: true})
	l.Info("dropped")
	assert.Zero(t, buf.Len())

	assert.Same(t, l, l.Ctx(context.Background()))
}
