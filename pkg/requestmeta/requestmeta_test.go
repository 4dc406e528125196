package requestmeta

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextEmpty(t *testing.T) {
	m := FromContext(context.Background())
	assert.Nil(t, m.UserID)
	assert.Empty(t, m.IPAddress)
}

func TestWithUserKeepsRequestFields(t *testing.T) {
	ctx := WithMeta(context.Background(), Meta{RequestID: "req-1", IPAddress: "10.0.0.1", UserAgent: "curl"})
	id := uuid.New()
	ctx = WithUser(ctx, id, "admin")

	m := FromContext(ctx)
	require.NotNil(t, m.UserID)
	assert.Equal(t, id, *m.UserID)
	assert.Equal(t, "admin", m.Role)
	assert.Equal(t, "req-1", m.RequestID)
	assert.Equal(t, "10.0.0.1", m.IPAddress)
	assert.Equal(t, "curl", m.UserAgent)
}
