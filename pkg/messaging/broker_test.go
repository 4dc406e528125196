package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	raw := []byte(`{"id":"a"}`)
	got, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = Encode(json.RawMessage(`{"id":"b"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b"}`, string(got))

	got, err = Encode(struct {
		ID string `json:"id"`
	}{ID: "c"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c"}`, string(got))

	_, err = Encode(make(chan int))
	assert.Error(t, err)
}
