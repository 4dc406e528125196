package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Field("date", "is required"), http.StatusUnprocessableEntity},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Forbidden("nope"), http.StatusForbidden},
		{NotFound("reservation", nil), http.StatusNotFound},
		{Conflict("slot taken", nil), http.StatusBadRequest},
		{Policy("too late"), http.StatusBadRequest},
		{Gateway("declined", nil), http.StatusBadRequest},
		{Internal(stderrors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestAsThroughWrapping(t *testing.T) {
	cause := stderrors.New("no rows")
	err := fmt.Errorf("loading: %w", NotFound("payment", cause))

	appErr, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "payment not found", appErr.Message)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(cause, KindNotFound))
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(stderrors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", err.Message)
	assert.Contains(t, err.Error(), "pq:")
}
