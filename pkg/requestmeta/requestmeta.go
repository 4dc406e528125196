// Package requestmeta carries per-request caller details through a
// context.Context so services never depend on the HTTP layer.
package requestmeta

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

type Meta struct {
	RequestID string
	UserID    *uuid.UUID
	Role      string
	IPAddress string
	UserAgent string
}

func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the zero Meta when none is set
func FromContext(ctx context.Context) Meta {
	m, _ := ctx.Value(ctxKey{}).(Meta)
	return m
}

// WithUser returns ctx with the authenticated user recorded
func WithUser(ctx context.Context, userID uuid.UUID, role string) context.Context {
	m := FromContext(ctx)
	m.UserID = &userID
	m.Role = role
	return WithMeta(ctx, m)
}
