package ratelimited

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsboard/opsboard/internal/integrations/airtable/fake"
	"github.com/opsboard/opsboard/internal/models"
)

type fakeLimiter struct {
	calls    int
	allowed  bool
	allowErr error
}

func (l *fakeLimiter) Allow(_ context.Context, _ string, _ int64, _ time.Duration) (bool, int64, error) {
	l.calls++
	return l.allowed, int64(l.calls), l.allowErr
}

func TestClient_ChecksLimiterBeforeEachCall(t *testing.T) {
	inner := fake.New()
	inner.Seed([]*models.Envio{{ID: "recA", Numero: "100"}}, nil)
	rl := &fakeLimiter{allowed: true}
	c := New(inner, rl, 300)

	ctx := context.Background()
	_, err := c.ListEnvios(ctx)
	require.NoError(t, err)
	_, err = c.ListRegistros(ctx)
	require.NoError(t, err)
	require.NoError(t, c.UpdateRecord(ctx, "Envios", "recA", models.FieldPatch{"Estado": "Entregado"}))
	require.Equal(t, 3, rl.calls)
}

func TestClient_LimiterDownDoesNotBlock(t *testing.T) {
	inner := fake.New()
	rl := &fakeLimiter{allowErr: errors.New("redis down")}
	c := New(inner, rl, 300)

	_, err := c.ListEnvios(context.Background())
	require.NoError(t, err)
}

func TestClient_NilLimiterPassesThrough(t *testing.T) {
	inner := fake.New()
	c := New(inner, nil, 0)

	_, err := c.ListRegistros(context.Background())
	require.NoError(t, err)
}
