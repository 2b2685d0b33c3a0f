package ratelimited

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsboard/opsboard/internal/integrations/airtable"
	"github.com/opsboard/opsboard/internal/models"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Client — декоратор поверх airtable.Client с общим на все инстансы минутным
// лимитом (счётчик в Redis). Лимит мягкий: при превышении ждём полсекунды и
// всё равно идём, при недоступном Redis пропускаем без задержки — лимитер не
// должен ронять основной поток.
type Client struct {
	inner     airtable.Client
	rl        Limiter
	perMinute int64
}

func New(inner airtable.Client, rl Limiter, perMinute int) *Client {
	if perMinute <= 0 {
		perMinute = 300 // Airtable: 5 rps на базу
	}
	return &Client{inner: inner, rl: rl, perMinute: int64(perMinute)}
}

func (c *Client) wait(ctx context.Context) {
	if c.rl == nil {
		return
	}
	key := fmt.Sprintf("rl:airtable:%s", time.Now().UTC().Format("200601021504"))
	allowed, n, err := c.rl.Allow(ctx, key, c.perMinute, 70*time.Second)
	if err != nil {
		slog.Warn("airtable ratelimit check", "error", err.Error())
		return
	}
	if !allowed {
		slog.Warn("airtable rate limit exceeded", "count", n)
		time.Sleep(500 * time.Millisecond)
	}
}

func (c *Client) ListEnvios(ctx context.Context) ([]*models.Envio, error) {
	c.wait(ctx)
	return c.inner.ListEnvios(ctx)
}

func (c *Client) ListRegistros(ctx context.Context) ([]*models.Registro, error) {
	c.wait(ctx)
	return c.inner.ListRegistros(ctx)
}

func (c *Client) UpdateRecord(ctx context.Context, table, id string, fields models.FieldPatch) error {
	c.wait(ctx)
	return c.inner.UpdateRecord(ctx, table, id, fields)
}

func (c *Client) CreateRecord(ctx context.Context, table string, fields models.FieldPatch) (string, error) {
	c.wait(ctx)
	return c.inner.CreateRecord(ctx, table, fields)
}
