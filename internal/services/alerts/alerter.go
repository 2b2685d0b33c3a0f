package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opsboard/opsboard/internal/broker/messages"
	"github.com/opsboard/opsboard/internal/integrations/airtable"
	"github.com/opsboard/opsboard/internal/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Alerter раз в интервал (по умолчанию минута) перечитывает registros и
// публикует событие по каждой cita, попавшей в lead-окно. Таймер живёт строго
// в рамках Run: отмена контекста гасит тикер, ничего не "протекает" между
// перезапусками — просроченный тикер с устаревшим замыканием может дать
// ложный алерт.
type Alerter struct {
	at       airtable.Client
	producer Producer
	topic    string

	pollInterval time.Duration
	lead         time.Duration

	triggerCh chan struct{}

	// Дедуп в пределах процесса: registroID+cita, по которым уже стреляли.
	firedMu sync.Mutex
	fired   map[string]time.Time

	startedAtUnixNano int64
	lastCycleUnixNano atomic.Int64
	totalCycles       atomic.Int64
	totalAlerts       atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(at airtable.Client, producer Producer, topic string) *Alerter {
	return &Alerter{
		at:                at,
		producer:          producer,
		topic:             topic,
		pollInterval:      60 * time.Second,
		lead:              60 * time.Minute,
		triggerCh:         make(chan struct{}, 1),
		fired:             make(map[string]time.Time),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (a *Alerter) WithSettings(pollInterval, lead time.Duration) *Alerter {
	if pollInterval > 0 {
		a.pollInterval = pollInterval
	}
	if lead > 0 {
		a.lead = lead
	}
	return a
}

// Trigger forces an immediate scan cycle (best-effort, non-blocking).
func (a *Alerter) Trigger() {
	select {
	case a.triggerCh <- struct{}{}:
	default:
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	t := time.NewTicker(a.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.runOnce(ctx)
		case <-a.triggerCh:
			a.runOnce(ctx)
		}
	}
}

func (a *Alerter) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	a.lastCycleUnixNano.Store(now.UnixNano())
	a.totalCycles.Add(1)

	registros, err := a.at.ListRegistros(ctx)
	if err != nil {
		a.noteError(err)
		return
	}

	for _, r := range registros {
		if due, key := a.due(r, now); due {
			if err := a.fire(ctx, r, now); err != nil {
				a.noteError(err)
				continue
			}
			a.markFired(key, now)
			a.totalAlerts.Add(1)
		}
	}
}

func (a *Alerter) due(r *models.Registro, now time.Time) (bool, string) {
	if r.Cita == nil {
		return false, ""
	}
	cita := r.Cita.UTC()
	if cita.Before(now) || cita.Sub(now) > a.lead {
		return false, ""
	}
	key := r.ID + "|" + cita.Format(time.RFC3339)
	a.firedMu.Lock()
	_, seen := a.fired[key]
	a.firedMu.Unlock()
	return !seen, key
}

func (a *Alerter) fire(ctx context.Context, r *models.Registro, now time.Time) error {
	msg := messages.CitaAlert{
		RegistroID: r.ID,
		Cliente:    r.Cliente,
		Cita:       r.Cita.UTC(),
		FiredAt:    now,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	slog.Info("cita alert", "registro_id", r.ID, "cita", msg.Cita)
	return a.producer.Publish(ctx, a.topic, []byte(r.ID), b)
}

func (a *Alerter) markFired(key string, now time.Time) {
	a.firedMu.Lock()
	defer a.firedMu.Unlock()
	a.fired[key] = now
	// Старые ключи (cita давно прошла) выметаем, чтобы карта не росла вечно.
	for k, t := range a.fired {
		if now.Sub(t) > 24*time.Hour {
			delete(a.fired, k)
		}
	}
}

func (a *Alerter) noteError(err error) {
	a.totalErrors.Add(1)
	a.lastErrorMu.Lock()
	a.lastError = err.Error()
	a.lastErrorMu.Unlock()
	slog.Error("alerter cycle", "error", err.Error())
}

type Stats struct {
	StartedAt   time.Time  `json:"startedAt"`
	LastCycleAt *time.Time `json:"lastCycleAt,omitempty"`
	TotalCycles int64      `json:"totalCycles"`
	TotalAlerts int64      `json:"totalAlerts"`
	TotalErrors int64      `json:"totalErrors"`
	LastError   string     `json:"lastError,omitempty"`
}

func (a *Alerter) Stats() Stats {
	st := Stats{
		StartedAt:   time.Unix(0, a.startedAtUnixNano).UTC(),
		TotalCycles: a.totalCycles.Load(),
		TotalAlerts: a.totalAlerts.Load(),
		TotalErrors: a.totalErrors.Load(),
	}
	if n := a.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	a.lastErrorMu.Lock()
	st.LastError = a.lastError
	a.lastErrorMu.Unlock()
	return st
}
