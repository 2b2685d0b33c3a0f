package sla

import (
	"time"

	"github.com/opsboard/opsboard/internal/models"
)

type BucketerConfig struct {
	ActionThresholdHours int // default: 48

	// Terminal states are excluded from both buckets and never trigger
	// side-store writes once reached.
	TerminalEstados []string

	AckValue string // default: models.SeguimientoEmailEnviado
}

func DefaultBucketerConfig() BucketerConfig {
	return BucketerConfig{
		ActionThresholdHours: 48,
		TerminalEstados: []string{
			models.EstadoEntregado,
			models.EstadoDevuelto,
			models.EstadoRecogidaHecha,
		},
		AckValue: models.SeguimientoEmailEnviado,
	}
}

// Bucketer — общий классификатор для envios и registros. Раньше пороги были
// размазаны по двум почти одинаковым реализациям на экранах; здесь они собраны
// в одном месте.
type Bucketer struct {
	cfg BucketerConfig
}

func NewBucketer(cfg BucketerConfig) *Bucketer {
	def := DefaultBucketerConfig()
	if cfg.ActionThresholdHours <= 0 {
		cfg.ActionThresholdHours = def.ActionThresholdHours
	}
	if len(cfg.TerminalEstados) == 0 {
		cfg.TerminalEstados = def.TerminalEstados
	}
	if cfg.AckValue == "" {
		cfg.AckValue = def.AckValue
	}
	return &Bucketer{cfg: cfg}
}

func DefaultBucketer() *Bucketer {
	return NewBucketer(DefaultBucketerConfig())
}

// Bucket применяет правила строго по порядку:
//  1. терминальное состояние -> BucketNone (запись неактивна);
//  2. seguimiento == ack -> Waiting, сколько бы часов ни прошло;
//  3. нет fechaEnvio -> Waiting (мерить нечего);
//  4. > порога бизнес-часов -> RequiresAction, иначе Waiting.
//
// Граница строгая: ровно 48 часов — это ещё Waiting.
func (b *Bucketer) Bucket(estado, seguimiento string, fechaEnvio *time.Time, now time.Time) models.Bucket {
	if b.isTerminal(estado) {
		return models.BucketNone
	}
	if seguimiento == b.cfg.AckValue {
		return models.BucketWaiting
	}
	if fechaEnvio == nil {
		return models.BucketWaiting
	}
	if BusinessHours(*fechaEnvio, now) > b.cfg.ActionThresholdHours {
		return models.BucketRequiresAction
	}
	return models.BucketWaiting
}

func (b *Bucketer) BucketEnvio(e *models.Envio, now time.Time) models.Bucket {
	return b.Bucket(e.Estado, e.Seguimiento, e.FechaEnvio, now)
}

func (b *Bucketer) BucketRegistro(r *models.Registro, now time.Time) models.Bucket {
	return b.Bucket(r.Estado, r.Seguimiento, r.FechaEnvio, now)
}

func (b *Bucketer) isTerminal(estado string) bool {
	for _, t := range b.cfg.TerminalEstados {
		if estado == t {
			return true
		}
	}
	return false
}
