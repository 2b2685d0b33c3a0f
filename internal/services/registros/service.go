package registros

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/opsboard/opsboard/internal/broker/messages"
	"github.com/opsboard/opsboard/internal/integrations/airtable"
	"github.com/opsboard/opsboard/internal/models"
	"github.com/opsboard/opsboard/internal/sla"
)

// ErrCitaInvalida — валидация даты встречи до любого сетевого вызова;
// наружу уходит как пользовательское сообщение, частичный патч не отправляется.
var ErrCitaInvalida = errors.New("fecha de cita inválida")

type SideStore interface {
	CompleteRecogida(ctx context.Context, numero string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Service — контроллер экрана registros. Делит с envios один bucketer
// (те же 48 часов и то же значение seguimiento), но живёт своей копией
// списка и своими side-эффектами.
type Service struct {
	at       airtable.Client
	store    SideStore
	producer Producer
	bucketer *sla.Bucketer

	table string
	topic string

	mu     sync.Mutex
	items  map[string]*models.Registro
	saving map[string]bool

	totalUpdates   atomic.Int64
	sideEffectErrs atomic.Int64
	lastErrMu      sync.Mutex
	lastSideErr    string
}

func New(at airtable.Client, store SideStore, producer Producer, b *sla.Bucketer) *Service {
	if b == nil {
		b = sla.DefaultBucketer()
	}
	return &Service{
		at:       at,
		store:    store,
		producer: producer,
		bucketer: b,
		table:    "Registros",
		topic:    "record.updated",
		items:    make(map[string]*models.Registro),
		saving:   make(map[string]bool),
	}
}

func (s *Service) WithSettings(table, topic string) *Service {
	if table != "" {
		s.table = table
	}
	if topic != "" {
		s.topic = topic
	}
	return s
}

type Buckets struct {
	RequiresAction []*models.Registro `json:"requiresAction"`
	Waiting        []*models.Registro `json:"waiting"`
}

func (s *Service) List(ctx context.Context, search string) (Buckets, error) {
	registros, err := s.at.ListRegistros(ctx)
	if err != nil {
		return Buckets{}, errors.Wrap(err, "list registros")
	}

	s.mu.Lock()
	s.items = make(map[string]*models.Registro, len(registros))
	for _, r := range registros {
		s.items[r.ID] = r
	}
	s.mu.Unlock()

	// Наружу отдаём копии: s.items мутируется при Update, а выданный список
	// могут ещё сериализовать из другой горутины.
	now := time.Now().UTC()
	var out Buckets
	for _, r := range registros {
		if !sla.MatchRegistro(r, search) {
			continue
		}
		cp := *r
		switch s.bucketer.BucketRegistro(r, now) {
		case models.BucketRequiresAction:
			out.RequiresAction = append(out.RequiresAction, &cp)
		case models.BucketWaiting:
			out.Waiting = append(out.Waiting, &cp)
		}
	}

	// У registros обычно нет fechaEnvio — упорядочиваем по дате создания.
	sla.SortRegistrosByCreated(out.RequiresAction)
	sla.SortRegistrosByCreated(out.Waiting)
	return out, nil
}

// Update — тот же шлюз, что и у envios: патч, merge после успеха, side-эффект
// по новому значению seguimiento/estado. Дата cita проверяется до сети.
func (s *Service) Update(ctx context.Context, id string, fields models.FieldPatch) (*models.Registro, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if v, ok := fields[airtable.FieldCita]; ok {
		str, _ := v.(string)
		if _, err := ParseCita(str); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.saving[id] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.saving, id)
		s.mu.Unlock()
	}()

	if err := s.at.UpdateRecord(ctx, s.table, id, fields); err != nil {
		return nil, errors.Wrap(err, "update record")
	}
	s.totalUpdates.Add(1)

	s.mu.Lock()
	r, ok := s.items[id]
	s.mu.Unlock()
	if !ok {
		// Экран ещё не загружал список (или запись новая) — подтянем её,
		// иначе side-эффекту не из чего взять numero.
		if registros, ferr := s.at.ListRegistros(ctx); ferr == nil {
			for _, fr := range registros {
				if fr.ID == id {
					r = fr
					break
				}
			}
		}
		if r == nil {
			r = &models.Registro{ID: id}
		}
		s.mu.Lock()
		s.items[id] = r
		s.mu.Unlock()
	}

	s.mu.Lock()
	applyPatch(r, fields)
	merged := *r
	s.mu.Unlock()

	s.runSideEffects(ctx, &merged, fields)
	return &merged, nil
}

func (s *Service) runSideEffects(ctx context.Context, r *models.Registro, fields models.FieldPatch) {
	estado, estadoChanged := fields[airtable.FieldEstado].(string)
	seguimiento, segChanged := fields[airtable.FieldSeguimiento].(string)

	fire := estadoChanged && (estado == models.EstadoRecogidaEnviada || estado == models.EstadoRecogidaHecha)
	fire = fire || (segChanged && seguimiento != "")
	if fire && sla.IsSyncKey(r.Numero) {
		if err := s.store.CompleteRecogida(ctx, r.Numero); err != nil {
			s.noteSideEffectErr("complete_recogida", r.Numero, err)
		}
	}

	if s.producer != nil {
		msg := messages.RecordUpdated{
			Table:       s.table,
			RecordID:    r.ID,
			Numero:      r.Numero,
			UpdatedAt:   time.Now().UTC(),
			Estado:      r.Estado,
			Seguimiento: r.Seguimiento,
		}
		b, _ := json.Marshal(msg)
		if err := s.producer.Publish(ctx, s.topic, []byte(r.ID), b); err != nil {
			s.noteSideEffectErr("publish", r.Numero, err)
		}
	}
}

func (s *Service) noteSideEffectErr(op, numero string, err error) {
	s.sideEffectErrs.Add(1)
	s.lastErrMu.Lock()
	s.lastSideErr = err.Error()
	s.lastErrMu.Unlock()
	slog.Error("side effect failed", "op", op, "numero", numero, "error", err.Error())
}

// Create заводит новый registro в Airtable (дата cita валидируется так же).
func (s *Service) Create(ctx context.Context, fields models.FieldPatch) (string, error) {
	if v, ok := fields[airtable.FieldCita]; ok {
		str, _ := v.(string)
		if _, err := ParseCita(str); err != nil {
			return "", err
		}
	}
	id, err := s.at.CreateRecord(ctx, s.table, fields)
	if err != nil {
		return "", errors.Wrap(err, "create record")
	}
	return id, nil
}

func applyPatch(r *models.Registro, fields models.FieldPatch) {
	if v, ok := fields[airtable.FieldEstado].(string); ok {
		r.Estado = v
	}
	if v, ok := fields[airtable.FieldSeguimiento].(string); ok {
		r.Seguimiento = v
	}
	if v, ok := fields[airtable.FieldAsunto].(string); ok {
		r.Asunto = v
	}
	if v, ok := fields[airtable.FieldCita].(string); ok {
		if t, err := ParseCita(v); err == nil {
			r.Cita = &t
		}
	}
}

// ParseCita принимает RFC3339 или локальный ввод формы "2026-08-31T15:04".
func ParseCita(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrCitaInvalida
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, ErrCitaInvalida
}

func (s *Service) IsSaving(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving[id]
}

type Stats struct {
	TotalUpdates   int64  `json:"totalUpdates"`
	SideEffectErrs int64  `json:"sideEffectErrors"`
	LastSideError  string `json:"lastSideError,omitempty"`
}

func (s *Service) Stats() Stats {
	st := Stats{
		TotalUpdates:   s.totalUpdates.Load(),
		SideEffectErrs: s.sideEffectErrs.Load(),
	}
	s.lastErrMu.Lock()
	st.LastSideError = s.lastSideErr
	s.lastErrMu.Unlock()
	return st
}
