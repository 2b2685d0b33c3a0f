package envios

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/opsboard/opsboard/internal/broker/messages"
	"github.com/opsboard/opsboard/internal/cache"
	"github.com/opsboard/opsboard/internal/integrations/airtable"
	"github.com/opsboard/opsboard/internal/models"
	"github.com/opsboard/opsboard/internal/sla"
)

const listCacheKey = "envios:list"

// SideStore — операции Supabase-стора, все идемпотентные.
type SideStore interface {
	EnsureRecogidas(ctx context.Context, numeros []string) error
	CompleteRecogida(ctx context.Context, numero string) error
	CompleteTracking(ctx context.Context, numero string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Service — контроллер экрана envios. Создаётся на "маунт", владеет своей
// копией списка; между экранами состояние не шарится (каждый экран может
// какое-то время видеть свою устаревшую копию — это принятое поведение).
type Service struct {
	at       airtable.Client
	store    SideStore
	cache    cache.BytesCache
	producer Producer
	bucketer *sla.Bucketer

	table    string
	topic    string
	cacheTTL time.Duration

	mu     sync.Mutex
	items  map[string]*models.Envio
	saving map[string]bool

	totalUpdates   atomic.Int64
	sideEffectErrs atomic.Int64
	lastErrMu      sync.Mutex
	lastSideErr    string
}

func New(at airtable.Client, store SideStore, c cache.BytesCache, producer Producer, b *sla.Bucketer) *Service {
	if b == nil {
		b = sla.DefaultBucketer()
	}
	return &Service{
		at:       at,
		store:    store,
		cache:    c,
		producer: producer,
		bucketer: b,
		table:    "Envios",
		topic:    "record.updated",
		cacheTTL: time.Minute,
		items:    make(map[string]*models.Envio),
		saving:   make(map[string]bool),
	}
}

func (s *Service) WithSettings(table, topic string, cacheTTL time.Duration) *Service {
	if table != "" {
		s.table = table
	}
	if topic != "" {
		s.topic = topic
	}
	if cacheTTL > 0 {
		s.cacheTTL = cacheTTL
	}
	return s
}

type Buckets struct {
	RequiresAction []*models.Envio `json:"requiresAction"`
	Waiting        []*models.Envio `json:"waiting"`
}

// List загружает envios (кэш — лучшее усилие), раскладывает по SLA-корзинам,
// лучшим усилием заводит строки side-store для всех actionable номеров, потом
// применяет поиск и сортировку. Ошибка side-store не роняет выдачу.
func (s *Service) List(ctx context.Context, search string) (Buckets, error) {
	envios, err := s.fetch(ctx)
	if err != nil {
		return Buckets{}, err
	}

	s.mu.Lock()
	s.items = make(map[string]*models.Envio, len(envios))
	for _, e := range envios {
		s.items[e.ID] = e
	}
	s.mu.Unlock()

	// Наружу отдаём копии: s.items мутируется при Update, а выданный список
	// могут ещё сериализовать из другой горутины.
	now := time.Now().UTC()
	var out Buckets
	var ensure []string
	for _, e := range envios {
		cp := *e
		switch s.bucketer.BucketEnvio(e, now) {
		case models.BucketRequiresAction:
			out.RequiresAction = append(out.RequiresAction, &cp)
			if sla.IsSyncKey(e.Numero) {
				ensure = append(ensure, e.Numero)
			}
		case models.BucketWaiting:
			out.Waiting = append(out.Waiting, &cp)
		}
	}

	// Один батч на весь actionable-набор; повторные вызовы с пересечением
	// безопасны (upsert). Отказ — молча в лог, основной поток не трогаем.
	if len(ensure) > 0 {
		if err := s.store.EnsureRecogidas(ctx, ensure); err != nil {
			s.noteSideEffectErr("ensure recogidas", err)
		}
	}

	out.RequiresAction = filterAndSort(out.RequiresAction, search)
	out.Waiting = filterAndSort(out.Waiting, search)
	return out, nil
}

func filterAndSort(envios []*models.Envio, search string) []*models.Envio {
	kept := envios[:0]
	for _, e := range envios {
		if sla.MatchEnvio(e, search) {
			kept = append(kept, e)
		}
	}
	sla.SortEnviosByNumero(kept)
	return kept
}

func (s *Service) fetch(ctx context.Context) ([]*models.Envio, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, listCacheKey); err == nil && ok {
			var envios []*models.Envio
			if json.Unmarshal(b, &envios) == nil {
				return envios, nil
			}
		}
	}

	envios, err := s.at.ListEnvios(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list envios")
	}

	if s.cache != nil && s.cacheTTL > 0 {
		b, _ := json.Marshal(envios)
		_ = s.cache.Set(ctx, listCacheKey, b, s.cacheTTL)
	}
	return envios, nil
}

// SideEffect — результат одного side-store/брокер-вызова после успешного патча.
// Тип существует, чтобы асимметрия была видна в сигнатурах: primary-ошибку
// вызывающий обязан проверить, SideEffects — осознанно игнорируемые (сервис
// сам их логирует и считает).
type SideEffect struct {
	Op     string
	Numero string
	Err    error
}

type SideEffects []SideEffect

func (se SideEffects) Failed() int {
	n := 0
	for _, e := range se {
		if e.Err != nil {
			n++
		}
	}
	return n
}

// Update — шлюз обновления записи: патч в Airtable, при успехе shallow-merge
// в свою копию (отката нет, потому что до подтверждения ничего не менялось),
// затем side-эффекты по НОВЫМ значениям полей. Повторное сохранение того же
// терминального состояния снова дёрнет complete-вызов — это безвредно, стор
// идемпотентен. Конкурентные вызовы по одному id не дедуплицируются.
func (s *Service) Update(ctx context.Context, id string, fields models.FieldPatch) (*models.Envio, SideEffects, error) {
	if id == "" {
		return nil, nil, errors.New("id is required")
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
		// In-memory состояние не тронуто: мержим только после успеха.
		return nil, nil, errors.Wrap(err, "update record")
	}
	s.totalUpdates.Add(1)

	s.mu.Lock()
	e, ok := s.items[id]
	s.mu.Unlock()
	if !ok {
		// Экран ещё не загружал список (или запись новая) — подтянем её,
		// иначе side-эффектам не из чего взять numero.
		if envios, ferr := s.at.ListEnvios(ctx); ferr == nil {
			for _, fe := range envios {
				if fe.ID == id {
					e = fe
					break
				}
			}
		}
		if e == nil {
			e = &models.Envio{ID: id}
		}
		s.mu.Lock()
		s.items[id] = e
		s.mu.Unlock()
	}

	s.mu.Lock()
	applyPatch(e, fields)
	merged := *e
	s.mu.Unlock()

	// Наша копия списка в Redis теперь устарела.
	if s.cache != nil {
		_ = s.cache.Del(ctx, listCacheKey)
	}

	effects := s.runSideEffects(ctx, &merged, fields)
	return &merged, effects, nil
}

func (s *Service) runSideEffects(ctx context.Context, e *models.Envio, fields models.FieldPatch) SideEffects {
	var out SideEffects

	estado, estadoChanged := fields[airtable.FieldEstado].(string)
	seguimiento, segChanged := fields[airtable.FieldSeguimiento].(string)

	if sla.IsSyncKey(e.Numero) {
		completeRecogida := estadoChanged && (estado == models.EstadoRecogidaEnviada || estado == models.EstadoRecogidaHecha)
		completeRecogida = completeRecogida || (segChanged && seguimiento != "")
		if completeRecogida {
			eff := SideEffect{Op: "complete_recogida", Numero: e.Numero, Err: s.store.CompleteRecogida(ctx, e.Numero)}
			out = append(out, eff)
		}

		// Отдельная метрика (SLA доставки), может выстрелить по той же
		// записи в другой момент жизни — не сливать с recogida.
		if estadoChanged && estado == models.EstadoEntregado {
			eff := SideEffect{Op: "complete_tracking", Numero: e.Numero, Err: s.store.CompleteTracking(ctx, e.Numero)}
			out = append(out, eff)
		}
	}

	if s.producer != nil {
		msg := messages.RecordUpdated{
			Table:       s.table,
			RecordID:    e.ID,
			Numero:      e.Numero,
			UpdatedAt:   time.Now().UTC(),
			Estado:      e.Estado,
			Seguimiento: e.Seguimiento,
		}
		b, _ := json.Marshal(msg)
		out = append(out, SideEffect{Op: "publish", Numero: e.Numero, Err: s.producer.Publish(ctx, s.topic, []byte(e.ID), b)})
	}

	for _, eff := range out {
		if eff.Err != nil {
			s.noteSideEffectErr(eff.Op, eff.Err)
		}
	}
	return out
}

func applyPatch(e *models.Envio, fields models.FieldPatch) {
	if v, ok := fields[airtable.FieldEstado].(string); ok {
		e.Estado = v
	}
	if v, ok := fields[airtable.FieldSeguimiento].(string); ok {
		e.Seguimiento = v
	}
	if v, ok := fields[airtable.FieldProducto].(string); ok {
		e.Producto = v
	}
	if v, ok := fields[airtable.FieldDestinatario].(string); ok {
		e.Destinatario = v
	}
}

// IsSaving — флаг "идёт сохранение" для дизейбла контролов на этой записи.
func (s *Service) IsSaving(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving[id]
}

// InvalidateCache сбрасывает кэш списка (вызывается консьюмером record.updated).
func (s *Service) InvalidateCache(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, listCacheKey)
	}
}

func (s *Service) noteSideEffectErr(op string, err error) {
	s.sideEffectErrs.Add(1)
	s.lastErrMu.Lock()
	s.lastSideErr = op + ": " + err.Error()
	s.lastErrMu.Unlock()
	slog.Error("side-store call failed", "op", op, "error", err.Error())
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
