package pgrecogidas

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/opsboard/opsboard/internal/models"
)

// EnsureRecogidas заводит строки для всех номеров одним батчем. Повторный вызов
// с пересекающимся набором ничего не ломает: ON CONFLICT DO NOTHING, дублей и
// ошибок нет, created_at существующих строк не трогается.
func (s *Storage) EnsureRecogidas(ctx context.Context, numeros []string) error {
	if len(numeros) == 0 {
		return nil
	}

	_, err := s.db.Exec(ctx, `
INSERT INTO recogidas (numero, created_at)
SELECT unnest($1::text[]), $2
ON CONFLICT (numero) DO NOTHING
`, numeros, time.Now().UTC())
	return errors.Wrap(err, "ensure recogidas")
}

// CompleteRecogida ставит отметку завершения recogida, только если её ещё нет.
// Если строка отсутствует (complete пришёл раньше ensure), она создаётся сразу
// завершённой. Повторный вызов — no-op, отметка не перезаписывается.
func (s *Storage) CompleteRecogida(ctx context.Context, numero string) error {
	return s.complete(ctx, numero, "recogida_completada_at")
}

// CompleteTracking — отдельная метрика (SLA доставки, а не recogida):
// свой столбец, своя отметка. Те же гарантии идемпотентности.
func (s *Storage) CompleteTracking(ctx context.Context, numero string) error {
	return s.complete(ctx, numero, "tracking_completado_at")
}

func (s *Storage) complete(ctx context.Context, numero, column string) error {
	if numero == "" {
		return errors.New("numero is required")
	}

	// column подставляется только из двух внутренних констант выше.
	_, err := s.db.Exec(ctx, `
INSERT INTO recogidas (numero, created_at, `+column+`)
VALUES ($1, $2, $2)
ON CONFLICT (numero) DO UPDATE
SET `+column+` = COALESCE(recogidas.`+column+`, EXCLUDED.`+column+`)
`, numero, time.Now().UTC())
	return errors.Wrap(err, "complete "+column)
}

// CasosGestionados24h — недельный отчёт: сколько recogidas завершено за неделю
// и сколько из них уложилось в 24 часа от создания строки.
func (s *Storage) CasosGestionados24h(ctx context.Context, weeks int) ([]*models.CasosSemana, error) {
	if weeks <= 0 || weeks > 52 {
		weeks = 8
	}

	rows, err := s.db.Query(ctx, `
SELECT
  date_trunc('week', recogida_completada_at) AS week_start,
  count(*) AS total,
  count(*) FILTER (WHERE recogida_completada_at - created_at <= interval '24 hours') AS dentro_24h
FROM recogidas
WHERE recogida_completada_at IS NOT NULL
GROUP BY 1
ORDER BY 1 DESC
LIMIT $1
`, weeks)
	if err != nil {
		return nil, errors.Wrap(err, "select casos")
	}
	defer rows.Close()

	var out []*models.CasosSemana
	for rows.Next() {
		var c models.CasosSemana
		if err := rows.Scan(&c.WeekStart, &c.TotalCompletados, &c.Dentro24h); err != nil {
			return nil, errors.Wrap(err, "scan casos")
		}
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetRecogida возвращает строку по номеру (nil, если её нет).
func (s *Storage) GetRecogida(ctx context.Context, numero string) (*models.Recogida, error) {
	rows, err := s.db.Query(ctx, `
SELECT numero, created_at, recogida_completada_at, tracking_completado_at
FROM recogidas
WHERE numero = $1
`, numero)
	if err != nil {
		return nil, errors.Wrap(err, "select recogida")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var r models.Recogida
	if err := rows.Scan(&r.Numero, &r.CreatedAt, &r.RecogidaCompletadaAt, &r.TrackingCompletadoAt); err != nil {
		return nil, errors.Wrap(err, "scan recogida")
	}
	return &r, nil
}
