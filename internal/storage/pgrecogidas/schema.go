package pgrecogidas

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS recogidas (
  numero TEXT PRIMARY KEY,
  created_at TIMESTAMPTZ NOT NULL,
  recogida_completada_at TIMESTAMPTZ NULL,
  tracking_completado_at TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_recogidas_recogida_completada_at ON recogidas(recogida_completada_at)`,
		`CREATE INDEX IF NOT EXISTS idx_recogidas_tracking_completado_at ON recogidas(tracking_completado_at)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
