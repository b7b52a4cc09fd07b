package tips

import (
	"context"
	"time"

	"github.com/sundayezeilo/tips/internal/errx"
)

// schemaStatements create the tips table and its read-path indexes. Each
// statement is idempotent so Migrate can run on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tips (
		tip_id        BIGSERIAL PRIMARY KEY,
		connection_id TEXT      NOT NULL,
		title         TEXT,
		body          TEXT      NOT NULL,
		attribution   TEXT,
		language      TEXT,
		approved      BOOLEAN   NOT NULL DEFAULT FALSE,
		deleted       BOOLEAN   NOT NULL DEFAULT FALSE,
		parent_id     BIGINT    REFERENCES tips (tip_id),

		CONSTRAINT tips_connection_id_not_blank CHECK (connection_id <> '')
	)`,
	`CREATE INDEX IF NOT EXISTS tips_connection_visible_idx
		ON tips (connection_id, tip_id) WHERE NOT deleted`,
	`CREATE INDEX IF NOT EXISTS tips_unapproved_idx
		ON tips (tip_id) WHERE NOT approved AND NOT deleted`,
	`CREATE INDEX IF NOT EXISTS tips_parent_id_idx
		ON tips (parent_id) WHERE parent_id IS NOT NULL`,
}

// Migrate creates the tips schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) (err error) {
	const op = "tips.store.Migrate"
	defer s.track("migrate", time.Now(), &err)

	conn, err := s.connect(ctx, op)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, stmt := range schemaStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return errx.E(op, errx.Unavailable, err)
		}
	}
	return nil
}
