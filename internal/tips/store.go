package tips

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sundayezeilo/tips/internal/errx"
)

const (
	insertTipSQL = `
INSERT INTO tips (connection_id, title, body, attribution, language, approved, deleted, parent_id)
VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, $6)
RETURNING tip_id`

	setApprovedSQL = `
UPDATE tips
SET approved = $2
WHERE tip_id = $1`

	// Approving an edit supersedes its parent.
	supersedeParentSQL = `
UPDATE tips AS parent
SET deleted = TRUE
FROM tips AS edit
WHERE edit.tip_id = $1
  AND parent.tip_id = edit.parent_id`

	setDeletedSQL = `
UPDATE tips
SET deleted = $2
WHERE tip_id = $1`

	// Locks the parent so a concurrent delete or approval waits for the edit.
	selectEditParentSQL = `
SELECT connection_id, deleted
FROM tips
WHERE tip_id = $1
FOR UPDATE`

	selectParentSQL = `
SELECT parent_id
FROM tips
WHERE tip_id = $1
FOR UPDATE`

	tipColumns = `tip_id, connection_id, title, body, attribution, language, approved, deleted, parent_id`

	selectTipSQL = `SELECT ` + tipColumns + `
FROM tips
WHERE tip_id = $1`

	selectTipsSQL = `SELECT ` + tipColumns + `
FROM tips
WHERE connection_id = ANY($1)
  AND (approved OR $2::boolean)
  AND NOT deleted
ORDER BY tip_id`

	selectUnapprovedSQL = `SELECT ` + tipColumns + `
FROM tips
WHERE NOT approved
  AND NOT deleted
ORDER BY tip_id`
)

// Observer receives the outcome of every store operation.
type Observer interface {
	ObserveStoreOp(operation string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStoreOp(string, time.Duration, error) {}

// Store persists tips and applies the moderation state transitions.
//
// Mutations (AddTip, AddEdit, ApproveTip, DeleteTip, RevertEdit, Migrate) are
// serialized by a single write lock held for the whole transaction. Reads
// take no lock and see whatever the database's default isolation shows them.
// Each call opens its own connection and closes it on every return path.
type Store struct {
	writeMu sync.Mutex

	cfgMu sync.RWMutex
	cfg   DBConfig

	connector Connector
	observer  Observer
}

// Option configures a Store.
type Option func(*Store)

// WithSSLMode sets the sslmode used for every connection.
func WithSSLMode(mode string) Option {
	return func(s *Store) { s.cfg.SSLMode = mode }
}

// WithConnectTimeout bounds how long opening a connection may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Store) { s.cfg.ConnectTimeout = d }
}

// WithObserver reports operation timings and outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewStore returns a store that opens connections through connector. A nil
// connector means no driver is available: Configure becomes a no-op and the
// store stays unconfigured for its whole lifetime.
func NewStore(connector Connector, opts ...Option) *Store {
	s := &Store{
		connector: connector,
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether a driver was supplied at construction.
func (s *Store) Available() bool {
	return s.connector != nil
}

// Configure sets the connection parameters.
func (s *Store) Configure(server, port, database, username, password string) {
	if !s.Available() {
		return
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	s.cfg.Server = server
	s.cfg.Port = port
	s.cfg.Database = database
	s.cfg.Username = username
	s.cfg.Password = password
}

// IsConfigured reports whether a server has been set and a driver is available.
func (s *Store) IsConfigured() bool {
	if !s.Available() {
		return false
	}

	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Server != ""
}

func (s *Store) config() DBConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Store) connect(ctx context.Context, op string) (Conn, error) {
	if !s.IsConfigured() {
		return nil, errx.E(op, errx.Unavailable, ErrNotConfigured)
	}

	conn, err := s.connector.Connect(ctx, s.config())
	if err != nil {
		return nil, errx.E(op, errx.Unavailable, err)
	}
	return conn, nil
}

func (s *Store) track(operation string, start time.Time, errp *error) {
	s.observer.ObserveStoreOp(operation, time.Since(start), *errp)
}

// AddTip inserts a new unapproved, visible tip and returns its id.
func (s *Store) AddTip(ctx context.Context, tip NewTip) (id int64, err error) {
	const op = "tips.store.AddTip"
	defer s.track("add_tip", time.Now(), &err)

	conn, err := s.connect(ctx, op)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, insertTipSQL,
			tip.ConnectionID,
			optionalText(tip.Title),
			tip.Body,
			optionalText(tip.Attribution),
			optionalText(tip.Language),
			tip.ParentID,
		).Scan(&id)
	})
	if err != nil {
		return 0, mapStoreError(op, err)
	}
	return id, nil
}

// AddEdit inserts an unapproved revision of parentID and returns its id. The
// edit takes the parent's connection; tip.ConnectionID and tip.ParentID are
// ignored. The parent is read and locked in the insert's transaction, so a
// parent that is missing (NotFound) or already deleted (Conflict) can never
// gain an edit.
func (s *Store) AddEdit(ctx context.Context, parentID int64, tip NewTip) (id int64, err error) {
	const op = "tips.store.AddEdit"
	defer s.track("add_edit", time.Now(), &err)

	conn, err := s.connect(ctx, op)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		var (
			connectionID string
			deleted      bool
		)
		if err := tx.QueryRow(ctx, selectEditParentSQL, parentID).Scan(&connectionID, &deleted); err != nil {
			return err
		}
		if deleted {
			return ErrParentHidden
		}

		return tx.QueryRow(ctx, insertTipSQL,
			connectionID,
			optionalText(tip.Title),
			tip.Body,
			optionalText(tip.Attribution),
			optionalText(tip.Language),
			&parentID,
		).Scan(&id)
	})
	if err != nil {
		return 0, mapStoreError(op, err)
	}
	return id, nil
}

// ApproveTip sets the approved flag. Approving an edit also soft-deletes its
// parent in the same transaction; un-approving never cascades.
func (s *Store) ApproveTip(ctx context.Context, tipID int64, approved bool) (err error) {
	const op = "tips.store.ApproveTip"
	defer s.track("approve_tip", time.Now(), &err)

	conn, err := s.connect(ctx, op)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, setApprovedSQL, tipID, approved); err != nil {
			return err
		}
		if !approved {
			return nil
		}
		_, err := tx.Exec(ctx, supersedeParentSQL, tipID)
		return err
	})
	if err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

// DeleteTip soft-deletes a tip. It does not look at the current state and
// does not touch related tips.
func (s *Store) DeleteTip(ctx context.Context, tipID int64) (err error) {
	const op = "tips.store.DeleteTip"
	defer s.track("delete_tip", time.Now(), &err)

	conn, err := s.connect(ctx, op)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, setDeletedSQL, tipID, true)
		return err
	})
	if err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

// RevertEdit hides an edit and restores the tip it revised. Tips without a
// parent, and ids that do not exist, are left untouched without error.
func (s *Store) RevertEdit(ctx context.Context, tipID int64) (err error) {
	const op = "tips.store.RevertEdit"
	defer s.track("revert_edit", time.Now(), &err)

	conn, err := s.connect(ctx, op)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		var parentID pgtype.Int8
		err := tx.QueryRow(ctx, selectParentSQL, tipID).Scan(&parentID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil
		case err != nil:
			return err
		case !parentID.Valid:
			return nil
		}

		if _, err := tx.Exec(ctx, setDeletedSQL, tipID, true); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, setDeletedSQL, parentID.Int64, false)
		return err
	})
	if err != nil {
		return mapStoreError(op, err)
	}
	return nil
}

// GetTips returns the visible tips of the given connections, ordered by id.
// Unapproved tips are included only when includeUnapproved is set. An
// unconfigured store or an empty connection list yields an empty result.
func (s *Store) GetTips(ctx context.Context, connectionIDs []string, includeUnapproved bool) (tips []Tip, err error) {
	const op = "tips.store.GetTips"
	defer s.track("get_tips", time.Now(), &err)

	if !s.IsConfigured() || len(connectionIDs) == 0 {
		return []Tip{}, nil
	}

	conn, err := s.connect(ctx, op)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	rows, err := conn.Query(ctx, selectTipsSQL, connectionIDs, includeUnapproved)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	tips, err = pgx.CollectRows(rows, collectTip)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	return tips, nil
}

// GetUnapprovedTips returns every visible unapproved tip across all
// connections, ordered by id.
func (s *Store) GetUnapprovedTips(ctx context.Context) (tips []Tip, err error) {
	const op = "tips.store.GetUnapprovedTips"
	defer s.track("get_unapproved_tips", time.Now(), &err)

	if !s.IsConfigured() {
		return []Tip{}, nil
	}

	conn, err := s.connect(ctx, op)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	rows, err := conn.Query(ctx, selectUnapprovedSQL)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	tips, err = pgx.CollectRows(rows, collectTip)
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	return tips, nil
}

// GetTip returns one tip whatever its moderation state.
func (s *Store) GetTip(ctx context.Context, tipID int64) (tip Tip, err error) {
	const op = "tips.store.GetTip"
	defer s.track("get_tip", time.Now(), &err)

	conn, err := s.connect(ctx, op)
	if err != nil {
		return Tip{}, err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	tip, err = scanTip(conn.QueryRow(ctx, selectTipSQL, tipID))
	if err != nil {
		return Tip{}, mapStoreError(op, err)
	}
	return tip, nil
}

// Ping opens and closes one connection.
func (s *Store) Ping(ctx context.Context) (err error) {
	const op = "tips.store.Ping"
	defer s.track("ping", time.Now(), &err)

	conn, err := s.connect(ctx, op)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	if err := conn.Ping(ctx); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	return nil
}

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func int64Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func collectTip(row pgx.CollectableRow) (Tip, error) {
	return scanTip(row)
}

func scanTip(row pgx.Row) (Tip, error) {
	var (
		t                        Tip
		title, attribution, lang pgtype.Text
		parentID                 pgtype.Int8
	)
	err := row.Scan(
		&t.TipID,
		&t.ConnectionID,
		&title,
		&t.Body,
		&attribution,
		&lang,
		&t.Approved,
		&t.Deleted,
		&parentID,
	)
	if err != nil {
		return Tip{}, err
	}

	t.Title = title.String
	t.Attribution = attribution.String
	t.Language = lang.String
	t.ParentID = int64Ptr(parentID)
	return t, nil
}
