package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/db"
	"github.com/sells-group/philgeps-cli/internal/model"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	locks   *KeyLock
}

// PoolConfig holds optional pool sizing parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore connected to the given database URL.
// If poolCfg is nil, default pool sizes are used.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, locks: NewKeyLock()}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bid_notices (
	id                TEXT PRIMARY KEY,
	reference_number  TEXT NOT NULL UNIQUE,
	control_number    TEXT,
	title             TEXT,
	procuring_entity  TEXT,
	classification    TEXT,
	category          TEXT,
	approved_budget   DOUBLE PRECISION,
	status            TEXT NOT NULL DEFAULT 'Published',
	publish_date      TIMESTAMPTZ,
	closing_date      TIMESTAMPTZ,
	date_created      TIMESTAMPTZ,
	date_last_updated TIMESTAMPTZ,
	contact_person    TEXT,
	contact_email     TEXT,
	delivery_period   TEXT,
	bid_document_fee  DOUBLE PRECISION NOT NULL DEFAULT 0,
	procurement_mode  TEXT,
	procurement_rules TEXT,
	lot_type          TEXT,
	bid_validity_days INTEGER,
	delivery_location TEXT,
	agency_address    TEXT,
	created_by        TEXT,
	funding_source    TEXT,
	description       TEXT,
	download_count    INTEGER,
	url               TEXT NOT NULL,
	scraped_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS line_items (
	id              BIGSERIAL PRIMARY KEY,
	bid_notice_id   TEXT NOT NULL REFERENCES bid_notices(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	item_number     INTEGER,
	unspsc_code     TEXT,
	lot_name        TEXT,
	lot_description TEXT,
	quantity        DOUBLE PRECISION,
	unit_of_measure TEXT
);

CREATE TABLE IF NOT EXISTS bid_documents (
	id            BIGSERIAL PRIMARY KEY,
	bid_notice_id TEXT NOT NULL REFERENCES bid_notices(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	filename      TEXT NOT NULL,
	document_url  TEXT NOT NULL,
	document_type TEXT NOT NULL,
	file_size     TEXT
);

CREATE TABLE IF NOT EXISTS awarded_contracts (
	id                        TEXT PRIMARY KEY,
	award_notice_number       TEXT NOT NULL UNIQUE,
	bid_reference_number      TEXT,
	control_number            TEXT,
	award_title               TEXT,
	award_type                TEXT,
	award_date                TIMESTAMPTZ,
	awardee_name              TEXT,
	awardee_address           TEXT,
	awardee_contact_person    TEXT,
	awardee_corporate_title   TEXT,
	approved_budget           DOUBLE PRECISION,
	contract_amount           DOUBLE PRECISION,
	contract_number           TEXT,
	contract_effectivity_date TIMESTAMPTZ,
	contract_end_date         TIMESTAMPTZ,
	period_of_contract        TEXT,
	proceed_date              TIMESTAMPTZ,
	procurement_mode          TEXT,
	classification            TEXT,
	category                  TEXT,
	procurement_rules         TEXT,
	funding_source            TEXT,
	procuring_entity          TEXT,
	agency_address            TEXT,
	delivery_location         TEXT,
	publish_date              TIMESTAMPTZ,
	date_created              TIMESTAMPTZ,
	date_last_updated         TIMESTAMPTZ,
	description               TEXT,
	created_by                TEXT,
	url                       TEXT NOT NULL,
	scraped_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS award_line_items (
	id                  BIGSERIAL PRIMARY KEY,
	awarded_contract_id TEXT NOT NULL REFERENCES awarded_contracts(id) ON DELETE CASCADE,
	position            INTEGER NOT NULL,
	item_number         INTEGER,
	unspsc_code         TEXT,
	lot_name            TEXT,
	lot_description     TEXT,
	quantity            DOUBLE PRECISION,
	unit_of_measure     TEXT
);

CREATE TABLE IF NOT EXISTS award_documents (
	id                  BIGSERIAL PRIMARY KEY,
	awarded_contract_id TEXT NOT NULL REFERENCES awarded_contracts(id) ON DELETE CASCADE,
	position            INTEGER NOT NULL,
	filename            TEXT NOT NULL,
	document_url        TEXT NOT NULL,
	document_type       TEXT NOT NULL,
	file_size           TEXT
);

CREATE TABLE IF NOT EXISTS scrape_sessions (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL,
	total_candidates INTEGER NOT NULL DEFAULT 0,
	total_scraped    INTEGER NOT NULL DEFAULT 0,
	new_records      INTEGER NOT NULL DEFAULT 0,
	skipped          INTEGER NOT NULL DEFAULT 0,
	errors           INTEGER NOT NULL DEFAULT 0,
	success          BOOLEAN NOT NULL,
	notes            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_bid_notices_publish_date ON bid_notices(publish_date);
CREATE INDEX IF NOT EXISTS idx_bid_notices_closing_date ON bid_notices(closing_date);
CREATE INDEX IF NOT EXISTS idx_line_items_bid_notice_id ON line_items(bid_notice_id);
CREATE INDEX IF NOT EXISTS idx_bid_documents_bid_notice_id ON bid_documents(bid_notice_id);
CREATE INDEX IF NOT EXISTS idx_awarded_contracts_award_date ON awarded_contracts(award_date);
CREATE INDEX IF NOT EXISTS idx_awarded_contracts_bid_reference ON awarded_contracts(bid_reference_number);
CREATE INDEX IF NOT EXISTS idx_award_line_items_contract_id ON award_line_items(awarded_contract_id);
CREATE INDEX IF NOT EXISTS idx_award_documents_contract_id ON award_documents(awarded_contract_id);
CREATE INDEX IF NOT EXISTS idx_scrape_sessions_started_at ON scrape_sessions(started_at DESC);
`

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, kind model.RecordKind, key string) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, t.name, t.key),
		key,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: exists %s %s", kind, key)
	}
	return exists, nil
}

// upsertRecordSQL inserts a fresh row or overwrites every column of the row
// holding the same natural key. (xmax = 0) is true only for a fresh insert.
func upsertRecordSQL(t recordTable) string {
	cols := append([]string{"id", "scraped_at", "updated_at"}, t.columns...)
	var set []string
	for _, c := range t.columns {
		if c == t.key {
			continue
		}
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	set = append(set, "updated_at = EXCLUDED.updated_at")
	return fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING id, (xmax = 0)`,
		t.name, strings.Join(cols, ", "), placeholders(len(cols), true), t.key, strings.Join(set, ", "),
	)
}

func (s *PostgresStore) Upsert(ctx context.Context, rec model.Record) (string, bool, error) {
	key := rec.NaturalKey()
	if key == "" {
		return "", false, ErrMissingKey
	}
	t, err := tableFor(rec.Kind())
	if err != nil {
		return "", false, err
	}
	vals, err := recordValues(rec)
	if err != nil {
		return "", false, err
	}

	unlock := s.locks.Lock(string(rec.Kind()) + ":" + key)
	defer unlock()

	now := time.Now().UTC()
	id := uuid.New().String()
	args := append([]any{id, now, now}, vals...)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", false, eris.Wrap(err, "postgres: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var created bool
	if err := tx.QueryRow(ctx, upsertRecordSQL(t), args...).Scan(&id, &created); err != nil {
		return "", false, eris.Wrapf(err, "postgres: upsert %s %s", t.name, key)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.lineItems, t.fk), id); err != nil {
		return "", false, eris.Wrapf(err, "postgres: clear %s", t.lineItems)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.documents, t.fk), id); err != nil {
		return "", false, eris.Wrapf(err, "postgres: clear %s", t.documents)
	}

	items, docs := rec.Children()
	itemRows, docRows := childRows(id, items, docs)
	if _, err := db.CopyFrom(ctx, tx, t.lineItems, t.childColumns(lineItemColumns), itemRows); err != nil {
		return "", false, eris.Wrap(err, "postgres: upsert line items")
	}
	if _, err := db.CopyFrom(ctx, tx, t.documents, t.childColumns(documentColumns), docRows); err != nil {
		return "", false, eris.Wrap(err, "postgres: upsert documents")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, eris.Wrap(err, "postgres: upsert: commit tx")
	}
	return id, created, nil
}

func (s *PostgresStore) GetBid(ctx context.Context, referenceNumber string) (*model.BidNotice, error) {
	b := &model.BidNotice{}
	if err := s.getRecord(ctx, bidTable, referenceNumber, b, bidDest(b)); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) GetAward(ctx context.Context, awardNoticeNumber string) (*model.AwardedContract, error) {
	a := &model.AwardedContract{}
	if err := s.getRecord(ctx, awardTable, awardNoticeNumber, a, awardDest(a)); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) getRecord(ctx context.Context, t recordTable, key string, rec model.Record, dest []any) error {
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, t.selectList(), t.name, t.key),
		key,
	).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: get %s %s", t.name, key)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get %s %s", t.name, key)
	}
	return s.loadChildren(ctx, t, rec)
}

func (s *PostgresStore) ListBids(ctx context.Context, filter RecordFilter) ([]model.BidNotice, error) {
	var out []model.BidNotice
	err := s.listRecords(ctx, bidTable, filter, func(rows pgx.Rows) error {
		var b model.BidNotice
		if err := rows.Scan(bidDest(&b)...); err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadChildren(ctx, bidTable, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) ListAwards(ctx context.Context, filter RecordFilter) ([]model.AwardedContract, error) {
	var out []model.AwardedContract
	err := s.listRecords(ctx, awardTable, filter, func(rows pgx.Rows) error {
		var a model.AwardedContract
		if err := rows.Scan(awardDest(&a)...); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadChildren(ctx, awardTable, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) listRecords(ctx context.Context, t recordTable, filter RecordFilter, scan func(pgx.Rows) error) error {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY scraped_at DESC`, t.selectList(), t.name)
	args := []any{limitOrDefault(filter.Limit)}
	query += ` LIMIT $1`
	if filter.Offset > 0 {
		query += ` OFFSET $2`
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: list %s", t.name)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return eris.Wrapf(err, "postgres: scan %s", t.name)
		}
	}
	return eris.Wrapf(rows.Err(), "postgres: list %s iterate", t.name)
}

// loadChildren reads both child collections of a record whose Meta.ID is set.
func (s *PostgresStore) loadChildren(ctx context.Context, t recordTable, rec model.Record) error {
	id := recordID(rec)

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY position`, strings.Join(lineItemColumns, ", "), t.lineItems, t.fk),
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: load %s", t.lineItems)
	}
	var items []model.LineItem
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(lineItemDest(&it)...); err != nil {
			rows.Close()
			return eris.Wrapf(err, "postgres: scan %s", t.lineItems)
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "postgres: load %s iterate", t.lineItems)
	}

	rows, err = s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY position`, strings.Join(documentColumns, ", "), t.documents, t.fk),
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: load %s", t.documents)
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(documentDest(&d)...); err != nil {
			return eris.Wrapf(err, "postgres: scan %s", t.documents)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "postgres: load %s iterate", t.documents)
	}

	setChildren(rec, items, docs)
	return nil
}

func (s *PostgresStore) AppendSession(ctx context.Context, sess *model.ScrapeSession) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO scrape_sessions (%s) VALUES (%s)`,
			strings.Join(sessionColumns, ", "), placeholders(len(sessionColumns), true)),
		sessionValues(sess)...,
	)
	return eris.Wrap(err, "postgres: append session")
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM scrape_sessions WHERE true`, strings.Join(sessionColumns, ", "))
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.ScrapeSession
	for rows.Next() {
		var sess model.ScrapeSession
		if err := rows.Scan(sessionDest(&sess)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}
