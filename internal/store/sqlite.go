package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	locks *KeyLock
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// A single connection is kept so concurrent workers queue on the driver
// instead of failing with SQLITE_BUSY on lock upgrades.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, locks: NewKeyLock()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bid_notices (
	id                TEXT PRIMARY KEY,
	reference_number  TEXT NOT NULL UNIQUE,
	control_number    TEXT,
	title             TEXT,
	procuring_entity  TEXT,
	classification    TEXT,
	category          TEXT,
	approved_budget   REAL,
	status            TEXT NOT NULL DEFAULT 'Published',
	publish_date      DATETIME,
	closing_date      DATETIME,
	date_created      DATETIME,
	date_last_updated DATETIME,
	contact_person    TEXT,
	contact_email     TEXT,
	delivery_period   TEXT,
	bid_document_fee  REAL NOT NULL DEFAULT 0,
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
	scraped_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS line_items (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	bid_notice_id   TEXT NOT NULL REFERENCES bid_notices(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	item_number     INTEGER,
	unspsc_code     TEXT,
	lot_name        TEXT,
	lot_description TEXT,
	quantity        REAL,
	unit_of_measure TEXT
);

CREATE TABLE IF NOT EXISTS bid_documents (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
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
	award_date                DATETIME,
	awardee_name              TEXT,
	awardee_address           TEXT,
	awardee_contact_person    TEXT,
	awardee_corporate_title   TEXT,
	approved_budget           REAL,
	contract_amount           REAL,
	contract_number           TEXT,
	contract_effectivity_date DATETIME,
	contract_end_date         DATETIME,
	period_of_contract        TEXT,
	proceed_date              DATETIME,
	procurement_mode          TEXT,
	classification            TEXT,
	category                  TEXT,
	procurement_rules         TEXT,
	funding_source            TEXT,
	procuring_entity          TEXT,
	agency_address            TEXT,
	delivery_location         TEXT,
	publish_date              DATETIME,
	date_created              DATETIME,
	date_last_updated         DATETIME,
	description               TEXT,
	created_by                TEXT,
	url                       TEXT NOT NULL,
	scraped_at                DATETIME NOT NULL,
	updated_at                DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS award_line_items (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	awarded_contract_id TEXT NOT NULL REFERENCES awarded_contracts(id) ON DELETE CASCADE,
	position            INTEGER NOT NULL,
	item_number         INTEGER,
	unspsc_code         TEXT,
	lot_name            TEXT,
	lot_description     TEXT,
	quantity            REAL,
	unit_of_measure     TEXT
);

CREATE TABLE IF NOT EXISTS award_documents (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
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
	started_at       DATETIME NOT NULL,
	ended_at         DATETIME NOT NULL,
	duration_seconds REAL NOT NULL,
	total_candidates INTEGER NOT NULL DEFAULT 0,
	total_scraped    INTEGER NOT NULL DEFAULT 0,
	new_records      INTEGER NOT NULL DEFAULT 0,
	skipped          INTEGER NOT NULL DEFAULT 0,
	errors           INTEGER NOT NULL DEFAULT 0,
	success          BOOLEAN NOT NULL,
	notes            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_line_items_bid_notice_id ON line_items(bid_notice_id);
CREATE INDEX IF NOT EXISTS idx_bid_documents_bid_notice_id ON bid_documents(bid_notice_id);
CREATE INDEX IF NOT EXISTS idx_award_line_items_contract_id ON award_line_items(awarded_contract_id);
CREATE INDEX IF NOT EXISTS idx_award_documents_contract_id ON award_documents(awarded_contract_id);
CREATE INDEX IF NOT EXISTS idx_scrape_sessions_started_at ON scrape_sessions(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exists(ctx context.Context, kind model.RecordKind, key string) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE %s = ?`, t.name, t.key),
		key,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: exists %s %s", kind, key)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec model.Record) (string, bool, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: upsert: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var id string
	created := false
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE %s = ?`, t.name, t.key), key,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.New().String()
		created = true
		cols := append([]string{"id", "scraped_at", "updated_at"}, t.columns...)
		args := append([]any{id, now, now}, vals...)
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, t.name, strings.Join(cols, ", "), placeholders(len(cols), false)),
			args...,
		); err != nil {
			return "", false, eris.Wrapf(err, "sqlite: insert %s %s", t.name, key)
		}
	case err != nil:
		return "", false, eris.Wrapf(err, "sqlite: lookup %s %s", t.name, key)
	default:
		set := make([]string, 0, len(t.columns)+1)
		for _, c := range t.columns {
			set = append(set, c+" = ?")
		}
		set = append(set, "updated_at = ?")
		args := append(vals, now, id)
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, t.name, strings.Join(set, ", ")),
			args...,
		); err != nil {
			return "", false, eris.Wrapf(err, "sqlite: update %s %s", t.name, key)
		}
	}

	items, docs := rec.Children()
	itemRows, docRows := childRows(id, items, docs)
	if err := replaceChildren(ctx, tx, t.lineItems, t.fk, id, t.childColumns(lineItemColumns), itemRows); err != nil {
		return "", false, err
	}
	if err := replaceChildren(ctx, tx, t.documents, t.fk, id, t.childColumns(documentColumns), docRows); err != nil {
		return "", false, err
	}

	if err := tx.Commit(); err != nil {
		return "", false, eris.Wrap(err, "sqlite: upsert: commit tx")
	}
	return id, created, nil
}

func replaceChildren(ctx context.Context, tx *sql.Tx, table, fk, parentID string, cols []string, rows [][]any) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, fk), parentID); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s", table)
	}
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, strings.Join(cols, ", "), placeholders(len(cols), false)),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare %s insert", table)
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	return nil
}

func (s *SQLiteStore) GetBid(ctx context.Context, referenceNumber string) (*model.BidNotice, error) {
	b := &model.BidNotice{}
	if err := s.getRecord(ctx, bidTable, referenceNumber, b, bidDest(b)); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *SQLiteStore) GetAward(ctx context.Context, awardNoticeNumber string) (*model.AwardedContract, error) {
	a := &model.AwardedContract{}
	if err := s.getRecord(ctx, awardTable, awardNoticeNumber, a, awardDest(a)); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) getRecord(ctx context.Context, t recordTable, key string, rec model.Record, dest []any) error {
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, t.selectList(), t.name, t.key),
		key,
	).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: get %s %s", t.name, key)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get %s %s", t.name, key)
	}
	return s.loadChildren(ctx, t, rec)
}

func (s *SQLiteStore) ListBids(ctx context.Context, filter RecordFilter) ([]model.BidNotice, error) {
	var out []model.BidNotice
	err := s.listRecords(ctx, bidTable, filter, func(rows *sql.Rows) error {
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

func (s *SQLiteStore) ListAwards(ctx context.Context, filter RecordFilter) ([]model.AwardedContract, error) {
	var out []model.AwardedContract
	err := s.listRecords(ctx, awardTable, filter, func(rows *sql.Rows) error {
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

func (s *SQLiteStore) listRecords(ctx context.Context, t recordTable, filter RecordFilter, scan func(*sql.Rows) error) error {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY scraped_at DESC LIMIT ?`, t.selectList(), t.name)
	args := []any{limitOrDefault(filter.Limit)}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: list %s", t.name)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return eris.Wrapf(err, "sqlite: scan %s", t.name)
		}
	}
	return eris.Wrapf(rows.Err(), "sqlite: list %s iterate", t.name)
}

func (s *SQLiteStore) loadChildren(ctx context.Context, t recordTable, rec model.Record) error {
	id := recordID(rec)

	var items []model.LineItem
	err := s.queryChildren(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY position`, strings.Join(lineItemColumns, ", "), t.lineItems, t.fk),
		id, func(rows *sql.Rows) error {
			var it model.LineItem
			if err := rows.Scan(lineItemDest(&it)...); err != nil {
				return err
			}
			items = append(items, it)
			return nil
		})
	if err != nil {
		return eris.Wrapf(err, "sqlite: load %s", t.lineItems)
	}

	var docs []model.Document
	err = s.queryChildren(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY position`, strings.Join(documentColumns, ", "), t.documents, t.fk),
		id, func(rows *sql.Rows) error {
			var d model.Document
			if err := rows.Scan(documentDest(&d)...); err != nil {
				return err
			}
			docs = append(docs, d)
			return nil
		})
	if err != nil {
		return eris.Wrapf(err, "sqlite: load %s", t.documents)
	}

	setChildren(rec, items, docs)
	return nil
}

func (s *SQLiteStore) queryChildren(ctx context.Context, query, parentID string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) AppendSession(ctx context.Context, sess *model.ScrapeSession) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO scrape_sessions (%s) VALUES (%s)`,
			strings.Join(sessionColumns, ", "), placeholders(len(sessionColumns), false)),
		sessionValues(sess)...,
	)
	return eris.Wrap(err, "sqlite: append session")
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM scrape_sessions WHERE 1=1`, strings.Join(sessionColumns, ", "))
	var args []any
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.ScrapeSession
	for rows.Next() {
		var sess model.ScrapeSession
		if err := rows.Scan(sessionDest(&sess)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}
