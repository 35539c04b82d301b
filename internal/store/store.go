package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// ErrNotFound is returned by the Get methods when no record has the given key.
var ErrNotFound = eris.New("store: not found")

// ErrMissingKey is returned by Upsert for a record without a natural key.
var ErrMissingKey = eris.New("store: record has no natural key")

// SessionFilter specifies criteria for listing scrape sessions.
type SessionFilter struct {
	Kind  model.RecordKind `json:"kind,omitempty"`
	Limit int              `json:"limit,omitempty"`
}

// RecordFilter pages through stored records, newest scrape first.
type RecordFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store defines the persistence interface for scraped procurement records.
type Store interface {
	// Records
	Exists(ctx context.Context, kind model.RecordKind, key string) (bool, error)
	// Upsert inserts or fully replaces the record with the same natural key,
	// including both child collections, and reports whether a row was created.
	Upsert(ctx context.Context, rec model.Record) (id string, created bool, err error)
	GetBid(ctx context.Context, referenceNumber string) (*model.BidNotice, error)
	GetAward(ctx context.Context, awardNoticeNumber string) (*model.AwardedContract, error)
	ListBids(ctx context.Context, filter RecordFilter) ([]model.BidNotice, error)
	ListAwards(ctx context.Context, filter RecordFilter) ([]model.AwardedContract, error)

	// Sessions
	AppendSession(ctx context.Context, sess *model.ScrapeSession) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSession, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
