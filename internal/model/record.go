package model

import "time"

// RecordKind identifies which of the two portal record types a value belongs to.
type RecordKind string

const (
	KindBidNotice RecordKind = "bid_notice"
	KindAward     RecordKind = "awarded_contract"
)

// AllKinds returns every supported record kind.
func AllKinds() []RecordKind {
	return []RecordKind{KindBidNotice, KindAward}
}

// ParseKind maps a user-facing name ("bids", "awards", or the kind value) to a RecordKind.
func ParseKind(s string) (RecordKind, bool) {
	switch s {
	case "bid", "bids", string(KindBidNotice):
		return KindBidNotice, true
	case "award", "awards", string(KindAward):
		return KindAward, true
	}
	return "", false
}

// Record is a parsed detail page of either kind.
type Record interface {
	Kind() RecordKind
	// NaturalKey returns the portal's own identifier, or "" when the page did not carry one.
	NaturalKey() string
	SourceURL() string
	SetSourceURL(url string)
	Children() ([]LineItem, []Document)
	SetDocuments(docs []Document)
}

// RecordSummary is one row of a listing page.
type RecordSummary struct {
	Key   string     `json:"key"`
	Title *string    `json:"title,omitempty"`
	URL   string     `json:"url"`
	Kind  RecordKind `json:"kind"`

	// Extra carries non-key listing columns (agency, dates, awardee...) keyed by field name.
	Extra map[string]string `json:"extra,omitempty"`
}

// LineItem is one row of a record's "Line Item Details" table.
type LineItem struct {
	Position       int      `json:"position"`
	ItemNumber     *int     `json:"item_number,omitempty"`
	UNSPSCCode     *string  `json:"unspsc_code,omitempty"`
	LotName        *string  `json:"lot_name,omitempty"`
	LotDescription *string  `json:"lot_description,omitempty"`
	Quantity       *float64 `json:"quantity,omitempty"`
	UnitOfMeasure  *string  `json:"unit_of_measure,omitempty"`
}

// Document is a downloadable attachment linked from a record.
type Document struct {
	Position     int     `json:"position"`
	Filename     string  `json:"filename"`
	DocumentURL  string  `json:"document_url"`
	DocumentType string  `json:"document_type"`
	FileSize     *string `json:"file_size,omitempty"`
}

// Meta holds the storage-assigned fields shared by both record kinds.
type Meta struct {
	ID        string    `json:"id,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
