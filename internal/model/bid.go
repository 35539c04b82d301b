package model

import "time"

// DefaultBidStatus is used when a bid notice page has no status label.
const DefaultBidStatus = "Published"

// BidNotice is an open bid opportunity keyed by its reference number.
type BidNotice struct {
	Meta

	ReferenceNumber  string     `json:"reference_number"`
	ControlNumber    *string    `json:"control_number,omitempty"`
	Title            *string    `json:"title,omitempty"`
	ProcuringEntity  *string    `json:"procuring_entity,omitempty"`
	Classification   *string    `json:"classification,omitempty"`
	Category         *string    `json:"category,omitempty"`
	ApprovedBudget   *float64   `json:"approved_budget,omitempty"`
	Status           string     `json:"status"`
	PublishDate      *time.Time `json:"publish_date,omitempty"`
	ClosingDate      *time.Time `json:"closing_date,omitempty"`
	DateCreated      *time.Time `json:"date_created,omitempty"`
	DateLastUpdated  *time.Time `json:"date_last_updated,omitempty"`
	ContactPerson    *string    `json:"contact_person,omitempty"`
	ContactEmail     *string    `json:"contact_email,omitempty"`
	DeliveryPeriod   *string    `json:"delivery_period,omitempty"`
	BidDocumentFee   float64    `json:"bid_document_fee"`
	ProcurementMode  *string    `json:"procurement_mode,omitempty"`
	ProcurementRules *string    `json:"procurement_rules,omitempty"`
	LotType          *string    `json:"lot_type,omitempty"`
	BidValidityDays  *int       `json:"bid_validity_days,omitempty"`
	DeliveryLocation *string    `json:"delivery_location,omitempty"`
	AgencyAddress    *string    `json:"agency_address,omitempty"`
	CreatedBy        *string    `json:"created_by,omitempty"`
	FundingSource    *string    `json:"funding_source,omitempty"`
	Description      *string    `json:"description,omitempty"`
	DownloadCount    *int       `json:"download_count,omitempty"`
	URL              string     `json:"url"`

	LineItems []LineItem `json:"line_items"`
	Documents []Document `json:"documents"`
}

func (b *BidNotice) Kind() RecordKind        { return KindBidNotice }
func (b *BidNotice) NaturalKey() string      { return b.ReferenceNumber }
func (b *BidNotice) SourceURL() string       { return b.URL }
func (b *BidNotice) SetSourceURL(url string) { b.URL = url }

func (b *BidNotice) Children() ([]LineItem, []Document) {
	return b.LineItems, b.Documents
}

func (b *BidNotice) SetDocuments(docs []Document) {
	b.Documents = docs
}

// IsOpen reports whether the closing date is still ahead of now.
func (b *BidNotice) IsOpen(now time.Time) bool {
	return b.ClosingDate != nil && b.ClosingDate.After(now)
}
