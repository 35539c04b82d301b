package model

import "time"

// AwardedContract is an award notice keyed by its award notice number.
type AwardedContract struct {
	Meta

	AwardNoticeNumber       string     `json:"award_notice_number"`
	BidReferenceNumber      *string    `json:"bid_reference_number,omitempty"`
	ControlNumber           *string    `json:"control_number,omitempty"`
	AwardTitle              *string    `json:"award_title,omitempty"`
	AwardType               *string    `json:"award_type,omitempty"`
	AwardDate               *time.Time `json:"award_date,omitempty"`
	AwardeeName             *string    `json:"awardee_name,omitempty"`
	AwardeeAddress          *string    `json:"awardee_address,omitempty"`
	AwardeeContactPerson    *string    `json:"awardee_contact_person,omitempty"`
	AwardeeCorporateTitle   *string    `json:"awardee_corporate_title,omitempty"`
	ApprovedBudget          *float64   `json:"approved_budget,omitempty"`
	ContractAmount          *float64   `json:"contract_amount,omitempty"`
	ContractNumber          *string    `json:"contract_number,omitempty"`
	ContractEffectivityDate *time.Time `json:"contract_effectivity_date,omitempty"`
	ContractEndDate         *time.Time `json:"contract_end_date,omitempty"`
	PeriodOfContract        *string    `json:"period_of_contract,omitempty"`
	ProceedDate             *time.Time `json:"proceed_date,omitempty"`
	ProcurementMode         *string    `json:"procurement_mode,omitempty"`
	Classification          *string    `json:"classification,omitempty"`
	Category                *string    `json:"category,omitempty"`
	ProcurementRules        *string    `json:"procurement_rules,omitempty"`
	FundingSource           *string    `json:"funding_source,omitempty"`
	ProcuringEntity         *string    `json:"procuring_entity,omitempty"`
	AgencyAddress           *string    `json:"agency_address,omitempty"`
	DeliveryLocation        *string    `json:"delivery_location,omitempty"`
	PublishDate             *time.Time `json:"publish_date,omitempty"`
	DateCreated             *time.Time `json:"date_created,omitempty"`
	DateLastUpdated         *time.Time `json:"date_last_updated,omitempty"`
	Description             *string    `json:"description,omitempty"`
	CreatedBy               *string    `json:"created_by,omitempty"`
	URL                     string     `json:"url"`

	LineItems []LineItem `json:"line_items"`
	Documents []Document `json:"documents"`
}

func (a *AwardedContract) Kind() RecordKind        { return KindAward }
func (a *AwardedContract) NaturalKey() string      { return a.AwardNoticeNumber }
func (a *AwardedContract) SourceURL() string       { return a.URL }
func (a *AwardedContract) SetSourceURL(url string) { a.URL = url }

func (a *AwardedContract) Children() ([]LineItem, []Document) {
	return a.LineItems, a.Documents
}

func (a *AwardedContract) SetDocuments(docs []Document) {
	a.Documents = docs
}

// SavingsAmount is the approved budget minus the awarded contract amount.
// Returns nil unless both amounts are present and non-zero.
func (a *AwardedContract) SavingsAmount() *float64 {
	if a.ApprovedBudget == nil || a.ContractAmount == nil || *a.ApprovedBudget == 0 || *a.ContractAmount == 0 {
		return nil
	}
	v := *a.ApprovedBudget - *a.ContractAmount
	return &v
}

// SavingsPercent is SavingsAmount as a percentage of the approved budget.
func (a *AwardedContract) SavingsPercent() *float64 {
	s := a.SavingsAmount()
	if s == nil || *a.ApprovedBudget <= 0 {
		return nil
	}
	v := *s / *a.ApprovedBudget * 100
	return &v
}
