package parser

import (
	"regexp"
	"time"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// reader locates a field's raw text on a page.
type reader func(p *page, label *regexp.Regexp) (string, bool)

// fieldRule is one row of a record's field table: which label to look for,
// how to read the value next to it, and how to store it on the record.
type fieldRule[R any] struct {
	name  string
	label *regexp.Regexp
	read  reader
	apply func(rec R, raw string)
}

func applyFields[R any](p *page, rec R, rules []fieldRule[R]) {
	for _, f := range rules {
		raw, ok := f.read(p, f.label)
		if !ok {
			continue
		}
		f.apply(rec, raw)
	}
}

// valueAfter reads the text following the first matching label.
func valueAfter(p *page, label *regexp.Regexp) (string, bool) {
	n := p.label(label)
	if n == nil {
		return "", false
	}
	return textAfter(n)
}

// addressAfter joins the text lines following the first matching label.
func addressAfter(p *page, label *regexp.Regexp) (string, bool) {
	n := p.label(label)
	if n == nil {
		return "", false
	}
	return joinedTextAfter(n)
}

// inLabel reads a key printed inside the label itself ("Notice Reference
// Number :7297"), falling back to the text after the label.
func inLabel(capture *regexp.Regexp) reader {
	return func(p *page, label *regexp.Regexp) (string, bool) {
		n := p.label(label)
		if n == nil {
			return "", false
		}
		if m := capture.FindStringSubmatch(cleanText(nodeText(n))); m != nil {
			return m[1], true
		}
		return textAfter(n)
	}
}

func keyField[R any](name, pattern string, capture *regexp.Regexp, dst func(R) *string) fieldRule[R] {
	return fieldRule[R]{
		name:  name,
		label: regexp.MustCompile(pattern),
		read:  inLabel(capture),
		apply: func(r R, raw string) { *dst(r) = raw },
	}
}

func textField[R any](name, pattern string, dst func(R) **string) fieldRule[R] {
	return fieldRule[R]{
		name:  name,
		label: regexp.MustCompile(pattern),
		read:  valueAfter,
		apply: func(r R, raw string) { *dst(r) = &raw },
	}
}

func addressField[R any](name, pattern string, dst func(R) **string) fieldRule[R] {
	f := textField(name, pattern, dst)
	f.read = addressAfter
	return f
}

func moneyField[R any](name, pattern string, dst func(R) **float64) fieldRule[R] {
	return fieldRule[R]{
		name:  name,
		label: regexp.MustCompile(pattern),
		read:  valueAfter,
		apply: func(r R, raw string) { *dst(r) = ParseMoney(raw) },
	}
}

func dateField[R any](name, pattern string, dst func(R) **time.Time) fieldRule[R] {
	return fieldRule[R]{
		name:  name,
		label: regexp.MustCompile(pattern),
		read:  valueAfter,
		apply: func(r R, raw string) { *dst(r) = ParseDate(raw) },
	}
}

func intField[R any](name, pattern string, dst func(R) **int) fieldRule[R] {
	return fieldRule[R]{
		name:  name,
		label: regexp.MustCompile(pattern),
		read:  valueAfter,
		apply: func(r R, raw string) { *dst(r) = LeadingInt(raw) },
	}
}

var (
	referenceCaptureRe = regexp.MustCompile(`:\s*(\d+)`)
	awardCaptureRe     = regexp.MustCompile(`:\s*([A-Za-z0-9][A-Za-z0-9-]*)`)
)

type bid = *model.BidNotice

var bidFields = []fieldRule[bid]{
	keyField("reference_number", `Notice Reference Number`, referenceCaptureRe, func(b bid) *string { return &b.ReferenceNumber }),
	{
		name:  "status",
		label: regexp.MustCompile(`Status\s*:`),
		read:  valueAfter,
		apply: func(b bid, raw string) { b.Status = raw },
	},
	textField("control_number", `(?i)Control Number:`, func(b bid) **string { return &b.ControlNumber }),
	moneyField("approved_budget", `Approved Budget`, func(b bid) **float64 { return &b.ApprovedBudget }),
	{
		name:  "bid_document_fee",
		label: regexp.MustCompile(`(?i)Bid.*Form.*Fee:|Bid Documents? Fee:`),
		read:  valueAfter,
		apply: func(b bid, raw string) {
			if f := ParseMoney(raw); f != nil {
				b.BidDocumentFee = *f
			}
		},
	},
	textField("classification", `Classification:`, func(b bid) **string { return &b.Classification }),
	textField("category", `Business Category:`, func(b bid) **string { return &b.Category }),
	textField("procurement_mode", `(?i)Procurement Mode:`, func(b bid) **string { return &b.ProcurementMode }),
	textField("procurement_rules", `(?i)Applicable.*Procurement.*Rules`, func(b bid) **string { return &b.ProcurementRules }),
	textField("lot_type", `(?i)Lot Type:`, func(b bid) **string { return &b.LotType }),
	dateField("publish_date", `Published Date:`, func(b bid) **time.Time { return &b.PublishDate }),
	dateField("closing_date", `Closing Date:`, func(b bid) **time.Time { return &b.ClosingDate }),
	dateField("date_last_updated", `(?i)Date Last Updated:`, func(b bid) **time.Time { return &b.DateLastUpdated }),
	intField("bid_validity_days", `(?i)Bid.*Validity.*Period:`, func(b bid) **int { return &b.BidValidityDays }),
	dateField("date_created", `(?i)Date Created:`, func(b bid) **time.Time { return &b.DateCreated }),
	textField("delivery_period", `Delivery Period:`, func(b bid) **string { return &b.DeliveryPeriod }),
	textField("delivery_location", `(?i)Delivery.*Location:|Project.*Location:`, func(b bid) **string { return &b.DeliveryLocation }),
	addressField("agency_address", `(?i)Address:`, func(b bid) **string { return &b.AgencyAddress }),
	textField("procuring_entity", `Client Agency:`, func(b bid) **string { return &b.ProcuringEntity }),
	textField("contact_person", `Contact Person:`, func(b bid) **string { return &b.ContactPerson }),
	textField("created_by", `(?i)Created By:`, func(b bid) **string { return &b.CreatedBy }),
	textField("funding_source", `(?i)Funding Source:`, func(b bid) **string { return &b.FundingSource }),
}

type award = *model.AwardedContract

var awardFields = []fieldRule[award]{
	keyField("award_notice_number", `(?i)^Award Notice (Reference )?Number`, awardCaptureRe, func(a award) *string { return &a.AwardNoticeNumber }),
	textField("bid_reference_number", `(?i)^Bid (Notice )?Reference (Number|No\.?)\s*:`, func(a award) **string { return &a.BidReferenceNumber }),
	textField("control_number", `(?i)^Control Number\s*:`, func(a award) **string { return &a.ControlNumber }),
	textField("award_title", `(?i)^(Award|Notice|Project) Title\s*:`, func(a award) **string { return &a.AwardTitle }),
	textField("award_type", `(?i)^Award Type\s*:`, func(a award) **string { return &a.AwardType }),
	dateField("award_date", `(?i)^(Award Date|Date of Award)\s*:`, func(a award) **time.Time { return &a.AwardDate }),
	textField("awardee_name", `(?i)^Awardee( Name)?\s*:`, func(a award) **string { return &a.AwardeeName }),
	addressField("awardee_address", `(?i)^Awardee Address\s*:`, func(a award) **string { return &a.AwardeeAddress }),
	textField("awardee_contact_person", `(?i)^Awardee Contact Person\s*:`, func(a award) **string { return &a.AwardeeContactPerson }),
	textField("awardee_corporate_title", `(?i)^(Awardee )?Corporate Title\s*:`, func(a award) **string { return &a.AwardeeCorporateTitle }),
	moneyField("approved_budget", `(?i)^Approved Budget`, func(a award) **float64 { return &a.ApprovedBudget }),
	moneyField("contract_amount", `(?i)^Contract Amount\s*:`, func(a award) **float64 { return &a.ContractAmount }),
	textField("contract_number", `(?i)^Contract No(\.|umber)?\s*:`, func(a award) **string { return &a.ContractNumber }),
	dateField("contract_effectivity_date", `(?i)^Contract Effectivity Date\s*:`, func(a award) **time.Time { return &a.ContractEffectivityDate }),
	dateField("contract_end_date", `(?i)^Contract End Date\s*:`, func(a award) **time.Time { return &a.ContractEndDate }),
	textField("period_of_contract", `(?i)^Period of Contract\s*:`, func(a award) **string { return &a.PeriodOfContract }),
	dateField("proceed_date", `(?i)^(Notice to )?Proceed Date\s*:`, func(a award) **time.Time { return &a.ProceedDate }),
	textField("procurement_mode", `(?i)^Procurement Mode\s*:`, func(a award) **string { return &a.ProcurementMode }),
	textField("classification", `(?i)^Classification\s*:`, func(a award) **string { return &a.Classification }),
	textField("category", `(?i)^Business Category\s*:`, func(a award) **string { return &a.Category }),
	textField("procurement_rules", `(?i)^Applicable.*Procurement.*Rules`, func(a award) **string { return &a.ProcurementRules }),
	textField("funding_source", `(?i)^Funding Source\s*:`, func(a award) **string { return &a.FundingSource }),
	textField("procuring_entity", `(?i)^(Client Agency|Procuring Entity)\s*:`, func(a award) **string { return &a.ProcuringEntity }),
	addressField("agency_address", `(?i)^(Agency )?Address\s*:`, func(a award) **string { return &a.AgencyAddress }),
	textField("delivery_location", `(?i)^(Delivery|Project) Location\s*:`, func(a award) **string { return &a.DeliveryLocation }),
	dateField("publish_date", `(?i)^Publish(ed)? Date\s*:`, func(a award) **time.Time { return &a.PublishDate }),
	dateField("date_created", `(?i)^Date Created\s*:`, func(a award) **time.Time { return &a.DateCreated }),
	dateField("date_last_updated", `(?i)^Date Last Updated\s*:`, func(a award) **time.Time { return &a.DateLastUpdated }),
	textField("created_by", `(?i)^Created By\s*:`, func(a award) **string { return &a.CreatedBy }),
}
