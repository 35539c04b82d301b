package store

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// recordTable describes where one record kind and its children live.
type recordTable struct {
	name      string
	key       string
	fk        string
	lineItems string
	documents string
	columns   []string
}

var bidTable = recordTable{
	name:      "bid_notices",
	key:       "reference_number",
	fk:        "bid_notice_id",
	lineItems: "line_items",
	documents: "bid_documents",
	columns: []string{
		"reference_number", "control_number", "title", "procuring_entity",
		"classification", "category", "approved_budget", "status",
		"publish_date", "closing_date", "date_created", "date_last_updated",
		"contact_person", "contact_email", "delivery_period", "bid_document_fee",
		"procurement_mode", "procurement_rules", "lot_type", "bid_validity_days",
		"delivery_location", "agency_address", "created_by", "funding_source",
		"description", "download_count", "url",
	},
}

var awardTable = recordTable{
	name:      "awarded_contracts",
	key:       "award_notice_number",
	fk:        "awarded_contract_id",
	lineItems: "award_line_items",
	documents: "award_documents",
	columns: []string{
		"award_notice_number", "bid_reference_number", "control_number", "award_title",
		"award_type", "award_date", "awardee_name", "awardee_address",
		"awardee_contact_person", "awardee_corporate_title", "approved_budget", "contract_amount",
		"contract_number", "contract_effectivity_date", "contract_end_date", "period_of_contract",
		"proceed_date", "procurement_mode", "classification", "category",
		"procurement_rules", "funding_source", "procuring_entity", "agency_address",
		"delivery_location", "publish_date", "date_created", "date_last_updated",
		"description", "created_by", "url",
	},
}

var lineItemColumns = []string{
	"position", "item_number", "unspsc_code", "lot_name",
	"lot_description", "quantity", "unit_of_measure",
}

var documentColumns = []string{
	"position", "filename", "document_url", "document_type", "file_size",
}

var sessionColumns = []string{
	"id", "kind", "started_at", "ended_at", "duration_seconds", "total_candidates",
	"total_scraped", "new_records", "skipped", "errors", "success", "notes",
}

func tableFor(kind model.RecordKind) (recordTable, error) {
	switch kind {
	case model.KindBidNotice:
		return bidTable, nil
	case model.KindAward:
		return awardTable, nil
	}
	return recordTable{}, eris.Errorf("store: unknown record kind %q", kind)
}

// selectList is the column list read back by the Get and List queries.
func (t recordTable) selectList() string {
	return "id, scraped_at, updated_at, " + strings.Join(t.columns, ", ")
}

// childColumns prefixes the foreign key onto a child column list.
func (t recordTable) childColumns(cols []string) []string {
	return append([]string{t.fk}, cols...)
}

// recordValues returns the column values of rec in recordTable.columns order.
func recordValues(rec model.Record) ([]any, error) {
	switch r := rec.(type) {
	case *model.BidNotice:
		return []any{
			r.ReferenceNumber, r.ControlNumber, r.Title, r.ProcuringEntity,
			r.Classification, r.Category, r.ApprovedBudget, r.Status,
			r.PublishDate, r.ClosingDate, r.DateCreated, r.DateLastUpdated,
			r.ContactPerson, r.ContactEmail, r.DeliveryPeriod, r.BidDocumentFee,
			r.ProcurementMode, r.ProcurementRules, r.LotType, r.BidValidityDays,
			r.DeliveryLocation, r.AgencyAddress, r.CreatedBy, r.FundingSource,
			r.Description, r.DownloadCount, r.URL,
		}, nil
	case *model.AwardedContract:
		return []any{
			r.AwardNoticeNumber, r.BidReferenceNumber, r.ControlNumber, r.AwardTitle,
			r.AwardType, r.AwardDate, r.AwardeeName, r.AwardeeAddress,
			r.AwardeeContactPerson, r.AwardeeCorporateTitle, r.ApprovedBudget, r.ContractAmount,
			r.ContractNumber, r.ContractEffectivityDate, r.ContractEndDate, r.PeriodOfContract,
			r.ProceedDate, r.ProcurementMode, r.Classification, r.Category,
			r.ProcurementRules, r.FundingSource, r.ProcuringEntity, r.AgencyAddress,
			r.DeliveryLocation, r.PublishDate, r.DateCreated, r.DateLastUpdated,
			r.Description, r.CreatedBy, r.URL,
		}, nil
	}
	return nil, eris.Errorf("store: unsupported record type %T", rec)
}

func bidDest(b *model.BidNotice) []any {
	return []any{
		&b.ID, &b.ScrapedAt, &b.UpdatedAt,
		&b.ReferenceNumber, &b.ControlNumber, &b.Title, &b.ProcuringEntity,
		&b.Classification, &b.Category, &b.ApprovedBudget, &b.Status,
		&b.PublishDate, &b.ClosingDate, &b.DateCreated, &b.DateLastUpdated,
		&b.ContactPerson, &b.ContactEmail, &b.DeliveryPeriod, &b.BidDocumentFee,
		&b.ProcurementMode, &b.ProcurementRules, &b.LotType, &b.BidValidityDays,
		&b.DeliveryLocation, &b.AgencyAddress, &b.CreatedBy, &b.FundingSource,
		&b.Description, &b.DownloadCount, &b.URL,
	}
}

func awardDest(a *model.AwardedContract) []any {
	return []any{
		&a.ID, &a.ScrapedAt, &a.UpdatedAt,
		&a.AwardNoticeNumber, &a.BidReferenceNumber, &a.ControlNumber, &a.AwardTitle,
		&a.AwardType, &a.AwardDate, &a.AwardeeName, &a.AwardeeAddress,
		&a.AwardeeContactPerson, &a.AwardeeCorporateTitle, &a.ApprovedBudget, &a.ContractAmount,
		&a.ContractNumber, &a.ContractEffectivityDate, &a.ContractEndDate, &a.PeriodOfContract,
		&a.ProceedDate, &a.ProcurementMode, &a.Classification, &a.Category,
		&a.ProcurementRules, &a.FundingSource, &a.ProcuringEntity, &a.AgencyAddress,
		&a.DeliveryLocation, &a.PublishDate, &a.DateCreated, &a.DateLastUpdated,
		&a.Description, &a.CreatedBy, &a.URL,
	}
}

// childRows flattens line items and documents into COPY/INSERT rows led by
// the parent id. Positions are renumbered from 1 when the parser left them unset.
func childRows(parentID string, items []model.LineItem, docs []model.Document) (itemRows, docRows [][]any) {
	for i, it := range items {
		pos := it.Position
		if pos == 0 {
			pos = i + 1
		}
		itemRows = append(itemRows, []any{
			parentID, pos, it.ItemNumber, it.UNSPSCCode, it.LotName,
			it.LotDescription, it.Quantity, it.UnitOfMeasure,
		})
	}
	for i, d := range docs {
		pos := d.Position
		if pos == 0 {
			pos = i + 1
		}
		docRows = append(docRows, []any{
			parentID, pos, d.Filename, d.DocumentURL, d.DocumentType, d.FileSize,
		})
	}
	return itemRows, docRows
}

func lineItemDest(it *model.LineItem) []any {
	return []any{
		&it.Position, &it.ItemNumber, &it.UNSPSCCode, &it.LotName,
		&it.LotDescription, &it.Quantity, &it.UnitOfMeasure,
	}
}

func documentDest(d *model.Document) []any {
	return []any{&d.Position, &d.Filename, &d.DocumentURL, &d.DocumentType, &d.FileSize}
}

func sessionValues(s *model.ScrapeSession) []any {
	return []any{
		s.ID, string(s.Kind), s.StartedAt, s.EndedAt, s.DurationSeconds, s.TotalCandidates,
		s.TotalScraped, s.NewRecords, s.Skipped, s.Errors, s.Success, s.Notes,
	}
}

func sessionDest(s *model.ScrapeSession) []any {
	return []any{
		&s.ID, &s.Kind, &s.StartedAt, &s.EndedAt, &s.DurationSeconds, &s.TotalCandidates,
		&s.TotalScraped, &s.NewRecords, &s.Skipped, &s.Errors, &s.Success, &s.Notes,
	}
}

// setChildren attaches child collections to a record loaded from storage.
func setChildren(rec model.Record, items []model.LineItem, docs []model.Document) {
	switch r := rec.(type) {
	case *model.BidNotice:
		r.LineItems, r.Documents = items, docs
	case *model.AwardedContract:
		r.LineItems, r.Documents = items, docs
	}
}

func recordID(rec model.Record) string {
	switch r := rec.(type) {
	case *model.BidNotice:
		return r.ID
	case *model.AwardedContract:
		return r.ID
	}
	return ""
}

// placeholders renders "$1, $2, ..." (postgres) or "?, ?, ..." (sqlite).
func placeholders(n int, dollar bool) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		if dollar {
			b.WriteString("$")
			b.WriteString(strconv.Itoa(i))
		} else {
			b.WriteString("?")
		}
	}
	return b.String()
}
