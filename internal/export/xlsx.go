// Package export writes stored records to XLSX workbooks.
package export

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// Sheet names used in exported workbooks.
const (
	BidsSheet      = "Bid Notices"
	AwardsSheet    = "Awarded Contracts"
	LineItemsSheet = "Line Items"
	DocumentsSheet = "Documents"
)

const dateLayout = "2006-01-02 15:04"

type column[T any] struct {
	header string
	value  func(*T) any
}

var bidColumns = []column[model.BidNotice]{
	{"Reference Number", func(b *model.BidNotice) any { return b.ReferenceNumber }},
	{"Control Number", func(b *model.BidNotice) any { return b.ControlNumber }},
	{"Title", func(b *model.BidNotice) any { return b.Title }},
	{"Procuring Entity", func(b *model.BidNotice) any { return b.ProcuringEntity }},
	{"Classification", func(b *model.BidNotice) any { return b.Classification }},
	{"Category", func(b *model.BidNotice) any { return b.Category }},
	{"Approved Budget", func(b *model.BidNotice) any { return b.ApprovedBudget }},
	{"Status", func(b *model.BidNotice) any { return b.Status }},
	{"Publish Date", func(b *model.BidNotice) any { return b.PublishDate }},
	{"Closing Date", func(b *model.BidNotice) any { return b.ClosingDate }},
	{"Procurement Mode", func(b *model.BidNotice) any { return b.ProcurementMode }},
	{"Delivery Period", func(b *model.BidNotice) any { return b.DeliveryPeriod }},
	{"Delivery Location", func(b *model.BidNotice) any { return b.DeliveryLocation }},
	{"Bid Document Fee", func(b *model.BidNotice) any { return b.BidDocumentFee }},
	{"Funding Source", func(b *model.BidNotice) any { return b.FundingSource }},
	{"Contact Person", func(b *model.BidNotice) any { return b.ContactPerson }},
	{"Contact Email", func(b *model.BidNotice) any { return b.ContactEmail }},
	{"URL", func(b *model.BidNotice) any { return b.URL }},
	{"Scraped At", func(b *model.BidNotice) any { return b.ScrapedAt }},
}

var awardColumns = []column[model.AwardedContract]{
	{"Award Notice Number", func(a *model.AwardedContract) any { return a.AwardNoticeNumber }},
	{"Bid Reference Number", func(a *model.AwardedContract) any { return a.BidReferenceNumber }},
	{"Award Title", func(a *model.AwardedContract) any { return a.AwardTitle }},
	{"Award Type", func(a *model.AwardedContract) any { return a.AwardType }},
	{"Award Date", func(a *model.AwardedContract) any { return a.AwardDate }},
	{"Awardee", func(a *model.AwardedContract) any { return a.AwardeeName }},
	{"Awardee Address", func(a *model.AwardedContract) any { return a.AwardeeAddress }},
	{"Procuring Entity", func(a *model.AwardedContract) any { return a.ProcuringEntity }},
	{"Classification", func(a *model.AwardedContract) any { return a.Classification }},
	{"Approved Budget", func(a *model.AwardedContract) any { return a.ApprovedBudget }},
	{"Contract Amount", func(a *model.AwardedContract) any { return a.ContractAmount }},
	{"Savings", func(a *model.AwardedContract) any { return a.SavingsAmount() }},
	{"Savings %", func(a *model.AwardedContract) any { return a.SavingsPercent() }},
	{"Contract Number", func(a *model.AwardedContract) any { return a.ContractNumber }},
	{"Contract Effectivity Date", func(a *model.AwardedContract) any { return a.ContractEffectivityDate }},
	{"Contract End Date", func(a *model.AwardedContract) any { return a.ContractEndDate }},
	{"Procurement Mode", func(a *model.AwardedContract) any { return a.ProcurementMode }},
	{"Funding Source", func(a *model.AwardedContract) any { return a.FundingSource }},
	{"URL", func(a *model.AwardedContract) any { return a.URL }},
	{"Scraped At", func(a *model.AwardedContract) any { return a.ScrapedAt }},
}

var lineItemHeaders = []string{"Key", "Position", "Item Number", "UNSPSC Code", "Lot Name", "Lot Description", "Quantity", "Unit of Measure"}

var documentHeaders = []string{"Key", "Position", "Filename", "Type", "File Size", "URL"}

// BidsWorkbook builds a workbook with one row per bid notice plus sheets for
// their line items and documents.
func BidsWorkbook(bids []model.BidNotice) (*xlsx.File, error) {
	f := xlsx.NewFile()
	if err := addRecords(f, BidsSheet, bidColumns, bids); err != nil {
		return nil, err
	}
	children := make([]childSet, len(bids))
	for i := range bids {
		children[i] = childSet{key: bids[i].ReferenceNumber, items: bids[i].LineItems, docs: bids[i].Documents}
	}
	if err := addChildren(f, children); err != nil {
		return nil, err
	}
	return f, nil
}

// AwardsWorkbook is BidsWorkbook for awarded contracts, with computed savings.
func AwardsWorkbook(awards []model.AwardedContract) (*xlsx.File, error) {
	f := xlsx.NewFile()
	if err := addRecords(f, AwardsSheet, awardColumns, awards); err != nil {
		return nil, err
	}
	children := make([]childSet, len(awards))
	for i := range awards {
		children[i] = childSet{key: awards[i].AwardNoticeNumber, items: awards[i].LineItems, docs: awards[i].Documents}
	}
	if err := addChildren(f, children); err != nil {
		return nil, err
	}
	return f, nil
}

func addRecords[T any](f *xlsx.File, name string, cols []column[T], recs []T) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}
	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c.header)
	}
	for i := range recs {
		row := sheet.AddRow()
		for _, c := range cols {
			setCell(row.AddCell(), c.value(&recs[i]))
		}
	}
	return nil
}

type childSet struct {
	key   string
	items []model.LineItem
	docs  []model.Document
}

func addChildren(f *xlsx.File, sets []childSet) error {
	items, err := f.AddSheet(LineItemsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add line items sheet")
	}
	docs, err := f.AddSheet(DocumentsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add documents sheet")
	}
	addHeader(items, lineItemHeaders)
	addHeader(docs, documentHeaders)

	for _, s := range sets {
		for _, li := range s.items {
			addValues(items.AddRow(), s.key, li.Position, li.ItemNumber, li.UNSPSCCode,
				li.LotName, li.LotDescription, li.Quantity, li.UnitOfMeasure)
		}
		for _, d := range s.docs {
			addValues(docs.AddRow(), s.key, d.Position, d.Filename, d.DocumentType, d.FileSize, d.DocumentURL)
		}
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, headers []string) {
	row := sheet.AddRow()
	for _, h := range headers {
		row.AddCell().SetString(h)
	}
}

func addValues(row *xlsx.Row, values ...any) {
	for _, v := range values {
		setCell(row.AddCell(), v)
	}
}

// setCell writes v with a cell type matching its Go type. Nil pointers leave
// the cell empty.
func setCell(cell *xlsx.Cell, v any) {
	switch v := v.(type) {
	case string:
		cell.SetString(v)
	case *string:
		if v != nil {
			cell.SetString(*v)
		}
	case int:
		cell.SetInt(v)
	case *int:
		if v != nil {
			cell.SetInt(*v)
		}
	case float64:
		cell.SetFloat(v)
	case *float64:
		if v != nil {
			cell.SetFloat(*v)
		}
	case time.Time:
		if !v.IsZero() {
			cell.SetString(v.Format(dateLayout))
		}
	case *time.Time:
		if v != nil {
			cell.SetString(v.Format(dateLayout))
		}
	}
}
