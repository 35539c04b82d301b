package parser

import (
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/philgeps-cli/internal/model"
)

var lineItemHeadingRe = regexp.MustCompile(`(?i)Line Item Details`)

// lineItemColumns is the minimum cell count of a usable line item row:
// item no, UNSPSC, lot name, lot description, quantity, unit of measure.
const lineItemColumns = 6

// lineItems reads the table following the "Line Item Details" heading. The
// first row is the header; short rows are skipped.
func (p *page) lineItems() []model.LineItem {
	table := nextTableAfterText(p.doc.Nodes, lineItemHeadingRe)
	if table == nil {
		return nil
	}

	var items []model.LineItem
	rows := goquery.NewDocumentFromNode(table).Find("tr")
	rows.Slice(min(1, rows.Length()), rows.Length()).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < lineItemColumns {
			return
		}
		cell := func(i int) string { return cleanText(cells.Eq(i).Text()) }

		item := model.LineItem{
			Position:       len(items),
			UNSPSCCode:     nonEmpty(cell(1)),
			LotName:        nonEmpty(cell(2)),
			LotDescription: nonEmpty(cell(3)),
			Quantity:       ParseMoney(cell(4)),
			UnitOfMeasure:  nonEmpty(cell(5)),
		}
		if n, err := strconv.Atoi(cell(0)); err == nil && n >= 0 {
			item.ItemNumber = &n
		}
		items = append(items, item)
	})
	return items
}
