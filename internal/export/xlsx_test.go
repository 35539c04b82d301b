package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// roundTrip saves f and reads every sheet back as strings.
func roundTrip(t *testing.T, f *xlsx.File) map[string][][]string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.Save(path))

	in, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	out := make(map[string][][]string)
	for name, sheet := range in.Sheet {
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}
			out[name] = append(out[name], cells)
		}
	}
	return out
}

func TestBidsWorkbook(t *testing.T) {
	bids := []model.BidNotice{
		{
			ReferenceNumber: "11223344",
			Title:           model.Ptr("Supply of Office Chairs"),
			Status:          model.DefaultBidStatus,
			ClosingDate:     model.Ptr(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)),
			URL:             "https://philgeps.gov.ph/tenders/viewBidNotice/11223344",
			LineItems: []model.LineItem{
				{Position: 1, ItemNumber: model.Ptr(1), LotName: model.Ptr("Chairs"), UnitOfMeasure: model.Ptr("pc")},
			},
			Documents: []model.Document{
				{Position: 1, Filename: "notice.pdf", DocumentURL: "https://philgeps.gov.ph/notice.pdf", DocumentType: "Bid Notice"},
			},
		},
		{ReferenceNumber: "55667788", Status: "Closed"},
	}

	f, err := BidsWorkbook(bids)
	require.NoError(t, err)
	sheets := roundTrip(t, f)

	main := sheets[BidsSheet]
	require.Len(t, main, 3)
	assert.Equal(t, "Reference Number", main[0][0])
	assert.Equal(t, "11223344", main[1][0])
	assert.Equal(t, "Supply of Office Chairs", main[1][2])
	assert.Equal(t, "2024-03-15 10:00", main[1][9])
	assert.Equal(t, "55667788", main[2][0])
	assert.Equal(t, "", main[2][2], "nil fields stay empty")

	items := sheets[LineItemsSheet]
	require.Len(t, items, 2)
	assert.Equal(t, "11223344", items[1][0])
	assert.Equal(t, "Chairs", items[1][4])

	docs := sheets[DocumentsSheet]
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"11223344", "1", "notice.pdf", "Bid Notice", "", "https://philgeps.gov.ph/notice.pdf"}, docs[1])
}

func TestAwardsWorkbook_Savings(t *testing.T) {
	awards := []model.AwardedContract{
		{
			AwardNoticeNumber: "A-2024-001",
			AwardeeName:       model.Ptr("Acme Trading"),
			ApprovedBudget:    model.Ptr(1000000.0),
			ContractAmount:    model.Ptr(850000.0),
		},
		{AwardNoticeNumber: "A-2024-002", ContractAmount: model.Ptr(5.0)},
	}

	f, err := AwardsWorkbook(awards)
	require.NoError(t, err)

	sheet := f.Sheet[AwardsSheet]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 3)

	savingsCol := -1
	for i, c := range awardColumns {
		if c.header == "Savings" {
			savingsCol = i
		}
	}
	require.GreaterOrEqual(t, savingsCol, 0)

	savings, err := sheet.Rows[1].Cells[savingsCol].Float()
	require.NoError(t, err)
	assert.InDelta(t, 150000.0, savings, 0.001)

	pct, err := sheet.Rows[1].Cells[savingsCol+1].Float()
	require.NoError(t, err)
	assert.InDelta(t, 15.0, pct, 0.001)

	assert.Equal(t, "", sheet.Rows[2].Cells[savingsCol].String(), "no savings without a budget")
}

func TestWorkbook_Empty(t *testing.T) {
	f, err := BidsWorkbook(nil)
	require.NoError(t, err)
	sheets := roundTrip(t, f)
	assert.Len(t, sheets[BidsSheet], 1, "header only")
	assert.Len(t, sheets[LineItemsSheet], 1)
}
