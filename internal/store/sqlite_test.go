package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/philgeps-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_Upsert_InsertThenUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bid := sampleBid()
	bid.ClosingDate = model.Ptr(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))

	id, created, err := st.Upsert(ctx, bid)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	exists, err := st.Exists(ctx, model.KindBidNotice, bid.ReferenceNumber)
	require.NoError(t, err)
	assert.True(t, exists)

	bid.Title = model.Ptr("Supply of Ergonomic Chairs")
	id2, created, err := st.Upsert(ctx, bid)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)

	got, err := st.GetBid(ctx, bid.ReferenceNumber)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Supply of Ergonomic Chairs", *got.Title)
	require.NotNil(t, got.ClosingDate)
	assert.True(t, got.ClosingDate.Equal(*bid.ClosingDate))
	require.NotNil(t, got.ApprovedBudget)
	assert.InDelta(t, 150000.0, *got.ApprovedBudget, 0.001)
	assert.Nil(t, got.ContactEmail)
	assert.Equal(t, model.DefaultBidStatus, got.Status)
	assert.Len(t, got.LineItems, 2)
	assert.Len(t, got.Documents, 1)
}

func TestSQLite_Upsert_ReplacesChildren(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bid := sampleBid()
	_, _, err := st.Upsert(ctx, bid)
	require.NoError(t, err)

	bid.LineItems = []model.LineItem{
		{Position: 1, ItemNumber: model.Ptr(7), LotName: model.Ptr("Filing Cabinets"), UnitOfMeasure: model.Ptr("pc")},
	}
	bid.Documents = nil
	_, _, err = st.Upsert(ctx, bid)
	require.NoError(t, err)

	got, err := st.GetBid(ctx, bid.ReferenceNumber)
	require.NoError(t, err)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, 7, *got.LineItems[0].ItemNumber)
	assert.Equal(t, "Filing Cabinets", *got.LineItems[0].LotName)
	assert.Empty(t, got.Documents)
}

func TestSQLite_Upsert_MissingKey(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, _, err := st.Upsert(context.Background(), &model.AwardedContract{URL: "https://x"})
	assert.True(t, errors.Is(err, ErrMissingKey))
}

func TestSQLite_Award_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	award := &model.AwardedContract{
		AwardNoticeNumber:  "A-2024-001",
		BidReferenceNumber: model.Ptr("11223344"),
		AwardeeName:        model.Ptr("Acme Trading"),
		ApprovedBudget:     model.Ptr(1000000.0),
		ContractAmount:     model.Ptr(850000.0),
		AwardDate:          model.Ptr(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
		URL:                "https://philgeps.gov.ph/Indexes/viewAwardNotice/A-2024-001/MORE",
		Documents: []model.Document{
			{Filename: "award.pdf", DocumentURL: "https://philgeps.gov.ph/award.pdf", DocumentType: "Document", FileSize: model.Ptr("120 KB")},
		},
	}
	_, created, err := st.Upsert(ctx, award)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := st.GetAward(ctx, "A-2024-001")
	require.NoError(t, err)
	assert.Equal(t, "Acme Trading", *got.AwardeeName)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, 1, got.Documents[0].Position)
	assert.Equal(t, "120 KB", *got.Documents[0].FileSize)
	require.NotNil(t, got.SavingsAmount())
	assert.InDelta(t, 150000.0, *got.SavingsAmount(), 0.001)

	exists, err := st.Exists(ctx, model.KindBidNotice, "A-2024-001")
	require.NoError(t, err)
	assert.False(t, exists, "award keys do not collide with bid keys")
}

func TestSQLite_GetBid_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetBid(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListBids(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bid := sampleBid()
		bid.ReferenceNumber = fmt.Sprintf("REF-%d", i)
		_, _, err := st.Upsert(ctx, bid)
		require.NoError(t, err)
	}

	all, err := st.ListBids(ctx, RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, b := range all {
		assert.Len(t, b.LineItems, 2)
	}

	page, err := st.ListBids(ctx, RecordFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_ConcurrentUpsertsSameKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := st.Upsert(ctx, sampleBid())
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	got, err := st.GetBid(ctx, "11223344")
	require.NoError(t, err)
	assert.Len(t, got.LineItems, 2)
	assert.Len(t, got.Documents, 1)
	assert.Equal(t, 0, st.locks.Len())
}

func TestSQLite_Sessions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	for i, kind := range []model.RecordKind{model.KindBidNotice, model.KindAward, model.KindBidNotice} {
		sess := &model.ScrapeSession{
			Kind:            kind,
			StartedAt:       base.Add(time.Duration(i) * time.Hour),
			EndedAt:         base.Add(time.Duration(i)*time.Hour + time.Minute),
			DurationSeconds: 60,
			TotalScraped:    i,
			Success:         i != 1,
			Notes:           "Public scraping (no auth) with 2 workers",
		}
		require.NoError(t, st.AppendSession(ctx, sess))
	}

	all, err := st.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].TotalScraped, "newest first")
	assert.False(t, all[1].Success)

	bids, err := st.ListSessions(ctx, SessionFilter{Kind: model.KindBidNotice, Limit: 1})
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, model.KindBidNotice, bids[0].Kind)
	assert.True(t, bids[0].StartedAt.Equal(base.Add(2*time.Hour)))
}
