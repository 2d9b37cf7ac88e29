package liveClient

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
)

func TestWatchStoreAddCodeDeduplicates(t *testing.T) {
	store := NewWatchStore()

	assert.True(t, store.AddCode("000001"))
	assert.True(t, store.AddCode("000002"))
	assert.False(t, store.AddCode("000001"))

	assert.Equal(t, []string{"000001", "000002"}, store.Codes())
}

func TestWatchStoreSetCodesDeduplicates(t *testing.T) {
	store := NewWatchStore()
	store.SetCodes([]string{"000001", "000002", "000001", "000003"})

	assert.Equal(t, []string{"000001", "000002", "000003"}, store.Codes())
}

func TestWatchStoreRemoveCode(t *testing.T) {
	store := NewWatchStore()
	store.SetCodes([]string{"000001", "000002"})
	store.SetDetail("000001", model.Valuation{Code: "000001"})

	assert.True(t, store.RemoveCode("000001"))
	assert.False(t, store.RemoveCode("000001"))
	assert.Equal(t, []string{"000002"}, store.Codes())

	_, ok := store.Detail("000001")
	assert.False(t, ok, "detail cache must be dropped with the code")
}

func TestWatchStoreRetainsDetailAcrossFailedRefresh(t *testing.T) {
	store := NewWatchStore()
	store.AddCode("000001")
	store.SetDetail("000001", model.Valuation{Code: "000001", Name: "Old"})

	// a failed refresh simply never calls SetDetail
	detail, ok := store.Detail("000001")
	require.True(t, ok)
	assert.Equal(t, "Old", detail.Name)
}

func TestWatchStoreStaleSnapshotDiscarded(t *testing.T) {
	store := NewWatchStore()

	newer := model.PositionsReport{Summary: model.PositionsSummary{TotalCost: decimal.NewFromInt(2)}}
	older := model.PositionsReport{Summary: model.PositionsSummary{TotalCost: decimal.NewFromInt(1)}}

	assert.True(t, store.SetPositions(newer, 2))
	assert.False(t, store.SetPositions(older, 1), "older token must lose")

	assert.True(t, store.Positions().Summary.TotalCost.Equal(decimal.NewFromInt(2)))
}

func TestWatchStoreNotifiesSubscribers(t *testing.T) {
	store := NewWatchStore()

	notified := 0
	unsubscribe := store.Subscribe(func() { notified++ })

	store.AddCode("000001")
	store.SetDetail("000001", model.Valuation{Code: "000001"})
	store.AddCode("000001") // duplicate, no change, no notification
	assert.Equal(t, 2, notified)

	unsubscribe()
	store.AddCode("000002")
	assert.Equal(t, 2, notified)
}

func TestWatchStoreSortedDetails(t *testing.T) {
	store := NewWatchStore()
	store.SetCodes([]string{"000003", "000001", "000002"})
	store.SetDetail("000003", model.Valuation{Code: "000003", Name: "C", EstRate: decimal.NewFromFloat(1.5)})
	store.SetDetail("000001", model.Valuation{Code: "000001", Name: "A", EstRate: decimal.NewFromFloat(3.0)})

	store.SetSortOption(SortByEstRate)
	details := store.SortedDetails()
	require.Len(t, details, 3)
	assert.Equal(t, "000001", details[0].Code)
	assert.Equal(t, "000003", details[1].Code)
	// no cached detail yet, stays last
	assert.Equal(t, "000002", details[2].Code)

	store.SetSortOption(SortByCode)
	details = store.SortedDetails()
	assert.Equal(t, "000001", details[0].Code)
	assert.Equal(t, "000003", details[1].Code)
}
