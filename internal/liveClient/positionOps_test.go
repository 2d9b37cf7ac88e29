package liveClient

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
)

type fakeTradeApi struct {
	calls  int
	err    error
	result model.TradeResult
}

func (f *fakeTradeApi) AddLot(ctx context.Context, accountID int64, code string, amount decimal.Decimal) (model.TradeResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeTradeApi) ReduceLot(ctx context.Context, accountID int64, code string, shares decimal.Decimal) (model.TradeResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeTradeApi) UpsertPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error {
	f.calls++
	return f.err
}

func (f *fakeTradeApi) DeletePosition(ctx context.Context, accountID int64, code string) error {
	f.calls++
	return f.err
}

func TestAddLotValidatesBeforeNetwork(t *testing.T) {
	api := &fakeTradeApi{}
	ops := NewPositionOps(api, NewWatchStore())

	_, err := ops.AddLot(context.Background(), 1, "bad", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ops.AddLot(context.Background(), 1, "000001", decimal.Zero)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ops.AddLot(context.Background(), 1, "000001", decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, api.calls, "validation failures must not reach the network")
}

func TestAddLotPassesThrough(t *testing.T) {
	api := &fakeTradeApi{result: model.TradeResult{OK: true, Pending: true, ConfirmDate: "2026-08-28"}}
	ops := NewPositionOps(api, NewWatchStore())

	result, err := ops.AddLot(context.Background(), 1, "000001", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Equal(t, 1, api.calls)
}

func TestReduceLotChecksHolding(t *testing.T) {
	api := &fakeTradeApi{}
	store := NewWatchStore()
	store.SetPositions(model.PositionsReport{
		Positions: []model.Position{{Code: "000001", Shares: decimal.NewFromInt(50)}},
	}, 1)
	ops := NewPositionOps(api, store)

	_, err := ops.ReduceLot(context.Background(), 1, "000001", decimal.NewFromInt(51))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, api.calls)

	_, err = ops.ReduceLot(context.Background(), 1, "000001", decimal.NewFromInt(50))
	assert.NoError(t, err)
	assert.Equal(t, 1, api.calls)
}

func TestReduceLotUnknownHoldingDefersToServer(t *testing.T) {
	// no snapshot yet: the server is the authority
	api := &fakeTradeApi{}
	ops := NewPositionOps(api, NewWatchStore())

	_, err := ops.ReduceLot(context.Background(), 1, "000001", decimal.NewFromInt(10))
	assert.NoError(t, err)
	assert.Equal(t, 1, api.calls)
}

func TestDeletePositionReportsFailureOnce(t *testing.T) {
	api := &fakeTradeApi{err: &ServerError{Status: 500, Message: "boom"}}
	ops := NewPositionOps(api, NewWatchStore())

	err := ops.DeletePosition(context.Background(), 1, "000001")
	require.Error(t, err)
	assert.Equal(t, 1, api.calls, "no retry on delete")
}

func TestSetPositionValidation(t *testing.T) {
	api := &fakeTradeApi{}
	ops := NewPositionOps(api, NewWatchStore())

	err := ops.SetPosition(context.Background(), 1, "000001", decimal.NewFromInt(-1), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, api.calls)
}
