package liveClient

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

var fundCodeRe = regexp.MustCompile(`^\d{6}$`)

// TradeApi is the slice of the server client position operations need.
type TradeApi interface {
	AddLot(ctx context.Context, accountID int64, code string, amount decimal.Decimal) (model.TradeResult, error)
	ReduceLot(ctx context.Context, accountID int64, code string, shares decimal.Decimal) (model.TradeResult, error)
	UpsertPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error
	DeletePosition(ctx context.Context, accountID int64, code string) error
}

// PositionOps validates and submits position mutations. Validation failures
// surface as ErrValidation before any network call; server failures are
// reported once and never retried, the next poll reconciles the view.
type PositionOps struct {
	api   TradeApi
	store *WatchStore
}

func NewPositionOps(api TradeApi, store *WatchStore) *PositionOps {
	return &PositionOps{api: api, store: store}
}

// AddLot buys into a fund for the given CNY amount.
func (o *PositionOps) AddLot(ctx context.Context, accountID int64, code string, amount decimal.Decimal) (model.TradeResult, error) {
	const op = "PositionOps.AddLot"

	if !fundCodeRe.MatchString(code) {
		return model.TradeResult{}, fmt.Errorf("%w: fund code must be 6 digits", ErrValidation)
	}
	if !amount.IsPositive() {
		return model.TradeResult{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	result, err := o.api.AddLot(ctx, accountID, code, amount)
	if err != nil {
		o.logFailure(ctx, op, code, err)
		return model.TradeResult{}, err
	}
	return result, nil
}

// ReduceLot sells part of a holding. The shares must not exceed the holding
// in the latest positions snapshot.
func (o *PositionOps) ReduceLot(ctx context.Context, accountID int64, code string, shares decimal.Decimal) (model.TradeResult, error) {
	const op = "PositionOps.ReduceLot"

	if !fundCodeRe.MatchString(code) {
		return model.TradeResult{}, fmt.Errorf("%w: fund code must be 6 digits", ErrValidation)
	}
	if !shares.IsPositive() {
		return model.TradeResult{}, fmt.Errorf("%w: shares must be positive", ErrValidation)
	}
	if held, ok := o.heldShares(code); ok && shares.GreaterThan(held) {
		return model.TradeResult{}, fmt.Errorf("%w: shares exceed holding %s", ErrValidation, held)
	}

	result, err := o.api.ReduceLot(ctx, accountID, code, shares)
	if err != nil {
		o.logFailure(ctx, op, code, err)
		return model.TradeResult{}, err
	}
	return result, nil
}

// SetPosition sets cost and shares directly, bypassing trade bookkeeping.
func (o *PositionOps) SetPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error {
	const op = "PositionOps.SetPosition"

	if !fundCodeRe.MatchString(code) {
		return fmt.Errorf("%w: fund code must be 6 digits", ErrValidation)
	}
	if cost.IsNegative() || shares.IsNegative() {
		return fmt.Errorf("%w: cost and shares must not be negative", ErrValidation)
	}

	if err := o.api.UpsertPosition(ctx, accountID, code, cost, shares); err != nil {
		o.logFailure(ctx, op, code, err)
		return err
	}
	return nil
}

// DeletePosition removes a holding. The failure, if any, is reported once;
// there is no retry and no local rollback to manage since the store only
// changes on the next successful fetch.
func (o *PositionOps) DeletePosition(ctx context.Context, accountID int64, code string) error {
	const op = "PositionOps.DeletePosition"

	if !fundCodeRe.MatchString(code) {
		return fmt.Errorf("%w: fund code must be 6 digits", ErrValidation)
	}

	if err := o.api.DeletePosition(ctx, accountID, code); err != nil {
		o.logFailure(ctx, op, code, err)
		return err
	}
	return nil
}

func (o *PositionOps) heldShares(code string) (decimal.Decimal, bool) {
	for _, position := range o.store.Positions().Positions {
		if position.Code == code {
			return position.Shares, true
		}
	}
	return decimal.Decimal{}, false
}

func (o *PositionOps) logFailure(ctx context.Context, op, code string, err error) {
	slog.Warn(
		"position operation failed",
		slog.String("op", op),
		slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
		slog.String("code", code),
		slog.Any("error", err),
	)
}
