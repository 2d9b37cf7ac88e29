package model

import "github.com/shopspring/decimal"

// Position is a holding enriched with live valuation data and derived
// metrics. Invariant: shares >= 0, cost >= 0.
type Position struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Type            string          `json:"type,omitempty"`
	Cost            decimal.Decimal `json:"cost"`
	Shares          decimal.Decimal `json:"shares"`
	Nav             decimal.Decimal `json:"nav"`
	NavDate         string          `json:"nav_date"`
	NavUpdatedToday bool            `json:"nav_updated_today"`
	Estimate        decimal.Decimal `json:"estimate"`
	EstRate         decimal.Decimal `json:"est_rate"`
	EstValid        bool            `json:"is_est_valid"`

	CostBasis      decimal.Decimal `json:"cost_basis"`
	NavMarketValue decimal.Decimal `json:"nav_market_value"`
	EstMarketValue decimal.Decimal `json:"est_market_value"`

	AccumulatedIncome     decimal.Decimal `json:"accumulated_income"`
	AccumulatedReturnRate decimal.Decimal `json:"accumulated_return_rate"`
	DayIncome             decimal.Decimal `json:"day_income"`
	TotalIncome           decimal.Decimal `json:"total_income"`
	TotalReturnRate       decimal.Decimal `json:"total_return_rate"`

	UpdateTime string `json:"update_time"`
}

type PositionsSummary struct {
	TotalMarketValue decimal.Decimal `json:"total_market_value"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	TotalDayIncome   decimal.Decimal `json:"total_day_income"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalReturnRate  decimal.Decimal `json:"total_return_rate"`
}

type PositionsReport struct {
	Summary   PositionsSummary `json:"summary"`
	Positions []Position       `json:"positions"`
}

// TradeResult is the outcome of an add or reduce lot. Pending means the
// confirm-date NAV is not published yet; shares/amount stay unset until the
// confirmation job applies the trade.
type TradeResult struct {
	OK          bool             `json:"ok"`
	Pending     bool             `json:"pending"`
	ConfirmDate string           `json:"confirm_date"`
	ConfirmNav  *decimal.Decimal `json:"confirm_nav,omitempty"`
	SharesAdded *decimal.Decimal `json:"shares_added,omitempty"`
	AmountCny   *decimal.Decimal `json:"amount_cny,omitempty"`
	CostAfter   *decimal.Decimal `json:"cost_after,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// Transaction is a trade record. Immutable once confirmed (AppliedAt set).
type Transaction struct {
	ID             int64            `json:"id"`
	AccountID      int64            `json:"account_id"`
	Code           string           `json:"code"`
	OpType         string           `json:"op_type"`
	AmountCny      *decimal.Decimal `json:"amount_cny,omitempty"`
	SharesRedeemed *decimal.Decimal `json:"shares_redeemed,omitempty"`
	ConfirmDate    string           `json:"confirm_date"`
	ConfirmNav     *decimal.Decimal `json:"confirm_nav,omitempty"`
	SharesAdded    *decimal.Decimal `json:"shares_added,omitempty"`
	CostAfter      *decimal.Decimal `json:"cost_after,omitempty"`
	CreatedAt      string           `json:"created_at"`
	AppliedAt      string           `json:"applied_at,omitempty"`
}

const (
	OpTypeAdd    = "add"
	OpTypeReduce = "reduce"
)
