package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Fund struct {
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	UpdatedAt time.Time `db:"updated_at"`
}

type FundHistory struct {
	Code string          `db:"code"`
	Date string          `db:"date"`
	Nav  decimal.Decimal `db:"nav"`
}

type IntradaySnapshot struct {
	FundCode string          `db:"fund_code"`
	Date     string          `db:"date"`
	Time     string          `db:"time"`
	Estimate decimal.Decimal `db:"estimate"`
}
