package dbModel

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

type Position struct {
	AccountID int64           `db:"account_id"`
	Code      string          `db:"code"`
	Cost      decimal.Decimal `db:"cost"`
	Shares    decimal.Decimal `db:"shares"`
	UpdatedAt time.Time       `db:"updated_at"`
}

type Transaction struct {
	ID             int64            `db:"id"`
	AccountID      int64            `db:"account_id"`
	Code           string           `db:"code"`
	OpType         string           `db:"op_type"`
	AmountCny      *decimal.Decimal `db:"amount_cny"`
	SharesRedeemed *decimal.Decimal `db:"shares_redeemed"`
	ConfirmDate    string           `db:"confirm_date"`
	ConfirmNav     *decimal.Decimal `db:"confirm_nav"`
	SharesAdded    *decimal.Decimal `db:"shares_added"`
	CostAfter      *decimal.Decimal `db:"cost_after"`
	CreatedAt      time.Time        `db:"created_at"`
	AppliedAt      sql.NullTime     `db:"applied_at"`
}
