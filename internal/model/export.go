package model

import "github.com/shopspring/decimal"

// Export module names accepted by the export/import endpoints.
const (
	ModuleAccounts      = "accounts"
	ModulePositions     = "positions"
	ModuleTransactions  = "transactions"
	ModulePrompts       = "ai_prompts"
	ModuleSubscriptions = "subscriptions"
	ModuleSettings      = "settings"
)

// ExportPosition is the raw stored position row, without valuation
// enrichment, so imports restore exactly what was persisted.
type ExportPosition struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Cost      decimal.Decimal `json:"cost"`
	Shares    decimal.Decimal `json:"shares"`
}

// Export is the portable snapshot of user data. Absent modules are nil.
type Export struct {
	Version       string            `json:"version"`
	CreatedAt     string            `json:"created_at"`
	Accounts      []Account         `json:"accounts,omitempty"`
	Positions     []ExportPosition  `json:"positions,omitempty"`
	Transactions  []Transaction     `json:"transactions,omitempty"`
	Prompts       []Prompt          `json:"ai_prompts,omitempty"`
	Subscriptions []Subscription    `json:"subscriptions,omitempty"`
	Settings      map[string]string `json:"settings,omitempty"`
}

const (
	ImportModeMerge   = "merge"
	ImportModeReplace = "replace"
)
