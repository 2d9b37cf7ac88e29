package dbModel

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Setting struct {
	Key       string        `db:"key"`
	Value     string        `db:"value"`
	Encrypted bool          `db:"encrypted"`
	UserID    sql.NullInt64 `db:"user_id"`
	UpdatedAt time.Time     `db:"updated_at"`
}

type Prompt struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	SystemPrompt string    `db:"system_prompt"`
	UserPrompt   string    `db:"user_prompt"`
	IsDefault    bool      `db:"is_default"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type AnalysisHistory struct {
	ID             int64     `db:"id"`
	Code           string    `db:"code"`
	Summary        string    `db:"summary"`
	RiskLevel      string    `db:"risk_level"`
	AnalysisReport string    `db:"analysis_report"`
	Suggestions    string    `db:"suggestions"`
	CreatedAt      time.Time `db:"created_at"`
}

type Subscription struct {
	ID               int64            `db:"id"`
	Code             string           `db:"code"`
	ChatID           int64            `db:"chat_id"`
	ThresholdUp      *decimal.Decimal `db:"threshold_up"`
	ThresholdDown    *decimal.Decimal `db:"threshold_down"`
	EnableDigest     bool             `db:"enable_digest"`
	DigestTime       string           `db:"digest_time"`
	EnableVolatility bool             `db:"enable_volatility"`
	LastNotifiedAt   sql.NullTime     `db:"last_notified_at"`
	CreatedAt        time.Time        `db:"created_at"`
}

type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	IsAdmin      bool      `db:"is_admin"`
	CreatedAt    time.Time `db:"created_at"`
}
