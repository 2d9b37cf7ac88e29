package model

import "github.com/shopspring/decimal"

// Subscription is a threshold alert on a fund, delivered to a Telegram chat.
type Subscription struct {
	ID               int64            `json:"id"`
	Code             string           `json:"code"`
	ChatID           int64            `json:"chat_id"`
	ThresholdUp      *decimal.Decimal `json:"thresholdUp,omitempty"`
	ThresholdDown    *decimal.Decimal `json:"thresholdDown,omitempty"`
	EnableDigest     bool             `json:"enableDailyDigest"`
	DigestTime       string           `json:"digestTime"`
	EnableVolatility bool             `json:"enableVolatility"`
}
