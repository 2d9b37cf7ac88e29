package model

import "github.com/shopspring/decimal"

// Valuation is the combined intraday picture of a fund: the last published
// NAV, the live estimate and, for exchange-traded funds, the market quote
// with its premium over the estimate.
type Valuation struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Nav         decimal.Decimal `json:"nav"`
	NavDate     string          `json:"nav_date"`
	Estimate    decimal.Decimal `json:"estimate"`
	EstRate     decimal.Decimal `json:"est_rate"`
	PremiumRate string          `json:"premium_rate,omitempty"`
	// Source marks freshness: "realtime" (exchange quote), "estimate" or
	// "confirmed" (published NAV fallback).
	Source     string `json:"source"`
	UpdateTime string `json:"update_time"`
}

type FundSearchResult struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type FundHistoryPoint struct {
	Date string          `json:"date"`
	Nav  decimal.Decimal `json:"nav"`
}

type IntradaySnapshot struct {
	Time     string          `json:"time"`
	Estimate decimal.Decimal `json:"estimate"`
}

type IntradaySeries struct {
	Date            string             `json:"date"`
	PrevNav         *decimal.Decimal   `json:"prevNav"`
	Snapshots       []IntradaySnapshot `json:"snapshots"`
	LastCollectedAt string             `json:"lastCollectedAt,omitempty"`
}

// WatchlistEntry is fund metadata merged with the latest valuation snapshot,
// keyed by fund code.
type WatchlistEntry struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Type      string     `json:"type,omitempty"`
	Valuation *Valuation `json:"valuation,omitempty"`
}
