package eastmoneyModel

import "github.com/shopspring/decimal"

// RawSearchResponse is the payload of the FundSearchAPI endpoint.
type RawSearchResponse struct {
	Datas []RawSearchItem `json:"Datas"`
}

type RawSearchItem struct {
	Code         string `json:"CODE"`
	Name         string `json:"NAME"`
	CategoryDesc string `json:"CATEGORYDESC"`
}

// RawEstimate is the JSON body inside the fundgz JSONP wrapper. All numeric
// fields arrive as strings.
type RawEstimate struct {
	FundCode string `json:"fundcode"`
	Name     string `json:"name"`
	Nav      string `json:"dwjz"`
	NavDate  string `json:"jzrq"`
	Estimate string `json:"gsz"`
	EstRate  string `json:"gszzl"`
	Time     string `json:"gztime"`
}

// RawQuoteResponse is the push2 exchange quote payload for listed funds.
// Prices are scaled integers (price*1000, rate*100).
type RawQuoteResponse struct {
	Data *RawQuote `json:"data"`
}

type RawQuote struct {
	Price      float64 `json:"f43"`
	Name       string  `json:"f58"`
	PrevClose  float64 `json:"f60"`
	ChangeRate float64 `json:"f170"`
}

// Estimate is the parsed intraday estimate.
type Estimate struct {
	Code     string
	Name     string
	Nav      decimal.Decimal
	NavDate  string
	Estimate decimal.Decimal
	EstRate  decimal.Decimal
	Time     string
}

// Quote is the parsed exchange quote.
type Quote struct {
	Code       string
	Name       string
	Price      decimal.Decimal
	ChangeRate decimal.Decimal
}

// HistoryPoint is one published NAV row scraped from the F10 table.
type HistoryPoint struct {
	Date string
	Nav  decimal.Decimal
}
