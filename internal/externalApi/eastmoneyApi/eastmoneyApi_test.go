package eastmoneyApi

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi"
)

func TestParseEstimate(t *testing.T) {
	body := `jsonpgz({"fundcode":"161725","name":"招商中证白酒指数","jzrq":"2026-08-27","dwjz":"0.8855","gsz":"0.8921","gszzl":"0.75","gztime":"2026-08-28 14:30"});`

	estimate, err := parseEstimate(body)
	require.NoError(t, err)

	assert.Equal(t, "161725", estimate.Code)
	assert.Equal(t, "招商中证白酒指数", estimate.Name)
	assert.Equal(t, "2026-08-27", estimate.NavDate)
	assert.True(t, estimate.Nav.Equal(decimal.RequireFromString("0.8855")))
	assert.True(t, estimate.Estimate.Equal(decimal.RequireFromString("0.8921")))
	assert.True(t, estimate.EstRate.Equal(decimal.RequireFromString("0.75")))
	assert.Equal(t, "2026-08-28 14:30", estimate.Time)
}

func TestParseEstimateNavOnly(t *testing.T) {
	// QDII funds publish no intraday estimate
	body := `jsonpgz({"fundcode":"270042","name":"广发纳指100","jzrq":"2026-08-27","dwjz":"4.5130","gsz":"","gszzl":"","gztime":"2026-08-28 15:00"});`

	estimate, err := parseEstimate(body)
	require.NoError(t, err)

	assert.True(t, estimate.Estimate.IsZero())
	assert.True(t, estimate.EstRate.IsZero())
	assert.True(t, estimate.Nav.Equal(decimal.RequireFromString("4.5130")))
}

func TestParseEstimateEmptyBody(t *testing.T) {
	_, err := parseEstimate("")
	assert.ErrorIs(t, err, externalApi.ErrNotFound)

	_, err = parseEstimate("jsonpgz();")
	assert.Error(t, err)
}

func TestParseHistory(t *testing.T) {
	body := `var apidata={ content:"<table class='w782 comm lsjz'><tbody>` +
		`<tr><td>2026-08-27</td><td class='tor bold'>1.2345</td><td class='tor bold'>2.3456</td></tr>` +
		`<tr><td>2026-08-26</td><td class='tor bold'>1.2200</td><td class='tor bold'>2.3311</td></tr>` +
		`</tbody></table>",records:60,pages:30,curpage:1};`

	points := parseHistory(body)
	require.Len(t, points, 2)

	assert.Equal(t, "2026-08-27", points[0].Date)
	assert.True(t, points[0].Nav.Equal(decimal.RequireFromString("1.2345")))
	assert.Equal(t, "2026-08-26", points[1].Date)
	assert.True(t, points[1].Nav.Equal(decimal.RequireFromString("1.2200")))
}

func TestParseHistoryEmpty(t *testing.T) {
	assert.Empty(t, parseHistory(`var apidata={ content:"",records:0};`))
}

func TestIsListedFund(t *testing.T) {
	assert.True(t, IsListedFund("159915"))  // Shenzhen ETF
	assert.True(t, IsListedFund("161725"))  // LOF
	assert.True(t, IsListedFund("510300"))  // Shanghai ETF
	assert.True(t, IsListedFund("588000"))  // STAR ETF
	assert.False(t, IsListedFund("000001")) // open-end fund
	assert.False(t, IsListedFund("270042"))
}
