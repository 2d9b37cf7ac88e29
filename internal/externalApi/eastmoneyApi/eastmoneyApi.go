package eastmoneyApi

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/eastmoneyModel"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

var (
	jsonpRe      = regexp.MustCompile(`jsonpgz\((.*)\);?\s*$`)
	historyRowRe = regexp.MustCompile(`<td>(\d{4}-\d{2}-\d{2})</td><td class='tor bold'>([\d.]+)</td>`)

	// Exchange-listed fund code prefixes (LOF and ETF). Everything else is
	// priced by the fundgz estimate only.
	listedPrefixes = []string{"15", "16", "51", "56", "58"}
)

type EastmoneyApi struct {
	client *resty.Client
	cfg    *config.Config
}

func New(cfg *config.Config) *EastmoneyApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	return &EastmoneyApi{client: client, cfg: cfg}
}

// IsListedFund reports whether the code trades on an exchange, which means a
// realtime push2 quote exists for it.
func IsListedFund(code string) bool {
	for _, prefix := range listedPrefixes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

func (a *EastmoneyApi) Search(ctx context.Context, key string) ([]model.FundSearchResult, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start EastmoneyApi.Search request", slog.String("rqID", rqID), slog.String("key", key))

	resp, err := a.client.R().
		SetQueryParams(map[string]string{"m": "1", "key": key}).
		Get(a.cfg.API.Eastmoney.SearchURL)
	if err != nil {
		slog.Error("error while dialing fund search api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	rawResp := eastmoneyModel.RawSearchResponse{}
	if err = json.Unmarshal(resp.Body(), &rawResp); err != nil {
		slog.Error("can't unmarshal response into eastmoneyModel.RawSearchResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	results := make([]model.FundSearchResult, 0, len(rawResp.Datas))
	for _, item := range rawResp.Datas {
		if item.Code == "" {
			continue
		}
		results = append(results, model.FundSearchResult{
			Code: item.Code,
			Name: item.Name,
			Type: item.CategoryDesc,
		})
	}

	slog.Debug("EastmoneyApi.Search request complete", slog.String("rqID", rqID))

	return results, nil
}

// GetEstimate fetches the fundgz intraday estimate. The endpoint answers with
// a JSONP wrapper and an empty body for unknown codes.
func (a *EastmoneyApi) GetEstimate(ctx context.Context, code string) (eastmoneyModel.Estimate, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := strings.ReplaceAll(a.cfg.API.Eastmoney.EstimateURL, "{code}", code)

	slog.Debug("start EastmoneyApi.GetEstimate request", slog.String("rqID", rqID), slog.String("code", code))

	resp, err := a.client.R().Get(url)
	if err != nil {
		slog.Error("error while dialing fundgz api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return eastmoneyModel.Estimate{}, err
	}

	estimate, err := parseEstimate(resp.String())
	if err != nil {
		slog.Warn("no estimate for fund", slog.String("code", code), slog.String("rqID", rqID))
		return eastmoneyModel.Estimate{}, err
	}

	slog.Debug("EastmoneyApi.GetEstimate request complete", slog.String("rqID", rqID))

	return estimate, nil
}

func parseEstimate(body string) (eastmoneyModel.Estimate, error) {
	matches := jsonpRe.FindStringSubmatch(strings.TrimSpace(body))
	if len(matches) != 2 {
		return eastmoneyModel.Estimate{}, externalApi.ErrNotFound
	}

	raw := eastmoneyModel.RawEstimate{}
	if err := json.Unmarshal([]byte(matches[1]), &raw); err != nil {
		return eastmoneyModel.Estimate{}, err
	}

	nav, err := decimal.NewFromString(raw.Nav)
	if err != nil {
		return eastmoneyModel.Estimate{}, err
	}

	estimate := eastmoneyModel.Estimate{
		Code:    raw.FundCode,
		Name:    raw.Name,
		Nav:     nav,
		NavDate: raw.NavDate,
		Time:    raw.Time,
	}

	// QDII funds publish NAV only; gsz/gszzl may be absent.
	if raw.Estimate != "" {
		if estimate.Estimate, err = decimal.NewFromString(raw.Estimate); err != nil {
			return eastmoneyModel.Estimate{}, err
		}
	}
	if raw.EstRate != "" {
		if estimate.EstRate, err = decimal.NewFromString(raw.EstRate); err != nil {
			return eastmoneyModel.Estimate{}, err
		}
	}

	return estimate, nil
}

// GetQuote fetches the push2 exchange quote for a listed fund. Prices arrive
// as scaled integers: f43 and f60 carry three implied decimals, f170 two.
func (a *EastmoneyApi) GetQuote(ctx context.Context, code string) (eastmoneyModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	// Shanghai listings (5x) live on market 1, Shenzhen (15/16) on market 0.
	secid := "0." + code
	if strings.HasPrefix(code, "5") {
		secid = "1." + code
	}

	slog.Debug("start EastmoneyApi.GetQuote request", slog.String("rqID", rqID), slog.String("code", code))

	resp, err := a.client.R().
		SetQueryParams(map[string]string{
			"secid":  secid,
			"fields": "f43,f58,f60,f170",
		}).
		Get(a.cfg.API.Eastmoney.QuoteURL)
	if err != nil {
		slog.Error("error while dialing push2 api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return eastmoneyModel.Quote{}, err
	}

	rawResp := eastmoneyModel.RawQuoteResponse{}
	if err = json.Unmarshal(resp.Body(), &rawResp); err != nil {
		slog.Error("can't unmarshal response into eastmoneyModel.RawQuoteResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return eastmoneyModel.Quote{}, err
	}

	if rawResp.Data == nil || rawResp.Data.Price == 0 {
		return eastmoneyModel.Quote{}, externalApi.ErrNotFound
	}

	quote := eastmoneyModel.Quote{
		Code:       code,
		Name:       rawResp.Data.Name,
		Price:      decimal.NewFromFloat(rawResp.Data.Price).Div(decimal.NewFromInt(1000)),
		ChangeRate: decimal.NewFromFloat(rawResp.Data.ChangeRate).Div(decimal.NewFromInt(100)),
	}

	slog.Debug("EastmoneyApi.GetQuote request complete", slog.String("rqID", rqID))

	return quote, nil
}

// GetHistory scrapes the F10 NAV table. The endpoint returns a JS snippet
// embedding HTML rows, newest first.
func (a *EastmoneyApi) GetHistory(ctx context.Context, code string, limit int) ([]eastmoneyModel.HistoryPoint, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start EastmoneyApi.GetHistory request", slog.String("rqID", rqID), slog.String("code", code))

	resp, err := a.client.R().
		SetQueryParams(map[string]string{
			"type": "lsjz",
			"code": code,
			"page": "1",
			"per":  strconv.Itoa(limit),
		}).
		Get(a.cfg.API.Eastmoney.HistoryURL)
	if err != nil {
		slog.Error("error while dialing f10 api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	points := parseHistory(resp.String())
	if len(points) == 0 {
		return nil, externalApi.ErrNotFound
	}

	slog.Debug("EastmoneyApi.GetHistory request complete", slog.String("rqID", rqID), slog.Int("points", len(points)))

	return points, nil
}

func parseHistory(body string) []eastmoneyModel.HistoryPoint {
	matches := historyRowRe.FindAllStringSubmatch(body, -1)
	points := make([]eastmoneyModel.HistoryPoint, 0, len(matches))
	for _, m := range matches {
		nav, err := decimal.NewFromString(m[2])
		if err != nil {
			continue
		}
		points = append(points, eastmoneyModel.HistoryPoint{Date: m[1], Nav: nav})
	}
	return points
}
