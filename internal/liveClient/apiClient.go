package liveClient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
)

// ApiClient talks to the dashboard server's REST API.
type ApiClient struct {
	client *resty.Client
}

func NewApiClient(cfg *config.Config) *ApiClient {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.Watcher.ServerURL)
	return &ApiClient{client: client}
}

// decode maps non-2xx responses to *ServerError with the server's detail
// verbatim and unmarshals successful bodies into out.
func decode(resp *resty.Response, out any) error {
	if resp.IsError() {
		detail := struct {
			Error string `json:"error"`
		}{}
		_ = json.Unmarshal(resp.Body(), &detail)
		if detail.Error == "" {
			detail.Error = resp.Status()
		}
		return &ServerError{Status: resp.StatusCode(), Message: detail.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

func (a *ApiClient) GetFund(ctx context.Context, code string) (model.Valuation, error) {
	resp, err := a.client.R().SetContext(ctx).Get("/api/fund/" + code)
	if err != nil {
		return model.Valuation{}, err
	}

	valuation := model.Valuation{}
	if err = decode(resp, &valuation); err != nil {
		return model.Valuation{}, err
	}
	return valuation, nil
}

func (a *ApiClient) GetPositions(ctx context.Context, accountID int64) (model.PositionsReport, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", fmt.Sprintf("%d", accountID)).
		Get("/api/account/positions")
	if err != nil {
		return model.PositionsReport{}, err
	}

	report := model.PositionsReport{}
	if err = decode(resp, &report); err != nil {
		return model.PositionsReport{}, err
	}
	return report, nil
}

func (a *ApiClient) AddLot(ctx context.Context, accountID int64, code string, amount decimal.Decimal) (model.TradeResult, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", fmt.Sprintf("%d", accountID)).
		SetBody(map[string]decimal.Decimal{"amount": amount}).
		Post("/api/account/positions/" + code + "/add")
	if err != nil {
		return model.TradeResult{}, err
	}

	result := model.TradeResult{}
	if err = decode(resp, &result); err != nil {
		return model.TradeResult{}, err
	}
	return result, nil
}

func (a *ApiClient) ReduceLot(ctx context.Context, accountID int64, code string, shares decimal.Decimal) (model.TradeResult, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", fmt.Sprintf("%d", accountID)).
		SetBody(map[string]decimal.Decimal{"shares": shares}).
		Post("/api/account/positions/" + code + "/reduce")
	if err != nil {
		return model.TradeResult{}, err
	}

	result := model.TradeResult{}
	if err = decode(resp, &result); err != nil {
		return model.TradeResult{}, err
	}
	return result, nil
}

func (a *ApiClient) UpsertPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", fmt.Sprintf("%d", accountID)).
		SetBody(map[string]any{"code": code, "cost": cost, "shares": shares}).
		Post("/api/account/positions")
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

func (a *ApiClient) DeletePosition(ctx context.Context, accountID int64, code string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", fmt.Sprintf("%d", accountID)).
		Delete("/api/account/positions/" + code)
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

func (a *ApiClient) GetPreferences(ctx context.Context) (model.Preferences, error) {
	resp, err := a.client.R().SetContext(ctx).Get("/api/preferences")
	if err != nil {
		return model.Preferences{}, err
	}

	prefs := model.Preferences{}
	if err = decode(resp, &prefs); err != nil {
		return model.Preferences{}, err
	}
	return prefs, nil
}

func (a *ApiClient) UpdatePreferences(ctx context.Context, prefs model.Preferences) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(prefs).
		Post("/api/preferences")
	if err != nil {
		return err
	}
	if err = decode(resp, nil); err != nil {
		slog.Debug("preferences push rejected", slog.String("err", err.Error()))
		return err
	}
	return nil
}
