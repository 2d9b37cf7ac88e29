package rest

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
)

type FundService interface {
	SearchFunds(ctx context.Context, key string) ([]model.FundSearchResult, error)
	GetValuation(ctx context.Context, code string) (model.Valuation, error)
	GetWatchlist(ctx context.Context, codes []string) ([]model.WatchlistEntry, error)
	GetHistory(ctx context.Context, code string, limit int) ([]model.FundHistoryPoint, error)
	GetIntraday(ctx context.Context, code, date string) (model.IntradaySeries, error)
	GetCategories(ctx context.Context) (map[string]int, error)
}

type AccountService interface {
	GetAccounts(ctx context.Context) ([]model.Account, error)
	CreateAccount(ctx context.Context, name, description string) (int64, error)
	UpdateAccount(ctx context.Context, accountID int64, name, description string) error
	DeleteAccount(ctx context.Context, accountID int64) error
	GetPositionsReport(ctx context.Context, accountID int64) (model.PositionsReport, error)
	AddLot(ctx context.Context, accountID int64, code string, amount decimal.Decimal) (model.TradeResult, error)
	ReduceLot(ctx context.Context, accountID int64, code string, shares decimal.Decimal) (model.TradeResult, error)
	SetPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error
	DeletePosition(ctx context.Context, accountID int64, code string) error
	GetTransactions(ctx context.Context, accountID int64, code string, limit int) ([]model.Transaction, error)
	UpdateNavs(ctx context.Context, accountID int64) (updated, pending, failed int, err error)
}

type SettingsService interface {
	GetSettings(ctx context.Context, userID int64) (map[string]string, error)
	UpdateSettings(ctx context.Context, userID int64, settings map[string]string) error
	GetPreferences(ctx context.Context, userID int64) (model.Preferences, error)
	UpdatePreferences(ctx context.Context, userID int64, prefs model.Preferences) error
}

type AiService interface {
	AnalyzeFund(ctx context.Context, code string, promptID int64, userID int64) (model.Analysis, error)
	GetPrompts(ctx context.Context) ([]model.Prompt, error)
	CreatePrompt(ctx context.Context, name, systemPrompt, userPrompt string, isDefault bool) (int64, error)
	UpdatePrompt(ctx context.Context, promptID int64, name, systemPrompt, userPrompt string, isDefault bool) error
	DeletePrompt(ctx context.Context, promptID int64) error
	GetAnalysisHistory(ctx context.Context, code string, limit int) ([]model.Analysis, error)
	DeleteAnalysisHistory(ctx context.Context, historyID int64) error
}

type DataService interface {
	Export(ctx context.Context, modules []string) (model.Export, error)
	ExportXLSX(ctx context.Context, modules []string) ([]byte, string, error)
	Import(ctx context.Context, export model.Export, mode string) error
}

type AuthService interface {
	Register(ctx context.Context, username, password string) (int64, error)
	Login(ctx context.Context, username, password string) (string, model.User, error)
	Logout(ctx context.Context, sid string) error
}

type AlertService interface {
	GetSubscriptions(ctx context.Context) ([]model.Subscription, error)
	Subscribe(ctx context.Context, sub model.Subscription) (int64, error)
	Unsubscribe(ctx context.Context, subID int64) error
}

type Controller struct {
	fundService     FundService
	accountService  AccountService
	settingsService SettingsService
	aiService       AiService
	dataService     DataService
	authService     AuthService
	alertService    AlertService
	sessionCfg      *config.Config
}

func NewController(
	fundService FundService,
	accountService AccountService,
	settingsService SettingsService,
	aiService AiService,
	dataService DataService,
	authService AuthService,
	alertService AlertService,
) *Controller {
	return &Controller{
		fundService:     fundService,
		accountService:  accountService,
		settingsService: settingsService,
		aiService:       aiService,
		dataService:     dataService,
		authService:     authService,
		alertService:    alertService,
	}
}
