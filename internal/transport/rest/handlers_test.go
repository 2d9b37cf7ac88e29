package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

type stubFundService struct {
	valuation model.Valuation
	err       error
}

func (s *stubFundService) SearchFunds(ctx context.Context, key string) ([]model.FundSearchResult, error) {
	return []model.FundSearchResult{{Code: "000001", Name: "Fund"}}, s.err
}
func (s *stubFundService) GetValuation(ctx context.Context, code string) (model.Valuation, error) {
	return s.valuation, s.err
}
func (s *stubFundService) GetWatchlist(ctx context.Context, codes []string) ([]model.WatchlistEntry, error) {
	entries := make([]model.WatchlistEntry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, model.WatchlistEntry{Code: code})
	}
	return entries, s.err
}
func (s *stubFundService) GetHistory(ctx context.Context, code string, limit int) ([]model.FundHistoryPoint, error) {
	return nil, s.err
}
func (s *stubFundService) GetIntraday(ctx context.Context, code, date string) (model.IntradaySeries, error) {
	return model.IntradaySeries{Date: date}, s.err
}
func (s *stubFundService) GetCategories(ctx context.Context) (map[string]int, error) {
	return map[string]int{"混合型": 2}, s.err
}

type stubAccountService struct {
	lastAccountID int64
	lastAmount    decimal.Decimal
	result        model.TradeResult
	err           error
}

func (s *stubAccountService) GetAccounts(ctx context.Context) ([]model.Account, error) {
	return []model.Account{{ID: 1, Name: "默认账户"}}, s.err
}
func (s *stubAccountService) CreateAccount(ctx context.Context, name, description string) (int64, error) {
	return 2, s.err
}
func (s *stubAccountService) UpdateAccount(ctx context.Context, accountID int64, name, description string) error {
	return s.err
}
func (s *stubAccountService) DeleteAccount(ctx context.Context, accountID int64) error {
	return s.err
}
func (s *stubAccountService) GetPositionsReport(ctx context.Context, accountID int64) (model.PositionsReport, error) {
	s.lastAccountID = accountID
	return model.PositionsReport{}, s.err
}
func (s *stubAccountService) AddLot(ctx context.Context, accountID int64, code string, amount decimal.Decimal) (model.TradeResult, error) {
	s.lastAccountID = accountID
	s.lastAmount = amount
	return s.result, s.err
}
func (s *stubAccountService) ReduceLot(ctx context.Context, accountID int64, code string, shares decimal.Decimal) (model.TradeResult, error) {
	return s.result, s.err
}
func (s *stubAccountService) SetPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error {
	return s.err
}
func (s *stubAccountService) DeletePosition(ctx context.Context, accountID int64, code string) error {
	return s.err
}
func (s *stubAccountService) GetTransactions(ctx context.Context, accountID int64, code string, limit int) ([]model.Transaction, error) {
	return nil, s.err
}
func (s *stubAccountService) UpdateNavs(ctx context.Context, accountID int64) (int, int, int, error) {
	return 2, 1, 0, s.err
}

type stubResolver struct{}

func (stubResolver) ResolveSession(ctx context.Context, sid string) int64 { return 0 }

func testConfig() *config.Config {
	return &config.Config{
		HTTP:    config.HTTP{MaxBodyBytes: 1 << 20},
		Session: config.Session{CookieName: "session_id", Expiration: time.Hour},
	}
}

func newTestRouter(fund *stubFundService, account *stubAccountService) http.Handler {
	controller := NewController(fund, account, nil, nil, nil, nil, nil)
	return NewRouter(testConfig(), controller, stubResolver{})
}

func TestSearchRequiresQuery(t *testing.T) {
	router := newTestRouter(&stubFundService{}, &stubAccountService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestGetFund(t *testing.T) {
	fund := &stubFundService{valuation: model.Valuation{Code: "000001", Source: "estimate"}}
	router := newTestRouter(fund, &stubAccountService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fund/000001", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"000001"`)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGetFundNotFound(t *testing.T) {
	fund := &stubFundService{err: service.ErrNotFound}
	router := newTestRouter(fund, &stubAccountService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fund/999999", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddLot(t *testing.T) {
	account := &stubAccountService{result: model.TradeResult{OK: true, ConfirmDate: "2026-08-28"}}
	router := newTestRouter(&stubFundService{}, account)

	body := strings.NewReader(`{"amount":"1000"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/account/positions/000001/add?account_id=2", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), account.lastAccountID)
	assert.True(t, account.lastAmount.Equal(decimal.NewFromInt(1000)))
	assert.Contains(t, rec.Body.String(), `"confirm_date":"2026-08-28"`)
}

func TestAddLotDefaultsAccount(t *testing.T) {
	account := &stubAccountService{result: model.TradeResult{OK: true}}
	router := newTestRouter(&stubFundService{}, account)

	req := httptest.NewRequest(http.MethodPost, "/api/account/positions/000001/add", strings.NewReader(`{"amount":"100"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.DefaultAccountID, account.lastAccountID)
}

func TestAddLotBadAccountID(t *testing.T) {
	router := newTestRouter(&stubFundService{}, &stubAccountService{})

	req := httptest.NewRequest(http.MethodPost, "/api/account/positions/000001/add?account_id=-1", strings.NewReader(`{"amount":"100"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddLotForbiddenMapsTo403(t *testing.T) {
	account := &stubAccountService{err: service.ErrForbidden}
	router := newTestRouter(&stubFundService{}, account)

	req := httptest.NewRequest(http.MethodPost, "/api/account/positions/000001/add?account_id=0", strings.NewReader(`{"amount":"100"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAggregatePositionsRoute(t *testing.T) {
	account := &stubAccountService{lastAccountID: -1}
	router := newTestRouter(&stubFundService{}, account)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/aggregate", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.AggregateAccountID, account.lastAccountID)
}

func TestWatchlistEndpoint(t *testing.T) {
	router := newTestRouter(&stubFundService{}, &stubAccountService{})

	req := httptest.NewRequest(http.MethodPost, "/api/watchlist", strings.NewReader(`{"codes":["000001","000002"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "000002")
}

func TestInternalErrorsStayGeneric(t *testing.T) {
	fund := &stubFundService{err: assert.AnError}
	router := newTestRouter(fund, &stubAccountService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fund/000001", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
