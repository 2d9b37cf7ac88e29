package fundService

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi/eastmoneyApi"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/model/eastmoneyModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

const (
	historyFetchLimit = 60

	// upstream fan-out cap for uncached valuation fetches
	maxValuationWorkers = 8
)

type EastmoneyApi interface {
	Search(ctx context.Context, key string) ([]model.FundSearchResult, error)
	GetEstimate(ctx context.Context, code string) (eastmoneyModel.Estimate, error)
	GetQuote(ctx context.Context, code string) (eastmoneyModel.Quote, error)
	GetHistory(ctx context.Context, code string, limit int) ([]eastmoneyModel.HistoryPoint, error)
}

type Cache interface {
	GetValuation(ctx context.Context, code string) (model.Valuation, error)
	SetValuation(ctx context.Context, valuation model.Valuation) error
	SetValuations(ctx context.Context, valuations []model.Valuation) error
}

type Repository interface {
	UpsertFunds(ctx context.Context, funds []model.FundSearchResult) error
	GetFund(ctx context.Context, code string) (model.FundSearchResult, error)
	UpsertFundHistory(ctx context.Context, code string, points []model.FundHistoryPoint) error
	GetFundHistory(ctx context.Context, code string, limit int) ([]model.FundHistoryPoint, error)
	GetLatestNavDate(ctx context.Context, code string) (string, error)
	GetFundTypes(ctx context.Context) (map[string]int, error)
	GetPrevNav(ctx context.Context, code, date string) (*decimal.Decimal, error)
	InsertIntradaySnapshot(ctx context.Context, snapshot dbModel.IntradaySnapshot) error
	GetIntradaySnapshots(ctx context.Context, code, date string) ([]model.IntradaySnapshot, error)
}

type FundService struct {
	repo    Repository
	cache   Cache
	emApi   EastmoneyApi
}

func New(repo Repository, cache Cache, emApi EastmoneyApi) *FundService {
	return &FundService{
		repo:  repo,
		cache: cache,
		emApi: emApi,
	}
}

// SearchFunds queries the upstream search api and feeds every hit into the
// local fund index so later lookups resolve names without the network.
func (s *FundService) SearchFunds(ctx context.Context, key string) ([]model.FundSearchResult, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.SearchFunds"

	slog.Debug("SearchFunds start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))
	defer func() {
		slog.Debug("SearchFunds finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	results, err := s.emApi.Search(ctx, key)
	if err != nil {
		slog.Error("got error from emApi.Search", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	if len(results) > 0 {
		if err = s.repo.UpsertFunds(ctx, results); err != nil {
			slog.Error("got error from repo.UpsertFunds", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	return results, nil
}

// GetValuation resolves the freshest picture for one fund: cached value if
// present, realtime exchange quote for listed codes, fundgz estimate
// otherwise, confirmed NAV from local history as the last resort.
func (s *FundService) GetValuation(ctx context.Context, code string) (model.Valuation, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.GetValuation"

	slog.Debug("GetValuation start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
	defer func() {
		slog.Debug("GetValuation finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if valuation, err := s.cache.GetValuation(ctx, code); err == nil {
		return valuation, nil
	}

	valuation, err := s.fetchValuation(ctx, code)
	if err != nil {
		return model.Valuation{}, err
	}

	if err = s.cache.SetValuation(ctx, valuation); err != nil {
		slog.Error("got error from cache.SetValuation", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	return valuation, nil
}

// GetValuations resolves many codes, skipping the ones that fail upstream so
// one dead fund never blanks the whole watchlist.
func (s *FundService) GetValuations(ctx context.Context, codes []string) (map[string]model.Valuation, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.GetValuations"

	slog.Debug("GetValuations start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("codes", len(codes)))
	defer func() {
		slog.Debug("GetValuations finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	valuations := make(map[string]model.Valuation, len(codes))
	var fresh []model.Valuation

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxValuationWorkers)
	)

	for _, code := range codes {
		if valuation, err := s.cache.GetValuation(ctx, code); err == nil {
			valuations[code] = valuation
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(code string) {
			defer wg.Done()
			defer func() { <-sem }()

			valuation, err := s.fetchValuation(ctx, code)
			if err != nil {
				slog.Warn("skip fund without valuation", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
				return
			}

			mu.Lock()
			valuations[code] = valuation
			fresh = append(fresh, valuation)
			mu.Unlock()
		}(code)
	}
	wg.Wait()

	if len(fresh) > 0 {
		if err := s.cache.SetValuations(ctx, fresh); err != nil {
			slog.Error("got error from cache.SetValuations", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	return valuations, nil
}

// GetWatchlist merges fund index metadata with live valuations, keeping the
// order of the requested codes.
func (s *FundService) GetWatchlist(ctx context.Context, codes []string) ([]model.WatchlistEntry, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.GetWatchlist"

	slog.Debug("GetWatchlist start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("codes", len(codes)))
	defer func() {
		slog.Debug("GetWatchlist finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	valuations, err := s.GetValuations(ctx, codes)
	if err != nil {
		return nil, err
	}

	entries := make([]model.WatchlistEntry, 0, len(codes))
	for _, code := range codes {
		entry := model.WatchlistEntry{Code: code}

		if fund, err := s.repo.GetFund(ctx, code); err == nil {
			entry.Name = fund.Name
			entry.Type = fund.Type
		}

		if valuation, ok := valuations[code]; ok {
			v := valuation
			entry.Valuation = &v
			if entry.Name == "" {
				entry.Name = valuation.Name
			}
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// GetHistory serves NAV history from the local table, pulling from upstream
// when the table has no rows for the code yet.
func (s *FundService) GetHistory(ctx context.Context, code string, limit int) ([]model.FundHistoryPoint, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.GetHistory"

	slog.Debug("GetHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
	defer func() {
		slog.Debug("GetHistory finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	points, err := s.repo.GetFundHistory(ctx, code, limit)
	if err != nil {
		slog.Error("got error from repo.GetFundHistory", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	if len(points) > 0 {
		return points, nil
	}

	if err = s.RefreshHistory(ctx, code); err != nil {
		if errors.Is(err, externalApi.ErrNotFound) {
			return nil, service.ErrNotFound
		}
		return nil, err
	}

	return s.repo.GetFundHistory(ctx, code, limit)
}

// RefreshHistory pulls the recent published NAV rows from upstream into the
// local history table.
func (s *FundService) RefreshHistory(ctx context.Context, code string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.RefreshHistory"

	slog.Debug("RefreshHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
	defer func() {
		slog.Debug("RefreshHistory finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	rawPoints, err := s.emApi.GetHistory(ctx, code, historyFetchLimit)
	if err != nil {
		slog.Error("got error from emApi.GetHistory", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	points := make([]model.FundHistoryPoint, 0, len(rawPoints))
	for _, p := range rawPoints {
		points = append(points, model.FundHistoryPoint{Date: p.Date, Nav: p.Nav})
	}

	if err = s.repo.UpsertFundHistory(ctx, code, points); err != nil {
		slog.Error("got error from repo.UpsertFundHistory", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// GetIntraday returns the day's estimate curve plus the previous confirmed
// NAV used as the chart baseline.
func (s *FundService) GetIntraday(ctx context.Context, code, date string) (model.IntradaySeries, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.GetIntraday"

	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	slog.Debug("GetIntraday start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code), slog.String("date", date))
	defer func() {
		slog.Debug("GetIntraday finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	snapshots, err := s.repo.GetIntradaySnapshots(ctx, code, date)
	if err != nil {
		slog.Error("got error from repo.GetIntradaySnapshots", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.IntradaySeries{}, err
	}

	prevNav, err := s.repo.GetPrevNav(ctx, code, date)
	if err != nil {
		slog.Error("got error from repo.GetPrevNav", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.IntradaySeries{}, err
	}

	series := model.IntradaySeries{
		Date:      date,
		PrevNav:   prevNav,
		Snapshots: snapshots,
	}
	if len(snapshots) > 0 {
		series.LastCollectedAt = snapshots[len(snapshots)-1].Time
	}

	return series, nil
}

// CollectIntraday stores one estimate sample per code. Called from the
// scheduler during trading hours.
func (s *FundService) CollectIntraday(ctx context.Context, codes []string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.CollectIntraday"

	slog.Debug("CollectIntraday start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("codes", len(codes)))
	defer func() {
		slog.Debug("CollectIntraday finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	date := time.Now().Format("2006-01-02")
	now := time.Now().Format("15:04")

	for _, code := range codes {
		estimate, err := s.emApi.GetEstimate(ctx, code)
		if err != nil {
			slog.Warn("skip fund without estimate", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
			continue
		}
		if estimate.Estimate.IsZero() {
			continue
		}

		snapshot := dbModel.IntradaySnapshot{
			FundCode: code,
			Date:     date,
			Time:     now,
			Estimate: estimate.Estimate,
		}
		if err = s.repo.InsertIntradaySnapshot(ctx, snapshot); err != nil {
			slog.Error("got error from repo.InsertIntradaySnapshot", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	return nil
}

// majorCategories folds the long tail of upstream fund type labels into the
// buckets the dashboard filters on.
var majorCategories = []struct {
	keyword  string
	category string
}{
	{"货币", "货币型"},
	{"债券", "债券型"},
	{"指数", "指数型"},
	{"股票", "股票型"},
	{"混合", "混合型"},
	{"QDII", "QDII"},
	{"FOF", "FOF"},
}

// GetCategories folds the distinct fund types in the index into major
// categories with fund counts.
func (s *FundService) GetCategories(ctx context.Context) (map[string]int, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.GetCategories"

	slog.Debug("GetCategories start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("GetCategories finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	types, err := s.repo.GetFundTypes(ctx)
	if err != nil {
		slog.Error("got error from repo.GetFundTypes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	categories := make(map[string]int)
	for fundType, count := range types {
		categories[foldCategory(fundType)] += count
	}

	return categories, nil
}

func foldCategory(fundType string) string {
	for _, c := range majorCategories {
		if strings.Contains(fundType, c.keyword) {
			return c.category
		}
	}
	return "其他"
}

func (s *FundService) fetchValuation(ctx context.Context, code string) (model.Valuation, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "FundService.fetchValuation"

	estimate, estErr := s.emApi.GetEstimate(ctx, code)

	if eastmoneyApi.IsListedFund(code) {
		quote, err := s.emApi.GetQuote(ctx, code)
		if err == nil {
			valuation := model.Valuation{
				Code:       code,
				Name:       quote.Name,
				Estimate:   quote.Price,
				EstRate:    quote.ChangeRate,
				Source:     "realtime",
				UpdateTime: time.Now().Format("2006-01-02 15:04:05"),
			}
			if estErr == nil {
				valuation.Nav = estimate.Nav
				valuation.NavDate = estimate.NavDate
				if !estimate.Estimate.IsZero() {
					premium := quote.Price.Sub(estimate.Estimate).
						Div(estimate.Estimate).
						Mul(decimal.NewFromInt(100)).
						Round(2)
					valuation.PremiumRate = premium.String() + "%"
				}
			}
			return valuation, nil
		}
		slog.Warn("no realtime quote, falling back to estimate", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
	}

	if estErr == nil {
		source := "estimate"
		if estimate.Estimate.IsZero() {
			// NAV-only funds (QDII and money market) have no intraday curve.
			source = "confirmed"
			estimate.Estimate = estimate.Nav
		}
		return model.Valuation{
			Code:       code,
			Name:       estimate.Name,
			Nav:        estimate.Nav,
			NavDate:    estimate.NavDate,
			Estimate:   estimate.Estimate,
			EstRate:    estimate.EstRate,
			Source:     source,
			UpdateTime: estimate.Time,
		}, nil
	}

	// Upstream is down or the code is unknown there: fall back to the last
	// confirmed NAV we persisted ourselves.
	date, err := s.repo.GetLatestNavDate(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Valuation{}, service.ErrNotFound
		}
		return model.Valuation{}, err
	}

	points, err := s.repo.GetFundHistory(ctx, code, 1)
	if err != nil || len(points) == 0 {
		return model.Valuation{}, service.ErrNotFound
	}

	valuation := model.Valuation{
		Code:       code,
		Nav:        points[len(points)-1].Nav,
		NavDate:    date,
		Estimate:   points[len(points)-1].Nav,
		Source:     "confirmed",
		UpdateTime: date,
	}
	if fund, err := s.repo.GetFund(ctx, code); err == nil {
		valuation.Name = fund.Name
	}

	return valuation, nil
}
