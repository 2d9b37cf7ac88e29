package accountService

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/converter/dbConverter"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

const (
	// Purchases placed before the exchange cutoff confirm against the same
	// day's NAV, later ones against the next trading day's.
	tradeCutoffHour = 15

	sharePrecision = 4
	moneyPrecision = 2
)

var fundCodeRe = regexp.MustCompile(`^\d{6}$`)

// estValidityThreshold rejects estimates drifting more than 10% off the NAV,
// which upstream occasionally publishes for stale funds.
var estValidityThreshold = decimal.NewFromInt(10)

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error

	GetAccounts(ctx context.Context) ([]model.Account, error)
	CreateAccount(ctx context.Context, name, description string) (int64, error)
	UpdateAccount(ctx context.Context, accountID int64, name, description string) error
	DeleteAccount(ctx context.Context, accountID int64) error
	CountPositions(ctx context.Context, accountID int64) (int, error)

	GetPositions(ctx context.Context, accountID int64) ([]dbModel.Position, error)
	GetPositionsAllAccounts(ctx context.Context) ([]dbModel.Position, error)
	GetPosition(ctx context.Context, accountID int64, code string) (dbModel.Position, error)
	UpsertPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error
	DeletePosition(ctx context.Context, accountID int64, code string) error
	GetHeldCodes(ctx context.Context, accountID int64) ([]string, error)

	InsertTransaction(ctx context.Context, trx dbModel.Transaction) (int64, error)
	ConfirmTransaction(ctx context.Context, trxID int64, confirmNav, sharesAdded, amountCny, costAfter *decimal.Decimal) error
	GetTransactions(ctx context.Context, accountID int64, code string, limit int) ([]dbModel.Transaction, error)
	GetPendingTransactions(ctx context.Context) ([]dbModel.Transaction, error)

	GetNavByDate(ctx context.Context, code, date string) (decimal.Decimal, error)
	GetPrevNav(ctx context.Context, code, date string) (*decimal.Decimal, error)
	GetFund(ctx context.Context, code string) (model.FundSearchResult, error)
}

type FundService interface {
	GetValuations(ctx context.Context, codes []string) (map[string]model.Valuation, error)
	RefreshHistory(ctx context.Context, code string) error
}

type AccountService struct {
	repo        Repository
	fundService FundService
	now         func() time.Time
}

func New(repo Repository, fundService FundService) *AccountService {
	return &AccountService{
		repo:        repo,
		fundService: fundService,
		now:         time.Now,
	}
}

func (s *AccountService) GetAccounts(ctx context.Context) ([]model.Account, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.GetAccounts"

	slog.Debug("GetAccounts start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("GetAccounts finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	accounts, err := s.repo.GetAccounts(ctx)
	if err != nil {
		slog.Error("got error from repo.GetAccounts", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return accounts, nil
}

func (s *AccountService) CreateAccount(ctx context.Context, name, description string) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.CreateAccount"

	slog.Debug("CreateAccount start", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name))
	defer func() {
		slog.Debug("CreateAccount finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if name == "" {
		return 0, service.ErrValidation
	}

	accountID, err := s.repo.CreateAccount(ctx, name, description)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return 0, service.ErrAlreadyExists
		}
		slog.Error("got error from repo.CreateAccount", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return accountID, nil
}

func (s *AccountService) UpdateAccount(ctx context.Context, accountID int64, name, description string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.UpdateAccount"

	slog.Debug("UpdateAccount start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID))
	defer func() {
		slog.Debug("UpdateAccount finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if name == "" {
		return service.ErrValidation
	}
	if accountID == model.AggregateAccountID {
		return service.ErrForbidden
	}

	err := s.repo.UpdateAccount(ctx, accountID, name, description)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return service.ErrAlreadyExists
		}
		slog.Error("got error from repo.UpdateAccount", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// DeleteAccount refuses the default account and any account still holding
// positions.
func (s *AccountService) DeleteAccount(ctx context.Context, accountID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.DeleteAccount"

	slog.Debug("DeleteAccount start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID))
	defer func() {
		slog.Debug("DeleteAccount finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if accountID == model.DefaultAccountID || accountID == model.AggregateAccountID {
		return service.ErrForbidden
	}

	count, err := s.repo.CountPositions(ctx, accountID)
	if err != nil {
		slog.Error("got error from repo.CountPositions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}
	if count > 0 {
		return service.ErrValidation
	}

	if err = s.repo.DeleteAccount(ctx, accountID); err != nil {
		slog.Error("got error from repo.DeleteAccount", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// GetPositionsReport builds the enriched holdings view for one account, or
// for the merged virtual account when accountID is the aggregate id. Merged
// positions carry the weighted average cost across accounts.
func (s *AccountService) GetPositionsReport(ctx context.Context, accountID int64) (model.PositionsReport, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.GetPositionsReport"

	slog.Debug("GetPositionsReport start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID))
	defer func() {
		slog.Debug("GetPositionsReport finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	dbPositions, err := s.loadPositions(ctx, accountID)
	if err != nil {
		slog.Error("can't load positions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PositionsReport{}, err
	}

	codes := make([]string, 0, len(dbPositions))
	for _, p := range dbPositions {
		codes = append(codes, p.Code)
	}

	valuations, err := s.fundService.GetValuations(ctx, codes)
	if err != nil {
		slog.Error("got error from fundService.GetValuations", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PositionsReport{}, err
	}

	report := model.PositionsReport{Positions: make([]model.Position, 0, len(dbPositions))}
	today := s.now().Format("2006-01-02")

	for _, dbPos := range dbPositions {
		position := s.enrichPosition(ctx, dbPos, valuations[dbPos.Code], today)
		report.Positions = append(report.Positions, position)

		report.Summary.TotalCost = report.Summary.TotalCost.Add(position.CostBasis)
		report.Summary.TotalMarketValue = report.Summary.TotalMarketValue.Add(position.EstMarketValue)
		report.Summary.TotalDayIncome = report.Summary.TotalDayIncome.Add(position.DayIncome)
		report.Summary.TotalIncome = report.Summary.TotalIncome.Add(position.TotalIncome)
	}

	if report.Summary.TotalCost.IsPositive() {
		report.Summary.TotalReturnRate = report.Summary.TotalIncome.
			Div(report.Summary.TotalCost).
			Mul(decimal.NewFromInt(100)).
			Round(moneyPrecision)
	}

	sort.SliceStable(report.Positions, func(i, j int) bool {
		return report.Positions[i].NavMarketValue.GreaterThan(report.Positions[j].NavMarketValue)
	})

	return report, nil
}

// UpdateNavs refreshes the NAV history of every held fund and reports how
// many funds now carry today's NAV, how many are still waiting for
// publication and how many failed upstream.
func (s *AccountService) UpdateNavs(ctx context.Context, accountID int64) (updated, pending, failed int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.UpdateNavs"

	slog.Debug("UpdateNavs start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID))
	defer func() {
		slog.Debug("UpdateNavs finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	codes, err := s.repo.GetHeldCodes(ctx, accountID)
	if err != nil {
		slog.Error("got error from repo.GetHeldCodes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, 0, 0, err
	}

	today := s.now().Format("2006-01-02")
	for _, code := range codes {
		if err := s.fundService.RefreshHistory(ctx, code); err != nil {
			failed++
			continue
		}
		if _, err := s.repo.GetNavByDate(ctx, code, today); err == nil {
			updated++
		} else {
			pending++
		}
	}

	return updated, pending, failed, nil
}

// AddLot buys into a fund for a fixed CNY amount. The purchase confirms
// against the cutoff-resolved NAV; when that NAV is not published yet the
// trade stays pending and a background job applies it later.
func (s *AccountService) AddLot(ctx context.Context, accountID int64, code string, amount decimal.Decimal) (model.TradeResult, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.AddLot"

	slog.Debug("AddLot start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID), slog.String("code", code))
	defer func() {
		slog.Debug("AddLot finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if err := s.validateTrade(accountID, code); err != nil {
		return model.TradeResult{}, err
	}
	if !amount.IsPositive() {
		return model.TradeResult{}, service.ErrValidation
	}

	confirmDate := s.confirmDate()

	nav, err := s.repo.GetNavByDate(ctx, code, confirmDate)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("got error from repo.GetNavByDate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return model.TradeResult{}, err
		}

		trx := dbModel.Transaction{
			AccountID:   accountID,
			Code:        code,
			OpType:      model.OpTypeAdd,
			AmountCny:   &amount,
			ConfirmDate: confirmDate,
		}
		if _, err = s.repo.InsertTransaction(ctx, trx); err != nil {
			slog.Error("got error from repo.InsertTransaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return model.TradeResult{}, err
		}

		return model.TradeResult{
			OK:          true,
			Pending:     true,
			ConfirmDate: confirmDate,
			Message:     "NAV for " + confirmDate + " is not published yet, trade will confirm automatically",
		}, nil
	}

	var result model.TradeResult
	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		result, err = s.applyAdd(ctx, accountID, code, amount, confirmDate, nav, 0)
		return err
	})
	if err != nil {
		slog.Error("add trade failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.TradeResult{}, err
	}

	return result, nil
}

// ReduceLot redeems a share count from a position. Reducing never changes the
// unit cost of what remains.
func (s *AccountService) ReduceLot(ctx context.Context, accountID int64, code string, shares decimal.Decimal) (model.TradeResult, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.ReduceLot"

	slog.Debug("ReduceLot start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID), slog.String("code", code))
	defer func() {
		slog.Debug("ReduceLot finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if err := s.validateTrade(accountID, code); err != nil {
		return model.TradeResult{}, err
	}
	if !shares.IsPositive() {
		return model.TradeResult{}, service.ErrValidation
	}

	position, err := s.repo.GetPosition(ctx, accountID, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.TradeResult{}, service.ErrNotFound
		}
		return model.TradeResult{}, err
	}
	if shares.GreaterThan(position.Shares) {
		return model.TradeResult{}, service.ErrValidation
	}

	confirmDate := s.confirmDate()

	nav, err := s.repo.GetNavByDate(ctx, code, confirmDate)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("got error from repo.GetNavByDate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return model.TradeResult{}, err
		}

		trx := dbModel.Transaction{
			AccountID:      accountID,
			Code:           code,
			OpType:         model.OpTypeReduce,
			SharesRedeemed: &shares,
			ConfirmDate:    confirmDate,
		}
		if _, err = s.repo.InsertTransaction(ctx, trx); err != nil {
			slog.Error("got error from repo.InsertTransaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return model.TradeResult{}, err
		}

		return model.TradeResult{
			OK:          true,
			Pending:     true,
			ConfirmDate: confirmDate,
			Message:     "NAV for " + confirmDate + " is not published yet, trade will confirm automatically",
		}, nil
	}

	var result model.TradeResult
	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		result, err = s.applyReduce(ctx, accountID, code, shares, confirmDate, nav, 0)
		return err
	})
	if err != nil {
		slog.Error("reduce trade failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.TradeResult{}, err
	}

	return result, nil
}

// SetPosition overwrites cost and shares directly, bypassing trade flow. Used
// for imports and manual corrections.
func (s *AccountService) SetPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.SetPosition"

	slog.Debug("SetPosition start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID), slog.String("code", code))
	defer func() {
		slog.Debug("SetPosition finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if err := s.validateTrade(accountID, code); err != nil {
		return err
	}
	if cost.IsNegative() || shares.IsNegative() {
		return service.ErrValidation
	}

	if err := s.repo.UpsertPosition(ctx, accountID, code, cost, shares); err != nil {
		slog.Error("got error from repo.UpsertPosition", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (s *AccountService) DeletePosition(ctx context.Context, accountID int64, code string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.DeletePosition"

	slog.Debug("DeletePosition start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID), slog.String("code", code))
	defer func() {
		slog.Debug("DeletePosition finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if err := s.validateTrade(accountID, code); err != nil {
		return err
	}

	if err := s.repo.DeletePosition(ctx, accountID, code); err != nil {
		slog.Error("got error from repo.DeletePosition", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (s *AccountService) GetTransactions(ctx context.Context, accountID int64, code string, limit int) ([]model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.GetTransactions"

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("accountID", accountID))
	defer func() {
		slog.Debug("GetTransactions finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if limit <= 0 {
		limit = 50
	}

	dbTrxs, err := s.repo.GetTransactions(ctx, accountID, code, limit)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	transactions := make([]model.Transaction, 0, len(dbTrxs))
	for _, trx := range dbTrxs {
		transactions = append(transactions, dbConverter.ConvertTransaction(trx))
	}

	return transactions, nil
}

// GetHeldCodes lists distinct fund codes with live shares, account-scoped or
// global for the aggregate id.
func (s *AccountService) GetHeldCodes(ctx context.Context, accountID int64) ([]string, error) {
	return s.repo.GetHeldCodes(ctx, accountID)
}

// ConfirmPendingTrades applies every pending trade whose confirm-date NAV has
// been published since. Called from the scheduler.
func (s *AccountService) ConfirmPendingTrades(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AccountService.ConfirmPendingTrades"

	slog.Debug("ConfirmPendingTrades start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("ConfirmPendingTrades finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	pending, err := s.repo.GetPendingTransactions(ctx)
	if err != nil {
		slog.Error("got error from repo.GetPendingTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	confirmed := 0
	for _, trx := range pending {
		nav, err := s.repo.GetNavByDate(ctx, trx.Code, trx.ConfirmDate)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				slog.Error("got error from repo.GetNavByDate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			}
			continue
		}

		trx := trx
		err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
			switch trx.OpType {
			case model.OpTypeAdd:
				_, err := s.applyAdd(ctx, trx.AccountID, trx.Code, *trx.AmountCny, trx.ConfirmDate, nav, trx.ID)
				return err
			case model.OpTypeReduce:
				_, err := s.applyReduce(ctx, trx.AccountID, trx.Code, *trx.SharesRedeemed, trx.ConfirmDate, nav, trx.ID)
				return err
			}
			return nil
		})
		if err != nil {
			slog.Error("can't confirm pending trade", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("trxID", trx.ID), slog.String("err", err.Error()))
			continue
		}
		confirmed++
	}

	if confirmed > 0 {
		slog.Info("pending trades confirmed", slog.String("rqID", rqID), slog.Int("confirmed", confirmed))
	}

	return nil
}

func (s *AccountService) validateTrade(accountID int64, code string) error {
	if accountID == model.AggregateAccountID {
		return service.ErrForbidden
	}
	if !fundCodeRe.MatchString(code) {
		return service.ErrValidation
	}
	return nil
}

// confirmDate resolves the trading day a trade placed now confirms against:
// same day before the cutoff, next trading day after it, weekends roll
// forward.
func (s *AccountService) confirmDate() string {
	t := s.now()
	if t.Hour() >= tradeCutoffHour {
		t = t.AddDate(0, 0, 1)
	}
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t.Format("2006-01-02")
}

// applyAdd books an amount purchase at the given NAV. Runs inside a
// transaction. trxID > 0 means an existing pending row is being confirmed
// instead of a new one inserted.
func (s *AccountService) applyAdd(ctx context.Context, accountID int64, code string, amount decimal.Decimal, confirmDate string, nav decimal.Decimal, trxID int64) (model.TradeResult, error) {
	sharesAdded := amount.Div(nav).Round(sharePrecision)
	if !sharesAdded.IsPositive() {
		// amount below the smallest share unit at this NAV
		return model.TradeResult{}, service.ErrValidation
	}

	position, err := s.repo.GetPosition(ctx, accountID, code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.TradeResult{}, err
	}

	newShares := position.Shares.Add(sharesAdded)
	costBasis := position.Cost.Mul(position.Shares).Add(amount)
	newCost := costBasis.Div(newShares).Round(sharePrecision)

	if err = s.repo.UpsertPosition(ctx, accountID, code, newCost, newShares); err != nil {
		return model.TradeResult{}, err
	}

	if trxID > 0 {
		if err = s.repo.ConfirmTransaction(ctx, trxID, &nav, &sharesAdded, nil, &newCost); err != nil {
			return model.TradeResult{}, err
		}
	} else {
		trx := dbModel.Transaction{
			AccountID:   accountID,
			Code:        code,
			OpType:      model.OpTypeAdd,
			AmountCny:   &amount,
			ConfirmDate: confirmDate,
			ConfirmNav:  &nav,
			SharesAdded: &sharesAdded,
			CostAfter:   &newCost,
			AppliedAt:   sql.NullTime{Time: s.now(), Valid: true},
		}
		if _, err = s.repo.InsertTransaction(ctx, trx); err != nil {
			return model.TradeResult{}, err
		}
	}

	return model.TradeResult{
		OK:          true,
		ConfirmDate: confirmDate,
		ConfirmNav:  &nav,
		SharesAdded: &sharesAdded,
		AmountCny:   &amount,
		CostAfter:   &newCost,
	}, nil
}

// applyReduce books a share redemption at the given NAV. The remaining
// position keeps its unit cost; redeeming everything clears the row.
func (s *AccountService) applyReduce(ctx context.Context, accountID int64, code string, shares decimal.Decimal, confirmDate string, nav decimal.Decimal, trxID int64) (model.TradeResult, error) {
	position, err := s.repo.GetPosition(ctx, accountID, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.TradeResult{}, service.ErrNotFound
		}
		return model.TradeResult{}, err
	}
	if shares.GreaterThan(position.Shares) {
		return model.TradeResult{}, service.ErrValidation
	}

	amount := shares.Mul(nav).Round(moneyPrecision)
	newShares := position.Shares.Sub(shares)
	newCost := position.Cost

	if newShares.IsZero() {
		if err = s.repo.DeletePosition(ctx, accountID, code); err != nil {
			return model.TradeResult{}, err
		}
	} else {
		if err = s.repo.UpsertPosition(ctx, accountID, code, newCost, newShares); err != nil {
			return model.TradeResult{}, err
		}
	}

	if trxID > 0 {
		if err = s.repo.ConfirmTransaction(ctx, trxID, &nav, &shares, &amount, &newCost); err != nil {
			return model.TradeResult{}, err
		}
	} else {
		trx := dbModel.Transaction{
			AccountID:      accountID,
			Code:           code,
			OpType:         model.OpTypeReduce,
			AmountCny:      &amount,
			SharesRedeemed: &shares,
			ConfirmDate:    confirmDate,
			ConfirmNav:     &nav,
			CostAfter:      &newCost,
			AppliedAt:      sql.NullTime{Time: s.now(), Valid: true},
		}
		if _, err = s.repo.InsertTransaction(ctx, trx); err != nil {
			return model.TradeResult{}, err
		}
	}

	return model.TradeResult{
		OK:          true,
		ConfirmDate: confirmDate,
		ConfirmNav:  &nav,
		AmountCny:   &amount,
		CostAfter:   &newCost,
	}, nil
}

func (s *AccountService) loadPositions(ctx context.Context, accountID int64) ([]dbModel.Position, error) {
	if accountID != model.AggregateAccountID {
		return s.repo.GetPositions(ctx, accountID)
	}

	all, err := s.repo.GetPositionsAllAccounts(ctx)
	if err != nil {
		return nil, err
	}

	return mergePositions(all), nil
}

// mergePositions folds per-account rows into one row per fund code with the
// weighted average cost. Input is ordered by code.
func mergePositions(positions []dbModel.Position) []dbModel.Position {
	merged := make([]dbModel.Position, 0, len(positions))

	for _, p := range positions {
		if n := len(merged); n > 0 && merged[n-1].Code == p.Code {
			last := &merged[n-1]
			totalBasis := last.Cost.Mul(last.Shares).Add(p.Cost.Mul(p.Shares))
			totalShares := last.Shares.Add(p.Shares)
			last.Shares = totalShares
			if totalShares.IsPositive() {
				last.Cost = totalBasis.Div(totalShares).Round(sharePrecision)
			}
			continue
		}
		p.AccountID = model.AggregateAccountID
		merged = append(merged, p)
	}

	return merged
}

// enrichPosition joins a stored position with its live valuation and derives
// the income metrics the dashboard shows.
func (s *AccountService) enrichPosition(ctx context.Context, dbPos dbModel.Position, valuation model.Valuation, today string) model.Position {
	position := model.Position{
		Code:   dbPos.Code,
		Cost:   dbPos.Cost,
		Shares: dbPos.Shares,
	}

	if fund, err := s.repo.GetFund(ctx, dbPos.Code); err == nil {
		position.Name = fund.Name
		position.Type = fund.Type
	}
	if position.Name == "" {
		position.Name = valuation.Name
	}

	position.Nav = valuation.Nav
	position.NavDate = valuation.NavDate
	position.NavUpdatedToday = valuation.NavDate == today
	position.Estimate = valuation.Estimate
	position.EstRate = valuation.EstRate
	position.UpdateTime = valuation.UpdateTime
	position.EstValid = valuation.Source != "confirmed" &&
		!valuation.Estimate.IsZero() &&
		valuation.EstRate.Abs().LessThan(estValidityThreshold)

	position.CostBasis = dbPos.Cost.Mul(dbPos.Shares).Round(moneyPrecision)
	position.NavMarketValue = valuation.Nav.Mul(dbPos.Shares).Round(moneyPrecision)
	if position.EstValid {
		position.EstMarketValue = valuation.Estimate.Mul(dbPos.Shares).Round(moneyPrecision)
	} else {
		position.EstMarketValue = position.NavMarketValue
	}

	position.AccumulatedIncome = position.NavMarketValue.Sub(position.CostBasis)
	if position.CostBasis.IsPositive() {
		position.AccumulatedReturnRate = position.AccumulatedIncome.
			Div(position.CostBasis).
			Mul(decimal.NewFromInt(100)).
			Round(moneyPrecision)
	}

	// Day income: once today's NAV is published it is exact, before that we
	// project from the estimate when the estimate is trustworthy.
	switch {
	case position.NavUpdatedToday:
		if prevNav, err := s.repo.GetPrevNav(ctx, dbPos.Code, valuation.NavDate); err == nil && prevNav != nil {
			position.DayIncome = valuation.Nav.Sub(*prevNav).Mul(dbPos.Shares).Round(moneyPrecision)
		}
	case position.EstValid:
		position.DayIncome = valuation.Estimate.Sub(valuation.Nav).Mul(dbPos.Shares).Round(moneyPrecision)
	}

	position.TotalIncome = position.EstMarketValue.Sub(position.CostBasis)
	if position.CostBasis.IsPositive() {
		position.TotalReturnRate = position.TotalIncome.
			Div(position.CostBasis).
			Mul(decimal.NewFromInt(100)).
			Round(moneyPrecision)
	}

	return position
}
