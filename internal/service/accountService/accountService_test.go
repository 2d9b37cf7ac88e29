package accountService

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

type fakeRepo struct {
	positions    map[string]dbModel.Position
	navs         map[string]decimal.Decimal
	transactions []dbModel.Transaction
	nextTrxID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		positions: make(map[string]dbModel.Position),
		navs:      make(map[string]decimal.Decimal),
	}
}

func posKey(accountID int64, code string) string {
	return code + "@" + decimal.NewFromInt(accountID).String()
}

func (r *fakeRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	return tFunc(ctx)
}

func (r *fakeRepo) GetAccounts(ctx context.Context) ([]model.Account, error) { return nil, nil }
func (r *fakeRepo) CreateAccount(ctx context.Context, name, description string) (int64, error) {
	return 0, nil
}
func (r *fakeRepo) UpdateAccount(ctx context.Context, accountID int64, name, description string) error {
	return nil
}
func (r *fakeRepo) DeleteAccount(ctx context.Context, accountID int64) error { return nil }
func (r *fakeRepo) CountPositions(ctx context.Context, accountID int64) (int, error) {
	return 0, nil
}

func (r *fakeRepo) GetPositions(ctx context.Context, accountID int64) ([]dbModel.Position, error) {
	var out []dbModel.Position
	for _, p := range r.positions {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetPositionsAllAccounts(ctx context.Context) ([]dbModel.Position, error) {
	var out []dbModel.Position
	for _, p := range r.positions {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRepo) GetPosition(ctx context.Context, accountID int64, code string) (dbModel.Position, error) {
	p, ok := r.positions[posKey(accountID, code)]
	if !ok {
		return dbModel.Position{}, repository.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) UpsertPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error {
	r.positions[posKey(accountID, code)] = dbModel.Position{
		AccountID: accountID,
		Code:      code,
		Cost:      cost,
		Shares:    shares,
	}
	return nil
}

func (r *fakeRepo) DeletePosition(ctx context.Context, accountID int64, code string) error {
	delete(r.positions, posKey(accountID, code))
	return nil
}

func (r *fakeRepo) GetHeldCodes(ctx context.Context, accountID int64) ([]string, error) {
	return nil, nil
}

func (r *fakeRepo) InsertTransaction(ctx context.Context, trx dbModel.Transaction) (int64, error) {
	r.nextTrxID++
	trx.ID = r.nextTrxID
	r.transactions = append(r.transactions, trx)
	return trx.ID, nil
}

func (r *fakeRepo) ConfirmTransaction(ctx context.Context, trxID int64, confirmNav, sharesAdded, amountCny, costAfter *decimal.Decimal) error {
	for i := range r.transactions {
		if r.transactions[i].ID == trxID {
			r.transactions[i].ConfirmNav = confirmNav
			r.transactions[i].SharesAdded = sharesAdded
			if amountCny != nil {
				r.transactions[i].AmountCny = amountCny
			}
			r.transactions[i].CostAfter = costAfter
			r.transactions[i].AppliedAt.Valid = true
			r.transactions[i].AppliedAt.Time = time.Now()
		}
	}
	return nil
}

func (r *fakeRepo) GetTransactions(ctx context.Context, accountID int64, code string, limit int) ([]dbModel.Transaction, error) {
	return r.transactions, nil
}

func (r *fakeRepo) GetPendingTransactions(ctx context.Context) ([]dbModel.Transaction, error) {
	var out []dbModel.Transaction
	for _, trx := range r.transactions {
		if !trx.AppliedAt.Valid {
			out = append(out, trx)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetNavByDate(ctx context.Context, code, date string) (decimal.Decimal, error) {
	nav, ok := r.navs[code+"@"+date]
	if !ok {
		return decimal.Decimal{}, repository.ErrNotFound
	}
	return nav, nil
}

func (r *fakeRepo) GetPrevNav(ctx context.Context, code, date string) (*decimal.Decimal, error) {
	return nil, nil
}

func (r *fakeRepo) GetFund(ctx context.Context, code string) (model.FundSearchResult, error) {
	return model.FundSearchResult{}, repository.ErrNotFound
}

type fakeFunds struct{}

func (f fakeFunds) GetValuations(ctx context.Context, codes []string) (map[string]model.Valuation, error) {
	return map[string]model.Valuation{}, nil
}
func (f fakeFunds) RefreshHistory(ctx context.Context, code string) error { return nil }

func newTestService(repo *fakeRepo, now time.Time) *AccountService {
	srv := New(repo, fakeFunds{})
	srv.now = func() time.Time { return now }
	return srv
}

func d(s string) decimal.Decimal {
	out, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return out
}

func TestMergePositions(t *testing.T) {
	merged := mergePositions([]dbModel.Position{
		{AccountID: 1, Code: "000001", Cost: d("1.0"), Shares: d("100")},
		{AccountID: 2, Code: "000001", Cost: d("2.0"), Shares: d("50")},
		{AccountID: 1, Code: "000002", Cost: d("3.0"), Shares: d("10")},
	})

	require.Len(t, merged, 2)

	assert.Equal(t, "000001", merged[0].Code)
	assert.Equal(t, model.AggregateAccountID, merged[0].AccountID)
	assert.True(t, merged[0].Shares.Equal(d("150")))
	// (100*1.0 + 50*2.0) / 150
	assert.True(t, merged[0].Cost.Equal(d("1.3333")), "got %s", merged[0].Cost)

	assert.Equal(t, "000002", merged[1].Code)
	assert.True(t, merged[1].Cost.Equal(d("3.0")))
}

func TestConfirmDate(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{
			name: "weekday before cutoff",
			now:  time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local), // Wednesday
			want: "2026-08-26",
		},
		{
			name: "weekday after cutoff rolls to next day",
			now:  time.Date(2026, 8, 26, 15, 30, 0, 0, time.Local),
			want: "2026-08-27",
		},
		{
			name: "friday after cutoff rolls over weekend",
			now:  time.Date(2026, 8, 28, 16, 0, 0, 0, time.Local), // Friday
			want: "2026-08-31",
		},
		{
			name: "saturday rolls to monday",
			now:  time.Date(2026, 8, 29, 11, 0, 0, 0, time.Local),
			want: "2026-08-31",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestService(newFakeRepo(), tc.now)
			assert.Equal(t, tc.want, srv.confirmDate())
		})
	}
}

func TestAddLotConfirmed(t *testing.T) {
	repo := newFakeRepo()
	repo.navs["000001@2026-08-26"] = d("1.25")
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	result, err := srv.AddLot(context.Background(), 1, "000001", d("1000"))
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.False(t, result.Pending)
	assert.Equal(t, "2026-08-26", result.ConfirmDate)
	assert.True(t, result.SharesAdded.Equal(d("800")))
	assert.True(t, result.CostAfter.Equal(d("1.25")))

	position, err := repo.GetPosition(context.Background(), 1, "000001")
	require.NoError(t, err)
	assert.True(t, position.Shares.Equal(d("800")))

	require.Len(t, repo.transactions, 1)
	assert.Equal(t, model.OpTypeAdd, repo.transactions[0].OpType)
	assert.True(t, repo.transactions[0].AppliedAt.Valid)
}

func TestAddLotAveragesCost(t *testing.T) {
	repo := newFakeRepo()
	repo.navs["000001@2026-08-26"] = d("2.0")
	require.NoError(t, repo.UpsertPosition(context.Background(), 1, "000001", d("1.0"), d("100")))
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	result, err := srv.AddLot(context.Background(), 1, "000001", d("100"))
	require.NoError(t, err)

	// 100 CNY at nav 2.0 adds 50 shares: (1.0*100 + 100) / 150
	assert.True(t, result.SharesAdded.Equal(d("50")))
	assert.True(t, result.CostAfter.Equal(d("1.3333")), "got %s", result.CostAfter)
}

func TestAddLotPendingWhenNavMissing(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	result, err := srv.AddLot(context.Background(), 1, "000001", d("500"))
	require.NoError(t, err)

	assert.True(t, result.Pending)
	assert.Nil(t, result.SharesAdded)

	pending, err := repo.GetPendingTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "2026-08-26", pending[0].ConfirmDate)

	// position untouched until confirmation
	_, err = repo.GetPosition(context.Background(), 1, "000001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAddLotValidation(t *testing.T) {
	srv := newTestService(newFakeRepo(), time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	_, err := srv.AddLot(context.Background(), 1, "abc", d("100"))
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = srv.AddLot(context.Background(), 1, "000001", d("0"))
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = srv.AddLot(context.Background(), model.AggregateAccountID, "000001", d("100"))
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestAddLotAmountBelowShareUnit(t *testing.T) {
	repo := newFakeRepo()
	repo.navs["000001@2026-08-26"] = d("5.0")
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	// 0.0001 / 5.0 rounds to zero shares at the ledger precision
	_, err := srv.AddLot(context.Background(), 1, "000001", d("0.0001"))
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = repo.GetPosition(context.Background(), 1, "000001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, repo.transactions)
}

func TestConfirmPendingTradesSkipsZeroShareAmount(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestService(repo, time.Date(2026, 8, 26, 16, 0, 0, 0, time.Local))

	result, err := srv.AddLot(context.Background(), 1, "000001", d("0.0001"))
	require.NoError(t, err)
	assert.True(t, result.Pending)

	repo.navs["000001@2026-08-27"] = d("5.0")

	require.NoError(t, srv.ConfirmPendingTrades(context.Background()))

	// the trade cannot confirm but the sweep must survive it
	_, err = repo.GetPosition(context.Background(), 1, "000001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	pending, err := repo.GetPendingTransactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestReduceLotKeepsUnitCost(t *testing.T) {
	repo := newFakeRepo()
	repo.navs["000001@2026-08-26"] = d("1.5")
	require.NoError(t, repo.UpsertPosition(context.Background(), 1, "000001", d("1.2"), d("100")))
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	result, err := srv.ReduceLot(context.Background(), 1, "000001", d("40"))
	require.NoError(t, err)

	assert.True(t, result.AmountCny.Equal(d("60")), "got %s", result.AmountCny)
	assert.True(t, result.CostAfter.Equal(d("1.2")))

	position, err := repo.GetPosition(context.Background(), 1, "000001")
	require.NoError(t, err)
	assert.True(t, position.Shares.Equal(d("60")))
	assert.True(t, position.Cost.Equal(d("1.2")))
}

func TestReduceLotToZeroDeletesPosition(t *testing.T) {
	repo := newFakeRepo()
	repo.navs["000001@2026-08-26"] = d("1.5")
	require.NoError(t, repo.UpsertPosition(context.Background(), 1, "000001", d("1.2"), d("100")))
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	_, err := srv.ReduceLot(context.Background(), 1, "000001", d("100"))
	require.NoError(t, err)

	_, err = repo.GetPosition(context.Background(), 1, "000001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReduceLotOverHolding(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.UpsertPosition(context.Background(), 1, "000001", d("1.2"), d("10")))
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	_, err := srv.ReduceLot(context.Background(), 1, "000001", d("11"))
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestReduceLotMissingPosition(t *testing.T) {
	srv := newTestService(newFakeRepo(), time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	_, err := srv.ReduceLot(context.Background(), 1, "000001", d("10"))
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestConfirmPendingTrades(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestService(repo, time.Date(2026, 8, 26, 16, 0, 0, 0, time.Local))

	// after cutoff: confirms against tomorrow
	result, err := srv.AddLot(context.Background(), 1, "000001", d("1000"))
	require.NoError(t, err)
	require.True(t, result.Pending)
	assert.Equal(t, "2026-08-27", result.ConfirmDate)

	// NAV not published yet: nothing applied
	require.NoError(t, srv.ConfirmPendingTrades(context.Background()))
	pending, _ := repo.GetPendingTransactions(context.Background())
	assert.Len(t, pending, 1)

	repo.navs["000001@2026-08-27"] = d("2.5")
	require.NoError(t, srv.ConfirmPendingTrades(context.Background()))

	pending, _ = repo.GetPendingTransactions(context.Background())
	assert.Empty(t, pending)

	position, err := repo.GetPosition(context.Background(), 1, "000001")
	require.NoError(t, err)
	assert.True(t, position.Shares.Equal(d("400")))
	assert.True(t, position.Cost.Equal(d("2.5")))
}

func TestEnrichPosition(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	dbPos := dbModel.Position{Code: "000001", Cost: d("1.0"), Shares: d("100")}
	valuation := model.Valuation{
		Code:     "000001",
		Name:     "Test Fund",
		Nav:      d("1.2"),
		NavDate:  "2026-08-25",
		Estimate: d("1.25"),
		EstRate:  d("4.17"),
		Source:   "estimate",
	}

	position := srv.enrichPosition(context.Background(), dbPos, valuation, "2026-08-26")

	assert.True(t, position.EstValid)
	assert.False(t, position.NavUpdatedToday)
	assert.True(t, position.CostBasis.Equal(d("100")))
	assert.True(t, position.NavMarketValue.Equal(d("120")))
	assert.True(t, position.EstMarketValue.Equal(d("125")))
	assert.True(t, position.AccumulatedIncome.Equal(d("20")))
	assert.True(t, position.AccumulatedReturnRate.Equal(d("20")))
	// estimate-based projection: (1.25 - 1.2) * 100
	assert.True(t, position.DayIncome.Equal(d("5")), "got %s", position.DayIncome)
	assert.True(t, position.TotalIncome.Equal(d("25")))
	assert.True(t, position.TotalReturnRate.Equal(d("25")))
}

func TestEnrichPositionInvalidEstimate(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestService(repo, time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local))

	dbPos := dbModel.Position{Code: "000001", Cost: d("1.0"), Shares: d("100")}
	valuation := model.Valuation{
		Code:     "000001",
		Nav:      d("1.2"),
		NavDate:  "2026-08-25",
		Estimate: d("2.0"),
		EstRate:  d("66.67"), // beyond the trust threshold
		Source:   "estimate",
	}

	position := srv.enrichPosition(context.Background(), dbPos, valuation, "2026-08-26")

	assert.False(t, position.EstValid)
	// est market value falls back to NAV market value
	assert.True(t, position.EstMarketValue.Equal(d("120")))
	assert.True(t, position.DayIncome.IsZero())
}
