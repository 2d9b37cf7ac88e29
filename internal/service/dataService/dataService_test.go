package dataService

import (
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

type fakeDataRepo struct {
	accounts  []model.Account
	positions []dbModel.Position
	settings  []dbModel.Setting

	calls []string
}

func (r *fakeDataRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	r.calls = append(r.calls, "txBegin")
	return tFunc(ctx)
}

func (r *fakeDataRepo) GetAccounts(ctx context.Context) ([]model.Account, error) {
	return r.accounts, nil
}

func (r *fakeDataRepo) UpsertAccount(ctx context.Context, accountID int64, name, description string) error {
	r.calls = append(r.calls, "upsertAccount")
	return nil
}

func (r *fakeDataRepo) DeleteAllAccounts(ctx context.Context) error {
	r.calls = append(r.calls, "deleteAccounts")
	return nil
}

func (r *fakeDataRepo) GetPositionsAllAccounts(ctx context.Context) ([]dbModel.Position, error) {
	return r.positions, nil
}

func (r *fakeDataRepo) UpsertPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error {
	r.calls = append(r.calls, "upsertPosition")
	return nil
}

func (r *fakeDataRepo) DeleteAllPositions(ctx context.Context) error {
	r.calls = append(r.calls, "deletePositions")
	return nil
}

func (r *fakeDataRepo) GetTransactions(ctx context.Context, accountID int64, code string, limit int) ([]dbModel.Transaction, error) {
	return nil, nil
}

func (r *fakeDataRepo) InsertTransaction(ctx context.Context, trx dbModel.Transaction) (int64, error) {
	r.calls = append(r.calls, "insertTransaction")
	return 1, nil
}

func (r *fakeDataRepo) DeleteAllTransactions(ctx context.Context) error {
	r.calls = append(r.calls, "deleteTransactions")
	return nil
}

func (r *fakeDataRepo) GetPrompts(ctx context.Context) ([]dbModel.Prompt, error) {
	return nil, nil
}

func (r *fakeDataRepo) CreatePrompt(ctx context.Context, name, systemPrompt, userPrompt string, isDefault bool) (int64, error) {
	r.calls = append(r.calls, "createPrompt")
	return 1, nil
}

func (r *fakeDataRepo) DeleteAllPrompts(ctx context.Context) error {
	r.calls = append(r.calls, "deletePrompts")
	return nil
}

func (r *fakeDataRepo) GetSubscriptions(ctx context.Context) ([]dbModel.Subscription, error) {
	return nil, nil
}

func (r *fakeDataRepo) CreateSubscription(ctx context.Context, sub dbModel.Subscription) (int64, error) {
	r.calls = append(r.calls, "createSubscription")
	return 1, nil
}

func (r *fakeDataRepo) GetSettings(ctx context.Context, userID sql.NullInt64) ([]dbModel.Setting, error) {
	return r.settings, nil
}

func (r *fakeDataRepo) UpsertSetting(ctx context.Context, key, value string, encrypted bool, userID sql.NullInt64) error {
	r.calls = append(r.calls, "upsertSetting")
	return nil
}

func (r *fakeDataRepo) DeleteAllSettings(ctx context.Context) error {
	r.calls = append(r.calls, "deleteSettings")
	return nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, export model.Export) ([]byte, string, error) {
	return []byte("workbook"), "xlsx", nil
}

type recordingStorage struct {
	uploaded []string
	pruned   bool
}

func (s *recordingStorage) UploadFile(ctx context.Context, reader io.Reader, filename string) (string, error) {
	s.uploaded = append(s.uploaded, filename)
	return "https://drive.example/" + filename, nil
}

func (s *recordingStorage) DeleteOldFiles(ctx context.Context) error {
	s.pruned = true
	return nil
}

func TestExportUnknownModule(t *testing.T) {
	srv := New(&fakeDataRepo{}, fakeGenerator{}, nil)

	_, err := srv.Export(context.Background(), []string{"accounts", "bogus"})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestExportDefaultsToAllModules(t *testing.T) {
	repo := &fakeDataRepo{
		accounts: []model.Account{{ID: 1, Name: "Default"}},
		positions: []dbModel.Position{
			{AccountID: 1, Code: "000001", Cost: decimal.RequireFromString("1.2"), Shares: decimal.RequireFromString("100")},
		},
	}
	srv := New(repo, fakeGenerator{}, nil)

	export, err := srv.Export(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "1", export.Version)
	assert.Len(t, export.Accounts, 1)
	require.Len(t, export.Positions, 1)
	assert.Equal(t, "000001", export.Positions[0].Code)
}

func TestExportExcludesEncryptedSettings(t *testing.T) {
	repo := &fakeDataRepo{settings: []dbModel.Setting{
		{Key: "ai.model", Value: "gpt-4o-mini"},
		{Key: "ai.api_key", Value: "sk-secret", Encrypted: true},
	}}
	srv := New(repo, fakeGenerator{}, nil)

	export, err := srv.Export(context.Background(), []string{model.ModuleSettings})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", export.Settings["ai.model"])
	_, leaked := export.Settings["ai.api_key"]
	assert.False(t, leaked, "encrypted settings must never be exported")
}

func TestImportRejectsUnknownMode(t *testing.T) {
	srv := New(&fakeDataRepo{}, fakeGenerator{}, nil)

	err := srv.Import(context.Background(), model.Export{}, "overwrite")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestImportReplaceDeletesChildRowsFirst(t *testing.T) {
	repo := &fakeDataRepo{}
	srv := New(repo, fakeGenerator{}, nil)

	export := model.Export{
		Accounts: []model.Account{{ID: 1, Name: "Default"}},
		Positions: []model.ExportPosition{
			{AccountID: 1, Code: "000001", Cost: decimal.RequireFromString("1.2"), Shares: decimal.RequireFromString("100")},
		},
		Transactions: []model.Transaction{{AccountID: 1, Code: "000001", OpType: "add"}},
	}

	require.NoError(t, srv.Import(context.Background(), export, model.ImportModeReplace))

	assert.Equal(t, []string{
		"txBegin",
		"deleteTransactions",
		"deletePositions",
		"deleteAccounts",
		"upsertAccount",
		"upsertPosition",
		"insertTransaction",
	}, repo.calls)
}

func TestImportMergeSkipsDeletes(t *testing.T) {
	repo := &fakeDataRepo{}
	srv := New(repo, fakeGenerator{}, nil)

	export := model.Export{
		Accounts: []model.Account{{ID: 2, Name: "Broker"}},
	}

	require.NoError(t, srv.Import(context.Background(), export, model.ImportModeMerge))

	assert.Equal(t, []string{"txBegin", "upsertAccount"}, repo.calls)
}

func TestBackupToDriveNilStorage(t *testing.T) {
	srv := New(&fakeDataRepo{}, fakeGenerator{}, nil)

	assert.NoError(t, srv.BackupToDrive(context.Background()))
}

func TestBackupToDriveUploadsAndPrunes(t *testing.T) {
	storage := &recordingStorage{}
	srv := New(&fakeDataRepo{}, fakeGenerator{}, storage)

	require.NoError(t, srv.BackupToDrive(context.Background()))

	require.Len(t, storage.uploaded, 1)
	assert.Contains(t, storage.uploaded[0], "fundval_backup_")
	assert.True(t, storage.pruned)
}
