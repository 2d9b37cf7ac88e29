package dataService

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/converter/dbConverter"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

const exportVersion = "1"

var allModules = []string{
	model.ModuleAccounts,
	model.ModulePositions,
	model.ModuleTransactions,
	model.ModulePrompts,
	model.ModuleSubscriptions,
	model.ModuleSettings,
}

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error

	GetAccounts(ctx context.Context) ([]model.Account, error)
	UpsertAccount(ctx context.Context, accountID int64, name, description string) error
	DeleteAllAccounts(ctx context.Context) error

	GetPositionsAllAccounts(ctx context.Context) ([]dbModel.Position, error)
	UpsertPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) error
	DeleteAllPositions(ctx context.Context) error

	GetTransactions(ctx context.Context, accountID int64, code string, limit int) ([]dbModel.Transaction, error)
	InsertTransaction(ctx context.Context, trx dbModel.Transaction) (int64, error)
	DeleteAllTransactions(ctx context.Context) error

	GetPrompts(ctx context.Context) ([]dbModel.Prompt, error)
	CreatePrompt(ctx context.Context, name, systemPrompt, userPrompt string, isDefault bool) (int64, error)
	DeleteAllPrompts(ctx context.Context) error

	GetSubscriptions(ctx context.Context) ([]dbModel.Subscription, error)
	CreateSubscription(ctx context.Context, sub dbModel.Subscription) (int64, error)

	GetSettings(ctx context.Context, userID sql.NullInt64) ([]dbModel.Setting, error)
	UpsertSetting(ctx context.Context, key, value string, encrypted bool, userID sql.NullInt64) error
	DeleteAllSettings(ctx context.Context) error
}

type ReportGenerator interface {
	Generate(ctx context.Context, export model.Export) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
	DeleteOldFiles(ctx context.Context) error
}

type DataService struct {
	repo            Repository
	reportGenerator ReportGenerator
	cloudStorage    CloudStorage
}

// New wires the data service. cloudStorage may be nil when Drive backups are
// disabled.
func New(repo Repository, reportGenerator ReportGenerator, cloudStorage CloudStorage) *DataService {
	return &DataService{
		repo:            repo,
		reportGenerator: reportGenerator,
		cloudStorage:    cloudStorage,
	}
}

func validateModules(modules []string) ([]string, error) {
	if len(modules) == 0 {
		return allModules, nil
	}

	for _, m := range modules {
		known := false
		for _, allowed := range allModules {
			if m == allowed {
				known = true
				break
			}
		}
		if !known {
			return nil, service.ErrValidation
		}
	}

	return modules, nil
}

// Export snapshots the requested modules. Secrets never leave: encrypted
// settings are excluded from the settings module.
func (s *DataService) Export(ctx context.Context, modules []string) (model.Export, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DataService.Export"

	slog.Debug("Export start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("modules", modules))
	defer func() {
		slog.Debug("Export finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	modules, err := validateModules(modules)
	if err != nil {
		return model.Export{}, err
	}

	export := model.Export{
		Version:   exportVersion,
		CreatedAt: time.Now().Format(time.RFC3339),
	}

	for _, module := range modules {
		switch module {
		case model.ModuleAccounts:
			if export.Accounts, err = s.repo.GetAccounts(ctx); err != nil {
				return model.Export{}, err
			}
		case model.ModulePositions:
			dbPositions, err := s.repo.GetPositionsAllAccounts(ctx)
			if err != nil {
				return model.Export{}, err
			}
			export.Positions = make([]model.ExportPosition, 0, len(dbPositions))
			for _, p := range dbPositions {
				export.Positions = append(export.Positions, model.ExportPosition{
					AccountID: p.AccountID,
					Code:      p.Code,
					Cost:      p.Cost,
					Shares:    p.Shares,
				})
			}
		case model.ModuleTransactions:
			accounts, err := s.repo.GetAccounts(ctx)
			if err != nil {
				return model.Export{}, err
			}
			for _, account := range accounts {
				dbTrxs, err := s.repo.GetTransactions(ctx, account.ID, "", 10000)
				if err != nil {
					return model.Export{}, err
				}
				for _, trx := range dbTrxs {
					export.Transactions = append(export.Transactions, dbConverter.ConvertTransaction(trx))
				}
			}
		case model.ModulePrompts:
			dbPrompts, err := s.repo.GetPrompts(ctx)
			if err != nil {
				return model.Export{}, err
			}
			for _, p := range dbPrompts {
				export.Prompts = append(export.Prompts, dbConverter.ConvertPrompt(p))
			}
		case model.ModuleSubscriptions:
			dbSubs, err := s.repo.GetSubscriptions(ctx)
			if err != nil {
				return model.Export{}, err
			}
			for _, sub := range dbSubs {
				export.Subscriptions = append(export.Subscriptions, dbConverter.ConvertSubscription(sub))
			}
		case model.ModuleSettings:
			settings, err := s.repo.GetSettings(ctx, sql.NullInt64{})
			if err != nil {
				return model.Export{}, err
			}
			export.Settings = make(map[string]string, len(settings))
			for _, setting := range settings {
				if setting.Encrypted {
					continue
				}
				export.Settings[setting.Key] = setting.Value
			}
		}
	}

	return export, nil
}

// ExportXLSX renders the snapshot as a workbook.
func (s *DataService) ExportXLSX(ctx context.Context, modules []string) ([]byte, string, error) {
	export, err := s.Export(ctx, modules)
	if err != nil {
		return nil, "", err
	}
	return s.reportGenerator.Generate(ctx, export)
}

// Import restores a snapshot. Replace mode clears the touched modules first;
// merge upserts over what exists. The whole import runs in one transaction.
func (s *DataService) Import(ctx context.Context, export model.Export, mode string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DataService.Import"

	slog.Debug("Import start", slog.String("rqID", rqID), slog.String("op", op), slog.String("mode", mode))
	defer func() {
		slog.Debug("Import finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if mode != model.ImportModeMerge && mode != model.ImportModeReplace {
		return service.ErrValidation
	}

	err := s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if mode == model.ImportModeReplace {
			if export.Transactions != nil {
				if err := s.repo.DeleteAllTransactions(ctx); err != nil {
					return err
				}
			}
			if export.Positions != nil {
				if err := s.repo.DeleteAllPositions(ctx); err != nil {
					return err
				}
			}
			if export.Accounts != nil {
				if err := s.repo.DeleteAllAccounts(ctx); err != nil {
					return err
				}
			}
			if export.Prompts != nil {
				if err := s.repo.DeleteAllPrompts(ctx); err != nil {
					return err
				}
			}
			if export.Settings != nil {
				if err := s.repo.DeleteAllSettings(ctx); err != nil {
					return err
				}
			}
		}

		for _, account := range export.Accounts {
			if err := s.repo.UpsertAccount(ctx, account.ID, account.Name, account.Description); err != nil {
				return err
			}
		}

		for _, position := range export.Positions {
			if err := s.repo.UpsertPosition(ctx, position.AccountID, position.Code, position.Cost, position.Shares); err != nil {
				return err
			}
		}

		for _, trx := range export.Transactions {
			dbTrx := dbModel.Transaction{
				AccountID:      trx.AccountID,
				Code:           trx.Code,
				OpType:         trx.OpType,
				AmountCny:      trx.AmountCny,
				SharesRedeemed: trx.SharesRedeemed,
				ConfirmDate:    trx.ConfirmDate,
				ConfirmNav:     trx.ConfirmNav,
				SharesAdded:    trx.SharesAdded,
				CostAfter:      trx.CostAfter,
			}
			if trx.AppliedAt != "" {
				if appliedAt, err := time.Parse(time.RFC3339, trx.AppliedAt); err == nil {
					dbTrx.AppliedAt = sql.NullTime{Time: appliedAt, Valid: true}
				}
			}
			if _, err := s.repo.InsertTransaction(ctx, dbTrx); err != nil {
				return err
			}
		}

		for _, prompt := range export.Prompts {
			if _, err := s.repo.CreatePrompt(ctx, prompt.Name, prompt.SystemPrompt, prompt.UserPrompt, prompt.IsDefault); err != nil {
				return err
			}
		}

		for _, sub := range export.Subscriptions {
			dbSub := dbModel.Subscription{
				Code:             sub.Code,
				ChatID:           sub.ChatID,
				ThresholdUp:      sub.ThresholdUp,
				ThresholdDown:    sub.ThresholdDown,
				EnableDigest:     sub.EnableDigest,
				DigestTime:       sub.DigestTime,
				EnableVolatility: sub.EnableVolatility,
			}
			if _, err := s.repo.CreateSubscription(ctx, dbSub); err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
				return err
			}
		}

		for key, value := range export.Settings {
			if err := s.repo.UpsertSetting(ctx, key, value, false, sql.NullInt64{}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		slog.Error("import failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// BackupToDrive uploads a full JSON export and prunes expired backups.
// Called from the scheduler; a no-op when Drive is not configured.
func (s *DataService) BackupToDrive(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DataService.BackupToDrive"

	if s.cloudStorage == nil {
		return nil
	}

	slog.Debug("BackupToDrive start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("BackupToDrive finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	export, err := s.Export(ctx, nil)
	if err != nil {
		return err
	}

	payload, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("fundval_backup_%s_%s.json", time.Now().Format("20060102"), uuid.NewString()[:8])

	link, err := s.cloudStorage.UploadFile(ctx, bytes.NewReader(payload), filename)
	if err != nil {
		slog.Error("got error from cloudStorage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	slog.Info("backup uploaded", slog.String("rqID", rqID), slog.String("link", link))

	if err = s.cloudStorage.DeleteOldFiles(ctx); err != nil {
		slog.Error("got error from cloudStorage.DeleteOldFiles", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	return nil
}
