package xlsxGenerator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/utils"
	"github.com/xuri/excelize/v2"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate renders the export snapshot into a workbook, one sheet per
// included module.
func (g *XLSXGenerator) Generate(ctx context.Context, export model.Export) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	sheets := 0

	if export.Accounts != nil {
		rows := [][]any{{"ID", "Name", "Description"}}
		for _, a := range export.Accounts {
			rows = append(rows, []any{a.ID, a.Name, a.Description})
		}
		if err = g.fillSheet(f, "Accounts", rows); err != nil {
			return nil, "", err
		}
		sheets++
	}

	if export.Positions != nil {
		rows := [][]any{{"Account ID", "Code", "Cost", "Shares"}}
		for _, p := range export.Positions {
			rows = append(rows, []any{p.AccountID, p.Code, p.Cost.String(), p.Shares.String()})
		}
		if err = g.fillSheet(f, "Positions", rows); err != nil {
			return nil, "", err
		}
		sheets++
	}

	if export.Transactions != nil {
		rows := [][]any{{"ID", "Account ID", "Code", "Op", "Amount CNY", "Shares Redeemed", "Confirm Date", "Confirm NAV", "Shares Added", "Cost After", "Created At", "Applied At"}}
		for _, t := range export.Transactions {
			rows = append(rows, []any{
				t.ID, t.AccountID, t.Code, t.OpType,
				decimalOrEmpty(t.AmountCny), decimalOrEmpty(t.SharesRedeemed),
				t.ConfirmDate, decimalOrEmpty(t.ConfirmNav), decimalOrEmpty(t.SharesAdded), decimalOrEmpty(t.CostAfter),
				t.CreatedAt, t.AppliedAt,
			})
		}
		if err = g.fillSheet(f, "Transactions", rows); err != nil {
			return nil, "", err
		}
		sheets++
	}

	if export.Prompts != nil {
		rows := [][]any{{"ID", "Name", "System Prompt", "User Prompt", "Default"}}
		for _, p := range export.Prompts {
			rows = append(rows, []any{p.ID, p.Name, p.SystemPrompt, p.UserPrompt, p.IsDefault})
		}
		if err = g.fillSheet(f, "AI Prompts", rows); err != nil {
			return nil, "", err
		}
		sheets++
	}

	if export.Subscriptions != nil {
		rows := [][]any{{"ID", "Code", "Chat ID", "Threshold Up", "Threshold Down", "Digest", "Digest Time", "Volatility"}}
		for _, s := range export.Subscriptions {
			rows = append(rows, []any{
				s.ID, s.Code, s.ChatID,
				decimalOrEmpty(s.ThresholdUp), decimalOrEmpty(s.ThresholdDown),
				s.EnableDigest, s.DigestTime, s.EnableVolatility,
			})
		}
		if err = g.fillSheet(f, "Subscriptions", rows); err != nil {
			return nil, "", err
		}
		sheets++
	}

	if export.Settings != nil {
		rows := [][]any{{"Key", "Value"}}
		for key, value := range export.Settings {
			rows = append(rows, []any{key, value})
		}
		if err = g.fillSheet(f, "Settings", rows); err != nil {
			return nil, "", err
		}
		sheets++
	}

	if sheets == 0 {
		return nil, "", errors.New("empty export")
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillSheet(f *excelize.File, sheetName string, rows [][]any) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}

	if len(rows) > 0 {
		lastCol, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err != nil {
			return err
		}
		if err = f.SetCellStyle(sheetName, "A1", lastCol, headerStyle); err != nil {
			return err
		}
	}

	return nil
}

func decimalOrEmpty(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
