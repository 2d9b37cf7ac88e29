package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/converter/dbConverter"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

func (r *Postgres) UpsertFunds(ctx context.Context, funds []model.FundSearchResult) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("UpsertFunds start", slog.String("rqID", rqID), slog.Int("count", len(funds)))

	defer func() {
		if err != nil {
			slog.Error("UpsertFunds failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertFunds completed", slog.String("rqID", rqID))
		}
	}()

	if len(funds) == 0 {
		return nil
	}

	sb := strings.Builder{}
	args := make([]any, 0, len(funds)*3)

	sb.WriteString(`INSERT INTO funds (code, name, type) VALUES `)

	for i, fund := range funds {
		args = append(args, fund.Code, fund.Name, fund.Type)

		start := i*3 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d)", start, start+1, start+2))

		if i < len(funds)-1 {
			sb.WriteString(",")
		}
	}

	sb.WriteString(`
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			updated_at = now();
	`)

	_, err = r.txOrDb(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *Postgres) GetFund(ctx context.Context, code string) (fund model.FundSearchResult, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT code, name, COALESCE(type, '') AS type, updated_at FROM funds WHERE code = $1`

	slog.Debug("GetFund start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetFund failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetFund completed", slog.String("rqID", rqID))
		}
	}()

	dbFund := dbModel.Fund{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, code).StructScan(&dbFund)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.FundSearchResult{}, repository.ErrNotFound
		}
		return model.FundSearchResult{}, err
	}

	return dbConverter.ConvertFund(dbFund), nil
}

func (r *Postgres) GetFundTypes(ctx context.Context) (types map[string]int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT type, COUNT(*) AS count
		FROM funds
		WHERE type IS NOT NULL AND type != ''
		GROUP BY type
		ORDER BY count DESC
		`

	slog.Debug("GetFundTypes start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetFundTypes failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetFundTypes completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	types = make(map[string]int)
	for rows.Next() {
		var fundType string
		var count int
		if err = rows.Scan(&fundType, &count); err != nil {
			return nil, err
		}
		types[fundType] = count
	}

	return types, nil
}

func (r *Postgres) UpsertFundHistory(ctx context.Context, code string, points []model.FundHistoryPoint) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("UpsertFundHistory start", slog.String("rqID", rqID), slog.String("code", code), slog.Int("count", len(points)))

	defer func() {
		if err != nil {
			slog.Error("UpsertFundHistory failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertFundHistory completed", slog.String("rqID", rqID))
		}
	}()

	if len(points) == 0 {
		return nil
	}

	sb := strings.Builder{}
	args := make([]any, 0, len(points)*3)

	sb.WriteString(`INSERT INTO fund_history (code, date, nav) VALUES `)

	for i, point := range points {
		args = append(args, code, point.Date, point.Nav)

		start := i*3 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d)", start, start+1, start+2))

		if i < len(points)-1 {
			sb.WriteString(",")
		}
	}

	sb.WriteString(`
		ON CONFLICT (code, date) DO UPDATE SET
			nav = EXCLUDED.nav,
			updated_at = now();
	`)

	_, err = r.txOrDb(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *Postgres) GetFundHistory(ctx context.Context, code string, limit int) (points []model.FundHistoryPoint, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT code, date, nav
		FROM (
			SELECT code, date, nav FROM fund_history
			WHERE code = $1
			ORDER BY date DESC
			LIMIT $2
		) latest
		ORDER BY date ASC
		`

	slog.Debug("GetFundHistory start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetFundHistory failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetFundHistory completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, code, limit)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var point dbModel.FundHistory
		if err = rows.StructScan(&point); err != nil {
			return nil, err
		}
		points = append(points, model.FundHistoryPoint{Date: point.Date, Nav: point.Nav})
	}

	return points, nil
}

func (r *Postgres) GetLatestNavDate(ctx context.Context, code string) (date string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT date FROM fund_history WHERE code = $1 ORDER BY date DESC LIMIT 1`

	slog.Debug("GetLatestNavDate start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetLatestNavDate failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetLatestNavDate completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, code).Scan(&date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", err
	}

	return date, nil
}

func (r *Postgres) GetNavByDate(ctx context.Context, code, date string) (nav decimal.Decimal, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT nav FROM fund_history WHERE code = $1 AND date = $2`

	slog.Debug("GetNavByDate start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetNavByDate failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetNavByDate completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, code, date).Scan(&nav)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, repository.ErrNotFound
		}
		return decimal.Decimal{}, err
	}

	return nav, nil
}

func (r *Postgres) GetPrevNav(ctx context.Context, code, date string) (nav *decimal.Decimal, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT nav FROM fund_history WHERE code = $1 AND date < $2 ORDER BY date DESC LIMIT 1`

	slog.Debug("GetPrevNav start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetPrevNav failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPrevNav completed", slog.String("rqID", rqID))
		}
	}()

	var value decimal.Decimal
	err = r.txOrDb(ctx).QueryRowContext(ctx, query, code, date).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &value, nil
}

func (r *Postgres) InsertIntradaySnapshot(ctx context.Context, snapshot dbModel.IntradaySnapshot) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO fund_intraday_snapshots (fund_code, date, time, estimate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (fund_code, date, time) DO UPDATE SET estimate = EXCLUDED.estimate
		`

	slog.Debug("InsertIntradaySnapshot start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertIntradaySnapshot failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertIntradaySnapshot completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, snapshot.FundCode, snapshot.Date, snapshot.Time, snapshot.Estimate)
	return err
}

func (r *Postgres) GetIntradaySnapshots(ctx context.Context, code, date string) (snapshots []model.IntradaySnapshot, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT time, estimate FROM fund_intraday_snapshots
		WHERE fund_code = $1 AND date = $2
		ORDER BY time ASC
		`

	slog.Debug("GetIntradaySnapshots start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetIntradaySnapshots failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetIntradaySnapshots completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, code, date)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var snapshot model.IntradaySnapshot
		if err = rows.Scan(&snapshot.Time, &snapshot.Estimate); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}
