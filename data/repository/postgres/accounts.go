package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/converter/dbConverter"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

func (r *Postgres) GetAccounts(ctx context.Context) (accounts []model.Account, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT id, name, description, created_at, updated_at FROM accounts ORDER BY id`

	slog.Debug("GetAccounts start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetAccounts failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAccounts completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var account dbModel.Account
		if err = rows.StructScan(&account); err != nil {
			return nil, err
		}
		accounts = append(accounts, dbConverter.ConvertAccount(account))
	}

	return accounts, nil
}

func (r *Postgres) CreateAccount(ctx context.Context, name, description string) (accountID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO accounts(name, description) VALUES($1, $2) RETURNING id`

	slog.Debug("CreateAccount start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			slog.Error("CreateAccount failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateAccount completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, name, description).Scan(&accountID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return 0, repository.ErrAlreadyExists
			}
		}
		return 0, err
	}

	return accountID, nil
}

func (r *Postgres) UpdateAccount(ctx context.Context, accountID int64, name, description string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `UPDATE accounts SET name = $1, description = $2, updated_at = now() WHERE id = $3`

	slog.Debug("UpdateAccount start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			slog.Error("UpdateAccount failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateAccount completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, name, description, accountID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				return repository.ErrAlreadyExists
			}
		}
		return err
	}

	return nil
}

// UpsertAccount restores an account under its original id. Used by import
// so position rows keep their account references.
func (r *Postgres) UpsertAccount(ctx context.Context, accountID int64, name, description string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO accounts (id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			updated_at = now()
		`

	slog.Debug("UpsertAccount start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertAccount failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertAccount completed", slog.String("rqID", rqID))
		}
	}()

	if _, err = r.txOrDb(ctx).ExecContext(ctx, query, accountID, name, description); err != nil {
		return err
	}

	_, err = r.txOrDb(ctx).ExecContext(ctx, `SELECT setval('accounts_id_seq', GREATEST((SELECT MAX(id) FROM accounts), 1))`)
	return err
}

func (r *Postgres) DeleteAccount(ctx context.Context, accountID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM accounts WHERE id = $1`

	slog.Debug("DeleteAccount start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteAccount failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteAccount completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, accountID)
	return err
}

func (r *Postgres) CountPositions(ctx context.Context, accountID int64) (count int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT COUNT(*) FROM positions WHERE account_id = $1 AND shares > 0`

	slog.Debug("CountPositions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CountPositions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CountPositions completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, accountID).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *Postgres) getPositions(ctx context.Context, query string, args ...any) (positions []dbModel.Position, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("getPositions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("getPositions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("getPositions completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var position dbModel.Position
		if err = rows.StructScan(&position); err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}

	return positions, nil
}

func (r *Postgres) GetPositions(ctx context.Context, accountID int64) ([]dbModel.Position, error) {
	query := `
		SELECT account_id, code, cost, shares, updated_at
		FROM positions
		WHERE account_id = $1 AND shares > 0
		ORDER BY code
		`

	return r.getPositions(ctx, query, accountID)
}

// GetPositionsAllAccounts returns every account's live positions; the caller
// merges them into the virtual aggregate view.
func (r *Postgres) GetPositionsAllAccounts(ctx context.Context) ([]dbModel.Position, error) {
	query := `
		SELECT account_id, code, cost, shares, updated_at
		FROM positions
		WHERE shares > 0
		ORDER BY code, account_id
		`

	return r.getPositions(ctx, query)
}

func (r *Postgres) GetPosition(ctx context.Context, accountID int64, code string) (position dbModel.Position, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT account_id, code, cost, shares, updated_at
		FROM positions
		WHERE account_id = $1 AND code = $2
		`

	slog.Debug("GetPosition start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetPosition failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPosition completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, accountID, code).StructScan(&position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbModel.Position{}, repository.ErrNotFound
		}
		return dbModel.Position{}, err
	}

	return position, nil
}

func (r *Postgres) UpsertPosition(ctx context.Context, accountID int64, code string, cost, shares decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO positions (account_id, code, cost, shares)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, code) DO UPDATE SET
			cost = EXCLUDED.cost,
			shares = EXCLUDED.shares,
			updated_at = now()
		`

	slog.Debug("UpsertPosition start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertPosition failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertPosition completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, accountID, code, cost, shares)
	return err
}

func (r *Postgres) DeletePosition(ctx context.Context, accountID int64, code string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM positions WHERE account_id = $1 AND code = $2`

	slog.Debug("DeletePosition start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeletePosition failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeletePosition completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, accountID, code)
	return err
}

func (r *Postgres) GetHeldCodes(ctx context.Context, accountID int64) (codes []string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT DISTINCT code FROM positions WHERE account_id = $1 AND shares > 0`
	args := []any{accountID}

	if accountID == model.AggregateAccountID {
		query = `SELECT DISTINCT code FROM positions WHERE shares > 0`
		args = nil
	}

	slog.Debug("GetHeldCodes start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetHeldCodes failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHeldCodes completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var code string
		if err = rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	return codes, nil
}

func (r *Postgres) InsertTransaction(ctx context.Context, trx dbModel.Transaction) (trxID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO transactions
			(account_id, code, op_type, amount_cny, shares_redeemed, confirm_date, confirm_nav, shares_added, cost_after, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
		`

	slog.Debug("InsertTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTransaction completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(
		ctx,
		query,
		trx.AccountID,
		trx.Code,
		trx.OpType,
		trx.AmountCny,
		trx.SharesRedeemed,
		trx.ConfirmDate,
		trx.ConfirmNav,
		trx.SharesAdded,
		trx.CostAfter,
		trx.AppliedAt,
	).Scan(&trxID)
	if err != nil {
		return 0, err
	}

	return trxID, nil
}

// ConfirmTransaction fills the NAV-derived fields of a pending trade. A trade
// already applied is left untouched.
func (r *Postgres) ConfirmTransaction(ctx context.Context, trxID int64, confirmNav, sharesAdded, amountCny, costAfter *decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		UPDATE transactions
		SET confirm_nav = $1, shares_added = $2, amount_cny = COALESCE($3, amount_cny), cost_after = $4, applied_at = now()
		WHERE id = $5 AND applied_at IS NULL
		`

	slog.Debug("ConfirmTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("ConfirmTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("ConfirmTransaction completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, confirmNav, sharesAdded, amountCny, costAfter, trxID)
	return err
}

func (r *Postgres) GetTransactions(ctx context.Context, accountID int64, code string, limit int) (transactions []dbModel.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT id, account_id, code, op_type, amount_cny, shares_redeemed, confirm_date, confirm_nav, shares_added, cost_after, created_at, applied_at
		FROM transactions
		WHERE account_id = $1 AND ($2 = '' OR code = $2)
		ORDER BY created_at DESC
		LIMIT $3
		`

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetTransactions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactions completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, accountID, code, limit)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var trx dbModel.Transaction
		if err = rows.StructScan(&trx); err != nil {
			return nil, err
		}
		transactions = append(transactions, trx)
	}

	return transactions, nil
}

func (r *Postgres) GetPendingTransactions(ctx context.Context) (transactions []dbModel.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT id, account_id, code, op_type, amount_cny, shares_redeemed, confirm_date, confirm_nav, shares_added, cost_after, created_at, applied_at
		FROM transactions
		WHERE applied_at IS NULL
		ORDER BY created_at ASC
		`

	slog.Debug("GetPendingTransactions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetPendingTransactions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPendingTransactions completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var trx dbModel.Transaction
		if err = rows.StructScan(&trx); err != nil {
			return nil, err
		}
		transactions = append(transactions, trx)
	}

	return transactions, nil
}

func (r *Postgres) DeleteAllPositions(ctx context.Context) error {
	_, err := r.txOrDb(ctx).ExecContext(ctx, `DELETE FROM positions`)
	return err
}

func (r *Postgres) DeleteAllTransactions(ctx context.Context) error {
	_, err := r.txOrDb(ctx).ExecContext(ctx, `DELETE FROM transactions`)
	return err
}

func (r *Postgres) DeleteAllAccounts(ctx context.Context) error {
	_, err := r.txOrDb(ctx).ExecContext(ctx, `DELETE FROM accounts WHERE id != $1`, model.DefaultAccountID)
	return err
}
