package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

func (r *Postgres) GetSettings(ctx context.Context, userID sql.NullInt64) (settings []dbModel.Setting, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT key, value, encrypted, user_id
		FROM settings
		WHERE user_id IS NOT DISTINCT FROM $1
		ORDER BY key
		`

	slog.Debug("GetSettings start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetSettings failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetSettings completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var setting dbModel.Setting
		if err = rows.StructScan(&setting); err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}

	return settings, nil
}

func (r *Postgres) GetSetting(ctx context.Context, key string, userID sql.NullInt64) (value string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT value FROM settings WHERE key = $1 AND user_id IS NOT DISTINCT FROM $2`

	slog.Debug("GetSetting start", slog.String("rqID", rqID), slog.String("query", query), slog.String("key", key))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetSetting failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetSetting completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, key, userID).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", err
	}

	return value, nil
}

func (r *Postgres) UpsertSetting(ctx context.Context, key, value string, encrypted bool, userID sql.NullInt64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO settings (key, value, encrypted, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key, user_id) DO UPDATE SET
			value = EXCLUDED.value,
			encrypted = EXCLUDED.encrypted,
			updated_at = now()
		`

	slog.Debug("UpsertSetting start", slog.String("rqID", rqID), slog.String("query", query), slog.String("key", key))
	defer func() {
		if err != nil {
			slog.Error("UpsertSetting failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertSetting completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, key, value, encrypted, userID)
	return err
}

func (r *Postgres) DeleteSetting(ctx context.Context, key string, userID sql.NullInt64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM settings WHERE key = $1 AND user_id IS NOT DISTINCT FROM $2`

	slog.Debug("DeleteSetting start", slog.String("rqID", rqID), slog.String("query", query), slog.String("key", key))
	defer func() {
		if err != nil {
			slog.Error("DeleteSetting failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteSetting completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, key, userID)
	return err
}

func (r *Postgres) GetPrompts(ctx context.Context) (prompts []dbModel.Prompt, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT id, name, system_prompt, user_prompt, is_default, created_at, updated_at FROM ai_prompts ORDER BY id`

	slog.Debug("GetPrompts start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetPrompts failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPrompts completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var prompt dbModel.Prompt
		if err = rows.StructScan(&prompt); err != nil {
			return nil, err
		}
		prompts = append(prompts, prompt)
	}

	return prompts, nil
}

func (r *Postgres) GetPrompt(ctx context.Context, promptID int64) (prompt dbModel.Prompt, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT id, name, system_prompt, user_prompt, is_default, created_at, updated_at FROM ai_prompts WHERE id = $1`

	slog.Debug("GetPrompt start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetPrompt failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPrompt completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, promptID).StructScan(&prompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbModel.Prompt{}, repository.ErrNotFound
		}
		return dbModel.Prompt{}, err
	}

	return prompt, nil
}

func (r *Postgres) GetDefaultPrompt(ctx context.Context) (prompt dbModel.Prompt, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT id, name, system_prompt, user_prompt, is_default, created_at, updated_at FROM ai_prompts WHERE is_default ORDER BY id LIMIT 1`

	slog.Debug("GetDefaultPrompt start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetDefaultPrompt failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetDefaultPrompt completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query).StructScan(&prompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbModel.Prompt{}, repository.ErrNotFound
		}
		return dbModel.Prompt{}, err
	}

	return prompt, nil
}

func (r *Postgres) CreatePrompt(ctx context.Context, name, systemPrompt, userPrompt string, isDefault bool) (promptID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO ai_prompts (name, system_prompt, user_prompt, is_default) VALUES ($1, $2, $3, $4) RETURNING id`

	slog.Debug("CreatePrompt start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			slog.Error("CreatePrompt failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreatePrompt completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, name, systemPrompt, userPrompt, isDefault).Scan(&promptID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				return 0, repository.ErrAlreadyExists
			}
		}
		return 0, err
	}

	return promptID, nil
}

func (r *Postgres) UpdatePrompt(ctx context.Context, promptID int64, name, systemPrompt, userPrompt string, isDefault bool) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		UPDATE ai_prompts
		SET name = $1, system_prompt = $2, user_prompt = $3, is_default = $4, updated_at = now()
		WHERE id = $5
		`

	slog.Debug("UpdatePrompt start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdatePrompt failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdatePrompt completed", slog.String("rqID", rqID))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, name, systemPrompt, userPrompt, isDefault, promptID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ClearDefaultPrompt drops the default flag everywhere except the given id.
// Runs inside the same transaction as the promoting update so a single
// default survives.
func (r *Postgres) ClearDefaultPrompt(ctx context.Context, exceptID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `UPDATE ai_prompts SET is_default = FALSE, updated_at = now() WHERE is_default AND id != $1`

	slog.Debug("ClearDefaultPrompt start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("ClearDefaultPrompt failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("ClearDefaultPrompt completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, exceptID)
	return err
}

func (r *Postgres) DeletePrompt(ctx context.Context, promptID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM ai_prompts WHERE id = $1`

	slog.Debug("DeletePrompt start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeletePrompt failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeletePrompt completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, promptID)
	return err
}

func (r *Postgres) InsertAnalysisHistory(ctx context.Context, h dbModel.AnalysisHistory) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO ai_analysis_history (code, summary, risk_level, analysis_report, suggestions)
		VALUES ($1, $2, $3, $4, $5)
		`

	slog.Debug("InsertAnalysisHistory start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertAnalysisHistory failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertAnalysisHistory completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, h.Code, h.Summary, h.RiskLevel, h.AnalysisReport, h.Suggestions)
	return err
}

func (r *Postgres) GetAnalysisHistory(ctx context.Context, code string, limit int) (history []dbModel.AnalysisHistory, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT id, code, summary, risk_level, analysis_report, suggestions, created_at
		FROM ai_analysis_history
		WHERE ($1 = '' OR code = $1)
		ORDER BY created_at DESC
		LIMIT $2
		`

	slog.Debug("GetAnalysisHistory start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetAnalysisHistory failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAnalysisHistory completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, code, limit)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var h dbModel.AnalysisHistory
		if err = rows.StructScan(&h); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, nil
}

func (r *Postgres) DeleteAnalysisHistory(ctx context.Context, historyID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM ai_analysis_history WHERE id = $1`

	slog.Debug("DeleteAnalysisHistory start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteAnalysisHistory failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteAnalysisHistory completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, historyID)
	return err
}

func (r *Postgres) GetSubscriptions(ctx context.Context) (subscriptions []dbModel.Subscription, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT id, code, chat_id, threshold_up, threshold_down, enable_digest, digest_time, enable_volatility, last_notified_at, created_at
		FROM subscriptions
		ORDER BY id
		`

	slog.Debug("GetSubscriptions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetSubscriptions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetSubscriptions completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var sub dbModel.Subscription
		if err = rows.StructScan(&sub); err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, sub)
	}

	return subscriptions, nil
}

func (r *Postgres) CreateSubscription(ctx context.Context, sub dbModel.Subscription) (subID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO subscriptions (code, chat_id, threshold_up, threshold_down, enable_digest, digest_time, enable_volatility)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
		`

	slog.Debug("CreateSubscription start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			slog.Error("CreateSubscription failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateSubscription completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(
		ctx,
		query,
		sub.Code,
		sub.ChatID,
		sub.ThresholdUp,
		sub.ThresholdDown,
		sub.EnableDigest,
		sub.DigestTime,
		sub.EnableVolatility,
	).Scan(&subID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				return 0, repository.ErrAlreadyExists
			}
		}
		return 0, err
	}

	return subID, nil
}

func (r *Postgres) DeleteSubscription(ctx context.Context, subID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM subscriptions WHERE id = $1`

	slog.Debug("DeleteSubscription start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteSubscription failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteSubscription completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, subID)
	return err
}

func (r *Postgres) TouchSubscriptionNotified(ctx context.Context, subID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `UPDATE subscriptions SET last_notified_at = now() WHERE id = $1`

	slog.Debug("TouchSubscriptionNotified start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("TouchSubscriptionNotified failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("TouchSubscriptionNotified completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, subID)
	return err
}

func (r *Postgres) GetUserByUsername(ctx context.Context, username string) (user dbModel.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT id, username, password_hash, is_admin, created_at FROM users WHERE username = $1`

	slog.Debug("GetUserByUsername start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetUserByUsername failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserByUsername completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, username).StructScan(&user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbModel.User{}, repository.ErrNotFound
		}
		return dbModel.User{}, err
	}

	return user, nil
}

func (r *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`

	slog.Debug("CreateUser start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			slog.Error("CreateUser failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateUser completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, username, passwordHash).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				return 0, repository.ErrAlreadyExists
			}
		}
		return 0, err
	}

	return userID, nil
}

func (r *Postgres) DeleteAllSettings(ctx context.Context) error {
	_, err := r.txOrDb(ctx).ExecContext(ctx, `DELETE FROM settings`)
	return err
}

func (r *Postgres) DeleteAllPrompts(ctx context.Context) error {
	_, err := r.txOrDb(ctx).ExecContext(ctx, `DELETE FROM ai_prompts`)
	return err
}
