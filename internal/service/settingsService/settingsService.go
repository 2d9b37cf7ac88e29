package settingsService

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

const maskedValue = "***"

type Repository interface {
	GetSettings(ctx context.Context, userID sql.NullInt64) ([]dbModel.Setting, error)
	GetSetting(ctx context.Context, key string, userID sql.NullInt64) (string, error)
	UpsertSetting(ctx context.Context, key, value string, encrypted bool, userID sql.NullInt64) error
	DeleteSetting(ctx context.Context, key string, userID sql.NullInt64) error
}

type SettingsService struct {
	repo Repository
}

func New(repo Repository) *SettingsService {
	return &SettingsService{repo: repo}
}

// nullUser converts an optional user id into its storage form. Zero means
// single-user mode, stored as NULL.
func nullUser(userID int64) sql.NullInt64 {
	return sql.NullInt64{Int64: userID, Valid: userID != 0}
}

// GetSettings returns the settings map with encrypted values masked: a
// non-empty secret reads as *** and an unset one as the empty string, so the
// key itself never leaves the server.
func (s *SettingsService) GetSettings(ctx context.Context, userID int64) (map[string]string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SettingsService.GetSettings"

	slog.Debug("GetSettings start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("GetSettings finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	settings, err := s.repo.GetSettings(ctx, nullUser(userID))
	if err != nil {
		slog.Error("got error from repo.GetSettings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	result := make(map[string]string, len(settings))
	for _, setting := range settings {
		value := setting.Value
		if setting.Encrypted && value != "" {
			value = maskedValue
		}
		result[setting.Key] = value
	}

	return result, nil
}

// GetRawSetting reads an unmasked value for internal consumers (the AI
// service needs the live key).
func (s *SettingsService) GetRawSetting(ctx context.Context, key string, userID int64) (string, error) {
	value, err := s.repo.GetSetting(ctx, key, nullUser(userID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", service.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// UpdateSettings upserts the given pairs. Masked writes are skipped so a
// round-tripped *** never clobbers a stored secret; base URLs must parse as
// http(s).
func (s *SettingsService) UpdateSettings(ctx context.Context, userID int64, settings map[string]string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SettingsService.UpdateSettings"

	slog.Debug("UpdateSettings start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("keys", len(settings)))
	defer func() {
		slog.Debug("UpdateSettings finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	for key, value := range settings {
		encrypted := isSecretKey(key)
		if encrypted && value == maskedValue {
			continue
		}

		if strings.HasSuffix(key, "_API_BASE") && value != "" {
			u, err := url.Parse(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return service.ErrValidation
			}
		}

		if err := s.repo.UpsertSetting(ctx, key, value, encrypted, nullUser(userID)); err != nil {
			slog.Error("got error from repo.UpsertSetting", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key), slog.String("err", err.Error()))
			return err
		}
	}

	return nil
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "_API_KEY") || strings.HasSuffix(key, "_SECRET")
}

// GetPreferences assembles the per-user UI state from its settings rows.
// Missing rows fall back to zero values, not errors.
func (s *SettingsService) GetPreferences(ctx context.Context, userID int64) (model.Preferences, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SettingsService.GetPreferences"

	slog.Debug("GetPreferences start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("GetPreferences finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	prefs := model.Preferences{Watchlist: "[]", CurrentAccount: model.DefaultAccountID}

	if value, err := s.repo.GetSetting(ctx, model.PrefKeyWatchlist, nullUser(userID)); err == nil && value != "" {
		prefs.Watchlist = value
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.Preferences{}, err
	}

	if value, err := s.repo.GetSetting(ctx, model.PrefKeyCurrentAccount, nullUser(userID)); err == nil {
		if accountID, convErr := strconv.ParseInt(value, 10, 64); convErr == nil {
			prefs.CurrentAccount = accountID
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Preferences{}, err
	}

	if value, err := s.repo.GetSetting(ctx, model.PrefKeySortOption, nullUser(userID)); err == nil {
		prefs.SortOption = value
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Preferences{}, err
	}

	return prefs, nil
}

// UpdatePreferences persists the UI state. The watchlist must be a JSON
// array string; the handler validates that before calling here.
func (s *SettingsService) UpdatePreferences(ctx context.Context, userID int64, prefs model.Preferences) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SettingsService.UpdatePreferences"

	slog.Debug("UpdatePreferences start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("UpdatePreferences finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	pairs := map[string]string{
		model.PrefKeyWatchlist:      prefs.Watchlist,
		model.PrefKeyCurrentAccount: strconv.FormatInt(prefs.CurrentAccount, 10),
		model.PrefKeySortOption:     prefs.SortOption,
	}

	for key, value := range pairs {
		if err := s.repo.UpsertSetting(ctx, key, value, false, nullUser(userID)); err != nil {
			slog.Error("got error from repo.UpsertSetting", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key), slog.String("err", err.Error()))
			return err
		}
	}

	return nil
}
