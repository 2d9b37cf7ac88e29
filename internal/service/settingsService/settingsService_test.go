package settingsService

import (
	"context"
	"database/sql"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

type fakeSettingsRepo struct {
	settings map[string]dbModel.Setting
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]dbModel.Setting)}
}

func settingKey(key string, userID sql.NullInt64) string {
	if !userID.Valid {
		return key + "@null"
	}
	return key + "@" + strconv.FormatInt(userID.Int64, 10)
}

func (r *fakeSettingsRepo) GetSettings(ctx context.Context, userID sql.NullInt64) ([]dbModel.Setting, error) {
	var out []dbModel.Setting
	for _, s := range r.settings {
		if s.UserID.Valid == userID.Valid && s.UserID.Int64 == userID.Int64 {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSettingsRepo) GetSetting(ctx context.Context, key string, userID sql.NullInt64) (string, error) {
	s, ok := r.settings[settingKey(key, userID)]
	if !ok {
		return "", repository.ErrNotFound
	}
	return s.Value, nil
}

func (r *fakeSettingsRepo) UpsertSetting(ctx context.Context, key, value string, encrypted bool, userID sql.NullInt64) error {
	r.settings[settingKey(key, userID)] = dbModel.Setting{
		Key:       key,
		Value:     value,
		Encrypted: encrypted,
		UserID:    userID,
	}
	return nil
}

func (r *fakeSettingsRepo) DeleteSetting(ctx context.Context, key string, userID sql.NullInt64) error {
	delete(r.settings, settingKey(key, userID))
	return nil
}

func TestGetSettingsMasksSecrets(t *testing.T) {
	repo := newFakeSettingsRepo()
	srv := New(repo)

	require.NoError(t, srv.UpdateSettings(context.Background(), 0, map[string]string{
		"OPENAI_API_KEY":  "sk-secret",
		"OPENAI_API_BASE": "https://api.openai.com/v1",
		"AI_MODEL_NAME":   "gpt-4o-mini",
	}))

	settings, err := srv.GetSettings(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "***", settings["OPENAI_API_KEY"])
	assert.Equal(t, "https://api.openai.com/v1", settings["OPENAI_API_BASE"])
	assert.Equal(t, "gpt-4o-mini", settings["AI_MODEL_NAME"])
}

func TestUpdateSettingsSkipsMaskedWrite(t *testing.T) {
	repo := newFakeSettingsRepo()
	srv := New(repo)

	require.NoError(t, srv.UpdateSettings(context.Background(), 0, map[string]string{"OPENAI_API_KEY": "sk-secret"}))
	// a round-tripped settings form carries *** back
	require.NoError(t, srv.UpdateSettings(context.Background(), 0, map[string]string{"OPENAI_API_KEY": "***"}))

	raw, err := srv.GetRawSetting(context.Background(), "OPENAI_API_KEY", 0)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", raw)
}

func TestUpdateSettingsValidatesBaseURL(t *testing.T) {
	srv := New(newFakeSettingsRepo())

	err := srv.UpdateSettings(context.Background(), 0, map[string]string{"OPENAI_API_BASE": "not a url"})
	assert.ErrorIs(t, err, service.ErrValidation)

	err = srv.UpdateSettings(context.Background(), 0, map[string]string{"OPENAI_API_BASE": "ftp://host"})
	assert.ErrorIs(t, err, service.ErrValidation)

	err = srv.UpdateSettings(context.Background(), 0, map[string]string{"OPENAI_API_BASE": "http://localhost:8080/v1"})
	assert.NoError(t, err)
}

func TestGetRawSettingMissing(t *testing.T) {
	srv := New(newFakeSettingsRepo())

	_, err := srv.GetRawSetting(context.Background(), "OPENAI_API_KEY", 0)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestPreferencesDefaults(t *testing.T) {
	srv := New(newFakeSettingsRepo())

	prefs, err := srv.GetPreferences(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "[]", prefs.Watchlist)
	assert.Equal(t, model.DefaultAccountID, prefs.CurrentAccount)
	assert.Empty(t, prefs.SortOption)
}

func TestPreferencesRoundTrip(t *testing.T) {
	srv := New(newFakeSettingsRepo())

	in := model.Preferences{Watchlist: `["000001","000002"]`, CurrentAccount: 3, SortOption: "est_rate"}
	require.NoError(t, srv.UpdatePreferences(context.Background(), 0, in))

	out, err := srv.GetPreferences(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPreferencesPerUserIsolation(t *testing.T) {
	srv := New(newFakeSettingsRepo())

	require.NoError(t, srv.UpdatePreferences(context.Background(), 7, model.Preferences{Watchlist: `["000009"]`, CurrentAccount: 2}))

	prefs, err := srv.GetPreferences(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "[]", prefs.Watchlist, "single-user rows must not see another user's state")
}
