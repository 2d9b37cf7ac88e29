package liveClient

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
)

type fakePrefsApi struct {
	remote   model.Preferences
	getErr   error
	pushed   []model.Preferences
	pushDone chan struct{}
}

func (f *fakePrefsApi) GetPreferences(ctx context.Context) (model.Preferences, error) {
	return f.remote, f.getErr
}

func (f *fakePrefsApi) UpdatePreferences(ctx context.Context, prefs model.Preferences) error {
	f.pushed = append(f.pushed, prefs)
	if f.pushDone != nil {
		f.pushDone <- struct{}{}
	}
	return nil
}

func prefsFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "prefs.json")
}

func TestPrefStoreRemoteWins(t *testing.T) {
	path := prefsFile(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"watchlist":"[\"000001\"]","currentAccount":2}`), 0o644))

	api := &fakePrefsApi{remote: model.Preferences{Watchlist: `["000009"]`, CurrentAccount: 3}}
	store := NewPrefStore(api, path)

	prefs := store.Load(context.Background())

	assert.Equal(t, `["000009"]`, prefs.Watchlist)
	assert.Equal(t, int64(3), prefs.CurrentAccount)
	assert.Empty(t, api.pushed, "no migration when the server already has a watchlist")
}

func TestPrefStoreMigratesLocalWatchlistOnce(t *testing.T) {
	path := prefsFile(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"watchlist":"[\"000001\",\"000002\"]","currentAccount":1}`), 0o644))

	api := &fakePrefsApi{remote: model.Preferences{Watchlist: "[]", CurrentAccount: 1}}
	store := NewPrefStore(api, path)

	prefs := store.Load(context.Background())

	assert.Equal(t, `["000001","000002"]`, prefs.Watchlist)
	require.Len(t, api.pushed, 1)
	assert.Equal(t, `["000001","000002"]`, api.pushed[0].Watchlist)

	// a second load finds the server populated: no second push
	api.remote = prefs
	store.Load(context.Background())
	assert.Len(t, api.pushed, 1)
}

func TestPrefStoreFallsBackToLocalCache(t *testing.T) {
	path := prefsFile(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"watchlist":"[\"000001\"]","currentAccount":5}`), 0o644))

	api := &fakePrefsApi{getErr: errors.New("connection refused")}
	store := NewPrefStore(api, path)

	prefs := store.Load(context.Background())

	assert.Equal(t, `["000001"]`, prefs.Watchlist)
	assert.Equal(t, int64(5), prefs.CurrentAccount)
}

func TestPrefStoreDefaultsWithoutCacheOrServer(t *testing.T) {
	api := &fakePrefsApi{getErr: errors.New("connection refused")}
	store := NewPrefStore(api, prefsFile(t))

	prefs := store.Load(context.Background())

	assert.Equal(t, "[]", prefs.Watchlist)
	assert.Equal(t, model.DefaultAccountID, prefs.CurrentAccount)
}

func TestPrefStoreUpdateWritesCacheAndPushes(t *testing.T) {
	path := prefsFile(t)
	api := &fakePrefsApi{pushDone: make(chan struct{}, 1)}
	store := NewPrefStore(api, path)

	prefs := model.Preferences{Watchlist: `["000001"]`, CurrentAccount: 1, SortOption: SortByEstRate}
	store.Update(context.Background(), prefs)

	assert.Equal(t, prefs, store.Get())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "000001")

	<-api.pushDone
	require.Len(t, api.pushed, 1)
	assert.Equal(t, prefs.Watchlist, api.pushed[0].Watchlist)
}

func TestEmptyWatchlist(t *testing.T) {
	assert.True(t, emptyWatchlist(""))
	assert.True(t, emptyWatchlist("[]"))
	assert.True(t, emptyWatchlist("not json"))
	assert.False(t, emptyWatchlist(`["000001"]`))
}
