package liveClient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

// PrefsApi is the slice of the server client the preference store needs.
type PrefsApi interface {
	GetPreferences(ctx context.Context) (model.Preferences, error)
	UpdatePreferences(ctx context.Context, prefs model.Preferences) error
}

// PrefStore keeps user preferences with the server as the source of truth.
// A local JSON file caches the last known state so the watcher can start
// offline; any divergence resolves in favor of the server, except the
// one-time watchlist migration in Load.
type PrefStore struct {
	api  PrefsApi
	path string

	mu    sync.RWMutex
	prefs model.Preferences
}

func NewPrefStore(api PrefsApi, path string) *PrefStore {
	return &PrefStore{api: api, path: path}
}

// Load reads the local cache, then fetches the server copy. When the server
// has never seen a watchlist but the local cache carries one, the local list
// is adopted and pushed once; afterwards the server copy always wins. On
// fetch failure the local cache is used as-is.
func (s *PrefStore) Load(ctx context.Context) model.Preferences {
	const op = "PrefStore.Load"
	log := slog.With(slog.String("op", op), slog.String("rqID", utils.GetRequestIDFromCtx(ctx)))

	local, hasLocal := s.readFile()

	remote, err := s.api.GetPreferences(ctx)
	if err != nil {
		log.Warn("preferences fetch failed, using local cache", slog.Any("error", err))
		if hasLocal {
			s.set(local)
			return local
		}
		empty := model.Preferences{Watchlist: "[]", CurrentAccount: model.DefaultAccountID}
		s.set(empty)
		return empty
	}

	if emptyWatchlist(remote.Watchlist) && hasLocal && !emptyWatchlist(local.Watchlist) {
		remote.Watchlist = local.Watchlist
		if err = s.api.UpdatePreferences(ctx, remote); err != nil {
			log.Warn("watchlist migration push failed", slog.Any("error", err))
		} else {
			log.Info("migrated local watchlist to server")
		}
	}

	s.set(remote)
	s.writeFile(remote)
	return remote
}

// Get returns the current in-memory preferences.
func (s *PrefStore) Get() model.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Update applies prefs locally and to the cache file immediately, then pushes
// to the server in the background. A failed push is logged, not retried: the
// next Load reconciles.
func (s *PrefStore) Update(ctx context.Context, prefs model.Preferences) {
	s.set(prefs)
	s.writeFile(prefs)

	go func() {
		pushCtx := utils.CtxWithNewRqID(context.WithoutCancel(ctx))
		if err := s.api.UpdatePreferences(pushCtx, prefs); err != nil {
			slog.Warn(
				"preferences push failed",
				slog.String("op", "PrefStore.Update"),
				slog.String("rqID", utils.GetRequestIDFromCtx(pushCtx)),
				slog.Any("error", err),
			)
		}
	}()
}

func (s *PrefStore) set(prefs model.Preferences) {
	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()
}

func (s *PrefStore) readFile() (model.Preferences, bool) {
	if s.path == "" {
		return model.Preferences{}, false
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("preferences cache read failed", slog.Any("error", err))
		}
		return model.Preferences{}, false
	}
	var prefs model.Preferences
	if err = json.Unmarshal(raw, &prefs); err != nil {
		slog.Warn("preferences cache corrupted, ignoring", slog.Any("error", err))
		return model.Preferences{}, false
	}
	return prefs, true
}

func (s *PrefStore) writeFile(prefs model.Preferences) {
	if s.path == "" {
		return
	}
	raw, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return
	}
	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Warn("preferences cache dir create failed", slog.Any("error", err))
		return
	}
	if err = os.WriteFile(s.path, raw, 0o644); err != nil {
		slog.Warn("preferences cache write failed", slog.Any("error", err))
	}
}

func emptyWatchlist(watchlist string) bool {
	if watchlist == "" || watchlist == "[]" {
		return true
	}
	var codes []string
	if err := json.Unmarshal([]byte(watchlist), &codes); err != nil {
		return true
	}
	return len(codes) == 0
}
