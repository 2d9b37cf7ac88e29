package liveClient

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

// PositionsApi is the slice of the server client the fetcher needs.
type PositionsApi interface {
	GetPositions(ctx context.Context, accountID int64) (model.PositionsReport, error)
}

// AccountFetcher pulls positions snapshots into the store. Each Fetch issues
// a fresh token from a monotonic counter; the store rejects snapshots whose
// token is older than the newest one installed, so overlapping fetches cannot
// roll the view back to stale data.
type AccountFetcher struct {
	api   PositionsApi
	store *WatchStore
	retry RetryPolicy
	token atomic.Uint64
}

func NewAccountFetcher(api PositionsApi, store *WatchStore, retry RetryPolicy) *AccountFetcher {
	return &AccountFetcher{api: api, store: store, retry: retry}
}

// Fetch loads the positions report for accountID and installs it in the
// store unless a later-issued fetch already landed.
func (f *AccountFetcher) Fetch(ctx context.Context, accountID int64) error {
	const op = "AccountFetcher.Fetch"
	log := slog.With(
		slog.String("op", op),
		slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
		slog.Int64("accountID", accountID),
	)

	token := f.token.Add(1)

	var report model.PositionsReport
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		report, fetchErr = f.api.GetPositions(ctx, accountID)
		return fetchErr
	})
	if err != nil {
		log.Warn("positions fetch failed", slog.Any("error", err))
		return err
	}

	if !f.store.SetPositions(report, token) {
		log.Debug("stale positions snapshot discarded", slog.Uint64("token", token))
	}
	return nil
}
