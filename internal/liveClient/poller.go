package liveClient

import (
	"context"
	"log/slog"
	"time"

	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

// FundApi is the slice of the server client the poller needs.
type FundApi interface {
	GetFund(ctx context.Context, code string) (model.Valuation, error)
}

// Poller drives periodic refresh. On every tick it spawns one goroutine per
// watched code and one for the current account's positions; ticks never wait
// on network and a slow upstream only delays its own item.
type Poller struct {
	api      FundApi
	fetcher  *AccountFetcher
	store    *WatchStore
	prefs    *PrefStore
	interval time.Duration
}

func NewPoller(api FundApi, fetcher *AccountFetcher, store *WatchStore, prefs *PrefStore, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{api: api, fetcher: fetcher, store: store, prefs: prefs, interval: interval}
}

// Run polls until ctx is cancelled. The first refresh fires immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	for _, code := range p.store.Codes() {
		go p.refreshFund(ctx, code)
	}

	accountID := p.prefs.Get().CurrentAccount
	go func() {
		fetchCtx := utils.CtxWithNewRqID(ctx)
		// Errors already logged by the fetcher; the stale snapshot stays up.
		_ = p.fetcher.Fetch(fetchCtx, accountID)
	}()
}

func (p *Poller) refreshFund(ctx context.Context, code string) {
	refreshCtx := utils.CtxWithNewRqID(ctx)

	valuation, err := p.api.GetFund(refreshCtx, code)
	if err != nil {
		// Keep the previous cached value visible.
		slog.Warn(
			"fund refresh failed",
			slog.String("op", "Poller.refreshFund"),
			slog.String("rqID", utils.GetRequestIDFromCtx(refreshCtx)),
			slog.String("code", code),
			slog.Any("error", err),
		)
		return
	}

	p.store.SetDetail(code, valuation)
}
