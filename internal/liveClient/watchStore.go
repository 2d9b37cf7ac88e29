package liveClient

import (
	"sort"
	"sync"

	"github.com/tiangangQiu/FundVal-Live/internal/model"
)

// Sort options for the watchlist view.
const (
	SortByCode    = "code"
	SortByEstRate = "est_rate"
	SortByName    = "name"
)

// WatchStore owns the client-side state: the watched codes, the latest fund
// detail per code and the latest positions snapshot. All mutations go through
// its API and notify subscribers; nothing updates it as a side effect.
type WatchStore struct {
	mu          sync.RWMutex
	codes       []string
	details     map[string]model.Valuation
	report      model.PositionsReport
	reportToken uint64
	sortOption  string

	subMu       sync.Mutex
	subscribers map[int]func()
	nextSubID   int
}

func NewWatchStore() *WatchStore {
	return &WatchStore{
		details:     make(map[string]model.Valuation),
		subscribers: make(map[int]func()),
		sortOption:  SortByCode,
	}
}

// Subscribe registers a change callback and returns its cancel function.
// Callbacks run synchronously after each mutation, outside the state lock.
func (s *WatchStore) Subscribe(fn func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *WatchStore) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// AddCode appends a fund to the watchlist. Duplicates are ignored and the
// list length does not change; the result reports whether anything changed.
func (s *WatchStore) AddCode(code string) bool {
	s.mu.Lock()
	for _, existing := range s.codes {
		if existing == code {
			s.mu.Unlock()
			return false
		}
	}
	s.codes = append(s.codes, code)
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *WatchStore) RemoveCode(code string) bool {
	s.mu.Lock()
	removed := false
	for i, existing := range s.codes {
		if existing == code {
			s.codes = append(s.codes[:i], s.codes[i+1:]...)
			delete(s.details, code)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if removed {
		s.notify()
	}
	return removed
}

func (s *WatchStore) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.codes...)
}

// SetCodes replaces the whole watchlist, deduplicating while keeping first
// occurrence order. Used when adopting remote preferences.
func (s *WatchStore) SetCodes(codes []string) {
	seen := make(map[string]struct{}, len(codes))
	deduped := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		deduped = append(deduped, code)
	}

	s.mu.Lock()
	s.codes = deduped
	s.mu.Unlock()

	s.notify()
}

// SetDetail stores the latest fund detail for a code. A failed refresh never
// calls this, so the prior cached value stays visible.
func (s *WatchStore) SetDetail(code string, valuation model.Valuation) {
	s.mu.Lock()
	s.details[code] = valuation
	s.mu.Unlock()

	s.notify()
}

func (s *WatchStore) Detail(code string) (model.Valuation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	valuation, ok := s.details[code]
	return valuation, ok
}

// SetPositions installs a positions snapshot carrying the request token that
// produced it. Snapshots with a token older than the latest installed one are
// discarded: the latest-issued request wins, regardless of arrival order.
func (s *WatchStore) SetPositions(report model.PositionsReport, token uint64) bool {
	s.mu.Lock()
	if token < s.reportToken {
		s.mu.Unlock()
		return false
	}
	s.report = report
	s.reportToken = token
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *WatchStore) Positions() model.PositionsReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

func (s *WatchStore) SetSortOption(option string) {
	s.mu.Lock()
	s.sortOption = option
	s.mu.Unlock()

	s.notify()
}

func (s *WatchStore) SortOption() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortOption
}

// SortedDetails returns the watchlist's cached valuations ordered by the
// active sort option. Codes without a cached detail yet come last in
// watchlist order.
func (s *WatchStore) SortedDetails() []model.Valuation {
	s.mu.RLock()
	withDetail := make([]model.Valuation, 0, len(s.codes))
	missing := make([]model.Valuation, 0)
	for _, code := range s.codes {
		if valuation, ok := s.details[code]; ok {
			withDetail = append(withDetail, valuation)
		} else {
			missing = append(missing, model.Valuation{Code: code})
		}
	}
	option := s.sortOption
	s.mu.RUnlock()

	switch option {
	case SortByEstRate:
		sort.SliceStable(withDetail, func(i, j int) bool {
			return withDetail[i].EstRate.GreaterThan(withDetail[j].EstRate)
		})
	case SortByName:
		sort.SliceStable(withDetail, func(i, j int) bool {
			return withDetail[i].Name < withDetail[j].Name
		})
	default:
		sort.SliceStable(withDetail, func(i, j int) bool {
			return withDetail[i].Code < withDetail[j].Code
		})
	}

	return append(withDetail, missing...)
}
