package model

// Preferences is the per-user UI state persisted remotely: the watchlist as a
// serialized JSON array of fund codes, the selected account and the sort
// option.
type Preferences struct {
	Watchlist      string `json:"watchlist"`
	CurrentAccount int64  `json:"currentAccount"`
	SortOption     string `json:"sortOption,omitempty"`
}

const (
	PrefKeyWatchlist      = "user_watchlist"
	PrefKeyCurrentAccount = "user_current_account"
	PrefKeySortOption     = "user_sort_option"
)
