package model

const (
	// AggregateAccountID is the reserved virtual account merging every real
	// account's positions per fund. It is never persisted.
	AggregateAccountID int64 = 0
	// DefaultAccountID is created by the initial migration and cannot be
	// deleted.
	DefaultAccountID int64 = 1
)

type Account struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
