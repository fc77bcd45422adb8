package domain

import "time"

// Sync statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SyncResult is the unit of output from a fetch or sync call.
// Status is "error" only for validation failures or total provider
// exhaustion; per-record failures are reported as counts.
type SyncResult struct {
	Status       string         `json:"status"`
	Message      string         `json:"message"`
	Transactions []*Transaction `json:"transactions"`
	Count        int            `json:"count"`
	Timestamp    time.Time      `json:"timestamp"`
}

// SyncSummary is the terminal result of a persisting sync run.
type SyncSummary struct {
	RunID        string `json:"run_id"`
	Added        int    `json:"transactions_added"`
	Skipped      int    `json:"transactions_skipped"`
	Failed       int    `json:"transactions_failed"`
	TotalFetched int    `json:"total_fetched"`
}

// SyncRun is the audit record written for every terminal sync run.
// Corresponds to the sync_runs table.
type SyncRun struct {
	RunID         string // uuid
	PortfolioID   string
	WalletAddress string
	Provider      string // winning provider, empty if none
	Status        string // success | error
	Added         int
	Skipped       int
	Failed        int
	TotalFetched  int
	StartedAt     time.Time
	FinishedAt    time.Time
	Error         string // empty on success
}
