package domain

import "time"

// PortfolioWalletBinding links a portfolio to its active wallet address.
// One active wallet per portfolio at a time; replacing it invalidates the
// portfolio's dedup cache.
type PortfolioWalletBinding struct {
	PortfolioID   string
	WalletAddress WalletAddress
	UpdatedAt     time.Time
}
