package wallet

import "time"

// Wallet represents a stored value account backed by the ledger. HR wallets
// fund payroll streams; employee wallets receive the vested payouts.
type Wallet struct {
	ID          string
	OwnerID     string
	AccountCode string
	Currency    string
	Status      string
	CreatedAt   time.Time
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Amount   int64
	AsOf     time.Time
}

// Allowance reports how much the streaming engine may still draw from a wallet.
type Allowance struct {
	WalletID string
	Amount   int64
	AsOf     time.Time
}
