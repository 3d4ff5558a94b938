package treasury

// DepositRequest captures user-provided data to fund a wallet from a bank account.
type DepositRequest struct {
	BankAccount string `json:"bank_account"`
	BankCode    string `json:"bank_code"`
	Amount      int64  `json:"amount"`
	ClientTxID  string `json:"client_tx_id"`
}

// PayoutRequest captures payout details to push funds back to a bank account.
type PayoutRequest struct {
	BankAccount string `json:"bank_account"`
	Amount      int64  `json:"amount"`
	ClientTxID  string `json:"client_tx_id"`
}

// FundingResponse represents the API response for treasury funding actions.
type FundingResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	WalletBalance int64  `json:"wallet_balance"`
	BankReference string `json:"bank_reference"`
}
