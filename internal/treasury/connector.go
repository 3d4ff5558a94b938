package treasury

import (
	"context"

	"github.com/google/uuid"
)

// Connector represents an integration with an external banking partner.
type Connector interface {
	AuthorizeDeposit(ctx context.Context, input DepositAuthorization) (AuthorizationDecision, error)
	AuthorizePayout(ctx context.Context, input PayoutAuthorization) (AuthorizationDecision, error)
}

// AuthorizationDecision captures the simulated response from the bank.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// DepositAuthorization encapsulates details needed to pull funds from a bank account.
type DepositAuthorization struct {
	BankAccount string
	BankCode    string
	Amount      int64
}

// PayoutAuthorization captures data for a payout to a bank account.
type PayoutAuthorization struct {
	BankAccount string
	Amount      int64
}

// StaticConnector simulates a successful banking integration.
type StaticConnector struct{}

// AuthorizeDeposit approves the funding request with a synthetic reference.
func (StaticConnector) AuthorizeDeposit(_ context.Context, _ DepositAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}

// AuthorizePayout approves the payout request with a synthetic reference.
func (StaticConnector) AuthorizePayout(_ context.Context, _ PayoutAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}
