package domain

import "time"

// CreditTransaction is one append-only ledger entry. Amount is signed in
// credits: negative for a debit, positive for a grant or refund. RealCost is
// the operational cost in micro-USD, tracked independently of credits.
type CreditTransaction struct {
	ID        string
	UserID    string
	Amount    int64
	Kind      JobKind
	Provider  string
	RealCost  int64
	ProjectID string
	RefundOf  string
	CreatedAt time.Time
}

// CreditsAccount is the cached aggregate over a user's transactions. The
// transaction log is the source of truth; the account row must always be
// reconstructible as a fold over it.
type CreditsAccount struct {
	UserID        string
	Balance       int64
	TotalSpent    int64
	TotalEarned   int64
	TotalRealCost int64
	UpdatedAt     time.Time
}
