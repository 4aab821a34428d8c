// Package credits owns the pricing table and the append-only credit ledger.
// The balance check-and-debit is a single conditional UPDATE so that two
// items finishing at the same instant cannot both pass a stale balance check
// and jointly overdraw the account.
package credits

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
	"reelsmith/internal/sqlinline"
)

// PricingMode decides when a unit of work is charged relative to the
// provider call.
type PricingMode string

const (
	// ModePreCharge debits before the call; the price is known up front.
	// A later failure of the same item must be compensated with a refund.
	ModePreCharge PricingMode = "pre_charge"
	// ModePostCharge debits after a successful call; used for providers
	// whose real cost is only known once the call finishes (self-hosted
	// GPU endpoints).
	ModePostCharge PricingMode = "post_charge"
)

// Price is one active pricing row. RealCost is the expected operational
// cost per unit in micro-USD for providers whose cost is known up front; it
// is zero for post-charge providers, whose cost is reported per call.
type Price struct {
	Credits  int64
	Mode     PricingMode
	RealCost int64
}

// ChargeParams describes one unit-of-work debit.
type ChargeParams struct {
	UserID    string
	Credits   int64
	RealCost  int64
	Kind      domain.JobKind
	Provider  string
	ProjectID string
	// Override skips the balance guard (free generation). The transaction
	// is still appended for audit.
	Override bool
}

// Ledger computes prices and applies atomic debits, refunds and reads
// against the accounts and transactions tables.
type Ledger struct {
	sql    infra.SQLExecutor
	logger infra.Logger
}

func NewLedger(sql infra.SQLExecutor, logger infra.Logger) *Ledger {
	return &Ledger{sql: sql, logger: logger}
}

// PriceOf looks up the active price for an action kind and provider.
// Returns domain.ErrPricingNotFound when no active row exists; callers must
// decide explicitly whether to block or fall back, never silently.
func (l *Ledger) PriceOf(ctx context.Context, kind domain.JobKind, provider string) (Price, error) {
	var (
		creditsVal int64
		mode       string
		realCost   int64
	)
	row := l.sql.QueryRow(ctx, sqlinline.QActivePrice, string(kind), provider)
	if err := row.Scan(&creditsVal, &mode, &realCost); err != nil {
		if infra.IsNoRows(err) {
			return Price{}, fmt.Errorf("%s/%s: %w", kind, provider, domain.ErrPricingNotFound)
		}
		return Price{}, fmt.Errorf("price lookup: %w", err)
	}
	return Price{Credits: creditsVal, Mode: PricingMode(mode), RealCost: realCost}, nil
}

// Charge verifies sufficient balance (unless overridden), decrements it and
// appends a transaction, all in one statement. Returns
// domain.ErrInsufficientCredits when the guard fails.
func (l *Ledger) Charge(ctx context.Context, params ChargeParams) (*domain.CreditTransaction, error) {
	if params.Credits < 0 {
		return nil, fmt.Errorf("charge amount must not be negative")
	}
	tx := &domain.CreditTransaction{
		ID:        uuid.NewString(),
		UserID:    params.UserID,
		Amount:    -params.Credits,
		Kind:      params.Kind,
		Provider:  params.Provider,
		RealCost:  params.RealCost,
		ProjectID: params.ProjectID,
	}
	row := l.sql.QueryRow(ctx, sqlinline.QChargeAccount,
		params.UserID,
		params.Credits,
		params.RealCost,
		tx.ID,
		params.Override,
		string(params.Kind),
		params.Provider,
		params.ProjectID,
	)
	if err := row.Scan(&tx.ID, &tx.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", params.UserID, domain.ErrInsufficientCredits)
		}
		return nil, fmt.Errorf("charge: %w", err)
	}
	l.logger.Info().
		Str("user_id", params.UserID).
		Int64("credits", params.Credits).
		Int64("real_cost", params.RealCost).
		Str("kind", string(params.Kind)).
		Str("provider", params.Provider).
		Msg("credits: charged")
	return tx, nil
}

// Refund reverses a prior debit via a compensating transaction, never a
// balance edit. It is safe to call at most once per transaction; a second
// call fails on the unique refund_of index and surfaces
// domain.ErrAlreadyRefunded.
func (l *Ledger) Refund(ctx context.Context, transactionID string) (*domain.CreditTransaction, error) {
	refund := &domain.CreditTransaction{RefundOf: transactionID}
	row := l.sql.QueryRow(ctx, sqlinline.QRefundTransaction, uuid.NewString(), transactionID)
	err := row.Scan(
		&refund.ID,
		&refund.UserID,
		&refund.Amount,
		&refund.Kind,
		&refund.Provider,
		&refund.RealCost,
		&refund.ProjectID,
		&refund.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, domain.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, domain.ErrAlreadyRefunded)
		}
		return nil, fmt.Errorf("refund: %w", err)
	}
	l.logger.Info().
		Str("user_id", refund.UserID).
		Str("refund_of", transactionID).
		Int64("credits", refund.Amount).
		Msg("credits: refunded")
	return refund, nil
}

// Account returns the cached aggregate row for a user.
func (l *Ledger) Account(ctx context.Context, userID string) (*domain.CreditsAccount, error) {
	var account domain.CreditsAccount
	row := l.sql.QueryRow(ctx, sqlinline.QGetAccount, userID)
	err := row.Scan(
		&account.UserID,
		&account.Balance,
		&account.TotalSpent,
		&account.TotalEarned,
		&account.TotalRealCost,
		&account.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("account %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	return &account, nil
}

// Transactions lists a user's most recent ledger entries.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.sql.Query(ctx, sqlinline.QListTransactions, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Amount,
			&tx.Kind,
			&tx.Provider,
			&tx.RealCost,
			&tx.ProjectID,
			&tx.RefundOf,
			&tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Rebuild recomputes the account aggregate as a fold over the transaction
// log. Operator tool for reconciling a drifted cache.
func (l *Ledger) Rebuild(ctx context.Context, userID string) error {
	tag, err := l.sql.Exec(ctx, sqlinline.QRebuildAccount, userID)
	if err != nil {
		return fmt.Errorf("rebuild account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// SetPrice retires any active price for the pair whose terms differ and
// installs the given one. Used by the pricing seed tool.
func (l *Ledger) SetPrice(ctx context.Context, kind domain.JobKind, provider string, price Price) error {
	if _, err := l.sql.Exec(ctx, sqlinline.QRetirePrice,
		string(kind), provider, price.Credits, string(price.Mode), price.RealCost); err != nil {
		return fmt.Errorf("retire price %s/%s: %w", kind, provider, err)
	}
	if _, err := l.sql.Exec(ctx, sqlinline.QInsertPriceIfMissing,
		string(kind), provider, price.Credits, string(price.Mode), price.RealCost); err != nil {
		return fmt.Errorf("insert price %s/%s: %w", kind, provider, err)
	}
	l.logger.Info().
		Str("kind", string(kind)).
		Str("provider", provider).
		Int64("credits", price.Credits).
		Str("mode", string(price.Mode)).
		Msg("credits: price set")
	return nil
}
