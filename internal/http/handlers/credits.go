package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"reelsmith/internal/domain"
)

type accountResponse struct {
	UserID        string `json:"user_id"`
	Balance       int64  `json:"balance"`
	TotalSpent    int64  `json:"total_spent"`
	TotalEarned   int64  `json:"total_earned"`
	TotalRealCost int64  `json:"total_real_cost"`
}

type transactionResponse struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Kind      string    `json:"kind"`
	Provider  string    `json:"provider,omitempty"`
	RealCost  int64     `json:"real_cost"`
	ProjectID string    `json:"project_id,omitempty"`
	RefundOf  string    `json:"refund_of,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	account, err := a.Credits.Account(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no credit account")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: account lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load account")
		return
	}
	a.json(w, http.StatusOK, accountResponse{
		UserID:        account.UserID,
		Balance:       account.Balance,
		TotalSpent:    account.TotalSpent,
		TotalEarned:   account.TotalEarned,
		TotalRealCost: account.TotalRealCost,
	})
}

func (a *App) CreditsTransactions(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	transactions, err := a.Credits.Transactions(r.Context(), userID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: transactions lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load transactions")
		return
	}
	out := make([]transactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		out = append(out, transactionResponse{
			ID:        tx.ID,
			Amount:    tx.Amount,
			Kind:      string(tx.Kind),
			Provider:  tx.Provider,
			RealCost:  tx.RealCost,
			ProjectID: tx.ProjectID,
			RefundOf:  tx.RefundOf,
			CreatedAt: tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"transactions": out})
}
