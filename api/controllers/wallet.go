package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/api/responses"
	"github.com/simvoyage/esim-backend/api/validators"
	"github.com/simvoyage/esim-backend/internal/topup"
	"github.com/simvoyage/esim-backend/internal/wallet"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

type walletResponse struct {
	BalanceCents int64                `json:"balance_cents"`
	Frozen       bool                 `json:"frozen"`
	Entries      []models.LedgerEntry `json:"entries"`
}

type topupRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required"`
}

type topupResponse struct {
	EntryID     uuid.UUID `json:"entry_id"`
	Reference   string    `json:"reference"`
	RedirectURL string    `json:"redirect_url"`
	AmountCents int64     `json:"amount_cents"`
}

// WalletBalance returns the balance plus recent ledger entries.
func WalletBalance(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		account, entries, err := svc.Balance(ctx, accountID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, walletResponse{
			BalanceCents: account.BalanceCents,
			Frozen:       account.Frozen,
			Entries:      entries,
		})
	}
}

// WalletTopup creates a pending ledger entry and a hosted checkout session.
func WalletTopup(svc topup.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req topupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Start(ctx, accountID, req.AmountCents)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, topupResponse{
			EntryID:     result.EntryID,
			Reference:   result.Reference,
			RedirectURL: result.RedirectURL,
			AmountCents: result.AmountCents,
		})
	}
}

// WalletTopupCallback reconciles the browser redirect after Stripe Checkout.
// The session status is verified against Stripe before any credit happens.
func WalletTopupCallback(svc topup.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entryID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("entryId")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entryId"))
			return
		}
		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sessionID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required"))
			return
		}

		result, err := svc.Callback(ctx, entryID, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"completed":    result.Completed,
			"reference":    result.Reference,
			"amount_cents": result.AmountCents,
		})
	}
}
