package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/api/responses"
	"github.com/simvoyage/esim-backend/api/validators"
	"github.com/simvoyage/esim-backend/internal/accounts"
	adminsvc "github.com/simvoyage/esim-backend/internal/admin"
	checkoutsvc "github.com/simvoyage/esim-backend/internal/checkout"
	"github.com/simvoyage/esim-backend/internal/promo"
	"github.com/simvoyage/esim-backend/internal/settings"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/pagination"
)

func AdminSettingsGet(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		current, err := svc.Get(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, current)
	}
}

func AdminSettingsUpdate(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		adminID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req settings.UpdateSettingsInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		req.UpdatedBy = adminID

		updated, err := svc.Update(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func AdminPromoList(svc promo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		list, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminPromoCreate(svc promo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req promo.UpsertPromoInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		created, err := svc.Create(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func AdminPromoUpdate(svc promo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		promoID, err := uuid.Parse(chi.URLParam(r, "promoId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid promo id"))
			return
		}

		var req promo.UpsertPromoInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		updated, err := svc.Update(ctx, promoID, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func AdminPromoDelete(svc promo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		promoID, err := uuid.Parse(chi.URLParam(r, "promoId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid promo id"))
			return
		}

		if err := svc.Delete(ctx, promoID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

type adjustRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
}

type adminAccountView struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

// AdminAccountList returns recent accounts without credential material.
func AdminAccountList(repo *accounts.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := repo.List(ctx, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list accounts"))
			return
		}

		views := make([]adminAccountView, 0, len(list))
		for _, account := range list {
			views = append(views, adminAccountView{
				ID:           account.ID,
				Email:        account.Email,
				Name:         account.Name,
				Role:         string(account.Role),
				BalanceCents: account.BalanceCents,
				CreatedAt:    account.CreatedAt,
			})
		}
		responses.WriteSuccess(w, views)
	}
}

func AdminAccountAdjust(svc adminsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		adminID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		accountID, err := uuid.Parse(chi.URLParam(r, "accountId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
			return
		}

		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := svc.Adjust(ctx, adminsvc.AdjustInput{
			AccountID:   accountID,
			AmountCents: req.AmountCents,
			Reason:      req.Reason,
			AdjustedBy:  adminID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

func AdminOrderRefund(svc adminsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		adminID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		result, err := svc.Refund(ctx, orderID, adminID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminOrderReprovision(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		result, err := svc.Reprovision(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"order":   result.Order,
			"pending": result.Pending,
		})
	}
}
