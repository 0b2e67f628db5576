package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/api/middleware"
	"github.com/simvoyage/esim-backend/api/responses"
	"github.com/simvoyage/esim-backend/api/validators"
	checkoutsvc "github.com/simvoyage/esim-backend/internal/checkout"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

type checkoutRequest struct {
	PackageCode string `json:"package_code"`
	Slug        string `json:"slug"`
	PromoCode   string `json:"promo_code"`
}

type checkoutResponse struct {
	OrderID         uuid.UUID `json:"order_id"`
	Reference       string    `json:"reference"`
	Status          string    `json:"status"`
	TotalCents      int64     `json:"total_cents"`
	DiscountCents   int64     `json:"discount_cents"`
	NewBalanceCents int64     `json:"new_balance_cents"`
	Pending         bool      `json:"provisioning_pending"`
}

// Checkout executes a wallet-funded purchase for the authenticated account.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if req.PackageCode == "" && req.Slug == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "package_code or slug is required"))
			return
		}

		result, err := svc.Execute(ctx, checkoutsvc.Input{
			AccountID:   accountID,
			PackageCode: req.PackageCode,
			Slug:        req.Slug,
			PromoCode:   req.PromoCode,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderID:         result.Order.ID,
			Reference:       result.Order.Reference,
			Status:          string(result.Order.Status),
			TotalCents:      result.Order.TotalCents,
			DiscountCents:   result.Order.DiscountCents,
			NewBalanceCents: result.NewBalanceCents,
			Pending:         result.Pending,
		})
	}
}

func accountIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.AccountIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid account id")
	}
	return id, nil
}
