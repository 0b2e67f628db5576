package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/api/responses"
	"github.com/simvoyage/esim-backend/api/validators"
	"github.com/simvoyage/esim-backend/internal/orders"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

func OrdersList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.List(ctx, accountID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		order, err := svc.Get(ctx, accountID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}
