package controllers

import (
	"net/http"

	"github.com/simvoyage/esim-backend/api/responses"
	"github.com/simvoyage/esim-backend/api/validators"
	"github.com/simvoyage/esim-backend/internal/auth"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.Register(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.Login(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, session)
	}
}
