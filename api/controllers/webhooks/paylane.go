package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/simvoyage/esim-backend/api/responses"
	paylanewebhook "github.com/simvoyage/esim-backend/internal/webhooks/paylane"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/paylane"
)

type PayLaneWebhookService interface {
	HandleNotification(ctx context.Context, payload *paylanewebhook.Payload) (*paylanewebhook.Outcome, error)
}

type paylaneClient interface {
	SigningKey() string
}

// PayLaneWebhook handles payment gateway notifications for card-funded
// top-ups and orders.
func PayLaneWebhook(svc PayLaneWebhookService, client paylaneClient, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paylane client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(paylane.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "signature missing"))
			return
		}
		if !paylane.VerifySignature(body, client.SigningKey(), sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "invalid signature"))
			return
		}

		payload, err := paylanewebhook.ParsePayload(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := strings.TrimSpace(payload.TransactionID)
		if eventID == "" {
			eventID = fmt.Sprintf("%s:%s", payload.ReferenceID, payload.Status)
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		outcome, err := svc.HandleNotification(ctx, payload)
		if err != nil {
			_ = guard.Delete(ctx, eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("paylane notification %s applied to %s", eventID, outcome.Kind))
		}
		responses.WriteSuccess(w, nil)
	}
}
