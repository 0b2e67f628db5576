package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/simvoyage/esim-backend/internal/topup"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

const topupSessionType = "WALLET_TOPUP"

type ServiceParams struct {
	Topups topup.Service
	Logger *logger.Logger
}

// Service settles wallet top-ups from Stripe Checkout lifecycle events. The
// webhook is the authoritative signal; the browser redirect only reconciles.
type Service struct {
	topups topup.Service
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Topups == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "topup service required")
	}
	return &Service{topups: params.Topups, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		ref, err := topupReference(event)
		if err != nil {
			return err
		}
		if ref == "" {
			return nil
		}
		_, _, err = s.topups.Complete(ctx, ref, enums.PaymentProviderStripe)
		return err
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		ref, err := topupReference(event)
		if err != nil {
			return err
		}
		if ref == "" {
			return nil
		}
		_, _, err = s.topups.Fail(ctx, ref, enums.PaymentProviderStripe)
		return err
	default:
		if s.logg != nil {
			s.logg.Info(ctx, fmt.Sprintf("ignoring stripe event %s", event.Type))
		}
		return nil
	}
}

// topupReference extracts the ledger reference from the session metadata.
// Sessions created for anything other than a wallet top-up return empty.
func topupReference(event *stripe.Event) (string, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if session.Metadata[metadataTypeKey] != topupSessionType {
		return "", nil
	}
	ref := session.Metadata[metadataReferenceKey]
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session metadata missing reference")
	}
	return ref, nil
}

const (
	metadataTypeKey      = "type"
	metadataReferenceKey = "reference"
)
