package paylanewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/simvoyage/esim-backend/internal/orders"
	"github.com/simvoyage/esim-backend/internal/topup"
	"github.com/simvoyage/esim-backend/internal/wallet"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

// Payload is the gateway's notification body.
type Payload struct {
	ReferenceID   string `json:"referenceId"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

// Outcome reports what a notification resolved to.
type Outcome struct {
	Reference string
	Kind      string // "topup" or "order"
	Applied   bool
}

type referenceLookup interface {
	FindEntryByReference(ctx context.Context, reference string) (*models.LedgerEntry, error)
}

type orderLookup interface {
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
}

type ServiceParams struct {
	Topups     topup.Service
	WalletRepo wallet.Repository
	Orders     orders.Service
	OrdersRepo orders.Repository
	Logger     *logger.Logger
}

// Service applies gateway payment notifications to whichever record a
// reference points at, a pending top-up entry first, an order otherwise.
type Service struct {
	topups     topup.Service
	walletRepo referenceLookup
	orders     orders.Service
	ordersRepo orderLookup
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Topups == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "topup service required")
	}
	if params.WalletRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	return &Service{
		topups:     params.Topups,
		walletRepo: params.WalletRepo,
		orders:     params.Orders,
		ordersRepo: params.OrdersRepo,
		logg:       params.Logger,
	}, nil
}

// ParsePayload decodes and validates the notification body.
func ParsePayload(body []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notification payload")
	}
	if strings.TrimSpace(payload.ReferenceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referenceId is required")
	}
	if strings.TrimSpace(payload.Status) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status is required")
	}
	return &payload, nil
}

// HandleNotification routes a verified notification. Replays are successful
// no-ops so gateway retries always receive 2xx.
func (s *Service) HandleNotification(ctx context.Context, payload *Payload) (*Outcome, error) {
	if payload == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload is required")
	}

	ref := strings.TrimSpace(payload.ReferenceID)
	entry, err := s.walletRepo.FindEntryByReference(ctx, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up ledger entry")
	}
	if entry != nil {
		return s.applyToTopup(ctx, ref, payload.Status)
	}

	order, err := s.ordersRepo.FindByReference(ctx, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up order")
	}
	if order != nil {
		return s.applyToOrder(ctx, order, payload.Status)
	}

	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown reference %q", ref))
}

func (s *Service) applyToTopup(ctx context.Context, ref, status string) (*Outcome, error) {
	out := &Outcome{Reference: ref, Kind: "topup"}
	switch normalizeStatus(status) {
	case statusCompleted:
		_, applied, err := s.topups.Complete(ctx, ref, enums.PaymentProviderPayLane)
		if err != nil {
			return nil, err
		}
		out.Applied = applied
	case statusFailed:
		_, applied, err := s.topups.Fail(ctx, ref, enums.PaymentProviderPayLane)
		if err != nil {
			return nil, err
		}
		out.Applied = applied
	case statusRefunded:
		// Top-up refunds are handled manually through support.
		s.logInfo(ctx, fmt.Sprintf("ignoring top-up refund notification for %s", ref))
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported status %q", status))
	}
	return out, nil
}

func (s *Service) applyToOrder(ctx context.Context, order *models.Order, status string) (*Outcome, error) {
	out := &Outcome{Reference: order.Reference, Kind: "order"}

	var target enums.OrderStatus
	switch normalizeStatus(status) {
	case statusCompleted:
		target = enums.OrderStatusPaid
	case statusFailed:
		target = enums.OrderStatusFailed
	case statusRefunded:
		target = enums.OrderStatusRefunded
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported status %q", status))
	}

	_, changed, err := s.orders.Transition(ctx, order.ID, target)
	if err != nil {
		return nil, err
	}
	out.Applied = changed
	return out, nil
}

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusRefunded  = "refunded"
	statusUnknown   = "unknown"
)

func normalizeStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED", "SUCCESS", "APPROVED":
		return statusCompleted
	case "DECLINED", "FAILED", "REJECTED":
		return statusFailed
	case "REFUNDED":
		return statusRefunded
	default:
		return statusUnknown
	}
}

func (s *Service) logInfo(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}
