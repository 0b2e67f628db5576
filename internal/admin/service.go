package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/internal/orders"
	"github.com/simvoyage/esim-backend/internal/wallet"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/reference"
)

// AdjustInput is a manual balance correction applied by an operator.
type AdjustInput struct {
	AccountID   uuid.UUID
	AmountCents int64
	Reason      string
	AdjustedBy  uuid.UUID
}

// RefundResult reports the compensating credit and the refunded order.
type RefundResult struct {
	Order *models.Order
	Entry *models.LedgerEntry
}

// Service covers operator actions on wallets and orders.
type Service interface {
	Adjust(ctx context.Context, input AdjustInput) (*models.LedgerEntry, error)
	Refund(ctx context.Context, orderID, refundedBy uuid.UUID) (*RefundResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	tx        txRunner
	wallet    wallet.Service
	orders    orders.Service
	logg      *logger.Logger
	refPrefix string
}

// ServiceParams bundles the admin service dependencies.
type ServiceParams struct {
	Tx              txRunner
	Wallet          wallet.Service
	Orders          orders.Service
	Logger          *logger.Logger
	ReferencePrefix string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	prefix := strings.TrimSpace(params.ReferencePrefix)
	if prefix == "" {
		prefix = "SIMV"
	}
	return &service{
		tx:        params.Tx,
		wallet:    params.Wallet,
		orders:    params.Orders,
		logg:      params.Logger,
		refPrefix: prefix,
	}, nil
}

// Adjust credits or debits a wallet outside the purchase flow. Debits go
// through the same balance guard as purchases, so an adjustment can never
// take a balance negative.
func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.LedgerEntry, error) {
	if input.AmountCents == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	entry, err := s.wallet.Apply(ctx, wallet.ApplyInput{
		AccountID:   input.AccountID,
		Type:        enums.LedgerEntryTypeBonus,
		AmountCents: input.AmountCents,
		Reference:   reference.New(s.refPrefix),
		Provider:    enums.PaymentProviderManual,
		Description: fmt.Sprintf("Manual adjustment by %s: %s", input.AdjustedBy, reason),
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		ctx = s.logg.WithAccountID(ctx, input.AccountID.String())
		s.logg.Info(ctx, fmt.Sprintf("manual adjustment of %d cents applied", input.AmountCents))
	}
	return entry, nil
}

// Refund credits the order total back to the wallet and moves the order to
// REFUNDED, both inside one transaction so a failed transition rolls the
// credit back. Only PAID and COMPLETED orders qualify. The refund reference
// is derived from the order reference, so replaying a refund that already
// settled trips the state check instead of crediting twice.
func (s *service) Refund(ctx context.Context, orderID, refundedBy uuid.UUID) (*RefundResult, error) {
	order, err := s.orders.GetAny(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be refunded", order.Status))
	}

	var result RefundResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if order.TotalCents > 0 {
			entry, err := s.wallet.ApplyTx(ctx, tx, wallet.ApplyInput{
				AccountID:   order.AccountID,
				Type:        enums.LedgerEntryTypeRefund,
				AmountCents: order.TotalCents,
				Reference:   fmt.Sprintf("%s-REFUND", order.Reference),
				Provider:    enums.PaymentProviderWallet,
				Description: fmt.Sprintf("Refund for order %s by %s", order.Reference, refundedBy),
			})
			if err != nil {
				return err
			}
			result.Entry = entry
		}

		refunded, changed, err := s.orders.TransitionTx(ctx, tx, order.ID, enums.OrderStatusRefunded)
		if err != nil {
			return err
		}
		if !changed {
			// Lost a race with another refund; roll the credit back.
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order in status %s cannot be refunded", refunded.Status))
		}
		result.Order = refunded
		return nil
	})
	if err != nil {
		s.wallet.FreezeOnMismatch(ctx, err)
		if s.logg != nil {
			ctx = s.logg.WithReference(ctx, order.Reference)
			s.logg.Error(ctx, "refund rolled back", err)
		}
		return nil, err
	}

	return &RefundResult{Order: result.Order, Entry: result.Entry}, nil
}
