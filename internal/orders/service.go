package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes order reads plus the guarded state machine. Transitions
// outside the allowed edges are no-ops so replayed provider callbacks leave
// the order untouched.
type Service interface {
	Get(ctx context.Context, accountID, orderID uuid.UUID) (*models.Order, error)
	GetAny(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, bool, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, bool, error)
	AttachProfile(ctx context.Context, orderID uuid.UUID, profile *models.EsimProfile) (*models.Order, error)
}

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusPaid, enums.OrderStatusFailed},
	enums.OrderStatusPaid:      {enums.OrderStatusCompleted, enums.OrderStatusRefunded},
	enums.OrderStatusCompleted: {enums.OrderStatusRefunded},
}

func transitionAllowed(from, to enums.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type service struct {
	tx   txRunner
	repo Repository
}

// NewService wires the orders service.
func NewService(tx txRunner, repo Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

func (s *service) Get(ctx context.Context, accountID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.GetAny(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AccountID != accountID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) GetAny(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Order, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	list, err := s.repo.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// Transition moves an order along an allowed edge. The bool reports whether
// the status actually changed.
func (s *service) Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, bool, error) {
	var (
		order   *models.Order
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, didChange, err := s.transition(ctx, s.repo.WithTx(tx), orderID, target)
		if err != nil {
			return err
		}
		order = moved
		changed = didChange
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, changed, nil
}

// TransitionTx runs the transition inside a caller-owned transaction.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, bool, error) {
	if tx == nil {
		return nil, false, fmt.Errorf("transaction required")
	}
	return s.transition(ctx, s.repo.WithTx(tx), orderID, target)
}

func (s *service) transition(ctx context.Context, repo Repository, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, bool, error) {
	if orderID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !target.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", target))
	}

	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	if order == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if order.Status == target || !transitionAllowed(order.Status, target) {
		return order, false, nil
	}

	order.Status = target
	if err := repo.Update(ctx, order); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	return order, true, nil
}

// AttachProfile stores the provisioned profile and completes the order in one
// transaction. Attaching to an order that already owns a profile fails.
func (s *service) AttachProfile(ctx context.Context, orderID uuid.UUID, profile *models.EsimProfile) (*models.Order, error) {
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile is required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if locked == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if locked.Status != enums.OrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in status %s cannot accept a profile", locked.Status))
		}

		profile.OrderID = locked.ID
		profile.AccountID = locked.AccountID
		if err := repo.CreateProfile(ctx, profile); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store profile")
		}

		locked.Status = enums.OrderStatusCompleted
		if err := repo.Update(ctx, locked); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Profile = profile
	return order, nil
}
