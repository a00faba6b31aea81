package trigger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/krobus00/order-trigger-service/internal/service/position"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrNotOrderOwner       = errors.New("not authorized to act on this order")
	ErrInvalidOrderKind    = errors.New("invalid order type")
	ErrInvalidTriggerPrice = errors.New("trigger price must be a positive number")
	ErrInvalidUserID       = errors.New("user id is required")
	ErrStatusConflict      = errors.New("order status changed concurrently")
)

// ExecutionOutcome reports the result of an on-demand execution attempt.
type ExecutionOutcome string

const (
	OutcomeStopLossExecuted   ExecutionOutcome = "Stop loss executed"
	OutcomeTakeProfitExecuted ExecutionOutcome = "Take profit executed"
	OutcomeConditionsNotMet   ExecutionOutcome = "Conditions not met, waiting for the trigger price"
)

// OrderStore is the conditional-transition boundary. UpdateStatus must
// mutate the row only when its stored status equals expected, and must
// return sql.ErrNoRows when no row matched; this compare-and-set is the
// single serialization point for order execution.
type OrderStore interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]entity.Order, error)
	ListByStatus(ctx context.Context, statuses []entity.OrderStatus) ([]entity.Order, error)
	UpdateStatus(ctx context.Context, id int64, expected, next entity.OrderStatus) (*entity.Order, error)
}

type PositionReader interface {
	PositionForUser(ctx context.Context, userID int64) (*entity.Position, error)
	PriceForUser(ctx context.Context, userID int64) (decimal.Decimal, error)
	ClosePosition(ctx context.Context, pos *entity.Position) error
}

// EventSink receives execution events. Delivery is best-effort; a failed
// publish never fails the execution that produced it.
type EventSink interface {
	Publish(ctx context.Context, event entity.ExecutionEvent) error
}

type Service struct {
	orders    OrderStore
	positions PositionReader
	events    EventSink
}

func NewService(orders OrderStore, positions PositionReader, events EventSink) *Service {
	return &Service{
		orders:    orders,
		positions: positions,
		events:    events,
	}
}

func (s *Service) CreateOrder(ctx context.Context, userID int64, kind entity.OrderKind, triggerPrice decimal.Decimal) (*entity.Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	if !kind.Valid() {
		return nil, ErrInvalidOrderKind
	}
	if !triggerPrice.GreaterThan(decimal.Zero) {
		return nil, ErrInvalidTriggerPrice
	}

	order := &entity.Order{
		UserID:       userID,
		Kind:         kind,
		TriggerPrice: triggerPrice,
		Status:       entity.OrderStatusActive,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		logrus.Errorf("failed to create order: %v", err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id":      order.ID,
		"user_id":       order.UserID,
		"type":          order.Kind,
		"trigger_price": order.TriggerPrice.String(),
	}).Info("order created")

	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID int64) ([]entity.Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}

	return s.orders.ListByUser(ctx, userID)
}

func (s *Service) GetOrder(ctx context.Context, orderID, userID int64) (*entity.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}

	return order, nil
}

// EvaluatePass runs one evaluation pass over a snapshot of active orders.
// Individual order failures are logged and skipped; they never abort the
// pass for the remaining candidates.
func (s *Service) EvaluatePass(ctx context.Context, observation entity.PriceObservation) error {
	orders, err := s.orders.ListByStatus(ctx, []entity.OrderStatus{entity.OrderStatusActive})
	if err != nil {
		return fmt.Errorf("load active orders: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"instrument": observation.Instrument,
		"price":      observation.Price.String(),
		"candidates": len(orders),
	}).Debug("evaluation pass started")

	for _, order := range orders {
		if err := s.evaluateOrder(ctx, order); err != nil {
			logrus.WithFields(logrus.Fields{
				"order_id": order.ID,
				"user_id":  order.UserID,
			}).Warnf("order evaluation skipped: %v", err)
		}
	}

	return nil
}

func (s *Service) evaluateOrder(ctx context.Context, order entity.Order) error {
	pos, err := s.positions.PositionForUser(ctx, order.UserID)
	if err != nil {
		if errors.Is(err, position.ErrPositionNotFound) {
			logrus.WithFields(logrus.Fields{
				"order_id": order.ID,
				"user_id":  order.UserID,
			}).Debug("no resolvable position, order skipped")
			return nil
		}
		return err
	}

	referencePrice, err := s.positions.PriceForUser(ctx, order.UserID)
	if err != nil {
		return err
	}

	if !order.Matches(referencePrice) {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"order_id":        order.ID,
		"type":            order.Kind,
		"trigger_price":   order.TriggerPrice.String(),
		"reference_price": referencePrice.String(),
	}).Info("trigger condition met")

	_, err = s.executeMatched(ctx, order, pos, referencePrice)
	return err
}

// executeMatched attempts the active->executed transition and, on winning
// the race, applies the kind-specific side effect and emits the event.
// Losing the race is the expected outcome of at-most-once execution and
// returns no error.
func (s *Service) executeMatched(ctx context.Context, order entity.Order, pos *entity.Position, referencePrice decimal.Decimal) (*entity.Order, error) {
	executed, err := s.orders.UpdateStatus(ctx, order.ID, entity.OrderStatusActive, entity.OrderStatusExecuted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithField("order_id", order.ID).Debug("order already settled by a concurrent pass")
			return nil, nil
		}
		return nil, fmt.Errorf("transition order %d: %w", order.ID, err)
	}

	if executed.Kind == entity.OrderKindStopLoss {
		if err := s.positions.ClosePosition(ctx, pos); err != nil {
			// the transition is already committed, never roll it back
			logrus.WithFields(logrus.Fields{
				"order_id": executed.ID,
				"user_id":  executed.UserID,
			}).Errorf("failed to close position after stop-loss execution: %v", err)
		}
	}

	s.emit(ctx, executed, referencePrice)

	logrus.WithFields(logrus.Fields{
		"order_id":        executed.ID,
		"user_id":         executed.UserID,
		"type":            executed.Kind,
		"reference_price": referencePrice.String(),
	}).Info("order executed")

	return executed, nil
}

func (s *Service) emit(ctx context.Context, order *entity.Order, referencePrice decimal.Decimal) {
	event := entity.ExecutionEvent{
		ID:             uuid.NewString(),
		OrderID:        order.ID,
		UserID:         order.UserID,
		Kind:           order.Kind,
		Status:         order.Status,
		ReferencePrice: referencePrice,
		ExecutedAt:     time.Now().UTC(),
	}

	if err := s.events.Publish(ctx, event); err != nil {
		logrus.WithField("order_id", order.ID).Errorf("failed to publish execution event: %v", err)
	}
}

// ExecuteOrder is the on-demand execution path. It follows the identical
// match-then-conditional-transition discipline as the periodic pass and is
// safe to run concurrently with it.
func (s *Service) ExecuteOrder(ctx context.Context, orderID, userID int64) (ExecutionOutcome, error) {
	order, err := s.GetOrder(ctx, orderID, userID)
	if err != nil {
		return "", err
	}

	pos, err := s.positions.PositionForUser(ctx, userID)
	if err != nil {
		return "", err
	}

	referencePrice, err := s.positions.PriceForUser(ctx, userID)
	if err != nil {
		return "", err
	}

	if order.Status.Terminal() || !order.Matches(referencePrice) {
		return OutcomeConditionsNotMet, nil
	}

	executed, err := s.executeMatched(ctx, *order, pos, referencePrice)
	if err != nil {
		return "", err
	}
	if executed == nil {
		// lost the race against a concurrent evaluation pass
		return OutcomeConditionsNotMet, nil
	}

	if executed.Kind == entity.OrderKindStopLoss {
		return OutcomeStopLossExecuted, nil
	}

	return OutcomeTakeProfitExecuted, nil
}

// CancelOrder moves an active order to cancelled through the same
// conditional transition. Cancelling a terminal order is a conflict.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID int64) (*entity.Order, error) {
	order, err := s.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.orders.UpdateStatus(ctx, order.ID, entity.OrderStatusActive, entity.OrderStatusCancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id": cancelled.ID,
		"user_id":  cancelled.UserID,
	}).Info("order cancelled")

	return cancelled, nil
}

// CheckOrder reports whether the user's current reference price has reached
// the given trigger price.
func (s *Service) CheckOrder(ctx context.Context, userID int64, triggerPrice decimal.Decimal) (bool, error) {
	if userID <= 0 {
		return false, ErrInvalidUserID
	}
	if !triggerPrice.GreaterThan(decimal.Zero) {
		return false, ErrInvalidTriggerPrice
	}

	referencePrice, err := s.positions.PriceForUser(ctx, userID)
	if err != nil {
		return false, err
	}

	return referencePrice.GreaterThanOrEqual(triggerPrice), nil
}
