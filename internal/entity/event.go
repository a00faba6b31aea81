package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}

type Subscriber interface {
	JetstreamEventSubscribe(ctx context.Context) error
}

// ExecutionEvent is the immutable fact emitted after an order's status
// transition has been confirmed by the store. Delivery is best-effort.
type ExecutionEvent struct {
	ID             string          `json:"id"`
	OrderID        int64           `json:"order_id"`
	UserID         int64           `json:"user_id"`
	Kind           OrderKind       `json:"type"`
	Status         OrderStatus     `json:"status"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	ExecutedAt     time.Time       `json:"executed_at"`
}

// Message renders the textual form pushed to websocket observers.
func (e ExecutionEvent) Message() string {
	switch e.Kind {
	case OrderKindStopLoss:
		return fmt.Sprintf("Stop-loss executed for Order ID: %d", e.OrderID)
	case OrderKindTakeProfit:
		return fmt.Sprintf("Take-profit executed for Order ID: %d", e.OrderID)
	default:
		return fmt.Sprintf("Order ID: %d moved to status %s", e.OrderID, e.Status)
	}
}
