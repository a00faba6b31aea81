package trigger_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/krobus00/order-trigger-service/internal/entity"
	positionsvc "github.com/krobus00/order-trigger-service/internal/service/position"
	"github.com/krobus00/order-trigger-service/internal/service/trigger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryOrderStore struct {
	mu     sync.Mutex
	seq    int64
	orders map[int64]entity.Order
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{orders: make(map[int64]entity.Order)}
}

func (s *memoryOrderStore) Create(_ context.Context, order *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	order.ID = s.seq
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	s.orders[order.ID] = *order
	return nil
}

func (s *memoryOrderStore) GetByID(_ context.Context, id int64) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &order, nil
}

func (s *memoryOrderStore) ListByUser(_ context.Context, userID int64) ([]entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := []entity.Order{}
	for id := int64(1); id <= s.seq; id++ {
		if order, ok := s.orders[id]; ok && order.UserID == userID {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (s *memoryOrderStore) ListByStatus(_ context.Context, statuses []entity.OrderStatus) ([]entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := []entity.Order{}
	for id := int64(1); id <= s.seq; id++ {
		order, ok := s.orders[id]
		if !ok {
			continue
		}
		for _, status := range statuses {
			if order.Status == status {
				orders = append(orders, order)
				break
			}
		}
	}
	return orders, nil
}

func (s *memoryOrderStore) UpdateStatus(_ context.Context, id int64, expected, next entity.OrderStatus) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok || order.Status != expected {
		return nil, sql.ErrNoRows
	}

	order.Status = next
	order.UpdatedAt = time.Now().UTC()
	s.orders[id] = order
	return &order, nil
}

type stubPositionReader struct {
	mu        sync.Mutex
	positions map[int64]*entity.Position
	prices    map[int64]decimal.Decimal
	failures  map[int64]error
	closed    map[int64]int
}

func newStubPositionReader() *stubPositionReader {
	return &stubPositionReader{
		positions: make(map[int64]*entity.Position),
		prices:    make(map[int64]decimal.Decimal),
		failures:  make(map[int64]error),
		closed:    make(map[int64]int),
	}
}

func (r *stubPositionReader) setPosition(userID int64, token string, quantity, entryPrice decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.positions[userID] = &entity.Position{
		ID:         userID,
		UserID:     userID,
		Token:      token,
		Quantity:   quantity,
		EntryPrice: entryPrice,
	}
}

func (r *stubPositionReader) setPrice(userID int64, price decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prices[userID] = price
}

func (r *stubPositionReader) PositionForUser(_ context.Context, userID int64) (*entity.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.failures[userID]; ok {
		return nil, err
	}

	pos, ok := r.positions[userID]
	if !ok {
		return nil, positionsvc.ErrPositionNotFound
	}

	copied := *pos
	return &copied, nil
}

func (r *stubPositionReader) PriceForUser(_ context.Context, userID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.failures[userID]; ok {
		return decimal.Zero, err
	}

	pos, ok := r.positions[userID]
	if !ok {
		return decimal.Zero, positionsvc.ErrPositionNotFound
	}

	if price, ok := r.prices[userID]; ok {
		return price, nil
	}
	return pos.EntryPrice, nil
}

func (r *stubPositionReader) ClosePosition(_ context.Context, pos *entity.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed[pos.UserID]++
	if stored, ok := r.positions[pos.UserID]; ok {
		stored.Quantity = decimal.Zero
	}
	return nil
}

func (r *stubPositionReader) quantity(userID int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.positions[userID].Quantity
}

type recordingSink struct {
	mu     sync.Mutex
	events []entity.ExecutionEvent
}

func (s *recordingSink) Publish(_ context.Context, event entity.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) all() []entity.ExecutionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]entity.ExecutionEvent{}, s.events...)
}

func observation(price decimal.Decimal) entity.PriceObservation {
	return entity.PriceObservation{
		Instrument: "BTCUSDT",
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}
}

func TestCreateOrderValidation(t *testing.T) {
	store := newMemoryOrderStore()
	service := trigger.NewService(store, newStubPositionReader(), &recordingSink{})

	tests := []struct {
		name         string
		userID       int64
		kind         entity.OrderKind
		triggerPrice decimal.Decimal
		wantErr      error
	}{
		{"valid stop-loss", 1, entity.OrderKindStopLoss, decimal.NewFromInt(100), nil},
		{"valid take-profit", 1, entity.OrderKindTakeProfit, decimal.NewFromInt(200), nil},
		{"unknown kind", 1, entity.OrderKind("trailing-stop"), decimal.NewFromInt(100), trigger.ErrInvalidOrderKind},
		{"zero trigger price", 1, entity.OrderKindStopLoss, decimal.Zero, trigger.ErrInvalidTriggerPrice},
		{"negative trigger price", 1, entity.OrderKindStopLoss, decimal.NewFromInt(-5), trigger.ErrInvalidTriggerPrice},
		{"missing user", 0, entity.OrderKindStopLoss, decimal.NewFromInt(100), trigger.ErrInvalidUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := service.CreateOrder(context.Background(), tt.userID, tt.kind, tt.triggerPrice)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Greater(t, order.ID, int64(0))
			assert.Equal(t, entity.OrderStatusActive, order.Status)
		})
	}
}

func TestListOrdersCreationOrder(t *testing.T) {
	store := newMemoryOrderStore()
	service := trigger.NewService(store, newStubPositionReader(), &recordingSink{})
	ctx := context.Background()

	first, err := service.CreateOrder(ctx, 1, entity.OrderKindStopLoss, decimal.NewFromInt(100))
	require.NoError(t, err)
	second, err := service.CreateOrder(ctx, 1, entity.OrderKindTakeProfit, decimal.NewFromInt(200))
	require.NoError(t, err)
	_, err = service.CreateOrder(ctx, 2, entity.OrderKindStopLoss, decimal.NewFromInt(50))
	require.NoError(t, err)

	orders, err := service.ListOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, first.ID, orders[0].ID)
	assert.Equal(t, second.ID, orders[1].ID)

	orders, err = service.ListOrders(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestStopLossScenario(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))

	order, err := service.CreateOrder(ctx, 1, entity.OrderKindStopLoss, decimal.NewFromInt(100))
	require.NoError(t, err)

	// boundary is inclusive: reference price exactly at the trigger fires
	reader.setPrice(1, decimal.NewFromInt(100))
	require.NoError(t, service.EvaluatePass(ctx, observation(decimal.NewFromInt(100))))

	updated, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusExecuted, updated.Status)
	assert.True(t, reader.quantity(1).IsZero(), "stop-loss execution must close the position")

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, order.ID, events[0].OrderID)
	assert.Equal(t, entity.OrderKindStopLoss, events[0].Kind)
	assert.Equal(t, entity.OrderStatusExecuted, events[0].Status)

	// a later tick must not touch the terminal order
	reader.setPrice(1, decimal.NewFromInt(90))
	require.NoError(t, service.EvaluatePass(ctx, observation(decimal.NewFromInt(90))))

	updated, err = store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusExecuted, updated.Status)
	assert.Len(t, sink.all(), 1)
}

func TestTakeProfitBelowTriggerStaysActive(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))
	reader.setPrice(1, decimal.NewFromInt(150))

	order, err := service.CreateOrder(ctx, 1, entity.OrderKindTakeProfit, decimal.NewFromInt(200))
	require.NoError(t, err)

	require.NoError(t, service.EvaluatePass(ctx, observation(decimal.NewFromInt(150))))

	updated, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusActive, updated.Status)
	assert.Empty(t, sink.all())
}

func TestTakeProfitExecutionKeepsPositionOpen(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))
	reader.setPrice(1, decimal.NewFromInt(200))

	order, err := service.CreateOrder(ctx, 1, entity.OrderKindTakeProfit, decimal.NewFromInt(200))
	require.NoError(t, err)

	require.NoError(t, service.EvaluatePass(ctx, observation(decimal.NewFromInt(200))))

	updated, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusExecuted, updated.Status)
	assert.True(t, reader.quantity(1).Equal(decimal.NewFromInt(10)), "take-profit must not mutate the position")
	assert.Len(t, sink.all(), 1)
}

func TestEvaluatePassSkipsUsersWithoutPosition(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	// user 1 has no position at all
	order, err := service.CreateOrder(ctx, 1, entity.OrderKindStopLoss, decimal.NewFromInt(100))
	require.NoError(t, err)

	require.NoError(t, service.EvaluatePass(ctx, observation(decimal.NewFromInt(50))))

	updated, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusActive, updated.Status)
	assert.Empty(t, sink.all())
}

func TestEvaluatePassIsolatesFailures(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	for _, userID := range []int64{1, 2, 3} {
		reader.setPosition(userID, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))
		reader.setPrice(userID, decimal.NewFromInt(80))
		_, err := service.CreateOrder(ctx, userID, entity.OrderKindStopLoss, decimal.NewFromInt(100))
		require.NoError(t, err)
	}

	// user 2's position lookup blows up; the other two must still execute
	reader.failures[2] = errors.New("position row corrupted")

	require.NoError(t, service.EvaluatePass(ctx, observation(decimal.NewFromInt(80))))

	events := sink.all()
	require.Len(t, events, 2)
	executedUsers := map[int64]bool{}
	for _, event := range events {
		executedUsers[event.UserID] = true
	}
	assert.True(t, executedUsers[1])
	assert.True(t, executedUsers[3])
}

func TestAtMostOnceUnderConcurrentPasses(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))
	reader.setPrice(1, decimal.NewFromInt(100))

	order, err := service.CreateOrder(ctx, 1, entity.OrderKindStopLoss, decimal.NewFromInt(100))
	require.NoError(t, err)

	const passes = 32
	var wg sync.WaitGroup
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = service.EvaluatePass(ctx, observation(decimal.NewFromInt(100)))
		}()
	}
	wg.Wait()

	updated, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusExecuted, updated.Status)
	assert.Len(t, sink.all(), 1, "exactly one execution event despite %d concurrent passes", passes)
	assert.Equal(t, 1, reader.closed[1], "position closed exactly once")
}

func TestAtMostOnceWhenPassRacesOnDemandExecution(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))
	reader.setPrice(1, decimal.NewFromInt(100))

	order, err := service.CreateOrder(ctx, 1, entity.OrderKindStopLoss, decimal.NewFromInt(100))
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = service.EvaluatePass(ctx, observation(decimal.NewFromInt(100)))
		}()
		go func() {
			defer wg.Done()
			_, _ = service.ExecuteOrder(ctx, order.ID, 1)
		}()
	}
	wg.Wait()

	assert.Len(t, sink.all(), 1)
	assert.Equal(t, 1, reader.closed[1])
}

func TestExecuteOrderOutcomes(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))
	reader.setPrice(1, decimal.NewFromInt(150))

	stopLoss, err := service.CreateOrder(ctx, 1, entity.OrderKindStopLoss, decimal.NewFromInt(100))
	require.NoError(t, err)
	takeProfit, err := service.CreateOrder(ctx, 1, entity.OrderKindTakeProfit, decimal.NewFromInt(140))
	require.NoError(t, err)

	// reference price 150 is above the stop-loss trigger: no match
	outcome, err := service.ExecuteOrder(ctx, stopLoss.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, trigger.OutcomeConditionsNotMet, outcome)

	outcome, err = service.ExecuteOrder(ctx, takeProfit.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, trigger.OutcomeTakeProfitExecuted, outcome)

	// executing an already-terminal order reports no match
	outcome, err = service.ExecuteOrder(ctx, takeProfit.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, trigger.OutcomeConditionsNotMet, outcome)

	reader.setPrice(1, decimal.NewFromInt(90))
	outcome, err = service.ExecuteOrder(ctx, stopLoss.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, trigger.OutcomeStopLossExecuted, outcome)
}

func TestExecuteOrderRejections(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	service := trigger.NewService(store, reader, &recordingSink{})
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))

	order, err := service.CreateOrder(ctx, 1, entity.OrderKindStopLoss, decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = service.ExecuteOrder(ctx, 999, 1)
	assert.ErrorIs(t, err, trigger.ErrOrderNotFound)

	_, err = service.ExecuteOrder(ctx, order.ID, 2)
	assert.ErrorIs(t, err, trigger.ErrNotOrderOwner)
}

func TestCancelOrder(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	sink := &recordingSink{}
	service := trigger.NewService(store, reader, sink)
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))
	reader.setPrice(1, decimal.NewFromInt(50))

	order, err := service.CreateOrder(ctx, 1, entity.OrderKindStopLoss, decimal.NewFromInt(100))
	require.NoError(t, err)

	cancelled, err := service.CancelOrder(ctx, order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, cancelled.Status)

	_, err = service.CancelOrder(ctx, order.ID, 1)
	assert.ErrorIs(t, err, trigger.ErrStatusConflict)

	_, err = service.CancelOrder(ctx, order.ID, 2)
	assert.ErrorIs(t, err, trigger.ErrNotOrderOwner)

	// a matching tick must not resurrect the cancelled order
	require.NoError(t, service.EvaluatePass(ctx, observation(decimal.NewFromInt(50))))

	updated, err := store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, updated.Status)
	assert.Empty(t, sink.all())
}

func TestCheckOrder(t *testing.T) {
	store := newMemoryOrderStore()
	reader := newStubPositionReader()
	service := trigger.NewService(store, reader, &recordingSink{})
	ctx := context.Background()

	reader.setPosition(1, "BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(9500))
	reader.setPrice(1, decimal.NewFromInt(5000))

	met, err := service.CheckOrder(ctx, 1, decimal.NewFromInt(4000))
	require.NoError(t, err)
	assert.True(t, met)

	met, err = service.CheckOrder(ctx, 1, decimal.NewFromInt(6000))
	require.NoError(t, err)
	assert.False(t, met)

	_, err = service.CheckOrder(ctx, 2, decimal.NewFromInt(4000))
	assert.ErrorIs(t, err, positionsvc.ErrPositionNotFound)
}
