package app

import (
	"context"
	"fmt"
	"time"

	"atrx/internal/domain"
	"atrx/internal/ports"
)

// Mock implementations shared by the app package tests.

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockQueue is an in-memory ports.OrderQueue.
type mockQueue struct {
	orders    map[string]*domain.Order
	submitted []string
	archived  map[string]bool
	submitErr error
	sweepErr  error

	// completeOnPoll makes PollTerminal resolve the order as DONE with
	// this result, simulating an agent completing it mid-wait.
	completeOnPoll *domain.OrderResult
	pollErr        error
}

func newMockQueue() *mockQueue {
	return &mockQueue{orders: make(map[string]*domain.Order), archived: make(map[string]bool)}
}

func (m *mockQueue) Submit(ctx context.Context, order *domain.Order) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	if _, ok := m.orders[order.ID]; ok {
		return ports.ErrDuplicateOrder
	}
	order.State = domain.OrderPending
	m.orders[order.ID] = order
	m.submitted = append(m.submitted, order.ID)
	return nil
}

func (m *mockQueue) Claim(ctx context.Context, consumerID string) (*domain.Order, error) {
	for _, order := range m.orders {
		if order.State == domain.OrderPending {
			order.State = domain.OrderInflight
			order.LeaseOwner = consumerID
			return order, nil
		}
	}
	return nil, ports.ErrQueueEmpty
}

func (m *mockQueue) Complete(ctx context.Context, orderID, consumerID string, state domain.OrderState, result domain.OrderResult) error {
	order, ok := m.orders[orderID]
	if !ok {
		return ports.ErrNotFound
	}
	if order.LeaseOwner != consumerID {
		return ports.ErrLeaseLost
	}
	order.State = state
	order.Result = &result
	return nil
}

func (m *mockQueue) SweepExpiredLeases(ctx context.Context, maxReclaims int) ([]string, []string, error) {
	return nil, nil, m.sweepErr
}

func (m *mockQueue) PollTerminal(ctx context.Context, orderID string, timeout time.Duration) (*domain.Order, error) {
	if m.pollErr != nil {
		return nil, m.pollErr
	}
	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrNotFound)
	}
	if m.completeOnPoll != nil {
		order.State = domain.OrderDone
		order.Result = m.completeOnPoll
		return order, nil
	}
	return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrIndeterminate)
}

func (m *mockQueue) Find(ctx context.Context, orderID string) (*domain.Order, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return order, nil
}

func (m *mockQueue) UnresolvedCloses(ctx context.Context) ([]int64, error) {
	var ids []int64
	for _, id := range m.submitted {
		order := m.orders[id]
		if order.ClosePositionID != 0 && !order.State.IsTerminal() {
			ids = append(ids, order.ClosePositionID)
		}
	}
	return ids, nil
}

func (m *mockQueue) Terminal(ctx context.Context) ([]*domain.Order, error) {
	var terminal []*domain.Order
	for _, id := range m.submitted {
		order := m.orders[id]
		if order.State.IsTerminal() && !m.archived[id] {
			terminal = append(terminal, order)
		}
	}
	return terminal, nil
}

func (m *mockQueue) MarkArchived(ctx context.Context, orderID string) error {
	if _, ok := m.orders[orderID]; !ok {
		return ports.ErrNotFound
	}
	m.archived[orderID] = true
	return nil
}

// mockStore is an in-memory account/position/journal store.
type mockStore struct {
	account    *domain.AccountState
	positions  map[int64]*domain.Position
	nextID     int64
	journal    map[string]*domain.AuditRecord
	journalLog []string
	saveErr    error
}

func newMockStore() *mockStore {
	return &mockStore{positions: make(map[int64]*domain.Position), nextID: 1, journal: make(map[string]*domain.AuditRecord)}
}

func (m *mockStore) LoadAccount(ctx context.Context) (*domain.AccountState, error) {
	if m.account == nil {
		return nil, nil
	}
	copied := *m.account
	return &copied, nil
}

func (m *mockStore) SaveAccount(ctx context.Context, account *domain.AccountState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	copied := *account
	m.account = &copied
	return nil
}

func (m *mockStore) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	pos.ID = m.nextID
	m.nextID++
	copied := *pos
	m.positions[pos.ID] = &copied
	return pos.ID, nil
}

func (m *mockStore) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	if _, ok := m.positions[pos.ID]; !ok {
		return ports.ErrNotFound
	}
	copied := *pos
	m.positions[pos.ID] = &copied
	return nil
}

func (m *mockStore) FindPosition(ctx context.Context, id int64) (*domain.Position, error) {
	pos, ok := m.positions[id]
	if !ok {
		return nil, nil
	}
	copied := *pos
	return &copied, nil
}

func (m *mockStore) FindPositionByOrder(ctx context.Context, orderID string) (*domain.Position, error) {
	for _, pos := range m.positions {
		if pos.OrderID == orderID {
			copied := *pos
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockStore) FindOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	var open []*domain.Position
	for id := int64(1); id < m.nextID; id++ {
		if pos, ok := m.positions[id]; ok && pos.IsOpen() {
			copied := *pos
			open = append(open, &copied)
		}
	}
	return open, nil
}

func (m *mockStore) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if _, ok := m.journal[rec.OrderID]; ok {
		return nil // idempotent, first write wins
	}
	m.journal[rec.OrderID] = rec
	m.journalLog = append(m.journalLog, rec.OrderID)
	return nil
}

// mockIntentSource serves one fixed batch then nothing.
type mockIntentSource struct {
	batch  []*domain.TradeIntent
	served bool
}

func (m *mockIntentSource) NextIntents(ctx context.Context) ([]*domain.TradeIntent, error) {
	if m.served {
		return nil, nil
	}
	m.served = true
	return m.batch, nil
}

// mockMarkSource returns fixed marks.
type mockMarkSource struct {
	marks map[string]float64
}

func (m *mockMarkSource) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	mark, ok := m.marks[symbol]
	if !ok {
		return 0, fmt.Errorf("no mark for %s: %w", symbol, ports.ErrNotFound)
	}
	return mark, nil
}

// mockSessionClock controls boundary detection and the clock.
type mockSessionClock struct {
	boundary bool
	nowTime  time.Time
}

func (m *mockSessionClock) IsSessionBoundaryReached(since time.Time) bool { return m.boundary }

func (m *mockSessionClock) Now() time.Time {
	if m.nowTime.IsZero() {
		return time.Now().UTC()
	}
	return m.nowTime
}
