package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletap/internal/logger"
	"tabletap/internal/models"
)

// memStore is an in-memory Store that enforces the conditional status
// advance the same way the Postgres store does: the update commits only
// when the stored status still equals the expected one.
type memStore struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	history map[string][]models.StatusHistoryEntry
	numbers map[string]bool
	tables  map[int]bool
	seq     int
}

func newMemStore(tables ...int) *memStore {
	s := &memStore{
		orders:  make(map[string]*models.Order),
		history: make(map[string][]models.StatusHistoryEntry),
		numbers: make(map[string]bool),
		tables:  make(map[int]bool),
	}
	for _, t := range tables {
		s.tables[t] = true
	}
	return s
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = make([]models.CartItem, len(o.Items))
	copy(cp.Items, o.Items)
	for i := range cp.Items {
		cp.Items[i].SelectedAddOns = append([]models.AddOn(nil), o.Items[i].SelectedAddOns...)
	}
	return &cp
}

func (s *memStore) InsertOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.numbers[o.Number] {
		return ErrDuplicateOrderNumber
	}
	s.numbers[o.Number] = true
	s.orders[o.ID] = copyOrder(o)
	s.history[o.ID] = append(s.history[o.ID], models.StatusHistoryEntry{
		Status: o.Status, ChangedBy: "customer", ChangedAt: time.Now().UTC(),
	})
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, &NotFoundError{OrderID: id}
	}
	return copyOrder(o), nil
}

func (s *memStore) GetStatus(_ context.Context, id string) (models.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return "", &NotFoundError{OrderID: id}
	}
	return o.Status, nil
}

func (s *memStore) AdvanceStatus(_ context.Context, id string, from, to models.OrderStatus, changedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return &NotFoundError{OrderID: id}
	}
	if o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	s.history[id] = append(s.history[id], models.StatusHistoryEntry{
		Status: to, ChangedBy: changedBy, ChangedAt: o.UpdatedAt,
	})
	return nil
}

func (s *memStore) ListOrders(_ context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[models.OrderStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []models.Order
	for _, o := range s.orders {
		if len(statuses) == 0 || want[o.Status] {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (s *memStore) GetHistory(_ context.Context, id string) ([]models.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StatusHistoryEntry(nil), s.history[id]...), nil
}

func (s *memStore) TableExists(_ context.Context, tableNumber int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[tableNumber], nil
}

func (s *memStore) NextOrderSequence(_ context.Context, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

// fakePublisher records published notifications
type fakePublisher struct {
	mu       sync.Mutex
	messages []interface{}
}

func (p *fakePublisher) PublishOrderChanged(_ context.Context, msg interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func newTestService(tables ...int) (*Service, *memStore, *fakePublisher) {
	store := newMemStore(tables...)
	pub := &fakePublisher{}
	return NewService(store, pub, logger.New("test")), store, pub
}

func testItems() []models.CartItem {
	return []models.CartItem{
		{
			MenuItem: models.MenuItem{ID: "item-1", Name: "Margherita", Price: 10.00},
			Quantity: 2,
			SelectedAddOns: []models.AddOn{
				{ID: "addon-1", Name: "Extra cheese", Price: 1.00},
			},
		},
		{
			MenuItem: models.MenuItem{ID: "item-2", Name: "Lemonade", Price: 5.00},
			Quantity: 1,
		},
	}
}

func TestPlaceOrder_EmptyCartFails(t *testing.T) {
	svc, _, _ := newTestService(4)

	_, err := svc.PlaceOrder(context.Background(), 4, nil, 0, 0, 0, "req")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPlaceOrder_UnknownTableFails(t *testing.T) {
	svc, _, _ := newTestService(4)

	_, err := svc.PlaceOrder(context.Background(), 99, testItems(), 27.00, 2.70, 29.70, "req")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPlaceOrder_MismatchedTotalsFail(t *testing.T) {
	svc, _, _ := newTestService(4)

	_, err := svc.PlaceOrder(context.Background(), 4, testItems(), 10.00, 1.00, 11.00, "req")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPlaceOrder_CreatesPendingOrder(t *testing.T) {
	svc, _, pub := newTestService(4)

	o, err := svc.PlaceOrder(context.Background(), 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, 4, o.TableNumber)
	assert.NotEmpty(t, o.ID)
	assert.Regexp(t, `^ORD_\d{8}_\d{3}$`, o.Number)
	assert.InDelta(t, 29.70, o.Total, 1e-9)
	assert.Equal(t, 1, pub.count())
}

func TestPlaceOrder_SnapshotSurvivesCatalogChanges(t *testing.T) {
	svc, _, _ := newTestService(4)

	items := testItems()
	o, err := svc.PlaceOrder(context.Background(), 4, items, 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)

	// Mutating the caller's items after placement must not reach the order.
	items[0].MenuItem.Price = 99.00
	items[0].SelectedAddOns[0].Price = 50.00

	stored, err := svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.00, stored.Items[0].MenuItem.Price, 1e-9)
	assert.InDelta(t, 1.00, stored.Items[0].SelectedAddOns[0].Price, 1e-9)
	assert.InDelta(t, 27.00, stored.Subtotal, 1e-9)
	assert.InDelta(t, 29.70, stored.Total, 1e-9)
}

// repeatSeqStore hands out sequences from a fixed script, repeating the
// last value, so two placements can read the same sequence the way racing
// clients would.
type repeatSeqStore struct {
	*memStore
	seqs []int
}

func (s *repeatSeqStore) NextOrderSequence(context.Context, string) (int, error) {
	next := s.seqs[0]
	if len(s.seqs) > 1 {
		s.seqs = s.seqs[1:]
	}
	return next, nil
}

func TestPlaceOrder_RetriesOnDuplicateOrderNumber(t *testing.T) {
	store := &repeatSeqStore{memStore: newMemStore(4), seqs: []int{1, 1, 2}}
	svc := NewService(store, &fakePublisher{}, logger.New("test"))
	ctx := context.Background()

	first, err := svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)

	// The second placement reads the stale sequence 1, collides with the
	// first order's number, and must succeed on the retry.
	second, err := svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)

	assert.NotEqual(t, first.Number, second.Number)
	assert.Regexp(t, `_002$`, second.Number)
}

func TestPlaceOrder_GivesUpAfterRepeatedNumberCollisions(t *testing.T) {
	store := &repeatSeqStore{memStore: newMemStore(4), seqs: []int{1}}
	svc := NewService(store, &fakePublisher{}, logger.New("test"))
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	var unavailableErr *StoreUnavailableError
	require.ErrorAs(t, err, &unavailableErr)
}

func TestUpdateStatus_UnknownOrder(t *testing.T) {
	svc, _, _ := newTestService(4)

	_, err := svc.UpdateStatus(context.Background(), "nope", models.StatusAccepted, "staff", "req")

	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestUpdateStatus_OnlyNextStatusIsLegal(t *testing.T) {
	svc, store, _ := newTestService(4)
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)

	// From pending, everything except accepted must fail.
	for _, target := range []models.OrderStatus{models.StatusPending, models.StatusPreparing, models.StatusReady, models.StatusServed} {
		_, err := svc.UpdateStatus(ctx, o.ID, target, "staff", "req")
		var transitionErr *InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr, "pending -> %s", target)
		assert.Equal(t, models.StatusPending, transitionErr.From)
	}

	status, err := store.GetStatus(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)
}

func TestUpdateStatus_DoubleAdvanceFails(t *testing.T) {
	svc, _, _ := newTestService(4)
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, o.ID, models.StatusAccepted, "staff", "req")
	require.NoError(t, err)

	// accepted is not its own legal successor.
	_, err = svc.UpdateStatus(ctx, o.ID, models.StatusAccepted, "staff", "req")
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.StatusAccepted, transitionErr.From)
}

func TestUpdateStatus_RaceHasExactlyOneWinner(t *testing.T) {
	svc, store, _ := newTestService(4)
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, o.ID, models.StatusAccepted, "staff", "req")
	require.NoError(t, err)

	// Two staff clients race to start preparing the same order.
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateStatus(ctx, o.ID, models.StatusPreparing, "staff", "req")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var transitionErr *InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
		conflicts++
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	status, err := store.GetStatus(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, status)
}

func TestOrderLifecycle_EndToEnd(t *testing.T) {
	svc, _, pub := newTestService(4)
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, o.Status)

	for _, target := range []models.OrderStatus{
		models.StatusAccepted,
		models.StatusPreparing,
		models.StatusReady,
		models.StatusServed,
	} {
		o, err = svc.UpdateStatus(ctx, o.ID, target, "staff", "req")
		require.NoError(t, err)
		assert.Equal(t, target, o.Status)
	}

	assert.Equal(t, models.StatusServed, o.Status)

	// served is terminal.
	for _, target := range models.AllStatuses() {
		_, err := svc.UpdateStatus(ctx, o.ID, target, "staff", "req")
		var transitionErr *InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
	}

	// One notification per committed mutation: placement plus four advances.
	assert.Equal(t, 5, pub.count())

	history, err := svc.GetHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, models.StatusPending, history[0].Status)
	assert.Equal(t, models.StatusServed, history[4].Status)
}

func TestListActive_FiltersByStatus(t *testing.T) {
	svc, _, _ := newTestService(4)
	ctx := context.Background()

	first, err := svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, 4, testItems(), 27.00, 2.70, 29.70, "req")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, first.ID, models.StatusAccepted, "staff", "req")
	require.NoError(t, err)

	kitchen, err := svc.ListActive(ctx, models.StatusAccepted, models.StatusPreparing)
	require.NoError(t, err)
	require.Len(t, kitchen, 1)
	assert.Equal(t, first.ID, kitchen[0].ID)

	all, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListActive_RejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService(4)

	_, err := svc.ListActive(context.Background(), models.OrderStatus("cancelled"))

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}
