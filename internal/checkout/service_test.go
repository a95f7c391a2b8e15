package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paypal-checkout/internal/paypal"
)

// mockStore is an in-memory Store that records Save calls.
type mockStore struct {
	mu        sync.Mutex
	orders    map[string]Order
	SaveErr   error
	SaveCalls int
}

func newMockStore() *mockStore {
	return &mockStore{orders: make(map[string]Order)}
}

func (m *mockStore) Save(ctx context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.orders[order.ID] = *order
	return nil
}

func (m *mockStore) Get(ctx context.Context, orderID string) (*Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, false, nil
	}
	return &order, true, nil
}

func (m *mockStore) List(ctx context.Context) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []*Order
	for id := range m.orders {
		order := m.orders[id]
		orders = append(orders, &order)
	}
	return orders, nil
}

// SetOrder seeds an order directly for testing.
func (m *mockStore) SetOrder(order Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

// MustGet returns a stored order or fails the test.
func (m *mockStore) MustGet(t *testing.T, orderID string) Order {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	require.True(t, ok, "order %s not in store", orderID)
	return order
}

// mockProcessor is a canned-response Processor that records calls.
type mockProcessor struct {
	mu            sync.Mutex
	CreateResult  *paypal.OrderResult
	CreateErr     error
	CaptureResult *paypal.CaptureResult
	CaptureErr    error
	CreateCalls   int
	CaptureCalls  int
}

func (m *mockProcessor) CreateOrder(ctx context.Context, name, currency, price string) (*paypal.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	return m.CreateResult, m.CreateErr
}

func (m *mockProcessor) CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CaptureCalls++
	return m.CaptureResult, m.CaptureErr
}

// mockDispatcher records fulfillment side effects.
type mockDispatcher struct {
	mu          sync.Mutex
	GrantCalls  []string
	RevokeCalls []string
	GrantErr    error
}

func (m *mockDispatcher) GrantAccess(ctx context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GrantCalls = append(m.GrantCalls, order.PayerEmail)
	return m.GrantErr
}

func (m *mockDispatcher) RevokeAccess(ctx context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RevokeCalls = append(m.RevokeCalls, order.ID)
	return nil
}

func (m *mockDispatcher) grants() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GrantCalls)
}

func newTestService() (*Service, *mockStore, *mockProcessor, *mockDispatcher) {
	store := newMockStore()
	processor := &mockProcessor{}
	dispatcher := &mockDispatcher{}
	return NewService(store, processor, dispatcher), store, processor, dispatcher
}

// webhookEvent builds a parsed event the way the wire would deliver it.
func webhookEvent(t *testing.T, eventType, resource string) *paypal.WebhookEvent {
	t.Helper()
	body := fmt.Sprintf(`{"id":"WH-1","event_type":%q,"resource":%s}`, eventType, resource)
	event, err := paypal.ParseWebhookEvent([]byte(body))
	require.NoError(t, err)
	return event
}

func completedEvent(t *testing.T, orderID, payerEmail string) *paypal.WebhookEvent {
	return webhookEvent(t, paypal.EventPaymentCaptureCompleted, fmt.Sprintf(
		`{"id":"CAP-1","payer":{"email_address":%q},"supplementary_data":{"related_ids":{"order_id":%q}}}`,
		payerEmail, orderID))
}

var testProduct = Product{Name: "Course A", Currency: "USD", Price: "49.00"}

// ============================================
// Create Order Tests
// ============================================

func TestService_CreateOrder_Success(t *testing.T) {
	service, store, processor, _ := newTestService()
	ctx := context.Background()

	processor.CreateResult = &paypal.OrderResult{
		OrderID:    "5O190127TN364715T",
		Status:     "CREATED",
		ApproveURL: "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T",
		Raw:        json.RawMessage(`{"id":"5O190127TN364715T"}`),
	}

	result, err := service.CreateOrder(ctx, testProduct)

	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", result.OrderID)

	order := store.MustGet(t, "5O190127TN364715T")
	assert.Equal(t, StateCreated, order.State)
	assert.Equal(t, testProduct, order.Product)
	assert.False(t, order.FulfillmentDispatched)
	assert.False(t, order.CreatedAt.IsZero())
}

func TestService_CreateOrder_InvalidProduct(t *testing.T) {
	service, store, processor, _ := newTestService()
	ctx := context.Background()

	_, err := service.CreateOrder(ctx, Product{Name: "Course A", Currency: "USD", Price: "-1"})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	// Validation must happen before any network call
	assert.Zero(t, processor.CreateCalls)
	assert.Zero(t, store.SaveCalls)
}

func TestService_CreateOrder_UpstreamError(t *testing.T) {
	service, store, processor, _ := newTestService()
	ctx := context.Background()

	processor.CreateErr = &paypal.APIError{Status: 422, Body: `{"name":"UNPROCESSABLE_ENTITY"}`}

	_, err := service.CreateOrder(ctx, testProduct)

	var apiErr *paypal.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, store.SaveCalls)
}

// ============================================
// Capture Order Tests
// ============================================

func TestService_CaptureOrder_Completes(t *testing.T) {
	service, store, processor, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})
	processor.CaptureResult = &paypal.CaptureResult{
		OrderID:    "5O1",
		Status:     "COMPLETED",
		PayerEmail: "buyer@example.com",
		Raw:        json.RawMessage(`{"id":"5O1","status":"COMPLETED"}`),
	}

	result, err := service.CaptureOrder(ctx, "5O1")

	require.NoError(t, err)
	assert.True(t, result.Completed())

	order := store.MustGet(t, "5O1")
	assert.Equal(t, StateCompleted, order.State)
	assert.Equal(t, "buyer@example.com", order.PayerEmail)
	assert.True(t, order.FulfillmentDispatched)
	assert.False(t, order.CompletedAt.IsZero())
	assert.Equal(t, []string{"buyer@example.com"}, dispatcher.GrantCalls)
}

func TestService_CaptureOrder_FromCreated(t *testing.T) {
	service, store, processor, _ := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateCreated})
	processor.CaptureResult = &paypal.CaptureResult{OrderID: "5O1", Status: "COMPLETED"}

	_, err := service.CaptureOrder(ctx, "5O1")

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, store.MustGet(t, "5O1").State)
}

func TestService_CaptureOrder_Pending(t *testing.T) {
	service, store, processor, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})
	processor.CaptureResult = &paypal.CaptureResult{OrderID: "5O1", Status: "PENDING"}

	_, err := service.CaptureOrder(ctx, "5O1")

	require.NoError(t, err)
	order := store.MustGet(t, "5O1")
	assert.Equal(t, StateCapturePending, order.State)
	assert.False(t, order.FulfillmentDispatched)
	assert.Zero(t, dispatcher.grants())
}

func TestService_CaptureOrder_NotFound(t *testing.T) {
	service, _, processor, _ := newTestService()
	ctx := context.Background()

	_, err := service.CaptureOrder(ctx, "missing")

	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Zero(t, processor.CaptureCalls)
}

func TestService_CaptureOrder_Duplicate(t *testing.T) {
	service, store, processor, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateCompleted, FulfillmentDispatched: true})

	_, err := service.CaptureOrder(ctx, "5O1")

	// Rejected locally before any processor call
	assert.ErrorIs(t, err, ErrOrderCompleted)
	assert.Zero(t, processor.CaptureCalls)
	assert.Zero(t, dispatcher.grants())
}

func TestService_CaptureOrder_Refunded(t *testing.T) {
	service, store, processor, _ := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateRefunded})

	_, err := service.CaptureOrder(ctx, "5O1")

	assert.ErrorIs(t, err, ErrOrderCompleted)
	assert.Zero(t, processor.CaptureCalls)
}

func TestService_CaptureOrder_Failed(t *testing.T) {
	service, store, processor, _ := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateFailed})

	_, err := service.CaptureOrder(ctx, "5O1")

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, processor.CaptureCalls)
}

func TestService_CaptureOrder_ProcessorFailure(t *testing.T) {
	service, store, processor, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})
	processor.CaptureErr = &paypal.APIError{Status: 500, Body: "internal error"}

	_, err := service.CaptureOrder(ctx, "5O1")

	require.Error(t, err)
	// No partial transition persisted on failure
	assert.Equal(t, StateApproved, store.MustGet(t, "5O1").State)
	assert.Zero(t, dispatcher.grants())
}

// ============================================
// Webhook Tests
// ============================================

func TestService_HandleWebhook_Approved(t *testing.T) {
	service, store, _, _ := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateCreated})
	event := webhookEvent(t, paypal.EventCheckoutOrderApproved, `{"id":"5O1"}`)

	require.NoError(t, service.HandleWebhook(ctx, event))
	assert.Equal(t, StateApproved, store.MustGet(t, "5O1").State)
}

func TestService_HandleWebhook_ApprovedAfterCompletion(t *testing.T) {
	service, store, _, _ := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateCompleted, FulfillmentDispatched: true})
	event := webhookEvent(t, paypal.EventCheckoutOrderApproved, `{"id":"5O1"}`)

	require.NoError(t, service.HandleWebhook(ctx, event))
	// No backward transition
	assert.Equal(t, StateCompleted, store.MustGet(t, "5O1").State)
}

func TestService_HandleWebhook_CompletesOrder(t *testing.T) {
	service, store, _, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})

	require.NoError(t, service.HandleWebhook(ctx, completedEvent(t, "5O1", "buyer@example.com")))

	order := store.MustGet(t, "5O1")
	assert.Equal(t, StateCompleted, order.State)
	assert.Equal(t, "buyer@example.com", order.PayerEmail)
	assert.True(t, order.FulfillmentDispatched)
	assert.Equal(t, []string{"buyer@example.com"}, dispatcher.GrantCalls)
}

func TestService_HandleWebhook_OrderScopedCompletion(t *testing.T) {
	service, store, _, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateCreated})
	// CHECKOUT.ORDER.COMPLETED carries the order id in resource.id
	event := webhookEvent(t, paypal.EventCheckoutOrderCompleted,
		`{"id":"5O1","payer":{"email_address":"buyer@example.com"}}`)

	require.NoError(t, service.HandleWebhook(ctx, event))
	assert.Equal(t, StateCompleted, store.MustGet(t, "5O1").State)
	assert.Equal(t, 1, dispatcher.grants())
}

func TestService_HandleWebhook_AfterCapture_NoSecondDispatch(t *testing.T) {
	service, store, processor, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})
	processor.CaptureResult = &paypal.CaptureResult{OrderID: "5O1", Status: "COMPLETED", PayerEmail: "buyer@example.com"}

	_, err := service.CaptureOrder(ctx, "5O1")
	require.NoError(t, err)

	// The processor delivers the completion webhook after the synchronous
	// capture already finished the order.
	require.NoError(t, service.HandleWebhook(ctx, completedEvent(t, "5O1", "buyer@example.com")))

	assert.Equal(t, 1, dispatcher.grants())
	assert.Equal(t, StateCompleted, store.MustGet(t, "5O1").State)
}

func TestService_HandleWebhook_BeforeCapture(t *testing.T) {
	service, store, processor, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})

	// Webhook wins the race; the later capture call is a local no-op.
	require.NoError(t, service.HandleWebhook(ctx, completedEvent(t, "5O1", "buyer@example.com")))

	_, err := service.CaptureOrder(ctx, "5O1")
	assert.ErrorIs(t, err, ErrOrderCompleted)
	assert.Zero(t, processor.CaptureCalls)
	assert.Equal(t, 1, dispatcher.grants())
	assert.Equal(t, StateCompleted, store.MustGet(t, "5O1").State)
}

func TestService_HandleWebhook_UnknownOrder(t *testing.T) {
	service, _, _, dispatcher := newTestService()
	ctx := context.Background()

	// Events for orders the store has no record of are acknowledged.
	err := service.HandleWebhook(ctx, completedEvent(t, "unknown-order", "buyer@example.com"))

	require.NoError(t, err)
	assert.Zero(t, dispatcher.grants())
}

func TestService_HandleWebhook_UnhandledEventType(t *testing.T) {
	service, store, _, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateCreated})
	event := webhookEvent(t, "PAYMENT.AUTHORIZATION.CREATED", `{"id":"5O1"}`)

	require.NoError(t, service.HandleWebhook(ctx, event))
	assert.Equal(t, StateCreated, store.MustGet(t, "5O1").State)
	assert.Zero(t, dispatcher.grants())
}

func TestService_HandleWebhook_Denied(t *testing.T) {
	service, store, _, _ := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})
	event := webhookEvent(t, paypal.EventPaymentCaptureDenied,
		`{"id":"CAP-1","supplementary_data":{"related_ids":{"order_id":"5O1"}}}`)

	require.NoError(t, service.HandleWebhook(ctx, event))
	assert.Equal(t, StateFailed, store.MustGet(t, "5O1").State)
}

func TestService_HandleWebhook_DeniedAfterCompletion(t *testing.T) {
	service, store, _, _ := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateCompleted, FulfillmentDispatched: true})
	event := webhookEvent(t, paypal.EventPaymentCaptureDenied,
		`{"id":"CAP-1","supplementary_data":{"related_ids":{"order_id":"5O1"}}}`)

	require.NoError(t, service.HandleWebhook(ctx, event))
	assert.Equal(t, StateCompleted, store.MustGet(t, "5O1").State)
}

// ============================================
// Refund Tests
// ============================================

func refundEvent(t *testing.T, orderID, value, currency string) *paypal.WebhookEvent {
	return webhookEvent(t, paypal.EventPaymentRefundCompleted, fmt.Sprintf(
		`{"id":"REF-1","amount":{"value":%q,"currency_code":%q},"supplementary_data":{"related_ids":{"order_id":%q}}}`,
		value, currency, orderID))
}

func TestService_HandleWebhook_Refund_FromCompleted(t *testing.T) {
	service, store, _, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{
		ID: "5O1", Product: testProduct, State: StateCompleted,
		PayerEmail: "buyer@example.com", FulfillmentDispatched: true,
	})

	require.NoError(t, service.HandleWebhook(ctx, refundEvent(t, "5O1", "49.00", "USD")))

	order := store.MustGet(t, "5O1")
	assert.Equal(t, StateRefunded, order.State)
	assert.Equal(t, "49.00", order.RefundAmount)
	assert.Equal(t, "USD", order.RefundCurrency)
	assert.False(t, order.RefundedAt.IsZero())
	assert.Equal(t, []string{"5O1"}, dispatcher.RevokeCalls)
}

func TestService_HandleWebhook_Refund_NotCompleted(t *testing.T) {
	service, store, _, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateCreated})

	require.NoError(t, service.HandleWebhook(ctx, refundEvent(t, "5O1", "49.00", "USD")))

	// No state change and no dispatcher call
	assert.Equal(t, StateCreated, store.MustGet(t, "5O1").State)
	assert.Empty(t, dispatcher.RevokeCalls)
}

func TestService_HandleWebhook_Refund_Replayed(t *testing.T) {
	service, store, _, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{
		ID: "5O1", Product: testProduct, State: StateCompleted,
		PayerEmail: "buyer@example.com", FulfillmentDispatched: true,
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, service.HandleWebhook(ctx, refundEvent(t, "5O1", "49.00", "USD")))
	}

	assert.Equal(t, StateRefunded, store.MustGet(t, "5O1").State)
	assert.Len(t, dispatcher.RevokeCalls, 1)
}

// ============================================
// Idempotence Properties
// ============================================

func TestService_CompletionReplay_DispatchesOnce(t *testing.T) {
	service, store, _, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})

	for i := 0; i < 10; i++ {
		require.NoError(t, service.HandleWebhook(ctx, completedEvent(t, "5O1", "buyer@example.com")))
	}

	assert.Equal(t, 1, dispatcher.grants())
	assert.True(t, store.MustGet(t, "5O1").FulfillmentDispatched)
}

func TestService_ConcurrentCompletion_DispatchesOnce(t *testing.T) {
	service, store, processor, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})
	processor.CaptureResult = &paypal.CaptureResult{OrderID: "5O1", Status: "COMPLETED", PayerEmail: "buyer@example.com"}

	// Race the synchronous capture path against a burst of webhook
	// deliveries for the same order.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := service.CaptureOrder(ctx, "5O1")
		if err != nil {
			assert.ErrorIs(t, err, ErrOrderCompleted)
		}
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, service.HandleWebhook(ctx, completedEvent(t, "5O1", "buyer@example.com")))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, dispatcher.grants())
	assert.Equal(t, StateCompleted, store.MustGet(t, "5O1").State)
}

func TestService_DispatchFailure_GuardStaysSet(t *testing.T) {
	service, store, _, dispatcher := newTestService()
	ctx := context.Background()

	store.SetOrder(Order{ID: "5O1", Product: testProduct, State: StateApproved})
	dispatcher.GrantErr = errors.New("broker unavailable")

	// Completion succeeds even when the dispatch fails; the guard stays
	// set so a redelivery cannot dispatch twice.
	require.NoError(t, service.HandleWebhook(ctx, completedEvent(t, "5O1", "buyer@example.com")))
	require.NoError(t, service.HandleWebhook(ctx, completedEvent(t, "5O1", "buyer@example.com")))

	assert.True(t, store.MustGet(t, "5O1").FulfillmentDispatched)
	assert.Equal(t, 1, dispatcher.grants())
}

func TestService_FullLifecycle(t *testing.T) {
	service, store, processor, dispatcher := newTestService()
	ctx := context.Background()

	processor.CreateResult = &paypal.OrderResult{OrderID: "5O1", Status: "CREATED"}
	processor.CaptureResult = &paypal.CaptureResult{OrderID: "5O1", Status: "COMPLETED", PayerEmail: "buyer@example.com"}

	_, err := service.CreateOrder(ctx, testProduct)
	require.NoError(t, err)

	require.NoError(t, service.HandleWebhook(ctx,
		webhookEvent(t, paypal.EventCheckoutOrderApproved, `{"id":"5O1"}`)))

	_, err = service.CaptureOrder(ctx, "5O1")
	require.NoError(t, err)

	require.NoError(t, service.HandleWebhook(ctx, completedEvent(t, "5O1", "buyer@example.com")))
	require.NoError(t, service.HandleWebhook(ctx, refundEvent(t, "5O1", "49.00", "USD")))

	order := store.MustGet(t, "5O1")
	assert.Equal(t, StateRefunded, order.State)
	assert.Equal(t, 1, dispatcher.grants())
	assert.Len(t, dispatcher.RevokeCalls, 1)
}
