package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
	"github.com/vladislavdragonenkov/fiadopay/internal/scheduler"
	"github.com/vladislavdragonenkov/fiadopay/internal/storage/memory"
)

const testSecret = "test-secret"

// queueDispatcher выполняет задачи только по вызову drain и запоминает задержки таймера.
type queueDispatcher struct {
	mu     sync.Mutex
	queue  []scheduler.Task
	delays []time.Duration
}

func (d *queueDispatcher) SubmitSend(task scheduler.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, task)
	return nil
}

func (d *queueDispatcher) After(delay time.Duration, task scheduler.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays = append(d.delays, delay)
	d.queue = append(d.queue, task)
	return nil
}

func (d *queueDispatcher) drain(ctx context.Context) {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		task := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		task(ctx)
	}
}

func (d *queueDispatcher) recordedDelays() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays...)
}

type recordedRequest struct {
	header http.Header
	body   []byte
}

type receiver struct {
	mu       sync.Mutex
	requests []recordedRequest
	statuses []int
}

func (r *receiver) handler(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, recordedRequest{header: req.Header.Clone(), body: body})
	status := http.StatusOK
	if idx := len(r.requests) - 1; idx < len(r.statuses) {
		status = r.statuses[idx]
	}
	w.WriteHeader(status)
}

func (r *receiver) received() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

type engineFixture struct {
	engine     *Engine
	deliveries domain.DeliveryRepository
	dispatcher *queueDispatcher
	receiver   *receiver
	merchantID string
}

func newEngineFixture(t *testing.T, statuses ...int) engineFixture {
	t.Helper()

	rcv := &receiver{statuses: statuses}
	server := httptest.NewServer(http.HandlerFunc(rcv.handler))
	t.Cleanup(server.Close)

	merchants := memory.NewMerchantRepository()
	merchant, err := merchants.Create(domain.Merchant{Name: "Loja", WebhookURL: server.URL})
	require.NoError(t, err)

	deliveries := memory.NewDeliveryRepository()
	dispatcher := &queueDispatcher{}
	engine := NewEngine(deliveries, merchants, NewHTTPSender(time.Second), dispatcher, testSecret)

	return engineFixture{
		engine:     engine,
		deliveries: deliveries,
		dispatcher: dispatcher,
		receiver:   rcv,
		merchantID: merchant.ID,
	}
}

func testPayment(merchantID string, status domain.PaymentStatus) domain.Payment {
	return domain.Payment{
		ID:         "pay_1234abcd",
		MerchantID: merchantID,
		Method:     domain.PaymentMethodPix,
		Amount:     decimal.NewFromInt(10),
		Currency:   "BRL",
		Status:     status,
	}
}

func TestEngine_DeliversSignedEvent(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Notify(ctx, testPayment(f.merchantID, domain.PaymentStatusApproved)))
	f.dispatcher.drain(ctx)

	requests := f.receiver.received()
	require.Len(t, requests, 1)

	req := requests[0]
	require.Equal(t, "application/json", req.header.Get("Content-Type"))
	require.Equal(t, domain.EventTypePaymentUpdated, req.header.Get(HeaderEventType))
	require.Equal(t, Sign(testSecret, req.body), req.header.Get(HeaderSignature))
	require.True(t, Verify(testSecret, req.body, req.header.Get(HeaderSignature)))

	var event Event
	require.NoError(t, json.Unmarshal(req.body, &event))
	require.Regexp(t, `^evt_[0-9a-f]{8}$`, event.ID)
	require.Equal(t, "pay_1234abcd", event.Data.PaymentID)
	require.Equal(t, "APPROVED", event.Data.Status)

	history, err := f.engine.ListDeliveries(ctx, "pay_1234abcd")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].Delivered)
	require.Equal(t, 1, history[0].Attempts)
	require.Equal(t, event.ID, history[0].EventID)
	require.Equal(t, string(req.body), history[0].Payload)
	require.NotNil(t, history[0].LastAttemptAt)
	require.Empty(t, f.dispatcher.recordedDelays())
}

func TestEngine_RetriesWithLinearBackoffAndStopsAtFive(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusOK,
	)
	ctx := context.Background()

	require.NoError(t, f.engine.Notify(ctx, testPayment(f.merchantID, domain.PaymentStatusDeclined)))
	f.dispatcher.drain(ctx)

	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second}, f.dispatcher.recordedDelays())
	require.Len(t, f.receiver.received(), 5, "no sixth attempt after five failures")

	history, err := f.engine.ListDeliveries(ctx, "pay_1234abcd")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, 5, history[0].Attempts)
	require.False(t, history[0].Delivered)

	// Ручной вызов после исчерпания попыток ничего не отправляет.
	require.NoError(t, f.engine.AttemptDelivery(ctx, history[0].ID))
	require.Len(t, f.receiver.received(), 5)
}

func TestEngine_StopsRetryingAfterSuccess(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, http.StatusBadGateway, http.StatusNoContent)
	ctx := context.Background()

	require.NoError(t, f.engine.Notify(ctx, testPayment(f.merchantID, domain.PaymentStatusApproved)))
	f.dispatcher.drain(ctx)

	require.Equal(t, []time.Duration{time.Second}, f.dispatcher.recordedDelays())
	history, err := f.engine.ListDeliveries(ctx, "pay_1234abcd")
	require.NoError(t, err)
	require.True(t, history[0].Delivered)
	require.Equal(t, 2, history[0].Attempts)
}

func TestEngine_TransportErrorIsRetried(t *testing.T) {
	t.Parallel()

	merchants := memory.NewMerchantRepository()
	merchant, err := merchants.Create(domain.Merchant{Name: "Loja", WebhookURL: "http://127.0.0.1:1/unreachable"})
	require.NoError(t, err)

	deliveries := memory.NewDeliveryRepository()
	dispatcher := &queueDispatcher{}
	engine := NewEngine(deliveries, merchants, NewHTTPSender(200*time.Millisecond), dispatcher, testSecret,
		WithMaxAttempts(2),
		WithBackoffUnit(10*time.Millisecond),
	)
	ctx := context.Background()

	require.NoError(t, engine.Notify(ctx, testPayment(merchant.ID, domain.PaymentStatusApproved)))
	dispatcher.drain(ctx)

	require.Equal(t, []time.Duration{10 * time.Millisecond}, dispatcher.recordedDelays())
	history, err := engine.ListDeliveries(ctx, "pay_1234abcd")
	require.NoError(t, err)
	require.Equal(t, 2, history[0].Attempts)
	require.False(t, history[0].Delivered)
}

func TestEngine_SkipsMerchantWithoutWebhook(t *testing.T) {
	t.Parallel()

	merchants := memory.NewMerchantRepository()
	blank, err := merchants.Create(domain.Merchant{Name: "Sem webhook", WebhookURL: "   "})
	require.NoError(t, err)

	deliveries := memory.NewDeliveryRepository()
	dispatcher := &queueDispatcher{}
	engine := NewEngine(deliveries, merchants, NewHTTPSender(0), dispatcher, testSecret)
	ctx := context.Background()

	require.NoError(t, engine.Notify(ctx, testPayment(blank.ID, domain.PaymentStatusApproved)))
	require.NoError(t, engine.Notify(ctx, testPayment("unknown-merchant", domain.PaymentStatusApproved)))

	history, err := engine.ListDeliveries(ctx, "pay_1234abcd")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestEngine_MissingDeliveryIsSilent(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	require.NoError(t, f.engine.AttemptDelivery(context.Background(), 42))
	require.Empty(t, f.receiver.received())
}

type blockingSender struct {
	calls atomic.Int32
}

func (s *blockingSender) Send(ctx context.Context, _ Request) error {
	s.calls.Add(1)
	<-ctx.Done()
	return &domain.TransportError{URL: "http://merchant", Err: ctx.Err()}
}

func TestEngine_AbandonsAttemptOnForcedShutdown(t *testing.T) {
	t.Parallel()

	merchants := memory.NewMerchantRepository()
	merchant, err := merchants.Create(domain.Merchant{Name: "Loja", WebhookURL: "http://merchant"})
	require.NoError(t, err)

	deliveries := memory.NewDeliveryRepository()
	dispatcher := &queueDispatcher{}
	sender := &blockingSender{}
	engine := NewEngine(deliveries, merchants, sender, dispatcher, testSecret)

	require.NoError(t, engine.Notify(context.Background(), testPayment(merchant.ID, domain.PaymentStatusApproved)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dispatcher.drain(ctx)

	require.Equal(t, int32(1), sender.calls.Load())
	history, err := engine.ListDeliveries(context.Background(), "pay_1234abcd")
	require.NoError(t, err)
	require.Equal(t, 0, history[0].Attempts, "abandoned attempt must not be persisted")
	require.Empty(t, dispatcher.recordedDelays())
}

type failingDeliveries struct {
	domain.DeliveryRepository
}

func (failingDeliveries) Save(domain.WebhookDelivery) (int64, error) {
	return 0, errors.New("disk full")
}

func TestEngine_NotifyPropagatesPersistenceError(t *testing.T) {
	t.Parallel()

	merchants := memory.NewMerchantRepository()
	merchant, err := merchants.Create(domain.Merchant{Name: "Loja", WebhookURL: "http://merchant"})
	require.NoError(t, err)

	engine := NewEngine(failingDeliveries{memory.NewDeliveryRepository()}, merchants, NewHTTPSender(0), &queueDispatcher{}, testSecret)
	err = engine.Notify(context.Background(), testPayment(merchant.ID, domain.PaymentStatusApproved))
	require.Error(t, err)
}

func TestEngine_DefaultOptions(t *testing.T) {
	t.Parallel()

	engine := NewEngine(memory.NewDeliveryRepository(), memory.NewMerchantRepository(), NewHTTPSender(0), &queueDispatcher{}, testSecret,
		WithMaxAttempts(0),
		WithBackoffUnit(-time.Second),
	)
	require.Equal(t, 5, engine.MaxAttempts())
	require.Equal(t, time.Second, engine.backoffUnit)
}
