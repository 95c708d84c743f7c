package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funpay-tools/steampoints-bot/internal/funpay"
	"github.com/funpay-tools/steampoints-bot/internal/points"
	"github.com/funpay-tools/steampoints-bot/internal/state"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeMarket struct {
	mu       sync.Mutex
	orders   map[string]*funpay.Order
	messages []sentMessage
	refunds  []string

	refundErr error
	listings  []funpay.Listing
	listErr   error
	getErr    map[int64]error
	saveErr   map[int64]error
	saved     []funpay.Listing
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		orders:  map[string]*funpay.Order{},
		getErr:  map[int64]error{},
		saveErr: map[int64]error{},
	}
}

func (m *fakeMarket) GetOrder(_ context.Context, orderID string) (*funpay.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, errors.New("order not found")
	}
	return order, nil
}

func (m *fakeMarket) SendMessage(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *fakeMarket) Refund(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refundErr != nil {
		return m.refundErr
	}
	m.refunds = append(m.refunds, orderID)
	return nil
}

func (m *fakeMarket) ListListings(_ context.Context, _ int) ([]funpay.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]funpay.Listing(nil), m.listings...), nil
}

func (m *fakeMarket) GetListing(_ context.Context, listingID int64) (*funpay.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[listingID]; err != nil {
		return nil, err
	}
	for _, l := range m.listings {
		if l.ID == listingID {
			copied := l
			return &copied, nil
		}
	}
	return nil, errors.New("listing not found")
}

func (m *fakeMarket) SaveListing(_ context.Context, listing *funpay.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveErr[listing.ID]; err != nil {
		return err
	}
	m.saved = append(m.saved, *listing)
	return nil
}

func (m *fakeMarket) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	for i, msg := range m.messages {
		out[i] = msg.Text
	}
	return out
}

func (m *fakeMarket) lastMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return ""
	}
	return m.messages[len(m.messages)-1].Text
}

func (m *fakeMarket) refundCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refunds)
}

type submitCall struct {
	Units       int
	Destination string
}

type fakeGateway struct {
	mu      sync.Mutex
	submits []submitCall

	submitOK     bool
	submitDetail string
	submitGate   chan struct{} // when set, Submit blocks until closed

	balance      float64
	balanceKnown bool
}

func (g *fakeGateway) Submit(_ context.Context, units int, destination string) (bool, string) {
	g.mu.Lock()
	g.submits = append(g.submits, submitCall{Units: units, Destination: destination})
	gate := g.submitGate
	ok, detail := g.submitOK, g.submitDetail
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return ok, detail
}

func (g *fakeGateway) CheckBalance(_ context.Context) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, g.balanceKnown
}

func (g *fakeGateway) submitCalls() []submitCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]submitCall(nil), g.submits...)
}

type fixture struct {
	driver  *Driver
	market  *fakeMarket
	gateway *fakeGateway
	store   *state.MemoryStore
	cancel  context.CancelFunc
}

func newFixture(t *testing.T, mutate func(*Config, *fakeGateway)) *fixture {
	t.Helper()
	market := newFakeMarket()
	gateway := &fakeGateway{submitOK: true, balance: 100, balanceKnown: true}
	store := state.NewMemoryStore()
	cfg := Config{
		CategoryID:           714,
		DeactivateCategoryID: 714,
		MinPoints:            100,
		AutoRefund:           true,
		AutoDeactivate:       true,
		MinBalance:           5.0,
	}
	if mutate != nil {
		mutate(&cfg, gateway)
	}
	resolver := &points.Resolver{MinPoints: cfg.MinPoints, TitleInference: true}
	driver := NewDriver(cfg, market, gateway, store, resolver, nil,
		WithAccountID(1),
		WithWorkerCount(2),
	)

	ctx, cancel := context.WithCancel(context.Background())
	driver.pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		driver.pool.Stop()
		driver.pool.Wait()
	})
	return &fixture{driver: driver, market: market, gateway: gateway, store: store, cancel: cancel}
}

func targetOrder() *funpay.Order {
	return &funpay.Order{
		ID:            "AB12CD",
		SubcategoryID: 714,
		BuyerID:       7,
		ChatID:        99,
		Title:         "Steam points",
		BuyerParams:   []funpay.Param{{Name: "qty", Value: "500"}},
		Amount:        1,
	}
}

func (f *fixture) message(chatID, authorID int64, text string) {
	f.driver.HandleNewMessage(context.Background(), funpay.Message{
		ChatID:   chatID,
		AuthorID: authorID,
		Text:     text,
	})
}

const validLink = "https://steamcommunity.com/id/abc"

func TestEndToEndSuccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.market.orders["AB12CD"] = targetOrder()

	f.driver.HandleNewOrder(ctx, "AB12CD")

	conv, err := f.store.Lookup(ctx, 99, 7)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, state.StepAwaitingDestination, conv.Step)
	assert.Equal(t, 500, conv.Units)
	assert.Contains(t, f.market.lastMessage(), "ссылку на ваш профиль")

	// An invalid destination reprompts without advancing.
	f.message(99, 7, "not a link")
	conv, _ = f.store.Lookup(ctx, 99, 7)
	assert.Equal(t, state.StepAwaitingDestination, conv.Step)
	assert.Contains(t, f.market.lastMessage(), "Невалидная ссылка")

	f.message(99, 7, validLink)
	conv, _ = f.store.Lookup(ctx, 99, 7)
	assert.Equal(t, state.StepAwaitingConfirmation, conv.Step)
	assert.Equal(t, validLink, conv.Destination)

	// A replacement destination overwrites and stays in confirmation.
	other := "https://steamcommunity.com/profiles/7656119"
	f.message(99, 7, other)
	conv, _ = f.store.Lookup(ctx, 99, 7)
	assert.Equal(t, state.StepAwaitingConfirmation, conv.Step)
	assert.Equal(t, other, conv.Destination)

	// An invalid replacement leaves the stored destination unchanged.
	f.message(99, 7, "garbage")
	conv, _ = f.store.Lookup(ctx, 99, 7)
	assert.Equal(t, other, conv.Destination)

	f.message(99, 7, "+")
	require.Eventually(t, func() bool {
		open, _ := f.store.Open(ctx)
		return len(open) == 0
	}, time.Second, 5*time.Millisecond)

	calls := f.gateway.submitCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, 500, calls[0].Units)
	assert.Equal(t, other, calls[0].Destination)
	assert.Contains(t, f.market.lastMessage(), "Готово")
	assert.Zero(t, f.market.refundCount())
}

func TestIntakeRejectsNonMultipleOf100(t *testing.T) {
	f := newFixture(t, nil)
	order := targetOrder()
	order.BuyerParams = []funpay.Param{{Name: "qty", Value: "150"}}
	f.market.orders["AB12CD"] = order

	f.driver.HandleNewOrder(context.Background(), "AB12CD")

	conv, err := f.store.Lookup(context.Background(), 99, 7)
	require.NoError(t, err)
	assert.Nil(t, conv, "no state may be created for a rejected order")
	assert.Equal(t, 1, f.market.refundCount())
	require.NotEmpty(t, f.market.sentTexts())
	assert.Contains(t, f.market.sentTexts()[0], "Некорректное количество")
	assert.Contains(t, f.market.sentTexts()[0], "вернутся автоматически")
}

func TestIntakeUnresolvableQuantityWithoutAutoRefund(t *testing.T) {
	f := newFixture(t, func(cfg *Config, _ *fakeGateway) { cfg.AutoRefund = false })
	order := targetOrder()
	order.BuyerParams = nil
	order.Amount = 0
	f.market.orders["AB12CD"] = order

	f.driver.HandleNewOrder(context.Background(), "AB12CD")

	assert.Zero(t, f.market.refundCount())
	require.NotEmpty(t, f.market.sentTexts())
	assert.Contains(t, f.market.sentTexts()[0], "Не указано количество")
	assert.Contains(t, f.market.sentTexts()[0], "Авто-возврат отключён")
}

func TestOrdersOutsideCategoryAreIgnored(t *testing.T) {
	f := newFixture(t, nil)
	order := targetOrder()
	order.SubcategoryID = 1
	f.market.orders["AB12CD"] = order

	f.driver.HandleNewOrder(context.Background(), "AB12CD")

	assert.Empty(t, f.market.sentTexts())
	open, _ := f.store.Open(context.Background())
	assert.Empty(t, open)
}

func TestMessageWithoutStateGetsGenericNotice(t *testing.T) {
	f := newFixture(t, nil)
	f.message(55, 8, "hello?")
	assert.Contains(t, f.market.lastMessage(), "подтвердите заказ")
}

func TestOwnMessagesAreIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.message(55, 1, "bot echo")
	assert.Empty(t, f.market.sentTexts())
}

func TestDoubleConfirmationDoesNotDoubleSubmit(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, func(_ *Config, g *fakeGateway) { g.submitGate = gate })
	ctx := context.Background()
	f.market.orders["AB12CD"] = targetOrder()

	f.driver.HandleNewOrder(ctx, "AB12CD")
	f.message(99, 7, validLink)
	f.message(99, 7, "+")

	// The worker is now blocked inside Submit; a second "+" must not
	// dispatch again.
	require.Eventually(t, func() bool {
		return len(f.gateway.submitCalls()) == 1
	}, time.Second, 5*time.Millisecond)
	f.message(99, 7, "+")
	assert.Contains(t, f.market.lastMessage(), "уже оформляется")

	close(gate)
	require.Eventually(t, func() bool {
		open, _ := f.store.Open(ctx)
		return len(open) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, f.gateway.submitCalls(), 1)
}

func TestFulfillmentFailureRunsCompensation(t *testing.T) {
	f := newFixture(t, func(_ *Config, g *fakeGateway) {
		g.submitOK = false
		g.submitDetail = "insufficient provider balance"
		g.balance = 2.0
		g.balanceKnown = true
	})
	ctx := context.Background()
	f.market.orders["AB12CD"] = targetOrder()
	f.market.listings = []funpay.Listing{
		{ID: 1, SubcategoryID: 714, Active: true},
		{ID: 2, SubcategoryID: 714, Active: true},
	}

	f.driver.HandleNewOrder(ctx, "AB12CD")
	f.message(99, 7, validLink)
	f.message(99, 7, "+")

	require.Eventually(t, func() bool {
		open, _ := f.store.Open(ctx)
		return len(open) == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.market.refundCount())
	texts := strings.Join(f.market.sentTexts(), "\n---\n")
	assert.Contains(t, texts, "insufficient provider balance")
	assert.Contains(t, texts, "Средства возвращены")

	// Balance 2.0 < threshold 5.0: both listings deactivated.
	f.market.mu.Lock()
	saved := append([]funpay.Listing(nil), f.market.saved...)
	f.market.mu.Unlock()
	require.Len(t, saved, 2)
	for _, l := range saved {
		assert.False(t, l.Active)
	}
}

func TestRunSurvivesFailedEvents(t *testing.T) {
	f := newFixture(t, nil)
	f.market.orders["AB12CD"] = targetOrder()

	events := make(chan funpay.Event, 3)
	events <- funpay.NewOrderEvent{OrderID: "MISSING"}
	events <- funpay.NewOrderEvent{OrderID: "AB12CD"}
	close(events)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.driver.Run(ctx, events)

	conv, err := f.store.Lookup(context.Background(), 99, 7)
	require.NoError(t, err)
	require.NotNil(t, conv, "the loop must keep processing after a failed event")
}
