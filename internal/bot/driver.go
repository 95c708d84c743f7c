// Package bot drives the per-conversation fulfillment state machine:
// order intake, destination collection, confirmation and asynchronous
// submission to the top-up provider, with refund/deactivation
// compensation on failure.
package bot

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/funpay-tools/steampoints-bot/internal/funpay"
	"github.com/funpay-tools/steampoints-bot/internal/journal"
	"github.com/funpay-tools/steampoints-bot/internal/notify"
	"github.com/funpay-tools/steampoints-bot/internal/observability/metrics"
	"github.com/funpay-tools/steampoints-bot/internal/points"
	"github.com/funpay-tools/steampoints-bot/internal/state"
	"github.com/funpay-tools/steampoints-bot/internal/steam"
	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

// Marketplace is the FunPay surface the driver consumes. One explicit
// contract per operation; implementations must not require method probing.
type Marketplace interface {
	GetOrder(ctx context.Context, orderID string) (*funpay.Order, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	Refund(ctx context.Context, orderID string) error
	ListListings(ctx context.Context, subcategoryID int) ([]funpay.Listing, error)
	GetListing(ctx context.Context, listingID int64) (*funpay.Listing, error)
	SaveListing(ctx context.Context, listing *funpay.Listing) error
}

// Gateway is the top-up provider surface the driver consumes.
type Gateway interface {
	Submit(ctx context.Context, units int, destination string) (ok bool, detail string)
	CheckBalance(ctx context.Context) (balance float64, known bool)
}

// Config carries the intake and compensation policy knobs.
type Config struct {
	CategoryID           int
	DeactivateCategoryID int
	MinPoints            int
	AutoRefund           bool
	AutoDeactivate       bool
	MinBalance           float64
}

// Driver consumes marketplace events and advances conversations through
// the fulfillment flow. All state transitions happen on the event loop
// goroutine; only the provider submission runs on the pool.
type Driver struct {
	cfg       Config
	accountID int64
	market    Marketplace
	gateway   Gateway
	store     state.Store
	resolver  *points.Resolver
	pool      *Pool
	comp      *Compensator
	logger    *logging.Logger
	metrics   *metrics.BotMetrics
	journal   *journal.Journal
}

// Option customizes driver construction.
type Option func(*Driver)

// WithAccountID sets the bot's own marketplace user id so its outbound
// messages are not treated as buyer replies.
func WithAccountID(id int64) Option {
	return func(d *Driver) { d.accountID = id }
}

// WithWorkerCount sets the fulfillment pool size.
func WithWorkerCount(count int) Option {
	return func(d *Driver) {
		if count > 0 {
			d.pool = NewPool(count, d.logger)
		}
	}
}

// WithMetrics wires Prometheus counters.
func WithMetrics(m *metrics.BotMetrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithJournal wires the order event journal.
func WithJournal(j *journal.Journal) Option {
	return func(d *Driver) { d.journal = j }
}

// WithNotifier wires operator alerts for low-balance events.
func WithNotifier(n *notify.Service) Option {
	return func(d *Driver) { d.comp.alerts = n }
}

// NewDriver builds a driver and its compensation controller.
func NewDriver(cfg Config, market Marketplace, gateway Gateway, store state.Store, resolver *points.Resolver, logger *logging.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Driver{
		cfg:      cfg,
		market:   market,
		gateway:  gateway,
		store:    store,
		resolver: resolver,
		logger:   logger,
	}
	d.pool = NewPool(defaultWorkerCount, logger)
	d.comp = &Compensator{
		cfg:    cfg,
		market: market,
		gateway: gateway,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.comp.metrics = d.metrics
	d.comp.journal = d.journal
	return d
}

// Run consumes events until the channel closes or ctx is canceled, then
// drains the pool. A panic while handling one event is logged and the
// loop continues; a single bad event must never stop the service.
func (d *Driver) Run(ctx context.Context, events <-chan funpay.Event) {
	d.pool.Start(ctx)
	defer func() {
		d.pool.Stop()
		d.pool.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handleEvent(ctx, ev)
		}
	}
}

func (d *Driver) handleEvent(ctx context.Context, ev funpay.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while handling event", "panic", r)
		}
	}()
	switch e := ev.(type) {
	case funpay.NewOrderEvent:
		d.HandleNewOrder(ctx, e.OrderID)
	case funpay.NewMessageEvent:
		d.HandleNewMessage(ctx, e.Message)
	}
}

// HandleNewOrder runs order intake: category filter, quantity resolution
// and validation, then state creation and the destination prompt.
func (d *Driver) HandleNewOrder(ctx context.Context, orderID string) {
	order, err := d.market.GetOrder(ctx, orderID)
	if err != nil {
		d.logger.Error("failed to fetch order", "order_id", orderID, "error", err)
		return
	}
	if order.SubcategoryID != d.cfg.CategoryID {
		d.logger.Info("skipping order outside target category",
			"order_id", order.ID,
			"subcategory_id", order.SubcategoryID,
		)
		d.metrics.ObserveOrder("ignored")
		return
	}
	d.logger.Info("new order",
		"order_id", order.ID,
		"buyer_id", order.BuyerID,
		"title", order.Title,
	)
	d.journal.Record(ctx, order.ID, journal.EventReceived, order.Title)

	units, source, ok := d.resolver.Resolve(order)
	if !ok {
		d.metrics.ObserveOrder("rejected")
		d.journal.Record(ctx, order.ID, journal.EventRejected, "quantity not found")
		d.rejectOrder(ctx, order, msgNoQuantity())
		return
	}
	if units < d.cfg.MinPoints || units%100 != 0 {
		d.metrics.ObserveOrder("rejected")
		d.journal.Record(ctx, order.ID, journal.EventRejected, "invalid quantity "+humanPoints(units))
		d.rejectOrder(ctx, order, msgBadQuantity(units, d.cfg.MinPoints))
		return
	}

	conv := &state.Conversation{
		ChatID:  order.ChatID,
		BuyerID: order.BuyerID,
		OrderID: order.ID,
		Step:    state.StepAwaitingDestination,
		Units:   units,
	}
	if err := d.store.Bind(ctx, conv); err != nil {
		d.logger.Warn("failed to bind conversation", "chat_id", order.ChatID, "error", err)
		return
	}
	d.metrics.ObserveOrder("accepted")
	d.journal.Record(ctx, order.ID, journal.EventAwaitingDestination, source)
	d.refreshOpenGauge(ctx)

	d.send(ctx, order.ChatID, msgAskDestination(units))
	d.logger.Info("awaiting steam profile link",
		"order_id", order.ID,
		"buyer_id", order.BuyerID,
		"units", units,
		"source", source,
	)
}

// rejectOrder handles the intake failure path: refund when enabled,
// otherwise point the buyer at support.
func (d *Driver) rejectOrder(ctx context.Context, order *funpay.Order, reason string) {
	if d.cfg.AutoRefund {
		d.comp.RefundIntake(ctx, order.ChatID, order.ID, reason)
		return
	}
	d.send(ctx, order.ChatID, reason+msgRefundSuffix(false))
}

// HandleNewMessage advances the conversation the message belongs to.
func (d *Driver) HandleNewMessage(ctx context.Context, msg funpay.Message) {
	if d.accountID != 0 && msg.AuthorID == d.accountID {
		return
	}
	msg.Text = strings.TrimSpace(msg.Text)
	conv, err := d.store.Lookup(ctx, msg.ChatID, msg.AuthorID)
	if err != nil {
		d.logger.Error("conversation lookup failed", "chat_id", msg.ChatID, "error", err)
		return
	}
	if conv == nil {
		d.send(ctx, msg.ChatID, msgGenericNotice())
		return
	}

	switch conv.Step {
	case state.StepAwaitingDestination:
		d.handleDestination(ctx, conv, msg)
	case state.StepAwaitingConfirmation:
		d.handleConfirmation(ctx, conv, msg)
	case state.StepSubmitted:
		d.send(ctx, conv.ChatID, msgInProgress())
	}
}

func (d *Driver) handleDestination(ctx context.Context, conv *state.Conversation, msg funpay.Message) {
	link := msg.Text
	if !steam.ValidProfileURL(link) {
		d.send(ctx, conv.ChatID, msgInvalidLink())
		d.logger.Info("invalid steam link", "chat_id", conv.ChatID, "link", link)
		return
	}
	conv.Destination = link
	conv.Step = state.StepAwaitingConfirmation
	if err := d.store.Save(ctx, conv); err != nil {
		d.logger.Error("failed to save conversation", "chat_id", conv.ChatID, "error", err)
		return
	}
	d.journal.Record(ctx, conv.OrderID, journal.EventDestinationSet, link)
	d.send(ctx, conv.ChatID, msgConfirmPrompt(link, conv.Units))
	d.logger.Info("steam link accepted", "chat_id", conv.ChatID, "link", link)
}

func (d *Driver) handleConfirmation(ctx context.Context, conv *state.Conversation, msg funpay.Message) {
	if msg.Text == confirmToken {
		// Mark submitted before dispatch so a rapid second "+" cannot
		// double-submit.
		conv.Step = state.StepSubmitted
		if err := d.store.Save(ctx, conv); err != nil {
			d.logger.Error("failed to mark conversation submitted", "chat_id", conv.ChatID, "error", err)
			return
		}
		d.journal.Record(ctx, conv.OrderID, journal.EventSubmitted, conv.Destination)
		d.dispatch(ctx, *conv)
		return
	}

	link := msg.Text
	if !steam.ValidProfileURL(link) {
		d.send(ctx, conv.ChatID, msgInvalidLink())
		d.logger.Info("invalid steam link", "chat_id", conv.ChatID, "link", link)
		return
	}
	conv.Destination = link
	if err := d.store.Save(ctx, conv); err != nil {
		d.logger.Error("failed to save conversation", "chat_id", conv.ChatID, "error", err)
		return
	}
	d.send(ctx, conv.ChatID, msgLinkUpdated(link, conv.Units))
	d.logger.Info("steam link replaced", "chat_id", conv.ChatID, "link", link)
}

// dispatch hands the provider submission to the pool. The job keeps
// running through shutdown: in-flight top-ups are never canceled.
func (d *Driver) dispatch(ctx context.Context, conv state.Conversation) {
	jobCtx := context.WithoutCancel(ctx)
	jobID := uuid.NewString()
	d.logger.Info("dispatching fulfillment",
		"job_id", jobID,
		"order_id", conv.OrderID,
		"units", conv.Units,
		"destination", conv.Destination,
	)
	d.pool.Submit(func(context.Context) {
		d.fulfill(jobCtx, jobID, conv)
	})
}

func (d *Driver) fulfill(ctx context.Context, jobID string, conv state.Conversation) {
	ok, detail := d.gateway.Submit(ctx, conv.Units, conv.Destination)
	if ok {
		d.metrics.ObserveFulfillment("success")
		d.journal.Record(ctx, conv.OrderID, journal.EventFulfilled, humanPoints(conv.Units)+" -> "+conv.Destination)
		d.send(ctx, conv.ChatID, msgSuccess(conv.Destination, conv.Units))
		d.logger.Info("fulfillment succeeded", "job_id", jobID, "order_id", conv.OrderID)
	} else {
		d.metrics.ObserveFulfillment("failure")
		d.journal.Record(ctx, conv.OrderID, journal.EventFailed, detail)
		d.logger.Error("fulfillment failed", "job_id", jobID, "order_id", conv.OrderID, "detail", detail)
		d.comp.FulfillmentFailed(ctx, &conv, detail)
	}
	if err := d.store.Release(ctx, conv.ChatID); err != nil {
		d.logger.Error("failed to release conversation", "chat_id", conv.ChatID, "error", err)
	}
	d.refreshOpenGauge(ctx)
}

func (d *Driver) refreshOpenGauge(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	open, err := d.store.Open(ctx)
	if err != nil {
		return
	}
	d.metrics.SetOpenConversations(len(open))
}

// send delivers a chat message, logging failures. Marketplace messaging
// is best-effort everywhere in the flow.
func (d *Driver) send(ctx context.Context, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if err := d.market.SendMessage(ctx, chatID, text); err != nil {
		d.logger.Error("failed to send chat message", "chat_id", chatID, "error", err)
	}
}
