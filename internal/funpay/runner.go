package funpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

// Runner polls FunPay for account updates and turns them into Events.
// Event order within one chat follows the marketplace's own ordering; the
// runner does not reorder anything.
type Runner struct {
	client *Client
	delay  time.Duration
	logger *logging.Logger

	cursor string
}

// NewRunner creates a runner polling with the given delay between requests.
func NewRunner(client *Client, delay time.Duration, logger *logging.Logger) *Runner {
	if delay <= 0 {
		delay = 3 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{client: client, delay: delay, logger: logger}
}

type updatesResponse struct {
	Cursor string `json:"cursor"`
	Orders []struct {
		ID string `json:"id"`
	} `json:"new_orders"`
	Messages []Message `json:"new_messages"`
}

// Listen starts polling and returns a channel of events. The channel is
// closed when ctx is canceled. Poll failures are logged and retried on the
// next tick; they never terminate the stream.
func (r *Runner) Listen(ctx context.Context) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		ticker := time.NewTicker(r.delay)
		defer ticker.Stop()
		for {
			batch, err := r.poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Warn("funpay poll failed", "error", err)
			}
			for _, ev := range batch {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return events
}

func (r *Runner) poll(ctx context.Context) ([]Event, error) {
	q := url.Values{}
	if r.cursor != "" {
		q.Set("cursor", r.cursor)
	}
	q.Set("limit", strconv.Itoa(100))
	data, err := r.client.invoke(ctx, http.MethodGet, "/updates", q, nil)
	if err != nil {
		return nil, err
	}
	var resp updatesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Cursor != "" {
		r.cursor = resp.Cursor
	}
	events := make([]Event, 0, len(resp.Orders)+len(resp.Messages))
	for _, o := range resp.Orders {
		events = append(events, NewOrderEvent{OrderID: o.ID})
	}
	for _, m := range resp.Messages {
		events = append(events, NewMessageEvent{Message: m})
	}
	return events, nil
}
