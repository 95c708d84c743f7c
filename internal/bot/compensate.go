package bot

import (
	"context"
	"fmt"

	"github.com/funpay-tools/steampoints-bot/internal/journal"
	"github.com/funpay-tools/steampoints-bot/internal/notify"
	"github.com/funpay-tools/steampoints-bot/internal/observability/metrics"
	"github.com/funpay-tools/steampoints-bot/internal/state"
	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

// Compensator handles the failure side of fulfillment: buyer refunds and
// low-balance inventory protection. Every step is best-effort; a failing
// refund or listing save is logged and the rest of the policy continues.
type Compensator struct {
	cfg     Config
	market  Marketplace
	gateway Gateway
	logger  *logging.Logger
	metrics *metrics.BotMetrics
	journal *journal.Journal
	alerts  *notify.Service
}

// FulfillmentFailed runs the full compensation policy after a provider
// submission failure: notify the buyer, refund when enabled, then check
// the balance and protect listings.
func (c *Compensator) FulfillmentFailed(ctx context.Context, conv *state.Conversation, errText string) {
	if c.cfg.AutoRefund {
		c.sendTo(ctx, conv.ChatID, msgFailureRefunding(errText))
		if err := c.market.Refund(ctx, conv.OrderID); err != nil {
			c.logger.Error("refund failed", "order_id", conv.OrderID, "error", err)
			c.metrics.ObserveRefund("failure")
			c.journal.Record(ctx, conv.OrderID, journal.EventRefundFailed, err.Error())
			c.sendTo(ctx, conv.ChatID, msgRefundFailed())
		} else {
			c.logger.Warn("refund issued", "order_id", conv.OrderID)
			c.metrics.ObserveRefund("success")
			c.journal.Record(ctx, conv.OrderID, journal.EventRefunded, "")
			c.sendTo(ctx, conv.ChatID, msgRefunded())
		}
	} else {
		c.sendTo(ctx, conv.ChatID, msgFailureManual(errText))
	}

	c.CheckBalanceAndProtect(ctx)
}

// RefundIntake is the simpler direct-refund helper used when an order is
// rejected at intake, before any conversation state exists.
func (c *Compensator) RefundIntake(ctx context.Context, chatID int64, orderID, reason string) {
	c.logger.Info("refunding rejected order", "order_id", orderID, "reason", reason)
	c.sendTo(ctx, chatID, reason+msgRefundSuffix(true))
	if err := c.market.Refund(ctx, orderID); err != nil {
		c.logger.Error("refund failed", "order_id", orderID, "error", err)
		c.metrics.ObserveRefund("failure")
		c.journal.Record(ctx, orderID, journal.EventRefundFailed, err.Error())
		return
	}
	c.logger.Warn("refund issued", "order_id", orderID)
	c.metrics.ObserveRefund("success")
	c.journal.Record(ctx, orderID, journal.EventRefunded, "intake")
}

// CheckBalanceAndProtect queries the provider balance and, when it drops
// below the configured minimum, deactivates the protected category.
func (c *Compensator) CheckBalanceAndProtect(ctx context.Context) {
	balance, known := c.gateway.CheckBalance(ctx)
	if !known {
		c.logger.Warn("provider balance unknown, skipping protection check")
		return
	}
	c.metrics.SetProviderBalance(balance)
	c.logger.Info("provider balance", "balance", balance)
	if balance >= c.cfg.MinBalance {
		return
	}

	c.logger.Warn("provider balance below threshold",
		"balance", balance,
		"threshold", c.cfg.MinBalance,
	)
	deactivated := 0
	if c.cfg.AutoDeactivate {
		deactivated = c.DeactivateCategory(ctx, c.cfg.DeactivateCategoryID)
		c.metrics.AddListingsDeactivated(deactivated)
		c.journal.Record(ctx, "", journal.EventDeactivationSweep,
			fmt.Sprintf("balance=%.2f deactivated=%d category=%d", balance, deactivated, c.cfg.DeactivateCategoryID))
		c.logger.Warn("listings auto-deactivated",
			"count", deactivated,
			"category_id", c.cfg.DeactivateCategoryID,
		)
	} else {
		c.logger.Warn("auto-deactivation disabled, deactivate listings manually")
	}
	if c.alerts != nil {
		c.alerts.LowBalance(ctx, balance, c.cfg.MinBalance, deactivated, c.cfg.AutoDeactivate)
	}
}

// DeactivateCategory marks every listing in the category inactive. Each
// listing is handled independently; one that cannot be fetched or saved
// is skipped and not counted, never aborting the batch.
func (c *Compensator) DeactivateCategory(ctx context.Context, categoryID int) int {
	listings, err := c.market.ListListings(ctx, categoryID)
	if err != nil {
		c.logger.Error("failed to list listings", "category_id", categoryID, "error", err)
		return 0
	}
	deactivated := 0
	for _, entry := range listings {
		listing, err := c.market.GetListing(ctx, entry.ID)
		if err != nil || listing == nil {
			c.logger.Warn("failed to fetch listing, skipping", "listing_id", entry.ID, "error", err)
			continue
		}
		listing.Active = false
		if err := c.market.SaveListing(ctx, listing); err != nil {
			c.logger.Error("failed to deactivate listing", "listing_id", entry.ID, "error", err)
			continue
		}
		c.logger.Info("listing deactivated", "listing_id", entry.ID)
		deactivated++
	}
	c.logger.Warn("deactivation sweep finished", "deactivated", deactivated, "category_id", categoryID)
	return deactivated
}

func (c *Compensator) sendTo(ctx context.Context, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if err := c.market.SendMessage(ctx, chatID, text); err != nil {
		c.logger.Error("failed to send chat message", "chat_id", chatID, "error", err)
	}
}
