package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funpay-tools/steampoints-bot/internal/funpay"
	"github.com/funpay-tools/steampoints-bot/internal/state"
	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

func newCompensator(cfg Config, market *fakeMarket, gateway *fakeGateway) *Compensator {
	return &Compensator{
		cfg:     cfg,
		market:  market,
		gateway: gateway,
		logger:  logging.Default(),
	}
}

func failedConv() *state.Conversation {
	return &state.Conversation{
		ChatID:      99,
		BuyerID:     7,
		OrderID:     "AB12CD",
		Step:        state.StepSubmitted,
		Units:       500,
		Destination: validLink,
	}
}

func TestFulfillmentFailedRefundsAndNotifies(t *testing.T) {
	market := newFakeMarket()
	gateway := &fakeGateway{balance: 50, balanceKnown: true}
	comp := newCompensator(Config{AutoRefund: true, MinBalance: 5}, market, gateway)

	comp.FulfillmentFailed(context.Background(), failedConv(), "provider timeout")

	require.Equal(t, []string{"AB12CD"}, market.refunds)
	texts := market.sentTexts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "provider timeout")
	assert.Contains(t, texts[1], "Средства возвращены")
}

func TestFulfillmentFailedReportsRefundFailure(t *testing.T) {
	market := newFakeMarket()
	market.refundErr = errors.New("refund endpoint down")
	gateway := &fakeGateway{balance: 50, balanceKnown: true}
	comp := newCompensator(Config{AutoRefund: true, MinBalance: 5}, market, gateway)

	comp.FulfillmentFailed(context.Background(), failedConv(), "provider timeout")

	assert.Empty(t, market.refunds)
	texts := market.sentTexts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Свяжитесь с админом")
}

func TestFulfillmentFailedWithoutAutoRefund(t *testing.T) {
	market := newFakeMarket()
	gateway := &fakeGateway{balance: 50, balanceKnown: true}
	comp := newCompensator(Config{AutoRefund: false, MinBalance: 5}, market, gateway)

	comp.FulfillmentFailed(context.Background(), failedConv(), "provider timeout")

	assert.Empty(t, market.refunds)
	texts := market.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Авто-возврат выключен")
}

func TestCheckBalanceUnknownSkipsProtection(t *testing.T) {
	market := newFakeMarket()
	market.listings = []funpay.Listing{{ID: 1, Active: true}}
	gateway := &fakeGateway{balanceKnown: false}
	comp := newCompensator(Config{AutoDeactivate: true, MinBalance: 5, DeactivateCategoryID: 714}, market, gateway)

	comp.CheckBalanceAndProtect(context.Background())

	assert.Empty(t, market.saved)
}

func TestCheckBalanceAboveThresholdLeavesListings(t *testing.T) {
	market := newFakeMarket()
	market.listings = []funpay.Listing{{ID: 1, Active: true}}
	gateway := &fakeGateway{balance: 9.5, balanceKnown: true}
	comp := newCompensator(Config{AutoDeactivate: true, MinBalance: 5, DeactivateCategoryID: 714}, market, gateway)

	comp.CheckBalanceAndProtect(context.Background())

	assert.Empty(t, market.saved)
}

func TestCheckBalanceBelowThresholdWithoutAutoDeactivate(t *testing.T) {
	market := newFakeMarket()
	market.listings = []funpay.Listing{{ID: 1, Active: true}}
	gateway := &fakeGateway{balance: 1.0, balanceKnown: true}
	comp := newCompensator(Config{AutoDeactivate: false, MinBalance: 5, DeactivateCategoryID: 714}, market, gateway)

	comp.CheckBalanceAndProtect(context.Background())

	assert.Empty(t, market.saved)
}

func TestDeactivateCategorySkipsBrokenListings(t *testing.T) {
	market := newFakeMarket()
	market.listings = []funpay.Listing{
		{ID: 1, SubcategoryID: 714, Active: true},
		{ID: 2, SubcategoryID: 714, Active: true},
		{ID: 3, SubcategoryID: 714, Active: true},
	}
	market.getErr[1] = errors.New("fetch failed")
	market.saveErr[2] = errors.New("save failed")
	comp := newCompensator(Config{DeactivateCategoryID: 714}, market, &fakeGateway{})

	deactivated := comp.DeactivateCategory(context.Background(), 714)

	assert.Equal(t, 1, deactivated)
	require.Len(t, market.saved, 1)
	assert.Equal(t, int64(3), market.saved[0].ID)
	assert.False(t, market.saved[0].Active)
}

func TestDeactivateCategoryListFailure(t *testing.T) {
	market := newFakeMarket()
	market.listErr = errors.New("listings endpoint down")
	comp := newCompensator(Config{DeactivateCategoryID: 714}, market, &fakeGateway{})

	assert.Zero(t, comp.DeactivateCategory(context.Background(), 714))
}
