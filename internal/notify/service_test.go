package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	msgs []EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg EmailMessage) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestLowBalanceWithDeactivation(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, "ops@example.com", nil)

	svc.LowBalance(context.Background(), 2.5, 5.0, 4, true)

	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, "ops@example.com", msg.To)
	assert.Contains(t, msg.Body, "2.50")
	assert.Contains(t, msg.Body, "Deactivated 4 listing(s)")
}

func TestLowBalanceManualMode(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, "ops@example.com", nil)

	svc.LowBalance(context.Background(), 1.0, 5.0, 0, false)

	require.Len(t, sender.msgs, 1)
	assert.Contains(t, sender.msgs[0].Body, "manually")
}

func TestSendErrorsAreSwallowed(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	svc := NewService(sender, "ops@example.com", nil)

	// Must not panic or propagate.
	svc.LowBalance(context.Background(), 1.0, 5.0, 0, true)
	require.Len(t, sender.msgs, 1)
}

func TestNoOperatorEmailConfigured(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, "", nil)

	svc.LowBalance(context.Background(), 1.0, 5.0, 0, true)
	assert.Empty(t, sender.msgs)
}

func TestNilSendGridFallsBackToStub(t *testing.T) {
	var sg *SendGridSender
	svc := NewService(sg, "ops@example.com", nil)
	// Stub sender logs and succeeds.
	svc.LowBalance(context.Background(), 1.0, 5.0, 0, true)
}
