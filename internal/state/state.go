// Package state tracks per-conversation fulfillment progress.
package state

import (
	"context"
	"time"
)

// Step is the position of a conversation in the fulfillment flow.
type Step string

const (
	// StepAwaitingDestination means the buyer still owes a profile URL.
	StepAwaitingDestination Step = "awaiting_destination"
	// StepAwaitingConfirmation means a destination is stored and the buyer
	// must confirm with "+" (or replace the destination).
	StepAwaitingConfirmation Step = "awaiting_confirmation"
	// StepSubmitted marks a conversation whose fulfillment is in flight.
	// A second confirmation in this step is ignored.
	StepSubmitted Step = "submitted"
)

// Conversation is the state record for one order-in-progress.
type Conversation struct {
	ChatID  int64  `json:"chat_id"`
	BuyerID int64  `json:"buyer_id"`
	OrderID string `json:"order_id"`
	Step    Step   `json:"step"`
	// Units is finalized at creation and never mutated afterwards.
	Units int `json:"units"`
	// Destination holds the last supplied, not yet submitted profile URL.
	Destination string    `json:"destination,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store keeps open conversations keyed by chat id, with a reverse index
// from buyer id used as a fallback when a reply arrives without a
// resolvable chat. All operations are atomic with respect to each other:
// pool workers release state while the event loop binds and looks up.
type Store interface {
	// Bind inserts a new conversation and indexes it under its buyer.
	Bind(ctx context.Context, conv *Conversation) error
	// Lookup returns the conversation for chatID, or, failing that, the
	// buyer's single open conversation. Ambiguous buyers (two or more
	// open conversations) resolve to nil. nil, nil means "none".
	Lookup(ctx context.Context, chatID, buyerID int64) (*Conversation, error)
	// Save persists step/destination changes to an already-bound
	// conversation.
	Save(ctx context.Context, conv *Conversation) error
	// Release removes the conversation and prunes the buyer index.
	Release(ctx context.Context, chatID int64) error
	// Open returns a snapshot of all open conversations.
	Open(ctx context.Context) ([]*Conversation, error)
}
