package merge

import (
	"context"
	"sync"
)

// State is a step of the merge confirmation.
type State string

const (
	StateAwaitingChoice State = "awaiting_choice"
	StateMerging        State = "merging"
	StateDone           State = "done"
)

// Confirmation is the choice between merging and discarding the guest cart.
//
//	awaiting_choice --merge--> merging --ok--> done
//	                              \--fail--> awaiting_choice
//	awaiting_choice --discard--> done
type Confirmation struct {
	o *Orchestrator

	mu      sync.Mutex
	state   State
	lastErr error
}

// NewConfirmation starts a confirmation. It returns ErrNotEligible if the
// user is signed out or the guest cart is empty.
func (o *Orchestrator) NewConfirmation() (*Confirmation, error) {
	if !o.Eligible() {
		return nil, ErrNotEligible
	}
	return &Confirmation{o: o, state: StateAwaitingChoice}, nil
}

// State returns the current step.
func (c *Confirmation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError is the error from the most recent failed merge, or nil.
func (c *Confirmation) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Merge sends the guest cart to the account cart and clears it on success.
// On failure the confirmation returns to awaiting_choice so the user can
// retry or discard.
func (c *Confirmation) Merge(ctx context.Context) error {
	if err := c.begin(StateMerging); err != nil {
		return err
	}

	err := c.o.merge(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateAwaitingChoice
		c.lastErr = err
		return err
	}
	c.state = StateDone
	c.lastErr = nil
	return nil
}

// Discard clears the guest cart without any request.
func (c *Confirmation) Discard(ctx context.Context) error {
	if err := c.begin(StateDone); err != nil {
		return err
	}
	c.o.local.Clear(ctx)
	c.o.logger.InfoContext(ctx, "guest cart discarded")
	return nil
}

// begin moves out of awaiting_choice into next. If eligibility has been lost
// since the confirmation started, it finishes the flow instead.
func (c *Confirmation) begin(next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingChoice {
		return ErrInvalidTransition
	}
	if !c.o.Eligible() {
		c.state = StateDone
		return ErrNotEligible
	}
	c.state = next
	c.lastErr = nil
	return nil
}
