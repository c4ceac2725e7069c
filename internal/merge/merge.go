// Package merge folds the guest cart into the account cart after sign-in.
//
// Registration merges straight away. Login with a non-empty guest cart hands
// off to a Confirmation, where the user picks merge or discard.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront/internal/model"
)

var (
	// ErrNotEligible means the user is signed out or the guest cart is empty.
	ErrNotEligible = errors.New("merge: requires a signed-in user and a non-empty guest cart")
	// ErrInvalidTransition means the confirmation is not awaiting a choice.
	ErrInvalidTransition = errors.New("merge: confirmation is not awaiting a choice")
)

// Flow is the auth flow that just succeeded.
type Flow int

const (
	FlowLogin Flow = iota
	FlowRegister
)

func (f Flow) String() string {
	if f == FlowRegister {
		return "register"
	}
	return "login"
}

// Outcome is what AfterAuth did.
type Outcome int

const (
	// OutcomeNothingToMerge: the guest cart was empty; no request was made.
	OutcomeNothingToMerge Outcome = iota
	// OutcomeConfirmationRequired: the caller must send the user to the confirmation step.
	OutcomeConfirmationRequired
	// OutcomeMerged: the guest cart was merged and cleared.
	OutcomeMerged
	// OutcomeMergeFailed: the merge failed; the guest cart was kept.
	OutcomeMergeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmationRequired:
		return "confirmation_required"
	case OutcomeMerged:
		return "merged"
	case OutcomeMergeFailed:
		return "merge_failed"
	default:
		return "nothing_to_merge"
	}
}

// AuthState reports whether the user is signed in.
type AuthState interface {
	IsAuthenticated() bool
}

// LocalCart is the guest cart being merged.
type LocalCart interface {
	Items() []model.LocalLine
	Clear(ctx context.Context)
}

// Remote is the account cart merge endpoint.
type Remote interface {
	Merge(ctx context.Context, entries []model.MergeEntry) ([]model.ServerLine, error)
}

// Orchestrator runs the post-auth merge.
type Orchestrator struct {
	auth   AuthState
	local  LocalCart
	remote Remote
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(auth AuthState, local LocalCart, remote Remote, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{auth: auth, local: local, remote: remote, logger: logger}
}

// AfterAuth runs once, synchronously, right after a login or registration
// succeeds. A failed registration merge is logged and the guest cart is left
// in place; the caller carries on to the landing page.
func (o *Orchestrator) AfterAuth(ctx context.Context, flow Flow) Outcome {
	if len(o.local.Items()) == 0 {
		return OutcomeNothingToMerge
	}
	if flow == FlowLogin {
		return OutcomeConfirmationRequired
	}

	if err := o.merge(ctx); err != nil {
		o.logger.ErrorContext(ctx, "merging guest cart after registration failed",
			slog.String("error", err.Error()),
		)
		return OutcomeMergeFailed
	}
	return OutcomeMerged
}

// Eligible reports whether a confirmation can start.
func (o *Orchestrator) Eligible() bool {
	return o.auth.IsAuthenticated() && len(o.local.Items()) > 0
}

func (o *Orchestrator) merge(ctx context.Context) error {
	lines := o.local.Items()
	entries := model.MergeEntries(lines)
	if _, err := o.remote.Merge(ctx, entries); err != nil {
		return fmt.Errorf("merging %d guest lines: %w", len(entries), err)
	}
	o.local.Clear(ctx)
	o.logger.InfoContext(ctx, "guest cart merged", slog.Int("lines", len(entries)))
	return nil
}
