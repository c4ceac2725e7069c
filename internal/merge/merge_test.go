package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"storefront/internal/localcart"
	"storefront/internal/localstore"
	"storefront/internal/model"
	"storefront/internal/remotecart"
)

type fakeAuth struct{ authed bool }

func (a *fakeAuth) IsAuthenticated() bool { return a.authed }

type fixture struct {
	orch   *Orchestrator
	auth   *fakeAuth
	local  *localcart.Manager
	store  *localstore.Store
	remote *remotecart.Mock
}

func newFixture(t *testing.T, guestLines ...model.LocalLine) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := localstore.New(localstore.NewMemoryBackend(), localstore.DefaultKey, logger)
	store.Save(ctx, guestLines)
	local := localcart.New(store, logger)
	local.Initialize(ctx)
	remote := &remotecart.Mock{}
	auth := &fakeAuth{authed: true}
	return &fixture{
		orch:   New(auth, local, remote, logger),
		auth:   auth,
		local:  local,
		store:  store,
		remote: remote,
	}
}

func line(productID int64, qty int) model.LocalLine {
	return model.LocalLine{ProductID: productID, Quantity: qty, Product: model.ProductSnapshot{ID: productID, Price: model.MustParseMoney("1")}}
}

func TestAfterAuth_EmptyGuestCartMakesNoCalls(t *testing.T) {
	for _, flow := range []Flow{FlowLogin, FlowRegister} {
		fx := newFixture(t)
		if got := fx.orch.AfterAuth(context.Background(), flow); got != OutcomeNothingToMerge {
			t.Errorf("%s: outcome = %s, want nothing_to_merge", flow, got)
		}
		if fx.remote.Calls("Merge") != 0 {
			t.Errorf("%s: Merge called on an empty guest cart", flow)
		}
	}
}

func TestAfterAuth_LoginNeedsConfirmation(t *testing.T) {
	fx := newFixture(t, line(1, 2))

	if got := fx.orch.AfterAuth(context.Background(), FlowLogin); got != OutcomeConfirmationRequired {
		t.Errorf("outcome = %s, want confirmation_required", got)
	}
	if fx.remote.Calls("Merge") != 0 {
		t.Error("login must not merge without confirmation")
	}
	if fx.local.IsEmpty() {
		t.Error("guest cart cleared before the user chose")
	}
}

func TestAfterAuth_RegisterMergesAndClears(t *testing.T) {
	fx := newFixture(t, line(1, 2), line(2, 1))
	var sent []model.MergeEntry
	fx.remote.MergeFunc = func(_ context.Context, entries []model.MergeEntry) ([]model.ServerLine, error) {
		sent = entries
		return nil, nil
	}

	if got := fx.orch.AfterAuth(context.Background(), FlowRegister); got != OutcomeMerged {
		t.Fatalf("outcome = %s, want merged", got)
	}

	want := []model.MergeEntry{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	if fx.remote.Calls("Merge") != 1 || !reflect.DeepEqual(sent, want) {
		t.Errorf("Merge calls = %d, entries = %+v, want one call with %+v", fx.remote.Calls("Merge"), sent, want)
	}
	if got := fx.store.Load(context.Background()); len(got) != 0 {
		t.Errorf("stored guest cart = %+v, want empty", got)
	}
}

func TestAfterAuth_RegisterFailureKeepsGuestCart(t *testing.T) {
	fx := newFixture(t, line(1, 2))
	fx.remote.MergeFunc = func(context.Context, []model.MergeEntry) ([]model.ServerLine, error) {
		return nil, model.NewNetworkError("storefront", errors.New("down"))
	}

	if got := fx.orch.AfterAuth(context.Background(), FlowRegister); got != OutcomeMergeFailed {
		t.Fatalf("outcome = %s, want merge_failed", got)
	}
	if got := fx.store.Load(context.Background()); len(got) != 1 {
		t.Errorf("stored guest cart = %+v, want it left in place", got)
	}
	if fx.remote.Calls("Merge") != 1 {
		t.Error("registration merge must not retry")
	}
}

func TestNewConfirmation_Eligibility(t *testing.T) {
	tests := []struct {
		name   string
		authed bool
		lines  []model.LocalLine
		want   error
	}{
		{"eligible", true, []model.LocalLine{line(1, 1)}, nil},
		{"signed out", false, []model.LocalLine{line(1, 1)}, ErrNotEligible},
		{"empty guest cart", true, nil, ErrNotEligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.lines...)
			fx.auth.authed = tt.authed

			c, err := fx.orch.NewConfirmation()

			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if err == nil && c.State() != StateAwaitingChoice {
				t.Errorf("State() = %s, want awaiting_choice", c.State())
			}
		})
	}
}

func TestConfirmation_MergeSuccess(t *testing.T) {
	fx := newFixture(t, line(1, 2), line(2, 1))
	c, _ := fx.orch.NewConfirmation()

	if err := c.Merge(context.Background()); err != nil {
		t.Fatal(err)
	}

	if c.State() != StateDone {
		t.Errorf("State() = %s, want done", c.State())
	}
	if !fx.local.IsEmpty() || len(fx.store.Load(context.Background())) != 0 {
		t.Error("guest cart not cleared after merge")
	}
	if err := c.Merge(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Merge() error = %v, want ErrInvalidTransition", err)
	}
}

func TestConfirmation_MergeFailureAllowsRetry(t *testing.T) {
	fx := newFixture(t, line(1, 2))
	fail := true
	fx.remote.MergeFunc = func(context.Context, []model.MergeEntry) ([]model.ServerLine, error) {
		if fail {
			return nil, model.NewFieldValidationError("", map[string][]string{"items.0.product_id": {"invalid"}})
		}
		return nil, nil
	}
	c, _ := fx.orch.NewConfirmation()

	err := c.Merge(context.Background())

	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if c.State() != StateAwaitingChoice {
		t.Errorf("State() = %s, want awaiting_choice after failure", c.State())
	}
	if c.LastError() == nil {
		t.Error("LastError() = nil, want the merge failure")
	}
	if fx.local.IsEmpty() {
		t.Error("failed merge cleared the guest cart")
	}

	fail = false
	if err := c.Merge(context.Background()); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if c.State() != StateDone || c.LastError() != nil {
		t.Errorf("after retry: state=%s lastErr=%v", c.State(), c.LastError())
	}
}

func TestConfirmation_Discard(t *testing.T) {
	fx := newFixture(t, line(1, 2))
	c, _ := fx.orch.NewConfirmation()

	if err := c.Discard(context.Background()); err != nil {
		t.Fatal(err)
	}

	if c.State() != StateDone {
		t.Errorf("State() = %s, want done", c.State())
	}
	if fx.remote.Calls("Merge") != 0 {
		t.Error("discard made a network call")
	}
	if len(fx.store.Load(context.Background())) != 0 {
		t.Error("discard did not clear the guest cart")
	}
	if err := c.Discard(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Discard() error = %v, want ErrInvalidTransition", err)
	}
}

func TestConfirmation_EligibilityLostMidFlow(t *testing.T) {
	fx := newFixture(t, line(1, 2))
	c, _ := fx.orch.NewConfirmation()
	fx.auth.authed = false

	if err := c.Merge(context.Background()); !errors.Is(err, ErrNotEligible) {
		t.Errorf("error = %v, want ErrNotEligible", err)
	}
	if c.State() != StateDone {
		t.Errorf("State() = %s, want done", c.State())
	}
	if fx.remote.Calls("Merge") != 0 {
		t.Error("ineligible confirmation reached the server")
	}
}

func TestConfirmation_RejectsChoiceWhileMerging(t *testing.T) {
	fx := newFixture(t, line(1, 2))
	entered := make(chan struct{})
	release := make(chan struct{})
	fx.remote.MergeFunc = func(context.Context, []model.MergeEntry) ([]model.ServerLine, error) {
		close(entered)
		<-release
		return nil, nil
	}
	c, _ := fx.orch.NewConfirmation()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Merge(context.Background())
	}()
	<-entered

	if c.State() != StateMerging {
		t.Errorf("State() = %s, want merging", c.State())
	}
	if err := c.Discard(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Discard() while merging error = %v, want ErrInvalidTransition", err)
	}

	close(release)
	wg.Wait()
	if c.State() != StateDone {
		t.Errorf("State() = %s, want done", c.State())
	}
}
