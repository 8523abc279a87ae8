package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dinehall/tableside/internal/config"
	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/storage/cache"
	testhelpers "github.com/dinehall/tableside/internal/test"
	"github.com/dinehall/tableside/internal/usecase"
)

type facadeFixture struct {
	facade  *TableServiceFacade
	repos   *testhelpers.FactoryStub
	gateway *testhelpers.CaptureGatewayStub
	catalog *testhelpers.CatalogProviderStub
	events  *testhelpers.EventsRecorder
}

func newFacadeFixture(tableIDs ...string) *facadeFixture {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	repos := testhelpers.NewFactoryStub(tableIDs...)
	gateway := &testhelpers.CaptureGatewayStub{}
	catalog := &testhelpers.CatalogProviderStub{Dishes: map[string]*model.Dish{
		"dish-1": {ID: "dish-1", Name: "Pad Thai", UnitPrice: 11.5},
		"dish-2": {ID: "dish-2", Name: "Green Curry", UnitPrice: 9},
	}}
	events := &testhelpers.EventsRecorder{}

	facade := NewTableServiceFacade(
		usecase.NewTableUseCase(repos.Tables()),
		usecase.NewSessionUseCase(repos.Sessions(), cache.NewSessionCache()),
		usecase.NewOrderUseCase(repos.Orders()),
		usecase.NewPaymentUseCase(repos.Payments(), gateway, logger),
		catalog,
		events,
		&config.Config{
			IdempotencySecret: "test-secret",
			ConflictRetries:   3,
			SessionTTL:        2 * time.Hour,
		},
		logger,
	)
	return &facadeFixture{facade: facade, repos: repos, gateway: gateway, catalog: catalog, events: events}
}

func (f *facadeFixture) mustStart(t *testing.T, tableID string) *model.Session {
	t.Helper()
	session, err := f.facade.StartSession(context.Background(), tableID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}

func (f *facadeFixture) mustOrder(t *testing.T, sessionID string) *model.Order {
	t.Helper()
	order, err := f.facade.SubmitOrder(context.Background(), sessionID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 1}})
	if err != nil {
		t.Fatalf("submit order: %v", err)
	}
	return order
}

func (f *facadeFixture) mustCheckout(t *testing.T, sessionID string) *model.PaymentAttempt {
	t.Helper()
	attempt, err := f.facade.Checkout(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return attempt
}

func TestStartSessionClaimsTable(t *testing.T) {
	fx := newFacadeFixture("table-1")

	session := fx.mustStart(t, "table-1")
	if session.Status != model.SessionStatusOpen || session.Version != 1 {
		t.Fatalf("unexpected session state: %+v", session)
	}
	holder, ok := fx.repos.TableRepo.Holder("table-1")
	if !ok || holder != session.ID {
		t.Fatalf("expected table held by %s, got %q occupied=%v", session.ID, holder, ok)
	}
}

func TestStartSessionUnknownTable(t *testing.T) {
	fx := newFacadeFixture("table-1")
	if _, err := fx.facade.StartSession(context.Background(), "table-9"); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartSessionOccupiedTable(t *testing.T) {
	fx := newFacadeFixture("table-1")
	first := fx.mustStart(t, "table-1")

	if _, err := fx.facade.StartSession(context.Background(), "table-1"); !errors.Is(err, domainErrors.ErrTableOccupied) {
		t.Fatalf("expected table occupied, got %v", err)
	}

	live, err := fx.facade.LiveSessionForTable(context.Background(), "table-1")
	if err != nil {
		t.Fatalf("live session lookup: %v", err)
	}
	if live.ID != first.ID {
		t.Fatalf("expected live session %s, got %s", first.ID, live.ID)
	}
}

func TestStartSessionConcurrentSingleWinner(t *testing.T) {
	fx := newFacadeFixture("table-1")

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.facade.StartSession(context.Background(), "table-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, occupied int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domainErrors.ErrTableOccupied):
			occupied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || occupied != callers-1 {
		t.Fatalf("expected exactly one winner, got wins=%d occupied=%d", wins, occupied)
	}
}

func TestStartSessionRollsBackClaimOnCreateFailure(t *testing.T) {
	fx := newFacadeFixture("table-1")
	boom := errors.New("boom")
	fx.repos.SessionRepo.CreateFn = func(context.Context, string, string) (*model.Session, error) {
		return nil, boom
	}

	if _, err := fx.facade.StartSession(context.Background(), "table-1"); !errors.Is(err, boom) {
		t.Fatalf("expected create failure, got %v", err)
	}
	if _, held := fx.repos.TableRepo.Holder("table-1"); held {
		t.Fatal("expected table released after rollback")
	}
}

func TestSubmitOrderSnapshotsPrices(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")

	order, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{
		{DishID: "dish-1", Quantity: 2},
		{DishID: "dish-2", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("submit order: %v", err)
	}
	if order.Seq != 1 || order.Status != model.OrderStatusPending {
		t.Fatalf("unexpected order: %+v", order)
	}
	if got := order.Total(); got != 2*11.5+9 {
		t.Fatalf("unexpected total %v", got)
	}
	if order.Items[0].Name != "Pad Thai" || order.Items[0].UnitPrice != 11.5 {
		t.Fatalf("expected snapshotted dish data, got %+v", order.Items[0])
	}

	// Later price changes must not affect recorded orders.
	fx.catalog.Dishes["dish-1"].UnitPrice = 99
	listed, err := fx.facade.SessionOrders(context.Background(), session.ID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("list orders: %v err=%v", listed, err)
	}
	if listed[0].Items[0].UnitPrice != 11.5 {
		t.Fatalf("expected frozen price, got %v", listed[0].Items[0].UnitPrice)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")

	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, nil); !errors.Is(err, domainErrors.ErrEmptyItems) {
		t.Fatalf("expected empty items, got %v", err)
	}
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 0}}); !errors.Is(err, domainErrors.ErrEmptyItems) {
		t.Fatalf("expected empty items for zero quantity, got %v", err)
	}
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-404", Quantity: 1}}); !errors.Is(err, domainErrors.ErrDishNotFound) {
		t.Fatalf("expected dish not found, got %v", err)
	}
}

func TestSubmitOrderConcurrentSeqMatchesAdmission(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")

	const batches = 20
	var wg sync.WaitGroup
	for i := 0; i < batches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 1}}); err != nil {
				t.Errorf("submit order: %v", err)
			}
		}()
	}
	wg.Wait()

	listed, err := fx.facade.SessionOrders(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(listed) != batches {
		t.Fatalf("expected %d orders, got %d", batches, len(listed))
	}
	for i, order := range listed {
		if order.Seq != int64(i+1) {
			t.Fatalf("expected contiguous seq, got %d at position %d", order.Seq, i)
		}
	}
}

func TestCheckoutFreezesSessionAndDispatchesCapture(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-2", Quantity: 2}}); err != nil {
		t.Fatalf("submit order: %v", err)
	}

	attempt := fx.mustCheckout(t, session.ID)
	if attempt.Status != model.PaymentStatusPendingGateway || attempt.GatewayRef == nil {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if attempt.Amount != 18 {
		t.Fatalf("expected amount 18, got %v", attempt.Amount)
	}

	frozen, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if frozen.Status != model.SessionStatusAwaitingPayment || frozen.Version != 2 {
		t.Fatalf("unexpected session state: %+v", frozen)
	}

	// Frozen sessions accept no further orders.
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 1}}); !errors.Is(err, domainErrors.ErrSessionNotOpen) {
		t.Fatalf("expected session not open, got %v", err)
	}
}

func TestCheckoutSecondCallFailsAttemptInFlight(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	fx.mustOrder(t, session.ID)
	fx.mustCheckout(t, session.ID)

	if _, err := fx.facade.Checkout(context.Background(), session.ID); !errors.Is(err, domainErrors.ErrAttemptInFlight) {
		t.Fatalf("expected attempt in flight, got %v", err)
	}
}

func TestCheckoutConcurrentSingleWinner(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	fx.mustOrder(t, session.ID)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.facade.Checkout(context.Background(), session.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, inFlight int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domainErrors.ErrAttemptInFlight):
			inFlight++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || inFlight != callers-1 {
		t.Fatalf("expected exactly one initiate, got wins=%d inFlight=%d", wins, inFlight)
	}
	if got := len(fx.gateway.DispatchedKeys()); got != 1 {
		t.Fatalf("expected one gateway dispatch, got %d", got)
	}
}

func TestCheckoutRevertsSessionWhenDispatchFails(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	fx.mustOrder(t, session.ID)
	fx.gateway.CaptureFn = func(context.Context, string, float64, string) (string, error) {
		return "", errors.New("gateway down")
	}

	if _, err := fx.facade.Checkout(context.Background(), session.ID); err == nil {
		t.Fatal("expected checkout failure")
	}

	reverted, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if reverted.Status != model.SessionStatusOpen {
		t.Fatalf("expected session back to open, got %s", reverted.Status)
	}
	if _, err := fx.repos.PaymentRepo.GetInFlight(context.Background(), session.ID); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected no in-flight attempt, got %v", err)
	}

	// The session is usable again.
	fx.gateway.CaptureFn = nil
	fx.mustCheckout(t, session.ID)
}

func TestCheckoutRejectsSessionWithNothingBillable(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")

	if _, err := fx.facade.Checkout(context.Background(), session.ID); !errors.Is(err, domainErrors.ErrEmptyItems) {
		t.Fatalf("expected empty items, got %v", err)
	}

	current, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if current.Status != model.SessionStatusOpen || current.Version != 1 {
		t.Fatalf("expected session untouched, got %+v", current)
	}
	if got := len(fx.gateway.DispatchedKeys()); got != 0 {
		t.Fatalf("expected no gateway dispatch, got %d", got)
	}
}

func settle(t *testing.T, fx *facadeFixture, attempt *model.PaymentAttempt, outcome model.GatewayOutcome) {
	t.Helper()
	if attempt.GatewayRef == nil {
		t.Fatal("attempt has no gateway ref")
	}
	if err := fx.facade.HandleGatewayCallback(context.Background(), *attempt.GatewayRef, outcome); err != nil {
		t.Fatalf("gateway callback: %v", err)
	}
}

func TestSettlementSucceededClosesSessionAndConfirmsOrders(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	order, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 1}})
	if err != nil {
		t.Fatalf("submit order: %v", err)
	}
	attempt := fx.mustCheckout(t, session.ID)

	settle(t, fx, attempt, model.GatewayOutcomeSucceeded)

	closed, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if closed.Status != model.SessionStatusClosed {
		t.Fatalf("expected closed session, got %s", closed.Status)
	}
	if _, held := fx.repos.TableRepo.Holder("table-1"); held {
		t.Fatal("expected table freed at settlement")
	}

	listed, err := fx.facade.SessionOrders(context.Background(), session.ID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("list orders: %v err=%v", listed, err)
	}
	if listed[0].Status != model.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %s", listed[0].Status)
	}

	if closedEvents := fx.events.Closed(); len(closedEvents) != 1 || closedEvents[0] != session.ID {
		t.Fatalf("expected session closed event, got %v", closedEvents)
	}
	if confirmed := fx.events.Confirmed(); len(confirmed) != 1 || confirmed[0] != order.ID {
		t.Fatalf("expected order confirmed event, got %v", confirmed)
	}

	count, err := fx.repos.PaymentRepo.CountByStatus(context.Background(), session.ID, model.PaymentStatusSucceeded)
	if err != nil || count != 1 {
		t.Fatalf("expected exactly one succeeded attempt, got %d err=%v", count, err)
	}
}

func TestSettlementCallbackReplayIsNoOp(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 1}}); err != nil {
		t.Fatalf("submit order: %v", err)
	}
	attempt := fx.mustCheckout(t, session.ID)

	settle(t, fx, attempt, model.GatewayOutcomeSucceeded)
	before, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}

	settle(t, fx, attempt, model.GatewayOutcomeSucceeded)

	after, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if after.Version != before.Version || after.Status != before.Status {
		t.Fatalf("expected replay no-op, before=%+v after=%+v", before, after)
	}
	if closedEvents := fx.events.Closed(); len(closedEvents) != 1 {
		t.Fatalf("expected single closed event, got %v", closedEvents)
	}
}

func TestSettlementRedeliveryFreesTableAfterFailedRelease(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	fx.mustOrder(t, session.ID)
	attempt := fx.mustCheckout(t, session.ID)

	tables := fx.repos.TableRepo
	tables.ReleaseFn = func(ctx context.Context, tableID, sessionID string) error {
		tables.ReleaseFn = nil
		return errors.New("storage unavailable")
	}

	if err := fx.facade.HandleGatewayCallback(context.Background(), *attempt.GatewayRef, model.GatewayOutcomeSucceeded); err == nil {
		t.Fatal("expected first delivery to fail on release")
	}
	closed, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if closed.Status != model.SessionStatusClosed {
		t.Fatalf("expected closed session, got %s", closed.Status)
	}
	if _, held := tables.Holder("table-1"); !held {
		t.Fatal("expected table still occupied after the failed release")
	}

	settle(t, fx, attempt, model.GatewayOutcomeSucceeded)

	if _, held := tables.Holder("table-1"); held {
		t.Fatal("expected redelivery to free the table")
	}
	listed, err := fx.facade.SessionOrders(context.Background(), session.ID)
	if err != nil || len(listed) != 1 || listed[0].Status != model.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %v err=%v", listed, err)
	}
}

func TestSettlementRedeliveryConfirmsOrdersAfterFailedConfirm(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	order := fx.mustOrder(t, session.ID)
	attempt := fx.mustCheckout(t, session.ID)

	orders := fx.repos.OrderRepo
	orders.ConfirmAllPendingFn = func(context.Context, string) ([]string, error) {
		return nil, errors.New("storage unavailable")
	}

	if err := fx.facade.HandleGatewayCallback(context.Background(), *attempt.GatewayRef, model.GatewayOutcomeSucceeded); err == nil {
		t.Fatal("expected first delivery to fail on confirm")
	}
	if _, held := fx.repos.TableRepo.Holder("table-1"); !held {
		t.Fatal("expected table still occupied after the failed confirm")
	}

	orders.ConfirmAllPendingFn = nil
	settle(t, fx, attempt, model.GatewayOutcomeSucceeded)

	listed, err := fx.facade.SessionOrders(context.Background(), session.ID)
	if err != nil || len(listed) != 1 || listed[0].Status != model.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %v err=%v", listed, err)
	}
	if _, held := fx.repos.TableRepo.Holder("table-1"); held {
		t.Fatal("expected redelivery to free the table")
	}
	if confirmed := fx.events.Confirmed(); len(confirmed) != 1 || confirmed[0] != order.ID {
		t.Fatalf("expected confirmed event for healed order, got %v", confirmed)
	}
}

func TestSettlementConflictingOutcomeRejected(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 1}}); err != nil {
		t.Fatalf("submit order: %v", err)
	}
	attempt := fx.mustCheckout(t, session.ID)
	settle(t, fx, attempt, model.GatewayOutcomeSucceeded)

	err := fx.facade.HandleGatewayCallback(context.Background(), *attempt.GatewayRef, model.GatewayOutcomeFailed)
	if !errors.Is(err, domainErrors.ErrAlreadyTerminal) {
		t.Fatalf("expected already terminal, got %v", err)
	}

	stored, err := fx.repos.PaymentRepo.GetByGatewayRef(context.Background(), *attempt.GatewayRef)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if stored.Status != model.PaymentStatusSucceeded {
		t.Fatalf("expected recorded outcome untouched, got %s", stored.Status)
	}
}

func TestSettlementUnknownReference(t *testing.T) {
	fx := newFacadeFixture("table-1")
	err := fx.facade.HandleGatewayCallback(context.Background(), "ref-unknown", model.GatewayOutcomeSucceeded)
	if !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFailedCaptureReopensSessionWithFreshKey(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 1}}); err != nil {
		t.Fatalf("submit order: %v", err)
	}

	attempt := fx.mustCheckout(t, session.ID)
	settle(t, fx, attempt, model.GatewayOutcomeFailed)

	reopened, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if reopened.Status != model.SessionStatusOpen {
		t.Fatalf("expected session reopened, got %s", reopened.Status)
	}
	if _, held := fx.repos.TableRepo.Holder("table-1"); !held {
		t.Fatal("expected table still occupied after failed capture")
	}

	// Orders stay pending, more can be added, and the retry derives a
	// distinct idempotency key.
	listed, err := fx.facade.SessionOrders(context.Background(), session.ID)
	if err != nil || listed[0].Status != model.OrderStatusPending {
		t.Fatalf("expected pending order, got %v err=%v", listed, err)
	}
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-2", Quantity: 1}}); err != nil {
		t.Fatalf("resubmit order: %v", err)
	}

	second := fx.mustCheckout(t, session.ID)
	keys := fx.gateway.DispatchedKeys()
	if len(keys) != 2 || keys[0] == keys[1] {
		t.Fatalf("expected two distinct idempotency keys, got %v", keys)
	}
	settle(t, fx, second, model.GatewayOutcomeSucceeded)

	count, err := fx.repos.PaymentRepo.CountByStatus(context.Background(), session.ID, model.PaymentStatusSucceeded)
	if err != nil || count != 1 {
		t.Fatalf("expected exactly one succeeded attempt, got %d err=%v", count, err)
	}
}

func TestAbandonSessionFreesTableKeepsOrders(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 3}}); err != nil {
		t.Fatalf("submit order: %v", err)
	}

	if err := fx.facade.AbandonSession(context.Background(), session.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	abandoned, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if abandoned.Status != model.SessionStatusAbandoned {
		t.Fatalf("expected abandoned, got %s", abandoned.Status)
	}
	if _, held := fx.repos.TableRepo.Holder("table-1"); held {
		t.Fatal("expected table freed")
	}

	// Audit trail survives abandonment.
	listed, err := fx.facade.SessionOrders(context.Background(), session.ID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected retained orders, got %v err=%v", listed, err)
	}
}

func TestAbandonSessionRetryFreesTableAfterFailedRelease(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")

	tables := fx.repos.TableRepo
	tables.ReleaseFn = func(ctx context.Context, tableID, sessionID string) error {
		tables.ReleaseFn = nil
		return errors.New("storage unavailable")
	}

	if err := fx.facade.AbandonSession(context.Background(), session.ID); err == nil {
		t.Fatal("expected first abandon to fail on release")
	}
	abandoned, err := fx.repos.SessionRepo.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if abandoned.Status != model.SessionStatusAbandoned {
		t.Fatalf("expected abandoned session, got %s", abandoned.Status)
	}
	if _, held := tables.Holder("table-1"); !held {
		t.Fatal("expected table still occupied after the failed release")
	}

	if err := fx.facade.AbandonSession(context.Background(), session.ID); err != nil {
		t.Fatalf("retry abandon: %v", err)
	}
	if _, held := tables.Holder("table-1"); held {
		t.Fatal("expected retry to free the table")
	}

	// A later retry after the table moved on leaves the new session
	// alone.
	next := fx.mustStart(t, "table-1")
	if err := fx.facade.AbandonSession(context.Background(), session.ID); err != nil {
		t.Fatalf("abandon after reacquire: %v", err)
	}
	if holder, ok := tables.Holder("table-1"); !ok || holder != next.ID {
		t.Fatalf("expected table held by %s, got %q", next.ID, holder)
	}
}

func TestAbandonSessionAwaitingPaymentRejected(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	fx.mustOrder(t, session.ID)
	fx.mustCheckout(t, session.ID)

	if err := fx.facade.AbandonSession(context.Background(), session.ID); !errors.Is(err, domainErrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestExpiredSessionsUsesTTLCutoff(t *testing.T) {
	fx := newFacadeFixture("table-1")
	fx.repos.SessionRepo.Seed(&model.Session{
		ID:        "stale",
		TableID:   "table-1",
		Status:    model.SessionStatusOpen,
		Version:   1,
		CreatedAt: time.Now().Add(-3 * time.Hour),
	})
	fx.repos.SessionRepo.Seed(&model.Session{
		ID:        "fresh",
		TableID:   "table-2",
		Status:    model.SessionStatusOpen,
		Version:   1,
		CreatedAt: time.Now(),
	})

	expired, err := fx.facade.ExpiredSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("expired sessions: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "stale" {
		t.Fatalf("expected only the stale session, got %v", expired)
	}
}

func TestTransitionWithRetryRecoversFromConflict(t *testing.T) {
	fx := newFacadeFixture("table-1")
	session := fx.mustStart(t, "table-1")
	fx.mustOrder(t, session.ID)

	conflicts := 0
	inner := fx.repos.SessionRepo
	original := inner.TransitionFn
	inner.TransitionFn = func(ctx context.Context, sessionID string, expectedVersion int64, newStatus model.SessionStatus) (*model.Session, error) {
		if conflicts < 2 {
			conflicts++
			return nil, domainErrors.ErrVersionConflict
		}
		inner.TransitionFn = original
		return inner.Transition(ctx, sessionID, expectedVersion, newStatus)
	}

	attempt := fx.mustCheckout(t, session.ID)
	if attempt.Status != model.PaymentStatusPendingGateway {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if conflicts != 2 {
		t.Fatalf("expected two injected conflicts, got %d", conflicts)
	}
}

func TestFullLifecycleAcrossTables(t *testing.T) {
	tables := []string{"table-1", "table-2", "table-3"}
	fx := newFacadeFixture(tables...)

	var wg sync.WaitGroup
	for _, tableID := range tables {
		wg.Add(1)
		go func(tableID string) {
			defer wg.Done()
			session, err := fx.facade.StartSession(context.Background(), tableID)
			if err != nil {
				t.Errorf("start on %s: %v", tableID, err)
				return
			}
			for i := 0; i < 3; i++ {
				if _, err := fx.facade.SubmitOrder(context.Background(), session.ID, []model.OrderItemRequest{{DishID: "dish-1", Quantity: 1}}); err != nil {
					t.Errorf("submit on %s: %v", tableID, err)
					return
				}
			}
			attempt, err := fx.facade.Checkout(context.Background(), session.ID)
			if err != nil {
				t.Errorf("checkout on %s: %v", tableID, err)
				return
			}
			if err := fx.facade.HandleGatewayCallback(context.Background(), *attempt.GatewayRef, model.GatewayOutcomeSucceeded); err != nil {
				t.Errorf("settle on %s: %v", tableID, err)
			}
		}(tableID)
	}
	wg.Wait()

	for _, tableID := range tables {
		if _, held := fx.repos.TableRepo.Holder(tableID); held {
			t.Fatalf("expected %s freed", tableID)
		}
	}
	if got := len(fx.events.Closed()); got != len(tables) {
		t.Fatalf("expected %d closed events, got %d", len(tables), got)
	}
	if got := len(fx.events.Confirmed()); got != 3*len(tables) {
		t.Fatalf("expected %d confirmed events, got %d", 3*len(tables), got)
	}
}

func TestIdempotencyKeyStableForSameCheckout(t *testing.T) {
	fx := newFacadeFixture("table-1", "table-2")

	sessionA := fx.mustStart(t, "table-1")
	sessionB := fx.mustStart(t, "table-2")
	for i, id := range []string{sessionA.ID, sessionB.ID} {
		if _, err := fx.facade.SubmitOrder(context.Background(), id, []model.OrderItemRequest{{DishID: fmt.Sprintf("dish-%d", i+1), Quantity: 1}}); err != nil {
			t.Fatalf("submit order: %v", err)
		}
	}
	fx.mustCheckout(t, sessionA.ID)
	fx.mustCheckout(t, sessionB.ID)

	keys := fx.gateway.DispatchedKeys()
	if len(keys) != 2 || keys[0] == keys[1] {
		t.Fatalf("expected distinct keys per session, got %v", keys)
	}
}
