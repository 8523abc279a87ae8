package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	testhelpers "github.com/dinehall/tableside/internal/test"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func awaitingSession() *model.Session {
	return &model.Session{ID: "session-1", TableID: "table-1", Status: model.SessionStatusAwaitingPayment, Version: 2}
}

func TestPaymentUseCaseInitiateDispatchesCapture(t *testing.T) {
	repo := testhelpers.NewPaymentRepositoryStub()
	gateway := &testhelpers.CaptureGatewayStub{}
	uc := NewPaymentUseCase(repo, gateway, discardLogger())

	attempt, err := uc.Initiate(context.Background(), awaitingSession(), 42.5, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempt.Status != model.PaymentStatusPendingGateway {
		t.Fatalf("expected pending_gateway, got %s", attempt.Status)
	}
	if attempt.GatewayRef == nil || *attempt.GatewayRef == "" {
		t.Fatal("expected gateway ref recorded")
	}
	if keys := gateway.DispatchedKeys(); len(keys) != 1 || keys[0] != "key-1" {
		t.Fatalf("expected key dispatched, got %v", keys)
	}
}

func TestPaymentUseCaseInitiateRequiresAwaitingPayment(t *testing.T) {
	uc := NewPaymentUseCase(testhelpers.NewPaymentRepositoryStub(), &testhelpers.CaptureGatewayStub{}, discardLogger())

	open := &model.Session{ID: "session-1", Status: model.SessionStatusOpen, Version: 1}
	if _, err := uc.Initiate(context.Background(), open, 10, "key"); !errors.Is(err, domainErrors.ErrSessionNotAwaitingPayment) {
		t.Fatalf("expected session not awaiting payment, got %v", err)
	}
}

func TestPaymentUseCaseInitiateSecondAttemptConflicts(t *testing.T) {
	repo := testhelpers.NewPaymentRepositoryStub()
	uc := NewPaymentUseCase(repo, &testhelpers.CaptureGatewayStub{}, discardLogger())

	if _, err := uc.Initiate(context.Background(), awaitingSession(), 10, "key-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uc.Initiate(context.Background(), awaitingSession(), 10, "key-2"); !errors.Is(err, domainErrors.ErrAttemptInFlight) {
		t.Fatalf("expected attempt in flight, got %v", err)
	}
}

func TestPaymentUseCaseInitiateSettlesFailedOnDispatchError(t *testing.T) {
	repo := testhelpers.NewPaymentRepositoryStub()
	gateway := &testhelpers.CaptureGatewayStub{Err: errors.New("gateway down")}
	uc := NewPaymentUseCase(repo, gateway, discardLogger())

	if _, err := uc.Initiate(context.Background(), awaitingSession(), 10, "key-1"); err == nil {
		t.Fatal("expected dispatch error")
	}
	if _, err := repo.GetInFlight(context.Background(), "session-1"); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected undispatched attempt settled, got %v", err)
	}
	failed, err := repo.CountByStatus(context.Background(), "session-1", model.PaymentStatusFailed)
	if err != nil || failed != 1 {
		t.Fatalf("expected one failed attempt, got %d err=%v", failed, err)
	}
}

func TestPaymentUseCaseResolveAppliesOutcomeOnce(t *testing.T) {
	repo := testhelpers.NewPaymentRepositoryStub()
	uc := NewPaymentUseCase(repo, &testhelpers.CaptureGatewayStub{}, discardLogger())

	attempt, err := uc.Initiate(context.Background(), awaitingSession(), 10, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settled, changed, err := uc.Resolve(context.Background(), *attempt.GatewayRef, model.GatewayOutcomeSucceeded)
	if err != nil || !changed {
		t.Fatalf("expected applied outcome, changed=%v err=%v", changed, err)
	}
	if settled.Status != model.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", settled.Status)
	}

	_, changed, err = uc.Resolve(context.Background(), *attempt.GatewayRef, model.GatewayOutcomeSucceeded)
	if err != nil || changed {
		t.Fatalf("expected replay no-op, changed=%v err=%v", changed, err)
	}

	_, _, err = uc.Resolve(context.Background(), *attempt.GatewayRef, model.GatewayOutcomeFailed)
	if !errors.Is(err, domainErrors.ErrAlreadyTerminal) {
		t.Fatalf("expected already terminal, got %v", err)
	}
}

func TestPaymentUseCaseResolveUnknownRef(t *testing.T) {
	uc := NewPaymentUseCase(testhelpers.NewPaymentRepositoryStub(), &testhelpers.CaptureGatewayStub{}, discardLogger())
	if _, _, err := uc.Resolve(context.Background(), "ref-unknown", model.GatewayOutcomeSucceeded); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
