package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fjod/coffee_saga/internal/metrics"
	"github.com/fjod/coffee_saga/internal/payment/domain"
	"github.com/fjod/coffee_saga/internal/payment/gateway"
	"github.com/fjod/coffee_saga/internal/payment/repository"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

var tracer = otel.Tracer("github.com/fjod/coffee_saga/internal/payment/service")

// errSuperseded marks a settlement that lost the race against a callback.
var errSuperseded = errors.New("payment already reconciled")

type CreatePaymentRequest struct {
	OrderID        string
	CustomerID     string
	Method         domain.Method
	Amount         decimal.Decimal
	Currency       string
	PaymentDetails string
}

type PaymentService struct {
	repo    repository.PaymentRepository
	gateway gateway.Gateway
	log     *slog.Logger
	metrics *metrics.Domain
	now     func() time.Time
}

func NewPaymentService(repo repository.PaymentRepository, gw gateway.Gateway, log *slog.Logger, m *metrics.Domain) *PaymentService {
	return &PaymentService{
		repo:    repo,
		gateway: gw,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	p, err := domain.NewPayment(req.OrderID, req.CustomerID, req.Method, req.Amount, req.Currency, s.now().UTC())
	if err != nil {
		return nil, err
	}
	p.PaymentDetails = req.PaymentDetails

	existing, err := s.repo.ListPaymentsByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.Status == domain.PaymentStatusCompleted {
			return nil, domain.ErrOrderAlreadyPaid.WithMessage(fmt.Sprintf("order %s is already paid by %s", req.OrderID, e.PaymentID))
		}
	}

	if err := s.repo.CreatePayment(ctx, p); err != nil {
		if !errors.Is(err, repository.ErrDuplicatePaymentID) {
			return nil, err
		}
		p.PaymentID = domain.NewPaymentID()
		if err := s.repo.CreatePayment(ctx, p); err != nil {
			return nil, err
		}
	}
	s.log.InfoContext(ctx, "payment created",
		slog.String("payment_id", p.PaymentID),
		slog.String("order_id", p.OrderID),
		slog.String("method", string(p.Method)))
	return p, nil
}

// ProcessPayment settles a PENDING payment in two steps: the payment is claimed
// as PROCESSING, the gateway is called outside the row lock, and the verdict is
// written only if no callback reconciled the payment in between.
func (s *PaymentService) ProcessPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.ProcessPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment_id", paymentID))

	claimed, err := s.repo.UpdatePayment(ctx, paymentID, func(p *domain.Payment) error {
		return p.StartProcessing(s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	outcome, chargeErr := s.gateway.Charge(ctx, claimed)
	if chargeErr != nil {
		outcome = gateway.Outcome{FailureReason: chargeErr.Error()}
		s.log.ErrorContext(ctx, "payment gateway error",
			slog.String("payment_id", paymentID),
			slog.String("error", chargeErr.Error()))
	}

	// the verdict is persisted even if the caller went away
	settleCtx := context.WithoutCancel(ctx)
	settled, err := s.settle(settleCtx, paymentID, outcome)
	if errors.Is(err, domain.ErrOrderAlreadyPaid) {
		s.log.WarnContext(ctx, "order already paid, failing duplicate payment",
			slog.String("payment_id", paymentID),
			slog.String("order_id", claimed.OrderID))
		settled, err = s.settle(settleCtx, paymentID, gateway.Outcome{FailureReason: domain.ErrOrderAlreadyPaid.Message})
	}
	if errors.Is(err, errSuperseded) {
		current, getErr := s.repo.GetPayment(settleCtx, paymentID)
		if getErr != nil {
			return nil, getErr
		}
		s.log.WarnContext(ctx, "settlement dropped, payment reconciled by callback",
			slog.String("payment_id", paymentID),
			slog.Bool("gateway_success", outcome.Success),
			slog.String("status", string(current.Status)))
		return current, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record settlement: %w", err)
	}

	span.SetAttributes(attribute.String("status", string(settled.Status)))
	s.metrics.PaymentSettled(string(settled.Method), string(settled.Status), "settlement")
	if settled.Status == domain.PaymentStatusCompleted {
		s.log.InfoContext(ctx, "payment completed",
			slog.String("payment_id", paymentID),
			slog.String("transaction_id", settled.TransactionID))
	} else {
		s.log.WarnContext(ctx, "payment failed",
			slog.String("payment_id", paymentID),
			slog.String("reason", settled.FailureReason))
	}
	return settled, nil
}

func (s *PaymentService) settle(ctx context.Context, paymentID string, outcome gateway.Outcome) (*domain.Payment, error) {
	return s.repo.UpdatePayment(ctx, paymentID, func(p *domain.Payment) error {
		if p.Status != domain.PaymentStatusProcessing {
			return errSuperseded
		}
		if outcome.Success {
			p.Complete(outcome.TransactionID, outcome.Response, s.now().UTC())
		} else {
			p.Fail(outcome.FailureReason, s.now().UTC())
		}
		return nil
	})
}

// HandleCallback applies a gateway-reported terminal status. Repeating a callback is a no-op.
func (s *PaymentService) HandleCallback(ctx context.Context, cb domain.Callback) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.HandleCallback")
	defer span.End()
	span.SetAttributes(attribute.String("payment_id", cb.PaymentID), attribute.String("status", string(cb.Status)))

	if !cb.Status.IsSettled() {
		return nil, domain.ErrInvalidCallbackStatus
	}

	var changed bool
	p, err := s.repo.UpdatePayment(ctx, cb.PaymentID, func(p *domain.Payment) error {
		var err error
		changed, err = p.ApplyCallback(cb, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.PaymentSettled(string(p.Method), string(p.Status), "callback")
	}
	s.log.InfoContext(ctx, "payment callback processed",
		slog.String("payment_id", cb.PaymentID),
		slog.String("status", string(cb.Status)),
		slog.Bool("changed", changed))
	return p, nil
}

func (s *PaymentService) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*domain.Payment, *domain.Refund, error) {
	p, rf, err := s.repo.RefundPayment(ctx, paymentID, func(p *domain.Payment) (*domain.Refund, error) {
		return p.NewRefund(amount, reason, s.now().UTC())
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.InfoContext(ctx, "payment refunded",
		slog.String("payment_id", paymentID),
		slog.String("refund_id", rf.RefundID),
		slog.String("amount", rf.Amount.StringFixed(2)),
		slog.String("currency", rf.Currency))
	return p, rf, nil
}

func (s *PaymentService) GetRefund(ctx context.Context, paymentID string) (*domain.Refund, error) {
	return s.repo.GetRefund(ctx, paymentID)
}

func (s *PaymentService) CancelPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	p, err := s.repo.UpdatePayment(ctx, paymentID, func(p *domain.Payment) error {
		return p.Cancel(s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "payment cancelled", slog.String("payment_id", paymentID))
	return p, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.repo.GetPayment(ctx, paymentID)
}

func (s *PaymentService) ListPaymentsByOrder(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	return s.repo.ListPaymentsByOrder(ctx, orderID)
}

func (s *PaymentService) ListPaymentsByCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Payment, error) {
	return s.repo.ListPaymentsByCustomer(ctx, customerID, page)
}
