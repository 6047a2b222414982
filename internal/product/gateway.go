package product

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fjod/coffee_saga/internal/metrics"
	"github.com/fjod/coffee_saga/pkg/circuitbreaker"
)

type GatewayConfig struct {
	Timeout          time.Duration
	MaxRetries       uint
	RetryInterval    time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Gateway wraps the remote client in timeout, retry and circuit breaker policies.
// When the remote side is degraded it answers with the fallback client's placeholder.
type Gateway struct {
	remote   Client
	fallback Client
	breaker  *circuitbreaker.Breaker[Result]
	cfg      GatewayConfig
	log      *slog.Logger
}

func NewGateway(remote Client, cfg GatewayConfig, log *slog.Logger, m *metrics.Domain) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 100 * time.Millisecond
	}

	g := &Gateway{
		remote:   remote,
		fallback: FallbackClient{},
		cfg:      cfg,
		log:      log,
	}
	g.breaker = circuitbreaker.New[Result](circuitbreaker.Settings{
		Name:             "product-service",
		FailureThreshold: cfg.FailureThreshold,
		OpenTimeout:      cfg.OpenTimeout,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrProductNotFound)
		},
		// a caller giving up says nothing about the product service
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			m.BreakerState(name, int(to))
		},
	})
	return g
}

func (g *Gateway) GetProduct(ctx context.Context, id int64) (Result, error) {
	res, err := g.breaker.Execute(func() (Result, error) {
		return g.getWithRetry(ctx, id)
	})
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrProductNotFound) {
		return Result{}, err
	}
	if errors.Is(err, context.Canceled) {
		return Result{}, err
	}

	g.log.WarnContext(ctx, "product lookup degraded, using fallback",
		slog.Int64("product_id", id),
		slog.Bool("breaker_open", circuitbreaker.IsOpen(err)),
		slog.String("error", err.Error()))

	fb, _ := g.fallback.GetProduct(ctx, id)
	return fb, ErrProductUnavailable.Wrap(err)
}

func (g *Gateway) State() circuitbreaker.State {
	return g.breaker.State()
}

func (g *Gateway) getWithRetry(ctx context.Context, id int64) (Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.RetryInterval
	b.MaxInterval = 10 * g.cfg.RetryInterval

	return backoff.Retry(ctx, func() (Result, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		res, err := g.remote.GetProduct(callCtx, id)
		if errors.Is(err, ErrProductNotFound) {
			return Result{}, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(g.cfg.MaxRetries))
}
