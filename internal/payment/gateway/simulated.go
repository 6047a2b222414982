package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/fjod/coffee_saga/internal/payment/domain"
)

// Outcome is the gateway verdict for one charge attempt.
type Outcome struct {
	Success       bool
	TransactionID string
	Response      string
	FailureReason string
}

type Gateway interface {
	Charge(ctx context.Context, p *domain.Payment) (Outcome, error)
}

// Roller yields a number in [0, 1).
type Roller interface {
	Roll() float64
}

type RandomRoll struct{}

func (RandomRoll) Roll() float64 {
	return rand.Float64()
}

// SimulatedGateway settles payments with the per-method success rate instead of
// talking to a real processor.
type SimulatedGateway struct {
	roller Roller
}

func NewSimulatedGateway(r Roller) *SimulatedGateway {
	return &SimulatedGateway{roller: r}
}

func (g *SimulatedGateway) Charge(ctx context.Context, p *domain.Payment) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if !p.Method.IsValid() {
		return Outcome{}, fmt.Errorf("no settlement model for method %q", p.Method)
	}
	return calcOutcome(g.roller.Roll(), p.Method.SuccessRate()), nil
}

func calcOutcome(roll, rate float64) Outcome {
	if roll < rate {
		return Outcome{
			Success:       true,
			TransactionID: domain.NewTransactionID(),
			Response:      "Payment successful",
		}
	}
	return Outcome{FailureReason: "Payment processing failed"}
}
