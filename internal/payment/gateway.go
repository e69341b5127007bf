package payment

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/config"
	"orderflow/pkg/metrics"
)

// ErrDeclined is a business outcome, not an infrastructure failure: the
// message is still acknowledged and a compensating notification goes out.
var ErrDeclined = errors.New("payment declined")

// Gateway is the external payment processor contract. A real processor can
// replace the simulation behind the same success/failure semantics.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount float64, currency string) (string, error)
}

// SimulatedGateway fakes an external processor: randomized latency, a
// configurable random decline rate, and a deterministic decline when the
// order id carries the failure marker (demo/test hook).
type SimulatedGateway struct {
	failureRate   float64
	failureMarker string
	minLatency    time.Duration
	maxLatency    time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedGateway(cfg config.PaymentConfig) *SimulatedGateway {
	return &SimulatedGateway{
		failureRate:   cfg.FailureRate,
		failureMarker: cfg.FailureMarker,
		minLatency:    cfg.MinLatency,
		maxLatency:    cfg.MaxLatency,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, orderID string, amount float64, currency string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.ObservePaymentGatewayDuration(time.Since(start))
	}()

	if err := g.sleep(ctx); err != nil {
		return "", err
	}

	if g.failureMarker != "" && strings.Contains(orderID, g.failureMarker) {
		return "", ErrDeclined
	}
	if g.roll() < g.failureRate {
		return "", ErrDeclined
	}

	return "TXN-" + uuid.NewString(), nil
}

func (g *SimulatedGateway) sleep(ctx context.Context) error {
	latency := g.minLatency
	if span := g.maxLatency - g.minLatency; span > 0 {
		g.mu.Lock()
		latency += time.Duration(g.rng.Int63n(int64(span)))
		g.mu.Unlock()
	}
	if latency <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(latency):
		return nil
	}
}

func (g *SimulatedGateway) roll() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}
