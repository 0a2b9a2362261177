package settlement

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/settler-api/internal/types"
	"github.com/rs/zerolog/log"
)

// PaymentExecutor attempts the payment for one record and returns an opaque
// transaction reference. Real implementations talk to a chain, a gateway or
// the platform ledger; the ones registered by default are simulations.
type PaymentExecutor interface {
	Execute(ctx context.Context, record *Record) (*PaymentResult, error)
}

// Dispatcher selects the executor for a record's payment method. It carries
// no business logic of its own; failures propagate as ordinary step failures.
type Dispatcher struct {
	executors map[string]PaymentExecutor
}

// NewDispatcher returns a dispatcher with a simulated executor registered for
// every supported payment method.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{executors: make(map[string]PaymentExecutor)}

	for _, v := range []*simulatedExecutor{
		{method: types.MethodSmartContract, refPrefix: "SC", minLatency: 20, maxLatency: 80, successRate: 0.95, onChain: true},
		{method: types.MethodEscrow, refPrefix: "ESC", minLatency: 10, maxLatency: 40, successRate: 0.97},
		{method: types.MethodOnChainCrypto, refPrefix: "CHAIN", minLatency: 30, maxLatency: 120, successRate: 0.92, onChain: true},
		{method: types.MethodPlatformBalance, refPrefix: "BAL", minLatency: 1, maxLatency: 5, successRate: 0.99},
		{method: types.MethodBankTransfer, refPrefix: "BANK", minLatency: 15, maxLatency: 60, successRate: 0.96},
		{method: types.MethodWalletCredit, refPrefix: "WAL", minLatency: 1, maxLatency: 5, successRate: 0.99},
		{method: types.MethodPlatformCredit, refPrefix: "CRED", minLatency: 1, maxLatency: 5, successRate: 0.99},
	} {
		d.executors[v.method] = v
	}

	return d
}

// Register installs an executor for a payment method, replacing any existing
// one. Tests use this to substitute deterministic executors.
func (d *Dispatcher) Register(method string, executor PaymentExecutor) {
	d.executors[method] = executor
}

// Dispatch runs the executor for the record's payment method. Unsupported
// methods are normally rejected at validation; hitting one here means the
// dispatcher was misconfigured.
func (d *Dispatcher) Dispatch(ctx context.Context, record *Record) (*PaymentResult, error) {
	executor, ok := d.executors[record.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("no executor registered for payment method %s", record.PaymentMethod)
	}
	return executor.Execute(ctx, record)
}

// simulatedExecutor stands in for a real payment rail. It sleeps for a random
// latency within its window and fails a small fraction of attempts.
type simulatedExecutor struct {
	method      string
	refPrefix   string
	minLatency  int // milliseconds
	maxLatency  int
	successRate float64
	onChain     bool
}

func (e *simulatedExecutor) Execute(ctx context.Context, record *Record) (*PaymentResult, error) {
	logger := log.With().
		Str("payment_method", e.method).
		Str("record_id", record.RecordID).
		Float64("net_amount", record.NetAmount).
		Logger()

	logger.Info().Msg("attempting payment")

	latency := rand.Intn(e.maxLatency-e.minLatency+1) + e.minLatency
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(latency) * time.Millisecond):
	}

	if rand.Float64() > e.successRate {
		logger.Warn().
			Float64("success_rate", e.successRate).
			Msg("payment attempt failed")
		return nil, fmt.Errorf("payment failed via %s", e.method)
	}

	result := &PaymentResult{
		Reference: fmt.Sprintf("TXN_%s_%s", e.refPrefix, uuid.New().String()),
	}
	if e.onChain {
		block := rand.Int63n(1_000_000) + 18_000_000
		result.BlockNumber = &block
	}

	logger.Info().
		Str("reference", result.Reference).
		Int("latency_ms", latency).
		Msg("payment executed")

	return result, nil
}
