package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"atrx/internal/domain"
	"atrx/internal/ports"
)

// Agent is the execution consumer. It claims orders from the durable
// queue under a lease, forwards them to the execution terminal, and
// reports the terminal outcome back to the queue. The agent never makes
// risk decisions and never touches account state; every order it sees
// was already approved by the decision process.
type Agent struct {
	id           string
	logger       ports.Logger
	queue        ports.OrderQueue
	terminal     ports.ExecutionTerminal
	pollInterval time.Duration
}

// NewAgent creates an execution agent with a fresh consumer identity.
// The identity scopes lease ownership: a completion from a consumer
// that lost its lease is rejected by the queue.
func NewAgent(logger ports.Logger, queue ports.OrderQueue, terminal ports.ExecutionTerminal, pollInterval time.Duration) (*Agent, error) {
	if logger == nil || queue == nil || terminal == nil {
		return nil, fmt.Errorf("missing required dependencies for Agent")
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Agent{
		id:           "agent-" + uuid.NewString(),
		logger:       logger,
		queue:        queue,
		terminal:     terminal,
		pollInterval: pollInterval,
	}, nil
}

// ID returns the consumer identity this agent claims leases under.
func (a *Agent) ID() string {
	return a.id
}

// Run claims and executes orders until the context is cancelled or a
// shutdown signal arrives. A crash between claim and completion is
// recovered by the producer-side lease sweep, so the loop never tries
// to be clever about partial progress.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info(ctx, "Starting execution agent", map[string]interface{}{"consumerID": a.id})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		a.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info(ctx, "Execution agent stopped.")
			return nil
		default:
		}

		order, err := a.queue.Claim(ctx, a.id)
		if err != nil {
			if errors.Is(err, ports.ErrQueueEmpty) {
				select {
				case <-ctx.Done():
				case <-time.After(a.pollInterval):
				}
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			a.logger.Error(ctx, err, "Claim failed")
			select {
			case <-ctx.Done():
			case <-time.After(a.pollInterval):
			}
			continue
		}

		a.Execute(ctx, order)
	}
}

// Execute runs a single claimed order against the terminal and reports
// the outcome. Completion rejected for a lost lease is logged and
// dropped: the order was reclaimed and belongs to someone else now.
func (a *Agent) Execute(ctx context.Context, order *domain.Order) {
	a.logger.Info(ctx, "Executing order", map[string]interface{}{
		"orderID": order.ID, "symbol": order.Symbol, "side": string(order.Side), "size": order.Size,
	})

	result, execErr := a.terminal.Execute(ctx, order)

	var state domain.OrderState
	if execErr != nil {
		state = domain.OrderFailed
		if result.Reason == "" {
			result.Reason = domain.FailReasonTerminalRejected
		}
		a.logger.Warn(ctx, "Terminal rejected order", map[string]interface{}{
			"orderID": order.ID, "reason": result.Reason, "error": execErr.Error(),
		})
	} else {
		state = domain.OrderDone
	}

	if err := a.queue.Complete(ctx, order.ID, a.id, state, result); err != nil {
		if errors.Is(err, ports.ErrLeaseLost) {
			a.logger.Warn(ctx, "Lease lost before completion, outcome discarded", map[string]interface{}{
				"orderID": order.ID,
			})
			return
		}
		a.logger.Error(ctx, err, "Failed to complete order", map[string]interface{}{
			"orderID": order.ID, "state": string(state),
		})
		return
	}

	a.logger.Info(ctx, "Order completed", map[string]interface{}{
		"orderID": order.ID, "state": string(state),
	})
}
