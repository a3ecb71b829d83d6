package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpillora/backoff"

	"atrx/config"
	"atrx/internal/domain"
	"atrx/internal/ident"
	"atrx/internal/ports"
	"atrx/internal/risk"
)

// Service runs the decision process: a fixed-interval cycle that refreshes
// account truth, reconciles fills, sizes new intents under the risk
// policy, banks profit past the daily target, and hands approved orders
// to the execution agent through the durable queue. The cycle is
// cooperative and single-threaded: no step blocks indefinitely, queue
// polls are bounded by timeouts, and unresolved orders simply carry over
// to the next cycle.
type Service struct {
	cfg        *config.Config
	policy     *config.Policy
	logger     ports.Logger
	queue      ports.OrderQueue
	accounts   ports.AccountRepository
	positions  ports.PositionRepository
	intents    ports.IntentSource
	marks      ports.MarkSource
	session    ports.SessionClock
	breaker    *risk.CircuitBreaker
	budget     *risk.BudgetEngine
	banking    *risk.BankingController
	exposure   *risk.ExposureTracker
	reconciler *Reconciler
}

// NewService creates the decision-process service.
func NewService(
	cfg *config.Config,
	policy *config.Policy,
	logger ports.Logger,
	queue ports.OrderQueue,
	accounts ports.AccountRepository,
	positions ports.PositionRepository,
	intents ports.IntentSource,
	marks ports.MarkSource,
	session ports.SessionClock,
	breaker *risk.CircuitBreaker,
	budget *risk.BudgetEngine,
	banking *risk.BankingController,
	exposure *risk.ExposureTracker,
	reconciler *Reconciler,
) (*Service, error) {
	if cfg == nil || policy == nil || logger == nil || queue == nil || accounts == nil ||
		positions == nil || intents == nil || marks == nil || session == nil ||
		breaker == nil || budget == nil || banking == nil || exposure == nil || reconciler == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	return &Service{
		cfg:        cfg,
		policy:     policy,
		logger:     logger,
		queue:      queue,
		accounts:   accounts,
		positions:  positions,
		intents:    intents,
		marks:      marks,
		session:    session,
		breaker:    breaker,
		budget:     budget,
		banking:    banking,
		exposure:   exposure,
		reconciler: reconciler,
	}, nil
}

// Run starts the decision loop and blocks until the context is cancelled
// or a shutdown signal arrives. A failed cycle is logged and the loop
// continues: cycle errors are cycle-local by design.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting decision service", map[string]interface{}{
		"cycleInterval": s.cfg.CycleInterval.String(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := s.RunCycle(ctx); err != nil {
		s.logger.Error(ctx, err, "Initial cycle failed")
	}

	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Decision service stopped.")
			return nil
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.Error(ctx, err, "Cycle failed")
			}
		}
	}
}

// RunCycle executes one decision cycle.
func (s *Service) RunCycle(ctx context.Context) error {
	op := "cycle"

	account, err := s.loadOrBootstrapAccount(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// 1. Session boundary: roll the day and clear a daily halt.
	if s.session.IsSessionBoundaryReached(account.UpdatedAt) {
		account.RollDay(s.session.Now().UTC())
		s.breaker.OnSessionBoundary(ctx)
		account.Breaker = s.breaker.State()
		if err := s.accounts.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("%s: day roll: %w", op, err)
		}
		s.logger.Info(ctx, op+": Session boundary rolled", map[string]interface{}{
			"dayStartEquity": account.DayStartEquity,
		})
	}

	// 2. Recover consumer failures, then apply outcomes.
	if _, _, err := s.queue.SweepExpiredLeases(ctx, s.policy.MaxReclaims); err != nil {
		return fmt.Errorf("%s: sweep: %w", op, err)
	}
	if n, err := s.reconciler.Drain(ctx); err != nil {
		return fmt.Errorf("%s: drain: %w", op, err)
	} else if n > 0 {
		s.logger.Info(ctx, op+": Reconciled terminal orders", map[string]interface{}{"count": n})
		// Reload: the reconciler is the writer of account state.
		if account, err = s.accounts.LoadAccount(ctx); err != nil {
			return fmt.Errorf("%s: reload account: %w", op, err)
		}
	}

	// 3. Refresh equity from marks and evaluate the breaker.
	openPositions, err := s.positions.FindOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("%s: open positions: %w", op, err)
	}
	unrealized := s.unrealizedBySymbolMarks(ctx, openPositions)
	s.refreshEquity(account, openPositions, unrealized)
	account.Breaker = s.breaker.Refresh(ctx, account)
	account.UpdatedAt = time.Now().UTC()
	if err := s.accounts.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("%s: save account: %w", op, err)
	}

	// 4. Profit banking before any new sizing.
	if err := s.runBanking(ctx, account, openPositions, unrealized); err != nil {
		return fmt.Errorf("%s: banking: %w", op, err)
	}

	// 5. Size and enqueue new intents. The open-position snapshot does
	// not move inside the loop, so a per-cycle slot count derived from
	// the available risk budget caps how many intents can be enqueued.
	intents, err := s.intents.NextIntents(ctx)
	if err != nil {
		return fmt.Errorf("%s: intents: %w", op, err)
	}
	slots := s.budget.MaxNewPositions(account.Phase, openPositions)
	for _, intent := range intents {
		if slots <= 0 {
			s.logger.Warn(ctx, "Intent rejected", map[string]interface{}{
				"symbol": intent.Symbol, "reason": string(domain.RejectRiskBudget),
				"detail": "no open-risk capacity left this cycle",
			})
			continue
		}
		enqueued, err := s.handleIntent(ctx, intent, account, openPositions)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if enqueued {
			slots--
		}
	}
	return nil
}

func (s *Service) loadOrBootstrapAccount(ctx context.Context) (*domain.AccountState, error) {
	account, err := s.accounts.LoadAccount(ctx)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	account = &domain.AccountState{
		Phase:          domain.Phase(s.cfg.Phase),
		InitialBalance: s.cfg.InitialBalance,
		Balance:        s.cfg.InitialBalance,
		Equity:         s.cfg.InitialBalance,
		PeakEquity:     s.cfg.InitialBalance,
		DayStartEquity: s.cfg.InitialBalance,
		Breaker:        domain.BreakerActive,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.accounts.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Bootstrapped account state", map[string]interface{}{
		"phase": account.Phase, "balance": account.Balance,
	})
	return account, nil
}

// unrealizedBySymbolMarks returns mark-to-market PnL per position id.
// A symbol without a mark contributes zero rather than failing the cycle.
func (s *Service) unrealizedBySymbolMarks(ctx context.Context, openPositions []*domain.Position) map[int64]float64 {
	unrealized := make(map[int64]float64, len(openPositions))
	for _, pos := range openPositions {
		mark, err := s.marks.MarkPrice(ctx, pos.Symbol)
		if err != nil {
			s.logger.Warn(ctx, "No mark price for open position", map[string]interface{}{
				"symbol": pos.Symbol, "positionID": pos.ID,
			})
			continue
		}
		pointValue := 1.0
		if spec, ok := s.policy.Symbol(pos.Symbol); ok {
			pointValue = spec.PointValue
		}
		unrealized[pos.ID] = pos.UnrealizedPnL(mark, pointValue)
	}
	return unrealized
}

func (s *Service) refreshEquity(account *domain.AccountState, openPositions []*domain.Position, unrealized map[int64]float64) {
	total := 0.0
	for _, pos := range openPositions {
		total += unrealized[pos.ID]
	}
	account.Equity = account.Balance + total
	if account.Equity > account.PeakEquity {
		account.PeakEquity = account.Equity
	}
}

func (s *Service) runBanking(ctx context.Context, account *domain.AccountState, openPositions []*domain.Position, unrealized map[int64]float64) error {
	// A position with an unresolved close order is spoken for: planning
	// over it again would submit a second close that the terminal also
	// executes, flipping the position. Such positions are invisible to
	// the plan until the earlier close resolves.
	closing, err := s.queue.UnresolvedCloses(ctx)
	if err != nil {
		return err
	}
	if len(closing) > 0 {
		pending := make(map[int64]struct{}, len(closing))
		for _, id := range closing {
			pending[id] = struct{}{}
		}
		bankable := make([]*domain.Position, 0, len(openPositions))
		for _, pos := range openPositions {
			if _, ok := pending[pos.ID]; !ok {
				bankable = append(bankable, pos)
			}
		}
		openPositions = bankable
	}

	plan := s.banking.Plan(account, openPositions, unrealized, s.session.Now())
	if !plan.Triggered {
		return nil
	}

	s.logger.Info(ctx, "Daily profit target reached, banking", map[string]interface{}{
		"closures": len(plan.Closures), "projected": plan.Banked, "partial": plan.Partial,
	})
	for _, pos := range plan.Closures {
		order := &domain.Order{
			ID:              ident.NewOrderID(),
			Symbol:          pos.Symbol,
			Side:            pos.Side.Opposite(),
			Size:            pos.Size,
			SubmittedAt:     time.Now().UTC(),
			ClosePositionID: pos.ID,
			TraceExposure:   "banking close",
		}
		if err := s.submitWithRetry(ctx, order); err != nil {
			return err
		}
	}

	if account.PostTargetMultiplier != plan.Multiplier {
		account.PostTargetMultiplier = plan.Multiplier
		if err := s.accounts.SaveAccount(ctx, account); err != nil {
			return err
		}
	}
	return nil
}

// handleIntent sizes one intent and, when approved, enqueues the order.
// The bool reports whether an order was enqueued.
func (s *Service) handleIntent(ctx context.Context, intent *domain.TradeIntent, account *domain.AccountState, openPositions []*domain.Position) (bool, error) {
	decision := s.budget.ComputeSize(intent, account, openPositions)
	if !decision.Approved {
		// Policy rejections are recoverable and cycle-local; surface them
		// to the operator channel and move on.
		s.logger.Warn(ctx, "Intent rejected", map[string]interface{}{
			"symbol": intent.Symbol, "reason": string(decision.Reason), "detail": decision.Detail,
		})
		return false, nil
	}

	report := s.exposure.Evaluate(intent, openPositions)
	order := &domain.Order{
		ID:            ident.NewOrderID(),
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Size:          decision.Size,
		StopPrice:     intent.StopDistance,
		SubmittedAt:   time.Now().UTC(),
		TraceRiskPct:  decision.RiskPct,
		TraceTierMult: decision.TierMult,
		TraceExposure: exposureSummary(report),
	}
	if err := s.submitWithRetry(ctx, order); err != nil {
		return false, err
	}
	s.logger.Info(ctx, "Order enqueued", map[string]interface{}{
		"orderID": order.ID, "symbol": order.Symbol, "size": order.Size, "riskPct": decision.RiskPct,
	})

	// Bounded wait for the agent; an unresolved order carries over.
	resolved, err := s.queue.PollTerminal(ctx, order.ID, s.cfg.PollTimeout)
	if err != nil {
		if errors.Is(err, ports.ErrIndeterminate) {
			// Never resubmit blindly: resubmission risks duplicate
			// execution. Escalate and let the next cycle reconcile.
			s.logger.Error(ctx, err, "Order outcome indeterminate, escalating", map[string]interface{}{
				"orderID": order.ID,
			})
			return true, nil
		}
		return true, err
	}
	s.logger.Info(ctx, "Order resolved", map[string]interface{}{
		"orderID": order.ID, "state": string(resolved.State),
	})
	return true, nil
}

// submitWithRetry persists the order with bounded exponential backoff.
// A risk-approved order must never be silently dropped: exhausting the
// attempts is fatal for the cycle.
func (s *Service) submitWithRetry(ctx context.Context, order *domain.Order) error {
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 0; attempt < s.policy.SubmitAttempts; attempt++ {
		lastErr = s.queue.Submit(ctx, order)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ports.ErrDuplicateOrder) {
			// Persisted by an earlier attempt whose acknowledgement was lost.
			return nil
		}
		s.logger.Warn(ctx, "Queue submit failed, retrying", map[string]interface{}{
			"orderID": order.ID, "attempt": attempt + 1,
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return fmt.Errorf("order %s dropped after %d submit attempts: %w", order.ID, s.policy.SubmitAttempts, lastErr)
}

func exposureSummary(report domain.ExposureReport) string {
	if report.OK() {
		return "ok"
	}
	return report.Violations[0].Detail
}
