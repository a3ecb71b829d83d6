package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"atrx/config"
	"atrx/internal/adapters/intentfile"
	"atrx/internal/adapters/logger"
	"atrx/internal/adapters/sessionclock"
	"atrx/internal/adapters/simterminal"
	"atrx/internal/adapters/sqlite"
	"atrx/internal/app"
	"atrx/internal/domain"
	"atrx/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load risk policy: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel, "decision")
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Stores (shared SQLite file)
	store, err := sqlite.NewStore(sqlite.StoreConfig{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize state store")
		log.Fatalf("FATAL: Failed to initialize state store: %v", err) // Also log to stderr
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing state store")
		}
	}()

	queue, err := sqlite.NewQueue(sqlite.QueueConfig{
		DBPath:   cfg.DBPath,
		Logger:   appLogger,
		LeaseTTL: policy.LeaseTTLDuration(),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order queue")
		log.Fatalf("FATAL: Failed to initialize order queue: %v", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing order queue")
		}
	}()
	appLogger.Info(context.Background(), "Stores initialized", map[string]interface{}{"dbPath": cfg.DBPath})

	// 4. Initialize Market Inputs
	terminal, err := simterminal.New(simterminal.Config{
		Marks:    defaultMarks(),
		Slippage: 0.0001,
		Logger:   appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize terminal")
		log.Fatalf("FATAL: Failed to initialize terminal: %v", err)
	}

	intents, err := intentfile.New(cfg.IntentFile, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load intent source")
		log.Fatalf("FATAL: Failed to load intent source: %v", err)
	}

	session, err := sessionclock.New(cfg.SessionTimezone)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize session clock")
		log.Fatalf("FATAL: Failed to initialize session clock: %v", err)
	}

	// 5. Initialize Risk Components
	initialBreaker := breakerStateFromStore(store, appLogger)
	breaker := risk.NewCircuitBreaker(policy, appLogger, initialBreaker)
	exposure := risk.NewExposureTracker(policy)
	budget := risk.NewBudgetEngine(policy, breaker, exposure)
	banking := risk.NewBankingController(policy)

	// 6. Initialize Application Service
	reconciler := app.NewReconciler(policy, appLogger, queue, store, store, store, terminal, breaker)
	service, err := app.NewService(
		cfg, policy, appLogger,
		queue, store, store,
		intents, terminal, session,
		breaker, budget, banking, exposure, reconciler,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize decision service")
		log.Fatalf("FATAL: Failed to initialize decision service: %v", err)
	}
	appLogger.Info(context.Background(), "Decision service initialized")

	// 7. Start the Service
	if err := service.Run(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Decision service exited with error")
		log.Fatalf("FATAL: Decision service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// breakerStateFromStore rehydrates the persisted halt state so a restart
// cannot silently re-arm a halted account.
func breakerStateFromStore(store *sqlite.Store, appLogger *logger.StdLogger) domain.BreakerState {
	account, err := store.LoadAccount(context.Background())
	if err != nil {
		appLogger.Warn(context.Background(), "Could not load persisted account, breaker starts ACTIVE", map[string]interface{}{"error": err.Error()})
		return domain.BreakerActive
	}
	if account == nil {
		return domain.BreakerActive
	}
	return account.Breaker
}

// defaultMarks seeds the simulated venue with plausible prices for the
// built-in symbol table.
func defaultMarks() map[string]float64 {
	return map[string]float64{
		"EURUSD": 1.0850, "GBPUSD": 1.2700, "AUDUSD": 0.6550, "NZDUSD": 0.6100,
		"USDCAD": 1.3600, "USDCHF": 0.8800, "USDJPY": 149.50,
		"EURGBP": 0.8550, "EURJPY": 162.20, "GBPJPY": 189.90,
		"AUDJPY": 97.90, "NZDJPY": 91.20,
		"XAUUSD": 2350.0, "BTCUSD": 64000.0, "ETHUSD": 3400.0,
	}
}
