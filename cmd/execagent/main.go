// Command execagent runs the execution consumer as its own process. It
// shares the SQLite queue file with the decision process and nothing
// else: risk state is not visible from here.
package main

import (
	"context"
	"log"
	"time"

	"atrx/config"
	"atrx/internal/adapters/logger"
	"atrx/internal/adapters/simterminal"
	"atrx/internal/adapters/sqlite"
	"atrx/internal/agent"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load risk policy: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel, "agent")
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

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

	terminal, err := simterminal.New(simterminal.Config{
		Marks:    defaultMarks(),
		Slippage: 0.0001,
		Latency:  50 * time.Millisecond,
		Logger:   appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize terminal")
		log.Fatalf("FATAL: Failed to initialize terminal: %v", err)
	}

	a, err := agent.NewAgent(appLogger, queue, terminal, time.Second)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize agent")
		log.Fatalf("FATAL: Failed to initialize agent: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Agent exited with error")
		log.Fatalf("FATAL: Agent exited with error: %v", err)
	}
	appLogger.Info(context.Background(), "Agent finished gracefully.")
}

func defaultMarks() map[string]float64 {
	return map[string]float64{
		"EURUSD": 1.0850, "GBPUSD": 1.2700, "AUDUSD": 0.6550, "NZDUSD": 0.6100,
		"USDCAD": 1.3600, "USDCHF": 0.8800, "USDJPY": 149.50,
		"EURGBP": 0.8550, "EURJPY": 162.20, "GBPJPY": 189.90,
		"AUDJPY": 97.90, "NZDJPY": 91.20,
		"XAUUSD": 2350.0, "BTCUSD": 64000.0, "ETHUSD": 3400.0,
	}
}
