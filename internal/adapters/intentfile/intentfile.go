// Package intentfile provides a YAML-backed trade intent source. It
// replays batches of intents from a file, one batch per decision cycle,
// which makes dry runs and scenario drills reproducible without wiring
// a live signal feed.
package intentfile

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"atrx/internal/domain"
	"atrx/internal/ports"
)

// fileIntent is the YAML shape of a single intent.
type fileIntent struct {
	Symbol       string            `yaml:"symbol"`
	Side         string            `yaml:"side"`
	RiskPct      float64           `yaml:"riskPct"`
	StopDistance float64           `yaml:"stopDistance"`
	Meta         map[string]string `yaml:"meta"`
}

// replayFile is the YAML shape of the whole file: an ordered list of
// batches, each consumed by one cycle.
type replayFile struct {
	Batches [][]fileIntent `yaml:"batches"`
}

// Source replays intent batches from a YAML file. Safe for concurrent
// use, though the decision process calls it from a single goroutine.
type Source struct {
	mu      sync.Mutex
	batches [][]*domain.TradeIntent
	next    int
	logger  ports.Logger
}

// New loads the replay file. An empty path yields a source that never
// emits intents, which lets the pipeline run purely as a reconciler.
func New(path string, logger ports.Logger) (*Source, error) {
	if logger == nil {
		return nil, fmt.Errorf("intentfile requires a logger")
	}
	s := &Source{logger: logger}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent file %s: %w", path, err)
	}
	var rf replayFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse intent file %s: %w", path, err)
	}

	for bi, batch := range rf.Batches {
		converted := make([]*domain.TradeIntent, 0, len(batch))
		for ii, fi := range batch {
			intent, err := fi.toDomain()
			if err != nil {
				return nil, fmt.Errorf("intent file %s batch %d entry %d: %w", path, bi, ii, err)
			}
			converted = append(converted, intent)
		}
		s.batches = append(s.batches, converted)
	}
	return s, nil
}

func (fi fileIntent) toDomain() (*domain.TradeIntent, error) {
	var side domain.OrderSide
	switch fi.Side {
	case "BUY", "buy":
		side = domain.Buy
	case "SELL", "sell":
		side = domain.Sell
	default:
		return nil, fmt.Errorf("invalid side %q", fi.Side)
	}
	if fi.Symbol == "" {
		return nil, fmt.Errorf("missing symbol")
	}
	return &domain.TradeIntent{
		Symbol:           fi.Symbol,
		Side:             side,
		RequestedRiskPct: fi.RiskPct,
		StopDistance:     fi.StopDistance,
		Meta:             fi.Meta,
	}, nil
}

// NextIntents returns the next unconsumed batch, or an empty slice once
// the file is exhausted.
func (s *Source) NextIntents(ctx context.Context) ([]*domain.TradeIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.batches) {
		return nil, nil
	}
	batch := s.batches[s.next]
	s.next++
	s.logger.Debug(ctx, "Replaying intent batch", map[string]interface{}{
		"batch": s.next, "intents": len(batch),
	})
	return batch, nil
}
