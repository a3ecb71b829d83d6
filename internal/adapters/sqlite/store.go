package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"atrx/internal/domain"
	"atrx/internal/ports"
)

// Store implements ports.AccountRepository, ports.PositionRepository and
// ports.AuditJournal on SQLite. It is the decision process's durable
// truth for account and position state; only the reconciler (and the
// session day-roll) writes through it.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// StoreConfig holds configuration for the state store.
type StoreConfig struct {
	DBPath string
	Logger ports.Logger
}

// NewStore creates the state store and initializes its schema.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	ctx := context.Background()

	db, err := openDB(ctx, cfg.DBPath, cfg.Logger)
	if err != nil {
		cfg.Logger.Error(ctx, err, "SQLite store initialization failed")
		return nil, err
	}

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.initializeSchema(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize store schema: %w", err)
		cfg.Logger.Error(ctx, err, "SQLite store initialization failed")
		return nil, err
	}
	return s, nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		phase TEXT NOT NULL,
		initial_balance REAL NOT NULL,
		balance REAL NOT NULL,
		equity REAL NOT NULL,
		peak_equity REAL NOT NULL,
		day_start_equity REAL NOT NULL,
		daily_pnl REAL NOT NULL,
		breaker TEXT NOT NULL,
		post_target_multiplier REAL NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		size REAL NOT NULL,
		entry_price REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		stop_price REAL NOT NULL,
		risk_pct REAL NOT NULL,
		status TEXT NOT NULL,
		exit_price REAL DEFAULT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		pnl REAL DEFAULT NULL,
		close_reason TEXT DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_journal (
		order_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		size REAL NOT NULL,
		risk_pct REAL NOT NULL,
		tier_mult REAL NOT NULL,
		exposure TEXT NOT NULL,
		outcome TEXT NOT NULL,
		fill_price REAL NOT NULL,
		fill_size REAL NOT NULL,
		fail_reason TEXT NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status, entry_time);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite store connection")
		return s.db.Close()
	}
	return nil
}

// --- AccountRepository Implementation ---

// LoadAccount retrieves the persisted account state, or nil if none exists.
func (s *Store) LoadAccount(ctx context.Context) (*domain.AccountState, error) {
	const query = `
	SELECT phase, initial_balance, balance, equity, peak_equity, day_start_equity,
	       daily_pnl, breaker, post_target_multiplier, updated_at
	FROM account WHERE id = 1`

	a := &domain.AccountState{}
	var phase, breaker string
	err := s.db.QueryRowContext(ctx, query).Scan(
		&phase, &a.InitialBalance, &a.Balance, &a.Equity, &a.PeakEquity,
		&a.DayStartEquity, &a.DailyPnL, &breaker, &a.PostTargetMultiplier, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // first run, no state yet
		}
		return nil, fmt.Errorf("failed to load account state: %w", err)
	}
	a.Phase = domain.Phase(phase)
	a.Breaker = domain.BreakerState(breaker)
	return a, nil
}

// SaveAccount durably replaces the account snapshot.
func (s *Store) SaveAccount(ctx context.Context, account *domain.AccountState) error {
	const query = `
	INSERT INTO account (id, phase, initial_balance, balance, equity, peak_equity,
	                     day_start_equity, daily_pnl, breaker, post_target_multiplier, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		phase = excluded.phase,
		initial_balance = excluded.initial_balance,
		balance = excluded.balance,
		equity = excluded.equity,
		peak_equity = excluded.peak_equity,
		day_start_equity = excluded.day_start_equity,
		daily_pnl = excluded.daily_pnl,
		breaker = excluded.breaker,
		post_target_multiplier = excluded.post_target_multiplier,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		account.Phase, account.InitialBalance, account.Balance, account.Equity,
		account.PeakEquity, account.DayStartEquity, account.DailyPnL,
		account.Breaker, account.PostTargetMultiplier, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account state: %w", err)
	}
	return nil
}

// --- PositionRepository Implementation ---

// CreatePosition saves a new position and returns its assigned ID.
func (s *Store) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (order_id, symbol, side, size, entry_price, entry_time,
	                       stop_price, risk_pct, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		pos.OrderID, pos.Symbol, pos.Side, pos.Size, pos.EntryPrice, pos.EntryTime,
		pos.StopPrice, pos.RiskPct, pos.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for symbol %s: %w", pos.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Symbol, err)
	}
	pos.ID = id
	s.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "symbol": pos.Symbol})
	return id, nil
}

// UpdatePosition modifies an existing position based on its ID.
func (s *Store) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET size = ?, stop_price = ?, status = ?, exit_price = ?, exit_time = ?,
	    pnl = ?, close_reason = ?
	WHERE id = ?`

	var exitTime sql.NullTime
	if !pos.ExitTime.IsZero() {
		exitTime = sql.NullTime{Time: pos.ExitTime, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query,
		pos.Size, pos.StopPrice, pos.Status, pos.ExitPrice, exitTime,
		pos.PNL, pos.CloseReason, pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w", pos.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
	}
	s.logger.Debug(ctx, "Position updated", map[string]interface{}{"positionID": pos.ID, "status": pos.Status})
	return nil
}

// FindPosition retrieves a position by its unique ID.
func (s *Store) FindPosition(ctx context.Context, id int64) (*domain.Position, error) {
	const query = `
	SELECT id, order_id, symbol, side, size, entry_price, entry_time, stop_price,
	       risk_pct, status, COALESCE(exit_price, 0), exit_time, COALESCE(pnl, 0),
	       close_reason
	FROM positions WHERE id = ?`

	pos, err := scanPosition(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position by ID %d: %w", id, err)
	}
	return pos, nil
}

// FindPositionByOrder retrieves the position opened by a queue order.
func (s *Store) FindPositionByOrder(ctx context.Context, orderID string) (*domain.Position, error) {
	const query = `
	SELECT id, order_id, symbol, side, size, entry_price, entry_time, stop_price,
	       risk_pct, status, COALESCE(exit_price, 0), exit_time, COALESCE(pnl, 0),
	       close_reason
	FROM positions WHERE order_id = ?`

	pos, err := scanPosition(s.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position by order %s: %w", orderID, err)
	}
	return pos, nil
}

// FindOpenPositions retrieves all open positions, oldest entry first.
func (s *Store) FindOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT id, order_id, symbol, side, size, entry_price, entry_time, stop_price,
	       risk_pct, status, COALESCE(exit_price, 0), exit_time, COALESCE(pnl, 0),
	       close_reason
	FROM positions WHERE status = ? ORDER BY entry_time, id`

	rows, err := s.db.QueryContext(ctx, query, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindOpenPositions: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var side, status string
	var exitTime sql.NullTime
	var closeReason sql.NullString
	err := s.Scan(
		&p.ID, &p.OrderID, &p.Symbol, &side, &p.Size, &p.EntryPrice, &p.EntryTime,
		&p.StopPrice, &p.RiskPct, &status, &p.ExitPrice, &exitTime, &p.PNL, &closeReason)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Side = domain.OrderSide(side)
	p.Status = domain.PositionStatus(status)
	if exitTime.Valid {
		p.ExitTime = exitTime.Time
	}
	if closeReason.Valid {
		p.CloseReason = domain.CloseReason(closeReason.String)
	} else {
		p.CloseReason = domain.CloseReasonUnknown
	}
	return p, nil
}
