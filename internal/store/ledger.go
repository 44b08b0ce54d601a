package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Ledger is the resolution-history ledger. Every resolution attempt is
// appended so per-strategy statistics can be aggregated later. The ledger
// is advisory: it is never consulted on the merge hot path beyond
// idempotence checks, so it tolerates cross-process staleness.
type Ledger struct {
	db *sql.DB
}

// StrategyStat aggregates attempt outcomes for one strategy.
type StrategyStat struct {
	Strategy    string  `json:"strategy"`
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// NewLedger opens or creates the ledger database. Pass ":memory:" for an
// ephemeral ledger in tests.
func NewLedger(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the ledger database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Initialize creates the ledger schema.
func (l *Ledger) Initialize() error {
	schema := `
	-- Resolution attempts (append-only)
	CREATE TABLE IF NOT EXISTS resolution_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conflict_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_conflict ON resolution_attempts(conflict_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_strategy ON resolution_attempts(strategy);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return nil
}

// RecordAttempt appends one resolution attempt.
func (l *Ledger) RecordAttempt(conflictID, strategy string, success bool) error {
	_, err := l.db.Exec(`
		INSERT INTO resolution_attempts (conflict_id, strategy, success)
		VALUES (?, ?, ?)`,
		conflictID, strategy, success,
	)
	return err
}

// AttemptCount returns the number of recorded attempts for a conflict.
func (l *Ledger) AttemptCount(conflictID string) (int, error) {
	var count int
	err := l.db.QueryRow(`
		SELECT COUNT(*) FROM resolution_attempts WHERE conflict_id = ?`,
		conflictID,
	).Scan(&count)
	return count, err
}

// TotalAttempts returns the total number of recorded attempts.
func (l *Ledger) TotalAttempts() (int, error) {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM resolution_attempts`).Scan(&count)
	return count, err
}

// StrategyStats aggregates success rates per strategy.
func (l *Ledger) StrategyStats() ([]StrategyStat, error) {
	rows, err := l.db.Query(`
		SELECT strategy, COUNT(*), SUM(CASE WHEN success THEN 1 ELSE 0 END)
		FROM resolution_attempts
		GROUP BY strategy
		ORDER BY strategy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []StrategyStat
	for rows.Next() {
		var stat StrategyStat
		if err := rows.Scan(&stat.Strategy, &stat.Attempts, &stat.Successes); err != nil {
			return nil, err
		}
		if stat.Attempts > 0 {
			stat.SuccessRate = float64(stat.Successes) / float64(stat.Attempts)
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}
