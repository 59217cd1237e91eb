// Package journal persists an append-only audit trail of leg events to a
// local sqlite database. It is write-only: the bot never reads state back
// from it.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS leg_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	ts          DATETIME NOT NULL,
	event       TEXT NOT NULL,
	state       TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	role        TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	strike      INTEGER NOT NULL,
	price       REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leg_events_strategy ON leg_events(strategy_id, ts);
`

// LegEvent is one row of the audit trail.
type LegEvent struct {
	StrategyID string
	Timestamp  time.Time
	Event      string // opened | closed
	State      string // lifecycle state at the time of the event
	Symbol     string
	Role       string
	Side       string
	Quantity   int
	Strike     int
	Price      float64
}

// Journal writes leg events to sqlite.
type Journal struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open creates or opens the journal database at path and ensures the schema
// exists.
func Open(path string, logger *logrus.Logger) (*Journal, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// Record appends one leg event. Failures are returned but callers treat the
// journal as best-effort and continue trading.
func (j *Journal) Record(ev LegEvent) error {
	_, err := j.db.Exec(
		`INSERT INTO leg_events (strategy_id, ts, event, state, symbol, role, side, quantity, strike, price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.StrategyID, ev.Timestamp.UTC(), ev.Event, ev.State, ev.Symbol,
		ev.Role, ev.Side, ev.Quantity, ev.Strike, ev.Price,
	)
	if err != nil {
		return fmt.Errorf("recording leg event: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
