// Package ledger implements the append-only trade record and FIFO position
// reconstruction described in the Ledger component: every BUY/SELL is
// appended once, and a ticker's current position is always a pure replay
// of its history — never a separately mutated counter that can drift.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Action is the executed side of a Ledger Entry.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// dust is the epsilon below which residual quantity is treated as zero, to
// avoid floating-point ghosts in a position that has actually closed out.
const dust = 1e-6

// Entry is one append-only record of an execution event.
type Entry struct {
	Timestamp        time.Time
	Action           Action
	Ticker           string
	Price            float64
	Quantity         float64
	Reason           string
	EstTaxImpact     float64
	Broker           string
}

// lot is one unmatched BUY at a specific price, consumed FIFO by later
// SELLs.
type lot struct {
	quantity float64
	price    float64
}

// Position is the derived, per-ticker view reconstructed by Replay.
type Position struct {
	Ticker      string
	SharesHeld  float64
	CostBasis   float64
	AvgPrice    float64
}

// Held reports whether the position is non-dust.
func (p Position) Held() bool {
	return p.SharesHeld > dust
}

// Replay reconstructs every ticker's position from entries, scanned in
// chronological order regardless of the order they're passed in. For each
// BUY, a new lot is appended to that ticker's queue; for each SELL, lots
// are consumed from the head of the queue until the sell quantity is
// satisfied, splitting the last consumed lot if it is only partially
// filled. The realized PnL for each SELL is the sum, over every lot
// segment it consumes, of (sell_price - lot_price) * consumed_qty.
//
// Replay never mutates entries and is a pure function of its input: the
// same entries in any order (after sorting by Timestamp) produce the same
// result, satisfying the round-trip law that a full ledger replay
// reproduces the current open-positions map exactly.
func Replay(entries []Entry) (positions map[string]Position, realizedPnL map[string]float64, err error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sortByTimestamp(sorted)

	lots := make(map[string][]lot)
	realizedPnL = make(map[string]float64)

	for _, e := range sorted {
		if e.Quantity < 0 {
			return nil, nil, fmt.Errorf("ledger: negative quantity in entry for %s at %s", e.Ticker, e.Timestamp)
		}

		switch e.Action {
		case ActionBuy:
			lots[e.Ticker] = append(lots[e.Ticker], lot{quantity: e.Quantity, price: e.Price})

		case ActionSell:
			remaining := e.Quantity
			queue := lots[e.Ticker]

			for remaining > dust && len(queue) > 0 {
				head := &queue[0]
				consumed := head.quantity
				if consumed > remaining {
					consumed = remaining
				}

				realizedPnL[e.Ticker] += (e.Price - head.price) * consumed
				head.quantity -= consumed
				remaining -= consumed

				if head.quantity <= dust {
					queue = queue[1:]
				}
			}

			if remaining > dust {
				return nil, nil, fmt.Errorf("ledger: SELL of %.8f %s exceeds unmatched BUY quantity at %s", e.Quantity, e.Ticker, e.Timestamp)
			}

			lots[e.Ticker] = queue

		default:
			return nil, nil, fmt.Errorf("ledger: unknown action %q for %s", e.Action, e.Ticker)
		}
	}

	positions = make(map[string]Position, len(lots))
	for ticker, queue := range lots {
		var shares, cost float64
		for _, l := range queue {
			shares += l.quantity
			cost += l.quantity * l.price
		}
		if shares <= dust {
			continue
		}
		positions[ticker] = Position{
			Ticker:     ticker,
			SharesHeld: shares,
			CostBasis:  cost,
			AvgPrice:   cost / shares,
		}
	}

	return positions, realizedPnL, nil
}

func sortByTimestamp(entries []Entry) {
	// Insertion sort: ledgers are append-mostly and typically already
	// close to sorted; this avoids importing sort for a stability
	// guarantee we'd have to hand-roll anyway (ties broken by original
	// order, i.e. append order within the same timestamp).
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j].Timestamp.Before(entries[j-1].Timestamp) {
			entries[j], entries[j-1] = entries[j-1], entries[j]
			j--
		}
	}
}

// Store persists Entries to Postgres and serves Replay-backed queries over
// them.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pgxpool.Pool (typically db.DB.Pool()).
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append inserts a new ledger entry. Writes are ordered by timestamp of
// append — callers append at execution time, not at backfill time.
func (s *Store) Append(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_entries
			(timestamp, action, ticker, price, quantity, reason, est_tax_impact, broker)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.Timestamp, string(e.Action), e.Ticker, e.Price, e.Quantity, e.Reason, e.EstTaxImpact, e.Broker)
	if err != nil {
		log.Error().Err(err).Str("ticker", e.Ticker).Str("action", string(e.Action)).Msg("ledger: append failed")
		return fmt.Errorf("ledger append: %w", err)
	}
	return nil
}

// All loads every entry, oldest first.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp, action, ticker, price, quantity, reason, est_tax_impact, broker
		FROM ledger_entries
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.Timestamp, &action, &e.Ticker, &e.Price, &e.Quantity, &e.Reason, &e.EstTaxImpact, &e.Broker); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// OpenPositions loads the full ledger and replays it.
func (s *Store) OpenPositions(ctx context.Context) (map[string]Position, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	positions, _, err := Replay(entries)
	return positions, err
}

// HasPosition reports whether ticker currently has a non-dust position.
func (s *Store) HasPosition(ctx context.Context, ticker string) (bool, error) {
	positions, err := s.OpenPositions(ctx)
	if err != nil {
		return false, err
	}
	pos, ok := positions[ticker]
	return ok && pos.Held(), nil
}

// TradeHistory returns up to limit most recent entries, newest first.
func (s *Store) TradeHistory(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp, action, ticker, price, quantity, reason, est_tax_impact, broker
		FROM ledger_entries
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger history query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.Timestamp, &action, &e.Ticker, &e.Price, &e.Quantity, &e.Reason, &e.EstTaxImpact, &e.Broker); err != nil {
			return nil, fmt.Errorf("ledger history scan: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
