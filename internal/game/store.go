package game

import "context"

// Store is the shared key-value persistence the stateless instances coordinate
// through: the versioned current-round slot, the capped crash history, and the
// operator's forced-crash FIFO.
type Store interface {
	// GetRound returns the current round record, or ErrNoRound when the slot
	// has never been written.
	GetRound(ctx context.Context) (Round, error)

	// PutRound writes r if and only if the stored version still equals
	// r.Version; the stored copy is saved with r.Version+1. Returns
	// ErrConflict when another writer got there first.
	PutRound(ctx context.Context, r Round) error

	// PopForcedCrash consumes the next operator-queued crash point, FIFO.
	PopForcedCrash(ctx context.Context) (float64, bool, error)

	// RequeueForcedCrash puts a popped value back at the head of the queue,
	// used when the round write that would have consumed it lost the race.
	RequeueForcedCrash(ctx context.Context, v float64) error

	// SetForcedCrashes replaces the queue with vs.
	SetForcedCrashes(ctx context.Context, vs []float64) error

	// AppendHistory pushes an entry onto the history ring, evicting the
	// oldest entries beyond the configured cap.
	AppendHistory(ctx context.Context, entry HistoryEntry) error

	// History returns up to limit entries, most recent first.
	History(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// Ledger holds per-player balances. Debit and credit are atomic at the store
// layer and independent of round-record locking, so settlements for different
// players proceed concurrently. Amounts carry two-decimal precision and a
// balance never goes negative.
type Ledger interface {
	Balance(ctx context.Context, playerID string) (float64, error)

	// Debit subtracts amount and returns the new balance, or
	// ErrInsufficientBalance without mutating anything.
	Debit(ctx context.Context, playerID string, amount float64) (float64, error)

	// Credit adds amount and returns the new balance.
	Credit(ctx context.Context, playerID string, amount float64) (float64, error)

	// SetBalance overwrites a balance outright (deposits, admin, tests).
	SetBalance(ctx context.Context, playerID string, amount float64) error
}

// Publisher broadcasts game events to observers. Delivery is fire-and-forget:
// the engine logs failures and never lets them fail a settlement.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Journal receives an append-only audit record per settlement. Implementations
// must tolerate being nil-checked away; writes are best-effort.
type Journal interface {
	RecordWager(ctx context.Context, w WagerRecord) error
}

// Wager journal record kinds.
const (
	WagerKindBet     = "bet"
	WagerKindCashout = "cashout"
	WagerKindLoss    = "loss"
)

type WagerRecord struct {
	RoundID    string
	PlayerID   string
	Kind       string
	Amount     float64
	Multiplier float64
}
