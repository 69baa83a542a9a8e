package game

import (
	"time"
)

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseRunning Phase = "running"
	PhaseCrashed Phase = "crashed"
)

type BetStatus string

const (
	BetStatusBetting BetStatus = "betting"
	BetStatusCashed  BetStatus = "cashed"
	BetStatusLost    BetStatus = "lost"
)

// Bet is one player's wager in the current round. A player holds at most one
// bet in status "betting" at a time.
type Bet struct {
	PlayerID          string    `json:"player_id"`
	Amount            float64   `json:"amount"`
	Status            BetStatus `json:"status"`
	CashoutMultiplier float64   `json:"cashout_multiplier,omitempty"`
	Winnings          float64   `json:"winnings,omitempty"`
	PlacedAt          time.Time `json:"placed_at"`
}

// Round is the authoritative record of the current round, persisted as a
// single versioned slot in the shared store. During the waiting phase
// StartTime is the future instant the flight begins; once running it is the
// multiplier's 1.00x reference point.
type Round struct {
	Phase      Phase     `json:"phase"`
	RoundID    string    `json:"round_id,omitempty"`
	StartTime  time.Time `json:"start_time,omitempty"`
	CrashPoint float64   `json:"crash_point,omitempty"`
	Multiplier float64   `json:"multiplier"`
	CrashedAt  time.Time `json:"crashed_at,omitempty"`
	Bets       []Bet     `json:"bets"`
	ServerSeed string    `json:"server_seed,omitempty"`
	Commitment string    `json:"commitment,omitempty"`

	// Version is the optimistic concurrency token checked on every write.
	Version int64 `json:"version"`
}

// activeBet returns the index of the player's bet still in status "betting".
func (r *Round) activeBet(playerID string) (int, bool) {
	for i := range r.Bets {
		if r.Bets[i].PlayerID == playerID && r.Bets[i].Status == BetStatusBetting {
			return i, true
		}
	}
	return -1, false
}

// View returns the round as exposed to clients: the crash point and server
// seed stay hidden until the round has crashed.
func (r Round) View() Round {
	if r.Phase != PhaseCrashed {
		r.CrashPoint = 0
		r.ServerSeed = ""
	}
	return r
}

// HistoryEntry is one settled round in the capped crash history ring.
type HistoryEntry struct {
	RoundID    string    `json:"round_id"`
	CrashPoint float64   `json:"crash_point"`
	Timestamp  time.Time `json:"timestamp"`
}

// BetResult is returned to the caller after a successful bet placement.
type BetResult struct {
	Balance float64 `json:"balance"`
	Bet     Bet     `json:"bet"`
}

// CashoutResult is returned to the caller after a successful cashout.
type CashoutResult struct {
	Balance    float64 `json:"balance"`
	Winnings   float64 `json:"winnings"`
	Multiplier float64 `json:"multiplier"`
}
