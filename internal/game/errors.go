package game

import "errors"

// Sentinel errors returned by the engine and settlement paths. Handlers map
// these to HTTP status codes with errors.Is.
var (
	// ErrNoRound is returned by a Store when the current-round slot is empty.
	ErrNoRound = errors.New("no round record")

	// ErrConflict means a concurrent writer updated the round record first.
	// The operation can be retried safely.
	ErrConflict = errors.New("round record version conflict")

	ErrInvalidPlayer       = errors.New("player id required")
	ErrInvalidAmount       = errors.New("invalid bet amount")
	ErrBettingClosed       = errors.New("betting is closed")
	ErrDuplicateBet        = errors.New("bet already active this round")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoActiveRound       = errors.New("no active round")
	ErrNoActiveBet         = errors.New("no active bet")
	ErrAlreadyCrashed      = errors.New("round already crashed")
)
