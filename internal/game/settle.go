package game

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// PlaceBet debits the stake and appends a betting-status bet to the current
// round. Betting is open during the waiting phase only, unless the running
// grace policy is enabled in config. The debit happens once; if the round
// write keeps losing CAS races, or a re-read shows the phase closed or a
// duplicate bet, the stake is refunded.
func (e *Engine) PlaceBet(ctx context.Context, playerID string, amount float64) (BetResult, error) {
	if playerID == "" {
		return BetResult{}, ErrInvalidPlayer
	}
	amount = Floor2(amount)
	if amount <= 0 || amount < e.cfg.MinBet || amount > e.cfg.MaxBet {
		return BetResult{}, fmt.Errorf("%w: stake must be between %.2f and %.2f",
			ErrInvalidAmount, e.cfg.MinBet, e.cfg.MaxBet)
	}

	debited := false
	var balance float64
	fail := func(err error) (BetResult, error) {
		if debited {
			if _, refundErr := e.ledger.Credit(ctx, playerID, amount); refundErr != nil {
				log.Printf("[BET] Refund of %.2f to %s failed: %v", amount, playerID, refundErr)
			}
		}
		return BetResult{}, err
	}

	for attempt := 0; attempt <= e.cfg.ConflictRetries; attempt++ {
		round, err := e.Advance(ctx)
		if err != nil {
			return fail(err)
		}

		if !e.bettable(round.Phase) {
			return fail(ErrBettingClosed)
		}
		if _, ok := round.activeBet(playerID); ok {
			return fail(ErrDuplicateBet)
		}

		if !debited {
			balance, err = e.ledger.Debit(ctx, playerID, amount)
			if err != nil {
				return BetResult{}, err
			}
			debited = true
		}

		bet := Bet{
			PlayerID: playerID,
			Amount:   amount,
			Status:   BetStatusBetting,
			PlacedAt: e.now(),
		}
		round.Bets = append(round.Bets, bet)

		if err := e.store.PutRound(ctx, round); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return fail(fmt.Errorf("place bet: persist round: %w", err))
		}

		e.journalWager(ctx, WagerRecord{
			RoundID:  round.RoundID,
			PlayerID: playerID,
			Kind:     WagerKindBet,
			Amount:   amount,
		})
		e.publish(ctx, CHANNEL_GAME, "bet:placed", map[string]any{
			"player_id": playerID,
			"amount":    amount,
		})
		log.Printf("[BET] %s staked %.2f", playerID, amount)
		return BetResult{Balance: balance, Bet: bet}, nil
	}
	return fail(fmt.Errorf("place bet: %w", ErrConflict))
}

// CashOut converts the player's active bet into winnings at the multiplier
// recomputed from now. Trusting the stored tick value here would let a caller
// cash out after a crash that simply has not been persisted yet, so the crash
// check always recomputes.
func (e *Engine) CashOut(ctx context.Context, playerID string) (CashoutResult, error) {
	if playerID == "" {
		return CashoutResult{}, ErrInvalidPlayer
	}

	for attempt := 0; attempt <= e.cfg.ConflictRetries; attempt++ {
		round, err := e.Advance(ctx)
		if err != nil {
			return CashoutResult{}, err
		}

		if round.Phase != PhaseRunning {
			return CashoutResult{}, ErrNoActiveRound
		}
		idx, ok := round.activeBet(playerID)
		if !ok {
			return CashoutResult{}, ErrNoActiveBet
		}

		m := MultiplierAt(e.now().Sub(round.StartTime), e.cfg.GrowthRate)
		if m >= round.CrashPoint {
			return CashoutResult{}, ErrAlreadyCrashed
		}

		winnings := Floor2(round.Bets[idx].Amount * m)
		round.Bets[idx].Status = BetStatusCashed
		round.Bets[idx].CashoutMultiplier = m
		round.Bets[idx].Winnings = winnings

		if err := e.store.PutRound(ctx, round); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return CashoutResult{}, fmt.Errorf("cashout: persist round: %w", err)
		}

		balance, err := e.ledger.Credit(ctx, playerID, winnings)
		if err != nil {
			// The bet is already marked cashed; surface the failure rather
			// than retrying into a double credit.
			return CashoutResult{}, fmt.Errorf("cashout: credit winnings: %w", err)
		}

		e.journalWager(ctx, WagerRecord{
			RoundID:    round.RoundID,
			PlayerID:   playerID,
			Kind:       WagerKindCashout,
			Amount:     winnings,
			Multiplier: m,
		})
		e.publish(ctx, CHANNEL_GAME, "bet:cashout", map[string]any{
			"player_id":  playerID,
			"amount":     round.Bets[idx].Amount,
			"multiplier": m,
			"winnings":   winnings,
		})
		e.publish(ctx, UserChannel(playerID), "balance:update", map[string]any{
			"balance": balance,
		})
		log.Printf("[CASHOUT] %s cashed out at %.2fx for %.2f", playerID, m, winnings)
		return CashoutResult{Balance: balance, Winnings: winnings, Multiplier: m}, nil
	}
	return CashoutResult{}, fmt.Errorf("cashout: %w", ErrConflict)
}

func (e *Engine) bettable(phase Phase) bool {
	if phase == PhaseWaiting {
		return true
	}
	return phase == PhaseRunning && e.cfg.AllowRunningBets
}

func (e *Engine) journalWager(ctx context.Context, w WagerRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordWager(ctx, w); err != nil {
		log.Printf("[GAME] Journal %s for %s failed: %v", w.Kind, w.PlayerID, err)
	}
}
