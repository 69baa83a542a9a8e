package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Engine owns the round lifecycle. It holds no round state in memory: every
// operation reads the shared slot, applies wall-clock driven transitions, and
// writes back under compare-and-swap. Any caller — an HTTP request, the cron
// trigger, or the optional in-process driver — can advance the game, and
// concurrent callers converge on one winner per transition.
type Engine struct {
	cfg     Config
	store   Store
	ledger  Ledger
	pub     Publisher
	gen     Generator
	journal Journal

	now func() time.Time
}

func NewEngine(cfg Config, store Store, ledger Ledger, pub Publisher, gen Generator, journal Journal) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   store,
		ledger:  ledger,
		pub:     pub,
		gen:     gen,
		journal: journal,
		now:     time.Now,
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// event is a broadcast staged during a transition and flushed only after the
// round write commits, so losers of a CAS race never publish.
type event struct {
	channel string
	name    string
	payload any
}

// Advance drives the state machine from the stored round to where the wall
// clock says it should be, and returns the settled record. Safe to call from
// any entry point at any frequency: transitions compare stored time anchors
// against now, so re-running converges instead of double-applying.
func (e *Engine) Advance(ctx context.Context) (Round, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.ConflictRetries; attempt++ {
		round, err := e.store.GetRound(ctx)
		if err != nil {
			if !errors.Is(err, ErrNoRound) {
				return Round{}, fmt.Errorf("advance: %w", err)
			}
			// First-ever invocation: behave as freshly crashed long ago so
			// the betting window opens immediately.
			round = Round{Phase: PhaseCrashed, CrashedAt: e.now().Add(-e.cfg.Cooldown), Multiplier: 1.00}
		}

		now := e.now()
		var events []event
		var crashed *HistoryEntry
		var forced *float64
		changed := false

		// CRASHED -> WAITING once the cooldown has elapsed. Resets the slot
		// for a new round; StartTime anchors the end of the betting window.
		if round.Phase == PhaseCrashed && now.Sub(round.CrashedAt) >= e.cfg.Cooldown {
			round = Round{
				Phase:      PhaseWaiting,
				StartTime:  now.Add(e.cfg.BettingWindow),
				Multiplier: 1.00,
				Version:    round.Version,
			}
			events = append(events, event{CHANNEL_GAME, "game:waiting", map[string]any{
				"time_left": e.cfg.BettingWindow.Milliseconds(),
			}})
			changed = true
		}

		// WAITING -> RUNNING once the betting window closes. The crash point
		// is drawn here, preferring the operator's forced queue.
		if round.Phase == PhaseWaiting && !now.Before(round.StartTime) {
			draw := e.drawCrashPoint(ctx, now, &forced)
			round.Phase = PhaseRunning
			round.StartTime = now
			round.RoundID = fmt.Sprintf("round-%d", now.UnixMilli())
			round.CrashPoint = draw.CrashPoint
			round.ServerSeed = draw.ServerSeed
			round.Commitment = draw.Commitment
			round.Multiplier = 1.00
			payload := map[string]any{
				"round_id":   round.RoundID,
				"start_time": round.StartTime.UnixMilli(),
			}
			if draw.Commitment != "" {
				payload["commitment"] = draw.Commitment
			}
			// The crash point itself never leaves the server here.
			events = append(events, event{CHANNEL_GAME, "game:start", payload})
			changed = true
		}

		// RUNNING -> CRASHED when the recomputed multiplier reaches the crash
		// point; otherwise refresh the cached tick value.
		if round.Phase == PhaseRunning {
			m := MultiplierAt(now.Sub(round.StartTime), e.cfg.GrowthRate)
			if m >= round.CrashPoint {
				round.Phase = PhaseCrashed
				round.Multiplier = round.CrashPoint
				round.CrashedAt = now
				for i := range round.Bets {
					if round.Bets[i].Status == BetStatusBetting {
						round.Bets[i].Status = BetStatusLost
					}
				}
				crashed = &HistoryEntry{RoundID: round.RoundID, CrashPoint: round.CrashPoint, Timestamp: now}
				payload := map[string]any{"crash_point": round.CrashPoint}
				if round.ServerSeed != "" {
					payload["server_seed"] = round.ServerSeed
				}
				events = append(events, event{CHANNEL_GAME, "game:crash", payload})
				changed = true
			} else if m != round.Multiplier {
				round.Multiplier = m
				events = append(events, event{CHANNEL_GAME, "game:tick", map[string]any{
					"multiplier": m,
				}})
				changed = true
			}
		}

		if !changed {
			return round, nil
		}

		if err := e.store.PutRound(ctx, round); err != nil {
			if errors.Is(err, ErrConflict) {
				if forced != nil {
					if rqErr := e.store.RequeueForcedCrash(ctx, *forced); rqErr != nil {
						log.Printf("[GAME] Failed to requeue forced crash %.2f: %v", *forced, rqErr)
					}
				}
				lastErr = err
				continue
			}
			return Round{}, fmt.Errorf("advance: persist round: %w", err)
		}
		round.Version++

		// Only the writer that won the crash transition records it.
		if crashed != nil {
			if err := e.store.AppendHistory(ctx, *crashed); err != nil {
				log.Printf("[GAME] Failed to append history for %s: %v", crashed.RoundID, err)
			}
			e.journalLosses(ctx, round)
			log.Printf("[GAME] Round %s crashed at %.2fx", round.RoundID, round.CrashPoint)
		}

		for _, ev := range events {
			e.publish(ctx, ev.channel, ev.name, ev.payload)
		}
		return round, nil
	}
	return Round{}, fmt.Errorf("advance: retries exhausted: %w", lastErr)
}

// drawCrashPoint consumes the forced-crash queue first and falls back to the
// configured generator. A queue read failure only costs the override.
func (e *Engine) drawCrashPoint(ctx context.Context, now time.Time, forced **float64) Draw {
	v, ok, err := e.store.PopForcedCrash(ctx)
	if err != nil {
		log.Printf("[GAME] Forced crash queue unavailable: %v", err)
	} else if ok {
		*forced = &v
		return Draw{CrashPoint: v}
	}
	return e.gen.Generate(now)
}

// Run is an optional in-process driver for single-instance deployments: it
// calls Advance on a ticker. Deployments relying on an external scheduler or
// request traffic alone can disable it; correctness never depends on it.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[GAME] Advance driver started (every %v)", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[GAME] Advance driver stopped")
			return
		case <-ticker.C:
			if _, err := e.Advance(ctx); err != nil {
				log.Printf("[GAME] Advance failed: %v", err)
			}
		}
	}
}

// History lists the most recent settled rounds.
func (e *Engine) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return e.store.History(ctx, limit)
}

// ForceCrashPoints replaces the operator override queue. Each value becomes
// the crash point of one future round, consumed FIFO.
func (e *Engine) ForceCrashPoints(ctx context.Context, multipliers []float64) error {
	for _, m := range multipliers {
		if m < 1 || m > e.cfg.MaxCrash {
			return fmt.Errorf("%w: forced crash point %.2f out of range", ErrInvalidAmount, m)
		}
	}
	return e.store.SetForcedCrashes(ctx, multipliers)
}

func (e *Engine) publish(ctx context.Context, channel, name string, payload any) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, channel, name, payload); err != nil {
		log.Printf("[GAME] Publish %s failed: %v", name, err)
	}
}

func (e *Engine) journalLosses(ctx context.Context, round Round) {
	if e.journal == nil {
		return
	}
	for _, bet := range round.Bets {
		if bet.Status != BetStatusLost {
			continue
		}
		err := e.journal.RecordWager(ctx, WagerRecord{
			RoundID:    round.RoundID,
			PlayerID:   bet.PlayerID,
			Kind:       WagerKindLoss,
			Amount:     bet.Amount,
			Multiplier: round.CrashPoint,
		})
		if err != nil {
			log.Printf("[GAME] Journal loss for %s failed: %v", bet.PlayerID, err)
		}
	}
}
