package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPlaceBet_DebitsStakeAndRecordsBet(t *testing.T) {
	cfg := testConfig()
	engine, store, ledger, _ := newTestEngine(cfg, 5.00)
	ctx := context.Background()

	ledger.SetBalance(ctx, "alice", 1000)

	result, err := engine.PlaceBet(ctx, "alice", 100)
	if err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}
	if result.Balance != 900 {
		t.Errorf("balance after bet = %v, want 900", result.Balance)
	}
	if result.Bet.PlayerID != "alice" || result.Bet.Amount != 100 {
		t.Errorf("bet = %+v, want alice staking 100", result.Bet)
	}
	if result.Bet.Status != BetStatusBetting {
		t.Errorf("bet status = %v, want betting", result.Bet.Status)
	}

	round, err := store.GetRound(ctx)
	if err != nil {
		t.Fatalf("GetRound() error = %v", err)
	}
	if len(round.Bets) != 1 {
		t.Fatalf("stored round has %d bets, want 1", len(round.Bets))
	}
}

func TestPlaceBet_InvalidInputs(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(testConfig(), 5.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	tests := []struct {
		name     string
		playerID string
		amount   float64
		wantErr  error
	}{
		{"empty player", "", 100, ErrInvalidPlayer},
		{"zero amount", "alice", 0, ErrInvalidAmount},
		{"negative amount", "alice", -5, ErrInvalidAmount},
		{"below minimum", "alice", 0.50, ErrInvalidAmount},
		{"above maximum", "alice", 20000, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.PlaceBet(ctx, tt.playerID, tt.amount); !errors.Is(err, tt.wantErr) {
				t.Errorf("PlaceBet(%q, %v) error = %v, want %v", tt.playerID, tt.amount, err, tt.wantErr)
			}
		})
	}

	if bal, _ := ledger.Balance(ctx, "alice"); bal != 1000 {
		t.Errorf("balance after rejected bets = %v, want untouched 1000", bal)
	}
}

func TestPlaceBet_InsufficientBalance(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(testConfig(), 5.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 50)

	if _, err := engine.PlaceBet(ctx, "alice", 100); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("PlaceBet() error = %v, want ErrInsufficientBalance", err)
	}
	if bal, _ := ledger.Balance(ctx, "alice"); bal != 50 {
		t.Errorf("balance = %v, want untouched 50", bal)
	}
}

func TestPlaceBet_DuplicateRejected(t *testing.T) {
	engine, _, ledger, _ := newTestEngine(testConfig(), 5.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	if _, err := engine.PlaceBet(ctx, "alice", 100); err != nil {
		t.Fatalf("first PlaceBet() error = %v", err)
	}
	if _, err := engine.PlaceBet(ctx, "alice", 50); !errors.Is(err, ErrDuplicateBet) {
		t.Fatalf("second PlaceBet() error = %v, want ErrDuplicateBet", err)
	}
	if bal, _ := ledger.Balance(ctx, "alice"); bal != 900 {
		t.Errorf("balance = %v, want single debit to 900", bal)
	}
}

func TestPlaceBet_ConcurrentSameAccountDebitsOnce(t *testing.T) {
	engine, store, ledger, _ := newTestEngine(testConfig(), 5.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.PlaceBet(ctx, "alice", 100)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrDuplicateBet) {
			t.Errorf("unexpected error = %v, want nil or ErrDuplicateBet", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}

	// The loser's stake must have been refunded.
	if bal, _ := ledger.Balance(ctx, "alice"); bal != 900 {
		t.Errorf("balance = %v, want 900", bal)
	}
	round, _ := store.GetRound(ctx)
	if len(round.Bets) != 1 {
		t.Errorf("stored round has %d bets, want 1", len(round.Bets))
	}
}

func TestPlaceBet_ClosedOutsideWaiting(t *testing.T) {
	cfg := testConfig()
	engine, _, ledger, clock := newTestEngine(cfg, 5.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	engine.Advance(ctx) // waiting
	clock.Advance(cfg.BettingWindow + time.Second)

	t.Run("running", func(t *testing.T) {
		if _, err := engine.PlaceBet(ctx, "alice", 100); !errors.Is(err, ErrBettingClosed) {
			t.Errorf("PlaceBet() during running error = %v, want ErrBettingClosed", err)
		}
	})

	clock.Advance(5 * time.Minute) // past the crash, into cooldown
	engine.Advance(ctx)

	t.Run("crashed", func(t *testing.T) {
		if _, err := engine.PlaceBet(ctx, "alice", 100); !errors.Is(err, ErrBettingClosed) {
			t.Errorf("PlaceBet() during cooldown error = %v, want ErrBettingClosed", err)
		}
	})

	if bal, _ := ledger.Balance(ctx, "alice"); bal != 1000 {
		t.Errorf("balance = %v, want untouched 1000", bal)
	}
}

func TestPlaceBet_RunningGracePolicy(t *testing.T) {
	cfg := testConfig()
	cfg.AllowRunningBets = true
	engine, _, ledger, clock := newTestEngine(cfg, 5.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	engine.Advance(ctx)
	clock.Advance(cfg.BettingWindow + time.Second)

	result, err := engine.PlaceBet(ctx, "alice", 100)
	if err != nil {
		t.Fatalf("PlaceBet() during running error = %v", err)
	}
	if result.Balance != 900 {
		t.Errorf("balance = %v, want 900", result.Balance)
	}
}

func TestCashOut_CreditsWinningsAtCurrentMultiplier(t *testing.T) {
	cfg := testConfig()
	engine, store, ledger, clock := newTestEngine(cfg, 5.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	if _, err := engine.PlaceBet(ctx, "alice", 100); err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}

	clock.Advance(cfg.BettingWindow)
	engine.Advance(ctx) // liftoff

	// 15272ms of growth lands the multiplier on exactly 2.50.
	clock.Advance(15272 * time.Millisecond)

	result, err := engine.CashOut(ctx, "alice")
	if err != nil {
		t.Fatalf("CashOut() error = %v", err)
	}
	if result.Multiplier != 2.50 {
		t.Errorf("multiplier = %v, want 2.50", result.Multiplier)
	}
	if result.Winnings != 250.00 {
		t.Errorf("winnings = %v, want 250.00", result.Winnings)
	}
	if result.Balance != 1150.00 {
		t.Errorf("balance = %v, want 1150.00", result.Balance)
	}

	round, _ := store.GetRound(ctx)
	if len(round.Bets) != 1 || round.Bets[0].Status != BetStatusCashed {
		t.Fatalf("stored bet = %+v, want status cashed", round.Bets)
	}
	if round.Bets[0].Winnings != 250.00 || round.Bets[0].CashoutMultiplier != 2.50 {
		t.Errorf("stored bet settlement = %+v, want 250.00 at 2.50x", round.Bets[0])
	}
}

func TestCashOut_InstantCrashLosesStake(t *testing.T) {
	cfg := testConfig()
	engine, _, ledger, clock := newTestEngine(cfg, 1.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	if _, err := engine.PlaceBet(ctx, "alice", 100); err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}

	// At a 1.00 crash point the round crashes in the same advance that lifts
	// it off, so there is never a window to cash out.
	clock.Advance(cfg.BettingWindow)
	round, err := engine.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if round.Phase != PhaseCrashed {
		t.Fatalf("phase = %v, want crashed", round.Phase)
	}

	if _, err := engine.CashOut(ctx, "alice"); !errors.Is(err, ErrNoActiveRound) {
		t.Errorf("CashOut() error = %v, want ErrNoActiveRound", err)
	}
	if bal, _ := ledger.Balance(ctx, "alice"); bal != 900 {
		t.Errorf("balance = %v, want 900 with the stake lost", bal)
	}
}

func TestCashOut_WithoutActiveBet(t *testing.T) {
	cfg := testConfig()
	engine, _, _, clock := newTestEngine(cfg, 5.00)
	ctx := context.Background()

	engine.Advance(ctx)

	t.Run("waiting phase", func(t *testing.T) {
		if _, err := engine.CashOut(ctx, "alice"); !errors.Is(err, ErrNoActiveRound) {
			t.Errorf("CashOut() error = %v, want ErrNoActiveRound", err)
		}
	})

	clock.Advance(cfg.BettingWindow + time.Second)

	t.Run("running without bet", func(t *testing.T) {
		if _, err := engine.CashOut(ctx, "alice"); !errors.Is(err, ErrNoActiveBet) {
			t.Errorf("CashOut() error = %v, want ErrNoActiveBet", err)
		}
	})
}

func TestCashOut_TwiceRejected(t *testing.T) {
	cfg := testConfig()
	engine, _, ledger, clock := newTestEngine(cfg, 5.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	engine.PlaceBet(ctx, "alice", 100)
	clock.Advance(cfg.BettingWindow + 5*time.Second)

	if _, err := engine.CashOut(ctx, "alice"); err != nil {
		t.Fatalf("first CashOut() error = %v", err)
	}
	if _, err := engine.CashOut(ctx, "alice"); !errors.Is(err, ErrNoActiveBet) {
		t.Fatalf("second CashOut() error = %v, want ErrNoActiveBet", err)
	}
}

func TestCashOut_AtCrashPointRejected(t *testing.T) {
	cfg := testConfig()
	engine, _, ledger, clock := newTestEngine(cfg, 2.00)
	ctx := context.Background()
	ledger.SetBalance(ctx, "alice", 1000)

	engine.PlaceBet(ctx, "alice", 100)
	clock.Advance(cfg.BettingWindow)
	engine.Advance(ctx) // liftoff

	// Park the flight just short of the 2.00 crash point (reached ~11552ms
	// in), then race the clock past it between the advance read and the
	// cashout's own recomputation.
	clock.Advance(11 * time.Second)
	clock.SetStep(600 * time.Millisecond)

	if _, err := engine.CashOut(ctx, "alice"); !errors.Is(err, ErrAlreadyCrashed) {
		t.Fatalf("CashOut() error = %v, want ErrAlreadyCrashed", err)
	}

	clock.SetStep(0)
	if bal, _ := ledger.Balance(ctx, "alice"); bal != 900 {
		t.Errorf("balance = %v, want 900 with no winnings credited", bal)
	}

	// The next advance settles the crash and the bet is lost.
	round, err := engine.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if round.Phase != PhaseCrashed {
		t.Fatalf("phase = %v, want crashed", round.Phase)
	}
	if round.Bets[0].Status != BetStatusLost {
		t.Errorf("bet status = %v, want lost", round.Bets[0].Status)
	}
}
