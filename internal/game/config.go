package game

import (
	"os"
	"strconv"
	"time"
)

// Crash point generation strategies.
const (
	StrategyRandom        = "random"
	StrategyDeterministic = "deterministic"
	StrategyFair          = "fair"
)

// Config holds every tunable of the round lifecycle. The many near-identical
// upstream variants disagree on growth rates and edges; these defaults are the
// single canonical set.
type Config struct {
	HouseEdge  float64 // probability of an instant 1.00x crash
	MaxCrash   float64 // payout cap
	GrowthRate float64 // exponent per elapsed millisecond

	Cooldown      time.Duration // crashed -> waiting delay
	BettingWindow time.Duration // waiting -> running delay
	RoundCycle    time.Duration // deterministic strategy round anchor length

	BonusMinutes int     // first N minutes of each hour force elevated crashes
	BonusMin     float64
	BonusMax     float64

	MinBet float64
	MaxBet float64

	HistorySize      int
	Strategy         string
	AllowRunningBets bool // permit bets after liftoff (off by default)
	ConflictRetries  int  // CAS retry budget per operation
	AdvanceInterval  time.Duration // in-process driver cadence, 0 disables
}

func DefaultConfig() Config {
	return Config{
		HouseEdge:        0.03,
		MaxCrash:         1000,
		GrowthRate:       0.00006,
		Cooldown:         3 * time.Second,
		BettingWindow:    5 * time.Second,
		RoundCycle:       20 * time.Second,
		BonusMinutes:     2,
		BonusMin:         20,
		BonusMax:         100,
		MinBet:           1,
		MaxBet:           10000,
		HistorySize:      50,
		Strategy:         StrategyRandom,
		AllowRunningBets: false,
		ConflictRetries:  5,
		AdvanceInterval:  100 * time.Millisecond,
	}
}

// ConfigFromEnv loads overrides from the environment on top of the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HouseEdge = getEnvAsFloat("GAME_HOUSE_EDGE", cfg.HouseEdge)
	cfg.MaxCrash = getEnvAsFloat("GAME_MAX_CRASH", cfg.MaxCrash)
	cfg.GrowthRate = getEnvAsFloat("GAME_GROWTH_RATE", cfg.GrowthRate)
	cfg.Cooldown = getEnvAsDuration("GAME_COOLDOWN_MS", cfg.Cooldown)
	cfg.BettingWindow = getEnvAsDuration("GAME_BETTING_WINDOW_MS", cfg.BettingWindow)
	cfg.RoundCycle = getEnvAsDuration("GAME_ROUND_CYCLE_MS", cfg.RoundCycle)
	cfg.BonusMinutes = getEnvAsInt("GAME_BONUS_MINUTES", cfg.BonusMinutes)
	cfg.BonusMin = getEnvAsFloat("GAME_BONUS_MIN", cfg.BonusMin)
	cfg.BonusMax = getEnvAsFloat("GAME_BONUS_MAX", cfg.BonusMax)
	cfg.MinBet = getEnvAsFloat("GAME_MIN_BET", cfg.MinBet)
	cfg.MaxBet = getEnvAsFloat("GAME_MAX_BET", cfg.MaxBet)
	cfg.HistorySize = getEnvAsInt("GAME_HISTORY_SIZE", cfg.HistorySize)
	cfg.Strategy = getEnv("GAME_STRATEGY", cfg.Strategy)
	cfg.AllowRunningBets = getEnvAsBool("GAME_ALLOW_RUNNING_BETS", cfg.AllowRunningBets)
	cfg.ConflictRetries = getEnvAsInt("GAME_CONFLICT_RETRIES", cfg.ConflictRetries)
	cfg.AdvanceInterval = getEnvAsDuration("GAME_ADVANCE_INTERVAL_MS", cfg.AdvanceInterval)

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
