package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	mathrand "math/rand/v2"
	"time"
)

// Draw is the outcome of crash point generation for one round. ServerSeed and
// Commitment are only set by the provably fair strategy; the seed stays hidden
// until the round crashes.
type Draw struct {
	CrashPoint float64 `json:"crash_point"`
	ServerSeed string  `json:"server_seed,omitempty"`
	Commitment string  `json:"commitment,omitempty"`
}

// Generator produces the crash multiplier for the round starting at now.
type Generator interface {
	Generate(now time.Time) Draw
}

// NewGenerator selects the strategy configured in cfg.
func NewGenerator(cfg Config) Generator {
	switch cfg.Strategy {
	case StrategyDeterministic:
		return &DeterministicGenerator{
			HouseEdge:    cfg.HouseEdge,
			MaxCrash:     cfg.MaxCrash,
			RoundCycle:   cfg.RoundCycle,
			BonusMinutes: cfg.BonusMinutes,
			BonusMin:     cfg.BonusMin,
			BonusMax:     cfg.BonusMax,
		}
	case StrategyFair:
		return &FairGenerator{HouseEdge: cfg.HouseEdge, MaxCrash: cfg.MaxCrash}
	default:
		return &RandomGenerator{HouseEdge: cfg.HouseEdge, MaxCrash: cfg.MaxCrash}
	}
}

// clampCrash applies the inverse-uniform crash formula 0.99/(1-r) and bounds
// the result to [1.01, maxCrash]. r must be in [0, 1); the clamp also covers
// any r close enough to 1 to blow up the division.
func clampCrash(r, maxCrash float64) float64 {
	cp := 0.99 / (1 - r)
	if math.IsInf(cp, 0) || math.IsNaN(cp) || cp > maxCrash {
		cp = maxCrash
	}
	return math.Max(1.01, Floor2(cp))
}

// RandomGenerator draws an independent crash point per round.
type RandomGenerator struct {
	HouseEdge float64
	MaxCrash  float64

	// Rand overrides the uniform source, for tests. Defaults to math/rand/v2.
	Rand func() float64
}

func (g *RandomGenerator) Generate(_ time.Time) Draw {
	random := g.Rand
	if random == nil {
		random = mathrand.Float64
	}
	if random() < g.HouseEdge {
		return Draw{CrashPoint: 1.00}
	}
	return Draw{CrashPoint: clampCrash(random(), g.MaxCrash)}
}

// DeterministicGenerator derives the crash point from the wall clock alone, so
// every stateless instance computes the identical value for the same round
// anchor without coordination.
type DeterministicGenerator struct {
	HouseEdge    float64
	MaxCrash     float64
	RoundCycle   time.Duration
	BonusMinutes int
	BonusMin     float64
	BonusMax     float64
}

func (g *DeterministicGenerator) Generate(now time.Time) Draw {
	return Draw{CrashPoint: g.CrashPointAt(now)}
}

// CrashPointAt is the pure mapping from timestamp to crash point. The anchor
// quantizes the timestamp to the round cycle; a Lehmer step turns it into a
// reproducible uniform value.
func (g *DeterministicGenerator) CrashPointAt(now time.Time) float64 {
	cycle := g.RoundCycle.Milliseconds()
	if cycle <= 0 {
		cycle = 20000
	}
	anchor := now.UnixMilli() / cycle * cycle
	seed := (anchor * 16807) % 2147483647
	r := float64(seed) / 2147483647

	// Golden hour: the first BonusMinutes of every hour pay out in the
	// elevated [BonusMin, BonusMax] range instead of the normal distribution.
	if g.BonusMinutes > 0 && now.Minute() < g.BonusMinutes {
		return Floor2(g.BonusMin + r*(g.BonusMax-g.BonusMin))
	}

	if r < g.HouseEdge {
		return 1.00
	}
	return clampCrash(r, g.MaxCrash)
}

// FairGenerator draws a fresh server seed per round and commits to it with a
// SHA-256 hash. The commitment is broadcast at liftoff and the seed revealed at
// crash, letting players verify the crash point after the fact.
type FairGenerator struct {
	HouseEdge float64
	MaxCrash  float64
}

func (g *FairGenerator) Generate(now time.Time) Draw {
	seed := GenerateSeed()
	return Draw{
		CrashPoint: g.crashFromSeed(seed, now.UnixMilli()),
		ServerSeed: seed,
		Commitment: HashCommitment(seed),
	}
}

func (g *FairGenerator) crashFromSeed(serverSeed string, anchorMs int64) float64 {
	h := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(h, "%d", anchorMs)
	hashHex := hex.EncodeToString(h.Sum(nil))

	// First 16 hex characters give 64 uniform bits.
	i := new(big.Int)
	i.SetString(hashHex[:16], 16)
	const maxUint64Float = 18446744073709551616.0
	r := float64(i.Uint64()) / maxUint64Float

	if r < g.HouseEdge {
		return 1.00
	}
	return clampCrash(r, g.MaxCrash)
}

// VerifyCrashPoint recomputes a round's crash point from the revealed seed and
// the round's start timestamp.
func (g *FairGenerator) VerifyCrashPoint(serverSeed string, anchorMs int64, claimed float64) bool {
	return g.crashFromSeed(serverSeed, anchorMs) == claimed
}

// GenerateSeed creates a cryptographically secure random seed.
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates the SHA-256 commitment for a seed.
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}
