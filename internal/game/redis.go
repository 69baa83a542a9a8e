package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_ROUND          = "crash:round"
	REDIS_KEY_HISTORY        = "crash:history"
	REDIS_KEY_FORCED_CRASHES = "crash:forced"
	REDIS_KEY_BALANCE_PREFIX = "crash:balance:"

	CHANNEL_GAME        = "crash-game"
	CHANNEL_USER_PREFIX = "user-"

	STORE_TIMEOUT = 3 * time.Second
)

// UserChannel names the private per-player event channel.
func UserChannel(playerID string) string {
	return CHANNEL_USER_PREFIX + playerID
}

// RedisStore persists the round slot, history ring and forced-crash queue in
// Redis. Round writes use WATCH-based compare-and-swap on the record's version
// so concurrent advancers cannot double-apply a transition.
type RedisStore struct {
	client      *redis.Client
	historySize int
}

func NewRedisStore(client *redis.Client, historySize int) *RedisStore {
	return &RedisStore{client: client, historySize: historySize}
}

func (s *RedisStore) GetRound(ctx context.Context) (Round, error) {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	data, err := s.client.Get(ctx, REDIS_KEY_ROUND).Bytes()
	if errors.Is(err, redis.Nil) {
		return Round{}, ErrNoRound
	}
	if err != nil {
		return Round{}, fmt.Errorf("get round: %w", err)
	}

	var r Round
	if err := json.Unmarshal(data, &r); err != nil {
		return Round{}, fmt.Errorf("decode round: %w", err)
	}
	return r, nil
}

func (s *RedisStore) PutRound(ctx context.Context, r Round) error {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	expected := r.Version
	r.Version = expected + 1
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode round: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, REDIS_KEY_ROUND).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expected != 0 {
				return ErrConflict
			}
		case err != nil:
			return err
		default:
			var cur Round
			if err := json.Unmarshal(stored, &cur); err != nil {
				return fmt.Errorf("decode stored round: %w", err)
			}
			if cur.Version != expected {
				return ErrConflict
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, REDIS_KEY_ROUND, data, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, REDIS_KEY_ROUND)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (s *RedisStore) PopForcedCrash(ctx context.Context) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	val, err := s.client.LPop(ctx, REDIS_KEY_FORCED_CRASHES).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("pop forced crash: %w", err)
	}

	v, err := strconv.ParseFloat(val, 64)
	if err != nil || v < 1 {
		return 0, false, nil
	}
	return v, true, nil
}

func (s *RedisStore) RequeueForcedCrash(ctx context.Context, v float64) error {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	return s.client.LPush(ctx, REDIS_KEY_FORCED_CRASHES, formatAmount(v)).Err()
}

func (s *RedisStore) SetForcedCrashes(ctx context.Context, vs []float64) error {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, REDIS_KEY_FORCED_CRASHES)
		for _, v := range vs {
			pipe.RPush(ctx, REDIS_KEY_FORCED_CRASHES, formatAmount(v))
		}
		return nil
	})
	return err
}

func (s *RedisStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, REDIS_KEY_HISTORY, data)
		pipe.LTrim(ctx, REDIS_KEY_HISTORY, 0, int64(s.historySize)-1)
		return nil
	})
	return err
}

func (s *RedisStore) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	if limit <= 0 || limit > s.historySize {
		limit = s.historySize
	}
	raw, err := s.client.LRange(ctx, REDIS_KEY_HISTORY, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry HistoryEntry
		if json.Unmarshal([]byte(item), &entry) == nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// RedisLedger keeps one balance key per player. Mutations ride IncrByFloat so
// concurrent settlements for different players never serialize on each other.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Balance(ctx context.Context, playerID string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	bal, err := l.client.Get(ctx, REDIS_KEY_BALANCE_PREFIX+playerID).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

func (l *RedisLedger) Debit(ctx context.Context, playerID string, amount float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	key := REDIS_KEY_BALANCE_PREFIX + playerID
	bal, err := l.client.Get(ctx, key).Float64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if bal < amount {
		return bal, ErrInsufficientBalance
	}

	newBal, err := l.client.IncrByFloat(ctx, key, -amount).Result()
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	if newBal < 0 {
		// Lost a race against another debit; undo.
		l.client.IncrByFloat(ctx, key, amount)
		return newBal + amount, ErrInsufficientBalance
	}
	return newBal, nil
}

func (l *RedisLedger) Credit(ctx context.Context, playerID string, amount float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	newBal, err := l.client.IncrByFloat(ctx, REDIS_KEY_BALANCE_PREFIX+playerID, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return newBal, nil
}

func (l *RedisLedger) SetBalance(ctx context.Context, playerID string, amount float64) error {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	return l.client.Set(ctx, REDIS_KEY_BALANCE_PREFIX+playerID, formatAmount(amount), 0).Err()
}

// RedisPublisher broadcasts events over Redis pub/sub so every instance's hub
// relays them, not just the instance that produced them.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, STORE_TIMEOUT)
	defer cancel()

	msg, err := json.Marshal(map[string]any{
		"event": event,
		"data":  payload,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.client.Publish(ctx, channel, msg).Err()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
