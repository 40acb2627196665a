package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides Redis-backed coordination state: the per-user
// open-session pointer, aggregate counters and the weekly leaderboard.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks Redis connectivity
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Open-session pointer

// AcquireOpenSession claims the per-user open-session slot for the
// given session ID. The SETNX semantics guarantee that two concurrent
// ad requests for one user cannot both succeed. The TTL is a safety
// net: it outlives the session deadline so the sweeper normally
// releases the slot first.
func (c *Cache) AcquireOpenSession(ctx context.Context, userID, sessionID string, ttl time.Duration) (bool, error) {
	key := openSessionKey(userID)
	ok, err := c.client.SetNX(ctx, key, sessionID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire open session: %w", err)
	}
	return ok, nil
}

// GetOpenSession returns the user's open session ID, or "" when none
func (c *Cache) GetOpenSession(ctx context.Context, userID string) (string, error) {
	val, err := c.client.Get(ctx, openSessionKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get open session: %w", err)
	}
	return val, nil
}

// ReleaseOpenSession clears the user's open-session slot, but only if
// it still points at the given session. A slot already re-acquired by
// a newer session must not be released by a stale terminal report.
func (c *Cache) ReleaseOpenSession(ctx context.Context, userID, sessionID string) error {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
	err := c.client.Eval(ctx, script, []string{openSessionKey(userID)}, sessionID).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release open session: %w", err)
	}
	return nil
}

func openSessionKey(userID string) string {
	return fmt.Sprintf("adsession:open:%s", userID)
}

// Leaderboard

// leaderboardKey buckets scores by ISO week
func leaderboardKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("leaderboard:rewards:%d-%02d", year, week)
}

// AddLeaderboardPoints adds credited points to the current week's board
func (c *Cache) AddLeaderboardPoints(ctx context.Context, userID string, points int64, at time.Time) error {
	key := leaderboardKey(at)

	pipe := c.client.TxPipeline()
	pipe.ZIncrBy(ctx, key, float64(points), userID)
	// Keep two weeks so the board survives the week rollover
	pipe.Expire(ctx, key, 14*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update leaderboard: %w", err)
	}

	return nil
}

// LeaderboardEntry is one ranked row of the weekly leaderboard
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
}

// TopEarners returns the top-n users by credited points this week
func (c *Cache) TopEarners(ctx context.Context, at time.Time, n int64) ([]LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey(at), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	for i, z := range results {
		userID, _ := z.Member.(string)
		entries = append(entries, LeaderboardEntry{
			Rank:   i + 1,
			UserID: userID,
			Points: int64(z.Score),
		})
	}

	return entries, nil
}

// Stats counters

// IncrementStat increments an aggregate counter
func (c *Cache) IncrementStat(ctx context.Context, stat string, delta int64) error {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.IncrBy(ctx, key, delta).Err()
}

// GetStat retrieves an aggregate counter; missing counters read as 0
func (c *Cache) GetStat(ctx context.Context, stat string) (int64, error) {
	key := fmt.Sprintf("stats:%s", stat)
	val, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
