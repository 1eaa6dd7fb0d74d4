package finalize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	inProgressPrefix = "in-progress:"
	completedPrefix  = "completed:"
)

// releaseScript deletes the key only while it still holds the caller's own
// in-progress claim, so a release never clobbers a completed record or a
// newer holder's claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLedger shares finalization records between server processes. An
// in-progress claim expires after lockTTL in case its holder dies.
type RedisLedger struct {
	rdb          *redis.Client
	lockTTL      time.Duration
	completedTTL time.Duration
}

func NewRedisLedger(rdb *redis.Client, lockTTL time.Duration) *RedisLedger {
	return &RedisLedger{rdb: rdb, lockTTL: lockTTL, completedTTL: 24 * time.Hour}
}

func key(gameID int) string { return fmt.Sprintf("finalize:%d", gameID) }

func (l *RedisLedger) Acquire(ctx context.Context, gameID int) (Record, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key(gameID), inProgressPrefix+token, l.lockTTL).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("acquire finalize lock: %w", err)
	}
	if ok {
		return Record{State: StateInProgress, Token: token, At: time.Now()}, true, nil
	}

	val, err := l.rdb.Get(ctx, key(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as still busy
		return Record{State: StateInProgress}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read finalize lock: %w", err)
	}
	return parseRecord(val), false, nil
}

func (l *RedisLedger) Release(ctx context.Context, gameID int, token string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{key(gameID)}, inProgressPrefix+token).Err(); err != nil {
		return fmt.Errorf("release finalize lock: %w", err)
	}
	return nil
}

func (l *RedisLedger) Complete(ctx context.Context, gameID int, winner string) error {
	if err := l.rdb.Set(ctx, key(gameID), completedPrefix+winner, l.completedTTL).Err(); err != nil {
		return fmt.Errorf("complete finalize record: %w", err)
	}
	return nil
}

func parseRecord(val string) Record {
	if winner, ok := strings.CutPrefix(val, completedPrefix); ok {
		return Record{State: StateCompleted, Winner: winner}
	}
	return Record{State: StateInProgress}
}
