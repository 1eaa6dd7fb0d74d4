package finalize

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

const rosterTTL = 24 * time.Hour

// RedisRosters keeps each lobby's InitialRoster in a Redis set, so a finalize
// request can be served by any process, not only the one hosting the lobby.
type RedisRosters struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRosters(rdb *redis.Client) *RedisRosters {
	return &RedisRosters{rdb: rdb, ttl: rosterTTL}
}

func rosterKey(lobbyID int) string { return fmt.Sprintf("lobby:%d:initial", lobbyID) }

// AddPlayer records that username joined lobbyID. Each join pushes the
// expiry forward.
func (r *RedisRosters) AddPlayer(ctx context.Context, lobbyID int, username string) error {
	k := rosterKey(lobbyID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, k, username)
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add player: %w", err)
	}
	return nil
}

func (r *RedisRosters) InitialRoster(ctx context.Context, lobbyID int) ([]string, error) {
	names, err := r.rdb.SMembers(ctx, rosterKey(lobbyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read initial roster: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisRosters) ClearInitialRoster(ctx context.Context, lobbyID int) error {
	if err := r.rdb.Del(ctx, rosterKey(lobbyID)).Err(); err != nil {
		return fmt.Errorf("clear initial roster: %w", err)
	}
	return nil
}

// Mirrored reads the InitialRoster from Shared and clears it in both Shared
// and Local, the in-process copy the lobby keeps for its own views.
type Mirrored struct {
	Shared Rosters
	Local  Rosters
}

func (m Mirrored) InitialRoster(ctx context.Context, lobbyID int) ([]string, error) {
	return m.Shared.InitialRoster(ctx, lobbyID)
}

func (m Mirrored) ClearInitialRoster(ctx context.Context, lobbyID int) error {
	return multierr.Append(
		m.Shared.ClearInitialRoster(ctx, lobbyID),
		m.Local.ClearInitialRoster(ctx, lobbyID),
	)
}
