package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	calls atomic.Int32
	idle  atomic.Int64
	err   error
}

func (f *fakeSweeper) Sweep(_ context.Context, idleFor time.Duration) (int, error) {
	f.calls.Add(1)
	f.idle.Store(int64(idleFor))
	return 2, f.err
}

type fakePruner struct{ maxAge time.Duration }

func (f *fakePruner) Prune(maxAge time.Duration) int {
	f.maxAge = maxAge
	return 1
}

func TestJanitor_JobsUseConfiguredAges(t *testing.T) {
	sw := &fakeSweeper{}
	pr := &fakePruner{}
	j := New(sw, pr, Options{LobbyIdleTTL: time.Minute}, zap.NewNop())

	j.SweepLobbies(context.Background())
	j.PruneRecords()

	assert.Equal(t, int32(1), sw.calls.Load())
	assert.Equal(t, int64(time.Minute), sw.idle.Load())
	assert.Equal(t, 24*time.Hour, pr.maxAge)
}

func TestJanitor_SweepErrorIsLogged(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("hub closed")}
	j := New(sw, nil, Options{}, zap.NewNop())
	j.SweepLobbies(context.Background())
	assert.Equal(t, int32(1), sw.calls.Load())
}

func TestJanitor_StartRunsSchedule(t *testing.T) {
	sw := &fakeSweeper{}
	j := New(sw, nil, Options{SweepSpec: "@every 1s"}, zap.NewNop())
	require.NoError(t, j.Start(context.Background()))
	defer j.Stop()

	assert.Eventually(t, func() bool { return sw.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestJanitor_BadSpec(t *testing.T) {
	j := New(&fakeSweeper{}, nil, Options{SweepSpec: "whenever"}, zap.NewNop())
	assert.Error(t, j.Start(context.Background()))
}
