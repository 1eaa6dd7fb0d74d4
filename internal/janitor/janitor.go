package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Sweeper interface {
	Sweep(ctx context.Context, idleFor time.Duration) (int, error)
}

type Pruner interface {
	Prune(maxAge time.Duration) int
}

type Options struct {
	LobbyIdleTTL time.Duration
	RecordMaxAge time.Duration
	SweepSpec    string
	PruneSpec    string
}

type Janitor struct {
	lobbies Sweeper
	ledger  Pruner // nil when records live in redis
	opts    Options
	log     *zap.Logger
	cron    *cron.Cron
}

func New(lobbies Sweeper, ledger Pruner, opts Options, log *zap.Logger) *Janitor {
	if opts.LobbyIdleTTL <= 0 {
		opts.LobbyIdleTTL = 2 * time.Hour
	}
	if opts.RecordMaxAge <= 0 {
		opts.RecordMaxAge = 24 * time.Hour
	}
	if opts.SweepSpec == "" {
		opts.SweepSpec = "@every 5m"
	}
	if opts.PruneSpec == "" {
		opts.PruneSpec = "@hourly"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{lobbies: lobbies, ledger: ledger, opts: opts, log: log.Named("janitor"), cron: cron.New()}
}

// Start schedules the jobs. Stop must be called to end them.
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.opts.SweepSpec, func() { j.SweepLobbies(ctx) }); err != nil {
		return err
	}
	if j.ledger != nil {
		if _, err := j.cron.AddFunc(j.opts.PruneSpec, j.PruneRecords); err != nil {
			return err
		}
	}
	j.cron.Start()
	return nil
}

// Stop waits for any running job to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) SweepLobbies(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := j.lobbies.Sweep(ctx, j.opts.LobbyIdleTTL)
	if err != nil {
		j.log.Error("lobby sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Info("idle lobbies removed", zap.Int("count", n))
	}
}

func (j *Janitor) PruneRecords() {
	if n := j.ledger.Prune(j.opts.RecordMaxAge); n > 0 {
		j.log.Info("finalization records pruned", zap.Int("count", n))
	}
}
