package finalize

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateInProgress State = "in-progress"
	StateCompleted  State = "completed"
)

// Record is the finalization state of one game. Token identifies the holder
// of an in-progress claim.
type Record struct {
	State  State
	Winner string
	Token  string
	At     time.Time
}

// Ledger is an atomic check-and-set over finalization records.
type Ledger interface {
	// Acquire claims gameID for finalization. When the game is already
	// claimed or completed, ok is false and the existing record is returned.
	Acquire(ctx context.Context, gameID int) (rec Record, ok bool, err error)
	// Release drops the in-progress claim identified by token so a later
	// call may retry. A claim held under another token is left alone.
	Release(ctx context.Context, gameID int, token string) error
	Complete(ctx context.Context, gameID int, winner string) error
}

type MemoryLedger struct {
	mu      sync.Mutex
	records map[int]Record
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[int]Record), now: time.Now}
}

func (l *MemoryLedger) Acquire(_ context.Context, gameID int) (Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[gameID]; ok {
		rec.Token = ""
		return rec, false, nil
	}
	rec := Record{State: StateInProgress, Token: uuid.NewString(), At: l.now()}
	l.records[gameID] = rec
	return rec, true, nil
}

func (l *MemoryLedger) Release(_ context.Context, gameID int, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[gameID]; ok && rec.State == StateInProgress && rec.Token == token {
		delete(l.records, gameID)
	}
	return nil
}

func (l *MemoryLedger) Complete(_ context.Context, gameID int, winner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[gameID] = Record{State: StateCompleted, Winner: winner, At: l.now()}
	return nil
}

// Prune forgets completed records older than maxAge and returns how many it
// dropped. The database keeps the durable result.
func (l *MemoryLedger) Prune(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxAge)
	n := 0
	for id, rec := range l.records {
		if rec.State == StateCompleted && rec.At.Before(cutoff) {
			delete(l.records, id)
			n++
		}
	}
	return n
}
