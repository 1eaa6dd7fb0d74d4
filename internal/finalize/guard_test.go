package finalize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/codelobby/internal/scoring"
	"github.com/DoyleJ11/codelobby/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	subs      []scoring.Submission
	winner    string
	finalized bool
	recorded  int
	losers    []string
	recordErr error
	delay     time.Duration
	// wonElsewhere makes RecordResult lose the race to another writer that
	// records this winner.
	wonElsewhere string
}

func (f *fakeStore) GameResult(context.Context, int) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.winner, f.finalized, nil
}

func (f *fakeStore) CountSubmitters(context.Context, int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	for _, s := range f.subs {
		seen[s.Username] = true
	}
	return len(seen), nil
}

func (f *fakeStore) GameSubmissions(context.Context, int) ([]scoring.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scoring.Submission(nil), f.subs...), nil
}

func (f *fakeStore) RecordResult(_ context.Context, _ int, winner string, losers []string) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	if f.wonElsewhere != "" {
		f.finalized = true
		f.winner = f.wonElsewhere
	}
	if f.finalized {
		return store.ErrAlreadyFinalized
	}
	f.recorded++
	f.finalized = true
	f.winner = winner
	f.losers = losers
	return nil
}

type fakeRosters struct {
	mu      sync.Mutex
	names   []string
	cleared int
}

func (f *fakeRosters) InitialRoster(context.Context, int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...), nil
}

func (f *fakeRosters) ClearInitialRoster(context.Context, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = nil
	f.cleared++
	return nil
}

func threePlayers() []scoring.Submission {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []scoring.Submission{
		{Username: "A", Points: 500, SubmittedAt: t0},
		{Username: "B", Points: 0, SubmittedAt: t0.Add(time.Second)},
		{Username: "C", Points: 300, SubmittedAt: t0.Add(2 * time.Second)},
	}
}

func TestGuard_Finalize_RecordsWinnerAndLosers(t *testing.T) {
	st := &fakeStore{subs: threePlayers()}
	rosters := &fakeRosters{names: []string{"A", "B", "C"}}
	g := NewGuard(NewMemoryLedger(), st, rosters, nil)

	out, err := g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusCompleted, Winner: "A"}, out)
	assert.Equal(t, []string{"C", "B"}, st.losers)
	assert.Equal(t, 1, rosters.cleared)

	again, err := g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusAlreadyCompleted, Winner: "A"}, again)
	assert.Equal(t, 1, st.recorded)
}

func TestGuard_Finalize_ConcurrentCallsScoreOnce(t *testing.T) {
	st := &fakeStore{subs: threePlayers(), delay: 20 * time.Millisecond}
	g := NewGuard(NewMemoryLedger(), st, &fakeRosters{names: []string{"A", "B", "C"}}, nil)

	const callers = 16
	var wg sync.WaitGroup
	outs := make([]Outcome, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = g.Finalize(context.Background(), 1, 10)
		}(i)
	}
	wg.Wait()

	completed := 0
	for i := range outs {
		require.NoError(t, errs[i])
		switch outs[i].Status {
		case StatusCompleted:
			completed++
			assert.Equal(t, "A", outs[i].Winner)
		case StatusInProgress:
		case StatusAlreadyCompleted:
			assert.Equal(t, "A", outs[i].Winner)
		default:
			t.Fatalf("unexpected outcome %+v", outs[i])
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, st.recorded)
}

func TestGuard_Finalize_IncompleteReleasesClaim(t *testing.T) {
	st := &fakeStore{subs: threePlayers()[:2]}
	rosters := &fakeRosters{names: []string{"A", "B", "C"}}
	g := NewGuard(NewMemoryLedger(), st, rosters, nil)

	out, err := g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusIncomplete, Submitted: 2, Expected: 3}, out)
	assert.Zero(t, st.recorded)

	st.mu.Lock()
	st.subs = threePlayers()
	st.mu.Unlock()

	out, err = g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
}

func TestGuard_Finalize_FailureReleasesClaim(t *testing.T) {
	boom := errors.New("db down")
	st := &fakeStore{subs: threePlayers(), recordErr: boom}
	g := NewGuard(NewMemoryLedger(), st, &fakeRosters{names: []string{"A", "B", "C"}}, nil)

	_, err := g.Finalize(context.Background(), 1, 10)
	assert.ErrorIs(t, err, boom)

	st.mu.Lock()
	st.recordErr = nil
	st.mu.Unlock()

	out, err := g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
}

func TestGuard_Finalize_NoParticipants(t *testing.T) {
	g := NewGuard(NewMemoryLedger(), &fakeStore{}, &fakeRosters{}, nil)

	_, err := g.Finalize(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrNoParticipants)
}

func TestGuard_Finalize_SubmittersWithoutRosterAreIncomplete(t *testing.T) {
	st := &fakeStore{subs: threePlayers()[:2]}
	g := NewGuard(NewMemoryLedger(), st, &fakeRosters{}, nil)

	out, err := g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusIncomplete, Submitted: 2, Expected: 0}, out)
	assert.Zero(t, st.recorded)
}

// flakyLedger fails the next `failures` Complete calls.
type flakyLedger struct {
	*MemoryLedger
	failures int
}

func (l *flakyLedger) Complete(ctx context.Context, gameID int, winner string) error {
	if l.failures > 0 {
		l.failures--
		return errors.New("ledger write failed")
	}
	return l.MemoryLedger.Complete(ctx, gameID, winner)
}

func TestGuard_Finalize_RetryAfterLedgerFailureClearsRoster(t *testing.T) {
	st := &fakeStore{subs: threePlayers()}
	rosters := &fakeRosters{names: []string{"A", "B", "C"}}
	g := NewGuard(&flakyLedger{MemoryLedger: NewMemoryLedger(), failures: 1}, st, rosters, nil)

	_, err := g.Finalize(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, 1, st.recorded, "result committed before the ledger write failed")
	assert.Zero(t, rosters.cleared)

	out, err := g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusAlreadyCompleted, Winner: "A"}, out)
	assert.Equal(t, 1, st.recorded)
	assert.Equal(t, 1, rosters.cleared)

	left, err := rosters.InitialRoster(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestGuard_Finalize_LostRaceClearsRoster(t *testing.T) {
	st := &fakeStore{subs: threePlayers(), wonElsewhere: "C"}
	rosters := &fakeRosters{names: []string{"A", "B", "C"}}
	g := NewGuard(NewMemoryLedger(), st, rosters, nil)

	out, err := g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusAlreadyCompleted, Winner: "C"}, out)
	assert.Zero(t, st.recorded)
	assert.Equal(t, 1, rosters.cleared)
}

func TestGuard_Finalize_TrustsDatabaseResult(t *testing.T) {
	st := &fakeStore{finalized: true, winner: "C"}
	ledger := NewMemoryLedger()
	rosters := &fakeRosters{names: []string{"A"}}
	g := NewGuard(ledger, st, rosters, nil)

	out, err := g.Finalize(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusAlreadyCompleted, Winner: "C"}, out)

	rec, ok, err := ledger.Acquire(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateCompleted, rec.State)
	assert.Equal(t, 1, rosters.cleared)
}

func TestMemoryLedger_ReleaseNeedsHolderToken(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	held, ok, err := l.Acquire(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, held.Token)

	other, ok, err := l.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, other.Token)

	require.NoError(t, l.Release(ctx, 1, "someone-else"))
	_, ok, err = l.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "a foreign token does not release the claim")

	require.NoError(t, l.Release(ctx, 1, held.Token))
	_, ok, err = l.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLedger_Prune(t *testing.T) {
	l := NewMemoryLedger()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Complete(ctx, 1, "A"))
	_, ok, err := l.Acquire(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(48 * time.Hour)
	assert.Equal(t, 1, l.Prune(24*time.Hour))

	_, ok, err = l.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "pruned record can be claimed again")
	_, ok, err = l.Acquire(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "in-progress claims are not pruned")
}
