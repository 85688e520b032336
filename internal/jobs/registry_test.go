package jobs

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndSnapshot(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Create("tok", "[INFO] first")
	r.AppendLog("tok", "[INFO] second")
	r.SetStage("tok", StageLanguageScan)

	j, ok := r.Snapshot("tok")
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, j.Status)
	assert.Equal(t, StageLanguageScan, j.Stage)
	assert.Equal(t, []string{"[INFO] first", "[INFO] second"}, j.Logs)

	// snapshots are detached from the live record
	j.Logs[0] = "mutated"
	again, _ := r.Snapshot("tok")
	assert.Equal(t, "[INFO] first", again.Logs[0])
}

func TestRegistry_PollUnknownToken(t *testing.T) {
	r := NewRegistry(time.Hour)
	j := r.Poll("nope")
	assert.Equal(t, StatusError, j.Status)
	assert.Equal(t, StageError, j.Stage)
	assert.Equal(t, []string{"[ERROR] Processing status not found. Token may have expired."}, j.Logs)
}

func TestRegistry_TTLSweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(time.Hour)
	r.now = func() time.Time { return now }

	r.Create("old", "[INFO] a")
	now = now.Add(30 * time.Minute)
	r.Create("fresh", "[INFO] b")

	now = now.Add(31 * time.Minute)
	assert.Equal(t, StatusError, r.Poll("old").Status)
	assert.Equal(t, StatusProcessing, r.Poll("fresh").Status)
	assert.ErrorIs(t, r.Cancel("old"), ErrNotActive, "flag goes with the swept job")

	now = now.Add(time.Hour)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, []string{notFoundLog}, r.Poll("fresh").Logs)
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry(0)
	assert.ErrorIs(t, r.Cancel("missing"), ErrNotActive)

	r.Create("tok", "[INFO] a")
	assert.False(t, r.IsCancelled("tok"))

	require.NoError(t, r.Cancel("tok"))
	assert.True(t, r.IsCancelled("tok"))
	j, _ := r.Snapshot("tok")
	assert.Equal(t, "[INFO] Cancellation requested...", j.Logs[len(j.Logs)-1])

	r.Release("tok")
	assert.False(t, r.IsCancelled("tok"))
	assert.ErrorIs(t, r.Cancel("tok"), ErrNotActive)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(time.Hour)
	const n = 50

	for i := 0; i < n; i++ {
		r.Create(fmt.Sprintf("t%d", i), "[INFO] start")
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		token := fmt.Sprintf("t%d", i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			for k := 0; k < 20; k++ {
				r.AppendLog(token, "[OK] step")
			}
		}()
		go func() {
			defer wg.Done()
			for k := 0; k < 20; k++ {
				_ = r.Poll(token)
				_ = r.IsCancelled(token)
			}
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = r.Cancel(token)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		token := fmt.Sprintf("t%d", i)
		assert.Equal(t, i%2 == 0, r.IsCancelled(token), token)
		j, _ := r.Snapshot(token)
		want := 21
		if i%2 == 0 {
			want++
		}
		assert.Len(t, j.Logs, want, token)
	}
}
