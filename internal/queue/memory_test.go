package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lakshayybhati/liftor-sub005/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestQueue(t *testing.T, maxRetries int) (*Memory, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewMemoryWithClock(maxRetries, clock.Now), clock
}

const (
	ownerA = "6a6f68f2-1111-4a5e-9f3b-000000000001"
	ownerB = "6a6f68f2-1111-4a5e-9f3b-000000000002"
)

func mustEnqueue(t *testing.T, q *Memory, owner, cycle string) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), owner, cycle, json.RawMessage(`{"goal":"strength"}`))
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	return id
}

func TestEnqueueRejectsDuplicateActiveJob(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()

	mustEnqueue(t, q, ownerA, "2026-W02")

	if _, err := q.Enqueue(ctx, ownerA, "2026-W02", nil); !errors.Is(err, domain.ErrDuplicateActiveJob) {
		t.Fatalf("duplicate enqueue error = %v, want ErrDuplicateActiveJob", err)
	}
	// A different cycle and a different owner are both fine.
	if _, err := q.Enqueue(ctx, ownerA, "2026-W03", nil); err != nil {
		t.Fatalf("enqueue for next cycle error: %v", err)
	}
	if _, err := q.Enqueue(ctx, ownerB, "2026-W02", nil); err != nil {
		t.Fatalf("enqueue for other owner error: %v", err)
	}
}

func TestEnqueueAllowedAfterTerminalJob(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()

	id := mustEnqueue(t, q, ownerA, "2026-W02")
	if ok, _ := q.Cancel(ctx, id, ownerA); !ok {
		t.Fatal("cancel should succeed on pending job")
	}
	if _, err := q.Enqueue(ctx, ownerA, "2026-W02", nil); err != nil {
		t.Fatalf("re-enqueue after terminal job error: %v", err)
	}
}

func TestClaimGrantsJobToExactlyOneWorker(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()
	mustEnqueue(t, q, ownerA, "2026-W02")

	const workers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			j, err := q.Claim(ctx, string(rune('a'+n%26))+"-worker", time.Minute)
			if errors.Is(err, domain.ErrNoJob) {
				return
			}
			if err != nil {
				t.Errorf("Claim error: %v", err)
				return
			}
			mu.Lock()
			wins = append(wins, j.ID)
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("claims granted = %d, want exactly 1", len(wins))
	}
}

func TestClaimRespectsUnexpiredLease(t *testing.T) {
	q, clock := newTestQueue(t, 3)
	ctx := context.Background()
	mustEnqueue(t, q, ownerA, "2026-W02")

	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("first claim error: %v", err)
	}
	// No heartbeat from worker-a, but the lease has not elapsed yet.
	if _, err := q.Claim(ctx, "worker-b", time.Minute); !errors.Is(err, domain.ErrNoJob) {
		t.Fatalf("claim before lease expiry error = %v, want ErrNoJob", err)
	}

	clock.Advance(61 * time.Second)
	j, err := q.Claim(ctx, "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("claim after lease expiry error: %v", err)
	}
	if j.WorkerID != "worker-b" {
		t.Fatalf("WorkerID = %q, want worker-b", j.WorkerID)
	}
}

func TestClaimIsFIFOByCreation(t *testing.T) {
	q, clock := newTestQueue(t, 3)
	ctx := context.Background()

	first := mustEnqueue(t, q, ownerA, "2026-W02")
	clock.Advance(time.Second)
	second := mustEnqueue(t, q, ownerB, "2026-W02")

	j, err := q.Claim(ctx, "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if j.ID != first {
		t.Fatalf("claimed %s, want oldest job %s", j.ID, first)
	}

	// A retried job keeps its original created_at, so it is not penalized
	// relative to the younger job.
	if ok, _ := q.Fail(ctx, first, "worker-a", domain.ErrCodeAITimeout, "timeout"); !ok {
		t.Fatal("fail should succeed")
	}
	j, err = q.Claim(ctx, "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("claim after requeue error: %v", err)
	}
	if j.ID != first {
		t.Fatalf("claimed %s after requeue, want %s before %s", j.ID, first, second)
	}
}

func TestHeartbeatAfterReclaimIsRejected(t *testing.T) {
	q, clock := newTestQueue(t, 3)
	ctx := context.Background()
	id := mustEnqueue(t, q, ownerA, "2026-W02")

	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if ok, err := q.Heartbeat(ctx, id, "worker-a", 1, json.RawMessage(`{"step":1}`), time.Minute); err != nil || !ok {
		t.Fatalf("heartbeat by owner = (%v, %v), want (true, nil)", ok, err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := q.Claim(ctx, "worker-b", time.Minute); err != nil {
		t.Fatalf("reclaim error: %v", err)
	}

	ok, err := q.Heartbeat(ctx, id, "worker-a", 2, json.RawMessage(`{"step":2}`), time.Minute)
	if err != nil {
		t.Fatalf("stale heartbeat error: %v", err)
	}
	if ok {
		t.Fatal("stale heartbeat should return false")
	}
	j, err := q.GetJob(ctx, id, ownerA)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if j.CheckpointPhase != 1 {
		t.Fatalf("CheckpointPhase = %d, stale heartbeat must not mutate", j.CheckpointPhase)
	}
	if j.WorkerID != "worker-b" {
		t.Fatalf("WorkerID = %q, want worker-b", j.WorkerID)
	}
}

func TestCrashedWorkerCheckpointSurvivesReclaim(t *testing.T) {
	q, clock := newTestQueue(t, 3)
	ctx := context.Background()
	id := mustEnqueue(t, q, ownerA, "2026-W02")

	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if ok, _ := q.Heartbeat(ctx, id, "worker-a", 2, json.RawMessage(`{"split":"upper-lower"}`), time.Minute); !ok {
		t.Fatal("heartbeat should succeed")
	}
	// worker-a crashes: no further heartbeats.
	clock.Advance(2 * time.Minute)

	j, err := q.Claim(ctx, "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("reclaim error: %v", err)
	}
	if j.ID != id {
		t.Fatalf("reclaimed %s, want %s", j.ID, id)
	}
	if j.CheckpointPhase != 2 {
		t.Fatalf("CheckpointPhase = %d, want 2", j.CheckpointPhase)
	}
	if string(j.CheckpointData) != `{"split":"upper-lower"}` {
		t.Fatalf("CheckpointData = %s", j.CheckpointData)
	}
}

func TestFailRetriesThenTerminal(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	ctx := context.Background()
	id := mustEnqueue(t, q, ownerA, "2026-W02")

	wantRetries := []int{1, 2}
	for attempt, want := range wantRetries {
		if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
			t.Fatalf("claim %d error: %v", attempt+1, err)
		}
		if ok, _ := q.Fail(ctx, id, "worker-a", domain.ErrCodeRateLimited, "provider throttled"); !ok {
			t.Fatalf("fail %d should succeed", attempt+1)
		}
		j, _ := q.GetJob(ctx, id, ownerA)
		if j.Status != domain.JobStatusPending {
			t.Fatalf("attempt %d: status = %s, want pending", attempt+1, j.Status)
		}
		if j.RetryCount != want {
			t.Fatalf("attempt %d: RetryCount = %d, want %d", attempt+1, j.RetryCount, want)
		}
		if j.StartedAt != nil {
			t.Fatalf("attempt %d: StartedAt should be cleared on requeue", attempt+1)
		}
	}

	// Third failure exhausts the budget.
	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("final claim error: %v", err)
	}
	if ok, _ := q.Fail(ctx, id, "worker-a", domain.ErrCodeRateLimited, "provider throttled"); !ok {
		t.Fatal("final fail should succeed")
	}
	j, _ := q.GetJob(ctx, id, ownerA)
	if j.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if j.ErrorCode != domain.ErrCodeMaxRetriesExceeded {
		t.Fatalf("ErrorCode = %s, want max_retries_exceeded", j.ErrorCode)
	}
	if j.RetryCount != 2 {
		t.Fatalf("RetryCount = %d, must never exceed MaxRetries", j.RetryCount)
	}
	if j.CompletedAt == nil {
		t.Fatal("CompletedAt should be set on terminal failure")
	}
}

func TestFailWithNonRetryableCodeIsTerminal(t *testing.T) {
	q, _ := newTestQueue(t, 5)
	ctx := context.Background()
	id := mustEnqueue(t, q, ownerA, "2026-W02")

	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if ok, _ := q.Fail(ctx, id, "worker-a", domain.ErrCodeUserCancelled, "cancelled"); !ok {
		t.Fatal("fail should succeed")
	}
	j, _ := q.GetJob(ctx, id, ownerA)
	if j.Status != domain.JobStatusFailed || j.ErrorCode != domain.ErrCodeUserCancelled {
		t.Fatalf("got (%s, %s), want terminal user_cancelled despite remaining budget", j.Status, j.ErrorCode)
	}
}

func TestCompleteAndFailAreIdempotent(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()
	id := mustEnqueue(t, q, ownerA, "2026-W02")

	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if ok, _ := q.Complete(ctx, id, "worker-a", "plans/2026-W02.json"); !ok {
		t.Fatal("complete should succeed")
	}
	if ok, _ := q.Complete(ctx, id, "worker-a", "plans/other.json"); ok {
		t.Fatal("second complete should be a no-op returning false")
	}
	if ok, _ := q.Fail(ctx, id, "worker-a", domain.ErrCodeUnknown, "late failure"); ok {
		t.Fatal("fail after completion should be a no-op returning false")
	}
	j, _ := q.GetJob(ctx, id, ownerA)
	if j.ResultReference != "plans/2026-W02.json" {
		t.Fatalf("ResultReference = %q, must keep first completion", j.ResultReference)
	}
	if j.WorkerID != "" || j.LockExpiresAt != nil {
		t.Fatal("lock fields should be cleared on completion")
	}
}

func TestCompleteByStaleWorkerIsRejected(t *testing.T) {
	q, clock := newTestQueue(t, 3)
	ctx := context.Background()
	id := mustEnqueue(t, q, ownerA, "2026-W02")

	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := q.Claim(ctx, "worker-b", time.Minute); err != nil {
		t.Fatalf("reclaim error: %v", err)
	}

	if ok, _ := q.Complete(ctx, id, "worker-a", "plans/stale.json"); ok {
		t.Fatal("stale worker must not complete a reclaimed job")
	}
	if ok, _ := q.Complete(ctx, id, "worker-b", "plans/fresh.json"); !ok {
		t.Fatal("current owner should complete the job")
	}
}

func TestCancelStates(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()

	pending := mustEnqueue(t, q, ownerA, "2026-W02")
	if ok, _ := q.Cancel(ctx, pending, ownerA); !ok {
		t.Fatal("cancel on pending job should succeed")
	}
	j, _ := q.GetJob(ctx, pending, ownerA)
	if j.Status != domain.JobStatusFailed || j.ErrorCode != domain.ErrCodeUserCancelled {
		t.Fatalf("got (%s, %s), want failed/user_cancelled", j.Status, j.ErrorCode)
	}

	processing := mustEnqueue(t, q, ownerA, "2026-W03")
	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if ok, _ := q.Cancel(ctx, processing, ownerA); !ok {
		t.Fatal("cancel on processing job should succeed")
	}

	done := mustEnqueue(t, q, ownerA, "2026-W04")
	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if ok, _ := q.Complete(ctx, done, "worker-a", "plans/done.json"); !ok {
		t.Fatal("complete should succeed")
	}
	if ok, _ := q.Cancel(ctx, done, ownerA); ok {
		t.Fatal("cancel on completed job must fail")
	}

	// Only the owner may cancel.
	other := mustEnqueue(t, q, ownerB, "2026-W02")
	if ok, _ := q.Cancel(ctx, other, ownerA); ok {
		t.Fatal("cancel by a different owner must fail")
	}
}

func TestResetIfStuckHonorsGracePeriod(t *testing.T) {
	q, clock := newTestQueue(t, 1)
	ctx := context.Background()
	id := mustEnqueue(t, q, ownerA, "2026-W02")

	if _, err := q.Claim(ctx, "worker-a", 10*time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}

	clock.Advance(10 * time.Second)
	if ok, _ := q.ResetIfStuck(ctx, id, ownerA, 5*time.Minute); ok {
		t.Fatal("reset within the grace period must be rejected")
	}

	clock.Advance(5 * time.Minute)
	if ok, _ := q.ResetIfStuck(ctx, id, ownerA, 5*time.Minute); !ok {
		t.Fatal("reset past the grace period should succeed")
	}
	j, _ := q.GetJob(ctx, id, ownerA)
	if j.Status != domain.JobStatusPending || j.RetryCount != 1 || j.ErrorCode != domain.ErrCodeClientReset {
		t.Fatalf("got (%s, %d, %s), want pending/1/client_reset", j.Status, j.RetryCount, j.ErrorCode)
	}

	// Budget is now spent: the next reset is terminal.
	if _, err := q.Claim(ctx, "worker-b", 10*time.Minute); err != nil {
		t.Fatalf("reclaim error: %v", err)
	}
	clock.Advance(6 * time.Minute)
	if ok, _ := q.ResetIfStuck(ctx, id, ownerA, 5*time.Minute); !ok {
		t.Fatal("terminal reset should succeed")
	}
	j, _ = q.GetJob(ctx, id, ownerA)
	if j.Status != domain.JobStatusFailed || j.ErrorCode != domain.ErrCodeMaxRetriesExceeded {
		t.Fatalf("got (%s, %s), want failed/max_retries_exceeded", j.Status, j.ErrorCode)
	}
}

func TestResetIfStuckRequiresProcessing(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()
	id := mustEnqueue(t, q, ownerA, "2026-W02")

	if ok, _ := q.ResetIfStuck(ctx, id, ownerA, 0); ok {
		t.Fatal("reset on a pending job must fail")
	}
}

func TestGetActiveJobReturnsMostRecent(t *testing.T) {
	q, clock := newTestQueue(t, 3)
	ctx := context.Background()

	s, err := q.GetActiveJob(ctx, ownerA)
	if err != nil || s != nil {
		t.Fatalf("GetActiveJob on empty queue = (%v, %v), want (nil, nil)", s, err)
	}

	old := mustEnqueue(t, q, ownerA, "2026-W02")
	if ok, _ := q.Cancel(ctx, old, ownerA); !ok {
		t.Fatal("cancel should succeed")
	}
	clock.Advance(time.Hour)
	current := mustEnqueue(t, q, ownerA, "2026-W03")

	s, err = q.GetActiveJob(ctx, ownerA)
	if err != nil {
		t.Fatalf("GetActiveJob error: %v", err)
	}
	if s == nil || s.ID != current {
		t.Fatalf("GetActiveJob = %+v, want job %s", s, current)
	}
	if s.Status != domain.JobStatusPending {
		t.Fatalf("Status = %s, want pending", s.Status)
	}
}

func TestSweepDeletesOnlyOldTerminalJobs(t *testing.T) {
	q, clock := newTestQueue(t, 3)
	ctx := context.Background()

	oldDone := mustEnqueue(t, q, ownerA, "2026-W02")
	if _, err := q.Claim(ctx, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if ok, _ := q.Complete(ctx, oldDone, "worker-a", "plans/w02.json"); !ok {
		t.Fatal("complete should succeed")
	}

	clock.Advance(8 * 24 * time.Hour)

	recentFailed := mustEnqueue(t, q, ownerA, "2026-W03")
	if ok, _ := q.Cancel(ctx, recentFailed, ownerA); !ok {
		t.Fatal("cancel should succeed")
	}
	active := mustEnqueue(t, q, ownerB, "2026-W03")

	n, err := q.Sweep(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep error: %v", err)
	}
	if n != 1 {
		t.Fatalf("Sweep deleted %d rows, want 1", n)
	}
	if _, err := q.GetJob(ctx, oldDone, ownerA); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("old terminal job should be gone")
	}
	if _, err := q.GetJob(ctx, recentFailed, ownerA); err != nil {
		t.Fatal("recent terminal job should survive the sweep")
	}
	if _, err := q.GetJob(ctx, active, ownerB); err != nil {
		t.Fatal("active job should survive the sweep")
	}
}
