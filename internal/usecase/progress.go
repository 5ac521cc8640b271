package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shelfmatch/backend/internal/domain"
)

// writeInterval throttles mid-stage progress writes. Stage boundaries and
// terminal states always write.
const writeInterval = 500 * time.Millisecond

// Tracker records stage, position, rate and ETA for one running job and
// persists each update durably. One instance per job run; the writes are
// throttled so hot loops stay cheap. Safe for concurrent updates from
// parallel workers within a stage.
type Tracker struct {
	jobID uuid.UUID
	store domain.ProgressStore
	log   *zap.Logger

	// now is swappable for tests.
	now func() time.Time

	mu         sync.Mutex
	stage      domain.Stage
	total      int
	current    int
	runStart   time.Time
	stageStart time.Time
	lastWrite  time.Time
}

// NewTracker builds a tracker for one job run.
func NewTracker(jobID uuid.UUID, store domain.ProgressStore, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		jobID: jobID,
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// StartStage resets position to zero for a new stage and always writes.
func (t *Tracker) StartStage(ctx context.Context, stage domain.Stage, total int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.total = total
	t.current = 0
	t.stageStart = t.now()
	t.lastWrite = time.Time{}
	if t.runStart.IsZero() {
		t.runStart = t.stageStart
	}
	t.log.Info("stage started",
		zap.String("job_id", t.jobID.String()),
		zap.String("stage", string(stage)),
		zap.Int("total", total))
	t.persist(ctx, message, true)
}

// Update records a new position within the current stage. Position never
// moves backwards except via StartStage. Writes are throttled.
func (t *Tracker) Update(ctx context.Context, current int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current > t.current {
		t.current = current
	}
	t.persist(ctx, message, false)
}

// CompleteStage marks the current stage finished and always writes.
func (t *Tracker) CompleteStage(ctx context.Context, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = t.total
	t.log.Info("stage complete",
		zap.String("job_id", t.jobID.String()),
		zap.String("stage", string(t.stage)))
	t.persist(ctx, message, true)
}

// Fail records the terminal failed state so pollers observe the failure
// rather than silence.
func (t *Tracker) Fail(ctx context.Context, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = domain.StageFailed
	t.log.Error("job failed",
		zap.String("job_id", t.jobID.String()),
		zap.String("error", message))
	t.persist(ctx, "Failed: "+message, true)
}

// Finish records the terminal completed state.
func (t *Tracker) Finish(ctx context.Context, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := t.now().Sub(t.runStart)
	t.stage = domain.StageCompleted
	t.total = 1
	t.current = 1
	t.log.Info("job complete",
		zap.String("job_id", t.jobID.String()),
		zap.Duration("elapsed", elapsed))
	t.persist(ctx, message, true)
}

// persist is called with t.mu held.
func (t *Tracker) persist(ctx context.Context, message string, force bool) {
	now := t.now()
	if !force && !t.lastWrite.IsZero() && now.Sub(t.lastWrite) < writeInterval {
		return
	}
	t.lastWrite = now

	var rate float64
	if elapsed := now.Sub(t.stageStart).Seconds(); elapsed > 0 && t.current > 0 {
		rate = float64(t.current) / elapsed
	}
	var eta int
	if rate > 0 && t.current < t.total {
		eta = int(float64(t.total-t.current) / rate)
	}

	if len(message) > 500 {
		message = message[:500]
	}

	err := t.store.SaveProgress(ctx, domain.Progress{
		JobID:      t.jobID,
		Stage:      t.stage,
		Current:    t.current,
		Total:      t.total,
		Rate:       rate,
		ETASeconds: eta,
		Message:    message,
		UpdatedAt:  now,
	})
	if err != nil {
		// Progress persistence failures must never fail the job.
		t.log.Warn("failed to persist progress",
			zap.String("job_id", t.jobID.String()),
			zap.Error(err))
	}
}
