package scheduler

import (
	"context"
	"fmt"

	"telecrm_backend/platform/config"
	"telecrm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Reconciler replays a remote allocation into the local lead store.
type Reconciler interface {
	Reconcile(ctx context.Context, telecallerID uuid.UUID, leadIDs []uuid.UUID) (int, error)
}

// Worker consumes reconciliation tasks.
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	reconciler Reconciler
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, reconciler Reconciler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		reconciler: reconciler,
		log:        log,
	}

	mux.HandleFunc(TaskDistributionReconcile, w.handleDistributionReconcile)

	return w, nil
}

// handleDistributionReconcile applies one queued write-back group. The
// underlying update is conditional, so a group that already converged is a
// no-op and replays are safe.
func (w *Worker) handleDistributionReconcile(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDistributionReconcilePayload(task)
	if err != nil {
		return err
	}

	telecallerID, err := uuid.Parse(payload.TelecallerID)
	if err != nil {
		return err
	}

	leadIDs := make([]uuid.UUID, 0, len(payload.LeadIDs))
	for _, raw := range payload.LeadIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return err
		}
		leadIDs = append(leadIDs, id)
	}

	updated, err := w.reconciler.Reconcile(ctx, telecallerID, leadIDs)
	if err != nil {
		return err
	}

	w.log.Info("distribution reconcile applied",
		"telecallerId", telecallerID.String(),
		"leads", len(leadIDs), "updated", updated)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
