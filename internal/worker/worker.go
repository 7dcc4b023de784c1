package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbit-saas/settings-backend/internal/history"
	"github.com/orbit-saas/settings-backend/pkg/queue"
)

// ScheduleInterval is how often the processor enqueues a full retention
// sweep when scheduling is enabled.
const ScheduleInterval = 24 * time.Hour

// OrgLister enumerates organizations that have history rows, for
// unscoped cleanup jobs.
type OrgLister interface {
	ListOrganizationsWithHistory(ctx context.Context) ([]uuid.UUID, error)
}

// RetentionProcessor consumes retention cleanup jobs and deletes history
// rows that fall outside every retention rule.
type RetentionProcessor struct {
	svc    *history.Service
	orgs   OrgLister
	queue  *queue.Queue
	logger *zap.Logger
}

// NewRetentionProcessor creates a retention cleanup processor.
func NewRetentionProcessor(svc *history.Service, orgs OrgLister, q *queue.Queue, logger *zap.Logger) *RetentionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionProcessor{svc: svc, orgs: orgs, queue: q, logger: logger}
}

// Process executes one retention cleanup job. A job without an
// organization ID sweeps every organization with history.
func (p *RetentionProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRetentionCleanup {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RetentionCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if payload.OrganizationID != nil {
		return p.cleanupOrg(ctx, *payload.OrganizationID, payload.VerticalID)
	}

	orgIDs, err := p.orgs.ListOrganizationsWithHistory(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	for _, orgID := range orgIDs {
		if err := p.cleanupOrg(ctx, orgID, payload.VerticalID); err != nil {
			// one bad tenant should not abort the sweep
			p.logger.Error("cleanup failed", zap.String("organization_id", orgID.String()), zap.Error(err))
		}
	}
	return nil
}

func (p *RetentionProcessor) cleanupOrg(ctx context.Context, orgID uuid.UUID, verticalID string) error {
	results, err := p.svc.Cleanup(ctx, orgID, verticalID)
	if err != nil {
		return err
	}
	deleted := 0
	for _, r := range results {
		deleted += r.Deleted
	}
	if deleted > 0 {
		p.logger.Info("retention cleanup completed",
			zap.String("organization_id", orgID.String()),
			zap.Int("deleted", deleted))
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *RetentionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("retention worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// RunScheduler enqueues an unscoped sweep every ScheduleInterval until ctx
// is done. Runs alongside Run in the worker binary.
func (p *RetentionProcessor) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(ScheduleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.EnqueueRetentionCleanup(ctx, queue.RetentionCleanupPayload{}); err != nil {
				p.logger.Error("schedule sweep failed", zap.Error(err))
			}
		}
	}
}
