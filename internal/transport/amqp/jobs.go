package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	domjob "github.com/kailas-cloud/supportgraph/internal/domain/job"
	"github.com/kailas-cloud/supportgraph/internal/logger"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
)

// JobRunner runs a pipeline job.
type JobRunner interface {
	Run(ctx context.Context, ids []string, opts domjob.Options) (*pipeline.Report, error)
}

// JobMessage is the body of a job request.
type JobMessage struct {
	EntityIDs []string       `json:"entity_ids"`
	Options   domjob.Options `json:"options"`
}

// NewJobHandler returns a Handler that runs one job per message.
//
// Only a completed job is acknowledged. A job fails as a whole when its
// batch could not be fetched or it was interrupted, both transient, so the
// error is returned and the consumer requeues the first delivery and
// dead-letters the second. Per-entity failures complete the job.
func NewJobHandler(runner JobRunner) Handler {
	return func(ctx context.Context, body []byte) error {
		var msg JobMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: decode body: %w", ErrPoison, err)
		}
		ids := make([]string, 0, len(msg.EntityIDs))
		for _, id := range msg.EntityIDs {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: no entity ids", ErrPoison)
		}

		log := logger.FromContext(ctx)
		report, err := runner.Run(ctx, ids, msg.Options)
		if err != nil {
			if report != nil {
				log.Warn("Job failed, message returned to the queue",
					zap.String("job_id", report.JobID.String()),
					zap.Error(err),
				)
			}
			return fmt.Errorf("run job: %w", err)
		}

		log.Info("Job message processed",
			zap.String("job_id", report.JobID.String()),
			zap.Int("entities", len(ids)),
			zap.Int("failed", report.Summary.Failed),
		)
		return nil
	}
}
