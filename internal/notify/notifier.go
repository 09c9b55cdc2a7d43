package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classtrack/attendance-api/internal/models"
	"github.com/classtrack/attendance-api/pkg/config"
	"github.com/classtrack/attendance-api/pkg/jobs"
)

// RecordedEvent describes one committed attendance mark.
type RecordedEvent struct {
	StudentID int64
	Date      time.Time
	Status    models.AttendanceStatus
}

// Notifier receives post-commit attendance events. Delivery is
// best-effort; implementations must never fail the caller.
type Notifier interface {
	Recorded(event RecordedEvent)
}

// QueueNotifier hands events to a background queue whose workers write
// one structured log line per recorded mark.
type QueueNotifier struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewQueueNotifier constructs the notifier and its backing queue.
func NewQueueNotifier(cfg config.NotifyConfig, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &QueueNotifier{logger: logger}
	n.queue = jobs.NewQueue("attendance-recorded", n.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
	return n
}

// Start launches the queue workers.
func (n *QueueNotifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains the workers.
func (n *QueueNotifier) Stop() {
	n.queue.Stop()
}

// Recorded enqueues the event. A stopped or full queue only logs; the
// write path is never affected.
func (n *QueueNotifier) Recorded(event RecordedEvent) {
	err := n.queue.TryEnqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "attendance.recorded",
		Payload: event,
	})
	if err != nil {
		n.logger.Warn("dropping attendance notification", zap.Error(err))
	}
}

func (n *QueueNotifier) handle(_ context.Context, job jobs.Job) error {
	event, ok := job.Payload.(RecordedEvent)
	if !ok {
		return nil
	}
	n.logger.Info("attendance recorded",
		zap.Int64("student_id", event.StudentID),
		zap.String("date", event.Date.Format("2006-01-02")),
		zap.String("status", string(event.Status)),
	)
	return nil
}
