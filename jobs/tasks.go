package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/finbatch/internal/dispatch"
	"github.com/odyssey-erp/finbatch/internal/feedback"
	jobmetrics "github.com/odyssey-erp/finbatch/internal/jobs"
	"github.com/odyssey-erp/finbatch/internal/platform/cache"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskPartnerDistribution builds the partner disbursement journal files.
	TaskPartnerDistribution = "cgi:partner-distribution"
	// TaskGovPayment builds the government account payment journal files.
	TaskGovPayment = "cgi:gov-payment"
	// TaskEFTTransfer builds the EFT holding account transfer files.
	TaskEFTTransfer = "cgi:eft-transfer"
	// TaskAPRefund builds the accounts payable refund files.
	TaskAPRefund = "cgi:ap-refund"
	// TaskFeedbackPoll drains the inbound feedback folder.
	TaskFeedbackPoll = "cgi:feedback-poll"
)

// lockTTL bounds how long a crashed runner can hold a job lock.
const lockTTL = 30 * time.Minute

// Tasks binds the batch services to their Asynq handlers.
type Tasks struct {
	dispatch        *dispatch.Service
	feedback        *feedback.Service
	transport       feedback.ListerMover
	redis           *redis.Client
	metrics         *jobmetrics.Metrics
	processedFolder string
	log             *slog.Logger
}

// NewTasks constructs the task set.
func NewTasks(dispatchSvc *dispatch.Service, feedbackSvc *feedback.Service, transport feedback.ListerMover, redisClient *redis.Client, metrics *jobmetrics.Metrics, processedFolder string, log *slog.Logger) *Tasks {
	return &Tasks{
		dispatch:        dispatchSvc,
		feedback:        feedbackSvc,
		transport:       transport,
		redis:           redisClient,
		metrics:         metrics,
		processedFolder: processedFolder,
		log:             log,
	}
}

// withLock wraps a handler in a Redis single-runner guard. An overlapping
// tick skips the run rather than batching the same candidates twice.
func (t *Tasks) withLock(taskType string, fn func(context.Context) error) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		lock, ok, err := cache.AcquireLock(ctx, t.redis, "lock:"+taskType, uuid.NewString(), lockTTL)
		if err != nil {
			return err
		}
		if !ok {
			t.metrics.AddSkip(taskType)
			t.log.Info("job already running elsewhere, skipping", "task", taskType)
			return nil
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				t.log.Error("failed to release job lock", "task", taskType, "error", err)
			}
		}()
		return t.metrics.Track(taskType).End(fn(ctx))
	}
}

// Handlers returns the task handler registrations.
func (t *Tasks) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskPartnerDistribution, Handler: t.withLock(TaskPartnerDistribution, t.dispatch.RunPartnerDistribution)},
		{Type: TaskGovPayment, Handler: t.withLock(TaskGovPayment, t.dispatch.RunGovPayment)},
		{Type: TaskEFTTransfer, Handler: t.withLock(TaskEFTTransfer, t.dispatch.RunEFTTransfer)},
		{Type: TaskAPRefund, Handler: t.withLock(TaskAPRefund, t.dispatch.RunAPRefunds)},
		{Type: TaskFeedbackPoll, Handler: t.withLock(TaskFeedbackPoll, t.pollFeedback)},
	}
}

func (t *Tasks) pollFeedback(ctx context.Context) error {
	return t.feedback.Poll(ctx, t.transport, t.processedFolder)
}

// CronSchedule holds the cron expressions for the batch jobs. The outbound
// families run once per business day before the ministry pickup window; the
// feedback poll runs often since delivery times vary.
type CronSchedule struct {
	PartnerDistribution string
	GovPayment          string
	EFTTransfer         string
	APRefund            string
	FeedbackPoll        string
}

// DefaultCronSchedule mirrors the ministry interchange windows.
func DefaultCronSchedule() CronSchedule {
	return CronSchedule{
		PartnerDistribution: "0 8 * * *",
		GovPayment:          "15 8 * * *",
		EFTTransfer:         "30 8 * * *",
		APRefund:            "45 8 * * *",
		FeedbackPoll:        "*/10 * * * *",
	}
}

// Cron returns the scheduler registrations for the batch jobs.
func (t *Tasks) Cron(schedule CronSchedule) []CronRegistration {
	entries := []struct {
		spec     string
		taskType string
	}{
		{schedule.PartnerDistribution, TaskPartnerDistribution},
		{schedule.GovPayment, TaskGovPayment},
		{schedule.EFTTransfer, TaskEFTTransfer},
		{schedule.APRefund, TaskAPRefund},
		{schedule.FeedbackPoll, TaskFeedbackPoll},
	}

	regs := make([]CronRegistration, 0, len(entries))
	for _, e := range entries {
		regs = append(regs, CronRegistration{
			Spec:    e.spec,
			Task:    asynq.NewTask(e.taskType, nil),
			Options: []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(0)},
		})
	}
	return regs
}
