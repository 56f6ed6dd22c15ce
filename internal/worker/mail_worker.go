package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"campusrides/internal/database"
	"campusrides/internal/domain"
	"campusrides/internal/metrics"
	"campusrides/internal/models"
)

// MailWorker drains the mail_outbox table and delivers booking emails.
// Tasks are persisted first, then scheduled through Redis or the in-memory
// queue; the periodic outbox poll picks up anything both paths lost, so a
// restart never drops an email.
type MailWorker struct {
	db            *database.DB
	mailer        domain.Mailer
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.MailTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewMailWorker(db *database.DB, mailer domain.Mailer, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *MailWorker {
	retry = retry.normalized()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &MailWorker{
		db:            db,
		mailer:        mailer,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.MailTask, models.WorkerQueueSize),
		redisQueueKey: "mail:queue",
		deadLetterKey: "mail:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueMail persists the task to the outbox and schedules it via redis or
// the in-memory queue. Implements domain.MailEnqueuer.
func (w *MailWorker) EnqueueMail(ctx context.Context, taskType string, bookingID int64, details domain.MailDetails) error {
	switch taskType {
	case models.MailBookingReceipt, models.MailBookingConfirmation, models.MailBookingRejection:
	default:
		return fmt.Errorf("unknown mail task type: %s", taskType)
	}
	if bookingID == 0 {
		return errors.New("booking id is required")
	}
	if details.RiderEmail == "" {
		return errors.New("rider email is required")
	}

	payloadBytes, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.MailTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(payloadBytes),
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	if err := w.db.CreateMailTask(ctx, &task); err != nil {
		return fmt.Errorf("persist mail task: %w", err)
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("mail_worker: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("mail_worker: in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *MailWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("mail_worker: started")
	defer w.logger.Info().Msg("mail_worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingMailTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("mail_worker: fetch pending")
			time.Sleep(w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *MailWorker) tryLocalQueue() (models.MailTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.MailTask{}, false
	}
}

func (w *MailWorker) tryRedis(ctx context.Context) (models.MailTask, bool) {
	if w.redis == nil {
		return models.MailTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.MailTask{}, false
		}
		w.logger.Error().Err(err).Msg("mail_worker: redis BRPOP error")
		return models.MailTask{}, false
	}
	if len(res) != 2 {
		return models.MailTask{}, false
	}
	var task models.MailTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("mail_worker: decode redis task")
		return models.MailTask{}, false
	}
	return task, true
}

func (w *MailWorker) processTask(ctx context.Context, task *models.MailTask) {
	var details domain.MailDetails
	if err := json.Unmarshal([]byte(task.Payload), &details); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.deliver(ctx, task.TaskType, details); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncMail("sent")
	if err := w.db.UpdateMailTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mail_worker: mark completed")
	}
}

func (w *MailWorker) deliver(ctx context.Context, taskType string, details domain.MailDetails) error {
	switch taskType {
	case models.MailBookingReceipt:
		return w.mailer.SendBookingReceipt(ctx, details)
	case models.MailBookingConfirmation:
		return w.mailer.SendBookingConfirmation(ctx, details)
	case models.MailBookingRejection:
		return w.mailer.SendBookingRejection(ctx, details)
	default:
		return fmt.Errorf("unknown mail task type: %s", taskType)
	}
}

func (w *MailWorker) retryOrFail(ctx context.Context, task *models.MailTask, cause error) {
	attempt := int(task.RetryCount) + 1
	if attempt >= w.retryPolicy.MaxRetries {
		metrics.IncMail("failed")
		if err := w.db.UpdateMailTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mail_worker: mark failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateMailTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mail_worker: mark retry")
	}
}

func (w *MailWorker) failTask(ctx context.Context, task *models.MailTask, cause error) {
	metrics.IncMail("failed")
	if err := w.db.UpdateMailTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mail_worker: mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *MailWorker) pushRedis(ctx context.Context, task models.MailTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *MailWorker) pushDeadLetter(ctx context.Context, task *models.MailTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mail_worker: encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mail_worker: deadletter push")
	}
}
