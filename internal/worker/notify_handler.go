package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"khedma/internal/database"
	"khedma/internal/tasks"
)

// publisher 抽象 Redis 的发布能力，便于测试替换。
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotifyTaskHandler 消费申请生命周期事件：落一条 Notification 记录，
// 并把消息发布到接收者的 Redis 频道，由 WebSocket 端转发。
type NotifyTaskHandler struct {
	db        *gorm.DB
	publisher publisher
	logger    *slog.Logger
}

// NewNotifyTaskHandler 创建通知任务处理器。
func NewNotifyTaskHandler(db *gorm.DB, pub publisher, logger *slog.Logger) *NotifyTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyTaskHandler{db: db, publisher: pub, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *NotifyTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.ApplicationEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("task_type", t.Type()),
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("application_id", uint64(payload.ApplicationID)),
	)

	var app database.Application
	err := h.db.WithContext(ctx).
		Preload("JobPosting").
		Preload("Candidate").
		First(&app, payload.ApplicationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 申请可能随职位级联删除，任务作废即可。
			log.Warn("application not found, skipping notification")
			return nil
		}
		log.Error("query application failed", slog.Any("error", err))
		return err
	}

	var (
		recipientID uint
		message     NotificationMessage
	)
	switch t.Type() {
	case tasks.TypeNotifyApplicationSubmitted:
		recipientID = app.JobPosting.EmployerID
		message = NotificationMessage{
			Type:          NotifyApplicationReceived,
			Title:         "New application received",
			Body:          fmt.Sprintf("%s applied to %q", app.Candidate.Name, app.JobPosting.Title),
			JobID:         app.JobPostingID,
			ApplicationID: app.ID,
			CorrelationID: payload.CorrelationID,
		}
	case tasks.TypeNotifyApplicationDecided:
		recipientID = app.CandidateID
		message = NotificationMessage{
			Type:          NotifyApplicationDecided,
			Title:         fmt.Sprintf("Application %s", app.Status),
			Body:          fmt.Sprintf("Your application to %q was %s", app.JobPosting.Title, app.Status),
			JobID:         app.JobPostingID,
			ApplicationID: app.ID,
			Status:        app.Status,
			CorrelationID: payload.CorrelationID,
		}
	default:
		log.Error("unexpected task type")
		return fmt.Errorf("unexpected task type %q", t.Type())
	}

	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification message: %w", err)
	}

	notification := database.Notification{
		UserID: recipientID,
		Type:   message.Type,
		Title:  message.Title,
		Body:   message.Body,
		Data:   datatypes.JSON(raw),
	}
	if err := h.db.WithContext(ctx).Create(&notification).Error; err != nil {
		log.Error("create notification failed", slog.Any("error", err))
		return err
	}

	// 记录已落库；推送失败只记日志，避免重试造成重复通知。
	channel := fmt.Sprintf("user_notify:%d", recipientID)
	if err := h.publisher.Publish(ctx, channel, raw).Err(); err != nil {
		log.Warn("publish notification failed",
			slog.String("channel", channel),
			slog.Any("error", err),
		)
		return nil
	}

	log.Info("notification delivered",
		slog.Uint64("recipient_id", uint64(recipientID)),
		slog.String("type", message.Type),
	)
	return nil
}
