package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"khedma/internal/api/middleware"
	"khedma/internal/tasks"
)

// AsynqNotifier 把生命周期事件转换为 asynq 任务。
// 实现 applications.Notifier；入队失败由管理器记录日志，不影响主流程。
type AsynqNotifier struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewAsynqNotifier 构造通知入队器。
func NewAsynqNotifier(client *asynq.Client, logger *slog.Logger) *AsynqNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqNotifier{client: client, logger: logger}
}

func (n *AsynqNotifier) ApplicationSubmitted(ctx context.Context, applicationID uint) error {
	task, err := tasks.NewApplicationSubmittedTask(applicationID, middleware.CorrelationIDFromContext(ctx))
	if err != nil {
		return fmt.Errorf("build submitted task: %w", err)
	}
	if _, err := n.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue submitted task: %w", err)
	}
	return nil
}

func (n *AsynqNotifier) ApplicationDecided(ctx context.Context, applicationID uint) error {
	task, err := tasks.NewApplicationDecidedTask(applicationID, middleware.CorrelationIDFromContext(ctx))
	if err != nil {
		return fmt.Errorf("build decided task: %w", err)
	}
	if _, err := n.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue decided task: %w", err)
	}
	return nil
}
