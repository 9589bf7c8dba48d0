package applications

import (
	"context"
	"log/slog"

	"khedma/internal/apperr"
	"khedma/internal/auth"
	"khedma/internal/database"
)

// Notifier 在状态变更成功后被通知。实现方负责投递（入队、推送等）；
// 投递失败不会回滚申请状态，管理器只记录日志。
type Notifier interface {
	ApplicationSubmitted(ctx context.Context, applicationID uint) error
	ApplicationDecided(ctx context.Context, applicationID uint) error
}

// NopNotifier 丢弃所有通知，测试与 admin CLI 使用。
type NopNotifier struct{}

func (NopNotifier) ApplicationSubmitted(context.Context, uint) error { return nil }
func (NopNotifier) ApplicationDecided(context.Context, uint) error   { return nil }

// Manager 执行申请生命周期的全部前置校验与状态转换：
// 角色、职位存在性、(求职者, 职位) 唯一性、经由职位的归属校验。
// 所有校验先于任何写入，失败时不会留下部分状态。
type Manager struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger

	// allowRedecision 控制已决定的申请能否被改判（accepted/rejected 互换）。
	allowRedecision bool
}

// NewManager 构造生命周期管理器。
func NewManager(store Store, notifier Notifier, logger *slog.Logger, allowRedecision bool) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:           store,
		notifier:        notifier,
		logger:          logger,
		allowRedecision: allowRedecision,
	}
}

// Submit 以求职者身份创建一条 pending 状态的申请。
func (m *Manager) Submit(ctx context.Context, actor auth.Actor, jobID uint, coverLetter string) (*database.Application, error) {
	if !actor.IsCandidate() {
		return nil, apperr.Forbidden("only candidates can apply to jobs")
	}
	if jobID == 0 {
		return nil, apperr.InvalidArgument("job id is required")
	}

	if _, err := m.store.JobByID(ctx, jobID); err != nil {
		return nil, err
	}

	// 快速路径预检查；并发重复提交最终由唯一索引拦截。
	if _, err := m.store.ApplicationByCandidateAndJob(ctx, actor.ID, jobID); err == nil {
		return nil, apperr.Conflict("already applied to this job")
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	app := &database.Application{
		Status:       database.ApplicationPending,
		CoverLetter:  coverLetter,
		CandidateID:  actor.ID,
		JobPostingID: jobID,
	}
	if err := m.store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}

	if err := m.notifier.ApplicationSubmitted(ctx, app.ID); err != nil {
		m.logger.Warn("notify application submitted failed",
			slog.Uint64("application_id", uint64(app.ID)),
			slog.Any("error", err),
		)
	}

	return app, nil
}

// Decide 由职位所属雇主把申请从 pending 转为 accepted 或 rejected。
func (m *Manager) Decide(ctx context.Context, actor auth.Actor, applicationID uint, newStatus string) (*database.Application, error) {
	if !actor.IsEmployer() {
		return nil, apperr.Forbidden("only employers can decide applications")
	}

	switch newStatus {
	case database.ApplicationAccepted, database.ApplicationRejected:
	case database.ApplicationPending:
		// 回退到初始状态没有意义，明确拒绝。
		return nil, apperr.InvalidArgument("cannot transition an application back to pending")
	default:
		return nil, apperr.InvalidArgument("status must be accepted or rejected")
	}

	app, err := m.store.ApplicationWithJob(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	// 归属校验：经由申请的职位追溯到发布它的雇主。
	if app.JobPosting.EmployerID != actor.ID {
		return nil, apperr.Forbidden("you do not own the job for this application")
	}

	if app.Status != database.ApplicationPending && !m.allowRedecision {
		return nil, apperr.Conflict("application already decided")
	}

	if err := m.store.UpdateApplicationStatus(ctx, app, newStatus); err != nil {
		return nil, err
	}
	app.Status = newStatus

	if err := m.notifier.ApplicationDecided(ctx, app.ID); err != nil {
		m.logger.Warn("notify application decided failed",
			slog.Uint64("application_id", uint64(app.ID)),
			slog.Any("error", err),
		)
	}

	return app, nil
}

// ListForCandidate 返回求职者自己的申请，新→旧，附带职位与雇主信息。
func (m *Manager) ListForCandidate(ctx context.Context, actor auth.Actor) ([]database.Application, error) {
	if !actor.IsCandidate() {
		return nil, apperr.Forbidden("only candidates can list their applications")
	}
	return m.store.ApplicationsByCandidate(ctx, actor.ID)
}

// ListForJob 返回某职位收到的申请，新→旧，附带求职者信息。
// 仅职位所属雇主可见。
func (m *Manager) ListForJob(ctx context.Context, actor auth.Actor, jobID uint) ([]database.Application, error) {
	if !actor.IsEmployer() {
		return nil, apperr.Forbidden("only employers can list job applications")
	}

	job, err := m.store.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != actor.ID {
		return nil, apperr.Forbidden("you do not own this job")
	}

	return m.store.ApplicationsByJob(ctx, jobID)
}
