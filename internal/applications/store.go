package applications

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"khedma/internal/apperr"
	"khedma/internal/database"
)

// Store 是生命周期管理器依赖的持久化契约。
// 重复申请的最终保障是 (candidate_id, job_posting_id) 上的唯一索引，
// CreateApplication 负责把驱动的冲突错误翻译为 Conflict。
type Store interface {
	JobByID(ctx context.Context, jobID uint) (*database.JobPosting, error)
	ApplicationByCandidateAndJob(ctx context.Context, candidateID, jobID uint) (*database.Application, error)
	CreateApplication(ctx context.Context, app *database.Application) error
	ApplicationWithJob(ctx context.Context, applicationID uint) (*database.Application, error)
	UpdateApplicationStatus(ctx context.Context, app *database.Application, status string) error
	ApplicationsByCandidate(ctx context.Context, candidateID uint) ([]database.Application, error)
	ApplicationsByJob(ctx context.Context, jobID uint) ([]database.Application, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore 返回基于 GORM 的 Store 实现。
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) JobByID(ctx context.Context, jobID uint) (*database.JobPosting, error) {
	var job database.JobPosting
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, apperr.Internal("query job", err)
	}
	return &job, nil
}

func (s *gormStore) ApplicationByCandidateAndJob(ctx context.Context, candidateID, jobID uint) (*database.Application, error) {
	var app database.Application
	err := s.db.WithContext(ctx).
		Where("candidate_id = ? AND job_posting_id = ?", candidateID, jobID).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("application not found")
		}
		return nil, apperr.Internal("query application", err)
	}
	return &app, nil
}

func (s *gormStore) CreateApplication(ctx context.Context, app *database.Application) error {
	if err := s.db.WithContext(ctx).Create(app).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("already applied to this job")
		}
		return apperr.Internal("create application", err)
	}
	return nil
}

func (s *gormStore) ApplicationWithJob(ctx context.Context, applicationID uint) (*database.Application, error) {
	var app database.Application
	err := s.db.WithContext(ctx).
		Preload("JobPosting").
		First(&app, applicationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("application not found")
		}
		return nil, apperr.Internal("query application", err)
	}
	return &app, nil
}

func (s *gormStore) UpdateApplicationStatus(ctx context.Context, app *database.Application, status string) error {
	if err := s.db.WithContext(ctx).Model(app).Update("status", status).Error; err != nil {
		return apperr.Internal("update application status", err)
	}
	return nil
}

func (s *gormStore) ApplicationsByCandidate(ctx context.Context, candidateID uint) ([]database.Application, error) {
	var apps []database.Application
	err := s.db.WithContext(ctx).
		Preload("JobPosting").
		Preload("JobPosting.Employer").
		Where("candidate_id = ?", candidateID).
		Order("created_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, apperr.Internal("list applications by candidate", err)
	}
	return apps, nil
}

func (s *gormStore) ApplicationsByJob(ctx context.Context, jobID uint) ([]database.Application, error) {
	var apps []database.Application
	err := s.db.WithContext(ctx).
		Preload("Candidate").
		Where("job_posting_id = ?", jobID).
		Order("created_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, apperr.Internal("list applications by job", err)
	}
	return apps, nil
}
