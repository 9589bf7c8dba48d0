package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"khedma/internal/database"
	"khedma/internal/geo"
	"khedma/internal/tasks"
)

// geocoder 抽象地址解析客户端，便于测试替换。
type geocoder interface {
	Lookup(ctx context.Context, address string) (geo.Point, bool, error)
}

// GeocodeTaskHandler 为缺坐标的职位补全经纬度。
// 地址解析失败不致命：查不到就保持坐标未设置，职位照常可见，
// 只是不会出现在“附近职位”结果里。
type GeocodeTaskHandler struct {
	db       *gorm.DB
	geocoder geocoder
	logger   *slog.Logger
}

// NewGeocodeTaskHandler 创建地理编码任务处理器。
func NewGeocodeTaskHandler(db *gorm.DB, gc geocoder, logger *slog.Logger) *GeocodeTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeocodeTaskHandler{db: db, geocoder: gc, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *GeocodeTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.GeocodeJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("job_id", uint64(payload.JobID)),
	)

	var job database.JobPosting
	if err := h.db.WithContext(ctx).First(&job, payload.JobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("job not found, skipping geocode")
			return nil
		}
		log.Error("query job failed", slog.Any("error", err))
		return err
	}

	if !(geo.Point{Lat: job.Latitude, Lon: job.Longitude}).IsZero() {
		log.Info("job already geocoded, skipping")
		return nil
	}

	address := strings.TrimSpace(job.Address)
	if address == "" {
		address = strings.TrimSpace(job.City)
	}
	if address == "" {
		log.Warn("job has no address to geocode")
		return nil
	}

	point, found, err := h.geocoder.Lookup(ctx, address)
	if err != nil {
		// 网络/服务错误交给 asynq 重试。
		log.Error("geocode lookup failed", slog.Any("error", err))
		return err
	}
	if !found {
		log.Warn("address not found by geocoder", slog.String("address", address))
		return nil
	}

	update := map[string]any{
		"latitude":  point.Lat,
		"longitude": point.Lon,
	}
	if err := h.db.WithContext(ctx).Model(&job).Updates(update).Error; err != nil {
		log.Error("update job coordinates failed", slog.Any("error", err))
		return err
	}

	log.Info("job geocoded",
		slog.Float64("latitude", point.Lat),
		slog.Float64("longitude", point.Lon),
	)
	return nil
}

// ProcessUserTask 为缺坐标的用户档案补全经纬度，
// 用于“附近职位”在候选人未显式传坐标时的档案兜底。
func (h *GeocodeTaskHandler) ProcessUserTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.GeocodeUserPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, payload.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("user not found, skipping geocode")
			return nil
		}
		log.Error("query user failed", slog.Any("error", err))
		return err
	}

	if !(geo.Point{Lat: user.Latitude, Lon: user.Longitude}).IsZero() {
		log.Info("user already geocoded, skipping")
		return nil
	}

	address := strings.TrimSpace(user.Address)
	if address == "" {
		address = strings.TrimSpace(user.City)
	}
	if address == "" {
		log.Warn("user has no address to geocode")
		return nil
	}

	point, found, err := h.geocoder.Lookup(ctx, address)
	if err != nil {
		log.Error("geocode lookup failed", slog.Any("error", err))
		return err
	}
	if !found {
		log.Warn("address not found by geocoder", slog.String("address", address))
		return nil
	}

	update := map[string]any{
		"latitude":  point.Lat,
		"longitude": point.Lon,
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(update).Error; err != nil {
		log.Error("update user coordinates failed", slog.Any("error", err))
		return err
	}

	log.Info("user geocoded",
		slog.Float64("latitude", point.Lat),
		slog.Float64("longitude", point.Lon),
	)
	return nil
}
