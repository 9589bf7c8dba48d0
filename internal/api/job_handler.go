package api

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"khedma/internal/api/middleware"
	"khedma/internal/apperr"
	"khedma/internal/database"
	"khedma/internal/geo"
	"khedma/internal/tasks"
)

// JobHandler 处理职位的发布、查询与附近匹配。
type JobHandler struct {
	db     *gorm.DB
	asynq  *asynq.Client
	logger *slog.Logger
}

// NewJobHandler 构造职位处理器。
func NewJobHandler(db *gorm.DB, asynqClient *asynq.Client, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{db: db, asynq: asynqClient, logger: logger}
}

// jobResponse 是职位的外部表示。DistanceKm 仅在附近查询时填充。
type jobResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Salary      string    `json:"salary"`
	Category    string    `json:"category"`
	City        string    `json:"city"`
	Address     string    `json:"address"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	EmployerID  uint      `json:"employer_id"`
	Employer    string    `json:"employer,omitempty"`
	DistanceKm  *float64  `json:"distance_km,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toJobResponse(j database.JobPosting) jobResponse {
	resp := jobResponse{
		ID:          j.ID,
		Title:       j.Title,
		Description: j.Description,
		Salary:      j.Salary,
		Category:    j.Category,
		City:        j.City,
		Address:     j.Address,
		Latitude:    j.Latitude,
		Longitude:   j.Longitude,
		EmployerID:  j.EmployerID,
		CreatedAt:   j.CreatedAt,
	}
	if j.Employer.ID != 0 {
		resp.Employer = j.Employer.Name
	}
	return resp
}

type jobRequest struct {
	Title       string   `json:"title" binding:"required,max=255"`
	Description string   `json:"description" binding:"max=4000"`
	Salary      string   `json:"salary" binding:"max=128"`
	Category    string   `json:"category" binding:"max=128"`
	City        string   `json:"city" binding:"max=128"`
	Address     string   `json:"address" binding:"max=255"`
	Latitude    *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
}

// CreateJob 发布职位。只有雇主可以发布；
// 未带坐标但有地址时投递异步地理编码任务。
func (h *JobHandler) CreateJob(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if !actor.IsEmployer() {
		Forbidden(c, "only employers can post jobs")
		return
	}

	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("employer_id", uint64(actor.ID)))

	job := database.JobPosting{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Salary:      req.Salary,
		Category:    strings.TrimSpace(req.Category),
		City:        strings.TrimSpace(req.City),
		Address:     strings.TrimSpace(req.Address),
		EmployerID:  actor.ID,
	}
	if req.Latitude != nil && req.Longitude != nil {
		job.Latitude = *req.Latitude
		job.Longitude = *req.Longitude
	}

	if err := h.db.WithContext(ctx).Create(&job).Error; err != nil {
		logger.Error("create job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.maybeEnqueueGeocode(c, job)

	logger.Info("job created", slog.Uint64("job_id", uint64(job.ID)))
	Created(c, toJobResponse(job))
}

// ListJobs 返回职位列表，支持 category 与 city 过滤。
func (h *JobHandler) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()

	query := h.db.WithContext(ctx).Model(&database.JobPosting{}).Preload("Employer")
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category = ?", category)
	}
	if city := strings.TrimSpace(c.Query("city")); city != "" {
		query = query.Where("city = ?", city)
	}

	var jobs []database.JobPosting
	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list jobs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobResponse(job))
	}
	OKList(c, out, len(out))
}

// NearbyJobs 返回参考点附近的职位，按距离升序。
// 未传 lat/lon 时回退到当前用户档案里的坐标。
func (h *JobHandler) NearbyJobs(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	ref, err := h.resolveReferencePoint(c, actor.ID)
	if err != nil {
		WriteError(c, err)
		return
	}

	radiusKm := geo.DefaultRadiusKm
	if raw := strings.TrimSpace(c.Query("radius")); raw != "" {
		radiusKm, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			BadRequest(c, "radius must be a number")
			return
		}
	}

	var jobs []database.JobPosting
	if err := h.db.WithContext(ctx).Preload("Employer").Order("id ASC").Find(&jobs).Error; err != nil {
		logger.Error("load jobs for nearby failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	points := make([]geo.Point, len(jobs))
	for i, job := range jobs {
		points[i] = geo.Point{Lat: job.Latitude, Lon: job.Longitude}
	}

	matches, err := geo.FindNearby(ref, radiusKm, points)
	if err != nil {
		WriteError(c, err)
		return
	}

	out := make([]jobResponse, 0, len(matches))
	for _, match := range matches {
		resp := toJobResponse(jobs[match.Index])
		display := float64(match.DisplayKm())
		resp.DistanceKm = &display
		out = append(out, resp)
	}
	OKList(c, out, len(out))
}

// resolveReferencePoint 解析查询参数里的参考坐标；
// 缺省时回退到用户档案坐标，档案也没有则报 InvalidArgument。
func (h *JobHandler) resolveReferencePoint(c *gin.Context, userID uint) (geo.Point, error) {
	rawLat := strings.TrimSpace(c.Query("lat"))
	rawLon := strings.TrimSpace(c.Query("lon"))

	if rawLat != "" || rawLon != "" {
		lat, errLat := strconv.ParseFloat(rawLat, 64)
		lon, errLon := strconv.ParseFloat(rawLon, 64)
		if errLat != nil || errLon != nil {
			return geo.Point{}, apperr.InvalidArgument("lat and lon must both be numbers")
		}
		return geo.Point{Lat: lat, Lon: lon}, nil
	}

	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		return geo.Point{}, apperr.Internal("load user for nearby lookup", err)
	}
	point := geo.Point{Lat: user.Latitude, Lon: user.Longitude}
	if point.IsZero() {
		return geo.Point{}, apperr.InvalidArgument("no reference coordinates: pass lat/lon or set your profile location")
	}
	return point, nil
}

// GetJob 返回单个职位。
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var job database.JobPosting
	if err := h.db.WithContext(c.Request.Context()).Preload("Employer").First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	OK(c, toJobResponse(job))
}

// UpdateJob 更新职位，仅限发布者本人。
// 地址或城市变化且未显式给坐标时重新触发地理编码。
func (h *JobHandler) UpdateJob(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("job_id", uint64(jobID)))

	var job database.JobPosting
	if err := h.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		logger.Error("load job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if job.EmployerID != actor.ID {
		Forbidden(c, "you do not own this job")
		return
	}

	locationChanged := strings.TrimSpace(req.Address) != job.Address || strings.TrimSpace(req.City) != job.City
	explicitCoords := req.Latitude != nil && req.Longitude != nil

	updates := map[string]any{
		"title":       strings.TrimSpace(req.Title),
		"description": req.Description,
		"salary":      req.Salary,
		"category":    strings.TrimSpace(req.Category),
		"city":        strings.TrimSpace(req.City),
		"address":     strings.TrimSpace(req.Address),
	}
	if explicitCoords {
		updates["latitude"] = *req.Latitude
		updates["longitude"] = *req.Longitude
	} else if locationChanged {
		updates["latitude"] = 0.0
		updates["longitude"] = 0.0
	}

	if err := h.db.WithContext(ctx).Model(&job).Updates(updates).Error; err != nil {
		logger.Error("update job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		logger.Error("reload job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if locationChanged && !explicitCoords {
		h.maybeEnqueueGeocode(c, job)
	}

	OK(c, toJobResponse(job))
}

// DeleteJob 删除职位，仅限发布者本人；申请记录级联删除。
func (h *JobHandler) DeleteJob(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("job_id", uint64(jobID)))

	var job database.JobPosting
	if err := h.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		logger.Error("load job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if job.EmployerID != actor.ID && !actor.IsAdmin() {
		Forbidden(c, "you do not own this job")
		return
	}

	// 先删申请再删职位，sqlite 下外键级联不总是开启。
	if err := h.db.WithContext(ctx).Where("job_posting_id = ?", job.ID).Delete(&database.Application{}).Error; err != nil {
		logger.Error("delete applications failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Delete(&job).Error; err != nil {
		logger.Error("delete job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("job deleted")
	OK(c, gin.H{"id": job.ID})
}

// maybeEnqueueGeocode 在职位缺坐标但有地址时投递地理编码任务。
// 入队失败只记日志，职位本身已成功落库。
func (h *JobHandler) maybeEnqueueGeocode(c *gin.Context, job database.JobPosting) {
	if h.asynq == nil {
		return
	}
	if !(geo.Point{Lat: job.Latitude, Lon: job.Longitude}).IsZero() {
		return
	}
	if strings.TrimSpace(job.Address) == "" && strings.TrimSpace(job.City) == "" {
		return
	}

	task, err := tasks.NewGeocodeJobTask(job.ID, middleware.GetCorrelationID(c))
	if err == nil {
		_, err = h.asynq.EnqueueContext(c.Request.Context(), task)
	}
	if err != nil {
		middleware.LoggerFromContext(c).Warn("enqueue geocode task failed",
			slog.Uint64("job_id", uint64(job.ID)),
			slog.Any("error", err),
		)
	}
}

// parseIDParam 解析路径里的数字 ID，非法时直接写 400。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
