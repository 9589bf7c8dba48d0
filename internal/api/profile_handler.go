package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"khedma/internal/api/middleware"
	"khedma/internal/database"
	"khedma/internal/tasks"
)

// ProfileHandler 处理当前用户档案的读写。
type ProfileHandler struct {
	db     *gorm.DB
	asynq  *asynq.Client
	logger *slog.Logger
}

// NewProfileHandler 构造档案处理器。
func NewProfileHandler(db *gorm.DB, asynqClient *asynq.Client, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{db: db, asynq: asynqClient, logger: logger}
}

// profileResponse 是用户档案的外部表示，不含密码哈希。
type profileResponse struct {
	ID        uint          `json:"id"`
	Email     string        `json:"email"`
	Role      database.Role `json:"role"`
	Name      string        `json:"name"`
	Phone     string        `json:"phone"`
	City      string        `json:"city"`
	Address   string        `json:"address"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	AvatarKey string        `json:"avatar_key,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func toProfileResponse(u database.User) profileResponse {
	return profileResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Name:      u.Name,
		Phone:     u.Phone,
		City:      u.City,
		Address:   u.Address,
		Latitude:  u.Latitude,
		Longitude: u.Longitude,
		AvatarKey: u.AvatarKey,
		CreatedAt: u.CreatedAt,
	}
}

// GetMe 返回当前用户档案。
func (h *ProfileHandler) GetMe(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, actor.ID).Error; err != nil {
		middleware.LoggerFromContext(c).Error("load profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	OK(c, toProfileResponse(user))
}

type updateProfileRequest struct {
	Name      *string  `json:"name" binding:"omitempty,max=128"`
	Phone     *string  `json:"phone" binding:"omitempty,max=32"`
	City      *string  `json:"city" binding:"omitempty,max=128"`
	Address   *string  `json:"address" binding:"omitempty,max=255"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
}

// UpdateMe 更新当前用户档案。地址或城市变化且未显式给坐标时，
// 清空旧坐标并投递异步地理编码任务。
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(actor.ID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, actor.ID).Error; err != nil {
		logger.Error("load profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	updates := map[string]any{}
	locationChanged := false
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.City != nil && *req.City != user.City {
		updates["city"] = *req.City
		locationChanged = true
	}
	if req.Address != nil && *req.Address != user.Address {
		updates["address"] = *req.Address
		locationChanged = true
	}

	explicitCoords := req.Latitude != nil && req.Longitude != nil
	if explicitCoords {
		updates["latitude"] = *req.Latitude
		updates["longitude"] = *req.Longitude
	} else if locationChanged {
		// 旧坐标对应旧地址，不再可信。
		updates["latitude"] = 0.0
		updates["longitude"] = 0.0
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			logger.Error("update profile failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}

	if locationChanged && !explicitCoords && h.asynq != nil {
		task, err := tasks.NewGeocodeUserTask(user.ID, middleware.GetCorrelationID(c))
		if err == nil {
			_, err = h.asynq.EnqueueContext(ctx, task)
		}
		if err != nil {
			// 异步补坐标失败不影响本次更新。
			logger.Warn("enqueue geocode task failed", slog.Any("error", err))
		}
	}

	if err := h.db.WithContext(ctx).First(&user, actor.ID).Error; err != nil {
		logger.Error("reload profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	OK(c, toProfileResponse(user))
}
