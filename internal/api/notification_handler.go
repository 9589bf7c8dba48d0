package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"khedma/internal/api/middleware"
	"khedma/internal/database"
)

// NotificationHandler 处理通知收件箱的查询与已读标记。
type NotificationHandler struct {
	db *gorm.DB
}

// NewNotificationHandler 构造通知处理器。
func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

type notificationResponse struct {
	ID        uint       `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Data      any        `json:"data,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toNotificationResponse(n database.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
	if len(n.Data) > 0 {
		resp.Data = n.Data
	}
	return resp
}

// List 返回当前用户的通知，新→旧。unread=true 时只看未读。
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	query := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", actor.ID).
		Order("created_at DESC")
	if c.Query("unread") == "true" {
		query = query.Where("read_at IS NULL")
	}

	var notifications []database.Notification
	if err := query.Find(&notifications).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list notifications failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, toNotificationResponse(n))
	}
	OKList(c, out, len(out))
}

// MarkRead 将一条通知标记为已读。重复标记是幂等的。
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	notificationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()

	var notification database.Notification
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, actor.ID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "notification not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load notification failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if notification.ReadAt == nil {
		now := time.Now()
		if err := h.db.WithContext(ctx).Model(&notification).Update("read_at", &now).Error; err != nil {
			middleware.LoggerFromContext(c).Error("mark notification read failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		notification.ReadAt = &now
	}

	OK(c, toNotificationResponse(notification))
}
