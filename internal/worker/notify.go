package worker

// 统一的通知推送协议（通过 Redis Pub/Sub 转发给 WebSocket 客户端）。
// 字段名与移动端解析保持一致。
type NotificationMessage struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	JobID         uint   `json:"job_id,omitempty"`
	ApplicationID uint   `json:"application_id"`
	Status        string `json:"status,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// 通知类型常量，同时写入 Notification.Type 列。
const (
	NotifyApplicationReceived = "application_received"
	NotifyApplicationDecided  = "application_decided"
)
