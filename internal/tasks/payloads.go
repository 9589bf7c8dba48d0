package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeNotifyApplicationSubmitted = "notify:application_submitted"
	TypeNotifyApplicationDecided   = "notify:application_decided"
	TypeGeocodeJob                 = "geocode:job"
	TypeGeocodeUser                = "geocode:user"
)

// ApplicationEventPayload 描述申请生命周期事件的最小信息。
type ApplicationEventPayload struct {
	ApplicationID uint   `json:"application_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewApplicationSubmittedTask 构造“收到新申请”的通知任务。
func NewApplicationSubmittedTask(applicationID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ApplicationEventPayload{
		ApplicationID: applicationID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotifyApplicationSubmitted, payload), nil
}

// NewApplicationDecidedTask 构造“申请已被决定”的通知任务。
func NewApplicationDecidedTask(applicationID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ApplicationEventPayload{
		ApplicationID: applicationID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotifyApplicationDecided, payload), nil
}

// GeocodeJobPayload 描述待地理编码的职位。
type GeocodeJobPayload struct {
	JobID         uint   `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewGeocodeJobTask 构造职位地理编码任务。
func NewGeocodeJobTask(jobID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(GeocodeJobPayload{
		JobID:         jobID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGeocodeJob, payload), nil
}

// GeocodeUserPayload 描述待地理编码的用户档案。
type GeocodeUserPayload struct {
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewGeocodeUserTask 构造用户档案地理编码任务。
func NewGeocodeUserTask(userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(GeocodeUserPayload{
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGeocodeUser, payload), nil
}
