package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role 区分账号类型：求职者、雇主、管理员。
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleEmployer  Role = "employer"
	RoleAdmin     Role = "admin"
)

// User 表示平台账号，求职者与雇主共用一张表，通过 Role 区分。
// Latitude/Longitude 为 (0,0) 表示尚未地理编码。
type User struct {
	gorm.Model
	Email        string  `gorm:"uniqueIndex;size:255"`
	PasswordHash string  `gorm:"size:255"`
	Role         Role    `gorm:"size:16;index"`
	Name         string  `gorm:"size:128"`
	Phone        string  `gorm:"size:32"`
	City         string  `gorm:"size:128"`
	Address      string  `gorm:"size:512"`
	Latitude     float64 `gorm:"type:decimal(10,8)"`
	Longitude    float64 `gorm:"type:decimal(11,8)"`
	AvatarKey    string  `gorm:"size:512"`

	JobPostings  []JobPosting  `gorm:"foreignKey:EmployerID;constraint:OnDelete:CASCADE"`
	Applications []Application `gorm:"foreignKey:CandidateID;constraint:OnDelete:CASCADE"`
}

// JobPosting 表示雇主发布的职位。坐标由 worker 异步地理编码补全。
type JobPosting struct {
	gorm.Model
	Title       string  `gorm:"size:255"`
	Description string  `gorm:"type:text"`
	Salary      string  `gorm:"size:128"` // 自由文本，如 "3000-4000 MAD"
	Category    string  `gorm:"size:64;index"`
	City        string  `gorm:"size:128;index"`
	Address     string  `gorm:"size:512"`
	Latitude    float64 `gorm:"type:decimal(10,8)"`
	Longitude   float64 `gorm:"type:decimal(11,8)"`
	EmployerID  uint    `gorm:"index"`
	Employer    User

	Applications []Application `gorm:"constraint:OnDelete:CASCADE"`
}

// 申请状态，pending 为初始态，accepted/rejected 为终态。
const (
	ApplicationPending  = "pending"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// Application 表示求职者对某职位的申请。
// (candidate_id, job_posting_id) 上的复合唯一索引是防止重复申请的
// 最终保障，代码中的预检查只是快速路径。
type Application struct {
	gorm.Model
	Status       string `gorm:"size:16;default:pending"`
	CoverLetter  string `gorm:"type:text"`
	CandidateID  uint   `gorm:"uniqueIndex:idx_applications_candidate_job"`
	JobPostingID uint   `gorm:"uniqueIndex:idx_applications_candidate_job"`
	Candidate    User
	JobPosting   JobPosting `gorm:"constraint:OnDelete:CASCADE"`
}

// Notification 表示推送给用户的站内通知。
type Notification struct {
	gorm.Model
	UserID uint           `gorm:"index"`
	Type   string         `gorm:"size:64"`
	Title  string         `gorm:"size:255"`
	Body   string         `gorm:"type:text"`
	Data   datatypes.JSON `gorm:"type:jsonb"`
	ReadAt *time.Time
}

// Asset 表示用户上传的头像或公司 Logo 对象。
type Asset struct {
	gorm.Model
	UserID    uint   `gorm:"index"`
	ObjectKey string `gorm:"uniqueIndex;size:512"`
}
