package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"khedma/internal/api/middleware"
	"khedma/internal/applications"
	"khedma/internal/database"
)

// ApplicationHandler 把申请生命周期管理器暴露为 HTTP 接口。
// 所有业务校验在管理器里完成，这里只做绑定与映射。
type ApplicationHandler struct {
	manager *applications.Manager
}

// NewApplicationHandler 构造申请处理器。
func NewApplicationHandler(manager *applications.Manager) *ApplicationHandler {
	return &ApplicationHandler{manager: manager}
}

// applicationResponse 是申请的外部表示。
// Job/Candidate 只在相应列表里预加载时填充。
type applicationResponse struct {
	ID           uint               `json:"id"`
	Status       string             `json:"status"`
	CoverLetter  string             `json:"cover_letter,omitempty"`
	JobPostingID uint               `json:"job_posting_id"`
	CandidateID  uint               `json:"candidate_id"`
	Job          *jobResponse       `json:"job,omitempty"`
	Candidate    *candidateResponse `json:"candidate,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// candidateResponse 是求职者对雇主可见的公开字段。
type candidateResponse struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	City  string `json:"city,omitempty"`
}

func toApplicationResponse(app database.Application) applicationResponse {
	resp := applicationResponse{
		ID:           app.ID,
		Status:       app.Status,
		CoverLetter:  app.CoverLetter,
		JobPostingID: app.JobPostingID,
		CandidateID:  app.CandidateID,
		CreatedAt:    app.CreatedAt,
		UpdatedAt:    app.UpdatedAt,
	}
	if app.JobPosting.ID != 0 {
		job := toJobResponse(app.JobPosting)
		resp.Job = &job
	}
	if app.Candidate.ID != 0 {
		resp.Candidate = &candidateResponse{
			ID:    app.Candidate.ID,
			Name:  app.Candidate.Name,
			Email: app.Candidate.Email,
			Phone: app.Candidate.Phone,
			City:  app.Candidate.City,
		}
	}
	return resp
}

type submitApplicationRequest struct {
	JobID       uint   `json:"job_id" binding:"required"`
	CoverLetter string `json:"cover_letter" binding:"max=4000"`
}

// Submit 提交申请。
func (h *ApplicationHandler) Submit(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req submitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	app, err := h.manager.Submit(c.Request.Context(), actor, req.JobID, req.CoverLetter)
	if err != nil {
		WriteError(c, err)
		return
	}
	Created(c, toApplicationResponse(*app))
}

type decideApplicationRequest struct {
	Status string `json:"status" binding:"required"`
}

// Decide 接受或拒绝申请。
func (h *ApplicationHandler) Decide(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	applicationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req decideApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	app, err := h.manager.Decide(c.Request.Context(), actor, applicationID, req.Status)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, toApplicationResponse(*app))
}

// ListMine 返回当前求职者的全部申请。
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	apps, err := h.manager.ListForCandidate(c.Request.Context(), actor)
	if err != nil {
		WriteError(c, err)
		return
	}

	out := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, toApplicationResponse(app))
	}
	OKList(c, out, len(out))
}

// ListForJob 返回某职位收到的全部申请。
func (h *ApplicationHandler) ListForJob(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	apps, err := h.manager.ListForJob(c.Request.Context(), actor, jobID)
	if err != nil {
		WriteError(c, err)
		return
	}

	out := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, toApplicationResponse(app))
	}
	OKList(c, out, len(out))
}
