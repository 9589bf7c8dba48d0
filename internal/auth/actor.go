package auth

import "khedma/internal/database"

// Actor 表示已通过认证的请求主体。替代原设计中挂在请求对象上的
// 字符串角色字段：核心操作基于类型化的角色判断，而不是比较字符串。
type Actor struct {
	ID   uint
	Role database.Role
}

func (a Actor) IsCandidate() bool { return a.Role == database.RoleCandidate }
func (a Actor) IsEmployer() bool  { return a.Role == database.RoleEmployer }
func (a Actor) IsAdmin() bool     { return a.Role == database.RoleAdmin }
