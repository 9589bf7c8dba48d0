package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"khedma/internal/auth"
)

const actorKey = "actor"

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将 Actor（ID + 角色）注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil || claims.TokenType != "access" {
			abortUnauthorized(c)
			return
		}

		c.Set(actorKey, auth.Actor{ID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// ActorFromContext 返回认证中间件注入的 Actor。
func ActorFromContext(c *gin.Context) (auth.Actor, bool) {
	value, ok := c.Get(actorKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := value.(auth.Actor)
	return actor, ok
}

// SetActor 供测试注入 Actor。
func SetActor(c *gin.Context, actor auth.Actor) {
	c.Set(actorKey, actor)
}
