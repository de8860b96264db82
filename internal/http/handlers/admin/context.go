package admin

import (
	handlershared "github.com/shopledger/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUintWithKeys(c, "admin_id", "invalid admin id", "admin id type invalid")
}

// currentAdminID 读取当前管理员 ID，不写响应
func currentAdminID(c *gin.Context) *uint {
	value, exists := c.Get("admin_id")
	if !exists {
		return nil
	}
	if id, ok := value.(uint); ok && id > 0 {
		return &id
	}
	return nil
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondServiceError(c *gin.Context, err error, fallbackMsg string) {
	handlershared.RespondServiceError(c, err, fallbackMsg)
}
