package admin

import (
	handlershared "github.com/shopledger/internal/http/handlers/shared"
	"github.com/shopledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// UpdateUserStatusRequest 修改用户状态请求
type UpdateUserStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active disabled"`
}

// AdminListUsers 用户列表
func (h *Handler) AdminListUsers(c *gin.Context) {
	page, pageSize := handlershared.PageQuery(c)
	users, total, err := h.UserAuthService.ListUsers(c.Query("keyword"), c.Query("status"), page, pageSize)
	if err != nil {
		respondServiceError(c, err, "user list failed")
		return
	}
	response.SuccessWithPage(c, users, handlershared.BuildPagination(page, pageSize, total))
}

// AdminUpdateUserStatus 启用或停用用户
func (h *Handler) AdminUpdateUserStatus(c *gin.Context) {
	userID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	if err := h.UserAuthService.UpdateUserStatus(userID, req.Status); err != nil {
		respondServiceError(c, err, "user status update failed")
		return
	}
	requestLog(c).Infow("admin_user_status_updated", "user_id", userID, "status", req.Status, "admin_id", c.GetUint("admin_id"))
	response.Success(c, gin.H{"id": userID, "status": req.Status})
}
