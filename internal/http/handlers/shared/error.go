package shared

import (
	"errors"

	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", code,
			"message", msg,
			"error", err,
		)
	}
	response.Error(c, code, msg)
}

// RespondBindError 请求体解析或校验失败。
func RespondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		response.ErrorWithData(c, response.CodeBadRequest, "validation failed", gin.H{"fields": fields})
		return
	}
	response.Error(c, response.CodeBadRequest, "invalid request body")
}

// RespondServiceError 将领域错误映射为接口响应，未识别的错误按 fallback 记录并返回 500。
func RespondServiceError(c *gin.Context, err error, fallbackMsg string) {
	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
		stockErr      *service.InsufficientStockError
		negativeErr   *service.NegativeStockError
		transitionErr *service.InvalidStateTransitionError
		conflictErr   *service.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		response.ErrorWithData(c, response.CodeBadRequest, validationErr.Error(), gin.H{"field": validationErr.Field})
	case errors.As(err, &notFoundErr):
		response.NotFound(c, notFoundErr.Error())
	case errors.As(err, &stockErr):
		response.ErrorWithData(c, response.CodeConflict, stockErr.Error(), gin.H{
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &negativeErr):
		response.ErrorWithData(c, response.CodeConflict, negativeErr.Error(), gin.H{
			"product_id": negativeErr.ProductID,
			"current":    negativeErr.Current,
			"delta":      negativeErr.Delta,
		})
	case errors.As(err, &transitionErr):
		response.ErrorWithData(c, response.CodeConflict, transitionErr.Error(), gin.H{
			"from": transitionErr.From,
			"to":   transitionErr.To,
		})
	case errors.As(err, &conflictErr):
		RequestLog(c).Warnw("handler_concurrency_conflict", "attempts", conflictErr.Attempts, "error", err)
		response.ErrorWithData(c, response.CodeConflict, "concurrent update, please retry", gin.H{"attempts": conflictErr.Attempts})
	case errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrAccountDisabled):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		response.Error(c, response.CodeConflict, err.Error())
	default:
		RespondError(c, response.CodeInternal, fallbackMsg, err)
	}
}
