package response

// 业务状态码，HTTP 状态统一为 200
const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeTooManyRequests = 429
	CodeInternal        = 500
)

// DefaultMessage 状态码对应的默认提示
func DefaultMessage(code int) string {
	switch code {
	case CodeOK:
		return "success"
	case CodeBadRequest:
		return "bad request"
	case CodeUnauthorized:
		return "unauthorized"
	case CodeForbidden:
		return "forbidden"
	case CodeNotFound:
		return "not found"
	case CodeConflict:
		return "conflict"
	case CodeTooManyRequests:
		return "too many requests"
	default:
		return "internal error"
	}
}
