package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/response"
)

// statusFor maps the domain error taxonomy onto HTTP statuses. Concurrency
// failures surface as 503 so clients know a retry is reasonable.
func statusFor(err error) int {
	switch internal.KindOf(err) {
	case internal.KindValidation:
		return 400
	case internal.KindNotFound:
		return 404
	case internal.KindState, internal.KindResourceExhausted:
		return 409
	case internal.KindConcurrency:
		return 503
	default:
		return 500
	}
}

func HandleError(c *gin.Context, logger internal.Logger, err error, msg string) {
	requestID := c.GetString("request_id")
	status := statusFor(err)
	if status >= 500 {
		logger.Errorf("[request_id=%s] %s: %v", requestID, msg, err)
	} else {
		logger.Infof("[request_id=%s] %s: %v", requestID, msg, err)
	}
	c.JSON(status, response.NewAppError(status, msg+": "+err.Error()))
}

func HandleSuccess(c *gin.Context, logger internal.Logger, data interface{}, meta map[string]any) {
	requestID := c.GetString("request_id")
	logger.Debugf("[request_id=%s] success", requestID)
	c.JSON(200, response.Success(data, meta))
}

func currentUserID(c *gin.Context) string {
	return c.MustGet("user").(*internal.User).ID
}
