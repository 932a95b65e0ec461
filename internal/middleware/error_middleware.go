package middleware

import (
	"situation-room/internal/transport/httpdto"
	situation_errors "situation-room/pkg/errors"
	"situation-room/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders errors attached with c.Error by handlers that did not
// write a response themselves.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		logger.OrGlobal(l).WithContext(c.Request.Context()).Errorf("request error: %s", err.Error())
		if c.Writer.Written() {
			return
		}
		c.JSON(situation_errors.HTTPStatus(err), httpdto.NewFaultResponse(err, "INTERNAL_ERROR"))
	}
}
