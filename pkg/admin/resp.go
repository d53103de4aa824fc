package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Business codes carried in Response.Code.
const (
	CodeSuccess       = 0
	CodeParamInvalid  = 2002
	CodeNotFound      = 3001
	CodeStateConflict = 3003
	CodeInternalError = 5001
)

// Response is the envelope of every admin API answer.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: "success", Data: data})
}

func fail(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, Response{Code: code, Message: message})
}

func failInternal(c *gin.Context, message string, err error) {
	logFor(c).Errorf("admin: %s: %v", message, err)
	fail(c, http.StatusInternalServerError, CodeInternalError, message)
}
