package middleware

import (
	"net/http"

	"kolmarket/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error pushed onto the gin context as the
// errutil JSON envelope. Unknown errors map to a generic 500 so storage
// failures never leak details to callers.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		if be, ok := last.Err.(errutil.BaseError); ok {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "something went wrong, please try again",
			},
		})
	}
}
