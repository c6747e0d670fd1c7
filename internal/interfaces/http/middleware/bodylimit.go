package middleware

import (
	"fmt"
	"net/http"

	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit rejects requests whose declared length exceeds maxBytes and caps
// streamed bodies. Reads past the cap fail with *http.MaxBytesError, which
// BindingError turns into a 413.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			_ = c.Error(dto.NewStatusError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", maxBytes)))
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
