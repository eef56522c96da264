package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger middleware logs HTTP requests with the authenticated subject, if any
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		subject := c.GetString(SubjectKey)
		if subject == "" {
			subject = "-"
		}

		log.Printf("[%s] %s %s %s %d %v %s",
			c.Request.Method,
			path,
			c.ClientIP(),
			subject,
			c.Writer.Status(),
			time.Since(start),
			c.Errors.String(),
		)
	}
}
