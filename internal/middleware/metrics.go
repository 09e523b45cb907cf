package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atlasedu/academy-api/internal/service"
)

// Metrics observes method, route, and status for every request. Unmatched
// routes fall back to the raw URL path so scans against unknown paths stay
// visible without exploding label cardinality on real routes.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
