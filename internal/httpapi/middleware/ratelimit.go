package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/metrics"
)

type Limiter interface {
	Allow(ctx context.Context, key string) bool
	Prefix() string
}

// RateLimit rejects clients over quota, keyed by client IP.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.Request.Context(), c.ClientIP()) {
			metrics.RateLimited.WithLabelValues(l.Prefix()).Inc()
			common.Fail(c, http.StatusTooManyRequests, 42900, "too many requests, please try again later")
			return
		}
		c.Next()
	}
}
