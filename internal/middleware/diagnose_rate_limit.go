package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// DefaultDiagnoseRateLimit is the per-IP requests-per-minute allowance for
// diagnosis endpoints. Reasoning calls are expensive, so these routes are
// held well below the general 100/min limit.
const DefaultDiagnoseRateLimit = 10

// NewDiagnoseRateLimitMiddlewareWithConfig creates the stricter rate limiting
// middleware for diagnosis endpoints
func NewDiagnoseRateLimitMiddlewareWithConfig(limit int64, period time.Duration) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance)
}
