package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewRateLimiter caps each client IP at requests per period, counted in
// process memory. period uses time.ParseDuration syntax ("1m", "1h").
func NewRateLimiter(requests int64, period string) (gin.HandlerFunc, error) {
	duration, err := time.ParseDuration(period)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit period %q: %w", period, err)
	}

	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: duration,
		Limit:  requests,
	})
	return mgin.NewMiddleware(instance), nil
}
