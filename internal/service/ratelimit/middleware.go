package ratelimit

import (
	"time"

	xhttp "ShrimpCast/pkg/http"

	"github.com/labstack/echo/v4"
)

// Middleware limits each client IP on the wrapped route to capacity requests
// with one token returned every refill.
func Middleware(l *Limiter, capacity int, refill time.Duration) echo.MiddlewareFunc {
	perSec := 0.0
	if refill > 0 {
		perSec = 1 / refill.Seconds()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if capacity <= 0 {
				return next(c)
			}
			key := c.Path() + "|" + c.RealIP()
			if !l.Allow(key, float64(capacity), perSec) {
				return xhttp.AppErrorResponse(c, xhttp.RateLimitedError(refill))
			}
			return next(c)
		}
	}
}
