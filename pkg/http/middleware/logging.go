package middleware

import (
	"ShrimpCast/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestLogging logs every request at debug level. Requests that ended in
// an error are logged at warn with the error.
func RequestLogging(l *logger.Logger, skipper echomw.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = echomw.DefaultSkipper
	}
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		Skipper:      skipper,
		HandleError:  true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.String("route", v.RoutePath),
				logger.String("remote", v.RemoteIP),
				logger.Int("status", v.Status),
				logger.Duration("latency_ms", v.Latency),
			}
			if v.Error != nil {
				l.Warn("http request", append(fields, logger.Error(v.Error))...)
				return nil
			}
			l.Debug("http request", fields...)
			return nil
		},
	})
}
