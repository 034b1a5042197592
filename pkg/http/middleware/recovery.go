package middleware

import (
	"ShrimpCast/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Recover turns a handler panic into a 500 and logs it with the stack.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize:         8 << 10,
		DisablePrintStack: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("panic recovered",
				logger.String("route", c.Path()),
				logger.String("method", c.Request().Method),
				logger.Error(err),
				logger.String("stack", string(stack)))
			return err
		},
	})
}
