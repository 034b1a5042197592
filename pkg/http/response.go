package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope of every JSON answer.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []*AppError `json:"errors,omitempty"`
}

func respond(c echo.Context, status int, data interface{}, errs []*AppError) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
		Errors:  errs,
	})
}

func DataResponse(c echo.Context, status int, data interface{}) error {
	return respond(c, status, data, nil)
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return respond(c, http.StatusOK, data, nil)
}

func CreatedResponse(c echo.Context, data interface{}) error {
	return respond(c, http.StatusCreated, data, nil)
}

func AcceptedResponse(c echo.Context, data interface{}) error {
	return respond(c, http.StatusAccepted, data, nil)
}

// BadRequestResponse answers 400 with one entry per rejected field.
func BadRequestResponse(c echo.Context, errs []*AppError) error {
	return respond(c, http.StatusBadRequest, nil, errs)
}

func InternalServerErrorResponse(c echo.Context) error {
	return respond(c, http.StatusInternalServerError, nil,
		[]*AppError{NewAppError(http.StatusInternalServerError, "ERR_INTERNAL", "something went wrong")})
}

// AppErrorResponse answers an *AppError or an echo HTTP error in the common
// envelope. Anything else is a 500 whose cause is not shown to the client.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
		}
		return respond(c, appErr.Status, appErr.Payload, []*AppError{appErr})
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		return respond(c, he.Code, nil, []*AppError{NewAppError(he.Code, httpErrorCode(he.Code), fmt.Sprint(he.Message))})
	}
	return InternalServerErrorResponse(c)
}

// ErrorHandler is installed as echo's HTTPErrorHandler so router misses and
// middleware failures use the same envelope as handlers.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		_ = c.NoContent(code)
		return
	}
	_ = AppErrorResponse(c, err)
}

func httpErrorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "ERR_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "ERR_METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "ERR_TOO_LARGE"
	case http.StatusServiceUnavailable:
		return "ERR_UNAVAILABLE"
	}
	return "ERR_BAD_REQUEST"
}
