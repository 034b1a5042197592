package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// messages are fmt templates taking the field name and the tag parameter.
var messages = map[string]string{
	"required": "%[1]s is required",
	"datetime": "%[1]s must be a date formatted as %[2]s",
	"oneof":    "%[1]s must be one of: %[2]s",
	"gt":       "%[1]s must be greater than %[2]s",
	"gte":      "%[1]s must be at least %[2]s",
	"lt":       "%[1]s must be less than %[2]s",
	"lte":      "%[1]s must be at most %[2]s",
	"min":      "%[1]s needs at least %[2]s entries",
	"max":      "%[1]s takes at most %[2]s entries",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// RegisterValidation adds a domain tag. message is a template like the ones
// above. Call it from init, before any request is served.
func RegisterValidation(tag string, fn validator.Func, message string) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
	messages[tag] = message
}

// ReadAndValidateRequest binds path, query and body into req, fills
// `default` tags and validates. Query parameters are bound for every method.
// A nil result means req is ready to use.
func ReadAndValidateRequest(c echo.Context, req interface{}) []*AppError {
	if err := c.Bind(req); err != nil {
		return bindErrors(err)
	}
	switch c.Request().Method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
	default:
		if len(c.QueryParams()) > 0 {
			if err := (&echo.DefaultBinder{}).BindQueryParams(c, req); err != nil {
				return bindErrors(err)
			}
		}
	}
	if err := defaults.Set(req); err != nil {
		return []*AppError{NewAppError(http.StatusBadRequest, "ERR_DEFAULTS", err.Error())}
	}

	err := validate.StructCtx(c.Request().Context(), req)
	var fields validator.ValidationErrors
	if err == nil {
		return nil
	}
	if !errors.As(err, &fields) {
		return []*AppError{NewAppError(http.StatusBadRequest, "ERR_INVALID", err.Error())}
	}
	out := make([]*AppError, 0, len(fields))
	for _, fe := range fields {
		e := NewAppError(http.StatusBadRequest, "ERR_"+strings.ToUpper(fe.Tag()), message(fe))
		e.Field = fe.Field()
		if p := fe.Param(); p != "" {
			e.WithParam(fe.Tag(), p)
		}
		out = append(out, e)
	}
	return out
}

func message(fe validator.FieldError) string {
	tmpl, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	param := fe.Param()
	if fe.Tag() == "oneof" {
		param = strings.ReplaceAll(param, " ", ", ")
	}
	return fmt.Sprintf(tmpl, fe.Field(), param)
}

// bindErrors names the offending field when echo can tell which one it was.
func bindErrors(err error) []*AppError {
	e := NewAppError(http.StatusBadRequest, "ERR_BIND", err.Error())
	var be *echo.BindingError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &be):
		e.Field = be.Field
		e.Message = fmt.Sprintf("%s has an invalid value", be.Field)
	case errors.As(err, &he):
		e.Message = fmt.Sprint(he.Message)
	}
	return []*AppError{e}
}
