package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteRequest struct {
	Caliber      string `query:"caliber" json:"caliber" validate:"required"`
	Presentation string `query:"presentation" json:"presentation" default:"HEADLESS" validate:"oneof=HEADLESS WHOLE LIVE"`
	Days         *int   `query:"days" json:"days" default:"30" validate:"required,gte=0,lte=365"`
}

type gradeRequest struct {
	Grade string `query:"grade" validate:"required,grade"`
}

func init() {
	RegisterValidation("grade", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), "G")
	}, "%[1]s must start with G")
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	var req quoteRequest
	c, _ := newContext(http.MethodGet, "/?caliber=16/20", "")
	require.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, "16/20", req.Caliber)
	assert.Equal(t, "HEADLESS", req.Presentation)
	require.NotNil(t, req.Days)
	assert.Equal(t, 30, *req.Days)
}

func TestReadAndValidateRequestKeepsExplicitZero(t *testing.T) {
	var req quoteRequest
	c, _ := newContext(http.MethodGet, "/?caliber=16/20&days=0", "")
	require.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, 0, *req.Days)
}

func TestReadAndValidateRequestBindsQueryOnPost(t *testing.T) {
	var req quoteRequest
	c, _ := newContext(http.MethodPost, "/?caliber=21/25&presentation=WHOLE", "")
	require.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, "21/25", req.Caliber)
	assert.Equal(t, "WHOLE", req.Presentation)
}

func TestReadAndValidateRequestReportsFields(t *testing.T) {
	var req quoteRequest
	c, _ := newContext(http.MethodPost, "/", `{"presentation":"FROZEN","days":400}`)
	errs := ReadAndValidateRequest(c, &req)
	require.Len(t, errs, 3)

	assert.Equal(t, "caliber", errs[0].Field)
	assert.Equal(t, "ERR_REQUIRED", errs[0].Code)
	assert.Equal(t, "caliber is required", errs[0].Message)

	assert.Equal(t, "presentation", errs[1].Field)
	assert.Equal(t, "ERR_ONEOF", errs[1].Code)
	assert.Equal(t, "presentation must be one of: HEADLESS, WHOLE, LIVE", errs[1].Message)

	assert.Equal(t, "days", errs[2].Field)
	assert.Equal(t, "ERR_LTE", errs[2].Code)
	assert.Equal(t, "365", errs[2].Params["lte"])
}

func TestReadAndValidateRequestRejectsMalformedBody(t *testing.T) {
	var req quoteRequest
	c, _ := newContext(http.MethodPost, "/", `{"caliber":`)
	errs := ReadAndValidateRequest(c, &req)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
	assert.Equal(t, http.StatusBadRequest, errs[0].Status)
}

func TestRegisteredValidationUsesItsMessage(t *testing.T) {
	var req gradeRequest
	c, _ := newContext(http.MethodGet, "/?grade=A1", "")
	errs := ReadAndValidateRequest(c, &req)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_GRADE", errs[0].Code)
	assert.Equal(t, "grade must start with G", errs[0].Message)

	c, _ = newContext(http.MethodGet, "/?grade=G1", "")
	assert.Nil(t, ReadAndValidateRequest(c, &req))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var env APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestAppErrorResponseCarriesPayload(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", "")
	err := ConflictError("ERR_NOT_VIABLE", "not viable").WithPayload(map[string]float64{"dispatch_estimate": 0.12})
	require.NoError(t, AppErrorResponse(c, err))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":{"dispatch_estimate":0.12}`)
	env := decodeEnvelope(t, rec)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "ERR_NOT_VIABLE", env.Errors[0].Code)
}

func TestAppErrorResponseHidesUnknownErrors(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", "")
	require.NoError(t, AppErrorResponse(c, errors.New("dial tcp 10.0.0.3:9000: refused")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	env := decodeEnvelope(t, rec)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "ERR_INTERNAL", env.Errors[0].Code)
}

func TestRateLimitedErrorSetsRetryAfter(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/", "")
	require.NoError(t, AppErrorResponse(c, RateLimitedError(1500*time.Millisecond)))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	env := decodeEnvelope(t, rec)
	require.Len(t, env.Errors, 1)
	assert.EqualValues(t, 2, env.Errors[0].Params["retry_after_seconds"])
}

func TestErrorHandlerWrapsRouterMisses(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.GET("/api/forecast/public", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/forecast/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "ERR_NOT_FOUND", env.Errors[0].Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/forecast/public", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "ERR_METHOD_NOT_ALLOWED", decodeEnvelope(t, rec).Errors[0].Code)
}
