package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPull/pkg/logger"
)

type echoRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Limit  int    `json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type barsQuery struct {
	Timeframe string `query:"tf" validate:"required,oneof=1m 1h 1d"`
}

func newTestServer(opts ...ServerOption) *Server {
	routes := HandlerFunc(func(e *echo.Echo) {
		e.POST("/echo", func(c echo.Context) error {
			var req echoRequest
			if errs := ReadAndValidateRequest(c, &req); errs != nil {
				return BadRequestResponse(c, errs)
			}
			return SuccessResponse(c, req)
		})
		e.GET("/bars", func(c echo.Context) error {
			var q barsQuery
			if errs := ReadAndValidateRequest(c, &q); errs != nil {
				return BadRequestResponse(c, errs)
			}
			return ListResponse(c, []string{q.Timeframe}, 1)
		})
		e.GET("/panic", func(echo.Context) error {
			panic("kaboom")
		})
	})
	return NewServer(logger.Nop(), []Handler{routes, nil}, opts...)
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

type validationBody struct {
	Status int               `json:"status"`
	Data   []ValidationError `json:"data"`
}

func TestValidRequestFillsDefaults(t *testing.T) {
	rec := serve(newTestServer(), http.MethodPost, "/echo", `{"symbol":"BTCUSDT"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status int         `json:"status"`
		Data   echoRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDT", body.Data.Symbol)
	assert.Equal(t, 100, body.Data.Limit)
}

func TestValidationErrorsUseWireNames(t *testing.T) {
	s := newTestServer()

	rec := serve(s, http.MethodPost, "/echo", `{"limit":5000}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body validationBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "symbol", body.Data[0].Field)
	assert.Equal(t, "ERR_REQUIRED", body.Data[0].Code)
	assert.Equal(t, "limit", body.Data[1].Field)
	assert.Equal(t, "ERR_LTE", body.Data[1].Code)
	assert.Equal(t, "1000", body.Data[1].Params["max"])

	rec = serve(s, http.MethodGet, "/bars?tf=3h", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = validationBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "tf", body.Data[0].Field)
	assert.Equal(t, "ERR_ONEOF", body.Data[0].Code)
}

func TestMalformedBodyIsBindError(t *testing.T) {
	rec := serve(newTestServer(), http.MethodPost, "/echo", `{"symbol":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body validationBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_BIND", body.Data[0].Code)
}

func TestQueryBindingAndListResponse(t *testing.T) {
	rec := serve(newTestServer(), http.MethodGet, "/bars?tf=1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"message":"OK","data":{"rows":["1h"],"total":1}}`, rec.Body.String())
}

func TestPanicIsRecovered(t *testing.T) {
	rec := serve(newTestServer(), http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

func TestMetricsPath(t *testing.T) {
	rec := serve(newTestServer(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newTestServer(WithMetricsPath("")), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
