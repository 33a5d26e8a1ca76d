package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorForStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, "ERR_BAD_REQUEST"},
		{http.StatusConflict, "ERR_CONFLICT"},
		{http.StatusUnprocessableEntity, "ERR_UNPROCESSABLE"},
		{http.StatusTeapot, "ERR_INTERNAL"},
	}
	for _, tc := range cases {
		e := ErrorForStatus(tc.status, "x")
		assert.Equal(t, tc.code, e.Code)
		assert.Equal(t, tc.status, e.Status)
	}
}

func TestAppErrorWrapsCause(t *testing.T) {
	cause := errors.New("redis down")
	e := ServiceUnavailableError("job queue unavailable").WithError(cause)
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "job queue unavailable: redis down", e.Error())
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	err := BadRequestErrorf("invalid %s %q", "from", "yesterday").WithParam("value", "yesterday")
	require.NoError(t, AppErrorResponse(c, err))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":400,"message":"Bad Request","data":[
		{"code":"ERR_BAD_REQUEST","message":"invalid from \"yesterday\"","params":{"value":"yesterday"}}]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, errors.New("plain")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
