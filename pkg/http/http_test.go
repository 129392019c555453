package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "FieldScan/pkg/logger"
)

func TestClient_SendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, []string{"a", "b"}, r.URL.Query()["sym"])
			_, _ = w.Write([]byte(`{"name":"x","n":3}`))
		case "/throttled":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second))

	var out struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL + "/ok",
		QueryParams: map[string][]string{"sym": {"a", "b"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "x", out.Name)
	assert.Equal(t, 3, out.N)

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL + "/throttled"}, &out)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, "slow down", se.Body)
	assert.True(t, se.Temporary())

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL + "/missing"}, nil)
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Temporary())
}

type listReq struct {
	Mode  string `query:"mode" json:"mode" default:"backtest" validate:"oneof=backtest live"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=500"`
}

func TestReadAndValidateRequest(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	var ok listReq
	assert.Nil(t, ReadAndValidateRequest(c, &ok))
	assert.Equal(t, "backtest", ok.Mode)
	assert.Equal(t, 100, ok.Limit)

	req = httptest.NewRequest(http.MethodGet, "/x?mode=paper&limit=900", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	var bad listReq
	res := ReadAndValidateRequest(c, &bad)
	errs, isList := res.([]ValidationError)
	require.True(t, isList)
	require.Len(t, errs, 2)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "mode", errs[0].Field)
	assert.Equal(t, "ERR_LTE", errs[1].Code)
	assert.Equal(t, "limit", errs[1].Field)
}

type tickersReq struct {
	Tickers []string `json:"tickers" validate:"dive,ticker"`
}

func TestReadAndValidateRequest_Tickers(t *testing.T) {
	e := echo.New()
	bind := func(body string) interface{} {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		var r tickersReq
		return ReadAndValidateRequest(e.NewContext(req, httptest.NewRecorder()), &r)
	}

	assert.Nil(t, bind(`{"tickers":[" aapl ","BRK.B","rds-a"]}`))

	for _, body := range []string{`{"tickers":[""]}`, `{"tickers":["AAPL;DROP"]}`, `{"tickers":["ABCDEFGHIJKLMNOPQ"]}`} {
		errs, isList := bind(body).([]ValidationError)
		require.True(t, isList, body)
		require.Len(t, errs, 1, body)
		assert.Equal(t, "ERR_TICKER", errs[0].Code, body)
	}
}

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	e.GET("/conflict", func(c echo.Context) error {
		return AppErrorResponse(c, ConflictError("scan already running"))
	})
}

func TestServer_RoutesRecoverAndMetrics(t *testing.T) {
	s := NewServer(routes{}, applogger.Nop(), WithMetrics("/metrics"), WithCORS(false))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_CONFLICT")

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fieldscan_http_requests_total"))
}
