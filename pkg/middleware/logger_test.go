package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_IncludesRequestContext(t *testing.T) {
	var messages []ectologger.EctoLogMessage
	logger := ectologger.NewEctoLogger(func(m ectologger.EctoLogMessage) { messages = append(messages, m) })

	e := echo.New()
	e.Use(Context())
	e.Use(Logger(logger))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderSourceSystem, "clinic")
	req.Header.Set(HeaderUserID, "ops@example.org")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, messages)

	raw, err := json.Marshal(messages[len(messages)-1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "clinic")
	assert.Contains(t, string(raw), "ops@example.org")
	assert.Contains(t, string(raw), "/ping")
}

func TestLogger_OmitsEmptyIdentityFields(t *testing.T) {
	var messages []ectologger.EctoLogMessage
	logger := ectologger.NewEctoLogger(func(m ectologger.EctoLogMessage) { messages = append(messages, m) })

	e := echo.New()
	e.Use(Context())
	e.Use(Logger(logger))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.NotEmpty(t, messages)
	raw, err := json.Marshal(messages[len(messages)-1])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "source_system")
	assert.NotContains(t, string(raw), "user_id")
}
