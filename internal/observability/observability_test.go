package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)

	before := testutil.ToFloat64(statementsProcessed.WithLabelValues("http", "unknown", "ok"))
	RecordStatement("http", "", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(statementsProcessed.WithLabelValues("http", "unknown", "ok")))

	RecordTransactions("053.001.08", "CREDIT", 0)
	RecordValidationIssue("cardinality", "error")
	RecordEventPublished("banko.analysis.completed", false)
	RecordAnalysis(3 * time.Millisecond)

	before = testutil.ToFloat64(duplicates.WithLabelValues("nats"))
	RecordDuplicate("nats")
	assert.Equal(t, before+1, testutil.ToFloat64(duplicates.WithLabelValues("nats")))

	before = testutil.ToFloat64(transactionsExtracted.WithLabelValues("054.001.08", "DEBIT"))
	RecordTransactions("054.001.08", "DEBIT", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(transactionsExtracted.WithLabelValues("054.001.08", "DEBIT")))
}

func TestInitLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := InitLogger("banko", "warn", "json", &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("file", "a.xml").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "banko", entry["app"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "a.xml", entry["file"])

	_, err = InitLogger("banko", "loud", "json", &buf)
	assert.Error(t, err)

	logger, err = InitLogger("banko", "", "console", &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestMiddlewares(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	router := gin.New()
	router.Use(RequestLogger(logger), RequestMetricsMiddleware())
	router.GET("/items/:id", func(c *gin.Context) {
		c.String(http.StatusTeapot, "short and stout")
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/items/:id", "418"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "/items/:id", entry["path"])
	assert.Equal(t, float64(418), entry["status"])
	assert.Equal(t, "http_request", entry["message"])

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/items/:id", "418")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")), float64(1))
}
