// Package server provides the HTTP server for the statement service.
//
// The server exposes two API surfaces sharing one analysis service:
//
// # Legacy API
//
//   - GET  /api/health   - "Service is running"
//   - POST /api/analyze  - Analyze the donations of one uploaded file
//   - POST /api/validate - Check whether an uploaded file can be processed
//   - GET  /api/formats  - List supported format versions
//
// # API v1
//
//   - POST /api/v1/donations/analyze-single   - Analyze one file (field "file")
//   - POST /api/v1/donations/analyze-multiple - Analyze files together (field "files")
//   - POST /api/v1/donations/validate         - Validate one file with its report
//   - GET  /api/v1/donations/report           - Analyze stored donations by date range
//   - GET  /api/v1/formats                    - List supported format versions
//   - GET  /api/v1/analyses/{id}              - Get a stored analysis
//   - POST /api/v1/messages/validate          - Validate any registered message
//   - POST /api/v1/messages/normalize         - Return the canonical form of a message
//
// Uploads are multipart forms. The messages endpoints also accept the raw
// XML as request body. When oauth2 is configured, the uploads and every v1
// route require a bearer token.
//
// # Health & Metrics
//
//   - GET /health  - Liveness probe
//   - GET /ready   - Readiness probe (storage ping)
//   - GET /metrics - Prometheus metrics (if enabled)
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/omerasipi/Es-Selam-Banko/internal/analysis"
	"github.com/omerasipi/Es-Selam-Banko/internal/auth"
	"github.com/omerasipi/Es-Selam-Banko/internal/config"
	"github.com/omerasipi/Es-Selam-Banko/internal/observability"
	"github.com/omerasipi/Es-Selam-Banko/internal/storage"
	"github.com/omerasipi/Es-Selam-Banko/pkg/camt"
	"github.com/omerasipi/Es-Selam-Banko/pkg/compression"
	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/validate"
)

const dateLayout = "2006-01-02"

// errTooLarge indicates an upload above the configured limit
var errTooLarge = errors.New("file exceeds upload limit")

// multipartOverhead allows for part headers and boundaries on top of the file bytes
const multipartOverhead = 64 << 10

// Server is the statement service HTTP server
type Server struct {
	config  *config.Config
	logger  zerolog.Logger
	service *analysis.Service
	auth    *auth.Authenticator
	router  *gin.Engine
	httpSrv *http.Server
}

// New creates a new server
func New(cfg *config.Config, svc *analysis.Service, logger zerolog.Logger) *Server {
	s := &Server{
		config:  cfg,
		logger:  logger.With().Str("component", "server").Logger(),
		service: svc,
		auth:    auth.NewAuthenticator(cfg.OAuth2, logger),
	}

	if cfg.Metrics.Metrics.Enabled {
		observability.RegisterMetrics()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(corsConfig(cfg.Server.CorsOrigins)))
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	s.router = r
	s.registerRoutes()

	s.httpSrv = &http.Server{
		Handler:      r,
		ReadTimeout:  orDefault(cfg.Server.ReadTimeout.Std(), 30*time.Second),
		WriteTimeout: orDefault(cfg.Server.WriteTimeout.Std(), 60*time.Second),
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Accept-Encoding"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the configured address
func (s *Server) Start() error {
	s.httpSrv.Addr = s.config.Server.Addr()
	s.logger.Info().Str("addr", s.httpSrv.Addr).Bool("tls", s.config.Server.TLS.Enabled).Msg("starting server")
	var err error
	if s.config.Server.TLS.Enabled {
		err = s.httpSrv.ListenAndServeTLS(s.config.Server.TLS.CertFile, s.config.Server.TLS.KeyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	r := s.router

	// Health check
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	if s.config.Metrics.Metrics.Enabled {
		r.GET(s.config.Metrics.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	requireToken := s.auth.Middleware()

	single := s.limitBody(1)
	multiple := s.limitBody(s.config.Server.MaxFiles)

	legacy := r.Group("/api")
	legacy.GET("/health", s.handleLegacyHealth)
	legacy.POST("/analyze", requireToken, single, s.handleLegacyAnalyze)
	legacy.POST("/validate", requireToken, single, s.handleLegacyValidate)
	legacy.GET("/formats", s.handleFormats)

	v1 := r.Group("/api/v1", requireToken)
	v1.POST("/donations/analyze-single", single, s.handleAnalyzeSingle)
	v1.POST("/donations/analyze-multiple", multiple, s.handleAnalyzeMultiple)
	v1.POST("/donations/validate", single, s.handleValidate)
	v1.GET("/donations/report", s.handleReport)
	v1.GET("/formats", s.handleFormats)
	v1.GET("/analyses/:id", s.handleGetAnalysis)
	v1.POST("/messages/validate", single, s.handleValidateMessage)
	v1.POST("/messages/normalize", single, s.handleNormalize)
}

// limitBody caps the request body at files uploads of the configured size.
// Reads past the cap fail with *http.MaxBytesError.
func (s *Server) limitBody(files int) gin.HandlerFunc {
	if files < 1 {
		files = 1
	}
	limit := s.config.Server.MaxUploadBytes*int64(files) + multipartOverhead
	return func(c *gin.Context) {
		if s.config.Server.MaxUploadBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// Health handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	if err := s.service.Ping(c.Request.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("storage not ready")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleLegacyHealth(c *gin.Context) {
	c.String(http.StatusOK, "Service is running")
}

func (s *Server) handleFormats(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.SupportedFormats())
}

// Legacy handlers

func (s *Server) handleLegacyAnalyze(c *gin.Context) {
	f, err := s.formFile(c, "file")
	if err != nil {
		s.legacyUploadError(c, err)
		return
	}

	res, err := s.service.AnalyzeFile(c.Request.Context(), analysis.SourceHTTP, f)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{"error": "Failed to process file", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis":              res.Analysis,
		"fileName":              f.Name,
		"fileSize":              len(f.Data),
		"transactionsProcessed": res.TotalTransactions,
	})
}

func (s *Server) handleLegacyValidate(c *gin.Context) {
	f, err := s.formFile(c, "file")
	if err != nil {
		s.legacyUploadError(c, err)
		return
	}

	v, err := s.service.ValidateFile(f)
	if err != nil {
		s.legacyUploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"isValid":  v.IsValid,
		"fileName": v.FileInfo.FileName,
		"fileSize": v.FileInfo.FileSize,
	})
}

// legacyUploadError answers empty uploads with plain text
func (s *Server) legacyUploadError(c *gin.Context, err error) {
	if errors.Is(err, analysis.ErrEmptyFile) {
		c.String(http.StatusBadRequest, "File is empty")
		return
	}
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": "Failed to process file", "message": err.Error()})
}

// Donation handlers

func (s *Server) handleAnalyzeSingle(c *gin.Context) {
	f, err := s.formFile(c, "file")
	if err != nil {
		s.uploadError(c, err)
		return
	}

	res, err := s.service.AnalyzeFile(c.Request.Context(), analysis.SourceHTTP, f)
	if err != nil {
		s.jsonError(c, err, "Failed to process file: ")
		return
	}

	summary := res.Files[0]
	c.JSON(http.StatusOK, gin.H{
		"analysisId": res.ID,
		"analysis":   res.Analysis,
		"fileInfo": analysis.FileInfo{
			FileName: summary.FileName,
			FileSize: summary.FileSize,
			FileType: summary.FileType,
		},
		"duplicate":             summary.Duplicate,
		"transactionsProcessed": res.TotalTransactions,
	})
}

func (s *Server) handleAnalyzeMultiple(c *gin.Context) {
	files, err := s.formFiles(c, "files")
	if err != nil {
		s.uploadError(c, err)
		return
	}

	res, err := s.service.AnalyzeFiles(c.Request.Context(), analysis.SourceHTTP, files)
	if err != nil {
		s.jsonError(c, err, "Failed to process files: ")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysisId":                 res.ID,
		"analysis":                   res.Analysis,
		"processedFiles":             res.Files,
		"totalTransactionsProcessed": res.TotalTransactions,
	})
}

func (s *Server) handleValidate(c *gin.Context) {
	f, err := s.formFile(c, "file")
	if err != nil {
		s.uploadError(c, err)
		return
	}

	v, err := s.service.ValidateFile(f)
	if err != nil {
		s.jsonError(c, err, "Failed to validate file: ")
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleReport(c *gin.Context) {
	from, err := parseDate(c.Query("startDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate, expected YYYY-MM-DD"})
		return
	}
	to, err := parseDate(c.Query("endDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate, expected YYYY-MM-DD"})
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endDate is before startDate"})
		return
	}

	report, err := s.service.Report(c.Request.Context(), from, to)
	if err != nil {
		s.jsonError(c, err, "Failed to build report: ")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"startDate": c.Query("startDate"),
		"endDate":   c.Query("endDate"),
		"analysis":  report,
	})
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, v)
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	rec, err := s.service.GetAnalysis(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		return
	}
	if err != nil {
		s.jsonError(c, err, "Failed to load analysis: ")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Message handlers

func (s *Server) handleValidateMessage(c *gin.Context) {
	f, err := s.messageBody(c)
	if err != nil {
		s.uploadError(c, err)
		return
	}

	report, err := s.service.ValidateMessage(f)
	if err != nil {
		s.jsonError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleNormalize(c *gin.Context) {
	f, err := s.messageBody(c)
	if err != nil {
		s.uploadError(c, err)
		return
	}

	var opts []message.SerializeOption
	if c.Query("compact") == "true" {
		opts = append(opts, message.Compact())
	} else if v := c.Query("indent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 8 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "indent must be between 0 and 8"})
			return
		}
		opts = append(opts, message.WithIndent(n))
	}

	out, err := s.service.Normalize(f, opts...)
	if err != nil {
		if report := invalidReport(err); report != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "issues": report.Issues})
			return
		}
		s.jsonError(c, err, "")
		return
	}

	const contentType = "application/xml; charset=utf-8"
	if acceptsGzip(c.Request) && compression.ShouldCompress(contentType) {
		gz, err := compression.NewCompressor().Compress(out)
		if err == nil {
			c.Header("Content-Encoding", "gzip")
			c.Header("Vary", "Accept-Encoding")
			c.Data(http.StatusOK, contentType, gz)
			return
		}
		s.logger.Warn().Err(err).Msg("compressing response failed")
	}
	c.Data(http.StatusOK, contentType, out)
}

func invalidReport(err error) *validate.Error {
	var verr *validate.Error
	if errors.As(err, &verr) {
		return verr
	}
	return nil
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(part, ";", 2)[0]) == "gzip" {
			return true
		}
	}
	return false
}

// Upload helpers

// formFile reads one multipart file
func (s *Server) formFile(c *gin.Context, field string) (analysis.File, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if bodyTooLarge(err) {
			return analysis.File{}, errTooLarge
		}
		return analysis.File{}, fmt.Errorf("%w: required file part '%s' is missing", errBadRequest, field)
	}
	if fh.Size > s.config.Server.MaxUploadBytes {
		return analysis.File{}, errTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return analysis.File{}, err
	}
	defer src.Close()

	data, err := s.readLimited(src)
	if err != nil {
		return analysis.File{}, err
	}
	if len(data) == 0 {
		return analysis.File{}, analysis.ErrEmptyFile
	}
	return analysis.File{Name: fh.Filename, Data: data}, nil
}

// formFiles reads every multipart file of a field
func (s *Server) formFiles(c *gin.Context, field string) ([]analysis.File, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if bodyTooLarge(err) {
			return nil, errTooLarge
		}
		return nil, analysis.ErrNoFiles
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, analysis.ErrNoFiles
	}
	if limit := s.config.Server.MaxFiles; limit > 0 && len(headers) > limit {
		return nil, fmt.Errorf("%w: at most %d files per request", errBadRequest, limit)
	}

	files := make([]analysis.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > s.config.Server.MaxUploadBytes {
			return nil, fmt.Errorf("%s: %w", fh.Filename, errTooLarge)
		}
		src, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := s.readLimited(src)
		src.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, analysis.File{Name: fh.Filename, Data: data})
	}
	return files, nil
}

// messageBody reads a multipart "file" or the raw request body
func (s *Server) messageBody(c *gin.Context) (analysis.File, error) {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType == "multipart/form-data" {
		return s.formFile(c, "file")
	}
	data, err := s.readLimited(c.Request.Body)
	if err != nil {
		return analysis.File{}, err
	}
	if len(data) == 0 {
		return analysis.File{}, analysis.ErrEmptyFile
	}
	return analysis.File{Name: "body.xml", Data: data}, nil
}

func (s *Server) readLimited(r io.Reader) ([]byte, error) {
	limit := s.config.Server.MaxUploadBytes
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		if bodyTooLarge(err) {
			return nil, errTooLarge
		}
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// Error responses

var errBadRequest = errors.New("bad request")

func (s *Server) uploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analysis.ErrEmptyFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is empty"})
	case errors.Is(err, analysis.ErrNoFiles):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
	default:
		s.jsonError(c, err, "")
	}
}

func (s *Server) jsonError(c *gin.Context, err error, prefix string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)

	msg := err.Error()
	switch {
	case errors.Is(err, analysis.ErrEmptyFile):
		msg = "File is empty"
		var fe *analysis.FileError
		if errors.As(err, &fe) {
			msg += ": " + fe.FileName
		}
	case errors.Is(err, errBadRequest):
		msg = strings.TrimPrefix(msg, errBadRequest.Error()+": ")
	}
	c.JSON(status, gin.H{"error": prefix + msg})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var syntaxErr *message.SyntaxError
	switch {
	case errors.Is(err, analysis.ErrEmptyFile),
		errors.Is(err, analysis.ErrNoFiles),
		errors.Is(err, message.ErrEmptyInput),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errTooLarge),
		errors.Is(err, compression.ErrTooLarge),
		bodyTooLarge(err):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, message.ErrUnsupportedFormat),
		errors.Is(err, message.ErrDoctype),
		errors.Is(err, message.ErrNoDocument),
		errors.Is(err, message.ErrRootMismatch),
		errors.Is(err, camt.ErrUnsupportedFormat),
		errors.Is(err, validate.ErrInvalid),
		errors.As(err, &syntaxErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
