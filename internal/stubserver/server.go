// Package stubserver is an in-memory implementation of the merge service's
// REST contract. It backs client tests and the `stub-server` command for
// offline demos; it is not a replacement for the real validation service.
package stubserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rvcleanup/rv-cleanup/internal/logging"
	"github.com/rvcleanup/rv-cleanup/internal/models"
)

// Options configures a Server.
type Options struct {
	// UploadDelay holds each POST /upload before answering, to make the
	// estimate ticker visible in demos.
	UploadDelay time.Duration
	// Now stamps last_updated. Defaults to time.Now.
	Now    func() time.Time
	Logger *logging.Logger
}

// Server serves the contract from a Store.
type Server struct {
	store  *Store
	engine *gin.Engine
	opts   Options
	logger *logging.Logger
}

// New creates a server with an empty store.
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:  NewStore(opts.Now),
		engine: gin.New(),
		opts:   opts,
		logger: logging.OrNop(opts.Logger).Component("stub-server"),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// Store exposes the backing store for seeding.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Stub service listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Email Cleanup API is live!"})
	})
	s.engine.POST("/upload", s.uploadHandler)
	s.engine.GET("/master-emails", s.masterHandler)
	s.engine.GET("/invalid-emails", s.invalidListHandler)
	s.engine.POST("/invalid-emails/upload", s.invalidUploadHandler)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	}
}

func (s *Server) readUpload(c *gin.Context) ([]csvRow, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file: %w", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot open upload: %w", err)
	}
	defer f.Close()
	return readCSV(f)
}

func (s *Server) uploadHandler(c *gin.Context) {
	brandValue := c.PostForm("brand")
	brand, err := models.ParseBrand(brandValue)
	if err != nil || brand == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Upload failed: unknown brand %q", brandValue)})
		return
	}

	rows, err := s.readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Upload failed: " + err.Error()})
		return
	}

	if s.opts.UploadDelay > 0 {
		select {
		case <-time.After(s.opts.UploadDelay):
		case <-c.Request.Context().Done():
			return
		}
	}

	out := s.store.mergeBrand(brand, rows)
	sample := out.invalid
	if len(sample) > 50 {
		sample = sample[:50]
	}
	c.JSON(http.StatusOK, gin.H{
		"status":                     "success",
		"brand":                      string(brand),
		"rows_uploaded":              out.rowsUploaded,
		"rows_after_invalid_removal": out.rowsKept,
		"invalid_count":              len(out.invalid),
		"invalid_emails":             sample,
		"inserted_to_brand":          out.insertedToBrand,
		"merge_result": gin.H{
			"status":   "success",
			"updated":  out.updated,
			"inserted": out.inserted,
			"total":    out.updated + out.inserted,
		},
	})
}

// pageParams reads limit (1..1000, default 100) and offset (>=0).
func pageParams(c *gin.Context) (limit, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		return 0, 0, errors.New("limit must be between 1 and 1000")
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, errors.New("offset must be non-negative")
	}
	return limit, offset, nil
}

func (s *Server) masterHandler(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q := models.MasterQuery{
		Limit:  limit,
		Offset: offset,
		Filters: models.MasterFilters{
			Search:  c.Query("search"),
			Segment: models.Segment(c.Query("segment")),
		},
		FullExport: strings.EqualFold(c.Query("full_export"), "true"),
	}
	if code := c.Query("brand"); code != "" {
		if b, ok := models.BrandFromCode(code); ok {
			q.Filters.Brand = b
		}
	}

	records, total := s.store.queryMaster(q)
	c.JSON(http.StatusOK, gin.H{"status": "success", "total": total, "data": records})
}

func (s *Server) invalidListHandler(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records, total := s.store.queryInvalid(models.InvalidQuery{Limit: limit, Offset: offset}, c.Query("search"), c.Query("brand"))
	c.JSON(http.StatusOK, gin.H{"status": "success", "total": total, "data": records})
}

func (s *Server) invalidUploadHandler(c *gin.Context) {
	brand := c.PostForm("brand")
	rows, err := s.readUpload(c)
	if errors.Is(err, errMissingEmailColumn) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'email' column."})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	added := s.store.addInvalid(brand, rows)
	c.JSON(http.StatusOK, gin.H{"status": "success", "brand": brand, "added": added})
}
