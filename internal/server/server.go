// Package server exposes the extraction service over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/andresmejia3/rotisserie/internal/extraction"
	"github.com/andresmejia3/rotisserie/internal/store"
	"github.com/andresmejia3/rotisserie/internal/types"
)

// Version is reported by /info.
const Version = "0.4"

// maxUpload bounds a posted image. A full 720p gray PNG is well under this.
const maxUpload = 8 << 20

// Extractor is the slice of extraction.Service the handlers use.
type Extractor interface {
	Healthy() bool
	Supports(t types.Title) bool
	Extract(ctx context.Context, t types.Title, req extraction.Request) (extraction.Result, error)
}

// Response is the body of a successful /process_<title> call.
type Response struct {
	Number      int     `json:"number"`
	Probability float64 `json:"probability"`
	ImageData   string  `json:"image_data,omitempty"`
}

// Server represents the API server
type Server struct {
	router  *gin.Engine
	service Extractor
	queue   store.Queue
	metrics *Metrics
	debug   bool
	log     *zap.SugaredLogger
}

// New builds the router. queue and metrics may be nil, which disables /streams and /metrics.
func New(service Extractor, queue store.Queue, metrics *Metrics, debug bool, log *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	s := &Server{
		router:  router,
		service: service,
		queue:   queue,
		metrics: metrics,
		debug:   debug,
		log:     log,
	}
	s.SetupRoutes()
	return s
}

// SetupRoutes configures all API routes
func (s *Server) SetupRoutes() {
	s.router.GET("/info", s.InfoHandler)
	for _, t := range types.Titles {
		s.router.POST("/process_"+string(t), s.ProcessHandler(t))
	}
	if s.queue != nil {
		s.router.GET("/streams", s.StreamsHandler)
		s.router.GET("/current", s.CurrentHandler)
	}
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Handler returns the router (for testing and http.Server)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) InfoHandler(c *gin.Context) {
	health := "good"
	if !s.service.Healthy() {
		health = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"app": "ocr", "version": Version, "health": health})
}

// ProcessHandler handles POST /process_<title>. Extraction failures are still 200 with the
// sentinel reading; only a request without stream or image is rejected.
func (s *Server) ProcessHandler(t types.Title) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.service.Supports(t) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no model loaded for " + string(t)})
			return
		}

		req, err := s.bindRequest(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := s.service.Extract(c.Request.Context(), t, req)
		if err != nil {
			s.log.Errorw("extraction error", "title", t, "error", err)
			res = extraction.Result{ClassificationResult: types.Unknown()}
		}

		body := Response{Number: res.Value, Probability: res.Confidence}
		if s.debug && len(res.Image) > 0 {
			body.ImageData = base64.StdEncoding.EncodeToString(res.Image)
		}
		c.JSON(http.StatusOK, body)
	}
}

var errNoInput = errors.New("request needs a 'stream' field or an 'image' file")

func (s *Server) bindRequest(c *gin.Context) (extraction.Request, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload)

	if name := c.PostForm("stream"); name != "" {
		return extraction.StreamRequest{Name: name}, nil
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, errNoInput
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errNoInput
	}
	return extraction.ImageRequest{Image: data}, nil
}

// StreamsHandler returns the ranking, fewest players alive first.
func (s *Server) StreamsHandler(c *gin.Context) {
	ranked, err := s.queue.Ranked(c.Request.Context())
	if err != nil {
		s.log.Warnw("ranking unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	if ranked == nil {
		ranked = []types.RankedStream{}
	}
	c.JSON(http.StatusOK, ranked)
}

// CurrentHandler returns the leader: the scored stream with the fewest players alive.
func (s *Server) CurrentHandler(c *gin.Context) {
	ranked, err := s.queue.Ranked(c.Request.Context())
	if err != nil {
		s.log.Warnw("ranking unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	if len(ranked) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scored streams"})
		return
	}
	c.JSON(http.StatusOK, ranked[0])
}

func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
