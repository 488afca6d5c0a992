package webui

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/traffix-ai/traffix-dashboard/internal/api"
	"github.com/traffix-ai/traffix-dashboard/internal/camera"
	"github.com/traffix-ai/traffix-dashboard/internal/dashboard"
	"github.com/traffix-ai/traffix-dashboard/internal/logger"
)

// Controller is the dashboard surface the web UI drives.
type Controller interface {
	Snapshot() dashboard.State
	Notices() []dashboard.Notice
	AnalyzeMedia(ctx context.Context, media dashboard.Media) (api.AnalysisResult, error)
	StartCamera(ctx context.Context) error
	StopCamera()
	CaptureFrame(ctx context.Context) (api.AnalysisResult, error)
	SubmitToll(ctx context.Context, plate string) (api.TollResult, error)
	Stream() camera.Stream
}

// Config defines the runtime configuration for the web UI.
type Config struct {
	Addr           string
	StatusInterval time.Duration
	MJPEGInterval  time.Duration
	JPEGQuality    int
	CORSOrigins    []string
}

// DefaultConfig returns the stock web UI settings.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 2 * time.Second,
		MJPEGInterval:  100 * time.Millisecond,
		JPEGQuality:    camera.DefaultJPEGQuality,
		CORSOrigins:    []string{"*"},
	}
}

// Server serves the dashboard page and its JSON/streaming endpoints.
type Server struct {
	cfg    Config
	ctrl   Controller
	engine *gin.Engine
}

// NewServer returns a configured web UI server.
func NewServer(cfg Config, ctrl Controller) *Server {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}
	if cfg.MJPEGInterval <= 0 {
		cfg.MJPEGInterval = DefaultConfig().MJPEGInterval
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultConfig().JPEGQuality
	}

	s := &Server{cfg: cfg, ctrl: ctrl}
	s.engine = s.newEngine()
	return s
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))

	r.SetHTMLTemplate(template.Must(template.New("index").Funcs(templateFuncs).Parse(indexHTML)))

	r.GET("/", s.handleIndex)
	r.GET("/healthz", s.handleHealth)
	r.GET("/camera/stream", s.handleCameraStream)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/state", s.handleState)
		apiGroup.GET("/state/stream", s.handleStateStream)
		apiGroup.GET("/notices", s.handleNotices)
		apiGroup.POST("/analyze", s.handleAnalyze)
		apiGroup.POST("/camera/start", s.handleCameraStart)
		apiGroup.POST("/camera/stop", s.handleCameraStop)
		apiGroup.POST("/camera/capture", s.handleCameraCapture)
		apiGroup.POST("/toll", s.handleToll)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	cfg.ExposeHeaders = []string{"X-Content-Format"}

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("HTTP", "%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started))
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", gin.H{
		"State":   s.ctrl.Snapshot(),
		"Notices": s.ctrl.Notices(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleNotices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notices": s.ctrl.Notices()})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	kind, err := api.ParseMediaKind(c.Query("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		s.handleError(c, dashboard.ErrNoMedia)
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("unable to read uploaded file"))
		return
	}
	defer file.Close()

	result, err := s.ctrl.AnalyzeMedia(c.Request.Context(), dashboard.Media{
		Kind:     kind,
		Filename: header.Filename,
		Body:     file,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(result))
}

func (s *Server) handleCameraStart(c *gin.Context) {
	if err := s.ctrl.StartCamera(c.Request.Context()); err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_on": true})
}

func (s *Server) handleCameraStop(c *gin.Context) {
	s.ctrl.StopCamera()
	c.JSON(http.StatusOK, gin.H{"camera_on": false})
}

func (s *Server) handleCameraCapture(c *gin.Context) {
	result, err := s.ctrl.CaptureFrame(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(result))
}

type tollRequest struct {
	Plate string `json:"plate"`
}

func (s *Server) handleToll(c *gin.Context) {
	var req tollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid toll request"))
		return
	}

	result, err := s.ctrl.SubmitToll(c.Request.Context(), req.Plate)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":    result,
		"message": result.Summary(dashboard.NormalizePlate(req.Plate)),
	})
}

func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case dashboard.IsValidation(err):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case dashboard.IsRejected(err):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, dashboard.ErrCameraUnavailable), errors.Is(err, dashboard.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		logger.Warn("HTTP", "%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusBadGateway, errorResponse(err.Error()))
	}
}

func successResponse(data any) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
