package webui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rojolang/webrec-go/pkg/webrec"
)

const shutdownTimeout = 5 * time.Second

// Server is the recording page and its JSON API.
type Server struct {
	ctrl   *webrec.Controller
	hub    *Hub
	config *webrec.RecorderConfig
	engine *gin.Engine
	logger *webrec.RecorderLogger
}

// NewServer wires ctrl's events to the hub and builds the router.
func NewServer(ctrl *webrec.Controller, hub *Hub, config *webrec.RecorderConfig) *Server {
	s := &Server{
		ctrl:   ctrl,
		hub:    hub,
		config: config,
		logger: webrec.GetGlobalLogger().WithComponent("Server"),
	}

	ctrl.AddStateHandler(func(snap webrec.StateSnapshot) {
		hub.Broadcast("state", snap)
	})
	ctrl.AddRecordingHandler(func(entry *webrec.RecordingEntry) {
		hub.Broadcast("recording", entry)
	})
	ctrl.AddRemovalHandler(func(entry *webrec.RecordingEntry) {
		hub.Broadcast("recording_removed", gin.H{"id": entry.ID})
	})
	ctrl.AddErrorHandler(func(err *webrec.RecorderError) {
		hub.Broadcast("error", gin.H{"message": err.Message, "code": err.Code})
	})
	hub.OnConnect(func() []Message {
		return []Message{{Type: "state", Data: ctrl.Snapshot(), Timestamp: time.Now().UnixMilli()}}
	})

	s.engine = s.setupRouter()
	return s
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.config.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/", s.index)
	r.GET("/ws", s.hub.ServeWS)
	r.GET(webrec.ObjectURLPrefix+":token", s.blob)

	api := r.Group("/api")
	{
		api.GET("/state", s.state)
		api.GET("/formats", s.formats)
		api.POST("/encoding", s.setEncoding)
		api.POST("/record", s.record)
		api.POST("/stop", s.stop)
		api.GET("/recordings", s.recordings)
		api.DELETE("/recordings/:id", s.deleteRecording)
		api.GET("/stats", s.stats)
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.config.ListenAddr).Info("Web recorder listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Web recorder stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

func (s *Server) index(c *gin.Context) {
	snap := s.ctrl.Snapshot()
	c.Header("Content-Type", "text/html; charset=utf-8")
	err := renderPage(c.Writer, pageData{
		Formats:    webrec.Codecs(),
		Selected:   snap.Encoding,
		Controls:   snap.Controls,
		Recordings: s.ctrl.Results().Entries(),
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to render page")
	}
}

func (s *Server) state(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) formats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats":  webrec.Codecs(),
		"selected": s.ctrl.Encoding(),
	})
}

type encodingRequest struct {
	Encoding string `json:"encoding" binding:"required"`
}

func (s *Server) setEncoding(c *gin.Context) {
	var req encodingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctrl.SetEncoding(req.Encoding); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) record(c *gin.Context) {
	if err := s.ctrl.Start(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, webrec.ErrSessionActive) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) stop(c *gin.Context) {
	s.ctrl.Stop()
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) recordings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"recordings": s.ctrl.Results().Entries()})
}

func (s *Server) deleteRecording(c *gin.Context) {
	id := c.Param("id")
	if !s.ctrl.RemoveRecording(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "recording not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"results":     s.ctrl.Results().Stats(),
		"object_urls": s.ctrl.ObjectURLs().Len(),
		"pages":       s.hub.Clients(),
	})
}

func (s *Server) blob(c *gin.Context) {
	blob, err := s.ctrl.ObjectURLs().Resolve(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}
	c.Data(http.StatusOK, blob.Type, blob.Data)
}
