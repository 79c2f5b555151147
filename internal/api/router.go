package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orchcore/orchcore/internal/common/httpmw"
)

// Router builds the gin.Engine serving every route in the REST table
// (spec §6), grounded on the teacher's internal/orchestrator/api.SetupRoutes
// route-group idiom.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmw.RequestLogger(s.log, "orchcore"))
	r.Use(httpmw.OtelTracing("orchcore"))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.POST("/api/jarvis/auth", s.AuthDeviceSecret)
	r.POST("/api/triggers/:id/events", s.TriggerWebhook)
	r.POST("/api/email/webhook/google", s.TriggerEmailWebhook)

	r.GET("/ws", s.ServeWebSocket)

	api := r.Group("/api")
	{
		agents := api.Group("/agents/:id")
		agents.POST("/task", s.DispatchTask)
		agents.GET("/runs", s.ListRuns)

		threads := api.Group("/threads/:id")
		threads.POST("/messages", s.AppendMessage)
		threads.GET("/messages", s.ListMessages)

		workflows := api.Group("/workflows/:id")
		workflows.POST("/execute", s.ExecuteWorkflow)

		jarvis := api.Group("/jarvis")
		jarvis.Use(s.RequireJarvisAuth())
		{
			jarvis.GET("/agents", s.ListJarvisAgents)
			jarvis.POST("/dispatch", s.DispatchJarvis)
			jarvis.GET("/events", s.StreamJarvisEvents)
		}
	}

	return r
}

// ServeWebSocket upgrades GET /ws to a realtime.Hub-backed WebSocket
// connection (spec §4.3, §6's "WebSocket wire format").
func (s *Server) ServeWebSocket(c *gin.Context) {
	if err := s.hub.ServeWS(c.Writer, c.Request, s.log); err != nil {
		s.log.Debug("websocket upgrade failed")
	}
}
