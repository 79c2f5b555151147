package api

import "github.com/gin-gonic/gin"

// TriggerWebhook handles POST /api/triggers/:id/events, delegating to the
// C8 generic webhook ingest path (spec §6).
func (s *Server) TriggerWebhook(c *gin.Context) {
	s.webhook.ServeHTTP(c.Writer, c.Request, c.Param("id"))
}

// TriggerEmailWebhook handles POST /api/email/webhook/google, delegating to
// the C8 Gmail Pub/Sub push ingest path (spec §6). One fixed URL serves
// every mailbox's watch; the trigger is resolved inside the handler from
// the push payload, not from a path parameter.
func (s *Server) TriggerEmailWebhook(c *gin.Context) {
	s.email.ServeHTTP(c.Writer, c.Request)
}
