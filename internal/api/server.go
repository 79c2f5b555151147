package api

import (
	"time"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain/postgres"
	"github.com/orchcore/orchcore/internal/realtime"
	"github.com/orchcore/orchcore/internal/taskrunner"
	"github.com/orchcore/orchcore/internal/triggers"
	"github.com/orchcore/orchcore/internal/workflow"
)

// Server holds every dependency the C10 HTTP handlers need. It is built
// once in cmd/orchestrator and owns no state of its own beyond what's
// handed to it (spec §9: no globals).
type Server struct {
	repos    *postgres.Repositories
	runner   *taskrunner.Runner
	hub      *realtime.Hub
	workflow *workflow.Engine
	webhook  *triggers.WebhookHandler
	email    *triggers.EmailHandler
	log      *logger.Logger

	jwtSecret     string
	deviceSecret  string
	tokenDuration time.Duration
}

// Config bundles the constructor arguments for New. Hub is optional at
// construction time: cmd/orchestrator wires realtime.New's MessageSender
// argument to the Server itself, whose SendMessage method satisfies it (the Hub
// itself depends on the Server existing first to handle send_message
// frames), then calls SetHub once the Hub is built.
type Config struct {
	Repos         *postgres.Repositories
	Runner        *taskrunner.Runner
	Hub           *realtime.Hub
	Workflow      *workflow.Engine
	Webhook       *triggers.WebhookHandler
	Email         *triggers.EmailHandler
	JWTSecret     string
	DeviceSecret  string
	TokenDuration time.Duration
	Log           *logger.Logger
}

// New constructs a Server. Call Router to obtain the gin.Engine to serve.
func New(cfg Config) *Server {
	return &Server{
		repos:         cfg.Repos,
		runner:        cfg.Runner,
		hub:           cfg.Hub,
		workflow:      cfg.Workflow,
		webhook:       cfg.Webhook,
		email:         cfg.Email,
		log:           cfg.Log.WithFields(),
		jwtSecret:     cfg.JWTSecret,
		deviceSecret:  cfg.DeviceSecret,
		tokenDuration: cfg.TokenDuration,
	}
}

// SetHub attaches the realtime Hub once it has been constructed (see Config
// doc comment on the construction-order workaround).
func (s *Server) SetHub(hub *realtime.Hub) { s.hub = hub }
