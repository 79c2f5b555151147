// Package postgres implements the C1 Data Model & Repositories against
// PostgreSQL via pgx/v5, grounded on the teacher's
// internal/common/database.DB transactional helpers. Every mutator follows
// the "publish on commit" decorator pattern (spec §4.2): if the transaction
// commits, an event is published best-effort; a publish failure is logged,
// never rolled back or returned to the caller.
package postgres

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/database"
	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
)

// Repositories bundles every C1 repository, constructed once at startup and
// handed to dependents via construction (spec §9: no globals).
type Repositories struct {
	Users     *UserRepository
	Agents    *AgentRepository
	Threads   *ThreadRepository
	Messages  *MessageRepository
	Runs      *RunRepository
	Triggers  *TriggerRepository
	Workflows *WorkflowRepository
	Canvas    *CanvasRepository
}

// New constructs every repository, sharing the DB handle, event bus, and
// logger.
func New(db *database.DB, eventBus bus.EventBus, log *logger.Logger) *Repositories {
	base := &base{db: db, bus: eventBus, log: log.WithFields(zap.String("component", "repositories"))}
	return &Repositories{
		Users:     &UserRepository{base},
		Agents:    &AgentRepository{base},
		Threads:   &ThreadRepository{base},
		Messages:  &MessageRepository{base},
		Runs:      &RunRepository{base},
		Triggers:  &TriggerRepository{base},
		Workflows: &WorkflowRepository{base},
		Canvas:    &CanvasRepository{base},
	}
}

// base is embedded by every repository for shared DB/bus/log access.
type base struct {
	db  *database.DB
	bus bus.EventBus
	log *logger.Logger
}

// publish is the best-effort post-commit hook (spec §4.2, §9).
func (b *base) publish(ctx context.Context, kind events.Kind, data any) {
	if err := b.bus.Publish(ctx, &events.Event{Kind: kind, Data: data}); err != nil {
		b.log.Error("event publish failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// cronParser and parseCron parse expr as a standard 5-field cron expression
// (spec §3, §4.1, §4.7). parseCron returns the parser's error unwrapped;
// callers wrap it in domain.ErrInvalidArgument.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func parseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}
