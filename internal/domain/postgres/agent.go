package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
)

// AgentRepository implements create_agent/update_agent/delete_agent and the
// read paths the Scheduler (C7) needs on startup.
type AgentRepository struct{ *base }

// Create inserts a new Agent. Schedule, if non-nil, is cron-validated here
// (spec §4.1: "schedule is validated by cron parse on write").
func (r *AgentRepository) Create(ctx context.Context, a *domain.Agent) (*domain.Agent, error) {
	if strings.TrimSpace(a.Name) == "" {
		return nil, fmt.Errorf("agent name is required: %w", domain.ErrInvalidArgument)
	}
	if a.Schedule != nil && strings.TrimSpace(*a.Schedule) != "" {
		if _, err := parseCron(*a.Schedule); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", *a.Schedule, domain.ErrInvalidArgument)
		}
	}

	now := time.Now().UTC()
	a.ID = uuid.New().String()
	a.Status = domain.AgentIdle
	a.CreatedAt = now
	a.UpdatedAt = now

	if a.Config == nil {
		a.Config = json.RawMessage("{}")
	}

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO agents (id, owner_id, name, system_instructions, task_instructions,
				model, temperature, schedule, status, config, allowed_tools, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			a.ID, a.OwnerID, a.Name, a.SystemInstructions, a.TaskInstructions,
			a.Model, a.Temperature, a.Schedule, a.Status, a.Config, a.AllowedTools, a.CreatedAt, a.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", domain.ErrStorage)
	}

	r.publish(ctx, events.AgentCreated, events.PayloadAgent{AgentID: a.ID, OwnerID: a.OwnerID, Status: string(a.Status)})
	return a, nil
}

// Update persists mutable fields of an existing Agent. Re-validates
// schedule on write (defense in depth, mirrored at register time by C7).
func (r *AgentRepository) Update(ctx context.Context, a *domain.Agent) error {
	if a.Schedule != nil && strings.TrimSpace(*a.Schedule) != "" {
		if _, err := parseCron(*a.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", *a.Schedule, domain.ErrInvalidArgument)
		}
	}
	a.UpdatedAt = time.Now().UTC()

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE agents SET name=$2, system_instructions=$3, task_instructions=$4, model=$5,
				temperature=$6, schedule=$7, status=$8, last_run_at=$9, next_run_at=$10,
				last_error=$11, config=$12, allowed_tools=$13, updated_at=$14
			WHERE id=$1`,
			a.ID, a.Name, a.SystemInstructions, a.TaskInstructions, a.Model, a.Temperature,
			a.Schedule, a.Status, a.LastRunAt, a.NextRunAt, a.LastError, a.Config, a.AllowedTools, a.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if err == domain.ErrNotFound {
			return err
		}
		return fmt.Errorf("update agent: %w", domain.ErrStorage)
	}

	r.publish(ctx, events.AgentUpdated, events.PayloadAgent{AgentID: a.ID, OwnerID: a.OwnerID, Status: string(a.Status)})
	return nil
}

// Delete removes an Agent; ON DELETE CASCADE on the schema handles Threads,
// Triggers, and Runs (spec §3 "A owns B ... deleting A cascades B").
func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	var ownerID string
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT owner_id FROM agents WHERE id=$1`, id).Scan(&ownerID); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM agents WHERE id=$1`, id)
		return err
	})
	if err != nil {
		if err == domain.ErrNotFound {
			return err
		}
		return fmt.Errorf("delete agent: %w", domain.ErrStorage)
	}

	r.publish(ctx, events.AgentDeleted, events.PayloadAgent{AgentID: id, OwnerID: ownerID})
	return nil
}

// Get fetches a single Agent by id.
func (r *AgentRepository) Get(ctx context.Context, id string) (*domain.Agent, error) {
	row := r.db.QueryRow(ctx, agentSelectCols+` WHERE id=$1`, id)
	return scanAgent(row)
}

// ListByOwner returns every Agent owned by ownerID, used by the Jarvis
// device-auth agent listing endpoint (spec §4.10 GET /api/jarvis/agents).
func (r *AgentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Agent, error) {
	rows, err := r.db.Query(ctx, agentSelectCols+` WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list agents by owner: %w", domain.ErrStorage)
	}
	defer rows.Close()

	var out []*domain.Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListScheduled returns every Agent with a non-null, non-empty schedule,
// used by the Scheduler's load_from_storage on startup (spec §4.7).
func (r *AgentRepository) ListScheduled(ctx context.Context) ([]*domain.Agent, error) {
	rows, err := r.db.Query(ctx, agentSelectCols+` WHERE schedule IS NOT NULL AND schedule <> ''`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled agents: %w", domain.ErrStorage)
	}
	defer rows.Close()

	var out []*domain.Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const agentSelectCols = `SELECT id, owner_id, name, system_instructions, task_instructions, model,
	temperature, schedule, status, last_run_at, next_run_at, last_error, config, allowed_tools,
	created_at, updated_at FROM agents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	a := &domain.Agent{}
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.SystemInstructions, &a.TaskInstructions, &a.Model,
		&a.Temperature, &a.Schedule, &a.Status, &a.LastRunAt, &a.NextRunAt, &a.LastError, &a.Config,
		&a.AllowedTools, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", domain.ErrStorage)
	}
	return a, nil
}

func scanAgentRows(rows pgx.Rows) (*domain.Agent, error) {
	return scanAgent(rows)
}
