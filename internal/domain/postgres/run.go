package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orchcore/orchcore/internal/common/constants"
	"github.com/orchcore/orchcore/internal/common/stringutil"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
)

// RunRepository implements create_run, start_run, and finish_run with the
// monotone status invariant (spec §3, §4.1, §8).
type RunRepository struct{ *base }

// Create inserts a new Run with status=queued.
func (r *RunRepository) Create(ctx context.Context, agentID, threadID string, trigger domain.RunTrigger) (*domain.Run, error) {
	now := time.Now().UTC()
	run := &domain.Run{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		ThreadID:  threadID,
		Trigger:   trigger,
		Status:    domain.RunQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO runs (id, agent_id, thread_id, trigger, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		run.ID, run.AgentID, run.ThreadID, run.Trigger, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", domain.ErrStorage)
	}

	r.publish(ctx, events.RunCreated, events.PayloadRun{RunID: run.ID, AgentID: agentID, ThreadID: threadID, Status: string(run.Status)})
	return run, nil
}

// Start transitions a Run queued -> running and stamps started_at.
func (r *RunRepository) Start(ctx context.Context, id string) (*domain.Run, error) {
	run, err := r.transition(ctx, id, domain.RunRunning, func(run *domain.Run) {
		now := time.Now().UTC()
		run.StartedAt = &now
	})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, events.RunUpdated, events.PayloadRun{RunID: run.ID, AgentID: run.AgentID, ThreadID: run.ThreadID, Status: string(run.Status)})
	return run, nil
}

// Finish transitions a Run running -> success|failed idempotently: calling
// Finish twice with the same terminal status is a no-op observable state
// change (spec §4.1 "idempotent transition").
func (r *RunRepository) Finish(ctx context.Context, id string, status domain.RunStatus, runErr string, summary string) (*domain.Run, error) {
	if status != domain.RunSuccess && status != domain.RunFailed {
		return nil, fmt.Errorf("finish requires a terminal status: %w", domain.ErrInvalidArgument)
	}
	runErr = stringutil.TruncateRunes(runErr, constants.RunErrorMaxRunes)
	summary = stringutil.TruncateRunes(summary, constants.RunSummaryMaxRunes)

	var run *domain.Run
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		current, err := getRunForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == status {
			run = current
			return nil // idempotent no-op
		}
		if !domain.CanTransition(current.Status, status) {
			return domain.ErrConflict
		}

		now := time.Now().UTC()
		var durationMs *int64
		if current.StartedAt != nil {
			d := now.Sub(*current.StartedAt).Milliseconds()
			durationMs = &d
		}

		_, err = tx.Exec(ctx, `
			UPDATE runs SET status=$2, finished_at=$3, duration_ms=$4, error=$5, summary=$6, updated_at=$3
			WHERE id=$1`, id, status, now, durationMs, runErr, summary)
		if err != nil {
			return err
		}

		current.Status = status
		current.FinishedAt = &now
		current.DurationMs = durationMs
		current.Error = runErr
		current.Summary = summary
		current.UpdatedAt = now
		run = current
		return nil
	})
	if err != nil {
		if err == domain.ErrConflict || err == domain.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("finish run: %w", domain.ErrStorage)
	}

	r.publish(ctx, events.RunUpdated, events.PayloadRun{
		RunID: run.ID, AgentID: run.AgentID, ThreadID: run.ThreadID,
		Status: string(run.Status), Error: run.Error, Summary: run.Summary,
	})
	return run, nil
}

// Get fetches a Run by id.
func (r *RunRepository) Get(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRow(ctx, runSelectCols+` WHERE id=$1`, id)
	return scanRun(row)
}

// ListForAgent returns an agent's Run history, newest first, paginated
// (spec §6 GET /api/agents/{id}/runs).
func (r *RunRepository) ListForAgent(ctx context.Context, agentID string, limit, offset int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, runSelectCols+`
		WHERE agent_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, agentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs for agent: %w", domain.ErrStorage)
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// FirstAssistantMessageSince returns the first non-empty assistant message
// content appended to the thread at or after `since` (spec §9 Open
// Question: "use first non-empty assistant content"), used by the Task
// Runner to extract a Run's summary.
func (r *RunRepository) FirstAssistantMessageSince(ctx context.Context, threadID string, since time.Time) (string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT content FROM messages
		WHERE thread_id=$1 AND role='assistant' AND created_at >= $2
		ORDER BY id ASC`, threadID, since)
	if err != nil {
		return "", fmt.Errorf("find first assistant message: %w", domain.ErrStorage)
	}
	defer rows.Close()

	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", fmt.Errorf("scan assistant content: %w", domain.ErrStorage)
		}
		if content != "" {
			return content, nil
		}
	}
	return "", rows.Err()
}

func (r *RunRepository) transition(ctx context.Context, id string, to domain.RunStatus, mutate func(*domain.Run)) (*domain.Run, error) {
	var run *domain.Run
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		current, err := getRunForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, to) {
			return domain.ErrConflict
		}
		mutate(current)
		current.Status = to
		current.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx, `UPDATE runs SET status=$2, started_at=$3, updated_at=$4 WHERE id=$1`,
			id, current.Status, current.StartedAt, current.UpdatedAt)
		if err != nil {
			return err
		}
		run = current
		return nil
	})
	if err != nil {
		if err == domain.ErrConflict || err == domain.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("transition run: %w", domain.ErrStorage)
	}
	return run, nil
}

func getRunForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Run, error) {
	row := tx.QueryRow(ctx, runSelectCols+` WHERE id=$1 FOR UPDATE`, id)
	return scanRun(row)
}

const runSelectCols = `SELECT id, agent_id, thread_id, trigger, status, started_at, finished_at,
	duration_ms, error, summary, created_at, updated_at FROM runs`

func scanRun(row rowScanner) (*domain.Run, error) {
	run := &domain.Run{}
	err := row.Scan(&run.ID, &run.AgentID, &run.ThreadID, &run.Trigger, &run.Status, &run.StartedAt,
		&run.FinishedAt, &run.DurationMs, &run.Error, &run.Summary, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan run: %w", domain.ErrStorage)
	}
	return run, nil
}
