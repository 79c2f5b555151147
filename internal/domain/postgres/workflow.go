package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orchcore/orchcore/internal/domain"
)

// WorkflowRepository implements Workflow CRUD (soft-delete) plus
// WorkflowExecution/NodeExecutionState persistence for the DAG engine (C9).
type WorkflowRepository struct{ *base }

// Create inserts a new Workflow.
func (r *WorkflowRepository) Create(ctx context.Context, w *domain.Workflow) (*domain.Workflow, error) {
	w.ID = uuid.New().String()
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	_, err := r.db.Exec(ctx, `
		INSERT INTO workflows (id, owner_id, name, graph, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, w.ID, w.OwnerID, w.Name, w.Graph, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", domain.ErrStorage)
	}
	return w, nil
}

// Update replaces a Workflow's name/graph.
func (r *WorkflowRepository) Update(ctx context.Context, w *domain.Workflow) error {
	w.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE workflows SET name=$2, graph=$3, updated_at=$4 WHERE id=$1 AND deleted_at IS NULL`,
		w.ID, w.Name, w.Graph, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workflow: %w", domain.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get fetches a non-deleted Workflow by id.
func (r *WorkflowRepository) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, owner_id, name, graph, created_at, updated_at, deleted_at
		FROM workflows WHERE id=$1 AND deleted_at IS NULL`, id)
	return scanWorkflow(row)
}

// SoftDelete marks a Workflow deleted without removing its row (spec §3).
func (r *WorkflowRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE workflows SET deleted_at=$2 WHERE id=$1 AND deleted_at IS NULL`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete workflow: %w", domain.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanWorkflow(row rowScanner) (*domain.Workflow, error) {
	w := &domain.Workflow{}
	err := row.Scan(&w.ID, &w.OwnerID, &w.Name, &w.Graph, &w.CreatedAt, &w.UpdatedAt, &w.DeletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan workflow: %w", domain.ErrStorage)
	}
	return w, nil
}

// CreateExecution starts a new WorkflowExecution in status=queued alongside
// idle NodeExecutionState rows for every node id supplied.
func (r *WorkflowRepository) CreateExecution(ctx context.Context, workflowID, ownerID string, nodeIDs []string) (*domain.WorkflowExecution, error) {
	exec := &domain.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		OwnerID:    ownerID,
		Status:     domain.ExecutionQueued,
		StartedAt:  time.Now().UTC(),
	}

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO workflow_executions (id, workflow_id, owner_id, status, started_at)
			VALUES ($1,$2,$3,$4,$5)`, exec.ID, exec.WorkflowID, exec.OwnerID, exec.Status, exec.StartedAt); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, nodeID := range nodeIDs {
			batch.Queue(`
				INSERT INTO node_execution_states (id, execution_id, node_id, status)
				VALUES ($1,$2,$3,$4)`, uuid.New().String(), exec.ID, nodeID, domain.NodeIdle)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range nodeIDs {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create workflow execution: %w", domain.ErrStorage)
	}
	return exec, nil
}

// UpdateNodeState persists a single node's execution state transition.
func (r *WorkflowRepository) UpdateNodeState(ctx context.Context, executionID, nodeID string, status domain.NodeExecutionStatus, output []byte, nodeErr string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE node_execution_states SET status=$3, output=$4, error=$5
		WHERE execution_id=$1 AND node_id=$2`, executionID, nodeID, status, output, nodeErr)
	if err != nil {
		return fmt.Errorf("update node state: %w", domain.ErrStorage)
	}
	return nil
}

// FinishExecution transitions a WorkflowExecution to a terminal status.
func (r *WorkflowRepository) FinishExecution(ctx context.Context, executionID string, status domain.WorkflowExecutionStatus, execErr string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE workflow_executions SET status=$2, finished_at=$3, error=$4 WHERE id=$1`,
		executionID, status, time.Now().UTC(), execErr)
	if err != nil {
		return fmt.Errorf("finish workflow execution: %w", domain.ErrStorage)
	}
	return nil
}
