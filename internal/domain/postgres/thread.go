package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
)

// ThreadRepository implements create_thread_with_system_message and
// get_thread_for_agent (spec §4.1).
type ThreadRepository struct{ *base }

// CreateWithSystemMessage atomically creates a Thread and its single system
// Message (captured from the agent's current system_instructions) in one
// transaction (spec §3, §4.1).
func (r *ThreadRepository) CreateWithSystemMessage(ctx context.Context, agent *domain.Agent, threadType domain.ThreadType, title string) (*domain.Thread, *domain.Message, error) {
	now := time.Now().UTC()
	thread := &domain.Thread{
		ID:         uuid.New().String(),
		AgentID:    agent.ID,
		Title:      title,
		ThreadType: threadType,
		AgentState: []byte("{}"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	sysMsg := &domain.Message{
		ID:          uuid.New().String(),
		ThreadID:    thread.ID,
		Role:        domain.RoleSystem,
		Content:     agent.SystemInstructions,
		MessageType: domain.MessageTypeSystem,
		Processed:   true,
		CreatedAt:   now,
	}

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO threads (id, agent_id, title, thread_type, agent_state, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			thread.ID, thread.AgentID, thread.Title, thread.ThreadType, thread.AgentState, thread.CreatedAt, thread.UpdatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO messages (id, thread_id, role, content, message_type, processed, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			sysMsg.ID, sysMsg.ThreadID, sysMsg.Role, sysMsg.Content, sysMsg.MessageType, sysMsg.Processed, sysMsg.CreatedAt)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create thread with system message: %w", domain.ErrStorage)
	}

	r.publish(ctx, events.ThreadCreated, events.PayloadThread{ThreadID: thread.ID, AgentID: thread.AgentID})
	return thread, sysMsg, nil
}

// GetForAgent fetches a Thread, failing NotFound if it is missing or bound
// to a different agent (spec §4.1).
func (r *ThreadRepository) GetForAgent(ctx context.Context, threadID, agentID string) (*domain.Thread, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, agent_id, title, thread_type, agent_state, created_at, updated_at
		FROM threads WHERE id=$1 AND agent_id=$2`, threadID, agentID)

	t := &domain.Thread{}
	err := row.Scan(&t.ID, &t.AgentID, &t.Title, &t.ThreadType, &t.AgentState, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get thread for agent: %w", domain.ErrStorage)
	}
	return t, nil
}

// Get fetches a Thread by id alone (used by components that already
// authorized access, e.g. the Run Executor given a Run's thread_id).
func (r *ThreadRepository) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, agent_id, title, thread_type, agent_state, created_at, updated_at
		FROM threads WHERE id=$1`, threadID)

	t := &domain.Thread{}
	err := row.Scan(&t.ID, &t.AgentID, &t.Title, &t.ThreadType, &t.AgentState, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get thread: %w", domain.ErrStorage)
	}
	return t, nil
}
