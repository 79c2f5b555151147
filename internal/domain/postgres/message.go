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

// MessageRepository implements list_messages, append_messages, and
// mark_messages_processed (spec §4.1). Messages are append-only; the only
// mutation is processed=true (spec §3).
type MessageRepository struct{ *base }

// List returns messages for a thread ordered by id asc, optionally only
// those created after `since` (a message id used as a cursor), capped at
// limit (spec §4.1, §6 "ordered messages since optional cursor").
func (r *MessageRepository) List(ctx context.Context, threadID string, since string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows pgx.Rows
	var err error
	if since != "" {
		rows, err = r.db.Query(ctx, messageSelectCols+`
			WHERE thread_id=$1 AND id > (SELECT id FROM messages WHERE id=$2)
			ORDER BY id ASC LIMIT $3`, threadID, since, limit)
	} else {
		rows, err = r.db.Query(ctx, messageSelectCols+`
			WHERE thread_id=$1 ORDER BY id ASC LIMIT $2`, threadID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", domain.ErrStorage)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Append bulk-inserts new messages for a thread in a single flush+commit,
// returning their assigned ids (spec §4.1).
func (r *MessageRepository) Append(ctx context.Context, threadID string, msgs []*domain.Message) ([]string, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	ids := make([]string, len(msgs))

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, m := range msgs {
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			m.ThreadID = threadID
			ids[i] = m.ID
			batch.Queue(`
				INSERT INTO messages (id, thread_id, role, content, message_type, tool_name,
					tool_call_id, tool_calls, parent_id, processed, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				m.ID, m.ThreadID, m.Role, m.Content, m.MessageType, m.ToolName,
				m.ToolCallID, m.ToolCalls, m.ParentID, m.Processed, m.CreatedAt)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range msgs {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append messages: %w", domain.ErrStorage)
	}

	for _, m := range msgs {
		r.publish(ctx, events.ThreadMessageCreated, events.PayloadThreadMessage{
			ThreadID: threadID, MessageID: m.ID, Role: string(m.Role),
		})
	}
	return ids, nil
}

// MarkProcessed bulk-updates processed=true for the given message ids.
func (r *MessageRepository) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE messages SET processed=true WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark messages processed: %w", domain.ErrStorage)
	}
	return nil
}

const messageSelectCols = `SELECT id, thread_id, role, content, message_type, tool_name,
	tool_call_id, tool_calls, parent_id, processed, created_at FROM messages`

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.MessageType, &m.ToolName,
		&m.ToolCallID, &m.ToolCalls, &m.ParentID, &m.Processed, &m.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan message: %w", domain.ErrStorage)
	}
	return m, nil
}
