package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orchcore/orchcore/internal/domain"
)

// TriggerRepository implements Trigger CRUD (spec §4.8). Webhook triggers
// are assigned a CSPRNG secret on creation; email triggers track the Gmail
// history_id cursor and watch renewal deadline.
type TriggerRepository struct{ *base }

// Create inserts a new Trigger. For webhook triggers, generates a fresh
// HMAC secret if the caller did not supply one.
func (r *TriggerRepository) Create(ctx context.Context, t *domain.Trigger) (*domain.Trigger, error) {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now().UTC()
	if t.Type == domain.TriggerTypeWebhook && t.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate webhook secret: %w", domain.ErrStorage)
		}
		t.Secret = secret
	}
	if t.Config == nil {
		t.Config = []byte("{}")
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO triggers (id, agent_id, type, secret, config, last_message_key, history_id, watch_expiry, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.AgentID, t.Type, t.Secret, t.Config, t.LastMessageKey, t.HistoryID, t.WatchExpiry, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create trigger: %w", domain.ErrStorage)
	}
	return t, nil
}

// Get fetches a Trigger by id, including its secret (internal use only:
// callers serializing to API responses must not leak Secret, which carries
// a json:"-" tag).
func (r *TriggerRepository) Get(ctx context.Context, id string) (*domain.Trigger, error) {
	row := r.db.QueryRow(ctx, triggerSelectCols+` WHERE id=$1`, id)
	return scanTrigger(row)
}

// ListByAgent returns all triggers wired to an Agent.
func (r *TriggerRepository) ListByAgent(ctx context.Context, agentID string) ([]*domain.Trigger, error) {
	rows, err := r.db.Query(ctx, triggerSelectCols+` WHERE agent_id=$1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", domain.ErrStorage)
	}
	defer rows.Close()

	var out []*domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetByEmailAddress finds the email Trigger configured for a given mailbox
// (spec §4.8, §6: the Gmail push endpoint is one fixed URL shared by every
// user's watch, so the trigger is resolved from the push payload's
// emailAddress rather than a path parameter).
func (r *TriggerRepository) GetByEmailAddress(ctx context.Context, emailAddress string) (*domain.Trigger, error) {
	row := r.db.QueryRow(ctx, triggerSelectCols+`
		WHERE type=$1 AND config->>'email_address'=$2`, domain.TriggerTypeEmail, emailAddress)
	return scanTrigger(row)
}

// ListEmailDue returns every email Trigger whose watch_expiry is within the
// renewal threshold of now, or already missing (spec §4.8 watch renewal).
func (r *TriggerRepository) ListEmailDue(ctx context.Context, before time.Time) ([]*domain.Trigger, error) {
	rows, err := r.db.Query(ctx, triggerSelectCols+`
		WHERE type=$1 AND (watch_expiry IS NULL OR watch_expiry < $2)`, domain.TriggerTypeEmail, before)
	if err != nil {
		return nil, fmt.Errorf("list due email triggers: %w", domain.ErrStorage)
	}
	defer rows.Close()

	var out []*domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateEmailCursor persists the Gmail history_id cursor, the message key of
// the most recently processed message (dedup, spec §4.8), and an optional
// renewed watch_expiry.
func (r *TriggerRepository) UpdateEmailCursor(ctx context.Context, id, historyID, lastMessageKey string, watchExpiry *time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE triggers SET history_id=$2, last_message_key=$3, watch_expiry=COALESCE($4, watch_expiry)
		WHERE id=$1`, id, historyID, lastMessageKey, watchExpiry)
	if err != nil {
		return fmt.Errorf("update email trigger cursor: %w", domain.ErrStorage)
	}
	return nil
}

// Delete removes a Trigger.
func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM triggers WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete trigger: %w", domain.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

const triggerSelectCols = `SELECT id, agent_id, type, secret, config, last_message_key, history_id,
	watch_expiry, created_at FROM triggers`

func scanTrigger(row rowScanner) (*domain.Trigger, error) {
	t := &domain.Trigger{}
	err := row.Scan(&t.ID, &t.AgentID, &t.Type, &t.Secret, &t.Config, &t.LastMessageKey, &t.HistoryID,
		&t.WatchExpiry, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan trigger: %w", domain.ErrStorage)
	}
	return t, nil
}
