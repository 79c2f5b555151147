package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orchcore/orchcore/internal/domain"
)

// CanvasRepository implements upsert_canvas_layout and get_canvas_layout
// (spec §4.9), backed by a UNIQUE(user_id, workspace) constraint so the
// upsert is a single atomic statement rather than read-then-write.
type CanvasRepository struct{ *base }

// Upsert atomically creates or replaces a user's canvas layout for a
// workspace.
func (r *CanvasRepository) Upsert(ctx context.Context, c *domain.CanvasLayout) (*domain.CanvasLayout, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO canvas_layouts (id, user_id, workspace, positions, viewport)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, workspace) DO UPDATE
			SET positions=EXCLUDED.positions, viewport=EXCLUDED.viewport
		RETURNING id, user_id, workspace, positions, viewport`,
		c.ID, c.UserID, c.Workspace, c.Positions, c.Viewport)
	return scanCanvas(row)
}

// Get fetches a user's canvas layout for a workspace.
func (r *CanvasRepository) Get(ctx context.Context, userID, workspace string) (*domain.CanvasLayout, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, workspace, positions, viewport
		FROM canvas_layouts WHERE user_id=$1 AND workspace=$2`, userID, workspace)
	return scanCanvas(row)
}

func scanCanvas(row rowScanner) (*domain.CanvasLayout, error) {
	c := &domain.CanvasLayout{}
	err := row.Scan(&c.ID, &c.UserID, &c.Workspace, &c.Positions, &c.Viewport)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan canvas layout: %w", domain.ErrStorage)
	}
	return c, nil
}
