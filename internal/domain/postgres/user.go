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

// UserRepository implements User CRUD on Postgres, replacing the teacher's
// sqlite-backed store. Also resolves the reserved Jarvis system user
// (domain.JarvisSystemEmail) that owns system-initiated runs.
type UserRepository struct{ *base }

// Create inserts a new User.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	u.ID = uuid.New().String()
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.Prefs == nil {
		u.Prefs = []byte("{}")
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, display_name, avatar_url, prefs, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Email, u.DisplayName, u.AvatarURL, u.Prefs, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", domain.ErrStorage)
	}
	return u, nil
}

// Get fetches a User by id.
func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, userSelectCols+` WHERE id=$1`, id)
	return scanUser(row)
}

// GetByEmail looks up a User by email, used when the Jarvis system user is
// resolved to find the reserved jarvis@system.local account's id (spec §3:
// "never hardcoded").
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, userSelectCols+` WHERE email=$1`, email)
	return scanUser(row)
}

// EnsureJarvisSystemUser fetches the reserved system user, creating it on
// first boot if it does not yet exist.
func (r *UserRepository) EnsureJarvisSystemUser(ctx context.Context) (*domain.User, error) {
	u, err := r.GetByEmail(ctx, domain.JarvisSystemEmail)
	if err == nil {
		return u, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}
	return r.Create(ctx, &domain.User{
		Email:       domain.JarvisSystemEmail,
		DisplayName: "Jarvis",
		Role:        domain.RoleSuperAdmin,
	})
}

// Update persists mutable User fields.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET display_name=$2, avatar_url=$3, prefs=$4, role=$5, updated_at=$6
		WHERE id=$1`, u.ID, u.DisplayName, u.AvatarURL, u.Prefs, u.Role, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", domain.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.publish(ctx, events.UserUpdated, events.PayloadUser{UserID: u.ID})
	return nil
}

const userSelectCols = `SELECT id, email, display_name, avatar_url, prefs, role, created_at, updated_at FROM users`

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.Prefs, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", domain.ErrStorage)
	}
	return u, nil
}
