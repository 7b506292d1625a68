package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ridesplit/ridesplit/internal/model"
)

// Common errors for profile repository operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrEmailExists     = errors.New("email already registered")
)

const profileColumns = `id, email, full_name, venmo_username, active_car_id, password_hash, created_at, updated_at`

// CreateProfile inserts a new profile.
func (r *Repository) CreateProfile(ctx context.Context, p *model.Profile) error {
	query := `
		INSERT INTO profiles (id, email, full_name, venmo_username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Email,
		p.FullName,
		p.VenmoUsername,
		p.PasswordHash,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetProfileByID retrieves a profile by its ID.
func (r *Repository) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return r.getProfile(ctx, query, id)
}

// GetProfileByEmail retrieves a profile by email. Emails are matched
// case-insensitively.
func (r *Repository) GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lower(email) = lower($1)`
	return r.getProfile(ctx, query, email)
}

// ListProfilesByIDs returns the profiles for ids. Unknown IDs are skipped.
func (r *Repository) ListProfilesByIDs(ctx context.Context, ids []string) ([]*model.Profile, error) {
	if len(ids) == 0 {
		return []*model.Profile{}, nil
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1) ORDER BY full_name ASC`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []*model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

func (r *Repository) getProfile(ctx context.Context, query string, arg string) (*model.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.VenmoUsername,
		&p.ActiveGroupID,
		&p.PasswordHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
