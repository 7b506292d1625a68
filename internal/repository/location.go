package repository

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// EnsureAirport returns the ID of the airport with the given code,
// creating it if needed. Concurrent callers receive the same ID.
func (r *Repository) EnsureAirport(ctx context.Context, name string) (string, error) {
	query := `
		INSERT INTO airports (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`

	var id string
	if err := r.pool.QueryRow(ctx, query, ulid.Make().String(), name).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to ensure airport: %w", err)
	}
	return id, nil
}

// EnsureTerminal returns the ID of the named terminal at an airport,
// creating it if needed.
func (r *Repository) EnsureTerminal(ctx context.Context, airportID, name string) (string, error) {
	query := `
		INSERT INTO terminals (id, name, airport_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (airport_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`

	var id string
	if err := r.pool.QueryRow(ctx, query, ulid.Make().String(), name, airportID).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to ensure terminal: %w", err)
	}
	return id, nil
}
