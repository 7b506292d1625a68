package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ridesplit/ridesplit/internal/model"
)

// Common errors for group repository operations.
var (
	ErrGroupNotFound = errors.New("group not found")
	ErrGroupFull     = errors.New("group is full")
	ErrSplitStarted  = errors.New("group fare split already started")
)

// Outcomes returned by the append_user_to_group procedure.
const (
	appendOK            = "ok"
	appendAlreadyMember = "already_member"
	appendFull          = "full"
	appendNotFound      = "not_found"
	appendSplitStarted  = "split_started"
)

const groupColumns = `id, departure_time, user_ids, max_capacity, airport_id, terminal_id, created_at`

// ListGroupsAtTimes returns the groups for a terminal whose departure time
// equals one of times.
func (r *Repository) ListGroupsAtTimes(ctx context.Context, airportID, terminalID string, times []time.Time) ([]*model.Group, error) {
	if len(times) == 0 {
		return []*model.Group{}, nil
	}

	utc := make([]time.Time, len(times))
	for i, t := range times {
		utc[i] = t.UTC()
	}

	query := `
		SELECT ` + groupColumns + `
		FROM cars
		WHERE airport_id = $1 AND terminal_id = $2 AND departure_time = ANY($3)
		ORDER BY departure_time ASC
	`

	rows, err := r.pool.Query(ctx, query, airportID, terminalID, utc)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups at times: %w", err)
	}
	return collectGroups(rows)
}

// ListGroupsInWindow returns the groups for a terminal departing within
// [from, to], ordered by departure time.
func (r *Repository) ListGroupsInWindow(ctx context.Context, airportID, terminalID string, from, to time.Time) ([]*model.Group, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM cars
		WHERE airport_id = $1 AND terminal_id = $2
		  AND departure_time >= $3 AND departure_time <= $4
		ORDER BY departure_time ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, airportID, terminalID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list groups in window: %w", err)
	}
	return collectGroups(rows)
}

// InsertGroups inserts all groups in one transaction. A group whose slot
// was created concurrently is skipped; any other failure rolls back the
// whole batch.
func (r *Repository) InsertGroups(ctx context.Context, groups []*model.Group) error {
	if len(groups) == 0 {
		return nil
	}

	query := `
		INSERT INTO cars (id, departure_time, user_ids, max_capacity, airport_id, terminal_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (airport_id, terminal_id, departure_time) DO NOTHING
	`

	return r.withTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, g := range groups {
			members := g.MemberIDs
			if members == nil {
				members = []string{}
			}
			batch.Queue(query,
				g.ID,
				g.DepartureTime.UTC(),
				members,
				g.MaxCapacity,
				g.AirportID,
				g.TerminalID,
				g.CreatedAt,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range groups {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to insert group: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close insert batch: %w", err)
		}
		return nil
	})
}

// AppendMember adds userID to a group through the append_user_to_group
// procedure, which locks the row before checking capacity. Appending a
// rider who is already a member returns the group unchanged; a group
// whose fare split has started takes no new riders.
func (r *Repository) AppendMember(ctx context.Context, groupID, userID string) (*model.Group, error) {
	var outcome string
	if err := r.pool.QueryRow(ctx, `SELECT append_user_to_group($1, $2)`, groupID, userID).Scan(&outcome); err != nil {
		return nil, fmt.Errorf("failed to append member: %w", err)
	}

	switch outcome {
	case appendOK, appendAlreadyMember:
		return r.GetGroup(ctx, groupID)
	case appendFull:
		return nil, ErrGroupFull
	case appendNotFound:
		return nil, ErrGroupNotFound
	case appendSplitStarted:
		return nil, ErrSplitStarted
	default:
		return nil, fmt.Errorf("failed to append member: unexpected outcome %q", outcome)
	}
}

// GetGroup retrieves a group by its ID.
func (r *Repository) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM cars WHERE id = $1`

	g, err := scanGroup(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// RetireGroup deletes a group. Its messages, split and payments cascade
// and the members' active group is cleared by the foreign key.
func (r *Repository) RetireGroup(ctx context.Context, id string) error {
	return retireGroup(ctx, r.pool, id)
}

func retireGroup(ctx context.Context, q querier, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM cars WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to retire group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// RetireDepartedGroups deletes every group that departed before cutoff
// and returns their IDs.
func (r *Repository) RetireDepartedGroups(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		DELETE FROM cars
		WHERE id IN (
			SELECT id FROM cars
			WHERE departure_time < $1
			ORDER BY departure_time ASC
			LIMIT $2
		)
		RETURNING id
	`

	rows, err := r.pool.Query(ctx, query, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retire departed groups: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect retired groups: %w", err)
	}
	return ids, nil
}

func collectGroups(rows pgx.Rows) ([]*model.Group, error) {
	defer rows.Close()

	groups := []*model.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

func scanGroup(row pgx.Row) (*model.Group, error) {
	var g model.Group
	err := row.Scan(
		&g.ID,
		&g.DepartureTime,
		&g.MemberIDs,
		&g.MaxCapacity,
		&g.AirportID,
		&g.TerminalID,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.DepartureTime = g.DepartureTime.UTC()
	if g.MemberIDs == nil {
		g.MemberIDs = []string{}
	}
	return &g, nil
}
