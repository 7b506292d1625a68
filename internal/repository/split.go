package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ridesplit/ridesplit/internal/model"
)

// Common errors for split repository operations.
var (
	ErrSplitNotFound   = errors.New("split not found")
	ErrSplitExists     = errors.New("split already started")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrMembersChanged  = errors.New("group members changed")
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateSplit records a split and its payments in one transaction. The
// group row is locked for the duration, so no rider can join while the
// split is written, and the split must cover exactly the current members.
func (r *Repository) CreateSplit(ctx context.Context, split *model.Split) error {
	insertPayment := `
		INSERT INTO payments (id, car_id, payer_id, user_id, amount, has_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	return r.withTx(ctx, func(tx pgx.Tx) error {
		var members []string
		err := tx.QueryRow(ctx, `SELECT user_ids FROM cars WHERE id = $1 FOR UPDATE`, split.GroupID).Scan(&members)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("failed to lock group: %w", err)
		}
		if !sameMembers(members, split.Participants()) {
			return ErrMembersChanged
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO splits (car_id, payer_id, total, share, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, split.GroupID, split.PayerID, split.Total, split.Share, split.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrSplitExists
			}
			return fmt.Errorf("failed to create split: %w", err)
		}

		batch := &pgx.Batch{}
		for _, p := range split.Payments {
			batch.Queue(insertPayment,
				p.ID,
				split.GroupID,
				split.PayerID,
				p.UserID,
				p.Amount,
				p.HasPaid,
				p.CreatedAt,
				p.UpdatedAt,
			)
		}
		results := tx.SendBatch(ctx, batch)
		for range split.Payments {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to create payment: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close payment batch: %w", err)
		}
		return nil
	})
}

// GetSplit returns a group's split with its payments.
func (r *Repository) GetSplit(ctx context.Context, groupID string) (*model.Split, error) {
	return loadSplit(ctx, r.pool, groupID, false)
}

// SettlePayment sets the paid flag of one rider's share. The split row is
// locked first so overlapping updates are serialized and each sees the
// others' flags. When the update leaves every share paid the group is
// retired in the same transaction and settled is true.
func (r *Repository) SettlePayment(ctx context.Context, groupID, userID string, paid bool) (split *model.Split, settled bool, err error) {
	err = r.withTx(ctx, func(tx pgx.Tx) error {
		s, err := loadSplit(ctx, tx, groupID, true)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		tag, err := tx.Exec(ctx, `
			UPDATE payments
			SET has_paid = $3, updated_at = $4
			WHERE car_id = $1 AND user_id = $2
		`, groupID, userID, paid, now)
		if err != nil {
			return fmt.Errorf("failed to set paid: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrPaymentNotFound
		}

		for _, p := range s.Payments {
			if p.UserID == userID {
				p.HasPaid = paid
				p.UpdatedAt = now
			}
		}

		if s.Settled() {
			if err := retireGroup(ctx, tx, groupID); err != nil {
				return err
			}
			settled = true
		}
		split = s
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return split, settled, nil
}

func loadSplit(ctx context.Context, q querier, groupID string, forUpdate bool) (*model.Split, error) {
	query := `
		SELECT car_id, payer_id, total::float8, share::float8, created_at
		FROM splits
		WHERE car_id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var s model.Split
	err := q.QueryRow(ctx, query, groupID).Scan(&s.GroupID, &s.PayerID, &s.Total, &s.Share, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSplitNotFound
		}
		return nil, fmt.Errorf("failed to get split: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, car_id, payer_id, user_id, amount::float8, has_paid, created_at, updated_at
		FROM payments
		WHERE car_id = $1
		ORDER BY created_at ASC, id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	s.Payments = []*model.Payment{}
	for rows.Next() {
		var p model.Payment
		err := rows.Scan(&p.ID, &p.GroupID, &p.PayerID, &p.UserID, &p.Amount, &p.HasPaid, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		s.Payments = append(s.Payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return &s, nil
}

// sameMembers reports whether a and b hold the same rider IDs.
func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
