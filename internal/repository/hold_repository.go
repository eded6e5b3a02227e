package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/library-seat-lease/internal/model"
	"github.com/iliyamo/library-seat-lease/internal/store"
)

const mysqlErrDuplicateEntry = 1062

// HoldRepo provides data access to the lease_holds table.  MySQL has no
// record expiry of its own, so HoldRepo also implements
// store.ExpiredHoldPurger; the sweeper calls it after each pass to drop
// holds that are long past their deadline.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

var (
	_ store.HoldStore         = (*HoldRepo)(nil)
	_ store.ExpiredHoldPurger = (*HoldRepo)(nil)
)

// PutHold inserts a hold.  A duplicate hold id yields
// store.ErrConditionFailed.
func (r *HoldRepo) PutHold(ctx context.Context, h model.Hold) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lease_holds (hold_id, table_id, seat_index, expires_at) VALUES (?, ?, ?, ?)`,
		h.HoldID, h.TableID, h.SeatIndex, h.ExpiresAt,
	)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
		return store.ErrConditionFailed
	}
	return err
}

// GetHold returns the hold with the given id or store.ErrNotFound.
func (r *HoldRepo) GetHold(ctx context.Context, holdID string) (model.Hold, error) {
	var h model.Hold
	err := r.db.QueryRowContext(ctx,
		`SELECT hold_id, table_id, seat_index, expires_at FROM lease_holds WHERE hold_id = ?`, holdID,
	).Scan(&h.HoldID, &h.TableID, &h.SeatIndex, &h.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, store.ErrNotFound
	}
	if err != nil {
		return model.Hold{}, err
	}
	if err := h.Validate(); err != nil {
		return model.Hold{}, fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	return h, nil
}

// DeleteHold removes a hold.  Deleting a missing hold is not an error.
func (r *HoldRepo) DeleteHold(ctx context.Context, holdID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lease_holds WHERE hold_id = ?`, holdID)
	return err
}

// ScanHolds returns every hold ordered by deadline.  Malformed rows are
// rejected rather than skipped.
func (r *HoldRepo) ScanHolds(ctx context.Context) ([]model.Hold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT hold_id, table_id, seat_index, expires_at FROM lease_holds ORDER BY expires_at, hold_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	holds := []model.Hold{}
	for rows.Next() {
		var h model.Hold
		if err := rows.Scan(&h.HoldID, &h.TableID, &h.SeatIndex, &h.ExpiresAt); err != nil {
			return nil, err
		}
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrMalformed, err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holds, nil
}

// PurgeExpiredHolds deletes holds whose deadline is before cutoff.
func (r *HoldRepo) PurgeExpiredHolds(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lease_holds WHERE expires_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
