package repository // repository holds the MySQL adapters of the entity store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/library-seat-lease/internal/model"
	"github.com/iliyamo/library-seat-lease/internal/store"
)

const (
	tableColumns = `table_id, floor_id, table_type, capacity, is_open_to_join, tags, topic_tags, course_codes`
	seatColumns  = `table_id, seat_index, seat_id, status, occupant_user_id, hold_id`

	// FloorIndexName is the secondary index serving floor lookups.
	FloorIndexName = "idx_study_tables_floor"

	// mysqlErrKeyDoesNotExist is raised when FORCE INDEX names a missing index.
	mysqlErrKeyDoesNotExist = 1176
)

// TableRepo stores tables in study_tables and their seats, one row per
// seat, in study_seats.  Seat transitions are single conditional UPDATEs
// on the seat row, so concurrent writers on different seats of the same
// table never overwrite each other.  The version column of study_tables
// is bumped on every seat write.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo constructs a TableRepo bound to db.
func NewTableRepo(db *sql.DB) *TableRepo { return &TableRepo{db: db} }

var _ store.TableStore = (*TableRepo)(nil)

// GetTable loads one table with its seats.  It returns store.ErrNotFound
// when the table does not exist and store.ErrMalformed when the stored
// rows do not form a valid table.
func (r *TableRepo) GetTable(ctx context.Context, tableID string) (model.Table, error) {
	q := `SELECT ` + tableColumns + ` FROM study_tables WHERE table_id = ?`
	t, err := scanTable(r.db.QueryRowContext(ctx, q, tableID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Table{}, store.ErrNotFound
		}
		return model.Table{}, err
	}
	seats, err := r.loadSeats(ctx, []string{tableID})
	if err != nil {
		return model.Table{}, err
	}
	if err := assemble(&t, seats[tableID]); err != nil {
		return model.Table{}, err
	}
	return t, nil
}

// QueryTablesByFloor lists the tables of a floor through the floor index.
// A missing index surfaces as store.ErrIndexUnavailable.
func (r *TableRepo) QueryTablesByFloor(ctx context.Context, floorID string) ([]model.Table, error) {
	q := `SELECT ` + tableColumns + ` FROM study_tables FORCE INDEX (` + FloorIndexName + `) WHERE floor_id = ? ORDER BY table_id`
	rows, err := r.db.QueryContext(ctx, q, floorID)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrKeyDoesNotExist {
			return nil, fmt.Errorf("%w: %v", store.ErrIndexUnavailable, err)
		}
		return nil, err
	}
	return r.collect(ctx, rows, true)
}

// ScanTables enumerates every table.
func (r *TableRepo) ScanTables(ctx context.Context) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tableColumns+` FROM study_tables ORDER BY table_id`)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows, false)
}

// UpdateSeat performs the conditional seat write described by u inside a
// transaction together with the optional metadata merge and the version
// bump.  Zero matched rows are diagnosed into store.ErrNotFound,
// store.ErrSeatOutOfRange or store.ErrConditionFailed.
func (r *TableRepo) UpdateSeat(ctx context.Context, u store.SeatUpdate) error {
	if u.SeatIndex < 0 {
		return store.ErrSeatOutOfRange
	}
	next := u.Apply(model.Seat{})

	q := `UPDATE study_seats SET status = ?, occupant_user_id = ?, hold_id = ? WHERE table_id = ? AND seat_index = ?`
	args := []interface{}{string(next.Status), nullString(next.OccupantUserID), nullString(next.HoldID), u.TableID, u.SeatIndex}
	if len(u.From) > 0 {
		q += ` AND status IN (` + placeholders(len(u.From)) + `)`
		for _, st := range u.From {
			args = append(args, string(st))
		}
	}
	if u.HeldBy != "" {
		q += ` AND (status <> 'HELD' OR hold_id IS NULL OR hold_id = ?)`
		args = append(args, u.HeldBy)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return diagnoseSeat(ctx, tx, u.TableID, u.SeatIndex)
	}

	if u.Meta != nil {
		var courses, topics []byte
		err := tx.QueryRowContext(ctx, `SELECT course_codes, topic_tags FROM study_tables WHERE table_id = ? FOR UPDATE`, u.TableID).
			Scan(&courses, &topics)
		if err != nil {
			return err
		}
		t := model.Table{}
		if t.CourseCodes, err = decodeTags(courses); err != nil {
			return err
		}
		if t.TopicTags, err = decodeTags(topics); err != nil {
			return err
		}
		store.ApplyMeta(&t, u.Meta)
		_, err = tx.ExecContext(ctx,
			`UPDATE study_tables SET is_open_to_join = ?, course_codes = ?, topic_tags = ?, version = version + 1 WHERE table_id = ?`,
			t.IsOpenToJoin, encodeTags(t.CourseCodes), encodeTags(t.TopicTags), u.TableID)
		if err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE study_tables SET version = version + 1 WHERE table_id = ?`, u.TableID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// diagnoseSeat explains why a conditional seat update matched no row.
func diagnoseSeat(ctx context.Context, tx *sql.Tx, tableID string, index int) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM study_seats WHERE table_id = ? AND seat_index = ?`, tableID, index).Scan(&status)
	if err == nil {
		return store.ErrConditionFailed
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM study_tables WHERE table_id = ?`, tableID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrSeatOutOfRange
}

// collect scans table rows and attaches their seats.
func (r *TableRepo) collect(ctx context.Context, rows *sql.Rows, onlyListed bool) ([]model.Table, error) {
	var tables []model.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Table, 0, len(tables))
	if len(tables) == 0 {
		return out, nil
	}

	var ids []string
	if onlyListed {
		for _, t := range tables {
			ids = append(ids, t.TableID)
		}
	}
	seats, err := r.loadSeats(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		if err := assemble(&tables[i], seats[tables[i].TableID]); err != nil {
			return nil, err
		}
		out = append(out, tables[i])
	}
	return out, nil
}

type seatRow struct {
	index int
	seat  model.Seat
}

// loadSeats returns seats grouped by table, ordered by index.  A nil ids
// slice loads the seats of every table.
func (r *TableRepo) loadSeats(ctx context.Context, ids []string) (map[string][]seatRow, error) {
	q := `SELECT ` + seatColumns + ` FROM study_seats`
	args := make([]interface{}, 0, len(ids))
	if ids != nil {
		q += ` WHERE table_id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	q += ` ORDER BY table_id, seat_index`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]seatRow)
	for rows.Next() {
		var (
			tableID, status  string
			sr               seatRow
			occupant, holdID sql.NullString
		)
		if err := rows.Scan(&tableID, &sr.index, &sr.seat.SeatID, &status, &occupant, &holdID); err != nil {
			return nil, err
		}
		st, err := model.ParseSeatStatus(status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrMalformed, err)
		}
		sr.seat.Status = st
		sr.seat.OccupantUserID = occupant.String
		sr.seat.HoldID = holdID.String
		out[tableID] = append(out[tableID], sr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTable(s rowScanner) (model.Table, error) {
	var (
		t                     model.Table
		tags, topics, courses []byte
	)
	if err := s.Scan(&t.TableID, &t.FloorID, &t.Type, &t.Capacity, &t.IsOpenToJoin, &tags, &topics, &courses); err != nil {
		return model.Table{}, err
	}
	var err error
	if t.Tags, err = decodeTags(tags); err != nil {
		return model.Table{}, err
	}
	if t.TopicTags, err = decodeTags(topics); err != nil {
		return model.Table{}, err
	}
	if t.CourseCodes, err = decodeTags(courses); err != nil {
		return model.Table{}, err
	}
	return t, nil
}

// assemble attaches seats to t and validates the result.  Seat rows must
// cover indexes 0..capacity-1 without gaps.
func assemble(t *model.Table, seats []seatRow) error {
	t.Seats = make([]model.Seat, 0, len(seats))
	for i, sr := range seats {
		if sr.index != i {
			return fmt.Errorf("%w: table %s: seat index %d at position %d", store.ErrMalformed, t.TableID, sr.index, i)
		}
		t.Seats = append(t.Seats, sr.seat)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	return nil
}

func decodeTags(b []byte) ([]string, error) {
	out := []string{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
