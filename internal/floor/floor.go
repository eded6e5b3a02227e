// Package floor lists the tables of a floor.  The secondary index is the
// fast path; when it cannot answer, the listing degrades to a full scan
// filtered in process so callers still get a correct (slower) result.
package floor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/iliyamo/library-seat-lease/internal/metrics"
	"github.com/iliyamo/library-seat-lease/internal/model"
	"github.com/iliyamo/library-seat-lease/internal/store"
)

// ErrStoreUnavailable is returned when neither the index nor the full scan
// can be served.
var ErrStoreUnavailable = errors.New("table store unavailable")

// Index lists tables by floor.
type Index struct {
	tables store.TableStore
	log    *zap.Logger
}

// NewIndex returns an Index over tables.  log may be nil.
func NewIndex(tables store.TableStore, log *zap.Logger) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{tables: tables, log: log.Named("floor")}
}

// ListByFloor returns every table whose floorId equals floorID, ordered by
// tableId.  An unknown floor yields an empty list.
func (x *Index) ListByFloor(ctx context.Context, floorID string) ([]model.Table, error) {
	tables, err := x.tables.QueryTablesByFloor(ctx, floorID)
	if err == nil {
		sortTables(tables)
		return tables, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
	}

	metrics.FloorIndexFallbacks.Inc()
	x.log.Warn("floor index query failed, scanning all tables",
		zap.String("floor_id", floorID), zap.Error(err))

	all, err := x.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Table, 0, len(all))
	for _, t := range all {
		if t.FloorID == floorID {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListAll returns every table ordered by tableId.
func (x *Index) ListAll(ctx context.Context) ([]model.Table, error) {
	tables, err := x.tables.ScanTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sortTables(tables)
	return tables, nil
}

func sortTables(ts []model.Table) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].TableID < ts[j].TableID })
}
