package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// pagedTable serves rows in fixed pages and records every requested offset.
type pagedTable struct {
	mu      sync.Mutex
	rows    []int
	offsets []int
	failAt  int // offset that fails; -1 disables
	err     error
}

func newPagedTable(n int) *pagedTable {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return &pagedTable{rows: rows, failAt: -1}
}

func (p *pagedTable) page(_ context.Context, offset, limit int) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offsets = append(p.offsets, offset)
	if offset == p.failAt {
		return nil, p.err
	}
	if offset >= len(p.rows) {
		return nil, nil
	}
	end := min(offset+limit, len(p.rows))
	return append([]int(nil), p.rows[offset:end]...), nil
}

func testOptions(pageSize int) Options {
	return Options{
		PageSize: pageSize,
		MaxPages: 50,
		Retry:    resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond},
	}
}

func TestLoadAll_PartialLastPage(t *testing.T) {
	tbl := newPagedTable(25)
	rows, err := LoadAll(context.Background(), "t", tbl.page, testOptions(10))
	require.NoError(t, err)
	assert.Len(t, rows, 25)
	assert.Equal(t, []int{0, 10, 20}, tbl.offsets)
	assert.Equal(t, 24, rows[24])
}

func TestLoadAll_ExactMultipleProbesEmptyPage(t *testing.T) {
	tbl := newPagedTable(30)
	rows, err := LoadAll(context.Background(), "t", tbl.page, testOptions(10))
	require.NoError(t, err)
	assert.Len(t, rows, 30)
	assert.Equal(t, []int{0, 10, 20, 30}, tbl.offsets, "a full last page must be followed by an empty page request")
}

func TestLoadAll_Empty(t *testing.T) {
	tbl := newPagedTable(0)
	rows, err := LoadAll(context.Background(), "t", tbl.page, testOptions(10))
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []int{0}, tbl.offsets)
}

func TestLoadAll_CappedBelowRowCount(t *testing.T) {
	// Store cap (1000) below true row count, like the contact export.
	tbl := newPagedTable(2500)
	rows, err := LoadAll(context.Background(), "contacts", tbl.page, testOptions(1000))
	require.NoError(t, err)
	assert.Len(t, rows, 2500)
}

func TestLoadAll_PageErrorIsHardFailure(t *testing.T) {
	tbl := newPagedTable(30)
	tbl.failAt = 10
	tbl.err = errors.New("permission denied for table")
	rows, err := LoadAll(context.Background(), "signups", tbl.page, testOptions(10))
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.Contains(t, err.Error(), "signups page 1")
	assert.Equal(t, []int{0, 10}, tbl.offsets, "permanent errors are not retried")
}

func TestLoadAll_TransientErrorRetried(t *testing.T) {
	tbl := newPagedTable(15)
	failed := false
	fetch := func(ctx context.Context, offset, limit int) ([]int, error) {
		if offset == 10 && !failed {
			failed = true
			return nil, resilience.NewTransientError(errors.New("gateway timeout"), 504)
		}
		return tbl.page(ctx, offset, limit)
	}
	rows, err := LoadAll(context.Background(), "t", fetch, testOptions(10))
	require.NoError(t, err)
	assert.Len(t, rows, 15)
}

func TestLoadAll_PageCeiling(t *testing.T) {
	always := func(_ context.Context, _, limit int) ([]int, error) {
		return make([]int, limit), nil
	}
	opts := testOptions(5)
	opts.MaxPages = 3
	_, err := LoadAll(context.Background(), "runaway", always, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageCeiling)
	assert.Contains(t, err.Error(), "source: runaway after 3 pages")
}

func TestLoadAll_OversizedPageRejected(t *testing.T) {
	fetch := func(_ context.Context, _, limit int) ([]int, error) {
		return make([]int, limit+1), nil
	}
	_, err := LoadAll(context.Background(), "t", fetch, testOptions(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than page size")
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 1000, o.PageSize)
	assert.Equal(t, 500, o.MaxPages)
}
