// Package source loads complete raw source tables from a backing store that
// caps every request at a fixed page size.
package source

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/resilience"
)

// ErrPageCeiling is returned when a source keeps returning full pages past
// Options.MaxPages.
var ErrPageCeiling = eris.New("source: page ceiling reached")

// PageFunc fetches up to limit rows starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Options controls paging.
type Options struct {
	PageSize int                    `yaml:"page_size" mapstructure:"page_size"`
	MaxPages int                    `yaml:"max_pages" mapstructure:"max_pages"`
	Retry    resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// DefaultOptions matches the 1000-row cap of the hosted Postgres REST layer.
func DefaultOptions() Options {
	return Options{
		PageSize: 1000,
		MaxPages: 500,
		Retry:    resilience.DefaultRetryConfig(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PageSize <= 0 {
		o.PageSize = def.PageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = def.MaxPages
	}
	return o
}

// LoadAll requests successive pages until one comes back shorter than the
// page size and returns every row in page order. When the table holds an
// exact multiple of the page size the final request returns an empty page.
// Any page error, after transient retries, fails the whole load.
func LoadAll[T any](ctx context.Context, name string, fetch PageFunc[T], opts Options) ([]T, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "source"), zap.String("source", name))

	retry := opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(name, "fetch_page")
	}

	var all []T
	for page := 0; page < opts.MaxPages; page++ {
		offset := page * opts.PageSize
		rows, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]T, error) {
			return fetch(ctx, offset, opts.PageSize)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "source: %s page %d (offset %d)", name, page, offset)
		}
		if len(rows) > opts.PageSize {
			return nil, eris.Errorf("source: %s page %d returned %d rows, more than page size %d",
				name, page, len(rows), opts.PageSize)
		}
		all = append(all, rows...)

		if len(rows) < opts.PageSize {
			log.Debug("source loaded", zap.Int("rows", len(all)), zap.Int("pages", page+1))
			return all, nil
		}
	}
	return nil, eris.Wrapf(ErrPageCeiling, "source: %s after %d pages", name, opts.MaxPages)
}
