// ABOUTME: Page size normalization and lazy paged sequences
// ABOUTME: Lists are fetched one window at a time and can be ranged over repeatedly

package pagination

import (
	"context"
	"iter"
)

// Config configures page size normalization.
type Config struct {
	Default int
	Max     int
}

// DefaultConfig matches the limits section defaults.
var DefaultConfig = Config{Default: 20, Max: 100}

// Request is a normalized 1-based page request.
type Request struct {
	Page     int
	PageSize int
}

// Offset returns the number of rows to skip.
func (r Request) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int, cfg Config) int {
	pageSize := value
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// Normalize clamps the page size and defaults the page number to 1.
func (cfg Config) Normalize(page, pageSize int) Request {
	if page <= 0 {
		page = 1
	}
	return Request{Page: page, PageSize: ClampPageSize(pageSize, cfg)}
}

// Page is one window of a listing plus the total across all windows.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

// FetchFunc loads at most limit items starting at offset.
type FetchFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// Seq returns a lazy sequence over every item from req onwards. Each window
// of req.PageSize items is fetched only when the consumer reaches it, and
// ranging over the sequence again starts from req's offset. A fetch error is
// yielded once and ends the sequence.
func Seq[T any](ctx context.Context, req Request, fetch FetchFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		offset := req.Offset()
		for {
			if err := ctx.Err(); err != nil {
				var zero T
				yield(zero, err)
				return
			}

			batch, err := fetch(ctx, req.PageSize, offset)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range batch {
				if !yield(item, nil) {
					return
				}
			}
			if len(batch) < req.PageSize {
				return
			}
			offset += len(batch)
		}
	}
}

// Take drains at most n items from seq, stopping at the first error.
func Take[T any](seq iter.Seq2[T, error], n int) ([]T, error) {
	items := make([]T, 0, n)
	if n <= 0 {
		return items, nil
	}
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if len(items) == n {
			break
		}
	}
	return items, nil
}
