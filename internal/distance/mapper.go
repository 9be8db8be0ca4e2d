package distance

import (
	"context"
	"sync/atomic"
	"unicode/utf16"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is how many route lookups a page issues at once.
const DefaultConcurrency = 3

// MapWithConcurrency applies mapper to every item with at most limit calls
// in flight, and returns the results in input order. limit is clamped to at
// least 1. The first error cancels the context handed to the remaining
// calls and is returned; no partial results are returned with it.
//
// The pool is a fixed set of workers that each claim the next unclaimed
// index until none remain.
//
// Go Learning Note — errgroup:
// golang.org/x/sync/errgroup is a WaitGroup that also collects the first
// error. errgroup.WithContext derives a context that is cancelled as soon as
// any goroutine returns an error, which is how the remaining workers learn
// to stop early.
//
// Go Learning Note — Writing to Distinct Slice Indexes:
// Each worker writes results[i] for an index no other worker owns, so the
// slice needs no mutex. Only the shared "next index" counter is contended,
// and atomic.Int64 handles that.
func MapWithConcurrency[T, R any](ctx context.Context, items []T, limit int, mapper func(ctx context.Context, item T) (R, error)) ([]R, error) {
	if limit < 1 {
		limit = 1
	}
	results := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	var next atomic.Int64

	for w := 0; w < limit; w++ {
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= len(items) {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := mapper(gctx, items[i])
				if err != nil {
					return err
				}
				results[i] = r
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// StableHash32 is a deterministic 32-bit string hash (h = h*31 + c over
// UTF-16 code units, wrapping). It gives a cache id to destinations that
// have no numeric id of their own, such as a dish's restaurant name.
func StableHash32(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}
