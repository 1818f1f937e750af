package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
)

// pageFunc returns the next page of items, or more == false once exhausted.
type pageFunc[T any] func(ctx context.Context) (items []T, more bool, err error)

// Sequence is a finite, restartable sequence of control-plane items. Each
// Drain opens a fresh pager, so nothing is cached between calls.
type Sequence[T any] struct {
	open func() pageFunc[T]
}

// FromPager adapts an azcore pager constructor into a Sequence. newPager is
// invoked once per Drain; items extracts the values of one page.
func FromPager[P, T any](newPager func() *runtime.Pager[P], items func(P) []T) Sequence[T] {
	return Sequence[T]{
		open: func() pageFunc[T] {
			pager := newPager()
			return func(ctx context.Context) ([]T, bool, error) {
				if !pager.More() {
					return nil, false, nil
				}
				page, err := pager.NextPage(ctx)
				if err != nil {
					return nil, false, err
				}
				return items(page), true, nil
			}
		},
	}
}

// Drain reads the sequence to exhaustion.
func (s Sequence[T]) Drain(ctx context.Context) ([]T, error) {
	next := s.open()
	var out []T
	for {
		items, more, err := next(ctx)
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		out = append(out, items...)
	}
}
