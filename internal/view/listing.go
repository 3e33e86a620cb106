// Package view holds the client-side controllers that drive listing and
// detail UI state against the blog service.
package view

import (
	"context"
	"sync"

	"inkwell/core/internal/store"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

// Lister is the read surface the listing controller drives.
type Lister interface {
	ListPage(ctx context.Context, pageIndex, pageSize int) ([]store.ArticleWithAuthor, error)
}

// ListingSnapshot is the state a renderer consumes. Items is only
// meaningful in PhaseLoaded; an empty page past the end of the collection
// still loads, it is not a failure.
type ListingSnapshot struct {
	Phase Phase
	Page  int
	Items []store.ArticleWithAuthor
	Err   error
}

// Listing pages through articles. Page requests supersede one another:
// each request bumps a sequence number, and a response is applied only if
// its request is still the newest, so the last-issued request wins no
// matter how responses are ordered.
type Listing struct {
	lister   Lister
	pageSize int

	mu    sync.Mutex
	seq   uint64
	phase Phase
	page  int
	items []store.ArticleWithAuthor
	err   error
}

func NewListing(lister Lister, pageSize int) *Listing {
	return &Listing{lister: lister, pageSize: pageSize}
}

// LoadPage requests the given page. The returned channel closes once the
// response has been applied or discarded as stale.
func (l *Listing) LoadPage(ctx context.Context, page int) <-chan struct{} {
	if page < 0 {
		page = 0
	}

	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.page = page
	l.phase = PhaseLoading
	l.err = nil
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		items, err := l.lister.ListPage(ctx, page, l.pageSize)

		l.mu.Lock()
		defer l.mu.Unlock()
		if seq != l.seq {
			// A newer page request was issued; this response is stale.
			return
		}
		if err != nil {
			l.phase = PhaseFailed
			l.err = err
			return
		}
		l.phase = PhaseLoaded
		l.items = items
	}()
	return done
}

// Next requests the following page. There is no known upper bound; pages
// past the end load empty.
func (l *Listing) Next(ctx context.Context) <-chan struct{} {
	l.mu.Lock()
	page := l.page + 1
	l.mu.Unlock()
	return l.LoadPage(ctx, page)
}

// Prev requests the preceding page, or does nothing on page zero.
func (l *Listing) Prev(ctx context.Context) <-chan struct{} {
	l.mu.Lock()
	page := l.page
	l.mu.Unlock()
	if page == 0 {
		done := make(chan struct{})
		close(done)
		return done
	}
	return l.LoadPage(ctx, page-1)
}

func (l *Listing) Snapshot() ListingSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := make([]store.ArticleWithAuthor, len(l.items))
	copy(items, l.items)
	return ListingSnapshot{Phase: l.phase, Page: l.page, Items: items, Err: l.err}
}
