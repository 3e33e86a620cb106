package view

import (
	"context"
	"errors"
	"sync"

	"inkwell/core/internal/blog"
	"inkwell/core/internal/store"
)

var errNoPendingConfirmation = errors.New("no pending delete confirmation")

// ArticleRepo is the per-article surface the detail controller drives.
type ArticleRepo interface {
	GetByID(ctx context.Context, id string) (store.ArticleWithAuthor, error)
	Delete(ctx context.Context, id string) error
}

// Comments is the comments collaborator. It receives the article
// identifier and is otherwise opaque.
type Comments interface {
	Open(articleID string)
}

// ConfirmPhase is the delete-confirmation state machine. Destructive
// actions only proceed through ConfirmPending then ConfirmConfirmed;
// cancelling leaves everything else unchanged.
type ConfirmPhase int

const (
	ConfirmIdle ConfirmPhase = iota
	ConfirmPending
	ConfirmConfirmed
	ConfirmCancelled
)

// unknownAuthor is rendered when the author relation resolves absent.
const unknownAuthor = "Unknown author"

// Detail drives a single article view: concurrent actor/article
// resolution, ownership-gated actions, and two-phase delete confirmation.
type Detail struct {
	repo     ArticleRepo
	auth     blog.AuthState
	comments Comments

	mu      sync.Mutex
	loaded  bool
	article store.ArticleWithAuthor
	loadErr error
	actorID string
	confirm ConfirmPhase
	deleted bool
}

func NewDetail(repo ArticleRepo, auth blog.AuthState, comments Comments) *Detail {
	return &Detail{repo: repo, auth: auth, comments: comments}
}

// Load resolves the current actor and fetches the article concurrently,
// then hands the article identifier to the comments collaborator. Action
// gating is computed only once both have resolved.
func (d *Detail) Load(ctx context.Context, id string) error {
	type fetchResult struct {
		item store.ArticleWithAuthor
		err  error
	}
	fetched := make(chan fetchResult, 1)
	go func() {
		item, err := d.repo.GetByID(ctx, id)
		fetched <- fetchResult{item: item, err: err}
	}()

	actorID := ""
	if actor := d.auth.Current(); actor != nil {
		actorID = actor.ID
	}
	result := <-fetched

	d.mu.Lock()
	d.actorID = actorID
	d.loaded = true
	d.loadErr = result.err
	d.article = result.item
	d.confirm = ConfirmIdle
	d.deleted = false
	d.mu.Unlock()

	if result.err != nil {
		return result.err
	}
	if d.comments != nil {
		d.comments.Open(result.item.Article.ID)
	}
	return nil
}

// Article returns the loaded article and whether one is available.
func (d *Detail) Article() (store.ArticleWithAuthor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.article, d.loaded && d.loadErr == nil
}

// AuthorLabel is the display name for the article's author, with a
// fallback when the joined relation came back absent.
func (d *Detail) AuthorLabel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.article.Author.Present {
		return d.article.Author.Author.FullName
	}
	return unknownAuthor
}

// CanModify reports whether edit and delete are available: both the actor
// and the article resolved, and the actor is the author.
func (d *Detail) CanModify() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canModifyLocked()
}

func (d *Detail) canModifyLocked() bool {
	if !d.loaded || d.loadErr != nil || d.actorID == "" {
		return false
	}
	return d.actorID == d.article.Article.AuthorID
}

func (d *Detail) ConfirmState() ConfirmPhase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.confirm
}

// RequestDelete opens the confirmation prompt. It refuses when the actor
// cannot modify the article or a confirmation is already pending.
func (d *Detail) RequestDelete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.canModifyLocked() || d.confirm == ConfirmPending || d.deleted {
		return false
	}
	d.confirm = ConfirmPending
	return true
}

// CancelDelete dismisses the prompt; nothing else changes.
func (d *Detail) CancelDelete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.confirm == ConfirmPending {
		d.confirm = ConfirmCancelled
	}
}

// ConfirmDelete performs the deletion. It only acts from a pending
// confirmation, so no destructive path bypasses the prompt.
func (d *Detail) ConfirmDelete(ctx context.Context) error {
	d.mu.Lock()
	if d.confirm != ConfirmPending {
		d.mu.Unlock()
		return errNoPendingConfirmation
	}
	d.confirm = ConfirmConfirmed
	id := d.article.Article.ID
	d.mu.Unlock()

	if err := d.repo.Delete(ctx, id); err != nil {
		d.mu.Lock()
		d.confirm = ConfirmIdle
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	d.deleted = true
	d.mu.Unlock()
	return nil
}

// Deleted reports whether the article was deleted through this
// controller.
func (d *Detail) Deleted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleted
}
