package blog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"go.uber.org/zap"

	"inkwell/core/internal/identity"
	"inkwell/core/internal/store"
)

type fakeStore struct {
	listPage      func(ctx context.Context, offset, limit int) ([]store.ArticleWithAuthor, error)
	getByID       func(ctx context.Context, id string) (store.ArticleWithAuthor, error)
	insert        func(ctx context.Context, authorID string, fields store.ArticleFields) (store.Article, error)
	update        func(ctx context.Context, id, actorID string, fields store.ArticleFields) (bool, error)
	delete        func(ctx context.Context, id, actorID string) (bool, error)
	exists        func(ctx context.Context, id string) (bool, error)
	listComments  func(ctx context.Context, articleID string) ([]store.Comment, error)
	insertComment func(ctx context.Context, comment store.Comment) (store.Comment, error)
}

func (f *fakeStore) ListPage(ctx context.Context, offset, limit int) ([]store.ArticleWithAuthor, error) {
	return f.listPage(ctx, offset, limit)
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (store.ArticleWithAuthor, error) {
	return f.getByID(ctx, id)
}

func (f *fakeStore) Insert(ctx context.Context, authorID string, fields store.ArticleFields) (store.Article, error) {
	return f.insert(ctx, authorID, fields)
}

func (f *fakeStore) Update(ctx context.Context, id, actorID string, fields store.ArticleFields) (bool, error) {
	return f.update(ctx, id, actorID, fields)
}

func (f *fakeStore) Delete(ctx context.Context, id, actorID string) (bool, error) {
	return f.delete(ctx, id, actorID)
}

func (f *fakeStore) Exists(ctx context.Context, id string) (bool, error) {
	return f.exists(ctx, id)
}

func (f *fakeStore) ListComments(ctx context.Context, articleID string) ([]store.Comment, error) {
	return f.listComments(ctx, articleID)
}

func (f *fakeStore) InsertComment(ctx context.Context, comment store.Comment) (store.Comment, error) {
	return f.insertComment(ctx, comment)
}

type staticAuth struct {
	user *identity.AuthUser
}

func (a staticAuth) Current() *identity.AuthUser { return a.user }

func signedIn(id string) staticAuth {
	return staticAuth{user: &identity.AuthUser{ID: id, Email: id + "@example.com"}}
}

func newTestService(fs *fakeStore, auth AuthState) *Service {
	return New(fs, &fakeBucket{}, auth, zap.NewNop())
}

func TestListPagePagination(t *testing.T) {
	var gotOffset, gotLimit int
	fs := &fakeStore{
		listPage: func(_ context.Context, offset, limit int) ([]store.ArticleWithAuthor, error) {
			gotOffset, gotLimit = offset, limit
			return []store.ArticleWithAuthor{}, nil
		},
	}
	svc := newTestService(fs, staticAuth{})

	if _, err := svc.ListPage(context.Background(), 3, 6); err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if gotOffset != 18 || gotLimit != 6 {
		t.Errorf("expected offset 18 limit 6, got %d / %d", gotOffset, gotLimit)
	}
}

func TestListPagePastEndIsEmpty(t *testing.T) {
	fs := &fakeStore{
		listPage: func(context.Context, int, int) ([]store.ArticleWithAuthor, error) {
			return []store.ArticleWithAuthor{}, nil
		},
	}
	svc := newTestService(fs, staticAuth{})

	items, err := svc.ListPage(context.Background(), 99, 6)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected an empty page, got %d items", len(items))
	}
}

func TestListPageValidation(t *testing.T) {
	svc := newTestService(&fakeStore{}, staticAuth{})

	if _, err := svc.ListPage(context.Background(), -1, 6); !IsKind(err, KindValidation) {
		t.Errorf("expected VALIDATION_ERROR for negative page, got %v", err)
	}
	if _, err := svc.ListPage(context.Background(), 0, 0); !IsKind(err, KindValidation) {
		t.Errorf("expected VALIDATION_ERROR for zero page size, got %v", err)
	}
}

func TestListPageStoreFailure(t *testing.T) {
	fs := &fakeStore{
		listPage: func(context.Context, int, int) ([]store.ArticleWithAuthor, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(fs, staticAuth{})

	if _, err := svc.ListPage(context.Background(), 0, 6); !IsKind(err, KindPersistence) {
		t.Errorf("expected PERSISTENCE_ERROR, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	fs := &fakeStore{
		getByID: func(context.Context, string) (store.ArticleWithAuthor, error) {
			return store.ArticleWithAuthor{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs, staticAuth{})

	if _, err := svc.GetByID(context.Background(), "missing"); !IsKind(err, KindNotFound) {
		t.Errorf("expected NOT_FOUND for a missing row, got %v", err)
	}
	// Blank identifiers never reach the store.
	if _, err := svc.GetByID(context.Background(), "  "); !IsKind(err, KindNotFound) {
		t.Errorf("expected NOT_FOUND for a blank id, got %v", err)
	}
}

func TestCreateRequiresActor(t *testing.T) {
	inserted := false
	fs := &fakeStore{
		insert: func(context.Context, string, store.ArticleFields) (store.Article, error) {
			inserted = true
			return store.Article{}, nil
		},
	}
	svc := newTestService(fs, staticAuth{})

	_, err := svc.Create(context.Background(), store.ArticleFields{Title: "T", Content: "C"})
	if !IsKind(err, KindUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	if inserted {
		t.Error("an unauthenticated create must not reach the store")
	}
}

func TestCreateValidatesFields(t *testing.T) {
	svc := newTestService(&fakeStore{}, signedIn("u1"))

	if _, err := svc.Create(context.Background(), store.ArticleFields{Title: "   ", Content: "C"}); !IsKind(err, KindValidation) {
		t.Errorf("expected VALIDATION_ERROR for blank title, got %v", err)
	}
	if _, err := svc.Create(context.Background(), store.ArticleFields{Title: "T", Content: ""}); !IsKind(err, KindValidation) {
		t.Errorf("expected VALIDATION_ERROR for empty content, got %v", err)
	}
}

func TestCreateStampsOwner(t *testing.T) {
	var gotAuthor string
	fs := &fakeStore{
		insert: func(_ context.Context, authorID string, fields store.ArticleFields) (store.Article, error) {
			gotAuthor = authorID
			return store.Article{ID: "a1", Title: fields.Title, AuthorID: authorID}, nil
		},
	}
	svc := newTestService(fs, signedIn("u1"))

	article, err := svc.Create(context.Background(), store.ArticleFields{Title: "T", Content: "C"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if gotAuthor != "u1" || article.AuthorID != "u1" {
		t.Errorf("expected the actor as author, got %q", gotAuthor)
	}
}

func TestUpdateNotOwner(t *testing.T) {
	fs := &fakeStore{
		update: func(context.Context, string, string, store.ArticleFields) (bool, error) {
			return false, nil
		},
		exists: func(context.Context, string) (bool, error) { return true, nil },
	}
	svc := newTestService(fs, signedIn("u2"))

	err := svc.Update(context.Background(), "a1", store.ArticleFields{Title: "T", Content: "C"})
	if !IsKind(err, KindUnauthorized) {
		t.Errorf("expected UNAUTHORIZED for a non-author update, got %v", err)
	}
}

func TestUpdateGoneRow(t *testing.T) {
	fs := &fakeStore{
		update: func(context.Context, string, string, store.ArticleFields) (bool, error) {
			return false, nil
		},
		exists: func(context.Context, string) (bool, error) { return false, nil },
	}
	svc := newTestService(fs, signedIn("u1"))

	err := svc.Update(context.Background(), "gone", store.ArticleFields{Title: "T", Content: "C"})
	if !IsKind(err, KindNotFound) {
		t.Errorf("expected NOT_FOUND for a vanished row, got %v", err)
	}
}

func TestDeleteNotOwner(t *testing.T) {
	fs := &fakeStore{
		delete: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
		exists: func(context.Context, string) (bool, error) { return true, nil },
	}
	svc := newTestService(fs, signedIn("u2"))

	if err := svc.Delete(context.Background(), "a1"); !IsKind(err, KindUnauthorized) {
		t.Errorf("expected UNAUTHORIZED for a non-author delete, got %v", err)
	}
}

func TestDeleteAlreadyGone(t *testing.T) {
	fs := &fakeStore{
		delete: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
		exists: func(context.Context, string) (bool, error) { return false, nil },
	}
	svc := newTestService(fs, signedIn("u1"))

	if err := svc.Delete(context.Background(), "a1"); !IsKind(err, KindNotFound) {
		t.Errorf("expected NOT_FOUND for a repeated delete, got %v", err)
	}
}

func TestDeleteUnauthenticated(t *testing.T) {
	svc := newTestService(&fakeStore{}, staticAuth{})

	if err := svc.Delete(context.Background(), "a1"); !IsKind(err, KindUnauthorized) {
		t.Errorf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestAddComment(t *testing.T) {
	fs := &fakeStore{
		exists: func(context.Context, string) (bool, error) { return true, nil },
		insertComment: func(_ context.Context, c store.Comment) (store.Comment, error) {
			return c, nil
		},
	}
	svc := newTestService(fs, signedIn("u1"))

	comment, err := svc.AddComment(context.Background(), "a1", "  well said  ")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if comment.Body != "well said" {
		t.Errorf("expected trimmed body, got %q", comment.Body)
	}
	if comment.AuthorID != "u1" || comment.ArticleID != "a1" {
		t.Errorf("comment not attributed correctly: %+v", comment)
	}
	if comment.ID == "" {
		t.Error("comment must be assigned an identifier")
	}
}

func TestAddCommentValidation(t *testing.T) {
	fs := &fakeStore{
		exists: func(context.Context, string) (bool, error) { return false, nil },
	}
	svc := newTestService(fs, signedIn("u1"))

	if _, err := svc.AddComment(context.Background(), "a1", "   "); !IsKind(err, KindValidation) {
		t.Errorf("expected VALIDATION_ERROR for empty body, got %v", err)
	}
	if _, err := svc.AddComment(context.Background(), "gone", "hi"); !IsKind(err, KindNotFound) {
		t.Errorf("expected NOT_FOUND for a missing article, got %v", err)
	}

	unauth := newTestService(fs, staticAuth{})
	if _, err := unauth.AddComment(context.Background(), "a1", "hi"); !IsKind(err, KindUnauthorized) {
		t.Errorf("expected UNAUTHORIZED, got %v", err)
	}
}
