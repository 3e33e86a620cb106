// Package blog implements article reads and the coordinated writes that
// keep the relational store and object storage consistent.
package blog

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inkwell/core/internal/identity"
	"inkwell/core/internal/storage"
	"inkwell/core/internal/store"
)

// ArticleStore is the relational-store surface the service consumes.
// Update and Delete report whether a row changed: the store's ownership
// policy is baked into its row predicates, so an unchanged row means the
// actor does not own it (or it is gone).
type ArticleStore interface {
	ListPage(ctx context.Context, offset, limit int) ([]store.ArticleWithAuthor, error)
	GetByID(ctx context.Context, id string) (store.ArticleWithAuthor, error)
	Insert(ctx context.Context, authorID string, fields store.ArticleFields) (store.Article, error)
	Update(ctx context.Context, id, actorID string, fields store.ArticleFields) (bool, error)
	Delete(ctx context.Context, id, actorID string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListComments(ctx context.Context, articleID string) ([]store.Comment, error)
	InsertComment(ctx context.Context, comment store.Comment) (store.Comment, error)
}

// AuthState is read-only access to process-wide authentication state.
type AuthState interface {
	Current() *identity.AuthUser
}

type Service struct {
	store  ArticleStore
	bucket storage.Bucket
	auth   AuthState
	log    *zap.Logger
}

func New(articles ArticleStore, bucket storage.Bucket, auth AuthState, log *zap.Logger) *Service {
	return &Service{store: articles, bucket: bucket, auth: auth, log: log}
}

// ListPage reads one page of articles with their joined authors, newest
// first. Pages past the end of the collection are empty, not an error.
func (s *Service) ListPage(ctx context.Context, pageIndex, pageSize int) ([]store.ArticleWithAuthor, error) {
	if pageIndex < 0 {
		return nil, errorf(KindValidation, "page index must not be negative")
	}
	if pageSize < 1 {
		return nil, errorf(KindValidation, "page size must be positive")
	}
	items, err := s.store.ListPage(ctx, pageIndex*pageSize, pageSize)
	if err != nil {
		return nil, wrapf(KindPersistence, err, "list articles")
	}
	return items, nil
}

// GetByID fetches one article with its joined author. Missing rows and
// malformed identifiers both surface as NotFound.
func (s *Service) GetByID(ctx context.Context, id string) (store.ArticleWithAuthor, error) {
	if strings.TrimSpace(id) == "" {
		return store.ArticleWithAuthor{}, errorf(KindNotFound, "article not found")
	}
	item, err := s.store.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ArticleWithAuthor{}, errorf(KindNotFound, "article not found")
	}
	if err != nil {
		return store.ArticleWithAuthor{}, wrapf(KindPersistence, err, "get article")
	}
	return item, nil
}

// Create inserts a new article owned by the current actor.
func (s *Service) Create(ctx context.Context, fields store.ArticleFields) (store.Article, error) {
	actor := s.auth.Current()
	if actor == nil {
		return store.Article{}, errorf(KindUnauthorized, "not authenticated")
	}
	if err := validateFields(&fields); err != nil {
		return store.Article{}, err
	}
	article, err := s.store.Insert(ctx, actor.ID, fields)
	if err != nil {
		return store.Article{}, wrapf(KindPersistence, err, "create article")
	}
	return article, nil
}

// Update mutates the editable fields of an article the actor owns.
func (s *Service) Update(ctx context.Context, id string, fields store.ArticleFields) error {
	actor := s.auth.Current()
	if actor == nil {
		return errorf(KindUnauthorized, "not authenticated")
	}
	if err := validateFields(&fields); err != nil {
		return err
	}
	changed, err := s.store.Update(ctx, id, actor.ID, fields)
	if err != nil {
		return wrapf(KindPersistence, err, "update article")
	}
	if !changed {
		return s.explainUnchanged(ctx, id)
	}
	return nil
}

// Delete removes an article the actor owns. Deletion is immediate and
// irreversible; callers obtain explicit confirmation before invoking.
func (s *Service) Delete(ctx context.Context, id string) error {
	actor := s.auth.Current()
	if actor == nil {
		return errorf(KindUnauthorized, "not authenticated")
	}
	deleted, err := s.store.Delete(ctx, id, actor.ID)
	if err != nil {
		return wrapf(KindPersistence, err, "delete article")
	}
	if !deleted {
		return s.explainUnchanged(ctx, id)
	}
	return nil
}

// explainUnchanged maps a zero-row mutation to NotFound or Unauthorized:
// the row either does not exist or belongs to someone else.
func (s *Service) explainUnchanged(ctx context.Context, id string) error {
	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return wrapf(KindPersistence, err, "check article")
	}
	if exists {
		return errorf(KindUnauthorized, "not the author of this article")
	}
	return errorf(KindNotFound, "article not found")
}

func (s *Service) ListComments(ctx context.Context, articleID string) ([]store.Comment, error) {
	comments, err := s.store.ListComments(ctx, articleID)
	if err != nil {
		return nil, wrapf(KindPersistence, err, "list comments")
	}
	return comments, nil
}

func (s *Service) AddComment(ctx context.Context, articleID, body string) (store.Comment, error) {
	actor := s.auth.Current()
	if actor == nil {
		return store.Comment{}, errorf(KindUnauthorized, "not authenticated")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, errorf(KindValidation, "comment body is required")
	}
	exists, err := s.store.Exists(ctx, articleID)
	if err != nil {
		return store.Comment{}, wrapf(KindPersistence, err, "check article")
	}
	if !exists {
		return store.Comment{}, errorf(KindNotFound, "article not found")
	}
	comment, err := s.store.InsertComment(ctx, store.Comment{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		AuthorID:  actor.ID,
		Body:      body,
	})
	if err != nil {
		return store.Comment{}, wrapf(KindPersistence, err, "add comment")
	}
	return comment, nil
}

func validateFields(fields *store.ArticleFields) error {
	fields.Title = strings.TrimSpace(fields.Title)
	if fields.Title == "" {
		return errorf(KindValidation, "title is required")
	}
	if strings.TrimSpace(fields.Content) == "" {
		return errorf(KindValidation, "content is required")
	}
	return nil
}
