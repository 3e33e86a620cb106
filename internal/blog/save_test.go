package blog

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap"

	"inkwell/core/internal/store"
)

type fakeBucket struct {
	uploads   []string
	removed   []string
	uploadErr error
	removeErr error
}

func (b *fakeBucket) Upload(_ context.Context, path string, r io.Reader, _ int64, _ string) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	if r != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	b.uploads = append(b.uploads, path)
	return nil
}

func (b *fakeBucket) PublicURL(path string) string {
	return "http://bucket.test/blog-images/" + path
}

func (b *fakeBucket) ObjectPath(url string) (string, bool) {
	path, ok := strings.CutPrefix(url, "http://bucket.test/blog-images/")
	return path, ok
}

func (b *fakeBucket) Remove(_ context.Context, paths ...string) error {
	if b.removeErr != nil {
		return b.removeErr
	}
	b.removed = append(b.removed, paths...)
	return nil
}

func newImage(name string) *ImageUpload {
	return &ImageUpload{
		Name:        name,
		ContentType: "image/png",
		Size:        4,
		Reader:      strings.NewReader("data"),
	}
}

func TestSaveUploadFailureAbortsBeforeRowWrite(t *testing.T) {
	wrote := false
	fs := &fakeStore{
		update: func(context.Context, string, string, store.ArticleFields) (bool, error) {
			wrote = true
			return true, nil
		},
	}
	bucket := &fakeBucket{uploadErr: errors.New("bucket unavailable")}
	svc := New(fs, bucket, signedIn("u1"), zap.NewNop())

	_, err := svc.Save(context.Background(), SaveInput{
		ID:       "a1",
		Title:    "T",
		Content:  "C",
		NewImage: newImage("cat.png"),
	})
	if !IsKind(err, KindStorage) {
		t.Fatalf("expected STORAGE_ERROR, got %v", err)
	}
	if wrote {
		t.Error("an upload failure must abort the save before any row write")
	}
}

func TestSaveRemoveFlagClearsImage(t *testing.T) {
	existing := "http://bucket.test/blog-images/u1/1-old.png"
	var gotFields store.ArticleFields
	fs := &fakeStore{
		update: func(_ context.Context, _, _ string, fields store.ArticleFields) (bool, error) {
			gotFields = fields
			return true, nil
		},
	}
	bucket := &fakeBucket{}
	svc := New(fs, bucket, signedIn("u1"), zap.NewNop())

	if _, err := svc.Save(context.Background(), SaveInput{
		ID:               "a1",
		Title:            "T",
		Content:          "C",
		ExistingImageURL: &existing,
		RemoveImage:      true,
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if gotFields.ImageURL != nil {
		t.Error("the remove flag must clear the row's image reference")
	}
	if len(bucket.removed) != 1 || bucket.removed[0] != "u1/1-old.png" {
		t.Errorf("expected the old blob to be deleted, got %v", bucket.removed)
	}
}

func TestSaveRemoveFlagSurvivesBlobDeleteFailure(t *testing.T) {
	existing := "http://bucket.test/blog-images/u1/1-old.png"
	var gotFields store.ArticleFields
	fs := &fakeStore{
		update: func(_ context.Context, _, _ string, fields store.ArticleFields) (bool, error) {
			gotFields = fields
			return true, nil
		},
	}
	bucket := &fakeBucket{removeErr: errors.New("delete refused")}
	svc := New(fs, bucket, signedIn("u1"), zap.NewNop())

	if _, err := svc.Save(context.Background(), SaveInput{
		ID:               "a1",
		Title:            "T",
		Content:          "C",
		ExistingImageURL: &existing,
		RemoveImage:      true,
	}); err != nil {
		t.Fatalf("a failed blob delete must not fail the save: %v", err)
	}
	if gotFields.ImageURL != nil {
		t.Error("the row image must be cleared even when the blob delete fails")
	}
}

func TestSaveNewImageWinsOverRemoveFlag(t *testing.T) {
	existing := "http://bucket.test/blog-images/u1/1-old.png"
	var gotFields store.ArticleFields
	fs := &fakeStore{
		update: func(_ context.Context, _, _ string, fields store.ArticleFields) (bool, error) {
			gotFields = fields
			return true, nil
		},
	}
	bucket := &fakeBucket{}
	svc := New(fs, bucket, signedIn("u1"), zap.NewNop())

	if _, err := svc.Save(context.Background(), SaveInput{
		ID:               "a1",
		Title:            "T",
		Content:          "C",
		ExistingImageURL: &existing,
		NewImage:         newImage("new.png"),
		RemoveImage:      true,
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(bucket.uploads) != 1 {
		t.Fatalf("expected exactly one upload, got %d", len(bucket.uploads))
	}
	if gotFields.ImageURL == nil || !strings.Contains(*gotFields.ImageURL, "new.png") {
		t.Errorf("expected the new image to win, got %v", gotFields.ImageURL)
	}
	// The replaced blob is cleaned up after the row write.
	if len(bucket.removed) != 1 || bucket.removed[0] != "u1/1-old.png" {
		t.Errorf("expected the replaced blob to be deleted, got %v", bucket.removed)
	}
}

func TestSaveRowWriteFailureLeavesOrphan(t *testing.T) {
	fs := &fakeStore{
		insert: func(context.Context, string, store.ArticleFields) (store.Article, error) {
			return store.Article{}, errors.New("deadlock detected")
		},
	}
	bucket := &fakeBucket{}
	svc := New(fs, bucket, signedIn("u1"), zap.NewNop())

	_, err := svc.Save(context.Background(), SaveInput{
		Title:    "T",
		Content:  "C",
		NewImage: newImage("cat.png"),
	})
	if !IsKind(err, KindPersistence) {
		t.Fatalf("expected PERSISTENCE_ERROR, got %v", err)
	}
	if len(bucket.uploads) != 1 {
		t.Errorf("expected the upload to have happened, got %d", len(bucket.uploads))
	}
	if len(bucket.removed) != 0 {
		t.Error("an orphaned blob must not be retried or cleaned up")
	}
}

func TestSaveCreateAssignsID(t *testing.T) {
	fs := &fakeStore{
		insert: func(_ context.Context, authorID string, fields store.ArticleFields) (store.Article, error) {
			return store.Article{ID: "a9", Title: fields.Title, AuthorID: authorID}, nil
		},
	}
	svc := New(fs, &fakeBucket{}, signedIn("u1"), zap.NewNop())

	id, err := svc.Save(context.Background(), SaveInput{Title: "T", Content: "C"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id != "a9" {
		t.Errorf("expected the store-assigned id, got %q", id)
	}
}

func TestSaveRequiresActor(t *testing.T) {
	svc := New(&fakeStore{}, &fakeBucket{}, staticAuth{}, zap.NewNop())

	if _, err := svc.Save(context.Background(), SaveInput{Title: "T", Content: "C"}); !IsKind(err, KindUnauthorized) {
		t.Errorf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestSaveKeepsExistingImageByDefault(t *testing.T) {
	existing := "http://bucket.test/blog-images/u1/1-old.png"
	var gotFields store.ArticleFields
	fs := &fakeStore{
		update: func(_ context.Context, _, _ string, fields store.ArticleFields) (bool, error) {
			gotFields = fields
			return true, nil
		},
	}
	bucket := &fakeBucket{}
	svc := New(fs, bucket, signedIn("u1"), zap.NewNop())

	if _, err := svc.Save(context.Background(), SaveInput{
		ID:               "a1",
		Title:            "T",
		Content:          "C",
		ExistingImageURL: &existing,
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if gotFields.ImageURL == nil || *gotFields.ImageURL != existing {
		t.Errorf("expected the existing image to be kept, got %v", gotFields.ImageURL)
	}
	if len(bucket.removed) != 0 || len(bucket.uploads) != 0 {
		t.Error("a plain text edit must not touch the bucket")
	}
}

func TestAttachmentPathSanitizesName(t *testing.T) {
	svc := New(&fakeStore{}, &fakeBucket{}, signedIn("u1"), zap.NewNop())

	path := svc.attachmentPath("u1", "my photo (1).png")
	if !strings.HasPrefix(path, "u1/") {
		t.Errorf("path must be scoped by owner, got %q", path)
	}
	if strings.ContainsAny(path, " ()") {
		t.Errorf("path must not carry unsafe characters, got %q", path)
	}
	if !strings.HasSuffix(path, ".png") {
		t.Errorf("extension must survive sanitizing, got %q", path)
	}
}
