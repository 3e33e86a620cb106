package blog

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"inkwell/core/internal/store"
)

// ImageUpload is a new attachment supplied with a save.
type ImageUpload struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// SaveInput describes one article save. An empty ID means create.
// ExistingImageURL is the image the row currently references, if any.
type SaveInput struct {
	ID               string
	Title            string
	Content          string
	ExistingImageURL *string
	NewImage         *ImageUpload
	RemoveImage      bool
}

// Save persists an article together with its attachment, sequenced so the
// row never references a blob that failed to upload:
//
//  1. a new image is uploaded first; an upload failure aborts the save
//     before any row mutation,
//  2. the remove flag is honored only when no new image is supplied
//     (new-image-wins), with a best-effort delete of the old blob that
//     never blocks the row write,
//  3. the row write happens last; if it fails, an already-uploaded blob
//     is left behind as an accepted orphan and never retried,
//  4. after a successful write that replaced the image, the old blob is
//     deleted best-effort.
//
// Returns the saved article's identifier.
func (s *Service) Save(ctx context.Context, in SaveInput) (string, error) {
	actor := s.auth.Current()
	if actor == nil {
		return "", errorf(KindUnauthorized, "not authenticated")
	}
	fields := store.ArticleFields{Title: in.Title, Content: in.Content, ImageURL: in.ExistingImageURL}
	if err := validateFields(&fields); err != nil {
		return "", err
	}

	switch {
	case in.NewImage != nil:
		path := s.attachmentPath(actor.ID, in.NewImage.Name)
		if err := s.bucket.Upload(ctx, path, in.NewImage.Reader, in.NewImage.Size, in.NewImage.ContentType); err != nil {
			return "", wrapf(KindStorage, err, "upload image")
		}
		url := s.bucket.PublicURL(path)
		fields.ImageURL = &url
	case in.RemoveImage && in.ExistingImageURL != nil:
		s.removeBlob(ctx, *in.ExistingImageURL)
		fields.ImageURL = nil
	}

	id := in.ID
	if id == "" {
		article, err := s.store.Insert(ctx, actor.ID, fields)
		if err != nil {
			return "", wrapf(KindPersistence, err, "create article")
		}
		id = article.ID
	} else {
		changed, err := s.store.Update(ctx, id, actor.ID, fields)
		if err != nil {
			return "", wrapf(KindPersistence, err, "update article")
		}
		if !changed {
			return "", s.explainUnchanged(ctx, id)
		}
	}

	// The row now points at the new image; the replaced blob is
	// unreachable and cleaned up best-effort.
	if in.NewImage != nil && in.ExistingImageURL != nil && *in.ExistingImageURL != *fields.ImageURL {
		s.removeBlob(ctx, *in.ExistingImageURL)
	}
	return id, nil
}

// removeBlob deletes the blob behind a public URL. Failures are logged
// and swallowed: a leftover blob never blocks a save.
func (s *Service) removeBlob(ctx context.Context, url string) {
	path, ok := s.bucket.ObjectPath(url)
	if !ok {
		s.log.Warn("image url does not belong to the bucket, skipping delete", zap.String("url", url))
		return
	}
	if err := s.bucket.Remove(ctx, path); err != nil {
		s.log.Warn("best-effort blob delete failed", zap.String("path", path), zap.Error(err))
	}
}

// attachmentPath scopes blob paths by owner and adds a time-based
// uniqueness token so re-uploads of the same file name never collide.
func (s *Service) attachmentPath(actorID, fileName string) string {
	name := strings.TrimSpace(fileName)
	if name == "" {
		name = "image"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	return fmt.Sprintf("%s/%d-%s", actorID, time.Now().UnixNano(), name)
}
