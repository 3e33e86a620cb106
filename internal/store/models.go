package store

import "time"

// Article is the persisted blog post row. AuthorID is set once at creation
// and never changed by edits.
type Article struct {
	ID        string
	Title     string
	Content   string
	ImageURL  *string
	AuthorID  string
	CreatedAt time.Time
}

// Author is the read-only profile projection joined onto an article at
// query time.
type Author struct {
	FullName  string
	AvatarURL *string
}

// AuthorRef is the normalized result of the article-author join. The join
// is resolved exactly once at the store boundary: whether the relation
// comes back as a single row, several rows, or nothing, consumers only ever
// see absent or present(Author).
type AuthorRef struct {
	Present bool
	Author  Author
}

// ArticleWithAuthor pairs an article with its resolved author reference.
type ArticleWithAuthor struct {
	Article Article
	Author  AuthorRef
}

// ArticleFields are the author-editable fields of an article.
type ArticleFields struct {
	Title    string
	Content  string
	ImageURL *string
}

// User is a credential row for the local identity provider. FullName and
// AvatarURL feed the joined author projection.
type User struct {
	ID           string
	Email        string
	FullName     string
	AvatarURL    *string
	PasswordHash string
	CreatedAt    time.Time
}

type Comment struct {
	ID        string
	ArticleID string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}
