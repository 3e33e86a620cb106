package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const articleJoin = `
	SELECT a.id, a.title, a.content, a.image_url, a.author_id, a.created_at,
	       u.full_name, u.avatar_url
	FROM articles a
	LEFT JOIN users u ON u.id = a.author_id
`

// ListPage reads up to limit articles ordered by creation time descending,
// skipping offset rows. Reads past the end of the collection return an
// empty slice, not an error. If the author join fans out to more than one
// row per article, the first row wins.
func (s *PostgresStore) ListPage(ctx context.Context, offset, limit int) ([]ArticleWithAuthor, error) {
	rows, err := s.db.QueryContext(ctx, articleJoin+`
		ORDER BY a.created_at DESC, a.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	items := make([]ArticleWithAuthor, 0, limit)
	seen := make(map[string]struct{}, limit)
	for rows.Next() {
		item, err := scanArticleWithAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		if _, dup := seen[item.Article.ID]; dup {
			continue
		}
		seen[item.Article.ID] = struct{}{}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return items, nil
}

// GetByID fetches a single article with its joined author. Returns
// sql.ErrNoRows when no article matches.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (ArticleWithAuthor, error) {
	rows, err := s.db.QueryContext(ctx, articleJoin+`WHERE a.id = $1`, id)
	if err != nil {
		return ArticleWithAuthor{}, fmt.Errorf("get article: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ArticleWithAuthor{}, fmt.Errorf("get article: %w", err)
		}
		return ArticleWithAuthor{}, sql.ErrNoRows
	}
	item, err := scanArticleWithAuthor(rows)
	if err != nil {
		return ArticleWithAuthor{}, fmt.Errorf("scan article: %w", err)
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticleWithAuthor(row rowScanner) (ArticleWithAuthor, error) {
	var item ArticleWithAuthor
	var fullName sql.NullString
	var avatarURL sql.NullString
	if err := row.Scan(
		&item.Article.ID,
		&item.Article.Title,
		&item.Article.Content,
		&item.Article.ImageURL,
		&item.Article.AuthorID,
		&item.Article.CreatedAt,
		&fullName,
		&avatarURL,
	); err != nil {
		return ArticleWithAuthor{}, err
	}
	if fullName.Valid {
		item.Author.Present = true
		item.Author.Author.FullName = fullName.String
		if avatarURL.Valid {
			item.Author.Author.AvatarURL = &avatarURL.String
		}
	}
	return item, nil
}

// Insert creates an article. The id and created_at are server-assigned.
func (s *PostgresStore) Insert(ctx context.Context, authorID string, fields ArticleFields) (Article, error) {
	const q = `
		INSERT INTO articles (title, content, image_url, author_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, content, image_url, author_id, created_at
	`
	var a Article
	err := s.db.QueryRowContext(ctx, q, fields.Title, fields.Content, fields.ImageURL, authorID).Scan(
		&a.ID, &a.Title, &a.Content, &a.ImageURL, &a.AuthorID, &a.CreatedAt,
	)
	if err != nil {
		return Article{}, fmt.Errorf("insert article: %w", err)
	}
	return a, nil
}

// Update mutates the editable fields of an article. The actor is part of
// the row predicate: rows owned by someone else are untouched, which is
// how the store's ownership policy surfaces here. Returns whether a row
// changed.
func (s *PostgresStore) Update(ctx context.Context, id, actorID string, fields ArticleFields) (bool, error) {
	const q = `
		UPDATE articles
		SET title = $1, content = $2, image_url = $3
		WHERE id = $4 AND author_id = $5
	`
	res, err := s.db.ExecContext(ctx, q, fields.Title, fields.Content, fields.ImageURL, id, actorID)
	if err != nil {
		return false, fmt.Errorf("update article: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update article: %w", err)
	}
	return affected > 0, nil
}

// Delete removes an article owned by the actor. Returns whether a row was
// deleted.
func (s *PostgresStore) Delete(ctx context.Context, id, actorID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1 AND author_id = $2`, id, actorID)
	if err != nil {
		return false, fmt.Errorf("delete article: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete article: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM articles WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check article: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	const q = `
		INSERT INTO users (id, email, full_name, avatar_url, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.ExecContext(ctx, q, user.ID, user.Email, user.FullName, user.AvatarURL, user.PasswordHash); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const q = `SELECT id, email, full_name, avatar_url, password_hash, created_at FROM users WHERE email = $1`
	var u User
	err := s.db.QueryRowContext(ctx, q, email).Scan(&u.ID, &u.Email, &u.FullName, &u.AvatarURL, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const q = `SELECT id, email, full_name, avatar_url, password_hash, created_at FROM users WHERE id = $1`
	var u User
	err := s.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Email, &u.FullName, &u.AvatarURL, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, articleID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, article_id, author_id, body, created_at
		FROM comments WHERE article_id = $1
		ORDER BY created_at
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	const q = `
		INSERT INTO comments (id, article_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if err := s.db.QueryRowContext(ctx, q, c.ID, c.ArticleID, c.AuthorID, c.Body).Scan(&c.CreatedAt); err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}
