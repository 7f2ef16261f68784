package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/mdimport/internal/apperr"
)

// ArticleRow represents a row in the articles table.
type ArticleRow struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"`
	CategoryID *int64    `json:"categoryId,omitempty"`
	Status     int       `json:"status"`
	SourceURL  string    `json:"sourceUrl,omitempty"`
	SourcePath string    `json:"sourcePath,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

const articleColumns = `id, title, content, category_id, status, source_url, source_path, checksum, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(s scanner) (ArticleRow, error) {
	var a ArticleRow
	var cat sql.NullInt64
	err := s.Scan(&a.ID, &a.Title, &a.Content, &cat, &a.Status, &a.SourceURL, &a.SourcePath, &a.Checksum, &a.CreatedAt, &a.UpdatedAt)
	if cat.Valid {
		a.CategoryID = &cat.Int64
	}
	return a, err
}

// FindArticleByTitle returns the oldest article with exactly this title.
func (db *DB) FindArticleByTitle(ctx context.Context, title string) (*ArticleRow, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE title = ? ORDER BY id LIMIT 1`, title)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: article %q: %w", title, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: find article: %w", err)
	}
	return &a, nil
}

// GetArticle returns an article with its tag names.
func (db *DB) GetArticle(ctx context.Context, id int64) (*ArticleRow, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: article %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get article: %w", err)
	}
	tags, err := db.articleTags(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Tags = tags
	return &a, nil
}

// ListArticles returns articles newest first and the total count.
func (db *DB) ListArticles(ctx context.Context, limit, offset int) ([]ArticleRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM articles`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count articles: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list articles: %w", err)
	}
	out := []ArticleRow{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		a.Content = ""
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, err
	}
	rows.Close()

	for i := range out {
		tags, err := db.articleTags(ctx, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Tags = tags
	}
	return out, total, nil
}

func (db *DB) articleTags(ctx context.Context, id int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN article_tags at ON at.tag_id = t.id
		WHERE at.article_id = ?
		ORDER BY t.name`, id)
	if err != nil {
		return nil, fmt.Errorf("index: article tags: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// CreateArticle inserts an article, its tag links and FTS entry within a
// transaction and returns the new ID.
func (db *DB) CreateArticle(ctx context.Context, a ArticleRow, tagIDs []int64) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	id, err := insertArticle(ctx, tx, a, tagIDs)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit: %w", err)
	}
	return id, nil
}

// ReplaceArticle deletes article oldID and inserts a in the same
// transaction. When the insert fails the old article is kept.
func (db *DB) ReplaceArticle(ctx context.Context, oldID int64, a ArticleRow, tagIDs []int64) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteArticle(ctx, tx, oldID); err != nil {
		return 0, err
	}
	id, err := insertArticle(ctx, tx, a, tagIDs)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit: %w", err)
	}
	return id, nil
}

func insertArticle(ctx context.Context, tx *sql.Tx, a ArticleRow, tagIDs []int64) (int64, error) {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO articles (title, content, category_id, status, source_url, source_path, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Title, a.Content, a.CategoryID, a.Status, a.SourceURL, a.SourcePath, a.Checksum, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("index: insert article: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("index: article id: %w", err)
	}

	if err := replaceTags(ctx, tx, id, tagIDs); err != nil {
		return 0, err
	}
	if err := ftsUpsert(tx, id, a.Title, a.Content, tagNames(ctx, tx, tagIDs)); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateArticle rewrites an existing article and replaces its tags.
// A zero CreatedAt keeps the stored value.
func (db *DB) UpdateArticle(ctx context.Context, a ArticleRow, tagIDs []int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	var createdAt any
	if !a.CreatedAt.IsZero() {
		createdAt = a.CreatedAt
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE articles SET
			title       = ?,
			content     = ?,
			category_id = ?,
			status      = ?,
			source_url  = ?,
			source_path = ?,
			checksum    = ?,
			created_at  = COALESCE(?, created_at),
			updated_at  = ?
		WHERE id = ?
	`, a.Title, a.Content, a.CategoryID, a.Status, a.SourceURL, a.SourcePath, a.Checksum, createdAt, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("index: update article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: article %d: %w", a.ID, apperr.ErrNotFound)
	}

	if err := replaceTags(ctx, tx, a.ID, tagIDs); err != nil {
		return err
	}
	if err := ftsUpsert(tx, a.ID, a.Title, a.Content, tagNames(ctx, tx, tagIDs)); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteArticle removes an article, its tag links and FTS entry.
func (db *DB) DeleteArticle(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteArticle(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteArticle(ctx context.Context, tx *sql.Tx, id int64) error {
	ftsDelete(tx, id)
	_, _ = tx.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = ?`, id)
	res, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: delete article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: article %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, articleID int64, tagIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = ?`, articleID); err != nil {
		return fmt.Errorf("index: clear tags: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO article_tags (article_id, tag_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare tag insert: %w", err)
	}
	defer stmt.Close()
	for _, tagID := range tagIDs {
		if _, err := stmt.ExecContext(ctx, articleID, tagID); err != nil {
			return fmt.Errorf("index: insert tag link: %w", err)
		}
	}
	return nil
}

func tagNames(ctx context.Context, tx *sql.Tx, tagIDs []int64) []string {
	names := make([]string, 0, len(tagIDs))
	for _, id := range tagIDs {
		var name string
		if err := tx.QueryRowContext(ctx, `SELECT name FROM tags WHERE id = ?`, id).Scan(&name); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// Category and tag tables share one shape.
const (
	tableCategories = "categories"
	tableTags       = "tags"
)

// CategoryID looks up a category by exact name.
func (db *DB) CategoryID(ctx context.Context, name string) (int64, error) {
	return db.lookupName(ctx, tableCategories, name)
}

// EnsureCategory returns the ID of the named category, creating it if needed.
func (db *DB) EnsureCategory(ctx context.Context, name string) (int64, error) {
	return db.ensureName(ctx, tableCategories, name)
}

// TagID looks up a tag by exact name.
func (db *DB) TagID(ctx context.Context, name string) (int64, error) {
	return db.lookupName(ctx, tableTags, name)
}

// EnsureTag returns the ID of the named tag, creating it if needed.
func (db *DB) EnsureTag(ctx context.Context, name string) (int64, error) {
	return db.ensureName(ctx, tableTags, name)
}

// Categories returns every category name mapped to its ID.
func (db *DB) Categories(ctx context.Context) (map[string]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("index: categories: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

func (db *DB) lookupName(ctx context.Context, table, name string) (int64, error) {
	name = strings.TrimSpace(name)
	var id int64
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("index: %s %q: %w", table, name, apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("index: lookup %s: %w", table, err)
	}
	return id, nil
}

func (db *DB) ensureName(ctx context.Context, table, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("index: empty %s name: %w", table, apperr.ErrInvalidInput)
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO `+table+` (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("index: create %s: %w", table, err)
	}
	return db.lookupName(ctx, table, name)
}
