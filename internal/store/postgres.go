package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"carbonpress/api/internal/util"
)

// ErrPostNotFound is returned when no post matches the given id or slug.
var ErrPostNotFound = errors.New("post not found")

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

const postColumns = `id, title, slug, excerpt, content, featured_image_url, tags, categories, seo_title, seo_description, status, created_at, updated_at`

func encodeStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// CreatePost inserts a new post record and returns it with its
// server-assigned id and timestamps.
func (s *PostgresStore) CreatePost(ctx context.Context, post Post) (Post, error) {
	if post.ID == "" {
		post.ID = util.NewID("post")
	}
	tags, err := encodeStrings(post.Tags)
	if err != nil {
		return Post{}, fmt.Errorf("encode tags: %w", err)
	}
	categories, err := encodeStrings(post.Categories)
	if err != nil {
		return Post{}, fmt.Errorf("encode categories: %w", err)
	}
	content := post.Content
	if content == nil {
		content = json.RawMessage("null")
	}

	query := `
		INSERT INTO posts (id, title, slug, excerpt, content, featured_image_url, tags, categories, seo_title, seo_description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		post.ID, post.Title, post.Slug, post.Excerpt, []byte(content), post.FeaturedImageURL,
		tags, categories, post.SEOTitle, post.SEODescription, post.Status,
	).Scan(&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

// UpdatePost overwrites an existing post record.
func (s *PostgresStore) UpdatePost(ctx context.Context, post Post) (Post, error) {
	tags, err := encodeStrings(post.Tags)
	if err != nil {
		return Post{}, fmt.Errorf("encode tags: %w", err)
	}
	categories, err := encodeStrings(post.Categories)
	if err != nil {
		return Post{}, fmt.Errorf("encode categories: %w", err)
	}
	content := post.Content
	if content == nil {
		content = json.RawMessage("null")
	}

	query := `
		UPDATE posts
		SET title=$2, slug=$3, excerpt=$4, content=$5, featured_image_url=$6,
		    tags=$7, categories=$8, seo_title=$9, seo_description=$10, status=$11,
		    updated_at=NOW()
		WHERE id=$1
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		post.ID, post.Title, post.Slug, post.Excerpt, []byte(content), post.FeaturedImageURL,
		tags, categories, post.SEOTitle, post.SEODescription, post.Status,
	).Scan(&post.CreatedAt, &post.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrPostNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

func (s *PostgresStore) scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var post Post
	var content, tags, categories []byte
	err := row.Scan(
		&post.ID, &post.Title, &post.Slug, &post.Excerpt, &content, &post.FeaturedImageURL,
		&tags, &categories, &post.SEOTitle, &post.SEODescription, &post.Status,
		&post.CreatedAt, &post.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrPostNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("scan post: %w", err)
	}
	post.Content = json.RawMessage(content)
	if err := json.Unmarshal(tags, &post.Tags); err != nil {
		return Post{}, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(categories, &post.Categories); err != nil {
		return Post{}, fmt.Errorf("decode categories: %w", err)
	}
	return post, nil
}

// GetPost fetches one post by id.
func (s *PostgresStore) GetPost(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, id)
	return s.scanPost(row)
}

// GetPostBySlug fetches one post by slug.
func (s *PostgresStore) GetPostBySlug(ctx context.Context, slug string) (Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE slug=$1`, slug)
	return s.scanPost(row)
}

// ListPosts lists posts, optionally filtered by status, newest first.
func (s *PostgresStore) ListPosts(ctx context.Context, status string) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		post, err := s.scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// DeletePost removes a post record.
func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if affected == 0 {
		return ErrPostNotFound
	}
	return nil
}
