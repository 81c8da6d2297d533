package repository

import (
	"context"
	"fmt"

	"forum/crawler/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createPostsTable = `
CREATE TABLE IF NOT EXISTS posts (
	board TEXT NOT NULL,
	post_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	data JSONB NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (board, post_id)
)`

type postRepository struct {
	db *pgxpool.Pool
}

// NewPostRepository stores posts in the posts table. Images are left to the
// file sink, so SaveImage is a no-op here.
func NewPostRepository(ctx context.Context, db *pgxpool.Pool) (PostSink, error) {
	if _, err := db.Exec(ctx, createPostsTable); err != nil {
		return nil, fmt.Errorf("failed to create posts table: %w", err)
	}
	return &postRepository{db: db}, nil
}

func (r *postRepository) SavePost(ctx context.Context, board string, post *domain.Post) error {
	// posts without an id are keyed by URL
	id := post.ID
	if id == "" {
		id = post.URL
	}

	query := `
	INSERT INTO posts (board, post_id, url, title, data, crawled_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (board, post_id)
	DO UPDATE SET url = $3, title = $4, data = $5, crawled_at = $6`
	_, err := r.db.Exec(ctx, query, board, id, post.URL, post.Title, post, post.CrawledAt)
	if err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}

	return nil
}

func (r *postRepository) SaveImage(context.Context, string, string, []byte, int, string) error {
	return nil
}
