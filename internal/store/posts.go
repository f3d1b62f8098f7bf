// ABOUTME: Post persistence methods on Tx
// ABOUTME: Posts are soft-deleted and carry a denormalized like_count

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const postColumns = `id, club_id, author_id, body, images_json, like_count, deleted, created_at, updated_at`

// CreatePost inserts a post. CreatedAt and UpdatedAt are set if zero.
func (t *Tx) CreatePost(ctx context.Context, p *Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.Images == nil {
		p.Images = []string{}
	}

	images, err := json.Marshal(p.Images)
	if err != nil {
		return fmt.Errorf("marshaling images: %w", err)
	}

	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
	`
	if _, err := t.exec(ctx, "inserting post", query,
		p.ID,
		p.ClubID,
		p.AuthorID,
		p.Body,
		string(images),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	); err != nil {
		return err
	}

	t.logger.Debug("inserted post", "id", p.ID, "club", p.ClubID, "author", p.AuthorID)
	return nil
}

// GetPost retrieves a post by ID, including deleted posts.
// Returns ErrNotFound if the post does not exist.
func (t *Tx) GetPost(ctx context.Context, id string) (*Post, error) {
	row := t.queryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("querying post", err)
	}
	return p, nil
}

// UpdatePost writes the body and images of a live post and bumps UpdatedAt.
// Returns ErrNotFound if the post is missing or deleted.
func (t *Tx) UpdatePost(ctx context.Context, p *Post) error {
	p.UpdatedAt = time.Now().UTC()
	images, err := json.Marshal(p.Images)
	if err != nil {
		return fmt.Errorf("marshaling images: %w", err)
	}

	res, err := t.exec(ctx, "updating post",
		`UPDATE posts SET body = ?, images_json = ?, updated_at = ? WHERE id = ? AND deleted = 0`,
		p.Body, string(images), formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, "updating post")
}

// DeletePost soft-deletes a live post.
// Returns ErrNotFound if the post is missing or already deleted.
func (t *Tx) DeletePost(ctx context.Context, id string) error {
	res, err := t.exec(ctx, "deleting post",
		`UPDATE posts SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`,
		formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, "deleting post")
}

// DeleteClubPosts soft-deletes every live post of a club and returns how many
// rows changed.
func (t *Tx) DeleteClubPosts(ctx context.Context, clubID string) (int64, error) {
	res, err := t.exec(ctx, "deleting club posts",
		`UPDATE posts SET deleted = 1, updated_at = ? WHERE club_id = ? AND deleted = 0`,
		formatTime(time.Now().UTC()), clubID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting club posts: checking rows affected: %w", err)
	}
	return n, nil
}

// ListPosts returns live posts matching f, newest first.
func (t *Tx) ListPosts(ctx context.Context, f PostFilter, limit, offset int) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE club_id = ? AND deleted = 0 AND (? = '' OR author_id = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	rows, err := t.query(ctx, "querying posts", query, f.ClubID, f.AuthorID, f.AuthorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating posts", err)
	}
	return posts, nil
}

// CountPosts returns the number of live posts matching f.
func (t *Tx) CountPosts(ctx context.Context, f PostFilter) (int, error) {
	return t.count(ctx, "counting posts",
		`SELECT COUNT(*) FROM posts WHERE club_id = ? AND deleted = 0 AND (? = '' OR author_id = ?)`,
		f.ClubID, f.AuthorID, f.AuthorID,
	)
}

func scanPost(s scanner) (*Post, error) {
	var p Post
	var images, createdAt, updatedAt string
	var deleted int
	if err := s.Scan(
		&p.ID,
		&p.ClubID,
		&p.AuthorID,
		&p.Body,
		&images,
		&p.LikeCount,
		&deleted,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	p.Deleted = deleted != 0

	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return nil, fmt.Errorf("unmarshaling images: %w", err)
	}
	if p.Images == nil {
		p.Images = []string{}
	}

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}
