// ABOUTME: Like toggle and request key bookkeeping on Tx
// ABOUTME: A conditional delete-else-insert against the (post_id, principal_id) key

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ToggleLike flips whether principalID likes postID and adjusts the post's
// like_count in the same transaction. The delete runs first, so a second
// toggle can never insert a duplicate row; the primary key rejects any
// insert that slips past it with ErrConstraint.
func (t *Tx) ToggleLike(ctx context.Context, postID, principalID string) (LikeResult, error) {
	res, err := t.exec(ctx, "deleting like",
		`DELETE FROM post_likes WHERE post_id = ? AND principal_id = ?`,
		postID, principalID,
	)
	if err != nil {
		return LikeResult{}, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return LikeResult{}, fmt.Errorf("deleting like: checking rows affected: %w", err)
	}

	delta := -1
	liked := false
	if removed == 0 {
		if _, err := t.exec(ctx, "inserting like",
			`INSERT INTO post_likes (post_id, principal_id, created_at) VALUES (?, ?, ?)`,
			postID, principalID, formatTime(time.Now().UTC()),
		); err != nil {
			return LikeResult{}, err
		}
		delta = 1
		liked = true
	}

	var count int
	err = t.queryRow(ctx,
		`UPDATE posts SET like_count = like_count + ? WHERE id = ? RETURNING like_count`,
		delta, postID,
	).Scan(&count)
	if err != nil {
		return LikeResult{}, classify("updating like count", err)
	}

	t.logger.Debug("toggled like", "post", postID, "principal", principalID, "liked", liked)
	return LikeResult{Liked: liked, LikeCount: count}, nil
}

// HasLiked reports whether principalID currently likes postID.
func (t *Tx) HasLiked(ctx context.Context, postID, principalID string) (bool, error) {
	n, err := t.count(ctx, "checking like",
		`SELECT COUNT(*) FROM post_likes WHERE post_id = ? AND principal_id = ?`,
		postID, principalID,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountLikes counts like rows for a post.
func (t *Tx) CountLikes(ctx context.Context, postID string) (int, error) {
	return t.count(ctx, "counting likes",
		`SELECT COUNT(*) FROM post_likes WHERE post_id = ?`, postID)
}

// ClaimLikeRequest marks key as applied for principalID. It returns false and
// the post the earlier claim targeted when the key was already claimed. The
// claim is rolled back with the transaction, so a failed toggle can be
// retried with the same key.
func (t *Tx) ClaimLikeRequest(ctx context.Context, principalID, key, postID string) (bool, string, error) {
	res, err := t.exec(ctx, "claiming like request",
		`INSERT INTO like_requests (principal_id, request_key, post_id, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (principal_id, request_key) DO NOTHING`,
		principalID, key, postID, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return false, "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, "", fmt.Errorf("claiming like request: checking rows affected: %w", err)
	}
	if n == 1 {
		return true, postID, nil
	}

	var prior string
	err = t.queryRow(ctx,
		`SELECT post_id FROM like_requests WHERE principal_id = ? AND request_key = ?`,
		principalID, key,
	).Scan(&prior)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", ErrNotFound
	}
	if err != nil {
		return false, "", classify("querying like request", err)
	}
	return false, prior, nil
}

// PruneLikeRequests forgets request keys claimed before cutoff.
func (t *Tx) PruneLikeRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.exec(ctx, "pruning like requests",
		`DELETE FROM like_requests WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning like requests: checking rows affected: %w", err)
	}
	return n, nil
}
