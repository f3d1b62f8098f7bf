// ABOUTME: Tests for post and like store operations
// ABOUTME: Covers soft delete, feed ordering, image round-trip and the like toggle

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetPost(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")

	post := &Post{
		ID:       "post-1",
		ClubID:   club.ID,
		AuthorID: "owner-1",
		Body:     "hello **fans**",
		Images:   []string{"https://example.com/1.png", "https://example.com/2.png"},
	}
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		return tx.CreatePost(ctx, post)
	}))

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		got, err := tx.GetPost(ctx, "post-1")
		require.NoError(t, err)
		assert.Equal(t, post.Body, got.Body)
		assert.Equal(t, post.Images, got.Images)
		assert.Equal(t, club.ID, got.ClubID)
		assert.Zero(t, got.LikeCount)
		assert.False(t, got.Deleted)
		return nil
	}))
}

func TestCreatePost_UnknownClubViolatesForeignKey(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx *Tx) error {
		return tx.CreatePost(ctx, &Post{ID: "p", ClubID: "nope", AuthorID: "a", Body: "x"})
	})
	assert.ErrorIs(t, err, ErrConstraint)
}

func TestUpdateAndDeletePost(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	post := seedPost(t, store, club.ID, "owner-1")

	post.Body = "edited"
	post.Images = []string{"https://example.com/3.png"}
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		return tx.UpdatePost(ctx, post)
	}))

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		return tx.DeletePost(ctx, post.ID)
	}))

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		got, err := tx.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted)
		assert.Equal(t, "edited", got.Body)
		return nil
	}))

	err := store.WithTx(ctx, func(tx *Tx) error {
		return tx.UpdatePost(ctx, post)
	})
	assert.ErrorIs(t, err, ErrNotFound, "deleted posts are immutable")

	err = store.WithTx(ctx, func(tx *Tx) error {
		return tx.DeletePost(ctx, post.ID)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPosts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		for i := 0; i < 5; i++ {
			author := "owner-1"
			if i%2 == 1 {
				author = "m1"
			}
			p := &Post{
				ID:        generateTestID("post", i),
				ClubID:    club.ID,
				AuthorID:  author,
				Body:      "body",
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := tx.CreatePost(ctx, p); err != nil {
				return err
			}
		}
		return tx.DeletePost(ctx, "post-e")
	}))

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		posts, err := tx.ListPosts(ctx, PostFilter{ClubID: club.ID}, 10, 0)
		require.NoError(t, err)
		require.Len(t, posts, 4)
		assert.Equal(t, "post-d", posts[0].ID, "newest live post first")

		byM1, err := tx.ListPosts(ctx, PostFilter{ClubID: club.ID, AuthorID: "m1"}, 10, 0)
		require.NoError(t, err)
		assert.Len(t, byM1, 2)

		n, err := tx.CountPosts(ctx, PostFilter{ClubID: club.ID})
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		return nil
	}))
}

func TestDeleteClubPosts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	other := seedClub(t, store, "owner-2")
	seedPost(t, store, club.ID, "owner-1")
	seedPost(t, store, club.ID, "owner-1")
	survivor := seedPost(t, store, other.ID, "owner-2")

	var n int64
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.DeleteClubPosts(ctx, club.ID)
		return err
	}))
	assert.Equal(t, int64(2), n)

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		got, err := tx.GetPost(ctx, survivor.ID)
		require.NoError(t, err)
		assert.False(t, got.Deleted)
		return nil
	}))
}

func TestToggleLike_Alternates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	post := seedPost(t, store, club.ID, "owner-1")

	toggle := func() LikeResult {
		var res LikeResult
		require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
			var err error
			res, err = tx.ToggleLike(ctx, post.ID, "u1")
			return err
		}))
		return res
	}

	assert.Equal(t, LikeResult{Liked: true, LikeCount: 1}, toggle())
	assert.Equal(t, LikeResult{Liked: false, LikeCount: 0}, toggle())
	assert.Equal(t, LikeResult{Liked: true, LikeCount: 1}, toggle())
}

func TestToggleLike_ConcurrentTogglesNeverDuplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	post := seedPost(t, store, club.ID, "owner-1")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.WithTx(ctx, func(tx *Tx) error {
				_, err := tx.ToggleLike(ctx, post.ID, "u1")
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// An even number of toggles lands back on "not liked".
	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		rows, err := tx.CountLikes(ctx, post.ID)
		require.NoError(t, err)
		assert.Zero(t, rows)

		got, err := tx.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Zero(t, got.LikeCount)
		return nil
	}))
}

func TestHasLiked(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	post := seedPost(t, store, club.ID, "owner-1")

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ToggleLike(ctx, post.ID, "u1")
		return err
	}))

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		liked, err := tx.HasLiked(ctx, post.ID, "u1")
		require.NoError(t, err)
		assert.True(t, liked)

		liked, err = tx.HasLiked(ctx, post.ID, "u2")
		require.NoError(t, err)
		assert.False(t, liked)
		return nil
	}))
}

func TestClaimLikeRequest(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	post := seedPost(t, store, club.ID, "owner-1")
	other := seedPost(t, store, club.ID, "owner-1")

	claim := func(principal, key, postID string) (bool, string) {
		t.Helper()
		var claimed bool
		var prior string
		require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
			var err error
			claimed, prior, err = tx.ClaimLikeRequest(ctx, principal, key, postID)
			return err
		}))
		return claimed, prior
	}

	claimed, prior := claim("u1", "k1", post.ID)
	assert.True(t, claimed)
	assert.Equal(t, post.ID, prior)

	claimed, prior = claim("u1", "k1", other.ID)
	assert.False(t, claimed)
	assert.Equal(t, post.ID, prior, "reports the post of the first claim")

	claimed, _ = claim("u2", "k1", post.ID)
	assert.True(t, claimed, "keys are scoped per principal")
}

func TestClaimLikeRequest_RolledBackWithTransaction(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	post := seedPost(t, store, club.ID, "owner-1")

	err := store.WithTx(ctx, func(tx *Tx) error {
		if _, _, err := tx.ClaimLikeRequest(ctx, "u1", "k1", post.ID); err != nil {
			return err
		}
		return errors.New("toggle failed")
	})
	require.Error(t, err)

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		claimed, _, err := tx.ClaimLikeRequest(ctx, "u1", "k1", post.ID)
		require.NoError(t, err)
		assert.True(t, claimed)
		return nil
	}))
}

func TestPruneLikeRequests(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	post := seedPost(t, store, club.ID, "owner-1")

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		for _, key := range []string{"a", "b"} {
			if _, _, err := tx.ClaimLikeRequest(ctx, "u1", key, post.ID); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		n, err := tx.PruneLikeRequests(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n, "recent keys are kept")

		n, err = tx.PruneLikeRequests(ctx, time.Now().Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		claimed, _, err := tx.ClaimLikeRequest(ctx, "u1", "a", post.ID)
		require.NoError(t, err)
		assert.True(t, claimed, "a pruned key can be claimed again")
		return nil
	}))
}
