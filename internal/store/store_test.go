// ABOUTME: Shared fixtures for store tests
// ABOUTME: Opens a real SQLite database per test and seeds clubs, members and posts

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// seedClub creates an active club with an owner membership.
func seedClub(t *testing.T, s *SQLiteStore, ownerID string) *Club {
	t.Helper()
	ctx := context.Background()

	club := &Club{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Name:        gofakeit.Company() + " " + gofakeit.LetterN(6),
		Description: gofakeit.Sentence(8),
		MemberCount: 1,
	}
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.CreateClub(ctx, club); err != nil {
			return err
		}
		return tx.ActivateMembership(ctx, &Membership{
			ClubID:      club.ID,
			PrincipalID: ownerID,
			Role:        RoleOwner,
		})
	})
	require.NoError(t, err)
	return club
}

// seedMember adds an active membership with the given role.
func seedMember(t *testing.T, s *SQLiteStore, clubID, principalID string, role Role) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.ActivateMembership(ctx, &Membership{ClubID: clubID, PrincipalID: principalID, Role: role}); err != nil {
			return err
		}
		return tx.AdjustMemberCount(ctx, clubID, 1)
	})
	require.NoError(t, err)
}

// seedPost creates a live post.
func seedPost(t *testing.T, s *SQLiteStore, clubID, authorID string) *Post {
	t.Helper()
	ctx := context.Background()
	post := &Post{
		ID:       uuid.New().String(),
		ClubID:   clubID,
		AuthorID: authorID,
		Body:     gofakeit.Sentence(12),
	}
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		return tx.CreatePost(ctx, post)
	}))
	return post
}

func generateTestID(prefix string, i int) string {
	return prefix + "-" + string(rune('a'+i))
}
