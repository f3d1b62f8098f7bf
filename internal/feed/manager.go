// ABOUTME: Feed Manager: posts and likes inside clubs
// ABOUTME: Authors and club moderators may edit posts; likes toggle atomically

package feed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/2389/fanclub-gateway/internal/apperr"
	"github.com/2389/fanclub-gateway/internal/pagination"
	"github.com/2389/fanclub-gateway/internal/store"
	"github.com/2389/fanclub-gateway/internal/telemetry"
)

// Members is the part of the Membership Manager the feed depends on.
type Members interface {
	RoleIn(ctx context.Context, tx *store.Tx, clubID, principalID string) (store.Role, error)
}

// Limits bounds post fields.
type Limits struct {
	BodyMax   int // runes
	ImagesMax int
	ImageMax  int // bytes per image URL
}

// DefaultLimits mirrors the original content column.
var DefaultLimits = Limits{BodyMax: 1000, ImagesMax: 9, ImageMax: 255}

// DefaultLikeKeyTTL is how long a like request key is remembered.
const DefaultLikeKeyTTL = 24 * time.Hour

// MaxLikeKeyLength bounds client-supplied like request keys.
const MaxLikeKeyLength = 128

// Manager owns post and like rows.
type Manager struct {
	store    store.Store
	members  Members
	renderer goldmark.Markdown
	limits   Limits
	keyTTL   time.Duration
	pages    pagination.Config
	inst     telemetry.Instrument
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records operation outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(mgr *Manager) { mgr.inst.Metrics = m }
}

// WithPageConfig overrides the default page sizes.
func WithPageConfig(cfg pagination.Config) Option {
	return func(mgr *Manager) { mgr.pages = cfg }
}

// WithLimits overrides the field limits.
func WithLimits(l Limits) Option {
	return func(mgr *Manager) { mgr.limits = l }
}

// WithLikeKeyTTL sets how long like request keys are remembered.
func WithLikeKeyTTL(d time.Duration) Option {
	return func(mgr *Manager) { mgr.keyTTL = d }
}

// NewManager creates a Manager backed by s.
func NewManager(s store.Store, members Members, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		members:  members,
		renderer: newRenderer(),
		limits:   DefaultLimits,
		keyTTL:   DefaultLikeKeyTTL,
		pages:    pagination.DefaultConfig,
		inst:     telemetry.NewInstrument("feed", logger, nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PostInput holds the fields of a new post.
type PostInput struct {
	Body   string
	Images []string
}

// PostPatch holds optional post updates; nil fields are left unchanged.
type PostPatch struct {
	Body   *string
	Images *[]string
}

// Create publishes a post. The author must be an active member of an active
// club.
func (m *Manager) Create(ctx context.Context, clubID, authorID string, in PostInput) (*store.Post, error) {
	if clubID == "" {
		return nil, apperr.Validation("clubId is required")
	}

	post := &store.Post{
		ID:       uuid.New().String(),
		ClubID:   clubID,
		AuthorID: authorID,
		Body:     in.Body,
		Images:   cleanImages(in.Images),
	}

	return telemetry.Run(ctx, m.inst, "Create", clubID, func(ctx context.Context) (*store.Post, error) {
		err := m.store.WithTx(ctx, func(tx *store.Tx) error {
			club, err := tx.GetClub(ctx, clubID)
			if errors.Is(err, store.ErrNotFound) || (err == nil && club.Status != store.ClubActive) {
				return apperr.NotFound("club not found")
			}
			if err != nil {
				return err
			}

			role, err := m.members.RoleIn(ctx, tx, clubID, authorID)
			if err != nil {
				return err
			}
			if !role.IsMember() {
				return apperr.Authorization("only club members can post")
			}
			if err := m.validate(post); err != nil {
				return err
			}

			if err := tx.CreatePost(ctx, post); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           post.ClubID,
				ActorPrincipalID: authorID,
				Action:           store.AuditCreatePost,
				TargetType:       store.TargetPost,
				TargetID:         post.ID,
				Detail:           map[string]any{"club_id": clubID},
			})
		})
		if err != nil {
			return nil, err
		}
		return post, nil
	})
}

// Update edits a live post. The author and the club's owner or admins may
// edit.
func (m *Manager) Update(ctx context.Context, postID, requesterID string, patch PostPatch) (*store.Post, error) {
	if postID == "" {
		return nil, apperr.Validation("id is required")
	}

	return telemetry.Run(ctx, m.inst, "Update", postID, func(ctx context.Context) (*store.Post, error) {
		var post *store.Post
		err := m.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			post, err = m.editablePost(ctx, tx, postID, requesterID)
			if err != nil {
				return err
			}

			if patch.Body != nil {
				post.Body = *patch.Body
			}
			if patch.Images != nil {
				post.Images = cleanImages(*patch.Images)
			}
			if err := m.validate(post); err != nil {
				return err
			}

			if err := tx.UpdatePost(ctx, post); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("post not found")
				}
				return err
			}
			return tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           post.ClubID,
				ActorPrincipalID: requesterID,
				Action:           store.AuditUpdatePost,
				TargetType:       store.TargetPost,
				TargetID:         postID,
				Detail:           map[string]any{"club_id": post.ClubID, "author": post.AuthorID},
			})
		})
		if err != nil {
			return nil, err
		}
		return post, nil
	})
}

// Delete soft-deletes a post. The author and the club's owner or admins may
// delete.
func (m *Manager) Delete(ctx context.Context, postID, requesterID string) error {
	if postID == "" {
		return apperr.Validation("id is required")
	}

	_, err := telemetry.Run(ctx, m.inst, "Delete", postID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.WithTx(ctx, func(tx *store.Tx) error {
			post, err := m.editablePost(ctx, tx, postID, requesterID)
			if err != nil {
				return err
			}
			if err := tx.DeletePost(ctx, postID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("post not found")
				}
				return err
			}
			return tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           post.ClubID,
				ActorPrincipalID: requesterID,
				Action:           store.AuditDeletePost,
				TargetType:       store.TargetPost,
				TargetID:         postID,
				Detail:           map[string]any{"club_id": post.ClubID, "author": post.AuthorID},
			})
		})
	})
	return err
}

// Get returns a live post.
func (m *Manager) Get(ctx context.Context, postID string) (*store.Post, error) {
	return telemetry.Run(ctx, m.inst, "Get", postID, func(ctx context.Context) (*store.Post, error) {
		var post *store.Post
		err := m.store.View(ctx, func(tx *store.Tx) error {
			var err error
			post, err = livePost(ctx, tx, postID)
			return err
		})
		return post, err
	})
}

// List returns a lazy sequence of live posts matching f from req onwards,
// newest first.
func (m *Manager) List(ctx context.Context, f store.PostFilter, req pagination.Request) iter.Seq2[store.Post, error] {
	return pagination.Seq(ctx, req, func(ctx context.Context, limit, offset int) ([]store.Post, error) {
		var out []store.Post
		err := m.store.View(ctx, func(tx *store.Tx) error {
			var err error
			out, err = tx.ListPosts(ctx, f, limit, offset)
			return err
		})
		return out, err
	})
}

// ListPage returns one page of live posts with the total count. The club
// must exist.
func (m *Manager) ListPage(ctx context.Context, f store.PostFilter, page, pageSize int) (pagination.Page[store.Post], error) {
	if f.ClubID == "" {
		return pagination.Page[store.Post]{}, apperr.Validation("clubId is required")
	}
	req := m.pages.Normalize(page, pageSize)

	return telemetry.Run(ctx, m.inst, "List", f.ClubID, func(ctx context.Context) (pagination.Page[store.Post], error) {
		out := pagination.Page[store.Post]{Page: req.Page, PageSize: req.PageSize}
		err := m.store.View(ctx, func(tx *store.Tx) error {
			if _, err := tx.GetClub(ctx, f.ClubID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("club not found")
				}
				return err
			}

			var err error
			if out.Total, err = tx.CountPosts(ctx, f); err != nil {
				return err
			}
			out.Items, err = tx.ListPosts(ctx, f, req.PageSize, req.Offset())
			return err
		})
		return out, err
	})
}

// Like toggles principalID's like on a live post. The principal must be an
// active member of the post's club.
//
// A non-empty requestKey makes the call safe to repeat: the first call with a
// key toggles, and any later call with the same key from the same principal
// reports the current state without toggling again. Calls with different
// keys, or with no key, each toggle.
func (m *Manager) Like(ctx context.Context, postID, principalID, requestKey string) (store.LikeResult, error) {
	if postID == "" {
		return store.LikeResult{}, apperr.Validation("id is required")
	}
	if len(requestKey) > MaxLikeKeyLength {
		return store.LikeResult{}, apperr.Validation("request key must be at most %d bytes", MaxLikeKeyLength)
	}

	return telemetry.Run(ctx, m.inst, "Like", postID, func(ctx context.Context) (store.LikeResult, error) {
		var res store.LikeResult
		err := m.store.WithTx(ctx, func(tx *store.Tx) error {
			post, err := livePost(ctx, tx, postID)
			if err != nil {
				return err
			}
			role, err := m.members.RoleIn(ctx, tx, post.ClubID, principalID)
			if err != nil {
				return err
			}
			if !role.IsMember() {
				return apperr.Authorization("only club members can like posts")
			}

			if requestKey != "" {
				prior, err := m.claimLikeRequest(ctx, tx, post, principalID, requestKey)
				if err != nil {
					return err
				}
				if prior != nil {
					res = *prior
					return nil
				}
			}

			res, err = tx.ToggleLike(ctx, postID, principalID)
			if errors.Is(err, store.ErrConstraint) {
				return apperr.Wrap(apperr.CodeConflict, "like already recorded", err)
			}
			return err
		})
		return res, err
	})
}

// claimLikeRequest records requestKey for principalID. It returns the current
// like state when the key was already applied to post.
func (m *Manager) claimLikeRequest(ctx context.Context, tx *store.Tx, post *store.Post, principalID, requestKey string) (*store.LikeResult, error) {
	if _, err := tx.PruneLikeRequests(ctx, time.Now().UTC().Add(-m.keyTTL)); err != nil {
		return nil, err
	}

	claimed, priorPostID, err := tx.ClaimLikeRequest(ctx, principalID, requestKey, post.ID)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, nil
	}
	if priorPostID != post.ID {
		return nil, apperr.Conflict("request key was already used for another post")
	}

	liked, err := tx.HasLiked(ctx, post.ID, principalID)
	if err != nil {
		return nil, err
	}
	m.inst.Logger.DebugContext(ctx, "like request replayed", "post", post.ID, "principal", principalID)
	return &store.LikeResult{Liked: liked, LikeCount: post.LikeCount, Replayed: true}, nil
}

// OnDisband soft-deletes every post of the club. It runs inside the disband
// transaction.
func (m *Manager) OnDisband(ctx context.Context, tx *store.Tx, clubID string) error {
	n, err := tx.DeleteClubPosts(ctx, clubID)
	if err != nil {
		return fmt.Errorf("deleting posts: %w", err)
	}
	m.inst.Logger.DebugContext(ctx, "posts deleted on disband", "club", clubID, "count", n)
	return nil
}

// editablePost loads a live post and checks requesterID may change it.
func (m *Manager) editablePost(ctx context.Context, tx *store.Tx, postID, requesterID string) (*store.Post, error) {
	post, err := livePost(ctx, tx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID == requesterID {
		return post, nil
	}

	role, err := m.members.RoleIn(ctx, tx, post.ClubID, requesterID)
	if err != nil {
		return nil, err
	}
	if !role.CanModerate() {
		return nil, apperr.Authorization("only the author or a club owner or admin can change this post")
	}
	return post, nil
}

func (m *Manager) validate(p *store.Post) error {
	if strings.TrimSpace(p.Body) == "" {
		return apperr.Validation("content is required")
	}
	if n := utf8.RuneCountInString(p.Body); n > m.limits.BodyMax {
		return apperr.Validation("content must be at most %d characters", m.limits.BodyMax)
	}
	if len(p.Images) > m.limits.ImagesMax {
		return apperr.Validation("at most %d images per post", m.limits.ImagesMax)
	}
	for _, img := range p.Images {
		if len(img) > m.limits.ImageMax {
			return apperr.Validation("image URLs must be at most %d bytes", m.limits.ImageMax)
		}
	}
	return nil
}

func livePost(ctx context.Context, tx *store.Tx, postID string) (*store.Post, error) {
	post, err := tx.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("post not found")
	}
	if err != nil {
		return nil, err
	}
	if post.Deleted {
		return nil, apperr.NotFound("post not found")
	}
	return post, nil
}

// cleanImages trims image URLs and drops empty entries.
func cleanImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if img = strings.TrimSpace(img); img != "" {
			out = append(out, img)
		}
	}
	return out
}
