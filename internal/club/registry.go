// ABOUTME: Club Registry: club lifecycle, listings and the disband cascade
// ABOUTME: Disband hooks let membership and feed retire their rows in the same transaction

package club

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/fanclub-gateway/internal/apperr"
	"github.com/2389/fanclub-gateway/internal/listcache"
	"github.com/2389/fanclub-gateway/internal/pagination"
	"github.com/2389/fanclub-gateway/internal/store"
	"github.com/2389/fanclub-gateway/internal/telemetry"
)

// DisbandHook retires rows owned by another component when a club is
// disbanded. It runs inside the disband transaction and must only touch its
// own rows.
type DisbandHook interface {
	OnDisband(ctx context.Context, tx *store.Tx, clubID string) error
}

// Members is the part of the Membership Manager the registry depends on.
type Members interface {
	RoleIn(ctx context.Context, tx *store.Tx, clubID, principalID string) (store.Role, error)
	EnrollOwner(ctx context.Context, tx *store.Tx, clubID, ownerID string) error
}

// Limits bounds club fields.
type Limits struct {
	NameMax        int // runes
	DescriptionMax int // runes
	AvatarMax      int // bytes
}

// DefaultLimits mirrors the column sizes of the original schema.
var DefaultLimits = Limits{NameMax: 100, DescriptionMax: 2000, AvatarMax: 255}

// ListCache caches club list pages per viewer.
type ListCache = listcache.Cache[pagination.Page[ClubView]]

// Registry owns club lifecycle.
type Registry struct {
	store   store.Store
	members Members
	hooks   []DisbandHook
	cache   *ListCache
	limits  Limits
	pages   pagination.Config
	inst    telemetry.Instrument
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records operation outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) { r.inst.Metrics = m }
}

// WithPageConfig overrides the default page sizes.
func WithPageConfig(cfg pagination.Config) Option {
	return func(r *Registry) { r.pages = cfg }
}

// WithLimits overrides the field limits.
func WithLimits(l Limits) Option {
	return func(r *Registry) { r.limits = l }
}

// WithListCache caches club list pages in c. The registry purges c after
// every club mutation.
func WithListCache(c *ListCache) Option {
	return func(r *Registry) { r.cache = c }
}

// WithDisbandHooks registers hooks run by Delete.
func WithDisbandHooks(hooks ...DisbandHook) Option {
	return func(r *Registry) { r.hooks = append(r.hooks, hooks...) }
}

// NewRegistry creates a Registry backed by s.
func NewRegistry(s store.Store, members Members, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:   s,
		members: members,
		limits:  DefaultLimits,
		pages:   pagination.DefaultConfig,
		inst:    telemetry.NewInstrument("club", logger, nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateInput holds the fields of a new club.
type CreateInput struct {
	Name        string
	Description string
	Avatar      string
}

// Patch holds optional club updates; nil fields are left unchanged.
type Patch struct {
	Name        *string
	Description *string
	Avatar      *string
}

// Create registers a new club and enrolls ownerID as its owner.
func (r *Registry) Create(ctx context.Context, ownerID string, in CreateInput) (*store.Club, error) {
	club := &store.Club{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Avatar:      strings.TrimSpace(in.Avatar),
		MemberCount: 1,
	}
	if err := r.validate(club); err != nil {
		return nil, err
	}

	out, err := telemetry.Run(ctx, r.inst, "Create", club.ID, func(ctx context.Context) (*store.Club, error) {
		err := r.store.WithTx(ctx, func(tx *store.Tx) error {
			taken, err := tx.OwnerHasClubNamed(ctx, ownerID, club.Name, "")
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflict("you already own a club named %q", club.Name)
			}

			if err := tx.CreateClub(ctx, club); err != nil {
				return nameConflict(err, club.Name)
			}
			if err := r.members.EnrollOwner(ctx, tx, club.ID, ownerID); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           club.ID,
				ActorPrincipalID: ownerID,
				Action:           store.AuditCreateClub,
				TargetType:       store.TargetClub,
				TargetID:         club.ID,
				Detail:           map[string]any{"name": club.Name},
			})
		})
		return club, err
	})
	if err != nil {
		return nil, err
	}
	r.purge()
	return out, nil
}

// Update applies patch to an active club. Owners and admins may update.
func (r *Registry) Update(ctx context.Context, clubID, requesterID string, patch Patch) (*store.Club, error) {
	if clubID == "" {
		return nil, apperr.Validation("id is required")
	}

	out, err := telemetry.Run(ctx, r.inst, "Update", clubID, func(ctx context.Context) (*store.Club, error) {
		var club *store.Club
		err := r.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			club, err = activeClub(ctx, tx, clubID)
			if err != nil {
				return err
			}

			role, err := r.members.RoleIn(ctx, tx, clubID, requesterID)
			if err != nil {
				return err
			}
			if !role.CanModerate() {
				return apperr.Authorization("only the owner or an admin can update the club")
			}

			changed := map[string]any{}
			if patch.Name != nil {
				club.Name = strings.TrimSpace(*patch.Name)
				changed["name"] = club.Name
			}
			if patch.Description != nil {
				club.Description = *patch.Description
				changed["description"] = true
			}
			if patch.Avatar != nil {
				club.Avatar = strings.TrimSpace(*patch.Avatar)
				changed["avatar"] = true
			}
			if err := r.validate(club); err != nil {
				return err
			}

			if patch.Name != nil {
				taken, err := tx.OwnerHasClubNamed(ctx, club.OwnerID, club.Name, club.ID)
				if err != nil {
					return err
				}
				if taken {
					return apperr.Conflict("the owner already has a club named %q", club.Name)
				}
			}

			if err := tx.UpdateClub(ctx, club); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("club not found")
				}
				return nameConflict(err, club.Name)
			}
			return tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           clubID,
				ActorPrincipalID: requesterID,
				Action:           store.AuditUpdateClub,
				TargetType:       store.TargetClub,
				TargetID:         clubID,
				Detail:           changed,
			})
		})
		return club, err
	})
	if err != nil {
		return nil, err
	}
	r.purge()
	return out, nil
}

// Delete disbands a club. Only the owner may disband. Memberships and posts
// are retired by the disband hooks in the same transaction.
func (r *Registry) Delete(ctx context.Context, clubID, requesterID string) error {
	if clubID == "" {
		return apperr.Validation("id is required")
	}

	_, err := telemetry.Run(ctx, r.inst, "Delete", clubID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.WithTx(ctx, func(tx *store.Tx) error {
			if _, err := activeClub(ctx, tx, clubID); err != nil {
				return err
			}

			role, err := r.members.RoleIn(ctx, tx, clubID, requesterID)
			if err != nil {
				return err
			}
			if role != store.RoleOwner {
				return apperr.Authorization("only the owner can disband the club")
			}

			if err := tx.DisbandClub(ctx, clubID); err != nil {
				return err
			}
			for _, h := range r.hooks {
				if err := h.OnDisband(ctx, tx, clubID); err != nil {
					return fmt.Errorf("disband hook: %w", err)
				}
			}
			return tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           clubID,
				ActorPrincipalID: requesterID,
				Action:           store.AuditDisbandClub,
				TargetType:       store.TargetClub,
				TargetID:         clubID,
			})
		})
	})
	if err != nil {
		return err
	}
	r.purge()
	return nil
}

// Get returns a club in any status.
func (r *Registry) Get(ctx context.Context, clubID string) (*store.Club, error) {
	return telemetry.Run(ctx, r.inst, "Get", clubID, func(ctx context.Context) (*store.Club, error) {
		var club *store.Club
		err := r.store.View(ctx, func(tx *store.Tx) error {
			var err error
			club, err = getClub(ctx, tx, clubID)
			return err
		})
		return club, err
	})
}

// ClubView is a club as seen by one principal.
type ClubView struct {
	Club     store.Club
	Role     store.Role
	IsMember bool
	IsOwner  bool
}

func newClubView(c store.Club, role store.Role) ClubView {
	return ClubView{
		Club:     c,
		Role:     role,
		IsMember: role.IsMember(),
		IsOwner:  role == store.RoleOwner,
	}
}

// viewsOf pairs each club with viewerID's role using one membership lookup.
func viewsOf(ctx context.Context, tx *store.Tx, viewerID string, clubs []store.Club) ([]ClubView, error) {
	ids := make([]string, len(clubs))
	for i := range clubs {
		ids[i] = clubs[i].ID
	}
	roles, err := tx.ActiveRoles(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}
	views := make([]ClubView, 0, len(clubs))
	for _, c := range clubs {
		views = append(views, newClubView(c, roles[c.ID]))
	}
	return views, nil
}

// View returns a club together with viewerID's relationship to it.
func (r *Registry) View(ctx context.Context, clubID, viewerID string) (*ClubView, error) {
	return telemetry.Run(ctx, r.inst, "View", clubID, func(ctx context.Context) (*ClubView, error) {
		var view *ClubView
		err := r.store.View(ctx, func(tx *store.Tx) error {
			club, err := getClub(ctx, tx, clubID)
			if err != nil {
				return err
			}
			role, err := r.members.RoleIn(ctx, tx, clubID, viewerID)
			if err != nil {
				return err
			}
			v := newClubView(*club, role)
			view = &v
			return nil
		})
		return view, err
	})
}

// Status filter values accepted by ParseStatus.
const (
	StatusAll = "all"
)

// ParseStatus converts a list status parameter into a store filter value.
// Empty means active; "all" means any status.
func ParseStatus(s string) (store.ClubStatus, error) {
	switch s {
	case "", string(store.ClubActive):
		return store.ClubActive, nil
	case string(store.ClubDisbanded):
		return store.ClubDisbanded, nil
	case StatusAll:
		return "", nil
	default:
		return "", apperr.Validation("status must be active, disbanded or all")
	}
}

// List returns a lazy sequence of clubs matching f from req onwards, newest
// first.
func (r *Registry) List(ctx context.Context, f store.ClubFilter, req pagination.Request) iter.Seq2[store.Club, error] {
	return pagination.Seq(ctx, req, func(ctx context.Context, limit, offset int) ([]store.Club, error) {
		var out []store.Club
		err := r.store.View(ctx, func(tx *store.Tx) error {
			var err error
			out, err = tx.ListClubs(ctx, f, limit, offset)
			return err
		})
		return out, err
	})
}

// ListPage returns one page of clubs matching f with the total count, each
// paired with viewerID's role. Pages are served from the list cache when one
// is configured.
func (r *Registry) ListPage(ctx context.Context, viewerID string, f store.ClubFilter, page, pageSize int) (pagination.Page[ClubView], error) {
	req := r.pages.Normalize(page, pageSize)
	key := fmt.Sprintf("%s|%s|%s|%d|%d", viewerID, f.Status, strings.ToLower(strings.TrimSpace(f.Keyword)), req.Page, req.PageSize)

	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached, nil
		}
	}

	var gen uint64
	if r.cache != nil {
		gen = r.cache.Generation()
	}

	out, err := telemetry.Run(ctx, r.inst, "List", key, func(ctx context.Context) (pagination.Page[ClubView], error) {
		out := pagination.Page[ClubView]{Page: req.Page, PageSize: req.PageSize}
		err := r.store.View(ctx, func(tx *store.Tx) error {
			var err error
			if out.Total, err = tx.CountClubs(ctx, f); err != nil {
				return err
			}
			clubs, err := tx.ListClubs(ctx, f, req.PageSize, req.Offset())
			if err != nil {
				return err
			}
			out.Items, err = viewsOf(ctx, tx, viewerID, clubs)
			return err
		})
		return out, err
	})
	if err != nil {
		return out, err
	}

	if r.cache != nil {
		r.cache.Set(key, out, gen)
	}
	return out, nil
}

// MyClubs returns a lazy sequence of active clubs principalID belongs to,
// most recently joined first.
func (r *Registry) MyClubs(ctx context.Context, principalID string, req pagination.Request) iter.Seq2[store.Club, error] {
	return pagination.Seq(ctx, req, func(ctx context.Context, limit, offset int) ([]store.Club, error) {
		var out []store.Club
		err := r.store.View(ctx, func(tx *store.Tx) error {
			var err error
			out, err = tx.ListClubsForMember(ctx, principalID, limit, offset)
			return err
		})
		return out, err
	})
}

// MyClubsPage returns one page of principalID's clubs with the total count.
func (r *Registry) MyClubsPage(ctx context.Context, principalID string, page, pageSize int) (pagination.Page[ClubView], error) {
	req := r.pages.Normalize(page, pageSize)
	return telemetry.Run(ctx, r.inst, "MyClubs", principalID, func(ctx context.Context) (pagination.Page[ClubView], error) {
		out := pagination.Page[ClubView]{Page: req.Page, PageSize: req.PageSize}
		err := r.store.View(ctx, func(tx *store.Tx) error {
			var err error
			if out.Total, err = tx.CountClubsForMember(ctx, principalID); err != nil {
				return err
			}
			clubs, err := tx.ListClubsForMember(ctx, principalID, req.PageSize, req.Offset())
			if err != nil {
				return err
			}
			out.Items, err = viewsOf(ctx, tx, principalID, clubs)
			return err
		})
		return out, err
	})
}

// AuditFilter narrows a club's audit log.
type AuditFilter struct {
	ActorID    string
	Action     store.AuditAction
	TargetType string
	TargetID   string
}

// AuditLog returns one page of an active club's audit log, newest first.
// Only the owner and admins may read it.
func (r *Registry) AuditLog(ctx context.Context, clubID, requesterID string, f AuditFilter, page, pageSize int) (pagination.Page[store.AuditEntry], error) {
	if clubID == "" {
		return pagination.Page[store.AuditEntry]{}, apperr.Validation("clubId is required")
	}
	switch f.TargetType {
	case "", store.TargetClub, store.TargetMembership, store.TargetPost:
	default:
		return pagination.Page[store.AuditEntry]{}, apperr.Validation("targetType must be club, membership or post")
	}

	req := r.pages.Normalize(page, pageSize)
	return telemetry.Run(ctx, r.inst, "AuditLog", clubID, func(ctx context.Context) (pagination.Page[store.AuditEntry], error) {
		out := pagination.Page[store.AuditEntry]{Page: req.Page, PageSize: req.PageSize}
		err := r.store.View(ctx, func(tx *store.Tx) error {
			if _, err := activeClub(ctx, tx, clubID); err != nil {
				return err
			}
			role, err := r.members.RoleIn(ctx, tx, clubID, requesterID)
			if err != nil {
				return err
			}
			if !role.CanModerate() {
				return apperr.Authorization("only the owner or an admin can read the audit log")
			}

			filter := store.AuditFilter{
				ClubID:           clubID,
				ActorPrincipalID: f.ActorID,
				Action:           f.Action,
				TargetType:       f.TargetType,
				TargetID:         f.TargetID,
				Limit:            req.PageSize,
				Offset:           req.Offset(),
			}
			if out.Total, err = tx.CountAudit(ctx, filter); err != nil {
				return err
			}
			out.Items, err = tx.ListAudit(ctx, filter)
			return err
		})
		return out, err
	})
}

func (r *Registry) validate(c *store.Club) error {
	if c.Name == "" {
		return apperr.Validation("name is required")
	}
	if n := utf8.RuneCountInString(c.Name); n > r.limits.NameMax {
		return apperr.Validation("name must be at most %d characters", r.limits.NameMax)
	}
	if n := utf8.RuneCountInString(c.Description); n > r.limits.DescriptionMax {
		return apperr.Validation("description must be at most %d characters", r.limits.DescriptionMax)
	}
	if len(c.Avatar) > r.limits.AvatarMax {
		return apperr.Validation("avatar must be at most %d bytes", r.limits.AvatarMax)
	}
	return nil
}

func (r *Registry) purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

func getClub(ctx context.Context, tx *store.Tx, clubID string) (*store.Club, error) {
	club, err := tx.GetClub(ctx, clubID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("club not found")
	}
	return club, err
}

// activeClub loads a club and rejects missing or disbanded ones.
func activeClub(ctx context.Context, tx *store.Tx, clubID string) (*store.Club, error) {
	club, err := getClub(ctx, tx, clubID)
	if err != nil {
		return nil, err
	}
	if club.Status != store.ClubActive {
		return nil, apperr.NotFound("club not found")
	}
	return club, nil
}

func nameConflict(err error, name string) error {
	if errors.Is(err, store.ErrConstraint) {
		return apperr.Wrap(apperr.CodeConflict, fmt.Sprintf("a club named %q already exists for this owner", name), err)
	}
	return err
}
