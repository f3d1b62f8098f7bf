// ABOUTME: HTTP API handlers for clubs, memberships and posts
// ABOUTME: Translates camelCase JSON to manager calls and domain results back to JSON

package gateway

import (
	"net/http"
	"time"

	"github.com/2389/fanclub-gateway/internal/apperr"
	"github.com/2389/fanclub-gateway/internal/auth"
	"github.com/2389/fanclub-gateway/internal/club"
	"github.com/2389/fanclub-gateway/internal/feed"
	"github.com/2389/fanclub-gateway/internal/pagination"
	"github.com/2389/fanclub-gateway/internal/store"
)

// ClubResponse is the JSON form of a club.
type ClubResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Avatar      string    `json:"avatar"`
	MemberCount int       `json:"memberCount"`
	Level       int       `json:"level"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ClubViewResponse is a club as seen by the caller. It is the response of
// GET /fansClub/getFansClub and the item of the club listings.
type ClubViewResponse struct {
	Club     ClubResponse `json:"club"`
	IsMember bool         `json:"isMember"`
	IsOwner  bool         `json:"isOwner"`
	Role     store.Role   `json:"role"`
}

// MembershipResponse is the JSON form of a membership.
type MembershipResponse struct {
	ClubID    string     `json:"clubId"`
	UserID    string     `json:"userId"`
	Role      store.Role `json:"role"`
	Status    string     `json:"status"`
	JoinedAt  time.Time  `json:"joinedAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// PostResponse is the JSON form of a post. ContentHTML is the rendered body.
type PostResponse struct {
	ID          string    `json:"id"`
	ClubID      string    `json:"clubId"`
	UserID      string    `json:"userId"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"contentHtml"`
	Images      []string  `json:"images"`
	LikeCount   int       `json:"likeCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ListResponse is one page of a listing.
type ListResponse[T any] struct {
	List     []T `json:"list"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// LikeResponse is the JSON response for POST /fansClubPost/likePost.
// Replayed is set when the Idempotency-Key had already been applied.
type LikeResponse struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
	Replayed  bool `json:"replayed"`
}

// AuditEntryResponse is the JSON form of an audit log entry.
type AuditEntryResponse struct {
	ID         string         `json:"id"`
	ClubID     string         `json:"clubId"`
	UserID     string         `json:"userId"`
	Action     string         `json:"action"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	CreatedAt  time.Time      `json:"createdAt"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// idempotencyKeyHeader carries the client request key of a like toggle.
const idempotencyKeyHeader = "Idempotency-Key"

// MessageResponse acknowledges operations without a result body.
type MessageResponse struct {
	Message string `json:"message"`
}

type createClubRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
}

type updateClubRequest struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Avatar      *string `json:"avatar"`
}

type idRequest struct {
	ID string `json:"id"`
}

type clubIDRequest struct {
	ClubID string `json:"clubId"`
}

type updateMemberRoleRequest struct {
	ClubID string `json:"clubId"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type removeMemberRequest struct {
	ClubID string `json:"clubId"`
	UserID string `json:"userId"`
}

type createPostRequest struct {
	ClubID  string   `json:"clubId"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

type updatePostRequest struct {
	ID      string    `json:"id"`
	Content *string   `json:"content"`
	Images  *[]string `json:"images"`
}

func toClubResponse(c *store.Club) ClubResponse {
	return ClubResponse{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Name:        c.Name,
		Description: c.Description,
		Avatar:      c.Avatar,
		MemberCount: c.MemberCount,
		Level:       c.Level,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toClubViewResponse(v *club.ClubView) ClubViewResponse {
	return ClubViewResponse{
		Club:     toClubResponse(&v.Club),
		IsMember: v.IsMember,
		IsOwner:  v.IsOwner,
		Role:     v.Role,
	}
}

func toAuditEntryResponse(e *store.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:         e.ID,
		ClubID:     e.ClubID,
		UserID:     e.ActorPrincipalID,
		Action:     string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		CreatedAt:  e.Timestamp,
		Detail:     e.Detail,
	}
}

func toMembershipResponse(m *store.Membership) MembershipResponse {
	return MembershipResponse{
		ClubID:    m.ClubID,
		UserID:    m.PrincipalID,
		Role:      m.Role,
		Status:    string(m.Status),
		JoinedAt:  m.JoinedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (g *Gateway) toPostResponse(p *store.Post) (PostResponse, error) {
	html, err := g.feed.Render(p.Body)
	if err != nil {
		return PostResponse{}, err
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return PostResponse{
		ID:          p.ID,
		ClubID:      p.ClubID,
		UserID:      p.AuthorID,
		Content:     p.Body,
		ContentHTML: html,
		Images:      images,
		LikeCount:   p.LikeCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func toListResponse[T, R any](p pagination.Page[T], conv func(*T) R) ListResponse[R] {
	out := ListResponse[R]{
		List:     make([]R, 0, len(p.Items)),
		Total:    p.Total,
		Page:     p.Page,
		PageSize: p.PageSize,
	}
	for i := range p.Items {
		out.List = append(out.List, conv(&p.Items[i]))
	}
	return out
}

// handleCreateClub handles POST /fansClub/createFansClub.
func (g *Gateway) handleCreateClub(w http.ResponseWriter, r *http.Request) {
	var req createClubRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	c, err := g.clubs.Create(r.Context(), auth.PrincipalID(r.Context()), club.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClubResponse(c))
}

// handleUpdateClub handles PUT /fansClub/updateFansClub.
func (g *Gateway) handleUpdateClub(w http.ResponseWriter, r *http.Request) {
	var req updateClubRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := requireField("id", req.ID); err != nil {
		g.writeError(w, r, err)
		return
	}

	c, err := g.clubs.Update(r.Context(), req.ID, auth.PrincipalID(r.Context()), club.Patch{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClubResponse(c))
}

// handleDeleteClub handles DELETE /fansClub/deleteFansClub.
func (g *Gateway) handleDeleteClub(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := requireField("id", req.ID); err != nil {
		g.writeError(w, r, err)
		return
	}

	if err := g.clubs.Delete(r.Context(), req.ID, auth.PrincipalID(r.Context())); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "club disbanded"})
}

// handleGetClub handles GET /fansClub/getFansClub?id=.
func (g *Gateway) handleGetClub(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if err := requireField("id", id); err != nil {
		g.writeError(w, r, err)
		return
	}

	view, err := g.clubs.View(r.Context(), id, auth.PrincipalID(r.Context()))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClubViewResponse(view))
}

// handleListClubs handles GET /fansClub/getFansClubList.
func (g *Gateway) handleListClubs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize, err := pageParams(q)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	status, err := club.ParseStatus(q.Get("status"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	result, err := g.clubs.ListPage(r.Context(), auth.PrincipalID(r.Context()), store.ClubFilter{Keyword: q.Get("keyword"), Status: status}, page, pageSize)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(result, toClubViewResponse))
}

// handleMyClubs handles GET /fansClub/getMyClubs.
func (g *Gateway) handleMyClubs(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r.URL.Query())
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	result, err := g.clubs.MyClubsPage(r.Context(), auth.PrincipalID(r.Context()), page, pageSize)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(result, toClubViewResponse))
}

// handleClubAuditLog handles GET /fansClub/getClubAuditLog.
func (g *Gateway) handleClubAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clubID := q.Get("clubId")
	if err := requireField("clubId", clubID); err != nil {
		g.writeError(w, r, err)
		return
	}
	page, pageSize, err := pageParams(q)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	action, err := store.ParseAuditAction(q.Get("action"))
	if err != nil {
		g.writeError(w, r, apperr.Wrap(apperr.CodeValidation, "unknown action", err))
		return
	}

	result, err := g.clubs.AuditLog(r.Context(), clubID, auth.PrincipalID(r.Context()), club.AuditFilter{
		ActorID:    q.Get("userId"),
		Action:     action,
		TargetType: q.Get("targetType"),
		TargetID:   q.Get("targetId"),
	}, page, pageSize)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(result, toAuditEntryResponse))
}

// handleJoinClub handles POST /fansClubMember/joinClub.
func (g *Gateway) handleJoinClub(w http.ResponseWriter, r *http.Request) {
	var req clubIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	m, err := g.members.Join(r.Context(), req.ClubID, auth.PrincipalID(r.Context()))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipResponse(m))
}

// handleQuitClub handles POST /fansClubMember/quitClub.
func (g *Gateway) handleQuitClub(w http.ResponseWriter, r *http.Request) {
	var req clubIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	if err := g.members.Quit(r.Context(), req.ClubID, auth.PrincipalID(r.Context())); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "left club"})
}

// handleListMembers handles GET /fansClubMember/getMemberList.
func (g *Gateway) handleListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clubID := q.Get("clubId")
	if err := requireField("clubId", clubID); err != nil {
		g.writeError(w, r, err)
		return
	}
	page, pageSize, err := pageParams(q)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	role, err := store.ParseRole(q.Get("role"))
	if err != nil {
		g.writeError(w, r, apperr.Validation("role must be owner, admin or member"))
		return
	}

	result, err := g.members.ListPage(r.Context(), clubID, store.MembershipFilter{Role: role}, page, pageSize)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(result, toMembershipResponse))
}

// handleUpdateMemberRole handles PUT /fansClubMember/updateMemberRole.
func (g *Gateway) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req updateMemberRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := requireField("clubId", req.ClubID); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := requireField("userId", req.UserID); err != nil {
		g.writeError(w, r, err)
		return
	}
	role, err := store.ParseRole(req.Role)
	if err != nil {
		g.writeError(w, r, apperr.Validation("role must be admin or member"))
		return
	}

	m, err := g.members.UpdateRole(r.Context(), req.ClubID, auth.PrincipalID(r.Context()), req.UserID, role)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipResponse(m))
}

// handleRemoveMember handles DELETE /fansClubMember/removeMember.
func (g *Gateway) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	var req removeMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	if err := g.members.Remove(r.Context(), req.ClubID, auth.PrincipalID(r.Context()), req.UserID); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "member removed"})
}

// handleCreatePost handles POST /fansClubPost/createPost.
func (g *Gateway) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := requireField("clubId", req.ClubID); err != nil {
		g.writeError(w, r, err)
		return
	}

	p, err := g.feed.Create(r.Context(), req.ClubID, auth.PrincipalID(r.Context()), feed.PostInput{
		Body:   req.Content,
		Images: req.Images,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writePost(w, r, http.StatusCreated, p)
}

// handleUpdatePost handles PUT /fansClubPost/updatePost.
func (g *Gateway) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req updatePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := requireField("id", req.ID); err != nil {
		g.writeError(w, r, err)
		return
	}

	p, err := g.feed.Update(r.Context(), req.ID, auth.PrincipalID(r.Context()), feed.PostPatch{
		Body:   req.Content,
		Images: req.Images,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writePost(w, r, http.StatusOK, p)
}

// handleDeletePost handles DELETE /fansClubPost/deletePost.
func (g *Gateway) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := requireField("id", req.ID); err != nil {
		g.writeError(w, r, err)
		return
	}

	if err := g.feed.Delete(r.Context(), req.ID, auth.PrincipalID(r.Context())); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "post deleted"})
}

// handleListPosts handles GET /fansClubPost/getPostList.
func (g *Gateway) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clubID := q.Get("clubId")
	if err := requireField("clubId", clubID); err != nil {
		g.writeError(w, r, err)
		return
	}
	page, pageSize, err := pageParams(q)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	result, err := g.feed.ListPage(r.Context(), store.PostFilter{ClubID: clubID, AuthorID: q.Get("userId")}, page, pageSize)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	out := ListResponse[PostResponse]{
		List:     make([]PostResponse, 0, len(result.Items)),
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	}
	for i := range result.Items {
		p, err := g.toPostResponse(&result.Items[i])
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		out.List = append(out.List, p)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetPost handles GET /fansClubPost/getPost?id=.
func (g *Gateway) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if err := requireField("id", id); err != nil {
		g.writeError(w, r, err)
		return
	}

	p, err := g.feed.Get(r.Context(), id)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writePost(w, r, http.StatusOK, p)
}

// handleLikePost handles POST /fansClubPost/likePost.
func (g *Gateway) handleLikePost(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := requireField("id", req.ID); err != nil {
		g.writeError(w, r, err)
		return
	}

	key := r.Header.Get(idempotencyKeyHeader)
	res, err := g.feed.Like(r.Context(), req.ID, auth.PrincipalID(r.Context()), key)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LikeResponse{Liked: res.Liked, LikeCount: res.LikeCount, Replayed: res.Replayed})
}

func (g *Gateway) writePost(w http.ResponseWriter, r *http.Request, status int, p *store.Post) {
	resp, err := g.toPostResponse(p)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, status, resp)
}
