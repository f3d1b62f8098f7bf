// ABOUTME: chi route table for the fan club REST API
// ABOUTME: Operational endpoints are public; everything else sits behind JWT auth and rate limiting

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/fanclub-gateway/internal/auth"
)

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(g.httpMetrics.middleware(g.logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found", Code: "NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: codeMethodNotAllowed})
	})

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	if g.config.Metrics.Enabled {
		r.Method(http.MethodGet, g.config.Metrics.Path, promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.HTTPAuthMiddleware(g.verifier, g.logger))
		if g.limiter != nil {
			pr.Use(RateLimitMiddleware(g.limiter))
		}

		pr.Route("/fansClub", func(cr chi.Router) {
			cr.Post("/createFansClub", g.handleCreateClub)
			cr.Put("/updateFansClub", g.handleUpdateClub)
			cr.Delete("/deleteFansClub", g.handleDeleteClub)
			cr.Get("/getFansClub", g.handleGetClub)
			cr.Get("/getFansClubList", g.handleListClubs)
			cr.Get("/getMyClubs", g.handleMyClubs)
			cr.Get("/getClubAuditLog", g.handleClubAuditLog)
		})

		pr.Route("/fansClubMember", func(mr chi.Router) {
			mr.Post("/joinClub", g.handleJoinClub)
			mr.Post("/quitClub", g.handleQuitClub)
			mr.Get("/getMemberList", g.handleListMembers)
			mr.Put("/updateMemberRole", g.handleUpdateMemberRole)
			mr.Delete("/removeMember", g.handleRemoveMember)
		})

		pr.Route("/fansClubPost", func(fr chi.Router) {
			fr.Post("/createPost", g.handleCreatePost)
			fr.Put("/updatePost", g.handleUpdatePost)
			fr.Delete("/deletePost", g.handleDeletePost)
			fr.Get("/getPostList", g.handleListPosts)
			fr.Get("/getPost", g.handleGetPost)
			fr.Post("/likePost", g.handleLikePost)
		})
	})

	return r
}
