// Package gateway serves the fan club REST API.
//
// # Overview
//
// The gateway owns the process-wide components: the SQLite store, the club
// registry, the membership and feed managers, the club list cache, the
// Prometheus registry and the listeners. New wires them from a config.Config;
// Run serves until its context is canceled and then shuts everything down.
//
// # HTTP API
//
// All fan club endpoints require a bearer JWT (see package auth) and are rate
// limited per principal:
//
//	POST   /fansClub/createFansClub
//	PUT    /fansClub/updateFansClub
//	DELETE /fansClub/deleteFansClub
//	GET    /fansClub/getFansClub?id=
//	GET    /fansClub/getFansClubList?page&pageSize&keyword&status
//	GET    /fansClub/getMyClubs?page&pageSize
//	GET    /fansClub/getClubAuditLog?clubId&userId&action&targetType&targetId&page&pageSize
//	POST   /fansClubMember/joinClub
//	POST   /fansClubMember/quitClub
//	GET    /fansClubMember/getMemberList?clubId&role&page&pageSize
//	PUT    /fansClubMember/updateMemberRole
//	DELETE /fansClubMember/removeMember
//	POST   /fansClubPost/createPost
//	PUT    /fansClubPost/updatePost
//	DELETE /fansClubPost/deletePost
//	GET    /fansClubPost/getPostList?clubId&userId&page&pageSize
//	GET    /fansClubPost/getPost?id=
//	POST   /fansClubPost/likePost
//
// Bodies and responses are camelCase JSON. Listings return
// {list, total, page, pageSize}. Club listings carry the caller's
// isMember, isOwner and role for every club.
//
// likePost accepts an Idempotency-Key header. A repeated key from the same
// principal reports the current like state instead of toggling again. Errors return {error, code} with the status
// derived from the apperr code.
//
// # Operational Endpoints
//
// No auth required:
//
//	GET /health         - liveness
//	GET /health/ready   - database ping
//	GET /metrics        - Prometheus (path from metrics.path, when enabled)
//
// When server.grpc_addr is set, a gRPC server exposes grpc.health.v1.Health
// and server reflection.
//
// # Tailscale
//
// With tailscale.enabled the listeners are created through tsnet instead of
// TCP: HTTP on :80 (or :443 with https/funnel) and gRPC on :50051.
package gateway
