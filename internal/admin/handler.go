// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/health"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const probeTimeout = 3 * time.Second

type UserStats interface {
	Stats(ctx context.Context) (*user.Stats, error)
}

type SessionCounter interface {
	Len() int
}

// Route mounts a sub-tree under /admin, e.g. users or bonus codes.
type Route interface {
	RegisterAdminRoutes(r chi.Router, authenticator, adminOnly func(http.Handler) http.Handler)
}

type Handler struct {
	users      UserStats
	sessions   SessionCounter
	health     *health.Handler
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
}

type HandlerConfig struct {
	Users      UserStats
	Sessions   SessionCounter
	Health     *health.Handler
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		users:      cfg.Users,
		sessions:   cfg.Sessions,
		health:     cfg.Health,
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
	}
}

// RegisterRoutes mounts the stats endpoints and every sub-route, all behind
// the same authenticator and admin gate.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
	routes ...Route,
) {
	r.Group(func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/admin/stats", h.GetStats)
		r.Get("/admin/stats/system", h.GetSystemStats)
	})

	for _, route := range routes {
		route.RegisterAdminRoutes(r, authenticator, adminOnly)
	}
}

// GetStats is the back-office dashboard summary.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		if errors.Is(err, core.ErrStorageUnavailable) {
			core.JSONError(w, core.StorageUnavailableError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	resp := StatsResponse{Users: *stats}
	if h.sessions != nil {
		resp.LiveSessions = h.sessions.Len()
	}

	core.OK(w, resp)
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	var checks []health.HealthCheck
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()
		checks = h.health.Run(ctx)
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	core.OK(w, SystemStatsResponse{
		Checks:   checks,
		Database: h.getDBStats(),
		Redis:    h.getRedisStats(),
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc,
			MemSys:       memStats.Sys,
			NumGC:        memStats.NumGC,
		},
	})
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

type StatsResponse struct {
	Users        user.Stats `json:"users"`
	LiveSessions int        `json:"live_sessions"`
}

type SystemStatsResponse struct {
	Checks   []health.HealthCheck `json:"checks"`
	Database *DBPoolStats         `json:"database,omitempty"`
	Redis    *RedisPoolStats      `json:"redis,omitempty"`
	Runtime  RuntimeStats         `json:"runtime"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
