package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"foamcrm/internal/metrics"
	"foamcrm/internal/services"
	"foamcrm/internal/version"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// MetricsHandler 指标处理器
type MetricsHandler struct {
	feed      *services.StatusFeed
	editors   *services.EditorManager
	db        *gorm.DB
	startedAt time.Time
}

// NewMetricsHandler 创建指标处理器
func NewMetricsHandler(feed *services.StatusFeed, editors *services.EditorManager, db *gorm.DB) *MetricsHandler {
	return &MetricsHandler{feed: feed, editors: editors, db: db, startedAt: time.Now()}
}

// GetMetrics 获取系统指标（Prometheus 格式）
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain")

	// 采样运行态
	uptime := time.Since(h.startedAt).Seconds()
	feedClients := 0
	if h.feed != nil {
		feedClients = h.feed.GetClientCount()
	}
	openSessions := 0
	if h.editors != nil {
		openSessions = h.editors.Count()
	}

	b := &strings.Builder{}
	fmt.Fprintf(b, "# HELP foamcrm_info Information about the FoamCRM instance\n")
	fmt.Fprintf(b, "# TYPE foamcrm_info gauge\n")
	v := strings.ReplaceAll(version.Version, "\"", "\\\"")
	cmt := strings.ReplaceAll(version.Commit, "\"", "\\\"")
	bt := strings.ReplaceAll(version.BuildTime, "\"", "\\\"")
	fmt.Fprintf(b, "foamcrm_info{version=\"%s\",commit=\"%s\",build_time=\"%s\"} 1\n\n", v, cmt, bt)

	fmt.Fprintf(b, "# HELP foamcrm_uptime_seconds Total uptime of the FoamCRM instance in seconds\n")
	fmt.Fprintf(b, "# TYPE foamcrm_uptime_seconds counter\n")
	fmt.Fprintf(b, "foamcrm_uptime_seconds %.0f\n\n", uptime)

	fmt.Fprintf(b, "# HELP foamcrm_feed_active_connections Active status feed subscribers\n")
	fmt.Fprintf(b, "# TYPE foamcrm_feed_active_connections gauge\n")
	fmt.Fprintf(b, "foamcrm_feed_active_connections %d\n\n", feedClients)

	fmt.Fprintf(b, "# HELP foamcrm_editor_sessions_open Editor sessions currently open\n")
	fmt.Fprintf(b, "# TYPE foamcrm_editor_sessions_open gauge\n")
	fmt.Fprintf(b, "foamcrm_editor_sessions_open %d\n\n", openSessions)

	opened, submitted := metrics.EditorSnapshot()
	fmt.Fprintf(b, "# HELP foamcrm_editor_sessions_opened_total Editor sessions opened since start\n")
	fmt.Fprintf(b, "# TYPE foamcrm_editor_sessions_opened_total counter\n")
	fmt.Fprintf(b, "foamcrm_editor_sessions_opened_total %d\n\n", opened)

	fmt.Fprintf(b, "# HELP foamcrm_editor_submitted_total Editor drafts submitted and saved\n")
	fmt.Fprintf(b, "# TYPE foamcrm_editor_submitted_total counter\n")
	fmt.Fprintf(b, "foamcrm_editor_submitted_total %d\n\n", submitted)

	attempts, successes, failures := metrics.SyncSnapshot()
	fmt.Fprintf(b, "# HELP foamcrm_sync_attempts_total Cloud sync operations started\n")
	fmt.Fprintf(b, "# TYPE foamcrm_sync_attempts_total counter\n")
	writeBuckets(b, "foamcrm_sync_attempts_total", "op", attempts)
	fmt.Fprintf(b, "\n# HELP foamcrm_sync_success_total Cloud sync operations finished successfully\n")
	fmt.Fprintf(b, "# TYPE foamcrm_sync_success_total counter\n")
	writeBuckets(b, "foamcrm_sync_success_total", "op", successes)
	fmt.Fprintf(b, "\n# HELP foamcrm_sync_failures_total Cloud sync operations finished in failure\n")
	fmt.Fprintf(b, "# TYPE foamcrm_sync_failures_total counter\n")
	writeBuckets(b, "foamcrm_sync_failures_total", "op", failures)

	toolTotal, byTool := metrics.ToolCallSnapshot()
	fmt.Fprintf(b, "\n# HELP foamcrm_cloud_tool_calls_total Workspace tool invocations\n")
	fmt.Fprintf(b, "# TYPE foamcrm_cloud_tool_calls_total counter\n")
	writeBuckets(b, "foamcrm_cloud_tool_calls_total", "tool", byTool)
	fmt.Fprintf(b, "foamcrm_cloud_tool_calls_sum %d\n\n", toolTotal)

	// Go runtime minimal metrics
	fmt.Fprintf(b, "# HELP foamcrm_go_goroutines Number of goroutines\n")
	fmt.Fprintf(b, "# TYPE foamcrm_go_goroutines gauge\n")
	fmt.Fprintf(b, "foamcrm_go_goroutines %d\n\n", runtime.NumGoroutine())

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	fmt.Fprintf(b, "# HELP foamcrm_go_mem_alloc_bytes Bytes of allocated heap objects\n")
	fmt.Fprintf(b, "# TYPE foamcrm_go_mem_alloc_bytes gauge\n")
	fmt.Fprintf(b, "foamcrm_go_mem_alloc_bytes %d\n", ms.Alloc)

	// Database/sql stats (if available)
	if h.db != nil {
		var sqlDB *sql.DB
		if s, err := h.db.DB(); err == nil {
			sqlDB = s
		}
		if sqlDB != nil {
			ds := sqlDB.Stats()
			fmt.Fprintf(b, "\n# HELP foamcrm_db_max_open_connections Maximum number of open connections to the database\n")
			fmt.Fprintf(b, "# TYPE foamcrm_db_max_open_connections gauge\n")
			fmt.Fprintf(b, "foamcrm_db_max_open_connections %d\n", ds.MaxOpenConnections)

			fmt.Fprintf(b, "# HELP foamcrm_db_open_connections The number of established connections both in use and idle\n")
			fmt.Fprintf(b, "# TYPE foamcrm_db_open_connections gauge\n")
			fmt.Fprintf(b, "foamcrm_db_open_connections %d\n", ds.OpenConnections)

			fmt.Fprintf(b, "# HELP foamcrm_db_inuse_connections The number of connections currently in use\n")
			fmt.Fprintf(b, "# TYPE foamcrm_db_inuse_connections gauge\n")
			fmt.Fprintf(b, "foamcrm_db_inuse_connections %d\n", ds.InUse)

			fmt.Fprintf(b, "# HELP foamcrm_db_idle_connections The number of idle connections\n")
			fmt.Fprintf(b, "# TYPE foamcrm_db_idle_connections gauge\n")
			fmt.Fprintf(b, "foamcrm_db_idle_connections %d\n", ds.Idle)

			fmt.Fprintf(b, "# HELP foamcrm_db_wait_count The total number of connections waited for\n")
			fmt.Fprintf(b, "# TYPE foamcrm_db_wait_count counter\n")
			fmt.Fprintf(b, "foamcrm_db_wait_count %d\n", ds.WaitCount)

			fmt.Fprintf(b, "# HELP foamcrm_db_wait_duration_seconds The total time blocked waiting for a new connection\n")
			fmt.Fprintf(b, "# TYPE foamcrm_db_wait_duration_seconds counter\n")
			fmt.Fprintf(b, "foamcrm_db_wait_duration_seconds %.6f\n", ds.WaitDuration.Seconds())

			fmt.Fprintf(b, "# HELP foamcrm_db_max_idle_closed_total The total number of connections closed due to SetMaxIdleConns\n")
			fmt.Fprintf(b, "# TYPE foamcrm_db_max_idle_closed_total counter\n")
			fmt.Fprintf(b, "foamcrm_db_max_idle_closed_total %d\n", ds.MaxIdleClosed)

			fmt.Fprintf(b, "# HELP foamcrm_db_max_lifetime_closed_total The total number of connections closed due to SetConnMaxLifetime\n")
			fmt.Fprintf(b, "# TYPE foamcrm_db_max_lifetime_closed_total counter\n")
			fmt.Fprintf(b, "foamcrm_db_max_lifetime_closed_total %d\n", ds.MaxLifetimeClosed)
		}
	}

	// Rate limit drops (by prefix)
	totalDrops, byPrefix := metrics.RateLimitSnapshot()
	fmt.Fprintf(b, "\n# HELP foamcrm_ratelimit_dropped_total Total HTTP 429 responses due to rate limiting\n")
	fmt.Fprintf(b, "# TYPE foamcrm_ratelimit_dropped_total counter\n")
	if len(byPrefix) == 0 {
		fmt.Fprintf(b, "foamcrm_ratelimit_dropped_total{prefix=\"global\"} %d\n", 0)
	} else {
		for p, drops := range byPrefix {
			label := strings.ReplaceAll(p, "\"", "\\\"")
			fmt.Fprintf(b, "foamcrm_ratelimit_dropped_total{prefix=\"%s\"} %d\n", label, drops)
		}
	}
	fmt.Fprintf(b, "foamcrm_ratelimit_dropped_sum %d\n", totalDrops)

	c.String(http.StatusOK, b.String())
}

// writeBuckets prints one labeled sample per bucket, or a single zero
// sample when nothing has been counted yet.
func writeBuckets(b *strings.Builder, name, label string, buckets map[string]uint64) {
	if len(buckets) == 0 {
		fmt.Fprintf(b, "%s{%s=\"none\"} 0\n", name, label)
		return
	}
	for key, count := range buckets {
		escaped := strings.ReplaceAll(key, "\"", "\\\"")
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", name, label, escaped, count)
	}
}
