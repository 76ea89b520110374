package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"passgate/internal/service"
)

type StatsHandler struct {
	stats *service.StatisticsService
}

func NewStatsHandler(db *gorm.DB) *StatsHandler {
	return &StatsHandler{
		stats: service.NewStatisticsService(db),
	}
}

// statsWindow resolves the requested date range, defaulting to the last
// 30 days when the caller sends nothing.
func statsWindow(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now()

	start, ok := dateQuery(c, "startDate", false)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := dateQuery(c, "endDate", true)
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	if start.IsZero() {
		start = now.AddDate(0, 0, -30)
	}
	if end.IsZero() {
		end = now
	}

	return start, end, true
}

func (h *StatsHandler) GetDeviceUsageStats(c *gin.Context) {
	start, end, ok := statsWindow(c)
	if !ok {
		return
	}

	stats, err := h.stats.GetDeviceUsageStats(c.Query("deviceId"), start, end)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to compute device statistics")
		return
	}

	respondOK(c, "device statistics computed", stats)
}

func (h *StatsHandler) GetMostActiveUsers(c *gin.Context) {
	start, end, ok := statsWindow(c)
	if !ok {
		return
	}

	limit := intQuery(c, "limit", 10)
	if limit < 1 {
		limit = 10
	}

	users, err := h.stats.GetMostActiveUsers(limit, start, end)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to compute user activity")
		return
	}

	respondOK(c, "most active users computed", users)
}

func (h *StatsHandler) GetAccessTimeSeries(c *gin.Context) {
	start, end, ok := statsWindow(c)
	if !ok {
		return
	}

	interval := c.DefaultQuery("interval", "day")
	if interval != "hour" && interval != "day" {
		respondError(c, http.StatusBadRequest, "interval must be hour or day")
		return
	}

	series, err := h.stats.GetAccessTimeSeries(c.Query("deviceId"), interval, start, end)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to compute time series")
		return
	}

	respondOK(c, "time series computed", series)
}
