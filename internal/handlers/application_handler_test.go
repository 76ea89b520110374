package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"passgate/internal/models"
)

func setupApplicationRouter(t *testing.T, db *gorm.DB, reviewerID uint) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewApplicationHandler(db)

	router.POST("/api/applications", handler.Submit)

	// Review endpoints run behind auth; the test injects the reviewer
	// the way the middleware would.
	reviewed := router.Group("/api/applications")
	reviewed.Use(func(c *gin.Context) {
		c.Set("userID", reviewerID)
		c.Next()
	})
	{
		reviewed.GET("", handler.GetApplications)
		reviewed.GET("/:id", handler.GetApplication)
		reviewed.POST("/:id/approve", handler.Approve)
		reviewed.POST("/:id/reject", handler.Reject)
	}

	return router
}

func submitApplication(t *testing.T, router *gin.Engine, hostID uint) uint {
	t.Helper()

	w := postJSON(t, router, "/api/applications", gin.H{
		"visitor_name":    "Visiting Vendor",
		"visitor_phone":   "555-0100",
		"company":         "Vendor Co",
		"purpose":         "equipment maintenance",
		"host_user_id":    hostID,
		"scheduled_start": time.Now().Add(time.Hour).Format(time.RFC3339),
		"scheduled_end":   time.Now().Add(4 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})

	return uint(data["id"].(float64))
}

func TestApplicationSubmit(t *testing.T) {
	db := setupTestDB(t)
	host := createTestUser(t, db, "host")
	router := setupApplicationRouter(t, db, host.ID)

	t.Run("submission starts pending", func(t *testing.T) {
		id := submitApplication(t, router, host.ID)

		var application models.Application
		require.NoError(t, db.First(&application, id).Error)
		assert.Equal(t, models.ApplicationStatusPending, application.Status)
		assert.Equal(t, host.ID, application.HostUserID)
	})

	t.Run("end before start is a 400", func(t *testing.T) {
		w := postJSON(t, router, "/api/applications", gin.H{
			"visitor_name":    "Visiting Vendor",
			"visitor_phone":   "555-0100",
			"host_user_id":    host.ID,
			"scheduled_start": time.Now().Add(4 * time.Hour).Format(time.RFC3339),
			"scheduled_end":   time.Now().Add(time.Hour).Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown host is a 400", func(t *testing.T) {
		w := postJSON(t, router, "/api/applications", gin.H{
			"visitor_name":    "Visiting Vendor",
			"visitor_phone":   "555-0100",
			"host_user_id":    99999,
			"scheduled_start": time.Now().Add(time.Hour).Format(time.RFC3339),
			"scheduled_end":   time.Now().Add(4 * time.Hour).Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestApplicationApprove(t *testing.T) {
	db := setupTestDB(t)
	host := createTestUser(t, db, "host")
	reviewer := createTestUser(t, db, "reviewer")
	router := setupApplicationRouter(t, db, reviewer.ID)

	id := submitApplication(t, router, host.ID)

	w := postJSON(t, router, "/api/applications/1/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var application models.Application
	require.NoError(t, db.First(&application, id).Error)
	assert.Equal(t, models.ApplicationStatusApproved, application.Status)
	require.NotNil(t, application.ReviewedBy)
	assert.Equal(t, reviewer.ID, *application.ReviewedBy)

	// Approval issues a visitor passcode bound to the scheduled window.
	var passcode models.Passcode
	require.NoError(t, db.Where("application_id = ?", id).First(&passcode).Error)
	assert.Equal(t, models.PasscodeTypeVisitor, passcode.Type)
	assert.Equal(t, models.PasscodeStatusActive, passcode.Status)
	require.NotNil(t, passcode.ExpiryTime)
	assert.WithinDuration(t, application.ScheduledEnd, *passcode.ExpiryTime, time.Second)
	require.NotNil(t, passcode.UsageLimit)
	assert.Equal(t, visitorUsageLimit, *passcode.UsageLimit)

	t.Run("second review is rejected", func(t *testing.T) {
		w := postJSON(t, router, "/api/applications/1/approve", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestApplicationReject(t *testing.T) {
	db := setupTestDB(t)
	host := createTestUser(t, db, "host")
	reviewer := createTestUser(t, db, "reviewer")
	router := setupApplicationRouter(t, db, reviewer.ID)

	id := submitApplication(t, router, host.ID)

	w := postJSON(t, router, "/api/applications/1/reject", gin.H{"note": "no host confirmation"})
	require.Equal(t, http.StatusOK, w.Code)

	var application models.Application
	require.NoError(t, db.First(&application, id).Error)
	assert.Equal(t, models.ApplicationStatusRejected, application.Status)
	assert.Equal(t, "no host confirmation", application.RejectNote)

	// Rejection issues nothing.
	var count int64
	require.NoError(t, db.Model(&models.Passcode{}).Count(&count).Error)
	assert.Zero(t, count)

	t.Run("rejected application cannot be approved", func(t *testing.T) {
		w := postJSON(t, router, "/api/applications/1/approve", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
