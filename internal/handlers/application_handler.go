package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"passgate/internal/models"
	"passgate/internal/service"
	"passgate/internal/store"
)

// Default usage allowance for a visitor pass: one entry and one exit
// per scheduled visit.
const visitorUsageLimit = 2

type ApplicationHandler struct {
	db     *gorm.DB
	issuer *service.Issuer
}

func NewApplicationHandler(db *gorm.DB) *ApplicationHandler {
	return &ApplicationHandler{
		db:     db,
		issuer: service.NewIssuer(store.NewPasscodeStore(db)),
	}
}

// Submit is the public entry point for visitor applications. The host
// must be an active user; everything else waits for review.
func (h *ApplicationHandler) Submit(c *gin.Context) {
	var input struct {
		VisitorName    string    `json:"visitor_name" binding:"required"`
		VisitorPhone   string    `json:"visitor_phone" binding:"required"`
		Company        string    `json:"company"`
		Purpose        string    `json:"purpose"`
		HostUserID     uint      `json:"host_user_id" binding:"required"`
		ScheduledStart time.Time `json:"scheduled_start" binding:"required"`
		ScheduledEnd   time.Time `json:"scheduled_end" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid application data")
		return
	}

	if !input.ScheduledEnd.After(input.ScheduledStart) {
		respondError(c, http.StatusBadRequest, "scheduled_end must be after scheduled_start")
		return
	}
	if !input.ScheduledEnd.After(time.Now()) {
		respondError(c, http.StatusBadRequest, "scheduled window must not be in the past")
		return
	}

	var host models.User
	if err := h.db.First(&host, input.HostUserID).Error; err != nil || !host.Active {
		respondError(c, http.StatusBadRequest, "invalid host user")
		return
	}

	application := models.Application{
		VisitorName:    input.VisitorName,
		VisitorPhone:   input.VisitorPhone,
		Company:        input.Company,
		Purpose:        input.Purpose,
		HostUserID:     input.HostUserID,
		ScheduledStart: input.ScheduledStart,
		ScheduledEnd:   input.ScheduledEnd,
		Status:         models.ApplicationStatusPending,
	}

	if err := h.db.Create(&application).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to submit application")
		return
	}

	respond(c, http.StatusCreated, true, "application submitted", application)
}

func (h *ApplicationHandler) GetApplications(c *gin.Context) {
	query := h.db.Model(&models.Application{}).Preload("HostUser")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if hostID := c.Query("hostUserId"); hostID != "" {
		query = query.Where("host_user_id = ?", hostID)
	}

	var applications []models.Application
	if err := query.Order("created_at DESC").Find(&applications).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch applications")
		return
	}

	respondOK(c, "applications fetched", applications)
}

func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid application id")
		return
	}

	var application models.Application
	if err := h.db.Preload("HostUser").First(&application, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "application not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch application")
		}
		return
	}

	respondOK(c, "application fetched", application)
}

// Approve creates a visitor account bound to the application and
// issues a passcode limited to the scheduled window.
func (h *ApplicationHandler) Approve(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid application id")
		return
	}

	reviewerID, exists := c.Get("userID")
	if !exists {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var application models.Application
	if err := h.db.First(&application, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "application not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch application")
		}
		return
	}

	if !application.IsPending() {
		respondError(c, http.StatusBadRequest, "application has already been reviewed")
		return
	}

	visitor := models.User{
		Username:  "visitor-" + strconv.Itoa(int(application.ID)) + "-" + strconv.FormatInt(time.Now().Unix(), 10),
		Password:  application.VisitorPhone,
		FirstName: application.VisitorName,
		LastName:  "(visitor)",
		Email:     "visitor-" + strconv.Itoa(int(application.ID)) + "@passgate.local",
		Phone:     application.VisitorPhone,
		UserType:  models.UserTypeVisitor,
		Active:    true,
	}
	if err := h.db.Create(&visitor).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to create visitor account")
		return
	}

	usageLimit := visitorUsageLimit
	expiry := application.ScheduledEnd

	passcode, err := h.issuer.Issue(service.IssueOptions{
		UserID:        visitor.ID,
		Type:          models.PasscodeTypeVisitor,
		ExpiryTime:    &expiry,
		UsageLimit:    &usageLimit,
		ApplicationID: &application.ID,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to issue visitor passcode")
		return
	}

	now := time.Now()
	rid := reviewerID.(uint)
	application.Status = models.ApplicationStatusApproved
	application.ReviewedBy = &rid
	application.ReviewedAt = &now

	if err := h.db.Save(&application).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update application")
		return
	}

	respondOK(c, "application approved", gin.H{
		"application": application,
		"passcode":    passcode,
	})
}

func (h *ApplicationHandler) Reject(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid application id")
		return
	}

	reviewerID, exists := c.Get("userID")
	if !exists {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var input struct {
		Note string `json:"note"`
	}
	// Body is optional on rejection.
	_ = c.ShouldBindJSON(&input)

	var application models.Application
	if err := h.db.First(&application, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "application not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch application")
		}
		return
	}

	if !application.IsPending() {
		respondError(c, http.StatusBadRequest, "application has already been reviewed")
		return
	}

	now := time.Now()
	rid := reviewerID.(uint)
	application.Status = models.ApplicationStatusRejected
	application.ReviewedBy = &rid
	application.ReviewedAt = &now
	application.RejectNote = input.Note

	if err := h.db.Save(&application).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update application")
		return
	}

	respondOK(c, "application rejected", application)
}
