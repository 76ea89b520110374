package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"passgate/internal/middleware"
	"passgate/internal/models"
)

type loginAttempt struct {
	username  string
	ipAddress string
	timestamp time.Time
	success   bool
}

type AuthHandler struct {
	db               *gorm.DB
	authMiddleware   *middleware.AuthMiddleware
	loginAttempts    []loginAttempt
	rateLimitWindow  time.Duration
	maxLoginAttempts int
	blockDuration    time.Duration
	blockedIPs       map[string]time.Time
	blockedUsernames map[string]time.Time
	attemptsMutex    sync.Mutex
}

func NewAuthHandler(db *gorm.DB, authMiddleware *middleware.AuthMiddleware) *AuthHandler {
	return &AuthHandler{
		db:               db,
		authMiddleware:   authMiddleware,
		loginAttempts:    []loginAttempt{},
		rateLimitWindow:  10 * time.Minute,
		maxLoginAttempts: 5,
		blockDuration:    30 * time.Minute,
		blockedIPs:       make(map[string]time.Time),
		blockedUsernames: make(map[string]time.Time),
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var input struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	ipAddress := c.ClientIP()

	if h.isIPBlocked(ipAddress) || h.isUsernameBlocked(input.Username) {
		respondError(c, http.StatusTooManyRequests, "too many failed login attempts, try again later")
		return
	}

	var user models.User
	if err := h.db.Where("username = ?", input.Username).First(&user).Error; err != nil {
		h.recordLoginAttempt(input.Username, ipAddress, false)
		respondError(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	if !user.Active {
		h.recordLoginAttempt(input.Username, ipAddress, false)
		respondError(c, http.StatusUnauthorized, "account is inactive")
		return
	}

	if !user.CheckPassword(input.Password) {
		h.recordLoginAttempt(input.Username, ipAddress, false)
		respondError(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := h.authMiddleware.GenerateToken(user)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to generate token")
		return
	}

	h.recordLoginAttempt(input.Username, ipAddress, true)

	respondOK(c, "login successful", gin.H{
		"token": token,
		"user": gin.H{
			"id":        user.ID,
			"username":  user.Username,
			"firstName": user.FirstName,
			"lastName":  user.LastName,
			"email":     user.Email,
			"userType":  user.UserType,
			"isAdmin":   user.IsAdmin,
		},
	})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var input struct {
		Username  string          `json:"username" binding:"required"`
		Password  string          `json:"password" binding:"required,min=8"`
		FirstName string          `json:"first_name" binding:"required"`
		LastName  string          `json:"last_name" binding:"required"`
		Email     string          `json:"email" binding:"required,email"`
		Phone     string          `json:"phone"`
		UserType  models.UserType `json:"user_type"`
		IsAdmin   bool            `json:"is_admin"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid registration data")
		return
	}

	if input.UserType == "" {
		input.UserType = models.UserTypeEmployee
	}

	user := models.User{
		Username:  input.Username,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		UserType:  input.UserType,
		IsAdmin:   input.IsAdmin,
		Active:    true,
	}

	if err := h.db.Create(&user).Error; err != nil {
		respondError(c, http.StatusConflict, "username or email already in use")
		return
	}

	respond(c, http.StatusCreated, true, "user registered", gin.H{
		"id":       user.ID,
		"username": user.Username,
	})
}

func (h *AuthHandler) GetMe(c *gin.Context) {
	user, exists := c.Get("user")
	if !exists {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	respondOK(c, "current user", user)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var input struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=8"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "old and new passwords are required")
		return
	}

	userInterface, exists := c.Get("user")
	if !exists {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	user := userInterface.(models.User)

	if !user.CheckPassword(input.OldPassword) {
		respondError(c, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	user.Password = input.NewPassword

	if err := h.db.Save(&user).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update password")
		return
	}

	respondOK(c, "password changed", nil)
}

func (h *AuthHandler) recordLoginAttempt(username, ipAddress string, success bool) {
	h.attemptsMutex.Lock()
	defer h.attemptsMutex.Unlock()

	h.loginAttempts = append(h.loginAttempts, loginAttempt{
		username:  username,
		ipAddress: ipAddress,
		timestamp: time.Now(),
		success:   success,
	})

	if success {
		delete(h.blockedIPs, ipAddress)
		delete(h.blockedUsernames, username)
		return
	}

	cutoffTime := time.Now().Add(-h.rateLimitWindow)
	recent := h.loginAttempts[:0]
	for _, a := range h.loginAttempts {
		if a.timestamp.After(cutoffTime) {
			recent = append(recent, a)
		}
	}
	h.loginAttempts = recent

	ipFailures := 0
	usernameFailures := 0
	for _, a := range h.loginAttempts {
		if a.success {
			continue
		}
		if a.ipAddress == ipAddress {
			ipFailures++
		}
		if a.username == username {
			usernameFailures++
		}
	}

	if ipFailures >= h.maxLoginAttempts {
		h.blockedIPs[ipAddress] = time.Now().Add(h.blockDuration)
	}
	if usernameFailures >= h.maxLoginAttempts {
		h.blockedUsernames[username] = time.Now().Add(h.blockDuration)
	}
}

func (h *AuthHandler) isIPBlocked(ipAddress string) bool {
	h.attemptsMutex.Lock()
	defer h.attemptsMutex.Unlock()

	blockUntil, exists := h.blockedIPs[ipAddress]
	if !exists {
		return false
	}

	if time.Now().After(blockUntil) {
		delete(h.blockedIPs, ipAddress)
		return false
	}

	return true
}

func (h *AuthHandler) isUsernameBlocked(username string) bool {
	h.attemptsMutex.Lock()
	defer h.attemptsMutex.Unlock()

	blockUntil, exists := h.blockedUsernames[username]
	if !exists {
		return false
	}

	if time.Now().After(blockUntil) {
		delete(h.blockedUsernames, username)
		return false
	}

	return true
}
