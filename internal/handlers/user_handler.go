package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"passgate/internal/models"
	"passgate/internal/store"
)

type UserHandler struct {
	db        *gorm.DB
	passcodes *store.PasscodeStore
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{
		db:        db,
		passcodes: store.NewPasscodeStore(db),
	}
}

func (h *UserHandler) GetUsers(c *gin.Context) {
	query := h.db.Model(&models.User{})

	if userType := c.Query("type"); userType != "" {
		query = query.Where("user_type = ?", userType)
	}
	if merchantID := c.Query("merchantId"); merchantID != "" {
		query = query.Where("merchant_id = ?", merchantID)
	}
	if active := c.Query("active"); active != "" {
		query = query.Where("active = ?", active == "true")
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch users")
		return
	}

	respondOK(c, "users fetched", users)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	query := h.db.Model(&models.User{})

	if c.Query("include_passcodes") == "true" {
		query = query.Preload("Passcodes")
	}
	if c.Query("include_merchant") == "true" {
		query = query.Preload("Merchant")
	}

	var user models.User
	if err := query.First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "user not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch user")
		}
		return
	}

	respondOK(c, "user fetched", user)
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var input struct {
		Username   string          `json:"username" binding:"required"`
		Password   string          `json:"password" binding:"required,min=8"`
		FirstName  string          `json:"first_name" binding:"required"`
		LastName   string          `json:"last_name" binding:"required"`
		Email      string          `json:"email" binding:"required,email"`
		Phone      string          `json:"phone"`
		UserType   models.UserType `json:"user_type"`
		MerchantID *uint           `json:"merchant_id"`
		IsAdmin    bool            `json:"is_admin"`
		Active     *bool           `json:"active"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid user data")
		return
	}

	if input.UserType == "" {
		input.UserType = models.UserTypeEmployee
	}

	if input.MerchantID != nil {
		var merchant models.Merchant
		if err := h.db.First(&merchant, *input.MerchantID).Error; err != nil {
			respondError(c, http.StatusBadRequest, "invalid merchant id")
			return
		}
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	user := models.User{
		Username:   input.Username,
		Password:   input.Password,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Email:      input.Email,
		Phone:      input.Phone,
		UserType:   input.UserType,
		MerchantID: input.MerchantID,
		IsAdmin:    input.IsAdmin,
		Active:     active,
	}

	if err := h.db.Create(&user).Error; err != nil {
		respondError(c, http.StatusConflict, "username or email already in use")
		return
	}

	respond(c, http.StatusCreated, true, "user created", user)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "user not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch user")
		}
		return
	}

	var input struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Email      string `json:"email"`
		Phone      string `json:"phone"`
		MerchantID *uint  `json:"merchant_id"`
		IsAdmin    *bool  `json:"is_admin"`
		Active     *bool  `json:"active"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid user data")
		return
	}

	wasActive := user.Active
	passwordChanged := input.Password != ""

	if input.Username != "" {
		user.Username = input.Username
	}
	if passwordChanged {
		user.Password = input.Password
	}
	if input.FirstName != "" {
		user.FirstName = input.FirstName
	}
	if input.LastName != "" {
		user.LastName = input.LastName
	}
	if input.Email != "" {
		user.Email = input.Email
	}
	if input.Phone != "" {
		user.Phone = input.Phone
	}
	if input.MerchantID != nil {
		user.MerchantID = input.MerchantID
	}
	if input.IsAdmin != nil {
		user.IsAdmin = *input.IsAdmin
	}
	if input.Active != nil {
		user.Active = *input.Active
	}

	// The BeforeSave hook hashes whatever is in Password, so the
	// stored hash must not round-trip through it.
	query := h.db
	if !passwordChanged {
		query = query.Omit("password")
	}
	if err := query.Save(&user).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update user")
		return
	}

	// Deactivation revokes every active passcode the user holds.
	if wasActive && !user.Active {
		if err := h.passcodes.RevokeUserPasscodes(user.ID); err != nil {
			respondError(c, http.StatusInternalServerError, "failed to revoke user passcodes")
			return
		}
	}

	respondOK(c, "user updated", user)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "user not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch user")
		}
		return
	}

	if err := h.passcodes.RevokeUserPasscodes(user.ID); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to revoke user passcodes")
		return
	}

	if err := h.db.Delete(&models.User{}, id).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to delete user")
		return
	}

	respondOK(c, "user deleted", nil)
}

func (h *UserHandler) GetUserPasscodes(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	var passcodes []models.Passcode
	if err := h.db.Where("user_id = ?", id).Order("created_at DESC").Find(&passcodes).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch user passcodes")
		return
	}

	respondOK(c, "user passcodes fetched", passcodes)
}
