package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"passgate/internal/models"
	"passgate/internal/store"
)

type MerchantHandler struct {
	db        *gorm.DB
	passcodes *store.PasscodeStore
}

func NewMerchantHandler(db *gorm.DB) *MerchantHandler {
	return &MerchantHandler{
		db:        db,
		passcodes: store.NewPasscodeStore(db),
	}
}

func (h *MerchantHandler) GetMerchants(c *gin.Context) {
	query := h.db.Model(&models.Merchant{})

	if active := c.Query("active"); active != "" {
		query = query.Where("active = ?", active == "true")
	}

	var merchants []models.Merchant
	if err := query.Find(&merchants).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch merchants")
		return
	}

	respondOK(c, "merchants fetched", merchants)
}

func (h *MerchantHandler) GetMerchant(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid merchant id")
		return
	}

	query := h.db.Model(&models.Merchant{})
	if c.Query("include_users") == "true" {
		query = query.Preload("Users")
	}

	var merchant models.Merchant
	if err := query.First(&merchant, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "merchant not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch merchant")
		}
		return
	}

	respondOK(c, "merchant fetched", merchant)
}

func (h *MerchantHandler) CreateMerchant(c *gin.Context) {
	var input struct {
		Name         string `json:"name" binding:"required"`
		ContactName  string `json:"contact_name"`
		ContactPhone string `json:"contact_phone"`
		ContactEmail string `json:"contact_email"`
		FloorID      *uint  `json:"floor_id"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid merchant data")
		return
	}

	merchant := models.Merchant{
		Name:         input.Name,
		ContactName:  input.ContactName,
		ContactPhone: input.ContactPhone,
		ContactEmail: input.ContactEmail,
		FloorID:      input.FloorID,
		Active:       true,
	}

	if err := h.db.Create(&merchant).Error; err != nil {
		respondError(c, http.StatusConflict, "merchant name already in use")
		return
	}

	respond(c, http.StatusCreated, true, "merchant created", merchant)
}

func (h *MerchantHandler) UpdateMerchant(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid merchant id")
		return
	}

	var merchant models.Merchant
	if err := h.db.First(&merchant, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "merchant not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch merchant")
		}
		return
	}

	var input struct {
		Name         string `json:"name"`
		ContactName  string `json:"contact_name"`
		ContactPhone string `json:"contact_phone"`
		ContactEmail string `json:"contact_email"`
		FloorID      *uint  `json:"floor_id"`
		Active       *bool  `json:"active"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid merchant data")
		return
	}

	wasActive := merchant.Active

	if input.Name != "" {
		merchant.Name = input.Name
	}
	if input.ContactName != "" {
		merchant.ContactName = input.ContactName
	}
	if input.ContactPhone != "" {
		merchant.ContactPhone = input.ContactPhone
	}
	if input.ContactEmail != "" {
		merchant.ContactEmail = input.ContactEmail
	}
	if input.FloorID != nil {
		merchant.FloorID = input.FloorID
	}
	if input.Active != nil {
		merchant.Active = *input.Active
	}

	if err := h.db.Save(&merchant).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update merchant")
		return
	}

	// Deactivating a merchant cuts access for its whole staff.
	if wasActive && !merchant.Active {
		if err := h.revokeMerchantPasscodes(merchant.ID); err != nil {
			respondError(c, http.StatusInternalServerError, "failed to revoke merchant passcodes")
			return
		}
	}

	respondOK(c, "merchant updated", merchant)
}

func (h *MerchantHandler) DeleteMerchant(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid merchant id")
		return
	}

	var merchant models.Merchant
	if err := h.db.First(&merchant, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, http.StatusNotFound, "merchant not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch merchant")
		}
		return
	}

	if err := h.revokeMerchantPasscodes(merchant.ID); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to revoke merchant passcodes")
		return
	}

	if err := h.db.Delete(&models.Merchant{}, id).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to delete merchant")
		return
	}

	respondOK(c, "merchant deleted", nil)
}

func (h *MerchantHandler) revokeMerchantPasscodes(merchantID uint) error {
	var users []models.User
	if err := h.db.Where("merchant_id = ?", merchantID).Find(&users).Error; err != nil {
		return err
	}

	for _, user := range users {
		if err := h.passcodes.RevokeUserPasscodes(user.ID); err != nil {
			return err
		}
	}

	return nil
}
