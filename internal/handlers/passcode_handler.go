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
	"passgate/internal/utils"
	"passgate/internal/websocket"
)

type PasscodeHandler struct {
	db            *gorm.DB
	passcodes     *store.PasscodeStore
	issuer        *service.Issuer
	encryptionKey []byte
	wsHandler     *websocket.WebSocketHandler
	wsEnabled     bool
}

func NewPasscodeHandler(db *gorm.DB, encryptionKey []byte) *PasscodeHandler {
	passcodes := store.NewPasscodeStore(db)

	return &PasscodeHandler{
		db:            db,
		passcodes:     passcodes,
		issuer:        service.NewIssuer(passcodes),
		encryptionKey: encryptionKey,
		wsEnabled:     false,
	}
}

func (h *PasscodeHandler) SetWebSocketHandler(wsHandler *websocket.WebSocketHandler) {
	h.wsHandler = wsHandler
	h.wsEnabled = (wsHandler != nil)
}

func (h *PasscodeHandler) GetPasscodes(c *gin.Context) {
	query := h.db.Model(&models.Passcode{}).Preload("User")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if userID := c.Query("userId"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if passType := c.Query("type"); passType != "" {
		query = query.Where("type = ?", passType)
	}

	var passcodes []models.Passcode
	if err := query.Order("created_at DESC").Find(&passcodes).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch passcodes")
		return
	}

	respondOK(c, "passcodes fetched", passcodes)
}

func (h *PasscodeHandler) GetPasscode(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid passcode id")
		return
	}

	passcode, err := h.passcodes.FindByID(uint(id))
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, http.StatusNotFound, "passcode not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch passcode")
		}
		return
	}

	respondOK(c, "passcode fetched", passcode)
}

func (h *PasscodeHandler) CreatePasscode(c *gin.Context) {
	var input struct {
		UserID      uint                  `json:"user_id" binding:"required"`
		Type        models.PasscodeType   `json:"type" binding:"required"`
		ExpiryTime  *time.Time            `json:"expiry_time"`
		UsageLimit  *int                  `json:"usage_limit"`
		Permissions models.PermissionList `json:"permissions"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	var user models.User
	if err := h.db.First(&user, input.UserID).Error; err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	probe := models.Passcode{
		UserID:      input.UserID,
		Code:        "probe", // issued code is generated later
		Type:        input.Type,
		ExpiryTime:  input.ExpiryTime,
		UsageLimit:  input.UsageLimit,
		Permissions: input.Permissions,
	}
	if result := models.ValidateNewPasscode(&probe, time.Now()); !result.IsValid {
		respond(c, http.StatusBadRequest, false, "invalid passcode", gin.H{"errors": result.Errors})
		return
	}

	passcode, err := h.issuer.Issue(service.IssueOptions{
		UserID:      input.UserID,
		Type:        input.Type,
		ExpiryTime:  input.ExpiryTime,
		UsageLimit:  input.UsageLimit,
		Permissions: input.Permissions,
	})
	if err != nil {
		if err == store.ErrDuplicateCode {
			respondError(c, http.StatusConflict, "passcode code already exists")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to create passcode")
		}
		return
	}

	h.broadcast("passcode_created", passcode)

	respond(c, http.StatusCreated, true, "passcode created", passcode)
}

func (h *PasscodeHandler) UpdatePasscode(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid passcode id")
		return
	}

	var input struct {
		Status      *models.PasscodeStatus `json:"status"`
		ExpiryTime  *time.Time             `json:"expiry_time"`
		UsageLimit  *int                   `json:"usage_limit"`
		Permissions *models.PermissionList `json:"permissions"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := map[string]interface{}{}
	if input.Status != nil {
		switch *input.Status {
		case models.PasscodeStatusActive, models.PasscodeStatusExpired, models.PasscodeStatusRevoked:
		default:
			respondError(c, http.StatusBadRequest, "status must be one of: active, expired, revoked")
			return
		}
		fields["status"] = *input.Status
	}
	if input.ExpiryTime != nil {
		fields["expiry_time"] = *input.ExpiryTime
	}
	if input.UsageLimit != nil {
		if *input.UsageLimit <= 0 {
			respondError(c, http.StatusBadRequest, "usage_limit must be greater than zero")
			return
		}
		fields["usage_limit"] = *input.UsageLimit
	}
	if input.Permissions != nil {
		fields["permissions"] = *input.Permissions
	}

	// Expired and revoked are terminal; reject attempts to flip back.
	if status, ok := fields["status"]; ok && status == models.PasscodeStatusActive {
		existing, err := h.passcodes.FindByID(uint(id))
		if err != nil {
			if err == store.ErrNotFound {
				respondError(c, http.StatusNotFound, "passcode not found")
			} else {
				respondError(c, http.StatusInternalServerError, "failed to fetch passcode")
			}
			return
		}
		if existing.Status != models.PasscodeStatusActive {
			respondError(c, http.StatusBadRequest, "expired or revoked passcodes cannot be reactivated")
			return
		}
	}

	passcode, err := h.passcodes.Update(uint(id), fields)
	if err != nil {
		switch err {
		case models.ErrNoFields:
			respondError(c, http.StatusBadRequest, "no fields to update")
		case store.ErrNotFound:
			respondError(c, http.StatusNotFound, "passcode not found")
		default:
			respondError(c, http.StatusInternalServerError, "failed to update passcode")
		}
		return
	}

	h.broadcast("passcode_updated", passcode)

	respondOK(c, "passcode updated", passcode)
}

func (h *PasscodeHandler) DeletePasscode(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid passcode id")
		return
	}

	if err := h.passcodes.Delete(uint(id)); err != nil {
		if err == store.ErrNotFound {
			respondError(c, http.StatusNotFound, "passcode not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to delete passcode")
		}
		return
	}

	respondOK(c, "passcode deleted", nil)
}

func (h *PasscodeHandler) RevokePasscode(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid passcode id")
		return
	}

	passcode, err := h.passcodes.Update(uint(id), map[string]interface{}{
		"status": models.PasscodeStatusRevoked,
	})
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, http.StatusNotFound, "passcode not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to revoke passcode")
		}
		return
	}

	h.broadcast("passcode_revoked", passcode)

	respondOK(c, "passcode revoked", passcode)
}

func (h *PasscodeHandler) GetExpiringPasscodes(c *gin.Context) {
	days := intQuery(c, "days", 7)
	if days < 1 {
		days = 7
	}

	passcodes, err := h.passcodes.FindExpiring(days)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch expiring passcodes")
		return
	}

	respondOK(c, "expiring passcodes fetched", passcodes)
}

// SweepExpired runs the expiry sweep on demand; the same sweep also
// runs periodically in the background.
func (h *PasscodeHandler) SweepExpired(c *gin.Context) {
	count, err := h.passcodes.CleanupExpired()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "expiry sweep failed")
		return
	}

	respondOK(c, "expiry sweep complete", gin.H{"expired": count})
}

// GetPasscodeQR returns the encrypted payload a panel renders as a QR
// image. Scanning posts the payload back to the validate-qr endpoint.
func (h *PasscodeHandler) GetPasscodeQR(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid passcode id")
		return
	}

	passcode, err := h.passcodes.FindByID(uint(id))
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, http.StatusNotFound, "passcode not found")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch passcode")
		}
		return
	}

	payload, err := utils.EncryptPayload(h.encryptionKey, passcode.Code)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to build QR payload")
		return
	}

	respondOK(c, "qr payload generated", gin.H{"qrData": payload})
}

func (h *PasscodeHandler) broadcast(action string, passcode *models.Passcode) {
	if !h.wsEnabled {
		return
	}

	h.wsHandler.GetHub().BroadcastPasscodeEvent(websocket.PasscodeEvent{
		Action:     action,
		PasscodeID: passcode.ID,
		UserID:     passcode.UserID,
		Status:     string(passcode.Status),
	})
}
