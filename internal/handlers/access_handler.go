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
	"passgate/internal/websocket"
)

type AccessHandler struct {
	passcodes *store.PasscodeStore
	records   *store.AccessRecordStore
	validator *service.ValidationService
	issuer    *service.Issuer
	wsHandler *websocket.WebSocketHandler
	wsEnabled bool
}

func NewAccessHandler(db *gorm.DB, encryptionKey []byte) *AccessHandler {
	passcodes := store.NewPasscodeStore(db)

	return &AccessHandler{
		passcodes: passcodes,
		records:   store.NewAccessRecordStore(db),
		validator: service.NewValidationService(passcodes, encryptionKey),
		issuer:    service.NewIssuer(passcodes),
		wsEnabled: false,
	}
}

func (h *AccessHandler) SetWebSocketHandler(wsHandler *websocket.WebSocketHandler) {
	h.wsHandler = wsHandler
	h.wsEnabled = (wsHandler != nil)
}

type validateInput struct {
	Code       string `json:"code"`
	QRData     string `json:"qrData"`
	TOTPCode   string `json:"totpCode"`
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	Direction  string `json:"direction"`
	ProjectID  *uint  `json:"projectId"`
	VenueID    *uint  `json:"venueId"`
	FloorID    *uint  `json:"floorId"`
}

type validationData struct {
	Valid       bool                  `json:"valid"`
	UserID      uint                  `json:"userId,omitempty"`
	UserName    string                `json:"userName,omitempty"`
	UserType    models.UserType       `json:"userType,omitempty"`
	Permissions models.PermissionList `json:"permissions,omitempty"`
	Reason      string                `json:"reason,omitempty"`
	Timestamp   string                `json:"timestamp"`
}

// ValidatePasscode is the door-device entry point: validate the
// submitted code, append exactly one access record whatever the
// outcome, then answer 200 with validity in the body. Devices treat
// non-200 as a transport fault and retry, so refusals are not errors.
func (h *AccessHandler) ValidatePasscode(c *gin.Context) {
	var input validateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if input.Code == "" || input.DeviceID == "" {
		respondError(c, http.StatusBadRequest, "code and deviceId are required")
		return
	}

	outcome, err := h.validator.Validate(input.Code)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "passcode validation failed")
		return
	}

	h.finishValidation(c, input, outcome)
}

// ValidateQRPasscode follows the same contract with an encrypted QR
// payload as the lookup key.
func (h *AccessHandler) ValidateQRPasscode(c *gin.Context) {
	var input validateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if input.QRData == "" || input.DeviceID == "" {
		respondError(c, http.StatusBadRequest, "qrData and deviceId are required")
		return
	}

	outcome, err := h.validator.ValidateQR(input.QRData)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "passcode validation failed")
		return
	}

	h.finishValidation(c, input, outcome)
}

// ValidateTOTPPasscode follows the same contract with a time-derived
// code checked against the base passcode's secret.
func (h *AccessHandler) ValidateTOTPPasscode(c *gin.Context) {
	var input validateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if input.Code == "" || input.TOTPCode == "" || input.DeviceID == "" {
		respondError(c, http.StatusBadRequest, "code, totpCode and deviceId are required")
		return
	}

	outcome, err := h.validator.ValidateTOTP(input.Code, input.TOTPCode)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "passcode validation failed")
		return
	}

	h.finishValidation(c, input, outcome)
}

// finishValidation appends the ledger entry, broadcasts the event and
// writes the response. Always one record per attempt, success or not.
func (h *AccessHandler) finishValidation(c *gin.Context, input validateInput, outcome *service.ValidationOutcome) {
	direction := models.Direction(input.Direction)
	if direction != models.DirectionIn && direction != models.DirectionOut {
		direction = models.DirectionIn
	}

	record := models.AccessRecord{
		DeviceID:   input.DeviceID,
		DeviceType: input.DeviceType,
		Direction:  direction,
		ProjectID:  input.ProjectID,
		VenueID:    input.VenueID,
		FloorID:    input.FloorID,
		Timestamp:  time.Now(),
	}

	if outcome.Valid {
		record.UserID = outcome.UserID
		record.PasscodeID = &outcome.Passcode.ID
		record.Result = models.AccessResultSuccess
	} else {
		// Failed attempts may not resolve to anyone; the ledger
		// keeps them under user id 0.
		record.Result = models.AccessResultFailed
		record.FailReason = outcome.Reason
		if outcome.Passcode != nil {
			record.UserID = outcome.Passcode.UserID
			record.PasscodeID = &outcome.Passcode.ID
		}
	}

	created, err := h.records.Create(&record)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to record access attempt")
		return
	}

	if h.wsEnabled {
		h.wsHandler.GetHub().BroadcastAccessEvent(websocket.AccessEvent{
			DeviceID:   created.DeviceID,
			DeviceType: created.DeviceType,
			Direction:  string(created.Direction),
			Result:     string(created.Result),
			FailReason: created.FailReason,
			UserID:     created.UserID,
			UserName:   outcome.UserName,
			Timestamp:  created.Timestamp.Format(time.RFC3339),
		})
	}

	message := "access granted"
	if !outcome.Valid {
		message = "access denied"
	}

	respond(c, http.StatusOK, outcome.Valid, message, validationData{
		Valid:       outcome.Valid,
		UserID:      outcome.UserID,
		UserName:    outcome.UserName,
		UserType:    outcome.UserType,
		Permissions: outcome.Permissions,
		Reason:      outcome.Reason,
		Timestamp:   created.Timestamp.Format(time.RFC3339),
	})
}

func (h *AccessHandler) GetAccessRecords(c *gin.Context) {
	query := store.RecordQuery{
		Page:      intQuery(c, "page", 1),
		Limit:     intQuery(c, "limit", 20),
		DeviceID:  c.Query("deviceId"),
		Result:    models.AccessResult(c.Query("result")),
		Direction: models.Direction(c.Query("direction")),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}

	if userID := c.Query("userId"); userID != "" {
		id, err := strconv.Atoi(userID)
		if err != nil || id < 1 {
			respondError(c, http.StatusBadRequest, "invalid userId")
			return
		}
		query.UserID = uint(id)
	}

	var ok bool
	if query.StartDate, ok = dateQuery(c, "startDate", false); !ok {
		return
	}
	if query.EndDate, ok = dateQuery(c, "endDate", true); !ok {
		return
	}

	records, pagination, err := h.records.FindAll(query)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch access records")
		return
	}

	respondOK(c, "access records fetched", gin.H{
		"data":       records,
		"pagination": pagination,
	})
}

func (h *AccessHandler) GetUserAccessRecords(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	records, err := h.records.FindByUserID(uint(id), intQuery(c, "limit", 50))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch access records")
		return
	}

	respondOK(c, "access records fetched", records)
}

func (h *AccessHandler) GetDeviceAccessRecords(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if deviceID == "" {
		respondError(c, http.StatusBadRequest, "deviceId is required")
		return
	}

	records, err := h.records.FindByDeviceID(deviceID, intQuery(c, "limit", 50))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to fetch access records")
		return
	}

	respondOK(c, "access records fetched", records)
}

func (h *AccessHandler) GetAccessStats(c *gin.Context) {
	filters := store.StatsFilters{
		DeviceID: c.Query("deviceId"),
		Result:   models.AccessResult(c.Query("result")),
	}

	if userID := c.Query("userId"); userID != "" {
		if id, err := strconv.Atoi(userID); err == nil && id > 0 {
			filters.UserID = uint(id)
		}
	}
	if merchantID := c.Query("merchantId"); merchantID != "" {
		if id, err := strconv.Atoi(merchantID); err == nil && id > 0 {
			filters.MerchantID = uint(id)
		}
	}

	var ok bool
	if filters.StartDate, ok = dateQuery(c, "startDate", false); !ok {
		return
	}
	if filters.EndDate, ok = dateQuery(c, "endDate", true); !ok {
		return
	}

	stats, err := h.records.GetStatistics(filters)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	respondOK(c, "statistics computed", stats)
}

// GetRealtimeStatus summarizes the current day: counters plus a rough
// occupancy figure (entries minus exits, floored at zero).
func (h *AccessHandler) GetRealtimeStatus(c *gin.Context) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats, err := h.records.GetStatistics(store.StatsFilters{
		StartDate: dayStart,
		EndDate:   now,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to compute realtime status")
		return
	}

	occupancy := stats.InCount - stats.OutCount
	if occupancy < 0 {
		occupancy = 0
	}

	respondOK(c, "realtime status", gin.H{
		"today":     stats,
		"occupancy": occupancy,
		"asOf":      now.Format(time.RFC3339),
	})
}

func (h *AccessHandler) GetPasscodeInfo(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		respondError(c, http.StatusBadRequest, "code is required")
		return
	}

	passcode, err := h.passcodes.FindByCode(code)
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

// RefreshPasscode revokes the caller's active passcodes and issues a
// replacement. Requires an authenticated user context.
func (h *AccessHandler) RefreshPasscode(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}
	uid := userID.(uint)

	opts := service.IssueOptions{Type: models.PasscodeTypeEmployee}

	// Carry the window and permissions of the passcode being replaced.
	if current, err := h.passcodes.FindActiveByUserID(uid); err == nil {
		opts.Type = current.Type
		opts.ExpiryTime = current.ExpiryTime
		opts.UsageLimit = current.UsageLimit
		opts.Permissions = current.Permissions
		opts.ApplicationID = current.ApplicationID
	}

	passcode, err := h.issuer.Refresh(uid, opts)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to refresh passcode")
		return
	}

	respondOK(c, "passcode refreshed", passcode)
}

func (h *AccessHandler) GetCurrentPasscode(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	passcode, err := h.passcodes.FindActiveByUserID(userID.(uint))
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, http.StatusNotFound, "no active passcode")
		} else {
			respondError(c, http.StatusInternalServerError, "failed to fetch passcode")
		}
		return
	}

	respondOK(c, "passcode fetched", passcode)
}

// BatchCreateRecords ingests records buffered on a device while it was
// offline. All rows land in one transaction.
func (h *AccessHandler) BatchCreateRecords(c *gin.Context) {
	var inputs []models.AccessRecordInput
	if err := c.ShouldBindJSON(&inputs); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(inputs) == 0 {
		respondError(c, http.StatusBadRequest, "no records supplied")
		return
	}

	now := time.Now()
	records := make([]models.AccessRecord, 0, len(inputs))
	for i, input := range inputs {
		if result := input.Validate(); !result.IsValid {
			respond(c, http.StatusBadRequest, false,
				"record "+strconv.Itoa(i)+" is invalid", gin.H{"errors": result.Errors})
			return
		}
		records = append(records, input.Record(now))
	}

	created, err := h.records.BatchCreate(records)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to store records")
		return
	}

	respond(c, http.StatusCreated, true, "records stored", created)
}

// CleanupRecords applies retention to the ledger.
func (h *AccessHandler) CleanupRecords(c *gin.Context) {
	days := intQuery(c, "daysToKeep", 0)
	if days < 1 {
		respondError(c, http.StatusBadRequest, "daysToKeep must be at least 1")
		return
	}

	removed, err := h.records.Cleanup(days)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "cleanup failed")
		return
	}

	respondOK(c, "cleanup complete", gin.H{"removed": removed})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	value := c.Query(key)
	if value == "" {
		return fallback
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// dateQuery parses a YYYY-MM-DD query param. End dates cover the whole
// day. Reports a 400 itself and returns ok=false on a malformed value.
func dateQuery(c *gin.Context, key string, endOfDay bool) (time.Time, bool) {
	value := c.Query(key)
	if value == "" {
		return time.Time{}, true
	}

	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid "+key+", expected YYYY-MM-DD")
		return time.Time{}, false
	}

	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, true
}
