package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"passgate/internal/models"
	"passgate/internal/service"
	"passgate/internal/store"
	"passgate/internal/utils"
)

var testEncryptionKey = []byte("12345678901234567890123456789012")

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Merchant{},
		&models.Application{},
		&models.Passcode{},
		&models.AccessRecord{},
	))

	return db
}

func setupAccessRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewAccessHandler(db, testEncryptionKey)

	router.POST("/device/validate", handler.ValidatePasscode)
	router.POST("/device/validate-qr", handler.ValidateQRPasscode)
	router.POST("/device/records/batch", handler.BatchCreateRecords)
	router.GET("/api/records", handler.GetAccessRecords)
	router.GET("/api/records/stats", handler.GetAccessStats)

	return router
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username:  username,
		Password:  "test-password-123",
		FirstName: "Test",
		LastName:  "User",
		Email:     username + "@passgate.local",
		UserType:  models.UserTypeEmployee,
		Active:    true,
	}
	require.NoError(t, db.Create(user).Error)

	return user
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	return resp
}

func countRecords(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.AccessRecord{}).Count(&count).Error)

	return count
}

func TestValidatePasscodeEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupAccessRouter(t, db)
	passcodes := store.NewPasscodeStore(db)
	user := createTestUser(t, db, "alice")

	issuer := service.NewIssuer(passcodes)
	passcode, err := issuer.Issue(service.IssueOptions{
		UserID: user.ID,
		Type:   models.PasscodeTypeEmployee,
	})
	require.NoError(t, err)

	t.Run("valid code grants access and appends one record", func(t *testing.T) {
		before := countRecords(t, db)

		w := postJSON(t, router, "/device/validate", gin.H{
			"code":      passcode.Code,
			"deviceId":  "gate-01",
			"direction": "in",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, true, data["valid"])
		assert.Equal(t, "Test User", data["userName"])

		assert.Equal(t, before+1, countRecords(t, db))

		var record models.AccessRecord
		require.NoError(t, db.Order("id DESC").First(&record).Error)
		assert.Equal(t, user.ID, record.UserID)
		assert.Equal(t, models.AccessResultSuccess, record.Result)
		assert.Equal(t, "gate-01", record.DeviceID)
		assert.Equal(t, models.DirectionIn, record.Direction)
	})

	t.Run("expired code is refused with 200 and a failed record", func(t *testing.T) {
		expiry := time.Now().Add(-time.Minute)
		require.NoError(t, db.Create(&models.Passcode{
			UserID:     user.ID,
			Code:       "CODE-EXPIRED",
			Type:       models.PasscodeTypeEmployee,
			Status:     models.PasscodeStatusActive,
			ExpiryTime: &expiry,
		}).Error)

		w := postJSON(t, router, "/device/validate", gin.H{
			"code":     "CODE-EXPIRED",
			"deviceId": "gate-01",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		assert.False(t, resp.Success)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, false, data["valid"])
		assert.Equal(t, service.ReasonExpired, data["reason"])

		var record models.AccessRecord
		require.NoError(t, db.Order("id DESC").First(&record).Error)
		assert.Equal(t, models.AccessResultFailed, record.Result)
		assert.Equal(t, service.ReasonExpired, record.FailReason)
		// The code resolved, so the refusal is attributed to its holder.
		assert.Equal(t, user.ID, record.UserID)
	})

	t.Run("unknown code is refused and logged against user 0", func(t *testing.T) {
		w := postJSON(t, router, "/device/validate", gin.H{
			"code":     "DOES_NOT_EXIST",
			"deviceId": "gate-02",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		assert.False(t, resp.Success)

		var record models.AccessRecord
		require.NoError(t, db.Order("id DESC").First(&record).Error)
		assert.Equal(t, uint(0), record.UserID)
		assert.Nil(t, record.PasscodeID)
		assert.Equal(t, service.ReasonCodeNotFound, record.FailReason)
	})

	t.Run("missing code is a 400 and no record", func(t *testing.T) {
		before := countRecords(t, db)

		w := postJSON(t, router, "/device/validate", gin.H{
			"deviceId": "gate-01",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, before, countRecords(t, db))
	})

	t.Run("missing deviceId is a 400 and no record", func(t *testing.T) {
		before := countRecords(t, db)

		w := postJSON(t, router, "/device/validate", gin.H{
			"code": passcode.Code,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, before, countRecords(t, db))
	})

	t.Run("unknown direction defaults to in", func(t *testing.T) {
		w := postJSON(t, router, "/device/validate", gin.H{
			"code":      passcode.Code,
			"deviceId":  "gate-01",
			"direction": "sideways",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var record models.AccessRecord
		require.NoError(t, db.Order("id DESC").First(&record).Error)
		assert.Equal(t, models.DirectionIn, record.Direction)
	})
}

func TestValidatePasscodeUsageLimit(t *testing.T) {
	db := setupTestDB(t)
	router := setupAccessRouter(t, db)
	user := createTestUser(t, db, "bob")

	limit := 1
	require.NoError(t, db.Create(&models.Passcode{
		UserID:     user.ID,
		Code:       "CODE-ONCE",
		Type:       models.PasscodeTypeVisitor,
		Status:     models.PasscodeStatusActive,
		UsageLimit: &limit,
	}).Error)

	body := gin.H{"code": "CODE-ONCE", "deviceId": "gate-01"}

	first := decodeResponse(t, postJSON(t, router, "/device/validate", body))
	assert.True(t, first.Success)

	second := decodeResponse(t, postJSON(t, router, "/device/validate", body))
	assert.False(t, second.Success)

	// Both attempts landed in the ledger.
	assert.Equal(t, int64(2), countRecords(t, db))

	var failed models.AccessRecord
	require.NoError(t, db.Order("id DESC").First(&failed).Error)
	assert.Equal(t, service.ReasonUsageLimit, failed.FailReason)
}

func TestBatchCreateRecordsEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupAccessRouter(t, db)
	user := createTestUser(t, db, "carol")

	t.Run("valid batch lands in one shot", func(t *testing.T) {
		w := postJSON(t, router, "/device/records/batch", []gin.H{
			{"userId": user.ID, "deviceId": "gate-01", "direction": "in", "result": "success"},
			{"userId": user.ID, "deviceId": "gate-01", "direction": "out", "result": "success"},
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, int64(2), countRecords(t, db))
	})

	t.Run("one invalid entry rejects the whole batch", func(t *testing.T) {
		before := countRecords(t, db)

		w := postJSON(t, router, "/device/records/batch", []gin.H{
			{"userId": user.ID, "deviceId": "gate-01", "direction": "in", "result": "success"},
			{"deviceId": "gate-01", "direction": "in", "result": "success"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, before, countRecords(t, db))
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		w := postJSON(t, router, "/device/records/batch", []gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetAccessRecordsEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupAccessRouter(t, db)
	user := createTestUser(t, db, "dave")

	records := store.NewAccessRecordStore(db)
	for i := 0; i < 3; i++ {
		_, err := records.Create(&models.AccessRecord{
			UserID:    user.ID,
			DeviceID:  "gate-01",
			Direction: models.DirectionIn,
			Result:    models.AccessResultSuccess,
		})
		require.NoError(t, err)
	}

	t.Run("listing pages the ledger", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/records?page=1&limit=2", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		require.True(t, resp.Success)

		data := resp.Data.(map[string]interface{})
		assert.Len(t, data["data"], 2)

		pagination := data["pagination"].(map[string]interface{})
		assert.Equal(t, float64(3), pagination["total"])
		assert.Equal(t, float64(2), pagination["totalPages"])
	})

	t.Run("invalid userId filter is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/records?userId=abc", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed date is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/records?startDate=yesterday", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("stats aggregate the ledger", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/records/stats", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(3), data["totalCount"])
		assert.Equal(t, float64(100), data["successRate"])
	})
}

func TestValidateQRPasscodeEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupAccessRouter(t, db)
	user := createTestUser(t, db, "erin")

	passcodes := store.NewPasscodeStore(db)
	issuer := service.NewIssuer(passcodes)
	passcode, err := issuer.Issue(service.IssueOptions{
		UserID: user.ID,
		Type:   models.PasscodeTypeEmployee,
	})
	require.NoError(t, err)

	t.Run("encrypted payload grants access", func(t *testing.T) {
		payload, err := utils.EncryptPayload(testEncryptionKey, passcode.Code)
		require.NoError(t, err)

		w := postJSON(t, router, "/device/validate-qr", gin.H{
			"qrData":   payload,
			"deviceId": "gate-01",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)

		var record models.AccessRecord
		require.NoError(t, db.Order("id DESC").First(&record).Error)
		assert.Equal(t, user.ID, record.UserID)
		assert.Equal(t, models.AccessResultSuccess, record.Result)
	})

	t.Run("garbage payload is refused but recorded", func(t *testing.T) {
		w := postJSON(t, router, "/device/validate-qr", gin.H{
			"qrData":   "garbage",
			"deviceId": "gate-01",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		assert.False(t, resp.Success)

		var record models.AccessRecord
		require.NoError(t, db.Order("id DESC").First(&record).Error)
		assert.Equal(t, service.ReasonBadQRPayload, record.FailReason)
	})

	t.Run("missing qrData is a 400", func(t *testing.T) {
		w := postJSON(t, router, "/device/validate-qr", gin.H{
			"deviceId": "gate-01",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
