package service

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"passgate/internal/models"
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

func intPtr(n int) *int {
	return &n
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestValidationServiceValidate(t *testing.T) {
	db := setupTestDB(t)
	passcodes := store.NewPasscodeStore(db)
	svc := NewValidationService(passcodes, testEncryptionKey)
	user := createTestUser(t, db, "alice")

	t.Run("unknown code is refused", func(t *testing.T) {
		outcome, err := svc.Validate("DOES-NOT-EXIST")
		require.NoError(t, err)

		assert.False(t, outcome.Valid)
		assert.Equal(t, ReasonCodeNotFound, outcome.Reason)
		assert.Nil(t, outcome.Passcode)
	})

	t.Run("valid code passes and consumes one use", func(t *testing.T) {
		require.NoError(t, passcodes.Create(&models.Passcode{
			UserID:      user.ID,
			Code:        "CODE-LIVE",
			Type:        models.PasscodeTypeEmployee,
			Status:      models.PasscodeStatusActive,
			Permissions: models.PermissionList{"floor-3"},
		}))

		outcome, err := svc.Validate("CODE-LIVE")
		require.NoError(t, err)

		assert.True(t, outcome.Valid)
		assert.Empty(t, outcome.Reason)
		assert.Equal(t, user.ID, outcome.UserID)
		assert.Equal(t, "Test User", outcome.UserName)
		assert.Equal(t, models.UserTypeEmployee, outcome.UserType)
		assert.Equal(t, models.PermissionList{"floor-3"}, outcome.Permissions)

		found, err := passcodes.FindByCode("CODE-LIVE")
		require.NoError(t, err)
		assert.Equal(t, 1, found.UsageCount)
	})

	t.Run("revoked code is refused with attribution", func(t *testing.T) {
		require.NoError(t, passcodes.Create(&models.Passcode{
			UserID: user.ID,
			Code:   "CODE-REVOKED",
			Type:   models.PasscodeTypeEmployee,
			Status: models.PasscodeStatusRevoked,
		}))

		outcome, err := svc.Validate("CODE-REVOKED")
		require.NoError(t, err)

		assert.False(t, outcome.Valid)
		assert.Equal(t, ReasonNotActive, outcome.Reason)
		require.NotNil(t, outcome.Passcode)
		assert.Equal(t, user.ID, outcome.Passcode.UserID)
	})

	t.Run("expired code is refused", func(t *testing.T) {
		require.NoError(t, passcodes.Create(&models.Passcode{
			UserID:     user.ID,
			Code:       "CODE-EXPIRED",
			Type:       models.PasscodeTypeEmployee,
			Status:     models.PasscodeStatusActive,
			ExpiryTime: timePtr(time.Now().Add(-time.Minute)),
		}))

		outcome, err := svc.Validate("CODE-EXPIRED")
		require.NoError(t, err)

		assert.False(t, outcome.Valid)
		assert.Equal(t, ReasonExpired, outcome.Reason)
	})

	t.Run("usage limit is enforced", func(t *testing.T) {
		require.NoError(t, passcodes.Create(&models.Passcode{
			UserID:     user.ID,
			Code:       "CODE-ONCE",
			Type:       models.PasscodeTypeVisitor,
			Status:     models.PasscodeStatusActive,
			UsageLimit: intPtr(1),
		}))

		first, err := svc.Validate("CODE-ONCE")
		require.NoError(t, err)
		assert.True(t, first.Valid)

		second, err := svc.Validate("CODE-ONCE")
		require.NoError(t, err)
		assert.False(t, second.Valid)
		assert.Equal(t, ReasonUsageLimit, second.Reason)

		// Exactly one use landed on the row.
		found, err := passcodes.FindByCode("CODE-ONCE")
		require.NoError(t, err)
		assert.Equal(t, 1, found.UsageCount)
	})
}

func TestValidationServiceValidateQR(t *testing.T) {
	db := setupTestDB(t)
	passcodes := store.NewPasscodeStore(db)
	svc := NewValidationService(passcodes, testEncryptionKey)
	user := createTestUser(t, db, "bob")

	require.NoError(t, passcodes.Create(&models.Passcode{
		UserID: user.ID,
		Code:   "CODE-QR",
		Type:   models.PasscodeTypeEmployee,
		Status: models.PasscodeStatusActive,
	}))

	t.Run("encrypted payload round-trips", func(t *testing.T) {
		payload, err := utils.EncryptPayload(testEncryptionKey, "CODE-QR")
		require.NoError(t, err)

		outcome, err := svc.ValidateQR(payload)
		require.NoError(t, err)

		assert.True(t, outcome.Valid)
		assert.Equal(t, user.ID, outcome.UserID)
	})

	t.Run("garbage payload is refused without a lookup", func(t *testing.T) {
		outcome, err := svc.ValidateQR("not-base64!!")
		require.NoError(t, err)

		assert.False(t, outcome.Valid)
		assert.Equal(t, ReasonBadQRPayload, outcome.Reason)
	})

	t.Run("payload under a different key is refused", func(t *testing.T) {
		otherKey := []byte("abcdefghijklmnopqrstuvwxyz012345")
		payload, err := utils.EncryptPayload(otherKey, "CODE-QR")
		require.NoError(t, err)

		outcome, err := svc.ValidateQR(payload)
		require.NoError(t, err)

		// Decryption under the wrong key yields garbage, which cannot
		// resolve to a passcode.
		assert.False(t, outcome.Valid)
	})
}

func TestValidationServiceValidateTOTP(t *testing.T) {
	db := setupTestDB(t)
	passcodes := store.NewPasscodeStore(db)
	svc := NewValidationService(passcodes, testEncryptionKey)
	user := createTestUser(t, db, "carol")

	issuer := NewIssuer(passcodes)
	passcode, err := issuer.Issue(IssueOptions{
		UserID: user.ID,
		Type:   models.PasscodeTypeEmployee,
	})
	require.NoError(t, err)
	require.NotEmpty(t, passcode.TOTPSecret)

	t.Run("current totp code passes", func(t *testing.T) {
		code, err := totp.GenerateCode(passcode.TOTPSecret, time.Now())
		require.NoError(t, err)

		outcome, err := svc.ValidateTOTP(passcode.Code, code)
		require.NoError(t, err)

		assert.True(t, outcome.Valid)
		assert.Equal(t, user.ID, outcome.UserID)
	})

	t.Run("wrong totp code is refused", func(t *testing.T) {
		outcome, err := svc.ValidateTOTP(passcode.Code, "000000")
		require.NoError(t, err)

		assert.False(t, outcome.Valid)
		assert.Equal(t, ReasonBadTOTPCode, outcome.Reason)
	})

	t.Run("unknown base code is refused", func(t *testing.T) {
		outcome, err := svc.ValidateTOTP("DOES-NOT-EXIST", "000000")
		require.NoError(t, err)

		assert.False(t, outcome.Valid)
		assert.Equal(t, ReasonCodeNotFound, outcome.Reason)
	})
}
