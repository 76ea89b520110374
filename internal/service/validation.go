package service

import (
	"time"

	"github.com/pquerna/otp/totp"

	"passgate/internal/models"
	"passgate/internal/store"
	"passgate/internal/utils"
)

// Refusal reasons returned to devices and recorded as fail_reason.
const (
	ReasonCodeNotFound = "code does not exist"
	ReasonNotActive    = "code is no longer active"
	ReasonExpired      = "code has expired"
	ReasonUsageLimit   = "usage limit reached"
	ReasonBadQRPayload = "qr payload is not valid"
	ReasonBadTOTPCode  = "time-based code is not valid"
)

// ValidationOutcome is the structured result of one validation
// attempt. Passcode is set whenever the code resolved to a row, even
// on refusal, so the caller can attribute the access record.
type ValidationOutcome struct {
	Valid       bool
	Reason      string
	Passcode    *models.Passcode
	UserID      uint
	UserName    string
	UserType    models.UserType
	Permissions models.PermissionList
}

type ValidationService struct {
	passcodes     *store.PasscodeStore
	encryptionKey []byte
}

func NewValidationService(passcodes *store.PasscodeStore, encryptionKey []byte) *ValidationService {
	return &ValidationService{
		passcodes:     passcodes,
		encryptionKey: encryptionKey,
	}
}

// Validate resolves the submitted code and, when every check passes,
// consumes one use. The usage-limit check and the increment are a
// single conditional UPDATE, so two concurrent validations of a
// limit-1 code cannot both succeed.
func (s *ValidationService) Validate(code string) (*ValidationOutcome, error) {
	passcode, err := s.passcodes.FindByCode(code)
	if err != nil {
		if err == store.ErrNotFound {
			return &ValidationOutcome{Valid: false, Reason: ReasonCodeNotFound}, nil
		}
		return nil, err
	}

	return s.validateResolved(passcode)
}

// ValidateQR decrypts the scanned payload to a plain code and runs the
// same pipeline. An undecryptable payload is refused without a lookup.
func (s *ValidationService) ValidateQR(payload string) (*ValidationOutcome, error) {
	code, err := utils.DecryptPayload(s.encryptionKey, payload)
	if err != nil {
		return &ValidationOutcome{Valid: false, Reason: ReasonBadQRPayload}, nil
	}

	return s.Validate(code)
}

// ValidateTOTP checks a time-derived code against the base passcode's
// secret, then runs the same pipeline on the base passcode.
func (s *ValidationService) ValidateTOTP(baseCode, totpCode string) (*ValidationOutcome, error) {
	passcode, err := s.passcodes.FindByCode(baseCode)
	if err != nil {
		if err == store.ErrNotFound {
			return &ValidationOutcome{Valid: false, Reason: ReasonCodeNotFound}, nil
		}
		return nil, err
	}

	if passcode.TOTPSecret == "" || !totp.Validate(totpCode, passcode.TOTPSecret) {
		return s.refusal(passcode, ReasonBadTOTPCode), nil
	}

	return s.validateResolved(passcode)
}

func (s *ValidationService) validateResolved(passcode *models.Passcode) (*ValidationOutcome, error) {
	if passcode.Status != models.PasscodeStatusActive {
		return s.refusal(passcode, ReasonNotActive), nil
	}

	if passcode.IsExpired(time.Now()) {
		return s.refusal(passcode, ReasonExpired), nil
	}

	if passcode.AtUsageLimit() {
		return s.refusal(passcode, ReasonUsageLimit), nil
	}

	consumed, err := s.passcodes.ConsumeUsage(passcode.ID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		// Lost the race against a concurrent validation or a
		// status flip between the read and the update.
		return s.refusal(passcode, ReasonUsageLimit), nil
	}
	passcode.UsageCount++

	return &ValidationOutcome{
		Valid:       true,
		Passcode:    passcode,
		UserID:      passcode.UserID,
		UserName:    passcode.User.FullName(),
		UserType:    passcode.User.UserType,
		Permissions: passcode.Permissions,
	}, nil
}

func (s *ValidationService) refusal(passcode *models.Passcode, reason string) *ValidationOutcome {
	return &ValidationOutcome{
		Valid:    false,
		Reason:   reason,
		Passcode: passcode,
	}
}
