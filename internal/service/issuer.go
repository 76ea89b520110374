package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"passgate/internal/models"
	"passgate/internal/store"
)

// Issuer creates passcodes for employee onboarding, approved visitor
// applications and passcode refreshes.
type Issuer struct {
	passcodes *store.PasscodeStore
}

func NewIssuer(passcodes *store.PasscodeStore) *Issuer {
	return &Issuer{passcodes: passcodes}
}

type IssueOptions struct {
	UserID        uint
	Type          models.PasscodeType
	ExpiryTime    *time.Time
	UsageLimit    *int
	Permissions   models.PermissionList
	ApplicationID *uint
}

// Issue generates a fresh unique code with a TOTP secret and persists
// the passcode. The code is uuid-derived, upper-cased without hyphens
// so it survives manual entry on device keypads.
func (i *Issuer) Issue(opts IssueOptions) (*models.Passcode, error) {
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "passgate",
		AccountName: code,
	})
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}

	passcode := &models.Passcode{
		UserID:        opts.UserID,
		Code:          code,
		Type:          opts.Type,
		Status:        models.PasscodeStatusActive,
		ExpiryTime:    opts.ExpiryTime,
		UsageLimit:    opts.UsageLimit,
		Permissions:   opts.Permissions,
		TOTPSecret:    key.Secret(),
		ApplicationID: opts.ApplicationID,
	}

	if result := models.ValidateNewPasscode(passcode, time.Now()); !result.IsValid {
		return nil, fmt.Errorf("invalid passcode: %s", strings.Join(result.Errors, "; "))
	}

	if err := i.passcodes.Create(passcode); err != nil {
		return nil, err
	}

	return passcode, nil
}

// Refresh revokes the user's active passcodes and issues a replacement
// carrying the given options.
func (i *Issuer) Refresh(userID uint, opts IssueOptions) (*models.Passcode, error) {
	if err := i.passcodes.RevokeUserPasscodes(userID); err != nil {
		return nil, err
	}

	opts.UserID = userID
	return i.Issue(opts)
}
