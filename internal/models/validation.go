package models

// ValidationResult collects every field error at once so callers can
// surface them together instead of failing on the first.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{IsValid: true}
}

func (r *ValidationResult) addError(msg string) {
	r.IsValid = false
	r.Errors = append(r.Errors, msg)
}
