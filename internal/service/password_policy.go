package service

import (
	"unicode"
)

// PasswordPolicy 密码强度策略
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireNumber  bool
	RequireSpecial bool
}

var defaultPasswordPolicy = PasswordPolicy{
	MinLength:     minPasswordLength,
	RequireLower:  true,
	RequireNumber: true,
}

func validatePassword(policy PasswordPolicy, password string) error {
	if policy.MinLength > 0 && len([]rune(password)) < policy.MinLength {
		return newValidationError("password", "must be at least %d characters", policy.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		default:
			hasSpecial = true
		}
	}

	if policy.RequireUpper && !hasUpper {
		return newValidationError("password", "must contain an uppercase letter")
	}
	if policy.RequireLower && !hasLower {
		return newValidationError("password", "must contain a lowercase letter")
	}
	if policy.RequireNumber && !hasNumber {
		return newValidationError("password", "must contain a digit")
	}
	if policy.RequireSpecial && !hasSpecial {
		return newValidationError("password", "must contain a special character")
	}
	return nil
}
