package validation

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"diary/internal/models"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 8
	// bcrypt ignores anything past 72 bytes, but long passphrases are still accepted
	maxPasswordLength = 128
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateUsername checks length and the allowed character set.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLength {
		return fmt.Errorf("username must be at least %d characters long", minUsernameLength)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("username must not exceed %d characters", maxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, dots, underscores, and hyphens")
	}
	return nil
}

// ValidatePassword checks password length in characters.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", minPasswordLength)
	}
	if n > maxPasswordLength {
		return fmt.Errorf("password must not exceed %d characters", maxPasswordLength)
	}
	return nil
}

// ValidateCredentials validates a register payload and reports every bad field.
func ValidateCredentials(username, password string) error {
	var problems []models.FieldError
	if err := ValidateUsername(username); err != nil {
		problems = append(problems, models.FieldError{Field: "username", Message: err.Error()})
	}
	if err := ValidatePassword(password); err != nil {
		problems = append(problems, models.FieldError{Field: "password", Message: err.Error()})
	}
	if len(problems) == 0 {
		return nil
	}
	return models.NewFieldValidationError(problems)
}
