// Package validation checks user input before it reaches the store.
package validation

import (
	"diary/internal/models"
)

// Entry field messages.
const (
	TitleRequired   = "Title is required"
	ContentRequired = "Content is required"
)

// ValidateEntry checks a create or update payload. Any non-empty string is accepted.
// It returns a field-level validation error, or nil.
func ValidateEntry(fields models.EntryFields) error {
	var problems []models.FieldError
	if fields.Title == "" {
		problems = append(problems, models.FieldError{Field: "title", Message: TitleRequired})
	}
	if fields.Content == "" {
		problems = append(problems, models.FieldError{Field: "content", Message: ContentRequired})
	}
	if len(problems) == 0 {
		return nil
	}
	return models.NewFieldValidationError(problems)
}
