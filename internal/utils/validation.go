package utils

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/gatherly/citrine/internal/models"
)

var (
	validate      *validator.Validate
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func init() {
	validate = validator.New()

	// Custom validation for username
	validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		username := fl.Field().String()
		if len(username) < 3 || len(username) > 32 {
			return false
		}
		return usernameRegex.MatchString(username)
	})

	// Custom validation for password strength
	validate.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		if len(password) < 8 {
			return false
		}
		var hasUpper, hasLower, hasNumber bool
		for _, c := range password {
			switch {
			case unicode.IsUpper(c):
				hasUpper = true
			case unicode.IsLower(c):
				hasLower = true
			case unicode.IsNumber(c):
				hasNumber = true
			}
		}
		return hasUpper && hasLower && hasNumber
	})

	// Closed enum sets for system messages
	validate.RegisterValidation("messagetype", func(fl validator.FieldLevel) bool {
		return models.MessageType(fl.Field().String()).Valid()
	})
	validate.RegisterValidation("messagepriority", func(fl validator.FieldLevel) bool {
		return models.MessagePriority(fl.Field().String()).Valid()
	})
	validate.RegisterValidation("userrole", func(fl validator.FieldLevel) bool {
		return models.UserRole(fl.Field().String()).Valid()
	})
}

// Validate validates a struct using the validator
func Validate(s any) error {
	return validate.Struct(s)
}

// FormatValidationErrors formats validation errors for API response
func FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := strings.ToLower(e.Field())
			switch e.Tag() {
			case "required":
				errors[field] = "This field is required"
			case "email":
				errors[field] = "Invalid email format"
			case "min":
				errors[field] = "Value is too short"
			case "max":
				errors[field] = "Value is too long"
			case "username":
				errors[field] = "Username must be 3-32 characters and contain only letters, numbers, underscores, or hyphens"
			case "strongpassword":
				errors[field] = "Password must be at least 8 characters with uppercase, lowercase, and numbers"
			case "messagetype":
				errors[field] = "Unknown message type"
			case "messagepriority":
				errors[field] = "Priority must be low, medium, or high"
			case "userrole":
				errors[field] = "Unknown role"
			default:
				errors[field] = "Invalid value"
			}
		}
	}

	return errors
}

// SanitizeString removes potentially dangerous characters from a string
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")
	// Trim whitespace
	s = strings.TrimSpace(s)
	return s
}
