// Package validation provides input validation helpers for the Amoree API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxNotesLength is the maximum length for free-text fields (reasons, notes)
const MaxNotesLength = 4000

// idRegex matches prefixed record IDs like bkg_a1b2..., dsp_..., usr_...
var idRegex = regexp.MustCompile(`^[a-z]{2,8}_[a-z0-9]{4,32}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks whether a string looks like a prefixed record ID.
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// IsValidUserID accepts prefixed IDs plus the reserved platform account name.
func IsValidUserID(id string) bool {
	if id == "platform" {
		return true
	}
	return idRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// RequiredID validates that a field is a well-formed record ID.
func RequiredID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		if !IsValidID(value) {
			return &ValidationError{Field: field, Message: "is not a valid ID"}
		}
		return nil
	}
}

// PositiveAmount validates that a monetary amount is a positive integer.
func PositiveAmount(field string, amount int64) func() *ValidationError {
	return func() *ValidationError {
		if amount <= 0 {
			return &ValidationError{Field: field, Message: "must be a positive amount"}
		}
		return nil
	}
}
