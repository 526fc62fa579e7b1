package shared

import (
	"fmt"
	"strings"
	"time"
)

// NotBlank fails when value is empty or consists of whitespace only.
func NotBlank(domain, op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewDomainError(domain, op, ErrValidation, fmt.Sprintf("%s must not be blank", field))
	}
	return nil
}

// EndsAfterBegins fails unless ends is strictly after begins.
func EndsAfterBegins(domain, op string, begins, ends time.Time) error {
	if !ends.After(begins) {
		return NewDomainError(domain, op, ErrValidation, "'ends' datetime must be after 'begins' datetime")
	}
	return nil
}

// NotEmptyID fails when a required identifier is missing.
func NotEmptyID(domain, op, field, id string) error {
	if id == "" {
		return NewDomainError(domain, op, ErrValidation, fmt.Sprintf("%s is required", field))
	}
	return nil
}
