// package validate
package validate

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validator is a function that validates a string and returns an error if invalid
type Validator func(value string) error

// Field creates a labeled validator with a custom name for better error messages
func Field(name string, validators ...Validator) Validator {
	return func(value string) error {
		for _, v := range validators {
			if err := v(value); err != nil {
				if !strings.Contains(err.Error(), name) {
					return fmt.Errorf("%s: %w", name, err)
				}
				return err
			}
		}
		return nil
	}
}

// Required ensures the field is not empty
func Required() Validator {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("this field is required")
		}
		return nil
	}
}

// MaxLength checks maximum length in characters
func MaxLength(max int) Validator {
	return func(v string) error {
		if utf8.RuneCountInString(v) > max {
			return fmt.Errorf("must be no more than %d characters", max)
		}
		return nil
	}
}

// MaxBytes checks maximum encoded size
func MaxBytes(max int) Validator {
	return func(v string) error {
		if len(v) > max {
			return fmt.Errorf("must be no more than %d bytes", max)
		}
		return nil
	}
}

// ValidUTF8 rejects byte sequences that are not UTF-8
func ValidUTF8() Validator {
	return func(v string) error {
		if !utf8.ValidString(v) {
			return fmt.Errorf("must be valid UTF-8")
		}
		return nil
	}
}

// NoControlChars rejects control characters other than newline and tab
func NoControlChars() Validator {
	return func(v string) error {
		for _, r := range v {
			if unicode.IsControl(r) && r != '\n' && r != '\t' {
				return fmt.Errorf("must not contain control characters")
			}
		}
		return nil
	}
}

// UUID accepts canonical UUID strings
func UUID() Validator {
	return func(v string) error {
		if v == "" {
			return nil // let Required handle empty
		}
		if _, err := uuid.Parse(v); err != nil || len(v) != 36 {
			return fmt.Errorf("must be a valid UUID")
		}
		return nil
	}
}

// OneOf checks if value is in allowed list
func OneOf(allowed ...string) Validator {
	set := make(map[string]bool)
	for _, a := range allowed {
		set[a] = true
	}
	return func(v string) error {
		if !set[v] {
			return fmt.Errorf("must be one of: %s", strings.Join(allowed, ", "))
		}
		return nil
	}
}

// RoomID validates room identifiers taken from paths and relay payloads.
func RoomID() Validator {
	return Field("roomId", Required(), UUID())
}

// MessageText validates relayed message bodies against a byte budget.
func MessageText(max int) Validator {
	return Field("message", Required(), ValidUTF8(), MaxBytes(max))
}

// Username validates display names supplied by clients.
func Username() Validator {
	return Field("username", Required(), ValidUTF8(), NoControlChars(), MaxLength(64))
}
