package domain

import (
	"fmt"
	"regexp"
)

var languagePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,31}$`)

const MaxCodeBytes = 64 * 1024

func ValidateLanguage(language Language) error {
	if !languagePattern.MatchString(string(language)) {
		return fmt.Errorf("%w: language must be an upper-case identifier", ErrInvalidInput)
	}
	return nil
}

func ValidateCode(code []byte) error {
	if len(code) == 0 {
		return fmt.Errorf("%w: code attachment is empty", ErrInvalidInput)
	}
	if len(code) > MaxCodeBytes {
		return fmt.Errorf("%w: code attachment exceeds %d bytes", ErrInvalidInput, MaxCodeBytes)
	}
	return nil
}
