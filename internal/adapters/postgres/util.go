package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"gorm.io/gorm"
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// lookupErr maps a single-row read error onto the domain sentinels.
func lookupErr(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %v", domain.ErrNotFound, what, id)
	}
	return fmt.Errorf("%w: %s lookup: %v", domain.ErrStorageUnavailable, what, err)
}
