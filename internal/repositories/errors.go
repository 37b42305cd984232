package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound marks a lookup that matched no rows. Postgres implementations
// wrap gorm.ErrRecordNotFound so services can test with IsNotFoundError
// without importing gorm.
var ErrNotFound = errors.New("record not found")

// IsNotFoundError reports whether err represents a missing record.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
