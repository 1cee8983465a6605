package approval

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// Losing the per-year number race surfaces as a unique violation on save;
// callers must see the retryable concurrency error, not a raw driver error.
func TestTranslateWriteErrorDuplicateNumber(t *testing.T) {
	err := translateWriteError(fmt.Errorf("insert failed: %w", gorm.ErrDuplicatedKey))
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestTranslateWriteErrorPassesOthersThrough(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Equal(t, plain, translateWriteError(plain))
	assert.NoError(t, translateWriteError(nil))
}
