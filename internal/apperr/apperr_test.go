package apperr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Message(t *testing.T) {
	err := NewValidation("sku", "This field is required.")
	err.Add("work_order", "bad prefix")
	err.Add("sku", "second")

	assert.Equal(t, "validation failed: sku: This field is required.; second, work_order: bad prefix", err.Error())
	assert.False(t, err.Empty())
	assert.True(t, (&ValidationError{}).Empty())
}

func TestKindHelpers(t *testing.T) {
	wrapped := fmt.Errorf("saving: %w", NewValidation(NonFieldErrors, "dup"))
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsNotFound(wrapped))

	nf := fmt.Errorf("lookup: %w", NotFound("machine", "rig-1"))
	assert.True(t, IsNotFound(nf))
	assert.EqualError(t, nf, "lookup: could not find machine rig-1")
}
