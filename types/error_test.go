package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrCodeQueueOverflow, "queue full").WithStream("qq:1:group")
	assert.Equal(t, "[QUEUE_OVERFLOW] queue full", err.Error())
	assert.Equal(t, "qq:1:group", err.StreamID)

	cause := errors.New("boom")
	err = NewError(ErrCodeProcessingFailure, "process cycle").WithCause(cause)
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	err := NewError(ErrCodeCapacityBreach, "over cap")
	assert.Equal(t, ErrCodeCapacityBreach, CodeOf(err))

	wrapped := fmt.Errorf("route: %w", err)
	assert.Equal(t, ErrCodeCapacityBreach, CodeOf(wrapped))

	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))
}
